package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"batchloader/internal/config"
	"batchloader/internal/resolver"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// Handler handles WebSocket connections
type Handler struct {
	router   *resolver.Router
	resolver *resolver.Resolver
	cfg      *config.Config
	logger   zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(router *resolver.Router, res *resolver.Resolver, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		router:   router,
		resolver: res,
		cfg:      cfg,
		logger:   logger.With().Str("component", "ws").Logger(),
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ds, err := h.router.GetDatasourceFromPath(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	// Upgrade to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	h.logger.Info().
		Str("datasource", ds.Name).
		Str("remoteAddr", r.RemoteAddr).
		Msg("new WebSocket connection")

	client := NewClient(conn, ds, h.resolver, h.cfg, h.logger.With().Str("remoteAddr", r.RemoteAddr).Logger())
	client.Run(r.Context())
}
