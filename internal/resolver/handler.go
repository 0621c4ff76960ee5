package resolver

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"batchloader/internal/config"
	"batchloader/internal/jsonrpc"
)

// Handler handles HTTP JSON-RPC requests
type Handler struct {
	router         *Router
	resolver       *Resolver
	maxBodySize    int64
	requestTimeout time.Duration
	logger         zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(router *Router, resolver *Resolver, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		router:         router,
		resolver:       resolver,
		maxBodySize:    cfg.MaxBodySize,
		requestTimeout: cfg.GetRequestTimeoutDuration(),
		logger:         logger.With().Str("component", "http").Logger(),
	}
}

// ServeHTTP handles HTTP requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only accept POST requests
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ds, err := h.router.GetDatasourceFromPath(r.URL.Path)
	if err != nil {
		h.writeJSONRPCError(w, jsonrpc.NewIDNull(), jsonrpc.NewError(jsonrpc.CodeInvalidRequest, err.Error()))
		return
	}

	// Read request body
	var body []byte
	if h.maxBodySize > 0 {
		body, err = io.ReadAll(io.LimitReader(r.Body, h.maxBodySize+1))
		if err != nil {
			h.writeJSONRPCError(w, jsonrpc.NewIDNull(), jsonrpc.NewError(jsonrpc.CodeParseError, "failed to read request body"))
			return
		}
		if int64(len(body)) > h.maxBodySize {
			h.writeJSONRPCError(w, jsonrpc.NewIDNull(), jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "request body too large"))
			return
		}
	} else {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			h.writeJSONRPCError(w, jsonrpc.NewIDNull(), jsonrpc.NewError(jsonrpc.CodeParseError, "failed to read request body"))
			return
		}
	}

	// Parse JSON-RPC request(s)
	requests, isBatch, err := jsonrpc.ParseBatchRequest(body)
	if err != nil {
		h.writeJSONRPCError(w, jsonrpc.NewIDNull(), jsonrpc.ErrParse)
		return
	}

	ctx := r.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	if isBatch {
		h.writeBatchResponse(w, h.resolver.ExecuteBatch(ctx, ds, requests))
	} else {
		h.writeResponse(w, h.resolver.Execute(ctx, ds, requests[0]))
	}
}

// writeResponse writes a JSON-RPC response. A nil response is a
// notification and gets an empty body.
func (h *Handler) writeResponse(w http.ResponseWriter, resp *jsonrpc.Response) {
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	data, err := resp.Bytes()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal response")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Write(data)
}

// writeBatchResponse writes a batch of JSON-RPC responses
func (h *Handler) writeBatchResponse(w http.ResponseWriter, responses []*jsonrpc.Response) {
	if len(responses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	data, err := jsonrpc.MarshalBatchResponse(responses)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal batch response")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Write(data)
}

// writeJSONRPCError writes a JSON-RPC error response
func (h *Handler) writeJSONRPCError(w http.ResponseWriter, id jsonrpc.ID, rpcErr *jsonrpc.Error) {
	h.writeResponse(w, jsonrpc.NewErrorResponse(id, rpcErr))
}

// writeError writes a plain HTTP error
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
}
