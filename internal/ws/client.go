package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"batchloader/internal/config"
	"batchloader/internal/jsonrpc"
	"batchloader/internal/resolver"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 10 * 1024 * 1024 // 10MB
)

// Client represents a WebSocket client connection
type Client struct {
	conn           *websocket.Conn
	datasource     *resolver.Datasource
	resolver       *resolver.Resolver
	requestTimeout time.Duration
	logger         zerolog.Logger

	sendChan  chan *Message
	closeChan chan struct{}
	closeOnce sync.Once
	inflight  sync.WaitGroup
	slots     *semaphore.Weighted
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, ds *resolver.Datasource, res *resolver.Resolver, cfg *config.Config, logger zerolog.Logger) *Client {
	limit := cfg.WSMaxInflight
	if limit <= 0 {
		limit = config.DefaultWSMaxInflight
	}

	return &Client{
		conn:           conn,
		datasource:     ds,
		resolver:       res,
		requestTimeout: cfg.GetRequestTimeoutDuration(),
		logger:         logger,
		sendChan:       make(chan *Message, 256),
		closeChan:      make(chan struct{}),
		slots:          semaphore.NewWeighted(int64(limit)),
	}
}

// Run starts the client read and write loops
func (c *Client) Run(ctx context.Context) {
	// Configure connection
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Start write goroutine
	go c.writePump(ctx)

	// Read loop (runs in current goroutine)
	c.readPump(ctx)
}

// readPump reads messages from the WebSocket connection. Every message
// is handled in its own goroutine so lookups sent back to back share the
// collection window. Once the connection has WSMaxInflight messages in
// progress, reading stops until one of them completes.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.inflight.Wait()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeChan:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug().Err(err).Msg("read error")
			}
			return
		}

		if err := c.slots.Acquire(ctx, 1); err != nil {
			return
		}
		c.inflight.Add(1)
		go func() {
			defer func() {
				c.slots.Release(1)
				c.inflight.Done()
			}()
			c.handleMessage(ctx, data)
		}()
	}
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeChan:
			return
		case msg := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(int(msg.Type), msg.Data); err != nil {
				c.logger.Debug().Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(int(PingMessage), nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming message
func (c *Client) handleMessage(ctx context.Context, data []byte) {
	requests, isBatch, err := jsonrpc.ParseBatchRequest(data)
	if err != nil {
		c.sendError(jsonrpc.NewIDNull(), jsonrpc.ErrParse)
		return
	}

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	if isBatch {
		c.sendBatchResponse(c.resolver.ExecuteBatch(ctx, c.datasource, requests))
	} else {
		c.sendResponse(c.resolver.Execute(ctx, c.datasource, requests[0]))
	}
}

// sendResponse sends a JSON-RPC response
func (c *Client) sendResponse(resp *jsonrpc.Response) {
	if resp == nil {
		return
	}
	data, err := resp.Bytes()
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal response")
		return
	}
	c.send(NewTextMessage(data))
}

// sendBatchResponse sends a batch of JSON-RPC responses
func (c *Client) sendBatchResponse(responses []*jsonrpc.Response) {
	if len(responses) == 0 {
		return
	}
	data, err := jsonrpc.MarshalBatchResponse(responses)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal batch response")
		return
	}
	c.send(NewTextMessage(data))
}

// sendError sends a JSON-RPC error response
func (c *Client) sendError(id jsonrpc.ID, rpcErr *jsonrpc.Error) {
	c.sendResponse(jsonrpc.NewErrorResponse(id, rpcErr))
}

// send queues a message for the write loop
func (c *Client) send(msg *Message) {
	select {
	case c.sendChan <- msg:
	case <-c.closeChan:
	default:
		// Channel full, drop message
		c.logger.Warn().Msg("send channel full, dropping message")
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.conn.WriteControl(int(CloseMessage), websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.conn.Close()
		c.logger.Debug().Msg("client closed")
	})
}
