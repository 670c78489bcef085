package channels

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/SZoloth/promptrelay/pkg/bus"
	"github.com/SZoloth/promptrelay/pkg/config"
	"github.com/SZoloth/promptrelay/pkg/logger"
)

// WebSocketChannel serves extension contexts over a local WebSocket endpoint.
// Each connection carries relay envelopes; replies go back on the same
// connection, correlated by ID. Messages on one connection are handled
// concurrently — a slow dispatch never blocks the next frame.
type WebSocketChannel struct {
	*BaseChannel
	cfg      config.GatewayConfig
	server   *http.Server
	upgrader websocket.Upgrader
}

func NewWebSocketChannel(cfg config.GatewayConfig, dispatch bus.DispatchFunc) *WebSocketChannel {
	return &WebSocketChannel{
		BaseChannel: NewBaseChannel("gateway", dispatch),
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			// Extension contexts connect with chrome-extension:// (or no)
			// origins; the listener is bound to loopback instead.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (c *WebSocketChannel) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	c.server = &http.Server{
		Addr:    addr,
		Handler: c.handler(ctx),
	}

	c.setRunning(true)
	logger.InfoCF("gateway", "WebSocket gateway listening", map[string]interface{}{
		"addr": addr,
	})

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("gateway", "WebSocket gateway stopped", map[string]interface{}{
				"error": err.Error(),
			})
		}
		c.setRunning(false)
	}()

	return nil
}

func (c *WebSocketChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

func (c *WebSocketChannel) handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/relay", func(w http.ResponseWriter, r *http.Request) {
		conn, err := c.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WarnCF("gateway", "WebSocket upgrade failed", map[string]interface{}{
				"remote": r.RemoteAddr,
				"error":  err.Error(),
			})
			return
		}
		c.serveConn(ctx, conn)
	})
	return mux
}

// gatewayConn serializes writes: replies for concurrently dispatched requests
// land on one connection from separate goroutines.
type gatewayConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (g *gatewayConn) writeJSON(v interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conn.WriteJSON(v)
}

func (c *WebSocketChannel) serveConn(ctx context.Context, conn *websocket.Conn) {
	gc := &gatewayConn{conn: conn}
	defer conn.Close()

	logger.DebugCF("gateway", "Extension context connected", map[string]interface{}{
		"remote": conn.RemoteAddr().String(),
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.DebugCF("gateway", "Connection closed", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}

		go func(raw []byte) {
			reply := c.handleEnvelope(ctx, raw)
			if reply == nil {
				return
			}
			if err := gc.writeJSON(reply); err != nil {
				logger.WarnCF("gateway", "Failed to write reply", map[string]interface{}{
					"correlation_id": reply.CorrelationID,
					"error":          err.Error(),
				})
			}
		}(raw)
	}
}
