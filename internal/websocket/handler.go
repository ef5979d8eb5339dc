package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"attendancehub/pkg/interfaces"
)

// Options tune the read side of every accepted connection.
type Options struct {
	ReadTimeout  time.Duration
	PingInterval time.Duration
	MaxFrameSize int64
}

// DefaultOptions pings every 30s and drops connections silent for 60s.
func DefaultOptions() Options {
	return Options{
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
		MaxFrameSize: 64 * 1024,
	}
}

// ESP32 clients do not send an Origin header, so origins are not checked.
var upgrader = websocket.Upgrader{
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// Handler accepts websocket upgrades and pumps inbound frames into the
// dispatcher. Identity arrives later in an identify event, so no query
// parameters are required.
type Handler struct {
	registry   *Registry
	dispatcher interfaces.EventDispatcher
	opts       Options
}

// NewHandler creates a websocket handler with the default options.
func NewHandler(registry *Registry, dispatcher interfaces.EventDispatcher) *Handler {
	return NewHandlerWithOptions(registry, dispatcher, DefaultOptions())
}

// NewHandlerWithOptions creates a websocket handler.
func NewHandlerWithOptions(registry *Registry, dispatcher interfaces.EventDispatcher, opts Options) *Handler {
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		opts:       opts,
	}
}

// HandleWebSocket upgrades the request and starts the connection pumps.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	wsConn := NewConnection(conn)
	if err := h.registry.Register(wsConn); err != nil {
		log.WithError(err).Error("failed to register connection")
		_ = wsConn.Close()
		return
	}

	log.WithFields(log.Fields{
		"conn_id":     wsConn.ID(),
		"remote_addr": r.RemoteAddr,
	}).Info("websocket connection accepted")

	go h.handleConnection(wsConn)
}

// ServeHTTP lets the handler be mounted directly on a mux.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleWebSocket(w, r)
}

func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
		log.WithFields(log.Fields{
			"conn_id":     conn.ID(),
			"client_type": conn.ClientType(),
		}).Info("websocket connection closed")
	}()

	conn.conn.SetReadLimit(h.opts.MaxFrameSize)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithField("conn_id", conn.ID()).WithError(err).Debug("websocket read failed")
			}
			return
		}

		// Any frame counts as liveness; devices may not answer pings promptly
		// while the sensor is busy.
		_ = conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))

		if messageType != websocket.TextMessage {
			continue
		}
		h.dispatcher.Dispatch(conn.ctx, conn, data)
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-conn.ctx.Done():
			return
		}
	}
}
