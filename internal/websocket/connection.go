package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

var _ interfaces.Connection = (*Connection)(nil)

const (
	writeBuffer  = 100
	writeTimeout = 5 * time.Second
)

// Connection wraps one client socket. All writes go through a single writer
// goroutine so gorilla never sees concurrent writers.
type Connection struct {
	id         string
	conn       *websocket.Conn
	writeCh    chan []byte
	clientType string
	source     string
	identified bool
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	mu         sync.RWMutex
}

// NewConnection wraps conn and starts its writer.
func NewConnection(conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      uuid.NewString(),
		conn:    conn,
		writeCh: make(chan []byte, writeBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.fail(err)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.fail(err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) fail(err error) {
	log.WithFields(log.Fields{
		"conn_id":     c.id,
		"client_type": c.ClientType(),
	}).WithError(err).Debug("websocket write failed, closing connection")
	_ = c.Close()
}

// WriteJSON marshals v and queues it for the writer.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close stops the writer and closes the socket. Safe to call repeatedly.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Connection) ID() string {
	return c.id
}

// SetIdentity records the declared identity. clientType is normalized to
// lowercase without surrounding space.
func (c *Connection) SetIdentity(clientType, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clientType = types.NormalizeClientType(clientType)
	c.source = source
	c.identified = true
}

func (c *Connection) IsIdentified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identified
}

func (c *Connection) ClientType() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientType
}

func (c *Connection) Source() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source
}
