// Package testutil holds fakes shared by package tests.
package testutil

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

var _ interfaces.Connection = (*FakeConn)(nil)

// ErrFakeClosed is returned by writes to a closed FakeConn.
var ErrFakeClosed = errors.New("fake connection closed")

// FakeConn records every message written to it as its JSON round trip, the
// same bytes a real client would receive.
type FakeConn struct {
	id         string
	mu         sync.Mutex
	clientType string
	source     string
	identified bool
	closed     bool
	messages   []types.RawMessage
	notify     chan struct{}
}

// NewFakeConn returns an unidentified fake connection.
func NewFakeConn() *FakeConn {
	return &FakeConn{id: uuid.NewString(), notify: make(chan struct{}, 1000)}
}

// NewIdentifiedConn returns a fake connection that already sent identify.
func NewIdentifiedConn(clientType, source string) *FakeConn {
	c := NewFakeConn()
	c.SetIdentity(clientType, source)
	return c
}

func (c *FakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrFakeClosed
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg types.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	c.messages = append(c.messages, msg)

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *FakeConn) ID() string { return c.id }

func (c *FakeConn) ClientType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientType
}

func (c *FakeConn) Source() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

func (c *FakeConn) IsIdentified() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identified
}

func (c *FakeConn) SetIdentity(clientType, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientType = types.NormalizeClientType(clientType)
	c.source = source
	c.identified = true
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Messages returns a copy of everything written so far.
func (c *FakeConn) Messages() []types.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.RawMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Events returns the event names written so far, in order.
func (c *FakeConn) Events() []string {
	var events []string
	for _, m := range c.Messages() {
		events = append(events, m.Event)
	}
	return events
}

// Last returns the most recent message with the given event.
func (c *FakeConn) Last(event string) (types.RawMessage, bool) {
	msgs := c.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Event == event {
			return msgs[i], true
		}
	}
	return types.RawMessage{}, false
}

// Feedback decodes the most recent message with the given event as a
// feedback payload.
func (c *FakeConn) Feedback(event string) (types.Feedback, bool) {
	msg, ok := c.Last(event)
	if !ok {
		return types.Feedback{}, false
	}
	var fb types.Feedback
	if err := json.Unmarshal(msg.Payload, &fb); err != nil {
		return types.Feedback{}, false
	}
	return fb, true
}

// WaitFor blocks until a message with event arrives or timeout passes.
func (c *FakeConn) WaitFor(event string, timeout time.Duration) (types.RawMessage, bool) {
	deadline := time.After(timeout)
	for {
		if msg, ok := c.Last(event); ok {
			return msg, true
		}
		select {
		case <-c.notify:
		case <-deadline:
			return types.RawMessage{}, false
		}
	}
}

// Reset forgets recorded messages.
func (c *FakeConn) Reset() {
	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()
}
