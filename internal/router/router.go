package router

import (
	"context"
	"encoding/json"
	"errors"

	log "github.com/sirupsen/logrus"

	"attendancehub/internal/websocket"
	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

var _ interfaces.EventDispatcher = (*Router)(nil)

// HandlerFunc handles one decoded and validated payload. The connection is
// always identified with the source the event requires.
type HandlerFunc func(ctx context.Context, conn interfaces.Connection, payload types.Payload)

// DeviceStore is the slice of the store identify needs.
type DeviceStore interface {
	DeviceConnectionExists(ctx context.Context, deviceLocation string) (bool, error)
	CreateDeviceConnection(ctx context.Context, deviceLocation string) error
}

// Router decodes inbound frames, enforces who may send what and dispatches
// to the registered handlers. Nothing it rejects closes the connection.
type Router struct {
	registry    *websocket.Registry
	devices     DeviceStore
	handlers    map[string]HandlerFunc
	rateLimiter *RateLimiter
}

// NewRouter creates a router with an empty dispatch table.
func NewRouter(registry *websocket.Registry, devices DeviceStore) *Router {
	return &Router{
		registry:    registry,
		devices:     devices,
		handlers:    make(map[string]HandlerFunc),
		rateLimiter: NewRateLimiter(),
	}
}

// Handle registers fn for an inbound event. identify is handled by the
// router itself and cannot be overridden.
func (r *Router) Handle(event string, fn HandlerFunc) {
	if event == types.EventIdentify {
		panic("router: identify is handled inline")
	}
	if !types.IsKnownEvent(event) {
		panic("router: no payload type for event " + event)
	}
	r.handlers[event] = fn
}

// RateLimiter exposes the limiter so its cleanup can be scheduled.
func (r *Router) RateLimiter() *RateLimiter {
	return r.rateLimiter
}

// Dispatch handles one raw frame from conn.
func (r *Router) Dispatch(ctx context.Context, conn interfaces.Connection, data []byte) {
	logger := log.WithFields(log.Fields{
		"conn_id":     conn.ID(),
		"client_type": conn.ClientType(),
	})

	if !r.rateLimiter.Allow(conn.ID()) {
		logger.Warn(ErrRateLimitExceeded.Error())
		return
	}

	var msg types.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.WithError(err).Warn("dropping malformed frame")
		return
	}
	logger = logger.WithField("event", msg.Event)

	if msg.Event == types.EventIdentify {
		r.identify(ctx, conn, msg.Payload, logger)
		return
	}

	if err := r.authorize(conn, msg.Event); err != nil {
		logger.WithError(err).Warn("dropping event")
		return
	}

	handler, ok := r.handlers[msg.Event]
	if !ok {
		logger.Warn(ErrUnknownEvent.Error())
		return
	}

	payload, err := types.DecodePayload(msg.Event, msg.Payload)
	if err != nil {
		r.rejectPayload(conn, msg.Event, err, logger)
		return
	}

	logger.Debug("dispatching event")
	handler(ctx, conn, payload)
}

// authorize checks the sender side for an event. Unknown events pass so the
// dispatch table lookup can report them.
func (r *Router) authorize(conn interfaces.Connection, event string) error {
	if !types.IsKnownEvent(event) {
		return nil
	}
	if !conn.IsIdentified() {
		return ErrNotIdentified
	}
	want := types.SourceWebApp
	if types.IsResponseEvent(event) {
		want = types.SourceHardware
	}
	if conn.Source() != want {
		return ErrWrongSource
	}
	return nil
}

// rejectPayload answers an invalid web request with error feedback. Invalid
// device responses are only logged.
func (r *Router) rejectPayload(conn interfaces.Connection, event string, err error, logger *log.Entry) {
	logger.WithError(err).Warn("invalid payload")
	if types.IsResponseEvent(event) {
		return
	}

	message := "Invalid request payload"
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		message = verr.Error()
	}
	feedback := types.NewMessage(types.FeedbackEventFor(event), types.Feedback{Error: true, Message: message})
	r.registry.BroadcastMatching(websocket.ByClient(conn.ClientType(), types.SourceWebApp), feedback)
}

func (r *Router) identify(ctx context.Context, conn interfaces.Connection, raw json.RawMessage, logger *log.Entry) {
	payload, err := types.DecodePayload(types.EventIdentify, raw)
	if err != nil {
		logger.WithError(err).Warn("invalid identify payload")
		return
	}
	p := payload.(*types.IdentifyPayload)

	if err := r.registry.Identify(conn, p.ClientType, p.Source); err != nil {
		logger.WithError(err).Error("failed to identify connection")
		return
	}

	if p.Source != types.SourceHardware || r.devices == nil {
		return
	}

	location := conn.ClientType()
	exists, err := r.devices.DeviceConnectionExists(ctx, location)
	if err != nil {
		logger.WithError(err).Error("failed to look up device connection")
		return
	}
	if exists {
		return
	}
	if err := r.devices.CreateDeviceConnection(ctx, location); err != nil {
		logger.WithError(err).Error("failed to record device connection")
		return
	}
	logger.WithField("device_location", location).Info("new device location recorded")
}
