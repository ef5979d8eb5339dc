package hub

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"attendancehub/pkg/interfaces"
)

var (
	_ interfaces.EventDispatcher = (*Hub)(nil)
	_ interfaces.Executor        = (*Hub)(nil)
)

const (
	inboundBuffer = 1000
	taskBuffer    = 100
)

type inboundFrame struct {
	conn interfaces.Connection
	data []byte
}

type namedTask struct {
	name string
	run  interfaces.Task
}

// Hub is the event loop. Inbound frames and scheduled tasks are queued here
// and executed one at a time on a single goroutine, so handlers never run
// concurrently with each other.
type Hub struct {
	inboundChannel  chan inboundFrame
	taskChannel     chan namedTask
	shutdownChannel chan struct{}
	done            chan struct{}

	dispatcher interfaces.EventDispatcher

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub that hands inbound frames to dispatcher.
func NewHub(dispatcher interfaces.EventDispatcher) *Hub {
	return &Hub{
		inboundChannel:  make(chan inboundFrame, inboundBuffer),
		taskChannel:     make(chan namedTask, taskBuffer),
		shutdownChannel: make(chan struct{}),
		done:            make(chan struct{}),
		dispatcher:      dispatcher,
	}
}

// Start runs the loop until Stop or ctx is cancelled.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	h.running = true

	log.Info("starting event hub")
	go h.run(ctx)

	return nil
}

// Stop ends the loop and waits for the item in progress to finish. Queued
// items are discarded.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	log.Info("stopping event hub")
	<-h.done
	return nil
}

// Running reports whether the loop is accepting work.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Dispatch queues a raw frame for the loop. Frames arriving while the queue
// is full are dropped.
func (h *Hub) Dispatch(ctx context.Context, conn interfaces.Connection, data []byte) {
	if err := h.submitFrame(inboundFrame{conn: conn, data: data}); err != nil {
		log.WithFields(log.Fields{
			"conn_id":     conn.ID(),
			"client_type": conn.ClientType(),
		}).WithError(err).Warn("dropping inbound frame")
	}
}

func (h *Hub) submitFrame(frame inboundFrame) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.inboundChannel <- frame:
		return nil
	default:
		return ErrInboundChannelFull
	}
}

// Execute queues task to run on the loop.
func (h *Hub) Execute(name string, task interfaces.Task) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.taskChannel <- namedTask{name: name, run: task}:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrTaskChannelFull, name)
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer log.Info("event hub stopped")

	for {
		select {
		case frame := <-h.inboundChannel:
			h.safely("dispatch", func() {
				h.dispatcher.Dispatch(ctx, frame.conn, frame.data)
			})

		case task := <-h.taskChannel:
			log.WithField("task", task.name).Debug("running task")
			h.safely(task.name, func() {
				task.run(ctx)
			})

		case <-h.shutdownChannel:
			return

		case <-ctx.Done():
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			return
		}
	}
}

// safely keeps one failing handler from taking down the loop.
func (h *Hub) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"item":  name,
				"panic": r,
			}).Error("recovered from panic in event hub")
		}
	}()
	fn()
}
