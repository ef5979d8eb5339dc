package mail

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const sendTimeout = 30 * time.Second

// Queue hands messages to a background sender so callers on the event loop
// never wait for the mail provider.
type Queue struct {
	next   Mailer
	ch     chan *Message
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

var _ Mailer = (*Queue)(nil)

// NewQueue starts a sender goroutine delivering through next.
func NewQueue(next Mailer, size int) *Queue {
	q := &Queue{
		next: next,
		ch:   make(chan *Message, size),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Send enqueues msg. It fails only when the queue is full or closed.
func (q *Queue) Send(ctx context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for the queued ones to go out.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	<-q.done
	return nil
}

func (q *Queue) run() {
	defer close(q.done)
	for msg := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := q.next.Send(ctx, msg); err != nil {
			log.WithFields(log.Fields{
				"to":      msg.To,
				"subject": msg.Subject,
			}).WithError(err).Error("failed to send email")
		}
		cancel()
	}
}
