package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

const defaultQueueSize = 256

var (
	ErrQueueFull       = errors.New("event queue is full")
	ErrPublisherClosed = errors.New("publisher is closed")
)

// AsyncPublisher queues events and writes them to the wrapped Publisher from
// a background goroutine, so callers never wait on the broker. Events that
// do not fit in the queue are rejected with ErrQueueFull.
type AsyncPublisher struct {
	next  Publisher
	log   *zap.Logger
	queue chan OrderEvent
	done  chan struct{}

	mu       sync.RWMutex
	closed   bool
	closeErr error
	once     sync.Once
}

func NewAsyncPublisher(next Publisher, log *zap.Logger, size int) *AsyncPublisher {
	if size <= 0 {
		size = defaultQueueSize
	}
	p := &AsyncPublisher{
		next:  next,
		log:   log,
		queue: make(chan OrderEvent, size),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues the event. ctx is not used: the event outlives the
// request that produced it.
func (p *AsyncPublisher) Publish(_ context.Context, event OrderEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for event := range p.queue {
		if err := p.next.Publish(context.Background(), event); err != nil {
			p.log.Warn("failed to publish order event",
				zap.String("event", event.Event),
				zap.String("order_id", event.OrderID),
				zap.Error(err),
			)
		}
	}
}

// Close stops accepting events, waits for the queued ones to be written and
// closes the wrapped Publisher.
func (p *AsyncPublisher) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		<-p.done
		p.closeErr = p.next.Close()
	})
	return p.closeErr
}
