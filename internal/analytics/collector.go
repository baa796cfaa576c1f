package analytics

import (
	"context"
	"log/slog"

	"github.com/briarshard/shardsearch/pkg/kafka"
)

// Collector forwards events to the analytics topic through a bounded
// buffer, dropping rather than blocking when the buffer is full — a
// slow broker must never slow a search down.
type Collector struct {
	producer *kafka.Producer
	events   chan any
	done     chan struct{}
	logger   *slog.Logger
}

// NewCollector builds a collector with the given buffer capacity
// (10000 when non-positive).
func NewCollector(producer *kafka.Producer, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		events:   make(chan any, bufferSize),
		done:     make(chan struct{}),
		logger:   slog.Default().With("component", "analytics-collector"),
	}
}

// Start launches the forwarding goroutine. It returns immediately; the
// goroutine drains whatever is buffered when ctx is cancelled, then
// exits.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.events:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drain()
				return
			}
		}
	}()
	c.logger.Info("collector started", "buffer", cap(c.events))
}

// Track enqueues an event, dropping it if the buffer is full.
func (c *Collector) Track(event any) {
	select {
	case c.events <- event:
	default:
		c.logger.Warn("event dropped, buffer full")
	}
}

// Close stops accepting events and waits for the forwarder to finish.
func (c *Collector) Close() {
	close(c.events)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event any) {
	if err := c.producer.Publish(ctx, kafka.Message{Key: "analytics", Payload: event}); err != nil {
		c.logger.Error("event publish failed", "error", err)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}
