// Package collector is the batch-mode analytics forwarder used by the
// indexer: events accumulate in memory and flush to Kafka in bulk, by
// size or by timer, whichever fires first.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/briarshard/shardsearch/pkg/kafka"
)

// BatchCollector buffers events and flushes them with PublishAll.
type BatchCollector struct {
	producer *kafka.Producer
	logger   *slog.Logger
	done     chan struct{}

	mu       sync.Mutex
	buffer   []kafka.Message
	capacity int
	interval time.Duration
}

// NewBatchCollector flushes at batchSize events (default 100) or every
// interval (default 5s).
func NewBatchCollector(producer *kafka.Producer, batchSize int, interval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &BatchCollector{
		producer: producer,
		logger:   slog.Default().With("component", "batch-collector"),
		done:     make(chan struct{}),
		buffer:   make([]kafka.Message, 0, batchSize),
		capacity: batchSize,
		interval: interval,
	}
}

// Start launches the timer-driven flush loop.
func (bc *BatchCollector) Start(ctx context.Context) {
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				bc.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bc.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	bc.logger.Info("batch collector started",
		"batch_size", bc.capacity, "interval", bc.interval)
}

// Track buffers one event, triggering an early flush when the buffer
// fills.
func (bc *BatchCollector) Track(key string, payload any) {
	bc.mu.Lock()
	bc.buffer = append(bc.buffer, kafka.Message{Key: key, Payload: payload})
	full := len(bc.buffer) >= bc.capacity
	bc.mu.Unlock()

	if full {
		go bc.flush(context.Background())
	}
}

// Pending reports how many events are currently buffered.
func (bc *BatchCollector) Pending() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

// Close waits for the flush loop to finish its shutdown flush.
func (bc *BatchCollector) Close() {
	<-bc.done
}

func (bc *BatchCollector) flush(ctx context.Context) {
	bc.mu.Lock()
	if len(bc.buffer) == 0 {
		bc.mu.Unlock()
		return
	}
	batch := bc.buffer
	bc.buffer = make([]kafka.Message, 0, bc.capacity)
	bc.mu.Unlock()

	if err := bc.producer.PublishAll(ctx, batch); err != nil {
		bc.logger.Error("flush failed", "events", len(batch), "error", err)
		// Requeue, bounded at three batches; overflow is dropped.
		bc.mu.Lock()
		bc.buffer = append(batch, bc.buffer...)
		if limit := bc.capacity * 3; len(bc.buffer) > limit {
			bc.logger.Warn("requeue overflow", "dropped", len(bc.buffer)-limit)
			bc.buffer = bc.buffer[:limit]
		}
		bc.mu.Unlock()
		return
	}
	bc.logger.Debug("flushed", "events", len(batch))
}
