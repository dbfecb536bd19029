package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/domain/inbox"
)

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrQueueClosed = errors.New("notification queue is closed")
)

// Sink is where a worker hands each notification.
type Sink interface {
	Deliver(ctx context.Context, n inbox.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n inbox.Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n inbox.Notification) error {
	return f(ctx, n)
}

// Config contains background queue configuration.
type Config struct {
	Size        int
	WorkerCount int
	TaskTimeout time.Duration
	// Stage labels deliveries in metrics and spans. Defaults to StageLocal.
	Stage string
}

// BackgroundQueue is a bounded in-process queue drained by a worker pool.
// Enqueue never blocks the caller.
type BackgroundQueue struct {
	jobs   chan inbox.Notification
	sink   Sink
	instr  *Instrumenter
	cfg    Config
	log    zerolog.Logger
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

var _ conversation.NotificationEnqueuer = (*BackgroundQueue)(nil)

// NewBackgroundQueue creates a queue. instr may be nil.
func NewBackgroundQueue(sink Sink, instr *Instrumenter, cfg Config, log zerolog.Logger) *BackgroundQueue {
	if cfg.Size <= 0 {
		cfg.Size = 1024
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Second
	}
	if cfg.Stage == "" {
		cfg.Stage = StageLocal
	}
	return &BackgroundQueue{
		jobs:  make(chan inbox.Notification, cfg.Size),
		sink:  sink,
		instr: instr,
		cfg:   cfg,
		log:   log.With().Str("component", "notification-queue").Logger(),
	}
}

// Enqueue implements conversation.NotificationEnqueuer.
func (q *BackgroundQueue) Enqueue(ctx context.Context, n inbox.Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- n:
		if q.instr != nil {
			q.instr.queuedDelta(ctx, 1)
		}
		return nil
	default:
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is cancelled. Queued
// notifications are drained before it returns.
func (q *BackgroundQueue) Run(ctx context.Context) error {
	q.log.Info().Int("worker_count", q.cfg.WorkerCount).Int("size", q.cfg.Size).Msg("starting notification workers")
	for i := 0; i < q.cfg.WorkerCount; i++ {
		q.wg.Add(1)
		go func(id int) {
			defer q.wg.Done()
			q.work(id)
		}(i + 1)
	}

	<-ctx.Done()
	q.Stop()
	return nil
}

// Stop refuses new notifications and waits for the workers to drain the queue.
func (q *BackgroundQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.log.Info().Msg("notification workers stopped")
	case <-time.After(30 * time.Second):
		q.log.Warn().Msg("notification queue shutdown timed out")
	}
}

func (q *BackgroundQueue) work(id int) {
	log := q.log.With().Int("worker_id", id).Logger()
	for n := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.cfg.TaskTimeout)
		err := q.process(ctx, n)
		cancel()
		if err != nil {
			log.Warn().Err(err).
				Str("user_id", n.UserID).
				Str("message_id", n.MessageID).
				Msg("failed to deliver inbox notification")
		}
	}
}

func (q *BackgroundQueue) process(ctx context.Context, n inbox.Notification) error {
	if q.instr == nil {
		return q.sink.Deliver(ctx, n)
	}
	q.instr.queuedDelta(ctx, -1)
	return q.instr.Deliver(ctx, q.cfg.Stage, n, func(ctx context.Context) error {
		return q.sink.Deliver(ctx, n)
	})
}
