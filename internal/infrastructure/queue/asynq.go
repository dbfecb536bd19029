package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/domain/inbox"
)

// TaskTypeInboxNotify is the asynq task type carrying one inbox notification.
const TaskTypeInboxNotify = "inbox:notify"

// NewInboxNotifyTask encodes n as an asynq task.
func NewInboxNotifyTask(n inbox.Notification) (*asynq.Task, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return asynq.NewTask(TaskTypeInboxNotify, payload), nil
}

// AsynqSink forwards notifications to Redis so any replica's worker can store them.
type AsynqSink struct {
	client    *asynq.Client
	queueName string
}

var _ Sink = (*AsynqSink)(nil)

// NewAsynqSink connects an asynq client to redisURL.
func NewAsynqSink(redisURL, queueName string) (*AsynqSink, error) {
	if redisURL == "" {
		return nil, errors.New("asynq: redis url is required")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &AsynqSink{client: asynq.NewClient(opt), queueName: queueName}, nil
}

// Deliver enqueues the notification. A task already queued for the same
// recipient and message counts as delivered.
func (s *AsynqSink) Deliver(ctx context.Context, n inbox.Notification) error {
	task, err := NewInboxNotifyTask(n)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(s.queueName),
		asynq.MaxRetry(5),
		asynq.TaskID(n.UserID+":"+n.MessageID),
		asynq.Retention(time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

func (s *AsynqSink) Close() error {
	return s.client.Close()
}

// AsynqWorker consumes inbox notification tasks and stores them.
type AsynqWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    zerolog.Logger
}

// WorkerConfig contains asynq worker configuration.
type WorkerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
}

// NewAsynqWorker builds a worker delivering every task to sink.
func NewAsynqWorker(cfg WorkerConfig, sink Sink, instr *Instrumenter, log zerolog.Logger) (*AsynqWorker, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	log = log.With().Str("component", "asynq-worker").Logger()

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.QueueName: 1},
		Logger:      &asynqLogger{log: log},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Warn().Err(err).Str("task_type", task.Type()).Msg("asynq task failed")
		}),
	})

	w := &AsynqWorker{server: srv, mux: asynq.NewServeMux(), log: log}
	w.mux.HandleFunc(TaskTypeInboxNotify, func(ctx context.Context, t *asynq.Task) error {
		return HandleInboxNotify(ctx, t, sink, instr)
	})
	return w, nil
}

// HandleInboxNotify decodes one task and hands it to sink.
func HandleInboxNotify(ctx context.Context, t *asynq.Task, sink Sink, instr *Instrumenter) error {
	var n inbox.Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
	}
	if instr == nil {
		return sink.Deliver(ctx, n)
	}
	return instr.Deliver(ctx, StageWorker, n, func(ctx context.Context) error {
		return sink.Deliver(ctx, n)
	})
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (w *AsynqWorker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	w.log.Info().Msg("asynq worker started")
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}

type asynqLogger struct {
	log zerolog.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
