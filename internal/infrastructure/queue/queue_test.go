package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"jan-server/services/chat-api/internal/domain/inbox"
)

type recordingSink struct {
	mu    sync.Mutex
	items []inbox.Notification
	err   error
}

func (s *recordingSink) Deliver(_ context.Context, n inbox.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, n)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func testInstrumenter(t *testing.T) *Instrumenter {
	t.Helper()
	instr, err := NewInstrumenterWith(tracenoop.NewTracerProvider().Tracer("test"), metricnoop.NewMeterProvider().Meter("test"), "chat_api")
	require.NoError(t, err)
	return instr
}

func TestBackgroundQueue_EnqueueFailsWhenFull(t *testing.T) {
	q := NewBackgroundQueue(&recordingSink{}, nil, Config{Size: 1, WorkerCount: 1}, zerolog.Nop())

	require.NoError(t, q.Enqueue(context.Background(), inbox.Notification{ID: "ntf_1"}))
	assert.ErrorIs(t, q.Enqueue(context.Background(), inbox.Notification{ID: "ntf_2"}), ErrQueueFull)
}

func TestBackgroundQueue_RunDeliversAndDrains(t *testing.T) {
	sink := &recordingSink{}
	q := NewBackgroundQueue(sink, testInstrumenter(t), Config{Size: 16, WorkerCount: 2}, zerolog.Nop())

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), inbox.Notification{ID: "ntf", UserID: "bob", MessageID: "msg"}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count() == 5 }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.ErrorIs(t, q.Enqueue(context.Background(), inbox.Notification{ID: "late"}), ErrQueueClosed)
}

func TestBackgroundQueue_SinkErrorsAreSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("store down")}
	q := NewBackgroundQueue(sink, nil, Config{Size: 4, WorkerCount: 1}, zerolog.Nop())
	require.NoError(t, q.Enqueue(context.Background(), inbox.Notification{ID: "ntf_1"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestHandleInboxNotify(t *testing.T) {
	sink := &recordingSink{}
	n := inbox.Notification{ID: "ntf_1", UserID: "bob", MessageID: "msg_1", Preview: "hello"}

	task, err := NewInboxNotifyTask(n)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeInboxNotify, task.Type())

	require.NoError(t, HandleInboxNotify(context.Background(), task, sink, testInstrumenter(t)))
	require.Equal(t, 1, sink.count())
	assert.Equal(t, n.Preview, sink.items[0].Preview)

	err = HandleInboxNotify(context.Background(), asynq.NewTask(TaskTypeInboxNotify, []byte("not json")), sink, nil)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestDeliveryOutcome(t *testing.T) {
	assert.Equal(t, "delivered", deliveryOutcome(nil))
	assert.Equal(t, "timeout", deliveryOutcome(fmt.Errorf("store: %w", context.DeadlineExceeded)))
	assert.Equal(t, "failed", deliveryOutcome(errors.New("boom")))
}

func TestInstrumenter_DeliverReturnsSinkError(t *testing.T) {
	instr := testInstrumenter(t)
	want := errors.New("store down")
	got := instr.Deliver(context.Background(), StageWorker, inbox.Notification{ID: "ntf_1"}, func(context.Context) error {
		return want
	})
	assert.ErrorIs(t, got, want)
}
