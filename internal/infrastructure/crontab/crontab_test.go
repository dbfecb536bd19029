package crontab

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReconciler struct {
	since     time.Time
	corrected int
	err       error
	calls     atomic.Int32
}

func (s *stubReconciler) ReconcileUnread(_ context.Context, since time.Time) (int, error) {
	s.calls.Add(1)
	s.since = since
	return s.corrected, s.err
}

func TestReconcileOnce_UsesWindow(t *testing.T) {
	stub := &stubReconciler{corrected: 3}
	c := NewCrontab(stub, Config{Window: 30 * time.Minute}, zerolog.Nop())
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	assert.Equal(t, 3, c.ReconcileOnce(context.Background()))
	assert.Equal(t, fixed.Add(-30*time.Minute), stub.since)
}

func TestReconcileOnce_LogsErrors(t *testing.T) {
	stub := &stubReconciler{err: errors.New("db down")}
	c := NewCrontab(stub, Config{}, zerolog.Nop())

	assert.Zero(t, c.ReconcileOnce(context.Background()))
	assert.EqualValues(t, 1, stub.calls.Load())
}

func TestRun_RejectsInvalidSchedule(t *testing.T) {
	c := NewCrontab(&stubReconciler{}, Config{Schedule: "not a schedule"}, zerolog.Nop())
	err := c.Run(context.Background())
	require.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	stub := &stubReconciler{}
	c := NewCrontab(stub, Config{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return stub.calls.Load() >= 1 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("crontab did not stop")
	}
}
