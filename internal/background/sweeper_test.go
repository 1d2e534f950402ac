package background

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int64
}

func (c *countingSweeper) SweepExpired(ctx context.Context) (int64, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestSessionSweeper_RunsImmediatelyAndOnTicks(t *testing.T) {
	svc := &countingSweeper{}
	sweeper := NewSessionSweeper(svc, slog.Default(), 20*time.Millisecond)

	done := make(chan struct{})
	go func() {
		sweeper.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return svc.calls.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond, "startup sweep plus at least two ticks")

	sweeper.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSessionSweeper_StopsOnContextCancel(t *testing.T) {
	svc := &countingSweeper{}
	sweeper := NewSessionSweeper(svc, slog.Default(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not exit on context cancel")
	}

	assert.EqualValues(t, 1, svc.calls.Load(), "only the startup sweep ran")
}
