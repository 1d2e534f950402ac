package background

import (
	"context"
	"log/slog"
	"time"
)

// SessionSweeper periodically purges expired and idle sessions. It backs up
// the lazy reap that validation performs, catching tokens nobody presents
// again.
type SessionSweeper struct {
	sessions SessionService
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// SessionService is the slice of the session layer the sweeper needs.
type SessionService interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// NewSessionSweeper creates a new session sweeper
func NewSessionSweeper(sessions SessionService, logger *slog.Logger, interval time.Duration) *SessionSweeper {
	return &SessionSweeper{
		sessions: sessions,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the periodic sweep until Stop is called or ctx is cancelled.
// Sweeps run synchronously on the ticker goroutine so they never overlap.
func (sw *SessionSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	// Run immediately on startup
	sw.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			sw.runSweep(ctx)
		case <-sw.stopCh:
			sw.logger.Info("session sweeper stopped")
			return
		case <-ctx.Done():
			sw.logger.Info("session sweeper context cancelled")
			return
		}
	}
}

func (sw *SessionSweeper) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := sw.sessions.SweepExpired(sweepCtx)
	if err != nil {
		sw.logger.Error("session sweep failed", slog.Any("error", err))
		return
	}

	if removed > 0 {
		sw.logger.Info("session sweep completed", slog.Int64("sessions_removed", removed))
	}
}

// Stop signals the sweeper to stop
func (sw *SessionSweeper) Stop() {
	close(sw.stopCh)
}
