package background

import (
	"context"
	"log/slog"
	"time"
)

// AttemptPurger deletes attempt rows past a cutoff
type AttemptPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionManager periodically purges aged attempt records. Lock expiry
// is deliberately NOT handled here; it is evaluated lazily on read.
type RetentionManager struct {
	attempts  AttemptPurger
	logger    *slog.Logger
	retention time.Duration
	interval  time.Duration
	stopCh    chan struct{}
}

// NewRetentionManager creates a new retention manager
func NewRetentionManager(attempts AttemptPurger, logger *slog.Logger, retention, interval time.Duration) *RetentionManager {
	return &RetentionManager{
		attempts:  attempts,
		logger:    logger,
		retention: retention,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic purge task
func (rm *RetentionManager) Start(ctx context.Context) {
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	rm.runPurge(ctx)

	for {
		select {
		case <-ticker.C:
			rm.runPurge(ctx)
		case <-rm.stopCh:
			rm.logger.Info("retention manager stopped")
			return
		case <-ctx.Done():
			rm.logger.Info("retention manager context cancelled")
			return
		}
	}
}

// runPurge removes attempt records older than the retention window
func (rm *RetentionManager) runPurge(ctx context.Context) {
	purgeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-rm.retention)

	rowsDeleted, err := rm.attempts.DeleteOlderThan(purgeCtx, cutoff)
	if err != nil {
		rm.logger.Error("failed to purge aged attempt records", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		rm.logger.Info("attempt record purge completed",
			slog.Int64("rows_deleted", rowsDeleted),
			slog.Time("cutoff", cutoff))
	}
}

// Stop signals the retention manager to stop
func (rm *RetentionManager) Stop() {
	close(rm.stopCh)
}
