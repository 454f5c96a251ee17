// Package task defines the lifecycle shared by the daemon's long-running
// components.
package task

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultCleanupTimeout bounds OnCancel when Execute is given no timeout.
const DefaultCleanupTimeout = 5 * time.Second

// Task is a component run by the daemon until its context is cancelled.
type Task interface {
	// Name identifies the task in logs.
	Name() string
	// Run blocks until ctx is cancelled or the task fails.
	Run(ctx context.Context) error
	// OnCancel releases what the task owns after Run returned because of
	// cancellation. ctx bounds the cleanup.
	OnCancel(ctx context.Context) error
}

// Execute runs t and, when Run ended because ctx was cancelled, runs its
// cancellation cleanup bounded by cleanupTimeout. A Run error that is not
// caused by cancellation is returned as is, without cleanup by OnCancel.
func Execute(ctx context.Context, t Task, log *zap.Logger, cleanupTimeout time.Duration) error {
	if cleanupTimeout <= 0 {
		cleanupTimeout = DefaultCleanupTimeout
	}
	log = log.With(zap.String("task", t.Name()))
	log.Debug("task started")

	err := t.Run(ctx)
	if ctx.Err() == nil {
		if err != nil {
			log.Error("task terminated", zap.Error(err))
			return err
		}
		log.Info("task finished")
		return nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("task returned error while cancelling", zap.Error(err))
	}

	cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if cerr := t.OnCancel(cleanupCtx); cerr != nil {
		log.Error("task cleanup failed", zap.Error(cerr))
		return cerr
	}
	log.Info("task cancelled")
	return nil
}
