package worker

import (
	"context"
	"log/slog"
	"time"
)

// ReportPruner deletes reports older than a cutoff.
type ReportPruner interface {
	PruneReports(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionWorkerConfig holds configuration for the retention worker.
type RetentionWorkerConfig struct {
	// Interval between prune passes.
	Interval time.Duration

	// Retention is the rolling window of reports to keep.
	Retention time.Duration
}

// RetentionWorker evicts metric reports older than the retention window.
// Agent records and alerts are never pruned.
type RetentionWorker struct {
	pruner ReportPruner
	config RetentionWorkerConfig
	logger *slog.Logger
	stopCh chan struct{}
}

// NewRetentionWorker creates a retention worker.
func NewRetentionWorker(pruner ReportPruner, config RetentionWorkerConfig, logger *slog.Logger) *RetentionWorker {
	return &RetentionWorker{
		pruner: pruner,
		config: config,
		logger: logger.With("component", "retention_worker"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the worker in a goroutine.
func (w *RetentionWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the worker to stop.
func (w *RetentionWorker) Stop() {
	close(w.stopCh)
}

func (w *RetentionWorker) run(ctx context.Context) {
	w.logger.Info("retention worker started",
		"interval", w.config.Interval,
		"retention", w.config.Retention,
	)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("retention worker stopping (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("retention worker stopping (stop signal)")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RetentionWorker) runOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.config.Retention)
	pruned, err := w.pruner.PruneReports(ctx, cutoff)
	if err != nil {
		w.logger.Error("failed to prune reports", "error", err)
		return
	}
	if pruned > 0 {
		w.logger.Info("pruned old reports", "count", pruned, "cutoff", cutoff)
	}
}
