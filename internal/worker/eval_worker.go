// Package worker provides background workers for the monitoring server.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentora/sentora/pkg/types"
)

// ReportEvaluator runs threshold evaluation for one report and applies the
// resulting lifecycle transitions. Implemented by the service layer so the
// queued and inline paths share one pipeline.
type ReportEvaluator interface {
	EvaluateReport(ctx context.Context, report *types.MetricsReport) error
}

// ReportQueue is the pending-evaluation queue the worker drains.
type ReportQueue interface {
	Pop(ctx context.Context, maxReports int) ([]types.MetricsReport, error)
	Len(ctx context.Context) (int64, error)
}

// EvalWorkerConfig holds configuration for the evaluation worker.
type EvalWorkerConfig struct {
	// Interval between drain passes when the queue runs empty.
	Interval time.Duration

	// BatchSize is the number of reports drained per pass.
	BatchSize int
}

// DefaultEvalWorkerConfig returns sensible defaults.
func DefaultEvalWorkerConfig() EvalWorkerConfig {
	return EvalWorkerConfig{
		Interval:  2 * time.Second,
		BatchSize: 500,
	}
}

// EvalWorker drains the evaluation queue and runs reports through the
// evaluation pipeline.
type EvalWorker struct {
	queue     ReportQueue
	evaluator ReportEvaluator
	config    EvalWorkerConfig
	logger    *slog.Logger
	stopCh    chan struct{}
}

// NewEvalWorker creates an evaluation worker.
func NewEvalWorker(queue ReportQueue, evaluator ReportEvaluator, config EvalWorkerConfig, logger *slog.Logger) *EvalWorker {
	return &EvalWorker{
		queue:     queue,
		evaluator: evaluator,
		config:    config,
		logger:    logger.With("component", "eval_worker"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the worker in a goroutine.
func (w *EvalWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the worker to stop.
func (w *EvalWorker) Stop() {
	close(w.stopCh)
}

func (w *EvalWorker) run(ctx context.Context) {
	w.logger.Info("eval worker started",
		"interval", w.config.Interval,
		"batch_size", w.config.BatchSize,
	)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("eval worker stopping (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("eval worker stopping (stop signal)")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *EvalWorker) runOnce(ctx context.Context) {
	// Keep draining full batches; back off to the ticker once the queue
	// comes up short.
	for {
		reports, err := w.queue.Pop(ctx, w.config.BatchSize)
		if err != nil {
			w.logger.Error("failed to pop reports", "error", err)
			return
		}
		if len(reports) == 0 {
			return
		}

		start := time.Now()
		evaluated := 0
		for i := range reports {
			if err := w.evaluator.EvaluateReport(ctx, &reports[i]); err != nil {
				w.logger.Error("report evaluation failed",
					"agent", reports[i].AgentName, "error", err)
				continue
			}
			evaluated++
		}
		w.logger.Debug("evaluation batch complete",
			"reports", len(reports),
			"evaluated", evaluated,
			"duration", time.Since(start),
		)

		if len(reports) < w.config.BatchSize {
			if backlog, err := w.queue.Len(ctx); err == nil && backlog > 0 {
				w.logger.Debug("evaluation queue backlog after drain", "backlog", backlog)
			}
			return
		}
	}
}
