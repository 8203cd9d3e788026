package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentora/sentora/internal/alerting"
	"github.com/sentora/sentora/pkg/types"
)

// AgentLister is the registry view the liveness worker walks.
type AgentLister interface {
	ListAgents(ctx context.Context) ([]types.AgentRecord, error)
}

// Lifecycle applies one evaluation cycle's transitions.
type Lifecycle interface {
	Apply(ctx context.Context, cycle alerting.Cycle) error
}

// LivenessWorkerConfig holds configuration for the liveness worker.
type LivenessWorkerConfig struct {
	// Interval between registry sweeps.
	Interval time.Duration

	// OfflineAfter is the last-seen age past which an agent is inactive.
	OfflineAfter time.Duration
}

// LivenessWorker sweeps the agent registry and raises AGENT_INACTIVE for
// agents that stopped reporting. Sweep cycles carry only liveness evidence;
// metric alerts are untouched.
type LivenessWorker struct {
	agents    AgentLister
	lifecycle Lifecycle
	config    LivenessWorkerConfig
	logger    *slog.Logger
	stopCh    chan struct{}
}

// NewLivenessWorker creates a liveness worker.
func NewLivenessWorker(agents AgentLister, lifecycle Lifecycle, config LivenessWorkerConfig, logger *slog.Logger) *LivenessWorker {
	return &LivenessWorker{
		agents:    agents,
		lifecycle: lifecycle,
		config:    config,
		logger:    logger.With("component", "liveness_worker"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the worker in a goroutine.
func (w *LivenessWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the worker to stop.
func (w *LivenessWorker) Stop() {
	close(w.stopCh)
}

func (w *LivenessWorker) run(ctx context.Context) {
	w.logger.Info("liveness worker started",
		"interval", w.config.Interval,
		"offline_after", w.config.OfflineAfter,
	)

	// Run immediately on start
	w.runOnce(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("liveness worker stopping (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("liveness worker stopping (stop signal)")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *LivenessWorker) runOnce(ctx context.Context) {
	agents, err := w.agents.ListAgents(ctx)
	if err != nil {
		w.logger.Error("failed to list agents", "error", err)
		return
	}

	now := time.Now().UTC()
	inactive := 0
	for _, agent := range agents {
		cycle := alerting.Cycle{
			AgentName: agent.AgentName,
			Hostname:  agent.Hostname,
			Sweep:     true,
			Now:       now,
		}

		age := now.Sub(agent.LastSeen)
		if age > w.config.OfflineAfter {
			inactive++
			cycle.Observed = []types.Condition{{
				AgentName: agent.AgentName,
				Kind:      types.ConditionAgentInactive,
				Severity:  types.SeverityCritical,
				Message: fmt.Sprintf("No report from %s for %s (last seen %s)",
					agent.AgentName, age.Round(time.Second), agent.LastSeen.Format(time.RFC3339)),
				Value: age.Seconds(),
			}}
		}

		if err := w.lifecycle.Apply(ctx, cycle); err != nil {
			w.logger.Error("liveness cycle failed", "agent", agent.AgentName, "error", err)
		}
	}

	w.logger.Debug("liveness sweep complete",
		"agents", len(agents),
		"inactive", inactive,
	)
}
