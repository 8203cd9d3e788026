// Package service contains the business logic for the monitoring server.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentora/sentora/internal/alerting"
	"github.com/sentora/sentora/internal/store"
	"github.com/sentora/sentora/pkg/types"
)

// Store defines the storage interface for the service layer.
type Store interface {
	InsertReport(ctx context.Context, report *types.MetricsReport) (bool, error)
	GetHistory(ctx context.Context, agentName string, since time.Time) ([]types.MetricsReport, error)

	UpsertAgent(ctx context.Context, name, hostname string, seenAt time.Time) error
	GetAgent(ctx context.Context, name string) (*types.AgentRecord, error)
	ListAgents(ctx context.Context) ([]types.AgentRecord, error)
	UpdateThresholdOverrides(ctx context.Context, name string, overrides *types.Thresholds) error

	ListAlerts(ctx context.Context, filter types.AlertFilter) ([]types.Alert, error)
	GetAlertStats(ctx context.Context) (*types.AlertStats, error)
}

// Queue is the optional asynchronous evaluation handoff.
type Queue interface {
	Push(ctx context.Context, report *types.MetricsReport) error
}

// Evaluator runs threshold rules over one report.
type Evaluator interface {
	Evaluate(report *types.MetricsReport, th types.Thresholds) []types.Condition
}

// Lifecycle applies one evaluation cycle's transitions.
type Lifecycle interface {
	Apply(ctx context.Context, cycle alerting.Cycle) error
	Acknowledge(ctx context.Context, id, acknowledgedBy string) error
}

// LivenessWindows classifies agents by last-seen age.
type LivenessWindows struct {
	DegradedAfter time.Duration
	OfflineAfter  time.Duration
}

// Service provides business logic operations.
type Service struct {
	store      Store
	evaluator  Evaluator
	lifecycle  Lifecycle
	defaults   types.Thresholds
	liveness   LivenessWindows
	logger     *slog.Logger

	queue Queue // Optional Redis queue; nil means inline evaluation
}

// NewService creates a new service.
func NewService(st Store, evaluator Evaluator, lifecycle Lifecycle, defaults types.Thresholds, liveness LivenessWindows, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		evaluator: evaluator,
		lifecycle: lifecycle,
		defaults:  defaults,
		liveness:  liveness,
		logger:    logger.With("component", "service"),
	}
}

// SetQueue enables asynchronous evaluation through the Redis queue. When
// unset, ingestion evaluates inline before acknowledging.
func (s *Service) SetQueue(q Queue) {
	s.queue = q
}

// =============================================================================
// INGESTION
// =============================================================================

// IngestReport validates, persists and schedules evaluation for one report.
// Duplicate (agent, collected_at) submissions are acknowledged without side
// effects. The registry's last-seen advances only for accepted reports.
func (s *Service) IngestReport(ctx context.Context, report *types.MetricsReport) error {
	if err := validateReport(report); err != nil {
		return err
	}

	report.ReceivedAt = time.Now().UTC()
	if report.Hostname == "" {
		report.Hostname = report.AgentName
	}

	inserted, err := s.store.InsertReport(ctx, report)
	if err != nil {
		return fmt.Errorf("persisting report: %w", err)
	}
	if !inserted {
		s.logger.Debug("duplicate report ignored",
			"agent", report.AgentName, "collected_at", report.CollectedAt)
		return nil
	}

	if err := s.store.UpsertAgent(ctx, report.AgentName, report.Hostname, report.ReceivedAt); err != nil {
		return fmt.Errorf("updating agent registry: %w", err)
	}

	if s.queue != nil {
		if err := s.queue.Push(ctx, report); err != nil {
			// Queue down is not fatal to ingestion; fall back to inline.
			s.logger.Warn("evaluation queue push failed, evaluating inline",
				"agent", report.AgentName, "error", err)
			return s.EvaluateReport(ctx, report)
		}
		return nil
	}
	return s.EvaluateReport(ctx, report)
}

// EvaluateReport runs one report through threshold evaluation and the alert
// lifecycle. Shared by the inline path and the queue worker.
func (s *Service) EvaluateReport(ctx context.Context, report *types.MetricsReport) error {
	th, err := s.effectiveThresholds(ctx, report.AgentName)
	if err != nil {
		return err
	}

	conditions := s.evaluator.Evaluate(report, th)
	return s.lifecycle.Apply(ctx, alerting.Cycle{
		AgentName: report.AgentName,
		Hostname:  report.Hostname,
		Observed:  conditions,
	})
}

func (s *Service) effectiveThresholds(ctx context.Context, agentName string) (types.Thresholds, error) {
	agent, err := s.store.GetAgent(ctx, agentName)
	if err != nil {
		return types.Thresholds{}, fmt.Errorf("loading agent: %w", err)
	}
	if agent != nil && agent.ThresholdOverrides != nil {
		return *agent.ThresholdOverrides, nil
	}
	return s.defaults, nil
}

// =============================================================================
// AGENTS
// =============================================================================

// ListAgents returns all registered agents with derived liveness.
func (s *Service) ListAgents(ctx context.Context) ([]types.AgentRecord, error) {
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for i := range agents {
		agents[i].Liveness = types.ClassifyLiveness(
			now.Sub(agents[i].LastSeen), s.liveness.DegradedAfter, s.liveness.OfflineAfter)
	}
	return agents, nil
}

// History returns an agent's reports over the trailing window.
func (s *Service) History(ctx context.Context, agentName string, window time.Duration) ([]types.MetricsReport, error) {
	agent, err := s.store.GetAgent(ctx, agentName)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, &NotFoundError{Resource: "agent", ID: agentName}
	}
	return s.store.GetHistory(ctx, agentName, time.Now().UTC().Add(-window))
}

// UpdateAgentThresholds replaces an agent's overrides. nil clears them.
func (s *Service) UpdateAgentThresholds(ctx context.Context, agentName string, overrides *types.Thresholds) error {
	if overrides != nil {
		if err := validateThresholds(overrides); err != nil {
			return err
		}
	}
	err := s.store.UpdateThresholdOverrides(ctx, agentName, overrides)
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Resource: "agent", ID: agentName}
	}
	if err != nil {
		return err
	}
	s.logger.Info("agent thresholds updated", "agent", agentName, "cleared", overrides == nil)
	return nil
}

// =============================================================================
// ALERTS
// =============================================================================

// ListAlerts returns alerts matching the filter.
func (s *Service) ListAlerts(ctx context.Context, filter types.AlertFilter) ([]types.Alert, error) {
	return s.store.ListAlerts(ctx, filter)
}

// AlertStats returns aggregate alert counts.
func (s *Service) AlertStats(ctx context.Context) (*types.AlertStats, error) {
	return s.store.GetAlertStats(ctx)
}

// AcknowledgeAlert marks an open alert acknowledged by the given actor.
func (s *Service) AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string) error {
	if acknowledgedBy == "" {
		acknowledgedBy = "api"
	}
	err := s.lifecycle.Acknowledge(ctx, id, acknowledgedBy)
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Resource: "alert", ID: id}
	}
	return err
}

// =============================================================================
// VALIDATION
// =============================================================================

// validateReport enforces the declared ranges. Out-of-range values are
// rejected rather than clamped, so a buggy collector is visible instead of
// silently rewritten.
func validateReport(r *types.MetricsReport) error {
	if r.AgentName == "" {
		return &ValidationError{Field: "agent_name", Reason: "required"}
	}
	if r.CollectedAt.IsZero() {
		return &ValidationError{Field: "collected_at", Reason: "required"}
	}
	if r.CPUPct < 0 || r.CPUPct > 100 {
		return &ValidationError{Field: "cpu_pct", Reason: "must be within [0,100]"}
	}
	if r.RAMPct < 0 || r.RAMPct > 100 {
		return &ValidationError{Field: "ram_pct", Reason: "must be within [0,100]"}
	}
	for mount, pct := range r.Disks {
		if mount == "" {
			return &ValidationError{Field: "disks", Reason: "empty mount path"}
		}
		if pct < 0 || pct > 100 {
			return &ValidationError{Field: "disks." + mount, Reason: "must be within [0,100]"}
		}
	}
	if r.Network.InBytesPerSec < 0 || r.Network.OutBytesPerSec < 0 {
		return &ValidationError{Field: "network", Reason: "byte rates must not be negative"}
	}
	for name, state := range r.Services {
		if name == "" {
			return &ValidationError{Field: "services", Reason: "empty service name"}
		}
		if !state.Valid() {
			return &ValidationError{Field: "services." + name, Reason: fmt.Sprintf("unknown state %q", state)}
		}
	}
	if r.SSHFailedAttempts < 0 {
		return &ValidationError{Field: "ssh_failed_attempts", Reason: "must not be negative"}
	}
	return nil
}

func validateThresholds(t *types.Thresholds) error {
	for field, pct := range map[string]float64{
		"cpu_pct":  t.CPUPct,
		"ram_pct":  t.RAMPct,
		"disk_pct": t.DiskPct,
	} {
		if pct < 0 || pct > 100 {
			return &ValidationError{Field: field, Reason: "must be within [0,100]"}
		}
	}
	if t.NetBytesPerSec < 0 {
		return &ValidationError{Field: "net_bytes_per_sec", Reason: "must not be negative"}
	}
	if t.SSHAttempts < 0 {
		return &ValidationError{Field: "ssh_attempts", Reason: "must not be negative"}
	}
	if t.CriticalMarginPct < 0 {
		return &ValidationError{Field: "critical_margin_pct", Reason: "must not be negative"}
	}
	return nil
}
