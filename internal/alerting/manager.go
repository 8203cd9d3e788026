package alerting

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/sentora/sentora/internal/store"
	"github.com/sentora/sentora/pkg/types"
)

// numLockShards sizes the key lock table. Transitions for different keys
// proceed in parallel; two cycles touching the same key serialize.
const numLockShards = 64

// Store defines the storage interface for the lifecycle manager.
type Store interface {
	FindActiveAlert(ctx context.Context, key types.AlertKey) (*types.Alert, error)
	CreateAlert(ctx context.Context, alert *types.Alert) error
	RefreshAlert(ctx context.Context, id string, severity types.Severity, message string, value float64, confirmedAt time.Time) error
	AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string, at time.Time) error
	ResolveAlert(ctx context.Context, id string, at time.Time) error
	ListActiveAlertsForAgent(ctx context.Context, agentName string) ([]types.Alert, error)
}

// Dispatcher delivers a newly opened alert to the notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *types.Alert)
}

// Cycle is one evaluation pass for one agent: the conditions observed plus
// where they came from. Sweep cycles carry only synthesized liveness
// conditions and must not resolve metric alerts, because no report was
// evaluated.
type Cycle struct {
	AgentName string
	Hostname  string
	Observed  []types.Condition

	// Sweep marks a liveness-checker cycle rather than a report evaluation.
	Sweep bool

	// Now anchors all timestamps in the cycle. Zero means time.Now().
	Now time.Time
}

// Manager applies lifecycle transitions.
type Manager struct {
	store      Store
	dispatcher Dispatcher
	hysteresis time.Duration
	logger     *slog.Logger

	locks [numLockShards]sync.Mutex
}

// NewManager creates a lifecycle manager.
func NewManager(st Store, dispatcher Dispatcher, hysteresis time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		store:      st,
		dispatcher: dispatcher,
		hysteresis: hysteresis,
		logger:     logger.With("component", "alert_manager"),
	}
}

// Apply runs one cycle for one agent: opens or refreshes alerts for the
// observed conditions, then resolves active alerts whose conditions have
// stayed absent past the hysteresis window.
func (m *Manager) Apply(ctx context.Context, cycle Cycle) error {
	now := cycle.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	observed := make(map[types.AlertKey]types.Condition, len(cycle.Observed))
	for _, cond := range cycle.Observed {
		observed[cond.Key()] = cond
	}

	var errs []error
	for _, cond := range cycle.Observed {
		if err := m.applyObserved(ctx, cycle, cond, now); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cond.Key(), err))
		}
	}

	active, err := m.store.ListActiveAlertsForAgent(ctx, cycle.AgentName)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("listing active alerts: %w", err))...)
	}
	for i := range active {
		alert := &active[i]
		if _, ok := observed[alert.Key()]; ok {
			continue
		}
		if err := m.applyAbsent(ctx, cycle, alert, now); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", alert.Key(), err))
		}
	}

	return errors.Join(errs...)
}

// applyObserved handles a triggered condition under its key lock.
func (m *Manager) applyObserved(ctx context.Context, cycle Cycle, cond types.Condition, now time.Time) error {
	key := cond.Key()
	lock := m.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.store.FindActiveAlert(ctx, key)
	if err != nil {
		return fmt.Errorf("finding active alert: %w", err)
	}

	switch Decide(current, true, now, m.hysteresis) {
	case ActionCreate:
		alert := &types.Alert{
			AgentName:      cond.AgentName,
			Hostname:       cycle.Hostname,
			Kind:           cond.Kind,
			Subject:        cond.Subject,
			Severity:       cond.Severity,
			Status:         types.AlertOpen,
			Message:        cond.Message,
			Value:          cond.Value,
			FirstTriggered: now,
			LastConfirmed:  now,
		}
		if err := m.store.CreateAlert(ctx, alert); err != nil {
			return fmt.Errorf("creating alert: %w", err)
		}
		m.logger.Info("alert opened",
			"alert_id", alert.ID,
			"agent", alert.AgentName,
			"kind", alert.Kind,
			"subject", alert.Subject,
			"severity", alert.Severity,
		)
		m.dispatcher.Dispatch(ctx, alert)

	case ActionRefresh:
		// Severity tracks the latest observation but never drops while
		// active, so a brief dip does not mask an escalation history.
		severity := cond.Severity
		if current.Severity.Level() > severity.Level() {
			severity = current.Severity
		}
		if err := m.store.RefreshAlert(ctx, current.ID, severity, cond.Message, cond.Value, now); err != nil {
			return fmt.Errorf("refreshing alert: %w", err)
		}
	}
	return nil
}

// applyAbsent handles an active alert whose condition did not trigger.
func (m *Manager) applyAbsent(ctx context.Context, cycle Cycle, alert *types.Alert, now time.Time) error {
	// Sweep cycles evaluate liveness only; they carry no evidence about
	// metric conditions.
	if cycle.Sweep && alert.Kind != types.ConditionAgentInactive {
		return nil
	}

	hysteresis := m.hysteresis
	if !cycle.Sweep && alert.Kind == types.ConditionAgentInactive {
		// A report arriving is direct proof the agent is back.
		hysteresis = 0
	}

	lock := m.lockFor(alert.Key())
	lock.Lock()
	defer lock.Unlock()

	current, err := m.store.FindActiveAlert(ctx, alert.Key())
	if err != nil {
		return fmt.Errorf("finding active alert: %w", err)
	}

	if Decide(current, false, now, hysteresis) == ActionResolve {
		if err := m.store.ResolveAlert(ctx, current.ID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil // raced with another resolver
			}
			return fmt.Errorf("resolving alert: %w", err)
		}
		m.logger.Info("alert resolved",
			"alert_id", current.ID,
			"agent", current.AgentName,
			"kind", current.Kind,
			"subject", current.Subject,
		)
	}
	return nil
}

// Acknowledge marks an open alert acknowledged. The alert stays active and
// keeps refreshing while its condition persists, but acknowledgement is
// never cleared by a re-trigger.
func (m *Manager) Acknowledge(ctx context.Context, id, acknowledgedBy string) error {
	if err := m.store.AcknowledgeAlert(ctx, id, acknowledgedBy, time.Now().UTC()); err != nil {
		return err
	}
	m.logger.Info("alert acknowledged", "alert_id", id, "by", acknowledgedBy)
	return nil
}

func (m *Manager) lockFor(key types.AlertKey) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key.AgentName))
	h.Write([]byte{0})
	h.Write([]byte(key.Kind))
	h.Write([]byte{0})
	h.Write([]byte(key.Subject))
	return &m.locks[h.Sum32()%numLockShards]
}
