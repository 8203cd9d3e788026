package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sentora/sentora/internal/store"
	"github.com/sentora/sentora/internal/testutil"
	"github.com/sentora/sentora/pkg/types"
)

// mockStore implements Store for testing.
type mockStore struct {
	mu     sync.Mutex
	alerts map[string]*types.Alert
}

func newMockStore() *mockStore {
	return &mockStore{alerts: make(map[string]*types.Alert)}
}

func (m *mockStore) FindActiveAlert(ctx context.Context, key types.AlertKey) (*types.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.Key() == key && a.Status.Active() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) CreateAlert(ctx context.Context, alert *types.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	cp := *alert
	m.alerts[alert.ID] = &cp
	return nil
}

func (m *mockStore) RefreshAlert(ctx context.Context, id string, severity types.Severity, message string, value float64, confirmedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || !a.Status.Active() {
		return store.ErrNotFound
	}
	a.Severity = severity
	a.Message = message
	a.Value = value
	a.LastConfirmed = confirmedAt
	return nil
}

func (m *mockStore) AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return store.ErrNotFound
	}
	if a.Status == types.AlertAcknowledged {
		return nil
	}
	if a.Status != types.AlertOpen {
		return store.ErrNotFound
	}
	a.Status = types.AlertAcknowledged
	a.AcknowledgedAt = &at
	a.AcknowledgedBy = acknowledgedBy
	return nil
}

func (m *mockStore) ResolveAlert(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || !a.Status.Active() {
		return store.ErrNotFound
	}
	a.Status = types.AlertResolved
	a.ResolvedAt = &at
	return nil
}

func (m *mockStore) ListActiveAlertsForAgent(ctx context.Context, agentName string) ([]types.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Alert
	for _, a := range m.alerts {
		if a.AgentName == agentName && a.Status.Active() {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockStore) get(id string) *types.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.alerts[id]
	return &cp
}

func (m *mockStore) all() []types.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Alert
	for _, a := range m.alerts {
		out = append(out, *a)
	}
	return out
}

// mockDispatcher records dispatched alerts.
type mockDispatcher struct {
	mu   sync.Mutex
	sent []types.Alert
}

func (d *mockDispatcher) Dispatch(ctx context.Context, alert *types.Alert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, *alert)
}

func (d *mockDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func newTestManager(hysteresis time.Duration) (*Manager, *mockStore, *mockDispatcher) {
	st := newMockStore()
	disp := &mockDispatcher{}
	mgr := NewManager(st, disp, hysteresis, testutil.NewTestLogger())
	return mgr, st, disp
}

func cpuCondition(agent string, value float64) types.Condition {
	return types.Condition{
		AgentName: agent,
		Kind:      types.ConditionCPUHigh,
		Severity:  types.SeverityWarning,
		Message:   "CPU high",
		Value:     value,
	}
}

func TestPersistentConditionNotifiesOnce(t *testing.T) {
	mgr, st, disp := newTestManager(3 * time.Minute)
	ctx := context.Background()

	t0 := time.Now().UTC()
	for i := 0; i < 5; i++ {
		cycle := Cycle{
			AgentName: "server1",
			Hostname:  "server1.local",
			Observed:  []types.Condition{cpuCondition("server1", 92)},
			Now:       t0.Add(time.Duration(i) * time.Minute),
		}
		if err := mgr.Apply(ctx, cycle); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	alerts := st.all()
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if disp.count() != 1 {
		t.Errorf("got %d dispatches, want exactly 1", disp.count())
	}

	a := alerts[0]
	if a.Status != types.AlertOpen {
		t.Errorf("got status %s, want open", a.Status)
	}
	if !a.FirstTriggered.Equal(t0) {
		t.Errorf("first_triggered moved: %v", a.FirstTriggered)
	}
	if !a.LastConfirmed.Equal(t0.Add(4 * time.Minute)) {
		t.Errorf("last_confirmed not updated: %v", a.LastConfirmed)
	}
}

func TestResolutionAfterHysteresis(t *testing.T) {
	hysteresis := 3 * time.Minute
	mgr, st, _ := newTestManager(hysteresis)

	t0 := time.Now().UTC()
	mustApply(t, mgr, Cycle{
		AgentName: "server1",
		Observed:  []types.Condition{cpuCondition("server1", 92)},
		Now:       t0,
	})

	// One clear cycle inside the hysteresis window must not resolve.
	mustApply(t, mgr, Cycle{AgentName: "server1", Now: t0.Add(time.Minute)})
	if a := st.all()[0]; a.Status != types.AlertOpen {
		t.Fatalf("alert resolved too early, status %s", a.Status)
	}

	// Still clear past the window: resolve.
	mustApply(t, mgr, Cycle{AgentName: "server1", Now: t0.Add(hysteresis)})
	if a := st.all()[0]; a.Status != types.AlertResolved {
		t.Fatalf("alert not resolved after hysteresis, status %s", a.Status)
	}
}

func TestRecurrenceCreatesFreshAlert(t *testing.T) {
	mgr, st, disp := newTestManager(0)

	t0 := time.Now().UTC()
	mustApply(t, mgr, Cycle{
		AgentName: "server1",
		Observed:  []types.Condition{cpuCondition("server1", 92)},
		Now:       t0,
	})
	mustApply(t, mgr, Cycle{AgentName: "server1", Now: t0.Add(time.Minute)})
	mustApply(t, mgr, Cycle{
		AgentName: "server1",
		Observed:  []types.Condition{cpuCondition("server1", 95)},
		Now:       t0.Add(2 * time.Minute),
	})

	alerts := st.all()
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2 (resolved is terminal)", len(alerts))
	}
	if disp.count() != 2 {
		t.Errorf("got %d dispatches, want 2", disp.count())
	}

	var resolved, open int
	for _, a := range alerts {
		switch a.Status {
		case types.AlertResolved:
			resolved++
		case types.AlertOpen:
			open++
		}
	}
	if resolved != 1 || open != 1 {
		t.Errorf("got %d resolved / %d open, want 1/1", resolved, open)
	}
}

func TestAcknowledgement(t *testing.T) {
	mgr, st, _ := newTestManager(3 * time.Minute)
	ctx := context.Background()

	t0 := time.Now().UTC()
	mustApply(t, mgr, Cycle{
		AgentName: "server1",
		Observed:  []types.Condition{cpuCondition("server1", 92)},
		Now:       t0,
	})
	id := st.all()[0].ID

	if err := mgr.Acknowledge(ctx, id, "operator"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	// Second acknowledgement is a no-op.
	if err := mgr.Acknowledge(ctx, id, "operator2"); err != nil {
		t.Fatalf("repeat acknowledge should succeed as no-op: %v", err)
	}
	if a := st.get(id); a.AcknowledgedBy != "operator" {
		t.Errorf("repeat acknowledge overwrote actor: %s", a.AcknowledgedBy)
	}

	// Re-trigger keeps the acknowledgement.
	mustApply(t, mgr, Cycle{
		AgentName: "server1",
		Observed:  []types.Condition{cpuCondition("server1", 94)},
		Now:       t0.Add(time.Minute),
	})
	a := st.get(id)
	if a.Status != types.AlertAcknowledged {
		t.Errorf("re-trigger cleared acknowledgement, status %s", a.Status)
	}
	if a.Value != 94 {
		t.Errorf("acknowledged alert not refreshed, value %.0f", a.Value)
	}

	// Acknowledged alerts still resolve on clearance.
	mustApply(t, mgr, Cycle{AgentName: "server1", Now: t0.Add(10 * time.Minute)})
	if a := st.get(id); a.Status != types.AlertResolved {
		t.Errorf("acknowledged alert did not resolve, status %s", a.Status)
	}
}

func TestAcknowledgeMissingAlert(t *testing.T) {
	mgr, _, _ := newTestManager(0)

	err := mgr.Acknowledge(context.Background(), uuid.New().String(), "operator")
	if err == nil {
		t.Fatal("expected error acknowledging unknown alert")
	}
}

func TestAgentInactiveResolvesOnReport(t *testing.T) {
	mgr, st, _ := newTestManager(30 * time.Minute)

	t0 := time.Now().UTC()
	inactive := types.Condition{
		AgentName: "server1",
		Kind:      types.ConditionAgentInactive,
		Severity:  types.SeverityCritical,
		Message:   "no report for 15m",
	}

	// Sweep opens the alert.
	mustApply(t, mgr, Cycle{AgentName: "server1", Observed: []types.Condition{inactive}, Sweep: true, Now: t0})
	if a := st.all()[0]; a.Status != types.AlertOpen {
		t.Fatalf("sweep did not open alert, status %s", a.Status)
	}

	// A report-driven cycle resolves it immediately, ignoring hysteresis.
	mustApply(t, mgr, Cycle{AgentName: "server1", Now: t0.Add(time.Minute)})
	if a := st.all()[0]; a.Status != types.AlertResolved {
		t.Fatalf("report did not resolve AGENT_INACTIVE, status %s", a.Status)
	}
}

func TestSweepDoesNotResolveMetricAlerts(t *testing.T) {
	mgr, st, _ := newTestManager(0)

	t0 := time.Now().UTC()
	mustApply(t, mgr, Cycle{
		AgentName: "server1",
		Observed:  []types.Condition{cpuCondition("server1", 92)},
		Now:       t0,
	})

	// Sweep carries no metric evidence even with zero hysteresis.
	mustApply(t, mgr, Cycle{AgentName: "server1", Sweep: true, Now: t0.Add(time.Hour)})
	if a := st.all()[0]; a.Status != types.AlertOpen {
		t.Fatalf("sweep resolved a metric alert, status %s", a.Status)
	}
}

func TestPerSubjectDedup(t *testing.T) {
	mgr, st, disp := newTestManager(0)

	disk := func(mount string) types.Condition {
		return types.Condition{
			AgentName: "server1",
			Kind:      types.ConditionDiskHigh,
			Subject:   mount,
			Severity:  types.SeverityWarning,
			Value:     95,
		}
	}

	mustApply(t, mgr, Cycle{
		AgentName: "server1",
		Observed:  []types.Condition{disk("/"), disk("/data")},
		Now:       time.Now().UTC(),
	})

	if len(st.all()) != 2 {
		t.Fatalf("got %d alerts, want one per mount", len(st.all()))
	}
	if disp.count() != 2 {
		t.Errorf("got %d dispatches, want 2", disp.count())
	}
}

func TestSeverityNeverDropsWhileActive(t *testing.T) {
	mgr, st, _ := newTestManager(time.Hour)

	t0 := time.Now().UTC()
	critical := cpuCondition("server1", 99)
	critical.Severity = types.SeverityCritical
	mustApply(t, mgr, Cycle{AgentName: "server1", Observed: []types.Condition{critical}, Now: t0})

	warning := cpuCondition("server1", 84)
	mustApply(t, mgr, Cycle{AgentName: "server1", Observed: []types.Condition{warning}, Now: t0.Add(time.Minute)})

	if a := st.all()[0]; a.Severity != types.SeverityCritical {
		t.Errorf("severity dropped to %s while active", a.Severity)
	}
}

func TestConcurrentAppliesSingleAlert(t *testing.T) {
	mgr, st, disp := newTestManager(time.Hour)

	t0 := time.Now().UTC()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cycle := Cycle{
				AgentName: "server1",
				Observed:  []types.Condition{cpuCondition("server1", 92)},
				Now:       t0.Add(time.Duration(i) * time.Second),
			}
			if err := mgr.Apply(context.Background(), cycle); err != nil {
				t.Errorf("apply: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := len(st.all()); got != 1 {
		t.Fatalf("got %d alerts after concurrent applies, want 1", got)
	}
	if disp.count() != 1 {
		t.Errorf("got %d dispatches, want exactly 1", disp.count())
	}
}

func TestConcurrentSweepAndReportCycles(t *testing.T) {
	mgr, st, disp := newTestManager(0)

	t0 := time.Now().UTC()
	inactive := types.Condition{
		AgentName: "server1",
		Kind:      types.ConditionAgentInactive,
		Severity:  types.SeverityCritical,
		Message:   "no report for 15m",
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		now := t0.Add(time.Duration(i) * time.Second)
		go func() {
			defer wg.Done()
			cycle := Cycle{AgentName: "server1", Observed: []types.Condition{inactive}, Sweep: true, Now: now}
			if err := mgr.Apply(context.Background(), cycle); err != nil {
				t.Errorf("sweep apply: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			cycle := Cycle{AgentName: "server1", Now: now}
			if err := mgr.Apply(context.Background(), cycle); err != nil {
				t.Errorf("report apply: %v", err)
			}
		}()
	}
	wg.Wait()

	// Whatever the interleaving, transitions for one key are serialized:
	// at most one active alert, and one dispatch per created alert.
	var active int
	for _, a := range st.all() {
		if a.Status.Active() {
			active++
		}
	}
	if active > 1 {
		t.Errorf("got %d active alerts for one key, want at most 1", active)
	}
	if disp.count() != len(st.all()) {
		t.Errorf("got %d dispatches for %d created alerts", disp.count(), len(st.all()))
	}
}

func TestDecideTransitions(t *testing.T) {
	now := time.Now().UTC()
	open := testutil.FixtureAlert(func(a *types.Alert) {
		a.LastConfirmed = now.Add(-2 * time.Minute)
	})

	tests := []struct {
		name       string
		current    *types.Alert
		observed   bool
		hysteresis time.Duration
		want       Action
	}{
		{"none observed", nil, true, time.Minute, ActionCreate},
		{"none clear", nil, false, time.Minute, ActionNone},
		{"active observed", open, true, time.Minute, ActionRefresh},
		{"active clear past hysteresis", open, false, time.Minute, ActionResolve},
		{"active clear within hysteresis", open, false, time.Hour, ActionNone},
		{"active clear zero hysteresis", open, false, 0, ActionResolve},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.current, tt.observed, now, tt.hysteresis); got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func mustApply(t *testing.T, mgr *Manager, cycle Cycle) {
	t.Helper()
	if err := mgr.Apply(context.Background(), cycle); err != nil {
		t.Fatalf("apply: %v", err)
	}
}
