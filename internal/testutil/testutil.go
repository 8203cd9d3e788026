// Package testutil provides testing utilities and fixtures for the server.
//
// Fixtures use functional options for customization:
//
//	report := testutil.FixtureReport()
//	report := testutil.FixtureReport(func(r *types.MetricsReport) {
//		r.CPUPct = 95
//	})
package testutil

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentora/sentora/pkg/types"
)

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// REPORT FIXTURES
// =============================================================================

// FixtureReport creates a healthy metrics report with sensible defaults.
// Use overrides to customize specific fields.
func FixtureReport(overrides ...func(*types.MetricsReport)) *types.MetricsReport {
	now := time.Now().UTC().Truncate(time.Second)
	report := &types.MetricsReport{
		ID:          uuid.New().String(),
		AgentName:   "test-agent",
		Hostname:    "test-host.local",
		CollectedAt: now,
		ReceivedAt:  now,
		CPUPct:      25.0,
		RAMPct:      40.0,
		Disks:       map[string]float64{"/": 30.0},
		Network: types.NetworkRates{
			InBytesPerSec:  1024,
			OutBytesPerSec: 2048,
		},
		Services:          map[string]types.ServiceState{"nginx": types.ServiceActive},
		SSHFailedAttempts: 0,
	}

	for _, override := range overrides {
		override(report)
	}

	return report
}

// FixtureReportOverloaded creates a report breaching the default CPU, RAM
// and disk thresholds.
func FixtureReportOverloaded(overrides ...func(*types.MetricsReport)) *types.MetricsReport {
	return FixtureReport(append([]func(*types.MetricsReport){
		func(r *types.MetricsReport) {
			r.CPUPct = 95.0
			r.RAMPct = 92.0
			r.Disks = map[string]float64{"/": 96.0}
		},
	}, overrides...)...)
}

// =============================================================================
// AGENT FIXTURES
// =============================================================================

// FixtureAgentRecord creates a registered agent seen just now.
func FixtureAgentRecord(overrides ...func(*types.AgentRecord)) *types.AgentRecord {
	now := time.Now().UTC()
	rec := &types.AgentRecord{
		AgentName: "test-agent",
		Hostname:  "test-host.local",
		FirstSeen: now.Add(-24 * time.Hour),
		LastSeen:  now,
		Liveness:  types.LivenessOnline,
	}

	for _, override := range overrides {
		override(rec)
	}

	return rec
}

// FixtureAgentOffline creates an agent whose last report is stale.
func FixtureAgentOffline(overrides ...func(*types.AgentRecord)) *types.AgentRecord {
	return FixtureAgentRecord(append([]func(*types.AgentRecord){
		func(a *types.AgentRecord) {
			a.LastSeen = time.Now().UTC().Add(-30 * time.Minute)
			a.Liveness = types.LivenessOffline
		},
	}, overrides...)...)
}

// =============================================================================
// ALERT FIXTURES
// =============================================================================

// FixtureAlert creates an open CPU alert.
func FixtureAlert(overrides ...func(*types.Alert)) *types.Alert {
	now := time.Now().UTC()
	alert := &types.Alert{
		ID:             uuid.New().String(),
		AgentName:      "test-agent",
		Hostname:       "test-host.local",
		Kind:           types.ConditionCPUHigh,
		Severity:       types.SeverityWarning,
		Status:         types.AlertOpen,
		Message:        "CPU utilization 92.0% exceeds threshold 80.0%",
		Value:          92.0,
		FirstTriggered: now,
		LastConfirmed:  now,
	}

	for _, override := range overrides {
		override(alert)
	}

	return alert
}

// =============================================================================
// HELPERS
// =============================================================================

// Ptr returns a pointer to v. Convenient for optional fields in tests.
func Ptr[T any](v T) *T {
	return &v
}

// TimeAgo returns a time d in the past.
func TimeAgo(d time.Duration) time.Time {
	return time.Now().UTC().Add(-d)
}
