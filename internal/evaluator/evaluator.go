// Package evaluator turns a single metrics report into threshold
// conditions. Evaluation is a pure function of the report and the agent's
// effective thresholds; it holds no state and touches no storage, which is
// what lets the eval worker and the inline path share it.
package evaluator

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/sentora/sentora/pkg/types"
)

// Evaluator applies threshold rules to metrics reports.
type Evaluator struct {
	logger *slog.Logger
}

// New creates an evaluator.
func New(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger.With("component", "evaluator")}
}

// Evaluate checks the report against th and returns the triggered
// conditions. The result order is deterministic: cpu, ram, disks by mount,
// network, services by name, ssh.
func (e *Evaluator) Evaluate(report *types.MetricsReport, th types.Thresholds) []types.Condition {
	var conds []types.Condition

	if th.CPUEnabled && report.CPUPct > th.CPUPct {
		conds = append(conds, types.Condition{
			AgentName: report.AgentName,
			Kind:      types.ConditionCPUHigh,
			Severity:  pctSeverity(report.CPUPct, th.CPUPct, th.CriticalMarginPct),
			Message:   fmt.Sprintf("CPU utilization %.1f%% exceeds threshold %.1f%%", report.CPUPct, th.CPUPct),
			Value:     report.CPUPct,
		})
	}

	if th.RAMEnabled && report.RAMPct > th.RAMPct {
		conds = append(conds, types.Condition{
			AgentName: report.AgentName,
			Kind:      types.ConditionRAMHigh,
			Severity:  pctSeverity(report.RAMPct, th.RAMPct, th.CriticalMarginPct),
			Message:   fmt.Sprintf("RAM utilization %.1f%% exceeds threshold %.1f%%", report.RAMPct, th.RAMPct),
			Value:     report.RAMPct,
		})
	}

	if th.DiskEnabled {
		for _, mount := range sortedKeys(report.Disks) {
			pct := report.Disks[mount]
			if pct <= th.DiskPct {
				continue
			}
			conds = append(conds, types.Condition{
				AgentName: report.AgentName,
				Kind:      types.ConditionDiskHigh,
				Subject:   mount,
				Severity:  pctSeverity(pct, th.DiskPct, th.CriticalMarginPct),
				Message:   fmt.Sprintf("Disk utilization %.1f%% on %s exceeds threshold %.1f%%", pct, mount, th.DiskPct),
				Value:     pct,
			})
		}
	}

	if th.NetworkEnabled {
		if cond := e.evalNetwork(report, th); cond != nil {
			conds = append(conds, *cond)
		}
	}

	if th.ServiceEnabled {
		for _, name := range sortedKeys(report.Services) {
			switch report.Services[name] {
			case types.ServiceInactive:
				conds = append(conds, types.Condition{
					AgentName: report.AgentName,
					Kind:      types.ConditionServiceDown,
					Subject:   name,
					Severity:  types.SeverityCritical,
					Message:   fmt.Sprintf("Service %s is inactive", name),
				})
			case types.ServiceUnknown:
				// Transient check failures report unknown; do not alert.
				e.logger.Debug("service state unknown, skipping",
					"agent", report.AgentName, "service", name)
			}
		}
	}

	if th.SSHEnabled && report.SSHFailedAttempts > th.SSHAttempts {
		conds = append(conds, types.Condition{
			AgentName: report.AgentName,
			Kind:      types.ConditionSSHBruteForce,
			Severity:  types.SeverityCritical,
			Message: fmt.Sprintf("%d failed SSH attempts exceed threshold %d",
				report.SSHFailedAttempts, th.SSHAttempts),
			Value: float64(report.SSHFailedAttempts),
		})
	}

	return conds
}

func (e *Evaluator) evalNetwork(report *types.MetricsReport, th types.Thresholds) *types.Condition {
	in, out := report.Network.InBytesPerSec, report.Network.OutBytesPerSec
	if in <= th.NetBytesPerSec && out <= th.NetBytesPerSec {
		return nil
	}

	direction, value := "inbound", in
	if out > in {
		direction, value = "outbound", out
	}
	return &types.Condition{
		AgentName: report.AgentName,
		Kind:      types.ConditionNetworkHigh,
		Severity:  rateSeverity(value, th.NetBytesPerSec, th.CriticalMarginPct),
		Message: fmt.Sprintf("%s traffic %.0f B/s exceeds threshold %.0f B/s",
			direction, value, th.NetBytesPerSec),
		Value: value,
	}
}

// pctSeverity bands a percentage excess: warning above threshold, critical
// once the excess reaches margin. Monotonic in the excess.
func pctSeverity(value, threshold, margin float64) types.Severity {
	if margin > 0 && value-threshold >= margin {
		return types.SeverityCritical
	}
	return types.SeverityWarning
}

// rateSeverity bands a byte rate. Absolute margins make no sense across
// links of different capacity, so the margin applies as a percentage of the
// threshold: critical once the rate reaches threshold * (1 + margin/100).
func rateSeverity(value, threshold, marginPct float64) types.Severity {
	if marginPct > 0 && threshold > 0 && value >= threshold*(1+marginPct/100) {
		return types.SeverityCritical
	}
	return types.SeverityWarning
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
