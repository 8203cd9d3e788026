// Package types contains the domain types shared between the ingestion
// server, its background workers, and API consumers.
package types

import "time"

// ServiceState is the reported status of a monitored service unit.
type ServiceState string

const (
	ServiceActive   ServiceState = "active"
	ServiceInactive ServiceState = "inactive"
	ServiceUnknown  ServiceState = "unknown"
)

// Valid reports whether s is one of the known service states.
func (s ServiceState) Valid() bool {
	switch s {
	case ServiceActive, ServiceInactive, ServiceUnknown:
		return true
	}
	return false
}

// NetworkRates is the sampled in/out byte rate pair for a host.
type NetworkRates struct {
	InBytesPerSec  float64 `json:"in_bytes_per_sec"`
	OutBytesPerSec float64 `json:"out_bytes_per_sec"`
}

// MetricsReport is one sample from one agent at one instant.
// Reports are immutable once stored; the store keys them by
// (agent_name, collected_at) so re-submission is a no-op.
type MetricsReport struct {
	ID          string    `json:"id,omitempty"` // server-assigned
	AgentName   string    `json:"agent_name"`
	Hostname    string    `json:"hostname"`
	CollectedAt time.Time `json:"collected_at"` // agent-supplied wall clock
	ReceivedAt  time.Time `json:"received_at,omitempty"`

	CPUPct float64 `json:"cpu_pct"`
	RAMPct float64 `json:"ram_pct"`

	// Disks maps mount path to utilization percentage.
	Disks map[string]float64 `json:"disks,omitempty"`

	Network NetworkRates `json:"network"`

	// Services maps service name to its reported state.
	Services map[string]ServiceState `json:"services,omitempty"`

	// SSHFailedAttempts is the count of failed authentication attempts
	// observed within the report's sampling interval.
	SSHFailedAttempts int `json:"ssh_failed_attempts"`
}

// Liveness classifies an agent by the recency of its last report.
type Liveness string

const (
	LivenessOnline   Liveness = "online"
	LivenessDegraded Liveness = "degraded"
	LivenessOffline  Liveness = "offline"
)

// ClassifyLiveness maps a last-seen age onto the three-way liveness state.
// Thresholds come from configuration, never hardcoded by callers.
func ClassifyLiveness(sinceLastSeen, degradedAfter, offlineAfter time.Duration) Liveness {
	switch {
	case sinceLastSeen >= offlineAfter:
		return LivenessOffline
	case sinceLastSeen >= degradedAfter:
		return LivenessDegraded
	default:
		return LivenessOnline
	}
}

// AgentRecord is the registry entry for one reporting agent.
// Records are never deleted automatically; an agent that stops reporting
// transitions to offline rather than being removed.
type AgentRecord struct {
	AgentName string    `json:"agent_name"`
	Hostname  string    `json:"hostname"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// ThresholdOverrides replaces the global defaults for this agent when
	// set. A nil value means the agent uses the defaults.
	ThresholdOverrides *Thresholds `json:"threshold_overrides,omitempty"`

	// Liveness is derived at read time, not stored.
	Liveness Liveness `json:"liveness,omitempty"`
}

// Thresholds holds the evaluation thresholds for one agent.
// Each rule can be disabled independently.
type Thresholds struct {
	CPUPct         float64 `json:"cpu_pct" yaml:"cpu_pct"`
	RAMPct         float64 `json:"ram_pct" yaml:"ram_pct"`
	DiskPct        float64 `json:"disk_pct" yaml:"disk_pct"`
	NetBytesPerSec float64 `json:"net_bytes_per_sec" yaml:"net_bytes_per_sec"`
	SSHAttempts    int     `json:"ssh_attempts" yaml:"ssh_attempts"`

	// CriticalMarginPct is how far past a percentage threshold a value must
	// go before a condition escalates from warning to critical.
	CriticalMarginPct float64 `json:"critical_margin_pct" yaml:"critical_margin_pct"`

	CPUEnabled     bool `json:"cpu_enabled" yaml:"cpu_enabled"`
	RAMEnabled     bool `json:"ram_enabled" yaml:"ram_enabled"`
	DiskEnabled    bool `json:"disk_enabled" yaml:"disk_enabled"`
	NetworkEnabled bool `json:"network_enabled" yaml:"network_enabled"`
	ServiceEnabled bool `json:"service_enabled" yaml:"service_enabled"`
	SSHEnabled     bool `json:"ssh_enabled" yaml:"ssh_enabled"`
}

// DefaultThresholds returns the global defaults used when an agent has no
// overrides configured. Values match the shipped agent defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUPct:            80.0,
		RAMPct:            85.0,
		DiskPct:           90.0,
		NetBytesPerSec:    100 * 1024 * 1024, // 100 MiB/s
		SSHAttempts:       5,
		CriticalMarginPct: 10.0,
		CPUEnabled:        true,
		RAMEnabled:        true,
		DiskEnabled:       true,
		NetworkEnabled:    true,
		ServiceEnabled:    true,
		SSHEnabled:        true,
	}
}
