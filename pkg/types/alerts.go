// Package types - Alert lifecycle and notification routing types.
//
// # Alert Lifecycle
//
// The threshold evaluator emits stateless Conditions; the lifecycle manager
// folds them into persisted Alerts. For a given (agent, kind, subject) key
// at most one Alert may be open or acknowledged at a time: a repeated
// condition refreshes the existing record instead of duplicating it, and a
// recurrence after resolution starts a fresh Alert with a new identifier.
package types

import "time"

// ConditionKind identifies which rule produced a condition. Closed set.
type ConditionKind string

const (
	ConditionCPUHigh       ConditionKind = "CPU_HIGH"
	ConditionRAMHigh       ConditionKind = "RAM_HIGH"
	ConditionDiskHigh      ConditionKind = "DISK_HIGH"
	ConditionNetworkHigh   ConditionKind = "NETWORK_HIGH"
	ConditionServiceDown   ConditionKind = "SERVICE_DOWN"
	ConditionSSHBruteForce ConditionKind = "SSH_BRUTE_FORCE"
	ConditionAgentInactive ConditionKind = "AGENT_INACTIVE"
)

// Severity indicates urgency level.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Level returns a numeric level for comparison (higher = more severe).
func (s Severity) Level() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Condition is a stateless observation derived from a single evaluation:
// one metric crossed its configured threshold for one agent. Conditions are
// consumed immediately by the lifecycle manager and never persisted.
type Condition struct {
	AgentName string        `json:"agent_name"`
	Kind      ConditionKind `json:"kind"`

	// Subject narrows the condition within its kind: the mount path for
	// DISK_HIGH, the service name for SERVICE_DOWN, empty otherwise.
	Subject string `json:"subject,omitempty"`

	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Value    float64  `json:"value"`
}

// Key returns the deduplication key for the condition.
func (c Condition) Key() AlertKey {
	return AlertKey{AgentName: c.AgentName, Kind: c.Kind, Subject: c.Subject}
}

// AlertKey identifies the lifecycle state machine instance for a condition.
type AlertKey struct {
	AgentName string
	Kind      ConditionKind
	Subject   string
}

func (k AlertKey) String() string {
	if k.Subject == "" {
		return k.AgentName + "/" + string(k.Kind)
	}
	return k.AgentName + "/" + string(k.Kind) + "/" + k.Subject
}

// AlertStatus tracks the alert lifecycle.
type AlertStatus string

const (
	AlertOpen         AlertStatus = "open"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Active reports whether the status counts against the one-open-per-key
// invariant.
func (s AlertStatus) Active() bool {
	return s == AlertOpen || s == AlertAcknowledged
}

// Alert is the persisted, stateful record tracking a condition from first
// trigger through resolution. Resolved alerts are immutable history.
type Alert struct {
	ID        string        `json:"id"`
	AgentName string        `json:"agent_name"`
	Hostname  string        `json:"hostname,omitempty"`
	Kind      ConditionKind `json:"kind"`
	Subject   string        `json:"subject,omitempty"`

	Severity Severity    `json:"severity"`
	Status   AlertStatus `json:"status"`
	Message  string      `json:"message"`
	Value    float64     `json:"value"`

	FirstTriggered time.Time  `json:"first_triggered"`
	LastConfirmed  time.Time  `json:"last_confirmed"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Key returns the deduplication key for the alert.
func (a *Alert) Key() AlertKey {
	return AlertKey{AgentName: a.AgentName, Kind: a.Kind, Subject: a.Subject}
}

// AlertFilter narrows alert listing.
type AlertFilter struct {
	AgentName    string
	Since        *time.Time
	Acknowledged *bool // true = acknowledged only, false = unacknowledged only
	Limit        int
}

// AlertStats provides aggregate statistics about alerts.
type AlertStats struct {
	OpenCount          int `json:"open_count"`
	AcknowledgedCount  int `json:"acknowledged_count"`
	CriticalCount      int `json:"critical_count"`
	WarningCount       int `json:"warning_count"`
	ResolvedTodayCount int `json:"resolved_today_count"`
}

// ChannelKind identifies a notification transport.
type ChannelKind string

const (
	ChannelEmail    ChannelKind = "email"
	ChannelWebhook  ChannelKind = "webhook"
	ChannelTelegram ChannelKind = "telegram"
)

// ChannelConfig is one configured notification channel. Credentials may be
// secret references (env:// or op://) resolved at startup. Read-only to the
// dispatcher at send time.
type ChannelConfig struct {
	Kind    ChannelKind `yaml:"kind" json:"kind"`
	Enabled bool        `yaml:"enabled" json:"enabled"`

	// MinSeverity filters which alerts the channel receives; empty admits
	// everything.
	MinSeverity Severity `yaml:"min_severity,omitempty" json:"min_severity,omitempty"`

	// Email settings.
	SMTPHost string   `yaml:"smtp_host,omitempty" json:"smtp_host,omitempty"`
	SMTPPort int      `yaml:"smtp_port,omitempty" json:"smtp_port,omitempty"`
	SMTPUser string   `yaml:"smtp_user,omitempty" json:"smtp_user,omitempty"`
	SMTPPass string   `yaml:"smtp_pass,omitempty" json:"smtp_pass,omitempty"`
	From     string   `yaml:"from,omitempty" json:"from,omitempty"`
	To       []string `yaml:"to,omitempty" json:"to,omitempty"`

	// Webhook settings.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Telegram bot settings.
	BotToken string `yaml:"bot_token,omitempty" json:"bot_token,omitempty"`
	ChatID   string `yaml:"chat_id,omitempty" json:"chat_id,omitempty"`
}

// Admits reports whether the channel's severity filter admits sev.
func (c ChannelConfig) Admits(sev Severity) bool {
	if c.MinSeverity == "" {
		return true
	}
	return sev.Level() >= c.MinSeverity.Level()
}
