// Package alerting owns the alert lifecycle: it turns evaluated conditions
// into alert records, dispatches notifications on open, and resolves alerts
// whose conditions have stayed clear past the hysteresis window.
package alerting

import (
	"time"

	"github.com/sentora/sentora/pkg/types"
)

// Action is the outcome of a lifecycle decision for one alert key.
type Action int

const (
	// ActionNone leaves the alert state untouched.
	ActionNone Action = iota

	// ActionCreate opens a new alert and triggers notification.
	ActionCreate

	// ActionRefresh confirms an active alert without notifying again.
	ActionRefresh

	// ActionResolve closes an active alert.
	ActionResolve
)

// Decide is the pure transition function for one (agent, kind, subject)
// key. current is the active alert for the key, nil when there is none;
// observed reports whether the condition triggered this cycle.
//
// A resolved alert never reopens: a recurring condition gets a fresh
// record. An active alert whose condition is absent resolves only once its
// last confirmation is older than hysteresis, so a single missed cycle
// does not flap it closed.
func Decide(current *types.Alert, observed bool, now time.Time, hysteresis time.Duration) Action {
	switch {
	case current == nil && observed:
		return ActionCreate
	case current == nil:
		return ActionNone
	case observed:
		return ActionRefresh
	case now.Sub(current.LastConfirmed) >= hysteresis:
		return ActionResolve
	default:
		return ActionNone
	}
}
