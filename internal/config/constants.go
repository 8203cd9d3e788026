package config

import "time"

// Timing defaults. Overridable per deployment through the config file.
const (
	// DefaultDegradedAfter is the last-seen age at which an agent is
	// considered degraded rather than online.
	DefaultDegradedAfter = 2 * time.Minute

	// DefaultOfflineAfter is the last-seen age at which an agent is
	// considered offline.
	DefaultOfflineAfter = 10 * time.Minute

	// DefaultLivenessSweep is how often the liveness checker runs.
	DefaultLivenessSweep = 5 * time.Minute

	// DefaultHysteresis is how long a condition must stay clear before
	// its open alert auto-resolves.
	DefaultHysteresis = 3 * time.Minute

	// DefaultRetention is the rolling window of stored reports.
	DefaultRetention = 7 * 24 * time.Hour

	// DefaultRetentionSweep is how often old reports are pruned.
	DefaultRetentionSweep = 1 * time.Hour
)
