// Package notify delivers opened alerts to the configured channels.
//
// Channels are independent: a dead SMTP relay never blocks the webhook.
// Each delivery runs in its own goroutine with bounded retries; when the
// retries exhaust, the failure is logged and the alert record stays intact,
// so delivery is at-least-once per channel and never gates alert creation.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sentora/sentora/pkg/types"
)

// DispatcherConfig holds delivery policy for all channels.
type DispatcherConfig struct {
	// MaxAttempts bounds delivery retries per channel per alert.
	MaxAttempts int

	// BaseBackoff is the delay before the first retry; it doubles per
	// attempt.
	BaseBackoff time.Duration

	// AttemptTimeout bounds a single delivery attempt.
	AttemptTimeout time.Duration

	// RatePerSec limits deliveries per channel.
	RatePerSec float64

	// Burst is the rate limiter burst size.
	Burst int
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxAttempts:    3,
		BaseBackoff:    2 * time.Second,
		AttemptTimeout: 15 * time.Second,
		RatePerSec:     1,
		Burst:          5,
	}
}

// Channel delivers one alert over one transport.
type Channel interface {
	Kind() types.ChannelKind
	Send(ctx context.Context, alert *types.Alert) error
}

// boundChannel pairs a transport with its config-level policy.
type boundChannel struct {
	channel Channel
	cfg     types.ChannelConfig
	limiter *rate.Limiter
}

// Dispatcher fans alerts out to the configured channels.
type Dispatcher struct {
	channels []boundChannel
	config   DispatcherConfig
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given channels. cfgs supplies
// the per-channel severity floor; channels without a config entry get no
// filtering.
func NewDispatcher(channels []Channel, cfgs []types.ChannelConfig, config DispatcherConfig, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		config: config,
		logger: logger.With("component", "dispatcher"),
	}

	byKind := make(map[types.ChannelKind]types.ChannelConfig, len(cfgs))
	for _, cfg := range cfgs {
		byKind[cfg.Kind] = cfg
	}

	for _, ch := range channels {
		d.channels = append(d.channels, boundChannel{
			channel: ch,
			cfg:     byKind[ch.Kind()],
			// Per-channel limiter keeps an alert storm from flooding
			// external providers.
			limiter: rate.NewLimiter(rate.Limit(config.RatePerSec), config.Burst),
		})
	}
	return d
}

// Dispatch sends the alert to every channel that admits its severity.
// Returns immediately; deliveries run in the background detached from the
// caller's cancellation.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *types.Alert) {
	base := context.WithoutCancel(ctx)
	for _, bc := range d.channels {
		if !bc.cfg.Admits(alert.Severity) {
			continue
		}
		d.wg.Add(1)
		go func(bc boundChannel) {
			defer d.wg.Done()
			d.deliver(base, bc, alert)
		}(bc)
	}
}

// Wait blocks until all in-flight deliveries finish. Used during shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, bc boundChannel, alert *types.Alert) {
	kind := bc.channel.Kind()

	var lastErr error
	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		if err := bc.limiter.Wait(ctx); err != nil {
			return
		}

		attemptCtx, cancel := context.WithTimeout(ctx, d.config.AttemptTimeout)
		err := bc.channel.Send(attemptCtx, alert)
		cancel()

		if err == nil {
			if attempt > 1 {
				d.logger.Info("alert delivered after retry",
					"channel", kind, "alert_id", alert.ID, "attempt", attempt)
			}
			return
		}
		lastErr = err

		if attempt < d.config.MaxAttempts {
			backoff := d.config.BaseBackoff << (attempt - 1)
			d.logger.Warn("alert delivery failed, retrying",
				"channel", kind,
				"alert_id", alert.ID,
				"attempt", attempt,
				"backoff", backoff,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}

	// Degraded delivery: the alert record exists and other channels may
	// have succeeded. Nothing to roll back.
	d.logger.Warn("alert delivery degraded, retries exhausted",
		"channel", kind,
		"alert_id", alert.ID,
		"attempts", d.config.MaxAttempts,
		"error", lastErr,
	)
}

// formatAlertText renders the shared plain-text body used by the chat
// transports. The alert ID lets downstream consumers deduplicate.
func formatAlertText(alert *types.Alert) string {
	subject := ""
	if alert.Subject != "" {
		subject = " (" + alert.Subject + ")"
	}
	return fmt.Sprintf("[%s] %s%s on %s: %s\nalert: %s",
		alert.Severity, alert.Kind, subject, alert.AgentName, alert.Message, alert.ID)
}
