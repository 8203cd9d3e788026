package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sentora/sentora/internal/secrets"
	"github.com/sentora/sentora/pkg/types"
)

// BuildChannels constructs the enabled channels from configuration,
// expanding credential references through the resolver. A channel with an
// unresolvable credential is skipped with a warning; one bad credential
// must not take down the rest of the notification path.
func BuildChannels(ctx context.Context, cfgs []types.ChannelConfig, resolver secrets.Resolver, logger *slog.Logger) []Channel {
	var channels []Channel
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		ch, err := buildChannel(ctx, cfg, resolver)
		if err != nil {
			logger.Warn("skipping notification channel", "kind", cfg.Kind, "error", err)
			continue
		}
		logger.Info("notification channel configured", "kind", cfg.Kind, "min_severity", cfg.MinSeverity)
		channels = append(channels, ch)
	}
	return channels
}

func buildChannel(ctx context.Context, cfg types.ChannelConfig, resolver secrets.Resolver) (Channel, error) {
	switch cfg.Kind {
	case types.ChannelEmail:
		pass, err := resolver.Resolve(ctx, cfg.SMTPPass)
		if err != nil {
			return nil, fmt.Errorf("resolving smtp password: %w", err)
		}
		return NewEmailChannel(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, pass, cfg.From, cfg.To), nil

	case types.ChannelWebhook:
		url, err := resolver.Resolve(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("resolving webhook url: %w", err)
		}
		return NewWebhookChannel(url), nil

	case types.ChannelTelegram:
		token, err := resolver.Resolve(ctx, cfg.BotToken)
		if err != nil {
			return nil, fmt.Errorf("resolving bot token: %w", err)
		}
		return NewTelegramChannel(token, cfg.ChatID), nil

	default:
		return nil, fmt.Errorf("unknown channel kind %q", cfg.Kind)
	}
}
