package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Config holds configuration for the secrets backend.
type Config struct {
	// Backend specifies which backend to use: "1password", "env", or "auto".
	// "auto" (default) uses 1Password if configured, otherwise env.
	Backend string

	// 1Password Connect configuration
	// Set via environment: OP_CONNECT_HOST, OP_CONNECT_TOKEN
	OnePasswordHost  string
	OnePasswordToken string
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	backend := os.Getenv("SENTORA_SECRETS_BACKEND")
	if backend == "" {
		backend = "auto"
	}
	return Config{
		Backend:          backend,
		OnePasswordHost:  os.Getenv("OP_CONNECT_HOST"),
		OnePasswordToken: os.Getenv("OP_CONNECT_TOKEN"),
	}
}

// NewResolver creates a Resolver based on configuration.
func NewResolver(cfg Config, logger *slog.Logger) (Resolver, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "auto"
	}

	switch backend {
	case "1password":
		if cfg.OnePasswordToken == "" {
			return nil, fmt.Errorf("1Password backend requested but OP_CONNECT_TOKEN not set")
		}
		return NewOnePasswordResolver(OnePasswordConfig{
			Host:  cfg.OnePasswordHost,
			Token: cfg.OnePasswordToken,
		}, logger)

	case "env":
		return EnvResolver{}, nil

	case "auto":
		// Try 1Password first, fall back to environment only
		if cfg.OnePasswordToken != "" {
			r, err := NewOnePasswordResolver(OnePasswordConfig{
				Host:  cfg.OnePasswordHost,
				Token: cfg.OnePasswordToken,
			}, logger)
			if err != nil {
				logger.Warn("failed to initialize 1Password, falling back to env resolver",
					"error", err)
				return EnvResolver{}, nil
			}
			return r, nil
		}
		logger.Info("OP_CONNECT_TOKEN not set, resolving secrets from environment only")
		return EnvResolver{}, nil

	default:
		return nil, fmt.Errorf("unknown secrets backend: %s", backend)
	}
}

// EnvResolver resolves env:// references and passes literals through.
// op:// references are an error without a 1Password backend.
type EnvResolver struct{}

// Resolve implements Resolver.
func (EnvResolver) Resolve(_ context.Context, ref string) (string, error) {
	if len(ref) >= len(opPrefix) && ref[:len(opPrefix)] == opPrefix {
		return "", fmt.Errorf("cannot resolve %q: 1Password backend not configured", ref)
	}
	return resolveEnv(ref)
}

// Close implements Resolver.
func (EnvResolver) Close() error { return nil }
