package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/1Password/connect-sdk-go/connect"
)

// OnePasswordResolver resolves op:// references through a 1Password
// Connect server.
//
// Configuration is via environment variables:
//   - OP_CONNECT_HOST: URL of the 1Password Connect server
//   - OP_CONNECT_TOKEN: Access token for the Connect server
type OnePasswordResolver struct {
	client connect.Client
	logger *slog.Logger

	// Cache to avoid repeated API calls for the same reference
	mu    sync.RWMutex
	cache map[string]string
}

// OnePasswordConfig holds configuration for 1Password Connect.
type OnePasswordConfig struct {
	Host  string // OP_CONNECT_HOST
	Token string // OP_CONNECT_TOKEN
}

// NewOnePasswordResolver creates a 1Password-backed resolver.
func NewOnePasswordResolver(cfg OnePasswordConfig, logger *slog.Logger) (*OnePasswordResolver, error) {
	if cfg.Host == "" || cfg.Token == "" {
		return nil, fmt.Errorf("1Password configuration incomplete: host and token are required")
	}

	client := connect.NewClientWithUserAgent(cfg.Host, cfg.Token, "sentora-server")

	return &OnePasswordResolver{
		client: client,
		logger: logger,
		cache:  make(map[string]string),
	}, nil
}

// Resolve expands op:// and env:// references; plain values pass through.
func (r *OnePasswordResolver) Resolve(ctx context.Context, ref string) (string, error) {
	if !strings.HasPrefix(ref, opPrefix) {
		return resolveEnv(ref)
	}

	r.mu.RLock()
	if cached, ok := r.cache[ref]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	vault, item, field, err := splitOpRef(ref)
	if err != nil {
		return "", err
	}

	vaults, err := r.client.GetVaultsByTitle(vault)
	if err != nil {
		return "", fmt.Errorf("looking up vault %q: %w", vault, err)
	}
	if len(vaults) == 0 {
		return "", fmt.Errorf("vault %q not found", vault)
	}

	items, err := r.client.GetItemsByTitle(item, vaults[0].ID)
	if err != nil {
		return "", fmt.Errorf("looking up item %q: %w", item, err)
	}
	if len(items) == 0 {
		return "", fmt.Errorf("item %q not found in vault %q", item, vault)
	}

	full, err := r.client.GetItem(items[0].ID, vaults[0].ID)
	if err != nil {
		return "", fmt.Errorf("getting item %q: %w", item, err)
	}

	for _, f := range full.Fields {
		if f.Label == field || f.ID == field {
			r.mu.Lock()
			r.cache[ref] = f.Value
			r.mu.Unlock()
			return f.Value, nil
		}
	}

	return "", fmt.Errorf("field %q not found on item %q", field, item)
}

// Close clears the in-memory cache.
func (r *OnePasswordResolver) Close() error {
	r.mu.Lock()
	r.cache = make(map[string]string)
	r.mu.Unlock()
	return nil
}
