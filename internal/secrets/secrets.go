// Package secrets resolves sensitive configuration values like SMTP
// passwords and bot tokens.
//
// Channel configuration may carry credential references instead of
// plaintext values. A Resolver expands them at startup:
//
//	op://<vault>/<item>/<field>   looked up in 1Password Connect
//	env://<NAME>                  read from the environment
//	anything else                 returned as-is
//
// The 1Password-backed resolver is intended for production; the
// environment resolver covers development and testing.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Resolver expands credential references into plaintext values.
type Resolver interface {
	// Resolve expands ref. Plain values pass through unchanged.
	Resolve(ctx context.Context, ref string) (string, error)

	// Close releases any resources held by the resolver.
	Close() error
}

const (
	opPrefix  = "op://"
	envPrefix = "env://"
)

// resolveEnv handles env:// references and literal passthrough. Shared by
// all resolver implementations so op:// is the only backend-specific case.
func resolveEnv(ref string) (string, error) {
	if !strings.HasPrefix(ref, envPrefix) {
		return ref, nil
	}
	name := strings.TrimPrefix(ref, envPrefix)
	val, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("environment variable %s not set", name)
	}
	return val, nil
}

// splitOpRef splits op://vault/item/field into its three components.
func splitOpRef(ref string) (vault, item, field string, err error) {
	parts := strings.Split(strings.TrimPrefix(ref, opPrefix), "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("malformed secret reference %q, want op://vault/item/field", ref)
	}
	return parts[0], parts[1], parts[2], nil
}
