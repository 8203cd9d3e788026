package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeyAuth validates the X-API-Key header against a configured key set.
// Keys are either plaintext or bcrypt hashes (entries starting with "$2").
type KeyAuth struct {
	plain  []string
	hashed []string
	logger *slog.Logger
}

// NewKeyAuth creates a key validator from the configured key list.
func NewKeyAuth(keys []string, logger *slog.Logger) *KeyAuth {
	a := &KeyAuth{logger: logger}
	for _, k := range keys {
		if strings.HasPrefix(k, "$2") {
			a.hashed = append(a.hashed, k)
		} else {
			a.plain = append(a.plain, k)
		}
	}
	return a
}

// Valid reports whether the presented key matches any configured key.
func (a *KeyAuth) Valid(key string) bool {
	if key == "" {
		return false
	}
	for _, p := range a.plain {
		if subtle.ConstantTimeCompare([]byte(p), []byte(key)) == 1 {
			return true
		}
	}
	for _, h := range a.hashed {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(key)) == nil {
			return true
		}
	}
	return false
}

// Middleware creates middleware that rejects requests without a valid
// X-API-Key header.
func (a *KeyAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				a.logger.Warn("auth failed: missing API key",
					"path", r.URL.Path,
					"remote", r.RemoteAddr)
				http.Error(w, "unauthorized: missing API key", http.StatusUnauthorized)
				return
			}

			if !a.Valid(key) {
				a.logger.Warn("auth failed: invalid API key",
					"path", r.URL.Path,
					"remote", r.RemoteAddr)
				http.Error(w, "unauthorized: invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
