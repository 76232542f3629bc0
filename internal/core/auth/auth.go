// Package auth provides API key authentication for the HTTP API.
//
// Keys follow the format pm-v1-<secret_id>-<random_data> and are configured
// through environment variables only: PM_API_KEY for a single key, plus
// numbered PM_API_KEY_1, PM_API_KEY_2, ... during rotation windows where
// old and new keys are both valid. With no keys configured authentication
// is disabled and requests pass through.
package auth

import (
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
)

// HeaderAPIKey is the request header carrying the client key.
const HeaderAPIKey = "X-API-Key"

// LoadKeysFromEnv collects API keys from PM_API_KEY and the numbered
// PM_API_KEY_1, PM_API_KEY_2, ... variables. The numbered scan stops at
// the first gap. Every key is validated and duplicate values are rejected.
func LoadKeysFromEnv() ([]string, error) {
	var keys []string
	seen := make(map[string]string)

	add := func(envName, val string) error {
		if _, _, err := ParseAPIKey(val); err != nil {
			return fmt.Errorf("%s: %w", envName, err)
		}
		if prev, exists := seen[val]; exists {
			return fmt.Errorf("%s repeats the key already set in %s", envName, prev)
		}
		seen[val] = envName
		keys = append(keys, val)
		return nil
	}

	if val := os.Getenv("PM_API_KEY"); val != "" {
		if err := add("PM_API_KEY", val); err != nil {
			return nil, err
		}
	}

	// Numbered keys enable rotation: old and new keys valid during migration
	for i := 1; ; i++ {
		name := fmt.Sprintf("PM_API_KEY_%d", i)
		val := os.Getenv(name)
		if val == "" {
			break
		}
		if err := add(name, val); err != nil {
			return nil, err
		}
	}

	return keys, nil
}

// Authenticator validates presented API keys against the configured set.
// Only SHA-256 digests of the configured keys are retained.
type Authenticator struct {
	digests [][]byte
	logger  *slog.Logger
}

// NewAuthenticator creates an authenticator for the given keys. An empty
// key set disables authentication, which is logged once here.
func NewAuthenticator(keys []string, logger *slog.Logger) (*Authenticator, error) {
	a := &Authenticator{logger: logger.With("component", "auth")}
	for _, key := range keys {
		if _, _, err := ParseAPIKey(key); err != nil {
			return nil, err
		}
		a.digests = append(a.digests, keyDigest(key))
	}
	if len(a.digests) == 0 {
		a.logger.Warn("no API keys configured, authentication disabled")
	}
	return a, nil
}

// Enabled reports whether any keys are configured.
func (a *Authenticator) Enabled() bool {
	return len(a.digests) > 0
}

// Authenticate validates a presented API key.
func (a *Authenticator) Authenticate(presented string) error {
	if presented == "" {
		return ErrMissingKey
	}
	if _, _, err := ParseAPIKey(presented); err != nil {
		return err
	}

	digest := keyDigest(presented)
	for _, want := range a.digests {
		// Constant-time comparison prevents timing attacks
		if hmac.Equal(want, digest) {
			return nil
		}
	}
	return ErrInvalidKey
}

// Middleware authenticates requests via the X-API-Key header. With no keys
// configured it passes requests through untouched.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Authenticate(r.Header.Get(HeaderAPIKey)); err != nil {
			a.logger.Debug("request rejected", "path", r.URL.Path, "reason", err.Error())
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}
