package auth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

const (
	testKey      = "pm-v1-0123456789abcdef0123456789abcdef-aaaabbbbccccddddeeeeffff0000111122223333444455556666777788889999"
	otherTestKey = "pm-v1-fedcba9876543210fedcba9876543210-9999888877776666555544443333222211110000ffffeeeeddddccccbbbbaaaa"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", testKey, false},
		{"empty", "", true},
		{"wrong prefix", "tk" + testKey[2:], true},
		{"wrong version", strings.Replace(testKey, "-v1-", "-v2-", 1), true},
		{"missing segment", "pm-v1-0123456789abcdef0123456789abcdef", true},
		{"short secret id", "pm-v1-0123abcd-" + testKey[39:], true},
		{"short random data", testKey[:len(testKey)-4], true},
		{"uppercase hex", strings.Replace(testKey, "aaaa", "AAAA", 1), true},
		{"non-hex characters", strings.Replace(testKey, "aaaa", "zzzz", 1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secretID, randomData, err := ParseAPIKey(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKeyFormat) {
					t.Fatalf("expected ErrInvalidKeyFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAPIKey error: %v", err)
			}
			if len(secretID) != 32 || len(randomData) != 64 {
				t.Fatalf("unexpected components %q / %q", secretID, randomData)
			}
		})
	}
}

func TestGenerateAPIKey(t *testing.T) {
	first, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey error: %v", err)
	}
	if _, _, err := ParseAPIKey(first); err != nil {
		t.Fatalf("generated key does not parse: %v", err)
	}

	second, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey error: %v", err)
	}
	if first == second {
		t.Fatal("two generated keys are identical")
	}
}

func TestLoadKeysFromEnv(t *testing.T) {
	// Clean environment
	os.Unsetenv("PM_API_KEY")
	os.Unsetenv("PM_API_KEY_1")
	os.Unsetenv("PM_API_KEY_2")
	os.Unsetenv("PM_API_KEY_3")

	t.Run("no keys", func(t *testing.T) {
		keys, err := LoadKeysFromEnv()
		if err != nil {
			t.Fatalf("LoadKeysFromEnv error: %v", err)
		}
		if len(keys) != 0 {
			t.Fatalf("expected no keys, got %d", len(keys))
		}
	})

	t.Run("single key", func(t *testing.T) {
		os.Setenv("PM_API_KEY", testKey)
		defer os.Unsetenv("PM_API_KEY")

		keys, err := LoadKeysFromEnv()
		if err != nil {
			t.Fatalf("LoadKeysFromEnv error: %v", err)
		}
		if len(keys) != 1 || keys[0] != testKey {
			t.Fatalf("expected [testKey], got %v", keys)
		}
	})

	t.Run("numbered keys stop at first gap", func(t *testing.T) {
		os.Setenv("PM_API_KEY", testKey)
		os.Setenv("PM_API_KEY_1", otherTestKey)
		os.Setenv("PM_API_KEY_3", testKey)
		defer func() {
			os.Unsetenv("PM_API_KEY")
			os.Unsetenv("PM_API_KEY_1")
			os.Unsetenv("PM_API_KEY_3")
		}()

		keys, err := LoadKeysFromEnv()
		if err != nil {
			t.Fatalf("LoadKeysFromEnv error: %v", err)
		}
		if len(keys) != 2 {
			t.Fatalf("expected 2 keys (gap at _2), got %d", len(keys))
		}
	})

	t.Run("invalid key names the variable", func(t *testing.T) {
		os.Setenv("PM_API_KEY_1", "not-a-key")
		defer os.Unsetenv("PM_API_KEY_1")

		_, err := LoadKeysFromEnv()
		if err == nil {
			t.Fatal("expected error for malformed key")
		}
		if !strings.Contains(err.Error(), "PM_API_KEY_1") {
			t.Fatalf("error should name the variable: %v", err)
		}
	})

	t.Run("duplicate values rejected", func(t *testing.T) {
		os.Setenv("PM_API_KEY", testKey)
		os.Setenv("PM_API_KEY_1", testKey)
		defer func() {
			os.Unsetenv("PM_API_KEY")
			os.Unsetenv("PM_API_KEY_1")
		}()

		_, err := LoadKeysFromEnv()
		if err == nil {
			t.Fatal("expected error for duplicate key values")
		}
		if !strings.Contains(err.Error(), "PM_API_KEY_1") || !strings.Contains(err.Error(), "PM_API_KEY") {
			t.Fatalf("error should name both variables: %v", err)
		}
	})
}

func TestAuthenticate(t *testing.T) {
	a, err := NewAuthenticator([]string{testKey}, testLogger())
	if err != nil {
		t.Fatalf("NewAuthenticator error: %v", err)
	}

	if err := a.Authenticate(testKey); err != nil {
		t.Fatalf("configured key rejected: %v", err)
	}
	if err := a.Authenticate(otherTestKey); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for unknown key, got %v", err)
	}
	if err := a.Authenticate("garbage"); !errors.Is(err, ErrInvalidKeyFormat) {
		t.Fatalf("expected ErrInvalidKeyFormat, got %v", err)
	}
	if err := a.Authenticate(""); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}

func TestNewAuthenticatorRejectsMalformedKey(t *testing.T) {
	if _, err := NewAuthenticator([]string{"nope"}, testLogger()); !errors.Is(err, ErrInvalidKeyFormat) {
		t.Fatalf("expected ErrInvalidKeyFormat, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	})

	a, err := NewAuthenticator([]string{testKey}, testLogger())
	if err != nil {
		t.Fatalf("NewAuthenticator error: %v", err)
	}
	handler := a.Middleware(next)

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rules", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected JSON error body, got Content-Type %q", ct)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("error body is not JSON: %v", err)
		}
		if !strings.Contains(body["error"], "X-API-Key") {
			t.Fatalf("error should point at the header: %q", body["error"])
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/rules", nil)
		req.Header.Set(HeaderAPIKey, otherTestKey)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("valid key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/rules", nil)
		req.Header.Set(HeaderAPIKey, testKey)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
			t.Fatalf("expected pass-through, got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("disabled authenticator passes through", func(t *testing.T) {
		open, err := NewAuthenticator(nil, testLogger())
		if err != nil {
			t.Fatalf("NewAuthenticator error: %v", err)
		}
		rec := httptest.NewRecorder()
		open.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rules", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected pass-through without keys, got %d", rec.Code)
		}
	})
}
