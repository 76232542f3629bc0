package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stratamed/policymatch/internal/classify"
	"github.com/stratamed/policymatch/internal/core/api"
	"github.com/stratamed/policymatch/internal/core/auth"
	"github.com/stratamed/policymatch/internal/core/config"
	"github.com/stratamed/policymatch/internal/engine"
	"github.com/stratamed/policymatch/internal/ingest"
	"github.com/stratamed/policymatch/internal/registry"
	"github.com/stratamed/policymatch/internal/telemetry"
)

const serverTestKey = "pm-v1-0123456789abcdef0123456789abcdef-aaaabbbbccccddddeeeeffff0000111122223333444455556666777788889999"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, keys []string) *HTTPServer {
	t.Helper()

	reg, err := registry.New(context.Background(), registry.NewMemStore(), testLogger())
	if err != nil {
		t.Fatalf("registry.New error: %v", err)
	}
	cls, err := classify.New(classify.DefaultLexicon())
	if err != nil {
		t.Fatalf("classify.New error: %v", err)
	}
	pipe := ingest.NewPipeline(reg, cls, nil, nil, testLogger())

	metrics := telemetry.New()
	svc, err := api.NewService(reg, engine.New(), pipe, nil, metrics, testLogger())
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	authenticator, err := auth.NewAuthenticator(keys, testLogger())
	if err != nil {
		t.Fatalf("NewAuthenticator error: %v", err)
	}

	cfg := config.Default()
	srv, err := NewHTTPServer(&cfg.Server, svc, authenticator, metrics, testLogger())
	if err != nil {
		t.Fatalf("NewHTTPServer error: %v", err)
	}
	return srv
}

func TestServerComposition(t *testing.T) {
	srv := newTestServer(t, []string{serverTestKey})
	handler := srv.Handler()

	t.Run("healthz open without key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("api requires key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rules", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 without key, got %d", rec.Code)
		}
	})

	t.Run("api accepts configured key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/rules", nil)
		req.Header.Set(auth.HeaderAPIKey, serverTestKey)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 with key, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("metrics open without key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		// The authenticated request above went through the instrumented
		// routes, so the duration histogram has a sample by now.
		if !strings.Contains(rec.Body.String(), "policymatch_http_request_duration_seconds") {
			t.Fatal("metrics exposition is missing the request duration histogram")
		}
	})
}

func TestServerWithoutKeysIsOpen(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rules", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected open access without configured keys, got %d", rec.Code)
	}
}

func TestServerStartShutdown(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start returned error after cancel: %v", err)
	}
}
