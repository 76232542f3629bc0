package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestConfigPrecedence verifies the documented source order:
// environment > config file > defaults. Flag precedence sits above all of
// these: the CLI overrides loaded values for any flag explicitly set.
func TestConfigPrecedence(t *testing.T) {
	writeConfig := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "policymatch.yaml")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 9090\n")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig error: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Fatalf("expected file port 9090 over default, got %d", cfg.Server.Port)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		os.Setenv("PM_SERVER_PORT", "8085")
		defer os.Unsetenv("PM_SERVER_PORT")

		path := writeConfig(t, "server:\n  port: 9090\n")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig error: %v", err)
		}
		if cfg.Server.Port != 8085 {
			t.Fatalf("environment should override config file: expected 8085, got %d", cfg.Server.Port)
		}
	})

	t.Run("untouched sections keep defaults alongside file", func(t *testing.T) {
		path := writeConfig(t, "registry:\n  db_url: sqlite:///var/lib/pm.db\n")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig error: %v", err)
		}
		if cfg.Registry.DBURL != "sqlite:///var/lib/pm.db" {
			t.Fatalf("expected db_url from file, got %q", cfg.Registry.DBURL)
		}
		if cfg.Server.Port != 8080 || cfg.Extract.Backend != ExtractBackendHeuristic {
			t.Fatalf("defaults disturbed: %+v", cfg)
		}
	})
}
