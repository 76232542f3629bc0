package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// LoadConfig loads configuration with viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Defaults matching Default()
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("registry.db_url", "")
	v.SetDefault("classifier.lexicon_path", "")
	v.SetDefault("classifier.watch_lexicon", false)
	v.SetDefault("extract.backend", ExtractBackendHeuristic)
	v.SetDefault("extract.base_url", "")
	v.SetDefault("extract.model", "")
	v.SetDefault("extract.timeout", "60s")
	v.SetDefault("index.enabled", false)
	v.SetDefault("index.base_url", "")
	v.SetDefault("index.schedule", "@every 1h")
	v.SetDefault("review.min_confidence", 0.8)

	// Bind environment variables with PM_ prefix
	v.SetEnvPrefix("PM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Security check: reject secrets in config files
	// Secrets must be environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		Registry: RegistryConfig{
			DBURL: v.GetString("registry.db_url"),
		},
		Classifier: ClassifierConfig{
			LexiconPath:  v.GetString("classifier.lexicon_path"),
			WatchLexicon: v.GetBool("classifier.watch_lexicon"),
		},
		Extract: ExtractConfig{
			Backend: v.GetString("extract.backend"),
			BaseURL: v.GetString("extract.base_url"),
			Model:   v.GetString("extract.model"),
			Timeout: v.GetDuration("extract.timeout"),
		},
		Index: IndexConfig{
			Enabled:  v.GetBool("index.enabled"),
			BaseURL:  v.GetString("index.base_url"),
			Schedule: v.GetString("index.schedule"),
		},
		Review: ReviewConfig{
			MinConfidence: v.GetFloat64("review.min_confidence"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range, timeouts, backend selection, schedule
// syntax, and threshold bounds.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}

	switch cfg.Extract.Backend {
	case ExtractBackendHeuristic, ExtractBackendNone:
	case ExtractBackendLLM:
		if cfg.Extract.BaseURL == "" {
			return fmt.Errorf("extract.base_url is required with the llm backend")
		}
		if cfg.Extract.Model == "" {
			return fmt.Errorf("extract.model is required with the llm backend")
		}
	default:
		return fmt.Errorf("extract.backend must be one of heuristic, llm, none; got %q", cfg.Extract.Backend)
	}
	if cfg.Extract.Timeout <= 0 {
		return fmt.Errorf("extract.timeout must be positive, got %v", cfg.Extract.Timeout)
	}

	if cfg.Index.Enabled {
		if cfg.Index.Schedule == "" {
			return fmt.Errorf("index.schedule is required when index sync is enabled")
		}
		if _, err := cron.ParseStandard(cfg.Index.Schedule); err != nil {
			return fmt.Errorf("index.schedule %q is not valid cron syntax: %w", cfg.Index.Schedule, err)
		}
	}

	if cfg.Review.MinConfidence < 0 || cfg.Review.MinConfidence > 1 {
		return fmt.Errorf("review.min_confidence must be within [0, 1], got %v", cfg.Review.MinConfidence)
	}

	return nil
}

// secretKeys are config file keys that would carry credentials. Each names
// the environment variable to use instead.
var secretKeys = map[string]string{
	"api_key":          "PM_API_KEY",
	"api_keys":         "PM_API_KEY",
	"server.api_key":   "PM_API_KEY",
	"server.api_keys":  "PM_API_KEY",
	"extract.api_key":  "PM_LLM_API_KEY",
	"llm.api_key":      "PM_LLM_API_KEY",
	"index.api_key":    "PM_INDEX_API_KEY",
	"registry.api_key": "PM_API_KEY",
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	for key, env := range secretKeys {
		if v.InConfig(key) {
			return fmt.Errorf("credentials are not allowed in config files: remove %q and use the %s environment variable", key, env)
		}
	}
	return nil
}
