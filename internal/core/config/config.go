// Package config provides configuration management for the PolicyMatch
// service. Values come from CLI flags, environment, and an optional config
// file, in that precedence. Credentials never live here: API keys and
// service tokens are environment-only, and a config file that tries to
// carry one fails validation.
package config

import "time"

// Extraction backends selectable via extract.backend.
const (
	ExtractBackendHeuristic = "heuristic"
	ExtractBackendLLM       = "llm"
	ExtractBackendNone      = "none"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig
	Registry   RegistryConfig
	Classifier ClassifierConfig
	Extract    ExtractConfig
	Index      IndexConfig
	Review     ReviewConfig
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

// RegistryConfig holds rule storage settings. An empty DBURL selects the
// in-memory store; sqlite:// and postgres:// URLs select SQL storage.
type RegistryConfig struct {
	DBURL string
}

// ClassifierConfig holds chunk classification settings. An empty LexiconPath
// uses the embedded vocabulary; WatchLexicon hot-reloads the file on change.
type ClassifierConfig struct {
	LexiconPath  string
	WatchLexicon bool
}

// ExtractConfig holds draft extraction settings. BaseURL and Model matter
// only for the llm backend; its API key comes from PM_LLM_API_KEY.
type ExtractConfig struct {
	Backend string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// IndexConfig holds retrieval-index sync settings. An empty BaseURL keeps
// the index in process, which suits single-node runs; Schedule is standard
// cron syntax or an @every descriptor.
type IndexConfig struct {
	Enabled  bool
	BaseURL  string
	Schedule string
}

// ReviewConfig holds draft review settings. MinConfidence is the threshold
// for --auto approval.
type ReviewConfig struct {
	MinConfidence float64
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			RequestTimeout: 30 * time.Second,
		},
		Registry: RegistryConfig{
			DBURL: "",
		},
		Classifier: ClassifierConfig{
			LexiconPath:  "",
			WatchLexicon: false,
		},
		Extract: ExtractConfig{
			Backend: ExtractBackendHeuristic,
			Timeout: 60 * time.Second,
		},
		Index: IndexConfig{
			Enabled:  false,
			Schedule: "@every 1h",
		},
		Review: ReviewConfig{
			MinConfidence: 0.8,
		},
	}
}
