// Package config provides configuration loading and structs for the manabu server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/manabu/internal/models"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	LogLevel   string           `yaml:"log_level,omitempty"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Completion CompletionConfig `yaml:"completion"`
	RAG        RAGConfig        `yaml:"rag"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs"`
	MaxUploadMB        int    `yaml:"max_upload_mb"`
}

// RequestTimeout returns the per-request timeout applied by the router.
func (s *ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

// StorageConfig holds paths for the persistence log and the corpus snapshot.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	SnapshotPath string `yaml:"snapshot_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of onnx, ollama, openai or mock.
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	VocabPath  string `yaml:"vocab_path"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// CompletionConfig selects the completion service and the generation parameters per call.
type CompletionConfig struct {
	// Provider is one of openai or ollama.
	Provider            string  `yaml:"provider"`
	Model               string  `yaml:"model"`
	BaseURL             string  `yaml:"base_url"`
	APIKeyEnv           string  `yaml:"api_key_env"`
	TimeoutSecs         int     `yaml:"timeout_secs"`
	MaxRetries          int     `yaml:"max_retries"`
	AnswerMaxTokens     int     `yaml:"answer_max_tokens"`
	AnswerTemperature   float64 `yaml:"answer_temperature"`
	VerifyMaxTokens     int     `yaml:"verify_max_tokens"`
	QuestionMaxTokens   int     `yaml:"question_max_tokens"`
	QuestionTemperature float64 `yaml:"question_temperature"`
}

// Timeout bounds each embedding and completion call.
func (c *CompletionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// APIKey reads the key from the environment variable named by APIKeyEnv.
func (c *CompletionConfig) APIKey() string {
	return lookupKey(c.APIKeyEnv)
}

// APIKey reads the key from the environment variable named by APIKeyEnv.
func (e *EmbeddingConfig) APIKey() string {
	return lookupKey(e.APIKeyEnv)
}

func lookupKey(env string) string {
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

// RAGConfig holds chunking and retrieval settings.
type RAGConfig struct {
	Categories    []string `yaml:"categories"`
	ChunkSize     int      `yaml:"chunk_size"`
	ChunkOverlap  int      `yaml:"chunk_overlap"`
	Separators    []string `yaml:"separators"`
	TopK          int      `yaml:"top_k"`
	QuestionTopK  int      `yaml:"question_top_k"`
	PreviewLength int      `yaml:"preview_length"`
}

// CategoryList returns the configured categories as model values.
func (r *RAGConfig) CategoryList() []models.Category {
	return models.CategoriesFromStrings(r.Categories)
}

// WatchSource binds an inbox directory to a category and subject.
type WatchSource struct {
	Path     string `yaml:"path"`
	Category string `yaml:"category"`
	Subject  string `yaml:"subject"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Sources    []WatchSource `yaml:"sources"`
	Extensions []string      `yaml:"extensions"`
	Recursive  *bool         `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Default returns a config with every default applied, used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path, expands paths, applies defaults and validates.
// Returns an error if the file cannot be read or parsed, or if the result is invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.SnapshotPath = expandPath(cfg.Storage.SnapshotPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Embedding.VocabPath != "" {
		cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	}
	for i := range cfg.Watch.Sources {
		cfg.Watch.Sources[i].Path = expandPath(cfg.Watch.Sources[i].Path, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("%w: rag.chunk_size must be positive", models.ErrValidation)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("%w: rag.chunk_overlap (%d) must be in [0, chunk_size=%d)",
			models.ErrValidation, c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if len(c.RAG.CategoryList()) == 0 {
		return fmt.Errorf("%w: rag.categories must list at least one exam type", models.ErrValidation)
	}
	categories := c.RAG.CategoryList()
	for _, src := range c.Watch.Sources {
		if _, err := models.ParseCategory(src.Category, categories); err != nil {
			return fmt.Errorf("watch source %s: %w", src.Path, err)
		}
		if strings.TrimSpace(src.Subject) == "" || strings.TrimSpace(src.Path) == "" {
			return fmt.Errorf("%w: watch source needs path and subject", models.ErrValidation)
		}
	}
	switch c.Embedding.Provider {
	case "onnx", "ollama", "openai", "mock":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", models.ErrValidation, c.Embedding.Provider)
	}
	switch c.Completion.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("%w: unknown completion provider %q", models.ErrValidation, c.Completion.Provider)
	}
	return nil
}

// Save writes the config to path. Used by "manabu init" to write a starter config.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" and other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
