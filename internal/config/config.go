package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/iskochergin/qletovo/internal/settings"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	// Corpus
	IndexDir string `envconfig:"INDEX_DIR" default:"data/index"`
	DocsDir  string `envconfig:"DOCS_DIR" default:"data/docs"`

	// Models
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`
	GeminiEmbedModel  string `envconfig:"GEMINI_EMBED_MODEL" default:"gemini-embedding-001"`
	GeminiChatModel   string `envconfig:"GEMINI_CHAT_MODEL" default:"gemini-2.0-flash"`
	TokenizerModel    string `envconfig:"TOKENIZER_MODEL" default:"gpt-3.5-turbo"`
	LLMTimeoutSeconds int    `envconfig:"LLM_TIMEOUT_SECONDS" default:"60"`

	// Retrieval defaults, overridable at runtime through /settings
	TopK        int `envconfig:"TOP_K" default:"12"`
	BestK       int `envconfig:"BEST_K" default:"6"`
	PageWindow  int `envconfig:"PAGE_WINDOW" default:"1"`
	MaxSnippet  int `envconfig:"MAX_SNIPPET" default:"1200"`
	SourceLimit int `envconfig:"SOURCE_LIMIT" default:"3"`

	// Server
	ServerPort   int      `envconfig:"SERVER_PORT" default:"8000"`
	CORSOrigins  []string `envconfig:"CORS_ORIGINS" default:"*"`
	QueryLogPath string   `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	LogLevel     string   `envconfig:"LOG_LEVEL" default:"info"`

	// Per-client limits on /ask
	AskRateSeconds int `envconfig:"ASK_RATE_SECONDS" default:"5"`
	AskDailyLimit  int `envconfig:"ASK_DAILY_LIMIT" default:"30"`

	// Optional settings database; in-memory settings when DB_HOST is empty
	DBHost        string `envconfig:"DB_HOST"`
	DBPort        int    `envconfig:"DB_PORT" default:"5432"`
	DBUser        string `envconfig:"DB_USER" default:"qletovo"`
	DBPass        string `envconfig:"DB_PASS"`
	DBName        string `envconfig:"DB_NAME" default:"qletovo"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.IndexDir == "" {
		return fmt.Errorf("%w: INDEX_DIR", ErrMissingRequired)
	}
	if c.DocsDir == "" {
		return fmt.Errorf("%w: DOCS_DIR", ErrMissingRequired)
	}
	if c.DBHost != "" {
		if c.DBUser == "" {
			return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
		}
		if c.DBName == "" {
			return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
		}
	}
	if err := c.RetrievalDefaults().Validate(); err != nil {
		return fmt.Errorf("retrieval defaults: %w", err)
	}
	return nil
}

// RetrievalDefaults are the settings used until a store overrides them.
func (c *Config) RetrievalDefaults() *settings.Settings {
	return &settings.Settings{
		ID:          1,
		TopK:        c.TopK,
		BestK:       c.BestK,
		PageWindow:  c.PageWindow,
		MaxSnippet:  c.MaxSnippet,
		SourceLimit: c.SourceLimit,
	}
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func (c *Config) AskInterval() time.Duration {
	return time.Duration(c.AskRateSeconds) * time.Second
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
