// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.brainbox/config.yaml)
//  3. Default values
//
// Sensitive fields (passwords) are masked in MarshalJSON; sentinel errors
// support errors.Is() checks at call sites.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidChunking indicates chunk size or overlap is out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// DefaultEmbedderModel outputs 768-dimension vectors, matching the
// pgvector schema; see vector.Dimensions.
const DefaultEmbedderModel = "text-embedding-004"

// Config stores application configuration.
// Sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider" json:"provider"` // "gemini" (default), "ollama", "openai"
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Chunking configuration
	ChunkMaxTokens     int `mapstructure:"chunk_max_tokens" json:"chunk_max_tokens"`
	ChunkOverlapTokens int `mapstructure:"chunk_overlap_tokens" json:"chunk_overlap_tokens"`

	// Retrieval defaults; per-call options override these
	RetrievalTopK        int `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	RetrievalTokenBudget int `mapstructure:"retrieval_token_budget" json:"retrieval_token_budget"`

	// Reconcile configuration
	ReconcileIntervalMinutes int    `mapstructure:"reconcile_interval_minutes" json:"reconcile_interval_minutes"`
	ReconcileLockPath        string `mapstructure:"reconcile_lock_path" json:"reconcile_lock_path"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".brainbox")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults(configDir)
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults carry the day.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(configDir string) {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	viper.SetDefault("chunk_max_tokens", 512)
	viper.SetDefault("chunk_overlap_tokens", 64)

	viper.SetDefault("retrieval_top_k", 8)
	viper.SetDefault("retrieval_token_budget", 2000)

	viper.SetDefault("reconcile_interval_minutes", 15)
	viper.SetDefault("reconcile_lock_path", filepath.Join(configDir, "reconcile.lock"))

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "brainbox")
	viper.SetDefault("postgres_password", "brainbox_dev_password")
	viper.SetDefault("postgres_db_name", "brainbox")
	viper.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds runtime overrides explicitly. Provider API keys
// (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by the Genkit
// plugins, not via Viper; Validate checks their presence.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "BRAINBOX_PROVIDER")
	mustBind("model_name", "BRAINBOX_MODEL_NAME")
	mustBind("embedder_model", "BRAINBOX_EMBEDDER_MODEL")
	mustBind("ollama_host", "BRAINBOX_OLLAMA_HOST")
	mustBind("reconcile_interval_minutes", "BRAINBOX_RECONCILE_INTERVAL_MINUTES")
}

// parseDatabaseURL overrides the PostgreSQL fields from DATABASE_URL when
// set, the convention most hosted Postgres providers use.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme %q is not postgres", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid DATABASE_URL port: %w", err)
		}
		c.PostgresPort = p
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		c.PostgresDBName = db
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// Validate fails fast on configuration that cannot work at runtime.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
			return fmt.Errorf("%w: %q", ErrInvalidOllamaHost, c.OllamaHost)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModelName)
	}
	if c.ChunkMaxTokens < 32 || c.ChunkMaxTokens > 8192 {
		return fmt.Errorf("%w: chunk_max_tokens %d not in [32, 8192]", ErrInvalidChunking, c.ChunkMaxTokens)
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens > c.ChunkMaxTokens/2 {
		return fmt.Errorf("%w: chunk_overlap_tokens %d not in [0, %d]", ErrInvalidChunking, c.ChunkOverlapTokens, c.ChunkMaxTokens/2)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPostgresDBName)
	}
	return nil
}

// DatabaseURL builds the pgx connection string from the PostgreSQL fields.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost, c.PostgresPort, c.PostgresDBName, c.PostgresSSLMode,
	)
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// FullEmbedderName returns the provider-qualified embedder name.
func (c *Config) FullEmbedderName() string {
	if strings.Contains(c.EmbedderModel, "/") {
		return c.EmbedderModel
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.EmbedderModel
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.EmbedderModel
	default:
		return ProviderGoogleAI + "/" + c.EmbedderModel
	}
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid substring matches against real secret characters.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 bytes or less
// are fully masked; longer ones keep the first and last 2 characters for
// debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
