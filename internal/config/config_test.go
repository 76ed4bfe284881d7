package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Provider:           ProviderOllama,
		ModelName:          "llama3.3",
		EmbedderModel:      "nomic-embed-text",
		OllamaHost:         "http://localhost:11434",
		ChunkMaxTokens:     512,
		ChunkOverlapTokens: 64,
		PostgresHost:       "localhost",
		PostgresPort:       5432,
		PostgresUser:       "brainbox",
		PostgresPassword:   "secret",
		PostgresDBName:     "brainbox",
		PostgresSSLMode:    "disable",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid ollama config", func(c *Config) {}, nil},
		{"unknown provider", func(c *Config) { c.Provider = "bedrock" }, ErrInvalidProvider},
		{"bad ollama host", func(c *Config) { c.OllamaHost = "localhost:11434" }, ErrInvalidOllamaHost},
		{"empty model", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
		{"chunk too small", func(c *Config) { c.ChunkMaxTokens = 8 }, ErrInvalidChunking},
		{"overlap too large", func(c *Config) { c.ChunkOverlapTokens = 400 }, ErrInvalidChunking},
		{"empty host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"port out of range", func(c *Config) { c.PostgresPort = 99999 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_GeminiRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfg := validConfig()
	cfg.Provider = ProviderGemini
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() = %v, want ErrMissingAPIKey", err)
	}

	t.Setenv("GEMINI_API_KEY", "test-key")
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with key = %v, want nil", err)
	}
}

func TestFullModelName(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     string
	}{
		{ProviderGemini, "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{ProviderOllama, "llama3.3", "ollama/llama3.3"},
		{ProviderOpenAI, "gpt-4o", "openai/gpt-4o"},
		{ProviderGemini, "custom/already-qualified", "custom/already-qualified"},
	}
	for _, tt := range tests {
		c := &Config{Provider: tt.provider, ModelName: tt.model}
		if got := c.FullModelName(); got != tt.want {
			t.Errorf("FullModelName(%s, %s) = %q, want %q", tt.provider, tt.model, got, tt.want)
		}
	}
}

func TestDatabaseURL_EscapesCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "p@ss:word"
	u := cfg.DatabaseURL()
	if strings.Contains(u, "p@ss:word") {
		t.Errorf("password not escaped in %q", u)
	}
	if !strings.HasPrefix(u, "postgres://") {
		t.Errorf("unexpected scheme in %q", u)
	}
}

func TestParseDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://user:pw@db.example.com:6432/kb?sslmode=require")
	cfg := validConfig()
	if err := cfg.parseDatabaseURL(); err != nil {
		t.Fatal(err)
	}
	if cfg.PostgresHost != "db.example.com" || cfg.PostgresPort != 6432 {
		t.Errorf("host/port = %s:%d", cfg.PostgresHost, cfg.PostgresPort)
	}
	if cfg.PostgresUser != "user" || cfg.PostgresPassword != "pw" {
		t.Error("credentials not taken from DATABASE_URL")
	}
	if cfg.PostgresDBName != "kb" || cfg.PostgresSSLMode != "require" {
		t.Errorf("db/sslmode = %s/%s", cfg.PostgresDBName, cfg.PostgresSSLMode)
	}
}

func TestParseDatabaseURL_RejectsOtherSchemes(t *testing.T) {
	t.Setenv("DATABASE_URL", "mysql://user:pw@host/db")
	cfg := validConfig()
	if err := cfg.parseDatabaseURL(); err == nil {
		t.Error("expected error for non-postgres scheme")
	}
}

func TestMaskSecret(t *testing.T) {
	if got := maskSecret(""); got != "" {
		t.Errorf("empty secret = %q", got)
	}
	if got := maskSecret("short"); strings.Contains(got, "short") || got == "" {
		t.Errorf("short secret leaked: %q", got)
	}
	long := maskSecret("my_long_secret_key_123")
	if strings.Contains(long, "long_secret") {
		t.Errorf("long secret leaked: %q", long)
	}
	if !strings.HasPrefix(long, "my") || !strings.HasSuffix(long, "23") {
		t.Errorf("long secret should keep 2-char hints: %q", long)
	}
}

func TestConfigString_MasksPassword(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "super_secret_password"
	if s := cfg.String(); strings.Contains(s, "super_secret_password") {
		t.Errorf("String() leaked the password: %s", s)
	}
}
