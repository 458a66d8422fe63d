// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.vantigo/config.yaml)
//  3. Default values
//
// Sensitive values (HMAC secret, database password, API keys) are masked in
// MarshalJSON and never logged. Validation is fail-fast with sentinel errors
// so callers can match with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderDimension indicates an unsupported embedding dimension.
	ErrInvalidEmbedderDimension = errors.New("invalid embedder dimension")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrMissingHMACSecret indicates the HMAC secret is not set.
	ErrMissingHMACSecret = errors.New("missing HMAC secret")

	// ErrInvalidHMACSecret indicates the HMAC secret is too short.
	ErrInvalidHMACSecret = errors.New("invalid HMAC secret")

	// ErrInvalidMatcherTopK indicates the matcher top-k default is out of range.
	ErrInvalidMatcherTopK = errors.New("invalid matcher top-k")

	// ErrInvalidMatcherThreshold indicates the similarity threshold is out of range.
	ErrInvalidMatcherThreshold = errors.New("invalid matcher threshold")

	// ErrInvalidCacheTTL indicates the embedding cache TTL is invalid.
	ErrInvalidCacheTTL = errors.New("invalid embedding cache TTL")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default but supports
	// truncation via OutputDimensionality; the schema uses 768.
	DefaultEmbedderModel = "gemini-embedding-001"

	// EmbeddingDimension is the vector dimension stored in pgvector.
	// Must match the vector(N) column in db/migrations.
	EmbeddingDimension = 768

	// MinHMACSecretLen is the minimum HMAC secret length in bytes.
	MinHMACSecretLen = 32
)

// Tracing holds OTLP trace exporter settings. Spans are exported to a local
// agent which handles authentication and forwarding.
type Tracing struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	AgentHost   string `mapstructure:"agent_host" json:"agent_host"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Embedding provider configuration
	GeminiAPIKey  string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Embedding cache
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" json:"cache_ttl_seconds"`
	CacheMaxEntries int `mapstructure:"cache_max_entries" json:"cache_max_entries"`

	// Relevance matcher defaults
	MatcherTopK      int     `mapstructure:"matcher_top_k" json:"matcher_top_k"`
	MatcherThreshold float32 `mapstructure:"matcher_threshold" json:"matcher_threshold"`

	// PostgreSQL connection
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// Cookie signing and impersonation state
	HMACSecret string `mapstructure:"hmac_secret" json:"hmac_secret"` // SENSITIVE: masked in MarshalJSON

	// Impersonation TTL in minutes
	ImpersonationTTLMinutes int `mapstructure:"impersonation_ttl_minutes" json:"impersonation_ttl_minutes"`

	Tracing Tracing `mapstructure:"tracing" json:"tracing"`
}

// Load reads configuration from ~/.vantigo/config.yaml, the current
// directory, and environment variables, then validates the result.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".vantigo")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults apply.
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

	// DATABASE_URL has the highest priority for PostgreSQL settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("embedder_model", DefaultEmbedderModel)

	viper.SetDefault("cache_ttl_seconds", 600)
	viper.SetDefault("cache_max_entries", 1024)

	viper.SetDefault("matcher_top_k", 5)
	viper.SetDefault("matcher_threshold", 0.6)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "vantigo")
	viper.SetDefault("postgres_password", "vantigo_dev_password")
	viper.SetDefault("postgres_db_name", "vantigo")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("listen_addr", "127.0.0.1:8750")
	viper.SetDefault("cors_origins", []string{"http://localhost:4200"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)

	viper.SetDefault("impersonation_ttl_minutes", 60)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.agent_host", "localhost:4318")
	viper.SetDefault("tracing.service_name", "vantigo")
	viper.SetDefault("tracing.environment", "dev")
}

func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("hmac_secret", "HMAC_SECRET")
	mustBind("listen_addr", "VANTIGO_LISTEN_ADDR")
	mustBind("cors_origins", "VANTIGO_CORS_ORIGINS")
	mustBind("trust_proxy", "VANTIGO_TRUST_PROXY")
	mustBind("rate_burst", "VANTIGO_RATE_BURST")
	mustBind("embedder_model", "VANTIGO_EMBEDDER_MODEL")
	mustBind("tracing.enabled", "VANTIGO_TRACING_ENABLED")
	mustBind("tracing.agent_host", "VANTIGO_TRACING_AGENT_HOST")
}

// Validate checks all configuration values and returns the first problem
// found, wrapped around a package sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}

	if c.CacheTTLSeconds <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidCacheTTL, c.CacheTTLSeconds)
	}

	if c.MatcherTopK < 1 || c.MatcherTopK > 100 {
		return fmt.Errorf("%w: must be in [1, 100], got %d", ErrInvalidMatcherTopK, c.MatcherTopK)
	}
	if c.MatcherThreshold < 0 || c.MatcherThreshold > 1 {
		return fmt.Errorf("%w: must be in [0, 1], got %v", ErrInvalidMatcherThreshold, c.MatcherThreshold)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port must be in [1, 65535], got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	switch c.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}

// ValidateServe performs the additional checks required for serve mode:
// the HMAC secret must be present and strong enough, and the embedding
// provider must be reachable.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.HMACSecret == "" {
		return fmt.Errorf("%w: set HMAC_SECRET", ErrMissingHMACSecret)
	}
	if len(c.HMACSecret) < MinHMACSecretLen {
		return fmt.Errorf("%w: need at least %d bytes, got %d",
			ErrInvalidHMACSecret, MinHMACSecretLen, len(c.HMACSecret))
	}

	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}

	return nil
}

// maskSecret replaces a non-empty secret with a fixed placeholder.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON masks sensitive fields so the config can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.HMACSecret = maskSecret(a.HMACSecret)
	return json.Marshal(a)
}
