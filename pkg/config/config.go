package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for shoplens-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Logging configuration
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Document store configuration (MongoDB)
	Mongo MongoConfig `yaml:"mongo"`

	// Answer cache configuration (Redis)
	Redis RedisConfig `yaml:"redis"`

	// LLM provider configuration
	AI AIConfig `yaml:"ai"`

	// Question routing configuration
	Router RouterConfig `yaml:"router"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"false"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// HMACSecret verifies HS256 tokens issued by the storefront backend.
	// Used when no JWKS endpoint covers the token issuer.
	HMACSecret string `yaml:"-" env:"AUTH_HMAC_SECRET"` // Secret - not in YAML
}

// MongoConfig holds MongoDB document store configuration.
type MongoConfig struct {
	// URI overrides the host/port/user fields when set. It may embed
	// credentials, so it is accepted from the environment only.
	URI string `yaml:"-" env:"MONGO_URI"`

	Host        string `yaml:"host" env:"MONGO_HOST" env-default:"localhost"`
	Port        int    `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
	User        string `yaml:"user" env:"MONGO_USER" env-default:""`
	Password    string `yaml:"-" env:"MONGO_PASSWORD"` // Secret - not in YAML
	Database    string `yaml:"database" env:"MONGO_DATABASE" env-default:"shoplens"`
	AuthSource  string `yaml:"auth_source" env:"MONGO_AUTH_SOURCE" env-default:"admin"`
	MaxPoolSize uint64 `yaml:"max_pool_size" env:"MONGO_MAX_POOL_SIZE" env-default:"50"`

	// TimeoutSeconds bounds individual aggregation and find operations.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"MONGO_TIMEOUT_SECONDS" env-default:"15"`
}

// RedisConfig holds Redis answer cache configuration.
// An empty Host disables caching entirely.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`

	// AnswerTTLMinutes is how long cached answers stay fresh.
	AnswerTTLMinutes int `yaml:"answer_ttl_minutes" env:"REDIS_ANSWER_TTL_MINUTES" env-default:"15"`

	// KeyPrefix namespaces cache entries so multiple deployments can share
	// one Redis instance.
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"shoplens:answer:"`
}

// AIConfig holds LLM provider configuration for generative classification
// and semantic embeddings.
type AIConfig struct {
	// Provider selects the client implementation: "openai" (or any
	// OpenAI-compatible endpoint via BaseURL), "anthropic", or "none".
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`

	APIKey  string `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML
	BaseURL string `yaml:"base_url" env:"AI_BASE_URL" env-default:""`

	Model string `yaml:"model" env:"AI_MODEL" env-default:"gpt-4o-mini"`

	// Embedding endpoint defaults to the chat endpoint when unset. A separate
	// endpoint is needed when the chat provider (e.g. anthropic) has no
	// embeddings API.
	EmbeddingBaseURL string `yaml:"embedding_base_url" env:"AI_EMBEDDING_BASE_URL" env-default:""`
	EmbeddingAPIKey  string `yaml:"-" env:"AI_EMBEDDING_API_KEY"` // Secret - not in YAML
	EmbeddingModel   string `yaml:"embedding_model" env:"AI_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`

	MaxTokens      int `yaml:"max_tokens" env:"AI_MAX_TOKENS" env-default:"1024"`
	TimeoutSeconds int `yaml:"timeout_seconds" env:"AI_TIMEOUT_SECONDS" env-default:"30"`

	// EnhanceAnswers enables the optional generative rephrasing of templated
	// answers. Numbers always come from the templates regardless.
	EnhanceAnswers bool `yaml:"enhance_answers" env:"AI_ENHANCE_ANSWERS" env-default:"false"`
}

// IsAvailable returns true if an LLM provider is configured.
func (c *AIConfig) IsAvailable() bool {
	return c.Provider != "" && c.Provider != "none" && c.APIKey != ""
}

// EffectiveEmbeddingBaseURL returns the embedding endpoint, falling back to
// the chat endpoint.
func (c *AIConfig) EffectiveEmbeddingBaseURL() string {
	if c.EmbeddingBaseURL != "" {
		return c.EmbeddingBaseURL
	}
	return c.BaseURL
}

// EffectiveEmbeddingAPIKey returns the embedding key, falling back to the
// chat key.
func (c *AIConfig) EffectiveEmbeddingAPIKey() string {
	if c.EmbeddingAPIKey != "" {
		return c.EmbeddingAPIKey
	}
	return c.APIKey
}

// RouterConfig holds question routing thresholds and limits.
type RouterConfig struct {
	// ConfidenceThreshold is the minimum classifier confidence accepted
	// before escalating to the next tier.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"ROUTER_CONFIDENCE_THRESHOLD" env-default:"0.3"`

	// SemanticThreshold is the minimum cosine similarity for the semantic
	// classifier to claim a match.
	SemanticThreshold float64 `yaml:"semantic_threshold" env:"ROUTER_SEMANTIC_THRESHOLD" env-default:"0.65"`

	// GenerativeTimeoutSeconds bounds a single generative classification call.
	GenerativeTimeoutSeconds int `yaml:"generative_timeout_seconds" env:"ROUTER_GENERATIVE_TIMEOUT_SECONDS" env-default:"10"`

	// GenerativeMaxRetries is how many times a transient model failure is
	// retried within that timeout.
	GenerativeMaxRetries int `yaml:"generative_max_retries" env:"ROUTER_GENERATIVE_MAX_RETRIES" env-default:"2"`

	// DefaultResultLimit is used when a ranking question does not name a
	// count ("top products" -> top 10).
	DefaultResultLimit int `yaml:"default_result_limit" env:"ROUTER_DEFAULT_RESULT_LIMIT" env-default:"10"`

	// MaxResultDocs caps documents returned by listing tools.
	MaxResultDocs int `yaml:"max_result_docs" env:"ROUTER_MAX_RESULT_DOCS" env-default:"100"`

	// DisplayLimit caps how many entries a formatted answer spells out.
	DisplayLimit int `yaml:"display_limit" env:"ROUTER_DISPLAY_LIMIT" env-default:"5"`

	// EnableComplexQueries turns on splitting two-part questions ("how many
	// orders and what is my revenue") into parallel aggregations.
	EnableComplexQueries bool `yaml:"enable_complex_queries" env:"ROUTER_ENABLE_COMPLEX_QUERIES" env-default:"true"`

	// WarmEmbeddings precomputes example embeddings at startup instead of
	// on the first semantic classification.
	WarmEmbeddings bool `yaml:"warm_embeddings" env:"ROUTER_WARM_EMBEDDINGS" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Environment variables override YAML values. Secrets (MONGO_PASSWORD,
// REDIS_PASSWORD, AI_API_KEY, AI_EMBEDDING_API_KEY, AUTH_HMAC_SECRET) must
// come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	// Load config from YAML file with environment variable overrides
	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	// Parse complex fields
	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	// Validate TLS configuration
	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	// Validate routing thresholds
	if err := cfg.Router.validate(); err != nil {
		return nil, fmt.Errorf("invalid router configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	// Use HTTPS scheme if TLS is configured
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	// Parse JWKS endpoints from string to map
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	// Both must be provided together or both empty
	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// If both provided, verify files exist (actual readability checked by tls.LoadX509KeyPair at startup)
	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

func (c *RouterConfig) validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %v", c.ConfidenceThreshold)
	}
	if c.SemanticThreshold < 0 || c.SemanticThreshold > 1 {
		return fmt.Errorf("semantic_threshold must be in [0,1], got %v", c.SemanticThreshold)
	}
	if c.GenerativeTimeoutSeconds <= 0 {
		return fmt.Errorf("generative_timeout_seconds must be positive, got %d", c.GenerativeTimeoutSeconds)
	}
	if c.GenerativeMaxRetries < 0 {
		return fmt.Errorf("generative_max_retries must not be negative, got %d", c.GenerativeMaxRetries)
	}
	if c.DefaultResultLimit <= 0 {
		return fmt.Errorf("default_result_limit must be positive, got %d", c.DefaultResultLimit)
	}
	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, "=")
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// ConnectionString returns the MongoDB connection string. An explicit
// MONGO_URI wins; otherwise the URI is assembled from the individual fields.
func (c *MongoConfig) ConnectionString() string {
	if c.URI != "" {
		return c.URI
	}

	host := ResolveHostForDocker(c.Host)
	if c.User != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d/%s?authSource=%s",
			url.QueryEscape(c.User), url.QueryEscape(c.Password), host, c.Port, c.Database, c.AuthSource)
	}
	return fmt.Sprintf("mongodb://%s:%d/%s", host, c.Port, c.Database)
}

// Addr returns the Redis host:port address with Docker host resolution applied.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port)
}
