package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Environment variables that override secrets from the configuration file
const (
	EnvGitHubClientSecret = "COLLABHUB_GITHUB_CLIENT_SECRET"
	EnvJWTSecret          = "COLLABHUB_JWT_SECRET"
	EnvOpenAIAPIKey       = "COLLABHUB_OPENAI_API_KEY"
	EnvWebhookSecret      = "COLLABHUB_WEBHOOK_SECRET"
	EnvSMTPPassword       = "COLLABHUB_SMTP_PASSWORD"
	EnvDatabaseURL        = "COLLABHUB_DATABASE_URL"
)

const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config represents the application configuration
type Config struct {
	HTTP    HTTPConfig    `json:"http"`
	Storage StorageConfig `json:"storage"`
	GitHub  GitHubConfig  `json:"github"`
	AI      AIConfig      `json:"ai"`
	SMTP    SMTPConfig    `json:"smtp"`
	Session SessionConfig `json:"session"`
	Webhook WebhookConfig `json:"webhook"`
	Sync    SyncConfig    `json:"sync"`
}

// HTTPConfig holds the listen address and the browser origin
type HTTPConfig struct {
	Addr string `json:"addr"`
	// Origin allowed by CORS and by the websocket upgrader
	FrontendURL string `json:"frontend_url"`
}

// StorageConfig selects the mirror store backend
type StorageConfig struct {
	// Either "sqlite" or "postgres"
	Type string `json:"type"`

	// Path to the SQLite database file
	DatabasePath string `json:"database_path"`

	Postgres PostgresConfig `json:"postgres"`
}

// PostgresConfig configures the pgx pool
type PostgresConfig struct {
	DSN      string `json:"dsn"`
	MaxConns int32  `json:"max_conns"`
}

// GitHubConfig holds the OAuth app credentials and API endpoints
type GitHubConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	// Overrides https://api.github.com/, mostly for GitHub Enterprise
	BaseURL string `json:"base_url"`
	// Host serving /login/oauth/*, defaults to https://github.com
	OAuthBaseURL string `json:"oauth_base_url"`
	PageSize     int    `json:"page_size"`
}

// AIConfig configures the OpenAI-compatible annotation provider
type AIConfig struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
	// Upper bound on the diff bytes sent with a pull request review prompt
	MaxDiffBytes int `json:"max_diff_bytes"`
}

// SMTPConfig configures email notifications. An empty host disables them.
type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

// SessionConfig configures session tokens. TTL is a Go duration string.
type SessionConfig struct {
	JWTSecret string `json:"jwt_secret"`
	TTL       string `json:"ttl"`
}

// WebhookConfig holds the shared secret GitHub signs deliveries with
type WebhookConfig struct {
	Secret string `json:"secret"`
	// Accept deliveries without a signature when no secret is set. Local development only.
	AllowUnsigned bool `json:"allow_unsigned"`
}

// SyncConfig tunes the mirror pipeline
type SyncConfig struct {
	// Number of upstream items mirrored in parallel, capped at 10
	Workers int `json:"workers"`
}

// SessionTTL returns the parsed session lifetime, defaulting to 7 days
func (c *Config) SessionTTL() time.Duration {
	if d, err := time.ParseDuration(c.Session.TTL); err == nil && d > 0 {
		return d
	}
	return 7 * 24 * time.Hour
}

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	if c.Session.JWTSecret == "" {
		return errors.New("session.jwt_secret is required")
	}
	switch c.Storage.Type {
	case StorageSQLite:
	case StoragePostgres:
		if c.Storage.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required for postgres storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	return nil
}

// LoadConfig loads the configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)
	applyDefaults(&config)

	// Make database path absolute if it's relative
	if !filepath.IsAbs(config.Storage.DatabasePath) {
		configDir := filepath.Dir(path)
		config.Storage.DatabasePath = filepath.Join(configDir, config.Storage.DatabasePath)
	}

	return &config, nil
}

func applyEnv(config *Config) {
	overrides := map[string]*string{
		EnvGitHubClientSecret: &config.GitHub.ClientSecret,
		EnvJWTSecret:          &config.Session.JWTSecret,
		EnvOpenAIAPIKey:       &config.AI.APIKey,
		EnvWebhookSecret:      &config.Webhook.Secret,
		EnvSMTPPassword:       &config.SMTP.Password,
		EnvDatabaseURL:        &config.Storage.Postgres.DSN,
	}
	for env, field := range overrides {
		if val := os.Getenv(env); val != "" {
			*field = val
		}
	}
}

func applyDefaults(config *Config) {
	if config.HTTP.Addr == "" {
		config.HTTP.Addr = ":5000"
	}
	if config.HTTP.FrontendURL == "" {
		config.HTTP.FrontendURL = "http://localhost:3000"
	}
	if config.Storage.Type == "" {
		config.Storage.Type = StorageSQLite
	}
	if config.Storage.DatabasePath == "" {
		config.Storage.DatabasePath = "collabhub.db"
	}
	if config.Storage.Postgres.MaxConns == 0 {
		config.Storage.Postgres.MaxConns = 4
	}
	if config.GitHub.PageSize <= 0 {
		config.GitHub.PageSize = 50
	}
	if config.AI.Model == "" {
		config.AI.Model = "gpt-4o"
	}
	if config.AI.MaxTokens == 0 {
		config.AI.MaxTokens = 1000
	}
	if config.AI.Temperature == 0 {
		config.AI.Temperature = 0.7
	}
	if config.AI.MaxDiffBytes == 0 {
		config.AI.MaxDiffBytes = 12000
	}
	if config.SMTP.Port == 0 {
		config.SMTP.Port = 587
	}
	if config.Sync.Workers <= 0 {
		config.Sync.Workers = 5
	}
}

// SaveConfig saves the configuration to a JSON file
func SaveConfig(config *Config, path string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateDefaultConfig creates a default configuration file if it doesn't exist
func CreateDefaultConfig(path string) error {
	// Check if the file already exists
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, don't overwrite
	}

	config := &Config{
		HTTP:    HTTPConfig{Addr: ":5000", FrontendURL: "http://localhost:3000"},
		Storage: StorageConfig{Type: StorageSQLite, DatabasePath: "collabhub.db"},
		GitHub:  GitHubConfig{PageSize: 50},
		AI:      AIConfig{Model: "gpt-4o", MaxTokens: 1000, Temperature: 0.7, MaxDiffBytes: 12000},
		SMTP:    SMTPConfig{Port: 587, From: "collabhub@localhost"},
		Session: SessionConfig{TTL: "168h"},
		Sync:    SyncConfig{Workers: 5},
	}

	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return SaveConfig(config, path)
}
