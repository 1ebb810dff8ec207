package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for scope-engine.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, credential files) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"15s"`

	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Storage      StorageConfig      `yaml:"storage"`
	Conversation ConversationConfig `yaml:"conversation"`
	MCP          MCPConfig          `yaml:"mcp"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"postgres"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"postgres"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	// RunMigrations applies pending migrations when the server starts.
	RunMigrations bool `yaml:"run_migrations" env:"PG_RUN_MIGRATIONS" env-default:"true"`
}

// RedisConfig holds Redis configuration. Redis is optional; an empty host disables it.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// StorageMode selects the object storage backend.
type StorageMode string

const (
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
)

// StorageConfig holds object storage and backing-store call settings.
type StorageConfig struct {
	Mode          StorageMode `yaml:"mode" env:"OBJECT_STORAGE_MODE" env-default:"gcs"`
	Bucket        string      `yaml:"bucket" env:"IMAGE_BUCKET_NAME" env-default:"project_images"`
	EmulatorHost  string      `yaml:"emulator_host" env:"STORAGE_EMULATOR_HOST" env-default:""`
	PublicBaseURL string      `yaml:"public_base_url" env:"OBJECT_STORAGE_PUBLIC_BASE_URL" env-default:""`
	CDNDomain     string      `yaml:"cdn_domain" env:"IMAGE_CDN_DOMAIN" env-default:""`
	KeyPrefix     string      `yaml:"key_prefix" env:"IMAGE_KEY_PREFIX" env-default:""`
	CacheControl  string      `yaml:"cache_control" env:"IMAGE_CACHE_CONTROL" env-default:"public, max-age=3600"`
	MaxImageBytes int         `yaml:"max_image_bytes" env:"IMAGE_MAX_BYTES" env-default:"10485760"`

	// CredentialsFile points at a service account key. Secret - not in YAML.
	CredentialsFile string `yaml:"-" env:"GCS_CREDENTIALS_FILE"`

	// Timeout bounds every call to the database or object store.
	Timeout time.Duration `yaml:"timeout" env:"STORAGE_TIMEOUT" env-default:"10s"`
}

// ConversationBackend selects where protocol state is kept.
type ConversationBackend string

const (
	ConversationBackendPostgres ConversationBackend = "postgres"
	ConversationBackendRedis    ConversationBackend = "redis"
)

// ConversationConfig holds conversation state settings.
type ConversationConfig struct {
	Backend ConversationBackend `yaml:"backend" env:"CONVERSATION_BACKEND" env-default:"postgres"`
	// TTL only applies to the Redis backend.
	TTL time.Duration `yaml:"ttl" env:"CONVERSATION_TTL" env-default:"72h"`
	// LockCacheSize bounds the number of per-conversation locks kept in memory.
	LockCacheSize int `yaml:"lock_cache_size" env:"CONVERSATION_LOCK_CACHE_SIZE" env-default:"4096"`
}

// MCPConfig holds MCP transport configuration.
type MCPConfig struct {
	// LogRequests enables debug logging of MCP JSON-RPC traffic.
	LogRequests bool `yaml:"log_requests" env:"MCP_LOG_REQUESTS" env-default:"true"`
}

// Load reads configuration from the YAML file at path with environment variable overrides.
// A missing file is not an error; environment variables and defaults are used instead.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}
	if path == "" {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Mode {
	case StorageModeGCS:
	case StorageModeGCSEmulator:
		if strings.TrimSpace(c.Storage.EmulatorHost) == "" {
			return fmt.Errorf("storage.emulator_host is required when storage.mode is %q", StorageModeGCSEmulator)
		}
	default:
		return fmt.Errorf("unknown storage.mode %q", c.Storage.Mode)
	}

	if strings.TrimSpace(c.Storage.Bucket) == "" {
		return fmt.Errorf("storage.bucket must be set")
	}

	if c.Storage.PublicBaseURL != "" {
		u, err := url.Parse(c.Storage.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("storage.public_base_url must be an absolute URL, got %q", c.Storage.PublicBaseURL)
		}
	}

	switch c.Conversation.Backend {
	case ConversationBackendPostgres:
	case ConversationBackendRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("redis.host is required when conversation.backend is %q", ConversationBackendRedis)
		}
	default:
		return fmt.Errorf("unknown conversation.backend %q", c.Conversation.Backend)
	}

	if c.Conversation.LockCacheSize <= 0 {
		return fmt.Errorf("conversation.lock_cache_size must be positive")
	}

	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
