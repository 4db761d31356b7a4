// Package config loads the process configuration from the environment.
// Every knob has a default so a bare `skydeck` starts with an in-memory
// store under ./data.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Domains   DomainsConfig
	Deploy    DeployConfig
	Backups   BackupsConfig
	Analytics AnalyticsConfig
	Auth      AuthConfig
	Logging   LoggingConfig
	Templates TemplatesConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `env:"SKYDECK_HTTP_ADDR,default=:8080"`
	ReadTimeout     time.Duration `env:"SKYDECK_HTTP_READ_TIMEOUT,default=30s"`
	WriteTimeout    time.Duration `env:"SKYDECK_HTTP_WRITE_TIMEOUT,default=30s"`
	IdleTimeout     time.Duration `env:"SKYDECK_HTTP_IDLE_TIMEOUT,default=120s"`
	ShutdownTimeout time.Duration `env:"SKYDECK_SHUTDOWN_TIMEOUT,default=30s"`
	AllowedOrigins  string        `env:"SKYDECK_ALLOWED_ORIGINS,default=*"`
}

// DatabaseConfig controls the Postgres connection. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL,default="`
	MaxOpenConns    int           `env:"SKYDECK_DB_MAX_OPEN_CONNS,default=25"`
	MaxIdleConns    int           `env:"SKYDECK_DB_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"SKYDECK_DB_CONN_MAX_LIFETIME,default=30m"`
}

// RedisConfig controls the visit counter backend. An empty address selects
// the in-memory counter.
type RedisConfig struct {
	Addr     string `env:"SKYDECK_REDIS_ADDR,default="`
	Password string `env:"SKYDECK_REDIS_PASSWORD,default="`
	DB       int    `env:"SKYDECK_REDIS_DB,default=0"`
}

// StorageConfig locates the blob store root.
type StorageConfig struct {
	Root string `env:"SKYDECK_STORAGE_ROOT,default=./data"`
}

// DomainsConfig controls synthetic domain generation.
type DomainsConfig struct {
	Base      string `env:"SKYDECK_BASE_DOMAIN,default=skydeck.site"`
	URLScheme string `env:"SKYDECK_URL_SCHEME,default=https"`
}

// DeployConfig controls the deployment workflow.
type DeployConfig struct {
	MaxUploadBytes int64         `env:"SKYDECK_MAX_UPLOAD_BYTES,default=104857600"`
	InstallTimeout time.Duration `env:"SKYDECK_NPM_TIMEOUT,default=2m"`
	SkipInstall    bool          `env:"SKYDECK_SKIP_NPM_INSTALL,default=false"`
	RatePerMinute  int           `env:"SKYDECK_DEPLOY_RATE_PER_MINUTE,default=10"`
}

// BackupsConfig controls the backup sweeper.
type BackupsConfig struct {
	Schedule      string        `env:"SKYDECK_BACKUP_SCHEDULE,default=@hourly"`
	RetryAttempts int           `env:"SKYDECK_BACKUP_RETRY_ATTEMPTS,default=3"`
	RetryDelay    time.Duration `env:"SKYDECK_BACKUP_RETRY_DELAY,default=30s"`
}

// AnalyticsConfig controls the visit counter flusher.
type AnalyticsConfig struct {
	FlushInterval time.Duration `env:"SKYDECK_ANALYTICS_FLUSH_INTERVAL,default=5m"`
}

// AuthConfig controls the API token guard. When both fields are empty the
// API is open (local single-user mode). APITokenHash takes precedence and
// holds a bcrypt hash of the token.
type AuthConfig struct {
	APIToken     string `env:"SKYDECK_API_TOKEN,default="`
	APITokenHash string `env:"SKYDECK_API_TOKEN_HASH,default="`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `env:"SKYDECK_LOG_LEVEL,default=info"`
	Format     string `env:"SKYDECK_LOG_FORMAT,default=text"`
	Output     string `env:"SKYDECK_LOG_OUTPUT,default=stdout"`
	FilePrefix string `env:"SKYDECK_LOG_FILE_PREFIX,default=skydeck"`
}

// TemplatesConfig points at an optional YAML catalog overriding the built-in
// starter templates.
type TemplatesConfig struct {
	CatalogPath string `env:"SKYDECK_TEMPLATES_FILE,default="`
}

// Load decodes the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Deploy.MaxUploadBytes <= 0 {
		return fmt.Errorf("SKYDECK_MAX_UPLOAD_BYTES must be positive, got %d", c.Deploy.MaxUploadBytes)
	}
	if c.Backups.RetryAttempts < 1 {
		return fmt.Errorf("SKYDECK_BACKUP_RETRY_ATTEMPTS must be at least 1, got %d", c.Backups.RetryAttempts)
	}
	if c.Domains.Base == "" {
		return fmt.Errorf("SKYDECK_BASE_DOMAIN must not be empty")
	}
	return nil
}
