package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains the server runtime configuration. An optional YAML file
// (WL_CONFIG_FILE) supplies base values; WL_* environment variables win.
type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogColor  bool   `yaml:"log_color"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes"`

	// DatabaseURL empty means the in-memory account store.
	DatabaseURL   string `yaml:"database_url"`
	DBSchema      string `yaml:"db_schema"`
	DBMaxConns    int32  `yaml:"db_max_conns"`
	DBMinConns    int32  `yaml:"db_min_conns"`
	DBAutoMigrate bool   `yaml:"db_auto_migrate"`

	// If true, /readyz returns 503 unless a database is configured and reachable.
	ReadinessRequireDB bool `yaml:"readiness_require_db"`

	// RedisURL empty means process-local rate limiting.
	RedisURL string `yaml:"redis_url"`

	// PublicBaseURL prefixes the links in verification and reset mails.
	PublicBaseURL string `yaml:"public_base_url"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	CORSAllowedOrigins   []string `yaml:"cors_allowed_origins"`
	CORSAllowCredentials bool     `yaml:"cors_allow_credentials"`
	CORSMaxAgeSeconds    int      `yaml:"cors_max_age_seconds"`

	// If true, WL_TOKEN_HMAC_KEY must be set so refresh digests are keyed.
	RequireTokenHMAC bool `yaml:"require_token_hmac"`
}

// DefaultConfig returns the values used when neither file nor env set them.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:  "0.0.0.0:8080",
		LogLevel:  "info",
		LogFormat: "json",

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxHeaderBytes:    1 << 20,

		DBSchema:   "whisperlink",
		DBMaxConns: 10,

		PublicBaseURL: "http://localhost:8080",

		MetricsEnabled: true,

		CORSMaxAgeSeconds: 600,
	}
}

// LoadConfig reads the optional YAML file and then applies env overrides.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := EnvString("WL_CONFIG_FILE", ""); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg = applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(c Config) Config {
	c.HTTPAddr = EnvString("WL_HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = EnvString("WL_LOG_LEVEL", c.LogLevel)
	c.LogFormat = EnvString("WL_LOG_FORMAT", c.LogFormat)
	c.LogColor = EnvBool("WL_LOG_COLOR", c.LogColor)

	c.ReadHeaderTimeout = EnvDuration("WL_HTTP_READ_HEADER_TIMEOUT", c.ReadHeaderTimeout)
	c.ReadTimeout = EnvDuration("WL_HTTP_READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = EnvDuration("WL_HTTP_WRITE_TIMEOUT", c.WriteTimeout)
	c.IdleTimeout = EnvDuration("WL_HTTP_IDLE_TIMEOUT", c.IdleTimeout)
	c.ShutdownTimeout = EnvDuration("WL_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.MaxHeaderBytes = EnvInt("WL_HTTP_MAX_HEADER_BYTES", c.MaxHeaderBytes)

	c.DatabaseURL = EnvString("WL_DATABASE_URL", c.DatabaseURL)
	c.DBSchema = EnvString("WL_DB_SCHEMA", c.DBSchema)
	c.DBMaxConns = EnvInt32("WL_DB_MAX_CONNS", c.DBMaxConns)
	c.DBMinConns = EnvInt32("WL_DB_MIN_CONNS", c.DBMinConns)
	c.DBAutoMigrate = EnvBool("WL_DB_AUTO_MIGRATE", c.DBAutoMigrate)
	c.ReadinessRequireDB = EnvBool("WL_READINESS_REQUIRE_DB", c.ReadinessRequireDB)

	c.RedisURL = EnvString("WL_REDIS_URL", c.RedisURL)
	c.PublicBaseURL = strings.TrimRight(EnvString("WL_PUBLIC_BASE_URL", c.PublicBaseURL), "/")
	c.MetricsEnabled = EnvBool("WL_METRICS_ENABLED", c.MetricsEnabled)

	c.CORSAllowedOrigins = EnvList("WL_CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)
	c.CORSAllowCredentials = EnvBool("WL_CORS_ALLOW_CREDENTIALS", c.CORSAllowCredentials)
	c.CORSMaxAgeSeconds = EnvInt("WL_CORS_MAX_AGE_SECONDS", c.CORSMaxAgeSeconds)

	c.RequireTokenHMAC = EnvBool("WL_REQUIRE_TOKEN_HMAC", c.RequireTokenHMAC)
	return c
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: http address is required")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "pretty", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	u, err := url.Parse(c.PublicBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: public base url %q must be an absolute http(s) url", c.PublicBaseURL)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("config: db min conns (%d) > max conns (%d)", c.DBMinConns, c.DBMaxConns)
	}
	for _, o := range c.CORSAllowedOrigins {
		if o == "*" && c.CORSAllowCredentials {
			return errors.New("config: wildcard CORS origin cannot allow credentials")
		}
	}
	return nil
}
