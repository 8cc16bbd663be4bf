package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the service config file.
const ConfigPath = "config.yaml"

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	defaultCoverMaxBytes = 5 << 20
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                   string `yaml:"port"`
	StoreDriver            string `yaml:"storeDriver"`
	DatabaseURL            string `yaml:"databaseURL"`
	LogLevel               string `yaml:"logLevel"`
	APIPrefix              string `yaml:"apiPrefix"`
	ResetSequenceWhenEmpty bool   `yaml:"resetSequenceWhenEmpty"`

	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	WriteRateLimitPerMinute int      `yaml:"writeRateLimitPerMinute"`
	TrustedProxies          []string `yaml:"trustedProxies"`
	CORSAllowedOrigins      []string `yaml:"corsAllowedOrigins"`

	MinioEndpoint      string `yaml:"minioEndpoint"`
	MinioAccessKey     string `yaml:"minioAccessKey"`
	MinioSecretKey     string `yaml:"minioSecretKey"`
	MinioBucket        string `yaml:"minioBucket"`
	MinioUseSSL        bool   `yaml:"minioUseSSL"`
	MinioRegion        string `yaml:"minioRegion"`
	CoverMaxBytes      int64  `yaml:"coverMaxBytes"`
	CoverURLExpirySecs int    `yaml:"coverURLExpirySeconds"`

	AMQPURL      string `yaml:"amqpURL"`
	AMQPExchange string `yaml:"amqpExchange"`

	StaffTokenPublicKeyPath string   `yaml:"staffTokenPublicKeyPath"`
	StaffTokenKeyID         string   `yaml:"staffTokenKeyID"`
	StaffTokenIssuers       []string `yaml:"staffTokenIssuers"`
	StaffTokenAudience      string   `yaml:"staffTokenAudience"`

	ShutdownTimeoutSeconds int `yaml:"shutdownTimeoutSeconds"`
}

// CoverURLExpiry returns the configured presign lifetime, zero when unset.
func (c FileConfig) CoverURLExpiry() time.Duration {
	return time.Duration(c.CoverURLExpirySecs) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget, ten seconds by default.
func (c FileConfig) ShutdownTimeout() time.Duration {
	if c.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// StaffTokensEnabled reports whether mutating routes require a staff token.
func (c FileConfig) StaffTokensEnabled() bool {
	return c.StaffTokenPublicKeyPath != ""
}

// Load reads config from path (defaults to config.yaml). A .env file in the
// working directory is loaded first; variables already set are not replaced.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString("LIBRARY_PORT", &cfg.Port)
	setString("LIBRARY_STORE_DRIVER", &cfg.StoreDriver)
	setString("DATABASE_URL", &cfg.DatabaseURL)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("LIBRARY_API_PREFIX", &cfg.APIPrefix)
	setString("REDIS_ADDR", &cfg.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.RedisPassword)
	setString("MINIO_ENDPOINT", &cfg.MinioEndpoint)
	setString("MINIO_ACCESS_KEY", &cfg.MinioAccessKey)
	setString("MINIO_SECRET_KEY", &cfg.MinioSecretKey)
	setString("MINIO_BUCKET", &cfg.MinioBucket)
	setString("MINIO_REGION", &cfg.MinioRegion)
	setString("AMQP_URL", &cfg.AMQPURL)
	setString("AMQP_EXCHANGE", &cfg.AMQPExchange)
	setString("LIBRARY_STAFF_TOKEN_PUBLIC_KEY_PATH", &cfg.StaffTokenPublicKeyPath)
	setString("LIBRARY_STAFF_TOKEN_KEY_ID", &cfg.StaffTokenKeyID)
	setString("LIBRARY_STAFF_TOKEN_AUDIENCE", &cfg.StaffTokenAudience)

	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: MINIO_USE_SSL: %w", err)
		}
		cfg.MinioUseSSL = b
	}
	if v := os.Getenv("LIBRARY_RESET_SEQUENCE_WHEN_EMPTY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: LIBRARY_RESET_SEQUENCE_WHEN_EMPTY: %w", err)
		}
		cfg.ResetSequenceWhenEmpty = b
	}
	if v := os.Getenv("LIBRARY_WRITE_RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: LIBRARY_WRITE_RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.WriteRateLimitPerMinute = n
	}
	if v := os.Getenv("LIBRARY_COVER_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: LIBRARY_COVER_MAX_BYTES: %w", err)
		}
		cfg.CoverMaxBytes = n
	}
	if v := os.Getenv("LIBRARY_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	if v := os.Getenv("LIBRARY_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("LIBRARY_STAFF_TOKEN_ISSUERS"); v != "" {
		cfg.StaffTokenIssuers = splitCSV(v)
	}
	return nil
}

func applyDefaults(cfg *FileConfig) {
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreDriverPostgres
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.CoverMaxBytes <= 0 {
		cfg.CoverMaxBytes = defaultCoverMaxBytes
	}
	cfg.APIPrefix = normalizePrefix(cfg.APIPrefix)
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or LIBRARY_PORT)")
	}
	switch cfg.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres store (set in config.yaml or DATABASE_URL)")
		}
	default:
		return fmt.Errorf("config: unknown storeDriver %q (want postgres or memory)", cfg.StoreDriver)
	}
	if cfg.WriteRateLimitPerMinute < 0 {
		return errors.New("config: writeRateLimitPerMinute must not be negative")
	}
	if (cfg.MinioEndpoint == "") != (cfg.MinioBucket == "") {
		return errors.New("config: minioEndpoint and minioBucket must be set together")
	}
	if cfg.StaffTokensEnabled() && len(cfg.StaffTokenIssuers) == 0 {
		return errors.New("config: staffTokenIssuers is required when staffTokenPublicKeyPath is set")
	}
	return nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
