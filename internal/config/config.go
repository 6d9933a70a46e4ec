// Package config loads the service configuration: built-in defaults, then an
// optional YAML file, then PRODIGYMUN_ environment variables, then command
// line overrides, followed by validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"prodigymun/internal/auth"
	"prodigymun/internal/blob"
	blobcore "prodigymun/internal/blob/core"
	"prodigymun/internal/core"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "prodigymun.config"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "prodigymun"

const (
	DefaultBindAddr        = "0.0.0.0"
	DefaultPort            = 5000
	DefaultShutdownTimeout = 30 * time.Second
	DefaultSQLitePath      = "prodigymun.db"
	DefaultBlobFSRoot      = "./blobdata"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	BindAddr          string        `yaml:"bindAddr"          envconfig:"BIND_ADDR"`
	Port              uint          `yaml:"port"              envconfig:"PORT"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"   envconfig:"SHUTDOWN_TIMEOUT"`
	StorageDriver     string        `yaml:"storageDriver"     envconfig:"STORAGE_DRIVER"`
	SQLitePath        string        `yaml:"sqlitePath"        envconfig:"SQLITE_PATH"`
	PostgresDSN       string        `yaml:"postgresDsn"       envconfig:"POSTGRES_DSN"`
	BlobDriver        string        `yaml:"blobDriver"        envconfig:"BLOB_DRIVER"`
	BlobFSRoot        string        `yaml:"blobFsRoot"        envconfig:"BLOB_FS_ROOT"`
	S3Bucket          string        `yaml:"s3Bucket"          envconfig:"S3_BUCKET"`
	S3Region          string        `yaml:"s3Region"          envconfig:"S3_REGION"`
	S3Endpoint        string        `yaml:"s3Endpoint"        envconfig:"S3_ENDPOINT"`
	S3PathStyle       bool          `yaml:"s3PathStyle"       envconfig:"S3_PATH_STYLE"`
	PresignExpiry     time.Duration `yaml:"presignExpiry"     envconfig:"PRESIGN_EXPIRY"`
	AdminUsername     string        `yaml:"adminUsername"     envconfig:"ADMIN_USERNAME"`
	AdminPassword     string        `yaml:"adminPassword"     envconfig:"ADMIN_PASSWORD"`
	AdminPasswordHash string        `yaml:"adminPasswordHash" envconfig:"ADMIN_PASSWORD_HASH"`
	AdminRequireAuth  bool          `yaml:"adminRequireAuth"  envconfig:"ADMIN_REQUIRE_AUTH"`
	StatsCacheTTL     time.Duration `yaml:"statsCacheTtl"     envconfig:"STATS_CACHE_TTL"`
	Tracing           bool          `yaml:"tracing"           envconfig:"TRACING"`
	TracingStdout     bool          `yaml:"tracingStdout"     envconfig:"TRACING_STDOUT"`
	Debug             bool          `yaml:"debug"             envconfig:"DEBUG"`
}

// Default returns a fresh configuration holding the built-in defaults.
func Default() *Config {
	return &Config{
		BindAddr:        DefaultBindAddr,
		Port:            DefaultPort,
		ShutdownTimeout: DefaultShutdownTimeout,
		StorageDriver:   string(core.StorageSQLite),
		SQLitePath:      DefaultSQLitePath,
		BlobDriver:      string(blob.DriverFilesystem),
		BlobFSRoot:      DefaultBlobFSRoot,
		AdminUsername:   "admin",
	}
}

// searchPaths lists the config files tried when none is given.
var searchPaths = func() []string {
	var paths []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".prodigymun", "prodigymun.yaml"))
	}
	return append(paths, "/etc/prodigymun/prodigymun.yaml")
}

// Load builds the configuration. An empty configFile falls back to the first
// existing file from the search path; overrides are applied after the
// environment and before validation.
func Load(configFile string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()
	if configFile == "" {
		for _, candidate := range searchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				configFile = candidate
				break
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	for _, override := range overrides {
		if override != nil {
			override(cfg)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	switch core.StorageDriver(c.StorageDriver) {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("invalid storageDriver %q (must be 'memory', 'sqlite', or 'postgres')", c.StorageDriver))
	}
	if c.Port == 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdownTimeout must be positive, got %s", c.ShutdownTimeout))
	}
	if c.StatsCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("statsCacheTtl must not be negative, got %s", c.StatsCacheTTL))
	}
	if c.PresignExpiry < 0 {
		errs = append(errs, fmt.Errorf("presignExpiry must not be negative, got %s", c.PresignExpiry))
	}
	driver, err := blobcore.ParseDriver(c.BlobDriver)
	if err != nil {
		errs = append(errs, err)
	} else if driver == blob.DriverS3 && c.S3Bucket == "" {
		errs = append(errs, errors.New("s3Bucket is required when blobDriver is s3"))
	}
	if c.AdminRequireAuth && (c.AdminUsername == "" || (c.AdminPassword == "" && c.AdminPasswordHash == "")) {
		errs = append(errs, errors.New("adminRequireAuth needs adminUsername and adminPassword or adminPasswordHash"))
	}
	return errors.Join(errs...)
}

// ListenAddr joins bind address and port.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}

// StorageOptions maps the storage keys onto the registration store options.
func (c *Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(c.StorageDriver),
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
	}
}

// BlobConfig maps the blob keys onto the archive backend configuration.
// S3 credentials come from the default AWS chain.
func (c *Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: c.BlobDriver,
		FSRoot: c.BlobFSRoot,
		S3: blob.S3Config{
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			Endpoint:  c.S3Endpoint,
			PathStyle: c.S3PathStyle,
		},
	}
}

// AuthConfig maps the admin keys onto the credential verifier configuration.
func (c *Config) AuthConfig() auth.Config {
	return auth.Config{
		Username:     c.AdminUsername,
		Password:     c.AdminPassword,
		PasswordHash: c.AdminPasswordHash,
	}
}
