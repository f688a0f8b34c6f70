package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override file settings.
const EnvPrefix = "APP__"

const (
	defaultPageLimit    = 10
	defaultMaxPageLimit = 100
)

var (
	serverModes = []string{gin.DebugMode, gin.ReleaseMode, gin.TestMode}
	dbDrivers   = []string{"sqlite", "postgres"}
	sslModes    = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	releaseSSL  = []string{"require", "verify-ca", "verify-full"}
	logLevels   = []string{"debug", "info", "warn", "error"}
	logFormats  = []string{"text", "json"}

	errNilConfig = errors.New("config is nil")
)

// Config is everything crudkit reads at startup.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Log        LogConfig        `koanf:"log"`
	Pagination PaginationConfig `koanf:"pagination"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	Mode string `koanf:"mode"`
	// Timeout is a Go duration applied to reads, writes and shutdown.
	Timeout string `koanf:"timeout"`
}

// PaginationConfig holds the page sizes used by list endpoints. Zero picks
// 10 and 100.
type PaginationConfig struct {
	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`
}

type DatabaseConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
	// AutoMigrate creates or alters the tables of registered models when the
	// app starts. Unset resolves to true only in debug mode.
	AutoMigrate *bool `koanf:"auto_migrate"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig selects level, format and an optional rotated log file.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// Load reads the YAML file at path, applies APP__ environment overrides and
// validates the result. In variable names a double underscore separates
// levels and a single underscore stays in the key, so
// APP__DATABASE__POOL__MAX_OPEN_CONNS sets database.pool.max_open_conns.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps APP__LOG__FILE_PATH to log.file_path.
func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(name, "__", ".")
}

// Validate normalizes c in place and returns the first invalid setting.
func (c *Config) Validate() error {
	if c == nil {
		return errNilConfig
	}
	for _, check := range []func() error{
		c.Server.validate,
		func() error { return c.Database.validate(c.Server.Mode) },
		c.Pagination.validate,
		c.Log.validate,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (s *ServerConfig) validate() error {
	var err error
	if s.Mode, err = oneOf("server.mode", s.Mode, serverModes); err != nil {
		return err
	}
	if err := checkPort("server.port", s.Port); err != nil {
		return err
	}
	if s.Host, err = required("server.host", s.Host, ""); err != nil {
		return err
	}
	s.Timeout, err = optionalDuration("server.timeout", s.Timeout)
	return err
}

func (d *DatabaseConfig) validate(mode string) error {
	var err error
	if d.Driver, err = oneOf("database.driver", d.Driver, dbDrivers); err != nil {
		return err
	}
	switch d.Driver {
	case "sqlite":
		if d.SQLite.Path, err = required("database.sqlite.path", d.SQLite.Path, "sqlite"); err != nil {
			return err
		}
	case "postgres":
		if err := d.Postgres.validate(mode); err != nil {
			return err
		}
	}
	if d.Pool.ConnMaxLifetime, err = optionalDuration("database.pool.conn_max_lifetime", d.Pool.ConnMaxLifetime); err != nil {
		return err
	}
	if d.AutoMigrate == nil {
		on := mode == gin.DebugMode
		d.AutoMigrate = &on
	}
	return nil
}

func (p *PostgresConfig) validate(mode string) error {
	var err error
	if p.Host, err = required("database.postgres.host", p.Host, "postgres"); err != nil {
		return err
	}
	if err := checkPort("database.postgres.port", p.Port); err != nil {
		return err
	}
	if p.User, err = required("database.postgres.user", p.User, "postgres"); err != nil {
		return err
	}
	if p.DBName, err = required("database.postgres.dbname", p.DBName, "postgres"); err != nil {
		return err
	}
	if p.SSLMode, err = oneOf("database.postgres.sslmode", p.SSLMode, sslModes); err != nil {
		return err
	}
	if mode == gin.ReleaseMode {
		if _, err := oneOf("database.postgres.sslmode", p.SSLMode, releaseSSL); err != nil {
			return fmt.Errorf("%w (server.mode %q)", err, mode)
		}
	}
	return nil
}

func (p *PaginationConfig) validate() error {
	if p.DefaultLimit < 0 {
		return fmt.Errorf("invalid pagination.default_limit %d: must not be negative", p.DefaultLimit)
	}
	if p.MaxLimit < 0 {
		return fmt.Errorf("invalid pagination.max_limit %d: must not be negative", p.MaxLimit)
	}
	if p.DefaultLimit == 0 {
		p.DefaultLimit = defaultPageLimit
	}
	if p.MaxLimit == 0 {
		p.MaxLimit = defaultMaxPageLimit
	}
	if p.DefaultLimit > p.MaxLimit {
		return fmt.Errorf("invalid pagination.default_limit %d: must not exceed pagination.max_limit %d", p.DefaultLimit, p.MaxLimit)
	}
	return nil
}

func (l *LogConfig) validate() error {
	var err error
	if l.Level, err = oneOf("log.level", strings.ToLower(l.Level), logLevels); err != nil {
		return err
	}
	l.Format, err = oneOf("log.format", strings.ToLower(l.Format), logFormats)
	return err
}

// oneOf trims v and checks it against allowed.
func oneOf(key, v string, allowed []string) (string, error) {
	v = strings.TrimSpace(v)
	if slices.Contains(allowed, v) {
		return v, nil
	}
	quoted := make([]string, len(allowed))
	for i, a := range allowed {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	return "", fmt.Errorf("invalid %s %q: must be one of %s", key, v, strings.Join(quoted, ", "))
}

func required(key, v, driver string) (string, error) {
	v = strings.TrimSpace(v)
	if v != "" {
		return v, nil
	}
	if driver != "" {
		return "", fmt.Errorf("%s is required when driver is %s", key, driver)
	}
	return "", fmt.Errorf("%s is required", key)
}

func checkPort(key string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid %s %d: must be between 1 and 65535", key, port)
	}
	return nil
}

// optionalDuration accepts blank as unset, otherwise a positive duration.
func optionalDuration(key, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return "", fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return "", fmt.Errorf("invalid %s %q: must be greater than 0", key, v)
	}
	return v, nil
}
