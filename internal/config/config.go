// Package config loads sqlbridge settings from a YAML file, with
// SQLBRIDGE_* environment variables taking precedence over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/sqlbridge/internal/database"
	"github.com/koustreak/sqlbridge/internal/filestore"
	"github.com/koustreak/sqlbridge/internal/logger"
	"go.yaml.in/yaml/v3"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Sources  []SourceConfig `yaml:"sources"`
	Export   ExportConfig   `yaml:"export"`
	Server   ServerConfig   `yaml:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type DatabaseConfig struct {
	Pooling         string        `yaml:"pooling"` // off|one_per_driver
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	BatchSize       int           `yaml:"batch_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

type SourceConfig struct {
	Name       string            `yaml:"name"`
	Driver     string            `yaml:"driver"`
	Connection string            `yaml:"connection"`
	Options    map[string]string `yaml:"options"`
}

type ExportConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	PartSize  uint64 `yaml:"part_size"` // bytes buffered per upload part
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func Default() Config {
	db := database.DefaultConfig()
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Pooling:         string(db.Pooling),
			QueryTimeout:    db.QueryTimeout,
			ConnectTimeout:  db.ConnectTimeout,
			BatchSize:       100,
			MaxOpenConns:    db.MaxOpenConns,
			MaxIdleConns:    db.MaxIdleConns,
			ConnMaxLifetime: db.ConnMaxLifetime,
			ConnMaxIdleTime: db.ConnMaxIdleTime,
		},
		Export: ExportConfig{
			Endpoint: "localhost:9000",
			Bucket:   "exports",
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Load reads path on top of Default, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Log.Level = envOr("SQLBRIDGE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("SQLBRIDGE_LOG_FORMAT", c.Log.Format)

	c.Database.Pooling = envOr("SQLBRIDGE_POOLING", c.Database.Pooling)
	var err error
	if c.Database.QueryTimeout, err = envOrDuration("SQLBRIDGE_QUERY_TIMEOUT", c.Database.QueryTimeout); err != nil {
		return err
	}
	if c.Database.BatchSize, err = envOrInt("SQLBRIDGE_BATCH_SIZE", c.Database.BatchSize); err != nil {
		return err
	}

	c.Export.Endpoint = envOr("SQLBRIDGE_EXPORT_ENDPOINT", c.Export.Endpoint)
	c.Export.AccessKey = envOr("SQLBRIDGE_EXPORT_ACCESS_KEY", c.Export.AccessKey)
	c.Export.SecretKey = envOr("SQLBRIDGE_EXPORT_SECRET_KEY", c.Export.SecretKey)
	c.Export.Bucket = envOr("SQLBRIDGE_EXPORT_BUCKET", c.Export.Bucket)

	c.Server.Addr = envOr("SQLBRIDGE_SERVER_ADDR", c.Server.Addr)
	return nil
}

func (c Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug|info|warn|error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not one of json|console", c.Log.Format))
	}

	if _, err := database.ParsePooling(c.Database.Pooling); err != nil {
		problems = append(problems, "database.pooling: "+err.Error())
	}
	if c.Database.QueryTimeout <= 0 {
		problems = append(problems, "database.query_timeout must be positive")
	}
	if c.Database.ConnectTimeout <= 0 {
		problems = append(problems, "database.connect_timeout must be positive")
	}
	if c.Database.BatchSize <= 0 || c.Database.BatchSize > database.MaxBatchSize {
		problems = append(problems, fmt.Sprintf("database.batch_size must be between 1 and %d", database.MaxBatchSize))
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		switch {
		case s.Name == "":
			problems = append(problems, fmt.Sprintf("sources[%d] has no name", i))
		case seen[s.Name]:
			problems = append(problems, fmt.Sprintf("sources[%d] duplicates name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.Driver == "" {
			problems = append(problems, fmt.Sprintf("sources[%d] has no driver", i))
		}
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// DatabaseSettings converts the database section for database.NewManager.
func (c Config) DatabaseSettings() *database.Config {
	pooling, _ := database.ParsePooling(c.Database.Pooling)
	return &database.Config{
		Pooling:         pooling,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
		ConnectTimeout:  c.Database.ConnectTimeout,
		QueryTimeout:    c.Database.QueryTimeout,
		BatchSize:       c.Database.BatchSize,
	}
}

func (c Config) DataSources() []database.Source {
	out := make([]database.Source, len(c.Sources))
	for i, s := range c.Sources {
		out[i] = database.Source{
			Name:       s.Name,
			Driver:     s.Driver,
			Connection: s.Connection,
			Options:    s.Options,
		}
	}
	return out
}

func (c Config) LoggerSettings() *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Format = c.Log.Format
	return lc
}

func (c Config) FilestoreSettings() *filestore.Config {
	fc := filestore.DefaultConfig(c.Export.Endpoint, c.Export.AccessKey, c.Export.SecretKey)
	fc.UseSSL = c.Export.UseSSL
	fc.Region = c.Export.Region
	fc.DefaultBucket = c.Export.Bucket
	if c.Export.PartSize > 0 {
		fc.PartSize = c.Export.PartSize
	}
	return fc
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func envOrInt(key string, def int) (int, error) {
	v := envOr(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envOrDuration(key string, def time.Duration) (time.Duration, error) {
	v := envOr(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
