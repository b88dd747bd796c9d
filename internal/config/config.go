package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/alfredjeanlab/kconf/internal/store"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
)

// Config is the server configuration. Values come from an optional TOML or
// YAML file (KCONF_CONFIG_FILE) and are overridden by KCONF_* environment
// variables.
type Config struct {
	Store string `toml:"store" yaml:"store"` // KCONF_STORE (default "postgres")

	DB DBConfig `toml:"db" yaml:"db"`

	SQLitePath string `toml:"sqlite_path" yaml:"sqlite_path"` // KCONF_SQLITE_PATH (default "kconf.db")

	TableName  string `toml:"table_name" yaml:"table_name"`   // KCONF_TABLE_NAME (default "config")
	GlobalRoot string `toml:"global_root" yaml:"global_root"` // KCONF_GLOBAL_ROOT (default "internal/global")
	UserRoot   string `toml:"user_root" yaml:"user_root"`     // KCONF_USER_ROOT (default "internal/user")

	HTTPAddr  string `toml:"http_addr" yaml:"http_addr"`   // KCONF_HTTP_ADDR (default ":8080")
	GRPCAddr  string `toml:"grpc_addr" yaml:"grpc_addr"`   // KCONF_GRPC_ADDR (default ":9090")
	NATSURL   string `toml:"nats_url" yaml:"nats_url"`     // KCONF_NATS_URL (optional, empty = no events)
	AuthToken string `toml:"auth_token" yaml:"auth_token"` // KCONF_AUTH_TOKEN (optional, empty = auth disabled)

	RateLimit float64 `toml:"rate_limit" yaml:"rate_limit"` // KCONF_RATE_LIMIT requests/s per client (0 = unlimited)
	RateBurst int     `toml:"rate_burst" yaml:"rate_burst"` // KCONF_RATE_BURST (default 20)

	LogLevelName string     `toml:"log_level" yaml:"log_level"` // KCONF_LOG_LEVEL (default "info")
	LogLevel     slog.Level `toml:"-" yaml:"-"`

	Sync SyncConfig `toml:"sync" yaml:"sync"`
}

// DBConfig holds PostgreSQL connection parameters.
type DBConfig struct {
	Host            string `toml:"host" yaml:"host"`                         // KCONF_DB_HOST (required for postgres)
	Port            string `toml:"port" yaml:"port"`                         // KCONF_DB_PORT (default "5432")
	Name            string `toml:"name" yaml:"name"`                         // KCONF_DB_NAME (required for postgres)
	DefaultDatabase string `toml:"default_database" yaml:"default_database"` // KCONF_DB_DEFAULT_DATABASE (default "postgres")
	User            string `toml:"user" yaml:"user"`                         // KCONF_DB_USER
	Password        string `toml:"password" yaml:"password"`                 // KCONF_DB_PASSWORD
	SSLMode         string `toml:"sslmode" yaml:"sslmode"`                   // KCONF_DB_SSLMODE (default "disable")
	Pool            bool   `toml:"pool" yaml:"pool"`                         // KCONF_DB_POOL (default true)
}

// SyncConfig controls periodic snapshot export.
type SyncConfig struct {
	Interval   time.Duration `toml:"interval" yaml:"interval"`       // KCONF_SYNC_INTERVAL (default 3m; 0 = disabled)
	S3Bucket   string        `toml:"s3_bucket" yaml:"s3_bucket"`     // KCONF_SYNC_S3_BUCKET (enables S3 when set)
	S3Endpoint string        `toml:"s3_endpoint" yaml:"s3_endpoint"` // KCONF_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	S3Region   string        `toml:"s3_region" yaml:"s3_region"`     // KCONF_SYNC_S3_REGION (default "us-east-1")
	S3Key      string        `toml:"s3_key" yaml:"s3_key"`           // KCONF_SYNC_S3_KEY (default "kconf/snapshot.jsonl")
	GitRepo    string        `toml:"git_repo" yaml:"git_repo"`       // KCONF_SYNC_GIT_REPO (enables git when set; path to clone)
	GitFile    string        `toml:"git_file" yaml:"git_file"`       // KCONF_SYNC_GIT_FILE (default "kconf.jsonl")
	GitBranch  string        `toml:"git_branch" yaml:"git_branch"`   // KCONF_SYNC_GIT_BRANCH (default "main")
}

func defaults() *Config {
	return &Config{
		Store: StorePostgres,
		DB: DBConfig{
			Port:            "5432",
			DefaultDatabase: "postgres",
			SSLMode:         "disable",
			Pool:            true,
		},
		SQLitePath:   "kconf.db",
		RateBurst:    20,
		TableName:    "config",
		GlobalRoot:   "internal/global",
		UserRoot:     "internal/user",
		HTTPAddr:     ":8080",
		GRPCAddr:     ":9090",
		LogLevelName: "info",
		Sync: SyncConfig{
			Interval:  3 * time.Minute,
			S3Region:  "us-east-1",
			S3Key:     "kconf/snapshot.jsonl",
			GitFile:   "kconf.jsonl",
			GitBranch: "main",
		},
	}
}

func Load() (*Config, error) {
	c := defaults()

	if path := File(); path != "" {
		if err := decodeFile(path, c); err != nil {
			return nil, fmt.Errorf("KCONF_CONFIG_FILE %s: %w", path, err)
		}
	}

	for _, o := range []struct {
		key string
		dst *string
	}{
		{"KCONF_STORE", &c.Store},
		{"KCONF_DB_HOST", &c.DB.Host},
		{"KCONF_DB_PORT", &c.DB.Port},
		{"KCONF_DB_NAME", &c.DB.Name},
		{"KCONF_DB_DEFAULT_DATABASE", &c.DB.DefaultDatabase},
		{"KCONF_DB_USER", &c.DB.User},
		{"KCONF_DB_PASSWORD", &c.DB.Password},
		{"KCONF_DB_SSLMODE", &c.DB.SSLMode},
		{"KCONF_SQLITE_PATH", &c.SQLitePath},
		{"KCONF_TABLE_NAME", &c.TableName},
		{"KCONF_GLOBAL_ROOT", &c.GlobalRoot},
		{"KCONF_USER_ROOT", &c.UserRoot},
		{"KCONF_HTTP_ADDR", &c.HTTPAddr},
		{"KCONF_GRPC_ADDR", &c.GRPCAddr},
		{"KCONF_NATS_URL", &c.NATSURL},
		{"KCONF_AUTH_TOKEN", &c.AuthToken},
		{"KCONF_LOG_LEVEL", &c.LogLevelName},
		{"KCONF_SYNC_S3_BUCKET", &c.Sync.S3Bucket},
		{"KCONF_SYNC_S3_ENDPOINT", &c.Sync.S3Endpoint},
		{"KCONF_SYNC_S3_REGION", &c.Sync.S3Region},
		{"KCONF_SYNC_S3_KEY", &c.Sync.S3Key},
		{"KCONF_SYNC_GIT_REPO", &c.Sync.GitRepo},
		{"KCONF_SYNC_GIT_FILE", &c.Sync.GitFile},
		{"KCONF_SYNC_GIT_BRANCH", &c.Sync.GitBranch},
	} {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}

	if v := os.Getenv("KCONF_DB_POOL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("KCONF_DB_POOL: %w", err)
		}
		c.DB.Pool = b
	}
	if v := os.Getenv("KCONF_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("KCONF_RATE_LIMIT: invalid rate %q", v)
		}
		c.RateLimit = f
	}
	if v := os.Getenv("KCONF_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("KCONF_RATE_BURST: invalid burst %q", v)
		}
		c.RateBurst = n
	}
	if v := os.Getenv("KCONF_SYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("KCONF_SYNC_INTERVAL: %w", err)
		}
		c.Sync.Interval = d
	}

	level, err := ParseLogLevel(c.LogLevelName)
	if err != nil {
		return nil, fmt.Errorf("KCONF_LOG_LEVEL: %w", err)
	}
	c.LogLevel = level

	switch c.Store {
	case StorePostgres:
		if c.DB.Host == "" || c.DB.Name == "" {
			return nil, fmt.Errorf("%w: KCONF_DB_HOST and KCONF_DB_NAME are required", store.ErrConfigurationMissing)
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return nil, fmt.Errorf("%w: KCONF_SQLITE_PATH is required", store.ErrConfigurationMissing)
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("KCONF_STORE: unknown store %q (must be postgres, sqlite or memory)", c.Store)
	}

	return c, nil
}

// File returns the configuration file named by KCONF_CONFIG_FILE, if any.
func File() string {
	return os.Getenv("KCONF_CONFIG_FILE")
}

// decodeFile reads a TOML file, or a YAML file when the extension is
// .yaml or .yml.
func decodeFile(path string, c *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(data, c)
	default:
		_, err := toml.DecodeFile(path, c)
		return err
	}
}
