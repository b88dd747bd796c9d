package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alfredjeanlab/kconf/internal/store"
)

var allEnvVars = []string{
	"KCONF_CONFIG_FILE", "KCONF_STORE",
	"KCONF_DB_HOST", "KCONF_DB_PORT", "KCONF_DB_NAME", "KCONF_DB_DEFAULT_DATABASE",
	"KCONF_DB_USER", "KCONF_DB_PASSWORD", "KCONF_DB_SSLMODE", "KCONF_DB_POOL",
	"KCONF_SQLITE_PATH", "KCONF_RATE_LIMIT", "KCONF_RATE_BURST",
	"KCONF_TABLE_NAME", "KCONF_GLOBAL_ROOT", "KCONF_USER_ROOT",
	"KCONF_HTTP_ADDR", "KCONF_GRPC_ADDR", "KCONF_NATS_URL", "KCONF_AUTH_TOKEN",
	"KCONF_LOG_LEVEL",
	"KCONF_SYNC_INTERVAL", "KCONF_SYNC_S3_BUCKET", "KCONF_SYNC_S3_ENDPOINT",
	"KCONF_SYNC_S3_REGION", "KCONF_SYNC_S3_KEY", "KCONF_SYNC_GIT_REPO",
	"KCONF_SYNC_GIT_FILE", "KCONF_SYNC_GIT_BRANCH",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func setDBEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KCONF_DB_HOST", "localhost")
	t.Setenv("KCONF_DB_NAME", "kconf")
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name         string
		env          map[string]string
		wantErr      bool
		wantMissing  bool
		wantStore    string
		wantGRPCAddr string
		wantHTTPAddr string
		wantNATSURL  string
	}{
		{
			name:        "MissingConnectionParams",
			env:         map[string]string{},
			wantErr:     true,
			wantMissing: true,
		},
		{
			name:        "MissingDatabaseName",
			env:         map[string]string{"KCONF_DB_HOST": "db"},
			wantErr:     true,
			wantMissing: true,
		},
		{
			name:         "DefaultAddresses",
			env:          map[string]string{"KCONF_DB_HOST": "localhost", "KCONF_DB_NAME": "kconf"},
			wantStore:    StorePostgres,
			wantGRPCAddr: ":9090",
			wantHTTPAddr: ":8080",
		},
		{
			name: "CustomAddresses",
			env: map[string]string{
				"KCONF_DB_HOST":   "db",
				"KCONF_DB_NAME":   "kconf",
				"KCONF_GRPC_ADDR": ":5050",
				"KCONF_HTTP_ADDR": ":3000",
				"KCONF_NATS_URL":  "nats://localhost:4222",
			},
			wantStore:    StorePostgres,
			wantGRPCAddr: ":5050",
			wantHTTPAddr: ":3000",
			wantNATSURL:  "nats://localhost:4222",
		},
		{
			name:         "MemoryStoreNeedsNoDatabase",
			env:          map[string]string{"KCONF_STORE": "memory"},
			wantStore:    StoreMemory,
			wantGRPCAddr: ":9090",
			wantHTTPAddr: ":8080",
		},
		{
			name:         "SQLiteStoreNeedsNoDatabase",
			env:          map[string]string{"KCONF_STORE": "sqlite"},
			wantStore:    StoreSQLite,
			wantGRPCAddr: ":9090",
			wantHTTPAddr: ":8080",
		},
		{
			name:    "UnknownStore",
			env:     map[string]string{"KCONF_STORE": "etcd"},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tc.wantMissing && !errors.Is(err, store.ErrConfigurationMissing) {
					t.Errorf("error = %v, want ErrConfigurationMissing", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Store != tc.wantStore {
				t.Errorf("Store = %q, want %q", cfg.Store, tc.wantStore)
			}
			if cfg.GRPCAddr != tc.wantGRPCAddr {
				t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, tc.wantGRPCAddr)
			}
			if cfg.HTTPAddr != tc.wantHTTPAddr {
				t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, tc.wantHTTPAddr)
			}
			if cfg.NATSURL != tc.wantNATSURL {
				t.Errorf("NATSURL = %q, want %q", cfg.NATSURL, tc.wantNATSURL)
			}
		})
	}
}

func TestLoadDBDefaults(t *testing.T) {
	clearAllEnv(t)
	setDBEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DB.Port != "5432" {
		t.Errorf("DB.Port = %q, want 5432", cfg.DB.Port)
	}
	if cfg.DB.DefaultDatabase != "postgres" {
		t.Errorf("DB.DefaultDatabase = %q, want postgres", cfg.DB.DefaultDatabase)
	}
	if cfg.DB.SSLMode != "disable" {
		t.Errorf("DB.SSLMode = %q, want disable", cfg.DB.SSLMode)
	}
	if !cfg.DB.Pool {
		t.Error("DB.Pool = false, want true")
	}
	if cfg.TableName != "config" {
		t.Errorf("TableName = %q, want config", cfg.TableName)
	}
	if cfg.GlobalRoot != "internal/global" || cfg.UserRoot != "internal/user" {
		t.Errorf("roots = %q, %q", cfg.GlobalRoot, cfg.UserRoot)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want INFO", cfg.LogLevel)
	}
}

func TestLoadDBCustom(t *testing.T) {
	clearAllEnv(t)
	setDBEnv(t)
	t.Setenv("KCONF_DB_PORT", "6543")
	t.Setenv("KCONF_DB_USER", "svc")
	t.Setenv("KCONF_DB_PASSWORD", "s3cret")
	t.Setenv("KCONF_DB_POOL", "false")
	t.Setenv("KCONF_TABLE_NAME", "settings")
	t.Setenv("KCONF_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DB.Port != "6543" || cfg.DB.User != "svc" || cfg.DB.Password != "s3cret" {
		t.Errorf("DB = %+v", cfg.DB)
	}
	if cfg.DB.Pool {
		t.Error("DB.Pool = true, want false")
	}
	if cfg.TableName != "settings" {
		t.Errorf("TableName = %q", cfg.TableName)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want DEBUG", cfg.LogLevel)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	for _, tc := range []struct {
		name string
		key  string
		val  string
	}{
		{"Pool", "KCONF_DB_POOL", "sometimes"},
		{"SyncInterval", "KCONF_SYNC_INTERVAL", "not-a-duration"},
		{"LogLevel", "KCONF_LOG_LEVEL", "loud"},
		{"RateLimit", "KCONF_RATE_LIMIT", "-1"},
		{"RateBurst", "KCONF_RATE_BURST", "0"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			setDBEnv(t)
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for invalid %s", tc.key)
			}
		})
	}
}

func TestLoadSyncDefaults(t *testing.T) {
	clearAllEnv(t)
	setDBEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sync.Interval != 3*time.Minute {
		t.Errorf("Sync.Interval = %v, want 3m", cfg.Sync.Interval)
	}
	if cfg.Sync.S3Region != "us-east-1" {
		t.Errorf("Sync.S3Region = %q, want %q", cfg.Sync.S3Region, "us-east-1")
	}
	if cfg.Sync.S3Key != "kconf/snapshot.jsonl" {
		t.Errorf("Sync.S3Key = %q", cfg.Sync.S3Key)
	}
	if cfg.Sync.GitFile != "kconf.jsonl" {
		t.Errorf("Sync.GitFile = %q", cfg.Sync.GitFile)
	}
	if cfg.Sync.GitBranch != "main" {
		t.Errorf("Sync.GitBranch = %q", cfg.Sync.GitBranch)
	}
}

func TestLoadSyncCustom(t *testing.T) {
	clearAllEnv(t)
	setDBEnv(t)
	t.Setenv("KCONF_SYNC_INTERVAL", "10m")
	t.Setenv("KCONF_SYNC_S3_BUCKET", "my-bucket")
	t.Setenv("KCONF_SYNC_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("KCONF_SYNC_GIT_REPO", "/tmp/repo")
	t.Setenv("KCONF_SYNC_GIT_BRANCH", "backup")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sync.Interval != 10*time.Minute {
		t.Errorf("Sync.Interval = %v, want 10m", cfg.Sync.Interval)
	}
	if cfg.Sync.S3Bucket != "my-bucket" || cfg.Sync.S3Endpoint != "http://minio:9000" {
		t.Errorf("S3 = %q %q", cfg.Sync.S3Bucket, cfg.Sync.S3Endpoint)
	}
	if cfg.Sync.GitRepo != "/tmp/repo" || cfg.Sync.GitBranch != "backup" {
		t.Errorf("git = %q %q", cfg.Sync.GitRepo, cfg.Sync.GitBranch)
	}
}

func TestLoadSyncDisabled(t *testing.T) {
	clearAllEnv(t)
	setDBEnv(t)
	t.Setenv("KCONF_SYNC_INTERVAL", "0s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sync.Interval != 0 {
		t.Errorf("Sync.Interval = %v, want 0 (disabled)", cfg.Sync.Interval)
	}
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	return writeNamedConfigFile(t, "kconf.toml", body)
}

func writeNamedConfigFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("KCONF_CONFIG_FILE", writeConfigFile(t, `
table_name = "app_config"
http_addr = ":8181"
log_level = "warn"

[db]
host = "pg.internal"
name = "apps"
pool = false

[sync]
interval = "90s"
s3_bucket = "snapshots"
`))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DB.Host != "pg.internal" || cfg.DB.Name != "apps" {
		t.Errorf("DB = %+v", cfg.DB)
	}
	if cfg.DB.Pool {
		t.Error("DB.Pool = true, want false from file")
	}
	if cfg.DB.Port != "5432" {
		t.Errorf("DB.Port = %q, want default 5432", cfg.DB.Port)
	}
	if cfg.TableName != "app_config" || cfg.HTTPAddr != ":8181" {
		t.Errorf("TableName = %q, HTTPAddr = %q", cfg.TableName, cfg.HTTPAddr)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Errorf("LogLevel = %v, want WARN", cfg.LogLevel)
	}
	if cfg.Sync.Interval != 90*time.Second || cfg.Sync.S3Bucket != "snapshots" {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("KCONF_CONFIG_FILE", writeConfigFile(t, `
[db]
host = "pg.internal"
name = "apps"
`))
	t.Setenv("KCONF_DB_NAME", "override")
	t.Setenv("KCONF_DB_POOL", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DB.Host != "pg.internal" {
		t.Errorf("DB.Host = %q, want value from file", cfg.DB.Host)
	}
	if cfg.DB.Name != "override" {
		t.Errorf("DB.Name = %q, want env override", cfg.DB.Name)
	}
	if cfg.DB.Pool {
		t.Error("DB.Pool = true, want env override false")
	}
}

func TestLoadFileErrors(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		clearAllEnv(t)
		t.Setenv("KCONF_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.toml"))
		if _, err := Load(); err == nil {
			t.Fatal("expected error for missing config file")
		}
	})
	t.Run("Malformed", func(t *testing.T) {
		clearAllEnv(t)
		t.Setenv("KCONF_CONFIG_FILE", writeConfigFile(t, "[db\nhost = "))
		if _, err := Load(); err == nil {
			t.Fatal("expected error for malformed config file")
		}
	})
}

func TestLoadRateLimit(t *testing.T) {
	clearAllEnv(t)
	setDBEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RateLimit != 0 || cfg.RateBurst != 20 {
		t.Errorf("defaults: RateLimit = %v, RateBurst = %d", cfg.RateLimit, cfg.RateBurst)
	}

	t.Setenv("KCONF_RATE_LIMIT", "2.5")
	t.Setenv("KCONF_RATE_BURST", "5")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RateLimit != 2.5 || cfg.RateBurst != 5 {
		t.Errorf("RateLimit = %v, RateBurst = %d", cfg.RateLimit, cfg.RateBurst)
	}
}

func TestLoadSQLitePath(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("KCONF_STORE", "sqlite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SQLitePath != "kconf.db" {
		t.Errorf("SQLitePath = %q, want default", cfg.SQLitePath)
	}

	t.Setenv("KCONF_SQLITE_PATH", "/var/lib/kconf/kconf.db")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SQLitePath != "/var/lib/kconf/kconf.db" {
		t.Errorf("SQLitePath = %q", cfg.SQLitePath)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	for _, name := range []string{"kconf.yaml", "kconf.yml"} {
		t.Run(name, func(t *testing.T) {
			clearAllEnv(t)
			t.Setenv("KCONF_CONFIG_FILE", writeNamedConfigFile(t, name, `
store: sqlite
sqlite_path: /data/kconf.db
auth_token: tok
rate_limit: 10
log_level: debug
sync:
  interval: 45s
  git_repo: /srv/backup
`))

			cfg, err := Load()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Store != StoreSQLite || cfg.SQLitePath != "/data/kconf.db" {
				t.Errorf("Store = %q, SQLitePath = %q", cfg.Store, cfg.SQLitePath)
			}
			if cfg.AuthToken != "tok" || cfg.RateLimit != 10 {
				t.Errorf("AuthToken = %q, RateLimit = %v", cfg.AuthToken, cfg.RateLimit)
			}
			if cfg.LogLevel != slog.LevelDebug {
				t.Errorf("LogLevel = %v, want DEBUG", cfg.LogLevel)
			}
			if cfg.Sync.Interval != 45*time.Second || cfg.Sync.GitRepo != "/srv/backup" {
				t.Errorf("Sync = %+v", cfg.Sync)
			}
			if cfg.Sync.GitBranch != "main" {
				t.Errorf("Sync.GitBranch = %q, want default kept", cfg.Sync.GitBranch)
			}
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("KCONF_CONFIG_FILE", writeNamedConfigFile(t, "kconf.yaml", "store: [memory\n"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}
