// Package sqlite implements store.Store on an embedded SQLite database.
//
// It is meant for single-node deployments and local development where a
// PostgreSQL server is not available. Values are kept as JSON text; merges
// run in Go inside a write transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/alfredjeanlab/kconf/internal/idgen"
	"github.com/alfredjeanlab/kconf/internal/model"
	"github.com/alfredjeanlab/kconf/internal/store"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "config"

// Store implements store.Store on a *sql.DB opened with the modernc driver.
type Store struct {
	db     *sql.DB
	table  string // quoted identifier
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database file at path and provisions
// the configuration table. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path, table string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", store.ErrConfigurationMissing)
	}
	dsn := path + "?_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, store.Wrap(store.ErrConnection, "open "+path, err)
	}
	s, err := New(ctx, db, table, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("config store ready", "driver", "sqlite", "path", path, "table", s.table)
	}
	return s, nil
}

// New provisions the table on db and returns a store that owns db.
// SQLite allows one writer at a time, so the pool is capped at a single
// connection; this also keeps ":memory:" databases alive between calls.
func New(ctx context.Context, db *sql.DB, table string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if table == "" {
		table = DefaultTable
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, table: quoteIdent(table), logger: logger}

	if err := db.PingContext(ctx); err != nil {
		return nil, store.Wrap(store.ErrConnection, "ping", err)
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id          TEXT PRIMARY KEY,
		config_path TEXT NOT NULL UNIQUE,
		data        TEXT
	)`, s.table))
	if err != nil {
		return nil, store.Wrap(store.ErrProvisioning, "create table "+table, err)
	}
	return s, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, path string, def json.RawMessage) (json.RawMessage, error) {
	if err := store.ValidateValue(def); err != nil {
		return nil, err
	}
	var out json.RawMessage
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		val, found, err := s.lookup(ctx, tx, path)
		if err != nil {
			return store.Wrap(store.ErrStorage, fmt.Sprintf("get %q", path), err)
		}
		if found {
			out = val
			return nil
		}
		if err := s.upsert(ctx, tx, path, def); err != nil {
			return err
		}
		s.logger.Debug("materialized default", "path", path)
		out = def
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, path string, value json.RawMessage) (json.RawMessage, error) {
	if err := store.ValidateValue(value); err != nil {
		return nil, err
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return s.upsert(ctx, tx, path, value)
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Update(ctx context.Context, path string, value json.RawMessage) (json.RawMessage, error) {
	if err := store.ValidateValue(value); err != nil {
		return nil, err
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		merged := value
		existing, found, err := s.lookup(ctx, tx, path)
		if err != nil {
			return store.Wrap(store.ErrStorage, fmt.Sprintf("merge %q", path), err)
		}
		if found {
			merged, err = model.MergeObjects(existing, value)
			if err != nil {
				return store.Wrap(store.ErrStorage, fmt.Sprintf("merge %q", path), err)
			}
		}
		return s.upsert(ctx, tx, path, merged)
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) ListEntries(ctx context.Context, prefix string) ([]*model.Entry, error) {
	// substr keeps the match case-sensitive and treats % and _ literally,
	// unlike LIKE.
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, config_path, data FROM %s
		 WHERE substr(config_path, 1, length(?)) = ?
		 ORDER BY config_path`, s.table), prefix, prefix)
	if err != nil {
		return nil, store.Wrap(store.ErrStorage, fmt.Sprintf("list %q", prefix), err)
	}
	defer rows.Close()

	var entries []*model.Entry
	for rows.Next() {
		var (
			e    model.Entry
			data sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Path, &data); err != nil {
			return nil, store.Wrap(store.ErrStorage, "scan entry", err)
		}
		if data.Valid {
			e.Value = json.RawMessage(data.String)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap(store.ErrStorage, fmt.Sprintf("list %q", prefix), err)
	}
	return entries, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Wrap(store.ErrConnection, "begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return store.Wrap(store.ErrStorage, "commit", err)
	}
	return nil
}

// lookup reads the value at path. An empty path matches the first row.
func (s *Store) lookup(ctx context.Context, tx *sql.Tx, path string) (json.RawMessage, bool, error) {
	var row *sql.Row
	if path == "" {
		row = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s ORDER BY config_path LIMIT 1`, s.table))
	} else {
		row = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE config_path = ?`, s.table), path)
	}
	var data sql.NullString
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !data.Valid {
		return nil, true, nil
	}
	return json.RawMessage(data.String), true, nil
}

func (s *Store) upsert(ctx context.Context, tx *sql.Tx, path string, value json.RawMessage) error {
	id, err := idgen.NewEntryID()
	if err != nil {
		return store.Wrap(store.ErrStorage, "generate id", err)
	}
	var data any
	if value != nil {
		data = string(value)
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, config_path, data) VALUES (?, ?, ?)
		 ON CONFLICT (config_path) DO UPDATE SET data = excluded.data`, s.table),
		id, path, data)
	if err != nil {
		return store.Wrap(store.ErrStorage, fmt.Sprintf("write %q", path), err)
	}
	return nil
}
