package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/kconf/internal/store"
)

// emptyTemplate is the template database used for CREATE DATABASE.
const emptyTemplate = "template0"

// Schema names the configuration table and its uniqueness constraint.
type Schema struct {
	Table      string
	Constraint string
}

// DefaultSchema returns the schema for the given table name, deriving the
// constraint name the way PostgreSQL names an inline UNIQUE constraint.
func DefaultSchema(table string) Schema {
	if table == "" {
		table = DefaultTable
	}
	return Schema{Table: table, Constraint: table + "_config_path_key"}
}

func (s Schema) table() string      { return pq.QuoteIdentifier(s.Table) }
func (s Schema) constraint() string { return pq.QuoteIdentifier(s.Constraint) }

func (s Schema) createTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS ` + s.table() + ` (
		id          TEXT PRIMARY KEY,
		config_path TEXT NOT NULL,
		data        JSON NULL,
		CONSTRAINT ` + s.constraint() + ` UNIQUE (config_path)
	)`
}

// EnsureReady makes sure database exists (via the admin connector) and that
// the configuration table exists in it (via the target connector). It is safe
// to call on every process start and concurrently from several processes.
func EnsureReady(ctx context.Context, admin, target Connector, database string, schema Schema, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ensureDatabase(ctx, admin, database, logger); err != nil {
		return err
	}
	return ensureSchema(ctx, target, schema, logger)
}

func ensureDatabase(ctx context.Context, admin Connector, database string, logger *slog.Logger) error {
	return withConn(ctx, admin, func(conn Conn) error {
		exists, err := databaseExists(ctx, conn, database)
		if err != nil {
			return store.Wrap(store.ErrProvisioning, "look up database", err)
		}
		if exists {
			return nil
		}
		// A concurrent initializer may win the race; losing it is fine.
		if _, err := conn.ExecContext(ctx, `CREATE DATABASE `+pq.QuoteIdentifier(database)+` TEMPLATE `+emptyTemplate); err != nil {
			logger.Warn("create database failed, continuing", "database", database, "err", err)
			return nil
		}
		logger.Info("created database", "database", database)
		return nil
	})
}

func databaseExists(ctx context.Context, db executor, database string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM pg_database WHERE lower(datname) = $1`,
		strings.ToLower(database),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func ensureSchema(ctx context.Context, target Connector, schema Schema, logger *slog.Logger) error {
	return withConn(ctx, target, func(conn Conn) error {
		if _, err := conn.ExecContext(ctx, schema.createTableSQL()); err != nil {
			return store.Wrap(store.ErrProvisioning, "create table "+schema.Table, err)
		}
		logger.Debug("schema ready", "table", schema.Table)
		return nil
	})
}
