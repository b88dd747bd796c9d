// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/alfredjeanlab/kconf/internal/idgen"
	"github.com/alfredjeanlab/kconf/internal/model"
	"github.com/alfredjeanlab/kconf/internal/store"
)

// DefaultTable is the configuration table name used when none is configured.
const DefaultTable = "config"

// DefaultAdminDatabase is the administrative database used to create the
// target database.
const DefaultAdminDatabase = "postgres"

// Options holds the connection parameters for Open.
type Options struct {
	Host            string
	Port            string
	Database        string
	DefaultDatabase string // administrative database, defaults to "postgres"
	User            string
	Password        string
	SSLMode         string // defaults to "disable"
	TableName       string // defaults to "config"

	// Pooled selects a shared connection pool. When false every operation
	// opens and closes its own client connection.
	Pooled bool
}

// DSN returns a lib/pq connection URL for dbname.
func (o Options) DSN(dbname string) string {
	port := o.Port
	if port == "" {
		port = "5432"
	}
	sslmode := o.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := &url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(o.Host, port),
		Path:     "/" + dbname,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	if o.User != "" {
		if o.Password != "" {
			u.User = url.UserPassword(o.User, o.Password)
		} else {
			u.User = url.User(o.User)
		}
	}
	return u.String()
}

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	conn   Connector
	schema Schema
	logger *slog.Logger
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// Open connects to the configured server, creates the target database and
// table if they are missing, and returns a ready store. The returned store
// owns its connections; call Close when done.
func Open(ctx context.Context, o Options, logger *slog.Logger) (*PostgresStore, error) {
	if o.Host == "" || o.Database == "" {
		return nil, fmt.Errorf("%w: host and database are required", store.ErrConfigurationMissing)
	}
	if logger == nil {
		logger = slog.Default()
	}
	adminDB := o.DefaultDatabase
	if adminDB == "" {
		adminDB = DefaultAdminDatabase
	}

	// The admin connection is needed once; never pool it.
	admin := NewClientConnector(openPQ(o.DSN(adminDB)))

	var target Connector
	if o.Pooled {
		db, err := openPQ(o.DSN(o.Database))()
		if err != nil {
			return nil, store.Wrap(store.ErrConnection, "open pool", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		target = NewPoolConnector(db)
	} else {
		target = NewClientConnector(openPQ(o.DSN(o.Database)))
	}

	schema := DefaultSchema(o.TableName)
	if err := EnsureReady(ctx, admin, target, o.Database, schema, logger); err != nil {
		target.Close()
		return nil, err
	}
	logger.Info("config store ready", "host", o.Host, "database", o.Database, "table", schema.Table, "pooled", o.Pooled)
	return New(target, schema, logger), nil
}

// New returns a store that uses an already-provisioned connector.
func New(c Connector, schema Schema, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{conn: c, schema: schema, logger: logger}
}

// Close releases the store's connector.
func (s *PostgresStore) Close() error {
	return s.conn.Close()
}

func (s *PostgresStore) Get(ctx context.Context, path string, def json.RawMessage) (json.RawMessage, error) {
	if err := store.ValidateValue(def); err != nil {
		return nil, err
	}
	var out json.RawMessage
	err := withConn(ctx, s.conn, func(conn Conn) error {
		val, found, err := queryGet(ctx, conn, s.schema, path)
		if err != nil {
			return store.Wrap(store.ErrStorage, fmt.Sprintf("get %q", path), err)
		}
		if found {
			out = val
			return nil
		}
		id, err := idgen.NewEntryID()
		if err != nil {
			return store.Wrap(store.ErrStorage, "generate id", err)
		}
		inserted, err := queryInsertIfAbsent(ctx, conn, s.schema, id, path, def)
		if err != nil {
			return store.Wrap(store.ErrStorage, fmt.Sprintf("materialize %q", path), err)
		}
		if inserted {
			s.logger.Debug("materialized default", "path", path)
			out = def
			return nil
		}
		// A concurrent write landed between the read and the insert; it wins.
		val, _, err = queryGet(ctx, conn, s.schema, path)
		if err != nil {
			return store.Wrap(store.ErrStorage, fmt.Sprintf("get %q", path), err)
		}
		out = val
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Set(ctx context.Context, path string, value json.RawMessage) (json.RawMessage, error) {
	return s.write(ctx, path, value, model.ModeReplace)
}

func (s *PostgresStore) Update(ctx context.Context, path string, value json.RawMessage) (json.RawMessage, error) {
	return s.write(ctx, path, value, model.ModeMerge)
}

func (s *PostgresStore) ListEntries(ctx context.Context, prefix string) ([]*model.Entry, error) {
	var entries []*model.Entry
	err := withConn(ctx, s.conn, func(conn Conn) error {
		var err error
		entries, err = queryListEntries(ctx, conn, s.schema, prefix)
		return store.Wrap(store.ErrStorage, fmt.Sprintf("list %q", prefix), err)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *PostgresStore) write(ctx context.Context, path string, value json.RawMessage, mode model.WriteMode) (json.RawMessage, error) {
	if err := store.ValidateValue(value); err != nil {
		return nil, err
	}
	if mode == model.ModeMerge && containsNUL(value) {
		return nil, fmt.Errorf(`%w: %w: merge %q: strings containing \u0000 cannot be merged`,
			store.ErrStorage, store.ErrInvalidValue, path)
	}
	err := withConn(ctx, s.conn, func(conn Conn) error {
		return s.upsert(ctx, conn, path, value, mode)
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *PostgresStore) upsert(ctx context.Context, conn Conn, path string, value json.RawMessage, mode model.WriteMode) error {
	id, err := idgen.NewEntryID()
	if err != nil {
		return store.Wrap(store.ErrStorage, "generate id", err)
	}
	if err := queryUpsert(ctx, conn, s.schema, id, path, value, mode); err != nil {
		return store.Wrap(store.ErrStorage, fmt.Sprintf("%s %q", mode, path), err)
	}
	return nil
}
