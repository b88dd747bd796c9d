package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/kconf/internal/store"
)

// Conn is a single database connection acquired from a Connector.
// Close releases it back to wherever it came from.
type Conn interface {
	executor
	Close() error
}

// Connector hands out connections. Every acquired Conn must be closed.
type Connector interface {
	Acquire(ctx context.Context) (Conn, error)
	Close() error
}

// PoolConnector hands out connections from a shared *sql.DB pool.
type PoolConnector struct {
	db *sql.DB
}

// NewPoolConnector wraps db. The connector owns db and closes it on Close.
func NewPoolConnector(db *sql.DB) *PoolConnector {
	return &PoolConnector{db: db}
}

func (p *PoolConnector) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, store.Wrap(store.ErrConnection, "acquire pooled connection", err)
	}
	return c, nil
}

func (p *PoolConnector) Close() error {
	return p.db.Close()
}

// ClientConnector opens a dedicated single-connection handle per Acquire and
// tears it down when the Conn is closed. Nothing is shared between calls.
type ClientConnector struct {
	open func() (*sql.DB, error)
}

// NewClientConnector returns a connector that calls open for every acquisition.
func NewClientConnector(open func() (*sql.DB, error)) *ClientConnector {
	return &ClientConnector{open: open}
}

func (c *ClientConnector) Acquire(ctx context.Context) (Conn, error) {
	db, err := c.open()
	if err != nil {
		return nil, store.Wrap(store.ErrConnection, "open client", err)
	}
	db.SetMaxOpenConns(1)
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, store.Wrap(store.ErrConnection, "connect client", err)
	}
	return &clientConn{Conn: conn, db: db}, nil
}

// Close is a no-op: client connections are torn down individually.
func (c *ClientConnector) Close() error { return nil }

type clientConn struct {
	*sql.Conn
	db *sql.DB
}

func (c *clientConn) Close() error {
	err := c.Conn.Close()
	if cerr := c.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// openPQ returns an opener for the lib/pq driver with the given DSN.
func openPQ(dsn string) func() (*sql.DB, error) {
	return func() (*sql.DB, error) {
		pc, err := pq.NewConnector(dsn)
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(pc), nil
	}
}

// withConn acquires a connection, runs fn, and releases the connection on
// every exit path.
func withConn(ctx context.Context, c Connector, fn func(Conn) error) error {
	conn, err := c.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Warn("release connection", "err", err)
		}
	}()
	return fn(conn)
}
