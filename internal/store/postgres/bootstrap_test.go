package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/kconf/internal/store"
)

const (
	lookupDatabase = `SELECT 1 FROM pg_database WHERE lower\(datname\) = \$1`
	createDatabase = `CREATE DATABASE "kconf" TEMPLATE template0`
	createTable    = `CREATE TABLE IF NOT EXISTS "config" \(`
)

// failingConnector refuses every acquisition.
type failingConnector struct {
	err      error
	attempts int
}

func (f *failingConnector) Acquire(context.Context) (Conn, error) {
	f.attempts++
	return nil, store.Wrap(store.ErrConnection, "acquire", f.err)
}

func (f *failingConnector) Close() error { return nil }

// countingConnector tracks acquisitions and releases of a wrapped connector.
type countingConnector struct {
	Connector
	acquired, released int
}

func (c *countingConnector) Acquire(ctx context.Context) (Conn, error) {
	conn, err := c.Connector.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	c.acquired++
	return &countingConn{Conn: conn, owner: c}, nil
}

type countingConn struct {
	Conn
	owner *countingConnector
}

func (c *countingConn) Close() error {
	c.owner.released++
	return c.Conn.Close()
}

func existsRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"?column?"}).AddRow(1)
}

func TestEnsureReady_DatabaseExists(t *testing.T) {
	adminDB, admin := newMockDB(t)
	targetDB, target := newMockDB(t)

	admin.ExpectQuery(lookupDatabase).WithArgs("kconf").WillReturnRows(existsRows())
	target.ExpectExec(createTable).WillReturnResult(sqlmock.NewResult(0, 0))

	ac := &countingConnector{Connector: NewPoolConnector(adminDB)}
	tc := &countingConnector{Connector: NewPoolConnector(targetDB)}
	if err := EnsureReady(context.Background(), ac, tc, "kconf", DefaultSchema(""), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ac.acquired != 1 || ac.released != 1 || tc.acquired != 1 || tc.released != 1 {
		t.Errorf("admin %d/%d target %d/%d, want 1/1 each", ac.acquired, ac.released, tc.acquired, tc.released)
	}
}

func TestEnsureReady_CreatesMissingDatabase(t *testing.T) {
	adminDB, admin := newMockDB(t)
	targetDB, target := newMockDB(t)

	admin.ExpectQuery(lookupDatabase).WithArgs("kconf").WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	admin.ExpectExec(createDatabase).WillReturnResult(sqlmock.NewResult(0, 0))
	target.ExpectExec(createTable).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := EnsureReady(context.Background(), NewPoolConnector(adminDB), NewPoolConnector(targetDB), "kconf", DefaultSchema(""), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureReady_LowercasesLookup(t *testing.T) {
	adminDB, admin := newMockDB(t)
	targetDB, target := newMockDB(t)

	admin.ExpectQuery(lookupDatabase).WithArgs("kconf").WillReturnRows(existsRows())
	target.ExpectExec(createTable).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := EnsureReady(context.Background(), NewPoolConnector(adminDB), NewPoolConnector(targetDB), "KConf", DefaultSchema(""), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureReady_CreateDatabaseRaceIsSwallowed(t *testing.T) {
	adminDB, admin := newMockDB(t)
	targetDB, target := newMockDB(t)

	admin.ExpectQuery(lookupDatabase).WithArgs("kconf").WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	admin.ExpectExec(createDatabase).WillReturnError(errors.New(`pq: database "kconf" already exists`))
	target.ExpectExec(createTable).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := EnsureReady(context.Background(), NewPoolConnector(adminDB), NewPoolConnector(targetDB), "kconf", DefaultSchema(""), nil); err != nil {
		t.Fatalf("create database failure should be swallowed, got %v", err)
	}
}

func TestEnsureReady_LookupFailure(t *testing.T) {
	adminDB, admin := newMockDB(t)
	targetDB, _ := newMockDB(t)

	admin.ExpectQuery(lookupDatabase).WillReturnError(errors.New("permission denied"))

	tc := &countingConnector{Connector: NewPoolConnector(targetDB)}
	err := EnsureReady(context.Background(), NewPoolConnector(adminDB), tc, "kconf", DefaultSchema(""), nil)
	if !errors.Is(err, store.ErrProvisioning) {
		t.Fatalf("expected ErrProvisioning, got %v", err)
	}
	if tc.acquired != 0 {
		t.Errorf("target should not be touched, acquired %d", tc.acquired)
	}
}

func TestEnsureReady_AdminConnectionFailure(t *testing.T) {
	targetDB, _ := newMockDB(t)
	admin := &failingConnector{err: errors.New("dial tcp: connection refused")}
	tc := &countingConnector{Connector: NewPoolConnector(targetDB)}

	err := EnsureReady(context.Background(), admin, tc, "kconf", DefaultSchema(""), nil)
	if !errors.Is(err, store.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if tc.acquired != 0 {
		t.Errorf("target should not be touched, acquired %d", tc.acquired)
	}
}

func TestEnsureReady_TargetConnectionFailure(t *testing.T) {
	adminDB, admin := newMockDB(t)
	admin.ExpectQuery(lookupDatabase).WithArgs("kconf").WillReturnRows(existsRows())

	err := EnsureReady(context.Background(), NewPoolConnector(adminDB), &failingConnector{err: errors.New("refused")}, "kconf", DefaultSchema(""), nil)
	if !errors.Is(err, store.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestEnsureReady_SchemaFailureReleasesConnection(t *testing.T) {
	adminDB, admin := newMockDB(t)
	targetDB, target := newMockDB(t)

	admin.ExpectQuery(lookupDatabase).WithArgs("kconf").WillReturnRows(existsRows())
	target.ExpectExec(createTable).WillReturnError(errors.New("permission denied for schema public"))

	tc := &countingConnector{Connector: NewPoolConnector(targetDB)}
	err := EnsureReady(context.Background(), NewPoolConnector(adminDB), tc, "kconf", DefaultSchema(""), nil)
	if !errors.Is(err, store.ErrProvisioning) {
		t.Fatalf("expected ErrProvisioning, got %v", err)
	}
	if tc.released != tc.acquired {
		t.Errorf("acquired %d released %d", tc.acquired, tc.released)
	}
}

func TestEnsureReady_Idempotent(t *testing.T) {
	adminDB, admin := newMockDB(t)
	targetDB, target := newMockDB(t)

	for i := 0; i < 2; i++ {
		admin.ExpectQuery(lookupDatabase).WithArgs("kconf").WillReturnRows(existsRows())
		target.ExpectExec(createTable).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	ac, tc := NewPoolConnector(adminDB), NewPoolConnector(targetDB)
	for i := 0; i < 2; i++ {
		if err := EnsureReady(context.Background(), ac, tc, "kconf", DefaultSchema(""), nil); err != nil {
			t.Fatalf("run %d: unexpected error: %v", i+1, err)
		}
	}
}

func TestClientConnector_ReleaseClosesHandle(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	opens := 0
	c := NewClientConnector(func() (*sql.DB, error) {
		opens++
		return db, nil
	})
	err = withConn(context.Background(), c, func(conn Conn) error {
		_, err := conn.ExecContext(context.Background(), "SELECT 1")
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opens != 1 {
		t.Errorf("opens = %d, want 1", opens)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClientConnector_OpenFailure(t *testing.T) {
	c := NewClientConnector(func() (*sql.DB, error) { return nil, errors.New("bad dsn") })
	if _, err := c.Acquire(context.Background()); !errors.Is(err, store.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestWithConn_ReleasesOnError(t *testing.T) {
	db, _ := newMockDB(t)
	c := &countingConnector{Connector: NewPoolConnector(db)}
	wantErr := errors.New("query failed")

	err := withConn(context.Background(), c, func(Conn) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if c.acquired != 1 || c.released != 1 {
		t.Errorf("acquired %d released %d, want 1/1", c.acquired, c.released)
	}
}

func TestStore_ReleasesConnectionPerOperation(t *testing.T) {
	db, mock := newMockDB(t)
	c := &countingConnector{Connector: NewPoolConnector(db)}
	s := New(c, DefaultSchema(""), nil)

	mock.ExpectQuery(selectByPath).WithArgs("p").WillReturnRows(dataRows())
	mock.ExpectExec(upsertReplace).WillReturnError(errors.New("boom"))

	if _, err := s.Get(context.Background(), "p", []byte(`1`)); !errors.Is(err, store.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if c.acquired != 1 || c.released != 1 {
		t.Errorf("acquired %d released %d, want one connection for read-then-write", c.acquired, c.released)
	}
}
