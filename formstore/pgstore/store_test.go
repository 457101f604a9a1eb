package pgstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
)

// Minimal driver stub so exec paths can be tested without a server.

type execResult struct {
	n   int64
	err error
}

func (r execResult) LastInsertId() (int64, error) { return 0, nil }
func (r execResult) RowsAffected() (int64, error) { return r.n, r.err }

type execConn struct{ res execResult }

func (execConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (execConn) Close() error                        { return nil }
func (execConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }

func (c execConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	return c.res, nil
}

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return nil, errors.New("use the connector") }

type execConnector struct{ res execResult }

func (c execConnector) Connect(context.Context) (driver.Conn, error) { return execConn{c.res}, nil }
func (execConnector) Driver() driver.Driver                          { return stubDriver{} }

func newExecDB(res execResult) *sqlx.DB {
	return sqlx.NewDb(sql.OpenDB(execConnector{res}), "postgres")
}

func TestEvictExpiredReturnsCount(t *testing.T) {
	store := New(newExecDB(execResult{n: 3}), time.Minute)
	n, err := store.EvictExpired(context.Background())
	if err != nil {
		t.Fatalf("EvictExpired: %v", err)
	}
	if n != 3 {
		t.Fatalf("evicted = %d, want 3", n)
	}
}

func TestEvictExpiredSurfacesRowsAffectedError(t *testing.T) {
	cause := errors.New("rows affected unsupported")
	store := New(newExecDB(execResult{err: cause}), time.Minute)
	n, err := store.EvictExpired(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want wrapped %v", err, cause)
	}
	if n != 0 {
		t.Fatalf("evicted = %d, want 0 on error", n)
	}
}
