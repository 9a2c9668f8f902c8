package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lucaspereyra/statq/database"
)

// Conn implements database.Conn for PostgreSQL on top of a small pgx pool.
type Conn struct {
	pool   *pgxpool.Pool
	dbName string
}

// Connect establishes a connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*Conn, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	cfg.MaxConns = 5
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Conn{pool: pool, dbName: cfg.ConnConfig.Database}, nil
}

// Prepare acquires a pooled connection and prepares the statement on it
// under a unique server-side name. The connection stays acquired until
// the statement is closed.
func (c *Conn) Prepare(ctx context.Context, sql string) (database.Stmt, error) {
	pc, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}

	name := "statq_" + uuid.NewString()
	if _, err := pc.Conn().Prepare(ctx, name, sql); err != nil {
		pc.Release()
		return nil, wrapErr(err)
	}

	return &stmt{conn: pc, name: name}, nil
}

// Ping checks if the connection is alive.
func (c *Conn) Ping(ctx context.Context) error {
	if c.pool == nil {
		return errors.New("not connected")
	}
	return c.pool.Ping(ctx)
}

// Close closes the connection pool.
func (c *Conn) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

// DatabaseName returns the name of the connected database.
func (c *Conn) DatabaseName() string {
	return c.dbName
}

// ColumnsQuery returns the information_schema statement describing the
// columns of a table. A "schema.table" name is split; the schema defaults
// to public otherwise.
func (c *Conn) ColumnsQuery(table string) (string, []any) {
	schema, name := splitTable(table)
	return queryTableColumns, []any{schema, name}
}

func splitTable(table string) (schema, name string) {
	if i := strings.IndexByte(table, '.'); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "public", table
}

type stmt struct {
	conn *pgxpool.Conn
	name string
}

func (s *stmt) Execute(ctx context.Context, args ...any) (database.Rows, error) {
	r, err := s.conn.Conn().Query(ctx, s.name, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &rows{rows: r}, nil
}

func (s *stmt) Close(ctx context.Context) error {
	err := s.conn.Conn().Deallocate(ctx, s.name)
	s.conn.Release()
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

type rows struct {
	rows pgx.Rows
	cols []string
}

func (r *rows) Columns() []string {
	if r.cols == nil {
		fields := r.rows.FieldDescriptions()
		r.cols = make([]string, len(fields))
		for i, f := range fields {
			r.cols[i] = f.Name
		}
	}
	return r.cols
}

func (r *rows) Next() bool {
	return r.rows.Next()
}

func (r *rows) Values() ([]any, error) {
	vals, err := r.rows.Values()
	if err != nil {
		return nil, wrapErr(err)
	}
	return vals, nil
}

func (r *rows) Err() error {
	return wrapErr(r.rows.Err())
}

func (r *rows) Close() {
	r.rows.Close()
}

// wrapErr normalizes pgx errors into database.DriverError, preserving the
// server's SQLSTATE and severity when present.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &database.DriverError{
			Code:     pgErr.Code,
			Severity: pgErr.Severity,
			Message:  pgErr.Message,
			Cause:    err,
		}
	}
	return err
}
