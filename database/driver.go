package database

import "context"

// Conn is an established, authenticated database connection.
// Implementations always report failures as returned errors; there is no
// connection-wide error-reporting mode to toggle or restore.
// A Conn is assumed to serve one in-flight prepared statement at a time
// per acquired handle; implementations may pool underlying connections.
type Conn interface {
	// Prepare parses the statement server-side and returns a handle ready
	// for execution. Malformed SQL and missing relations fail here.
	Prepare(ctx context.Context, sql string) (Stmt, error)

	// Ping checks if the connection is alive.
	Ping(ctx context.Context) error

	// Close closes the connection.
	Close() error

	// DatabaseName returns the name of the connected database.
	DatabaseName() string

	// ColumnsQuery returns the driver-specific statement that describes
	// the columns of a table, with its bind arguments.
	ColumnsQuery(table string) (sql string, args []any)
}

// Stmt is a prepared statement ready to execute.
type Stmt interface {
	// Execute runs the statement with the given parameter values and
	// returns a cursor over the result set. Some drivers defer execution
	// errors to Rows.Err; callers must check it after iterating.
	Execute(ctx context.Context, args ...any) (Rows, error)

	// Close deallocates the statement and releases its connection.
	Close(ctx context.Context) error
}

// Rows is a cursor over a statement's result set.
type Rows interface {
	// Columns returns the column names in select-list order.
	Columns() []string

	// Next advances to the next row, returning false at end of set.
	Next() bool

	// Values returns the current row's values in column order.
	Values() ([]any, error)

	// Err returns the error, if any, that ended iteration.
	Err() error

	// Close releases the cursor.
	Close()
}
