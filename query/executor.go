// Package query wraps a database connection with a prepare-bind-execute
// sequence that never panics or propagates driver errors directly:
// every outcome lands on a Result carrying success, timing and a
// normalized error triple. Fetch helpers and table introspection build
// on top of it.
package query

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lucaspereyra/statq/database"
)

// FailureHandler decides what happens when a fetch helper hits a failed
// result. The default returns the *QueryError to the caller; Abort
// reproduces a log-and-exit policy.
type FailureHandler func(*QueryError) error

// Abort returns a FailureHandler that logs the failure and terminates
// the process.
func Abort(log *slog.Logger) FailureHandler {
	return func(qe *QueryError) error {
		log.Error("fatal query failure",
			"stage", qe.Stage.String(),
			"code", qe.Info.Code,
			"err", qe.Error(),
		)
		os.Exit(1)
		return nil
	}
}

// Executor runs SQL against a connection and normalizes outcomes onto
// Results. Not safe for concurrent use of the same underlying statement;
// the design assumes at most one in-flight call per connection handle.
type Executor struct {
	conn        database.Conn
	log         *slog.Logger
	onFailure   FailureHandler
	diagnostics func(*Result)
	devMode     bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the error-log sink used when logErrors is requested.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithFailureHandler replaces the default return-the-error policy used
// by the fetch helpers.
func WithFailureHandler(h FailureHandler) Option {
	return func(e *Executor) { e.onFailure = h }
}

// WithDiagnostics installs a hook invoked with the failed Result before
// the failure handler runs. Only active in developer mode.
func WithDiagnostics(hook func(*Result)) Option {
	return func(e *Executor) { e.diagnostics = hook }
}

// WithDevMode enables the diagnostics hook.
func WithDevMode(on bool) Option {
	return func(e *Executor) { e.devMode = on }
}

// New creates an Executor over an established connection.
func New(conn database.Conn, opts ...Option) *Executor {
	e := &Executor{
		conn: conn,
		log:  slog.Default(),
		onFailure: func(qe *QueryError) error {
			return qe
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute prepares and runs a statement, timing the round-trip and
// normalizing any failure onto the returned Result. It never returns an
// error: callers check Result.Success or Result.Err. On success the
// cursor is positioned for FetchRow/FetchAll and the caller owns closing
// the Result.
func (e *Executor) Execute(ctx context.Context, sql string, params []any, logErrors bool) *Result {
	res := &Result{
		QueryID: uuid.New(),
		SQL:     sql,
	}

	start := time.Now()

	stmt, err := e.conn.Prepare(ctx, sql)
	if err != nil {
		res.Elapsed = time.Since(start)
		e.fail(res, StagePrepare, err, logErrors)
		return res
	}

	rows, err := stmt.Execute(ctx, params...)
	res.Elapsed = time.Since(start)
	if err != nil {
		_ = stmt.Close(ctx)
		e.fail(res, StageExecute, err, logErrors)
		return res
	}

	res.Success = true
	res.Stage = StageExecute
	res.stmt = stmt
	res.rows = rows
	res.cols = rows.Columns()
	return res
}

// FetchRow executes the statement and reads at most one row. A query
// matching nothing returns a nil Row. Failures go through the failure
// handler.
func (e *Executor) FetchRow(ctx context.Context, sql string, params ...any) (database.Row, error) {
	res := e.Execute(ctx, sql, params, true)
	if !res.Success {
		return nil, e.handleFailure(res)
	}

	row, err := res.FetchRow(ctx)
	if err != nil {
		return nil, e.handleDeferred(res, err)
	}
	return row, nil
}

// FetchAll executes the statement and reads every row in result-set
// order. Zero matches yield an empty slice, never an error. Failures go
// through the failure handler.
func (e *Executor) FetchAll(ctx context.Context, sql string, params ...any) ([]database.Row, error) {
	_, rows, err := e.CollectAll(ctx, sql, params...)
	return rows, err
}

// CollectAll is FetchAll plus the select-list column order, for callers
// rendering tabular output.
func (e *Executor) CollectAll(ctx context.Context, sql string, params ...any) ([]string, []database.Row, error) {
	res := e.Execute(ctx, sql, params, true)
	if !res.Success {
		return nil, nil, e.handleFailure(res)
	}

	cols := res.Columns()
	rows, err := res.FetchAll(ctx)
	if err != nil {
		return nil, nil, e.handleDeferred(res, err)
	}
	return cols, rows, nil
}

// TableColumns introspects a table and returns one Column per table
// column. Failure is an ordinary return value, never routed through the
// failure handler: asking about a table that does not exist yet is a
// normal outcome.
func (e *Executor) TableColumns(ctx context.Context, table string) ([]database.Column, error) {
	sql, args := e.conn.ColumnsQuery(table)

	res := e.Execute(ctx, sql, args, false)
	if !res.Success {
		return nil, res.Err()
	}

	rows, err := res.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	cols := make([]database.Column, 0, len(rows))
	for _, row := range rows {
		cols = append(cols, database.Column{
			Name:       asString(row["column_name"]),
			DataType:   asString(row["data_type"]),
			IsNullable: asBool(row["is_nullable"]),
			IsPrimary:  asBool(row["is_primary"]),
			Default:    asString(row["column_default"]),
			OrdinalPos: asInt(row["ordinal_position"]),
		})
	}
	return cols, nil
}

// Conn returns the underlying connection.
func (e *Executor) Conn() database.Conn {
	return e.conn
}

func (e *Executor) fail(res *Result, stage Stage, err error, logErrors bool) {
	res.Success = false
	res.Stage = stage
	res.ErrorInfo = errorInfoFrom(err)
	res.ErrorCode = res.ErrorInfo.Code
	res.cause = err

	if logErrors {
		e.log.Error("query failed",
			"query_id", res.QueryID.String(),
			"stage", stage.String(),
			"code", res.ErrorCode,
			"elapsed", res.Elapsed,
			"sql", res.SQL,
			"err", err,
		)
	}
}

// handleFailure routes an already-failed result through the diagnostics
// hook and the failure handler.
func (e *Executor) handleFailure(res *Result) error {
	if e.devMode && e.diagnostics != nil {
		e.diagnostics(res)
	}
	qe, _ := res.Err().(*QueryError)
	return e.onFailure(qe)
}

// handleDeferred folds an error surfaced during row fetch back into the
// failed-result shape. Drivers may defer execution errors to iteration.
func (e *Executor) handleDeferred(res *Result, err error) error {
	e.fail(res, StageExecute, err, true)
	return e.handleFailure(res)
}

func errorInfoFrom(err error) ErrorInfo {
	var de *database.DriverError
	if errors.As(err, &de) {
		return ErrorInfo{Code: de.Code, Severity: de.Severity, Message: de.Message}
	}
	return ErrorInfo{Code: DefaultErrorCode, Severity: "ERROR", Message: err.Error()}
}
