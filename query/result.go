package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lucaspereyra/statq/database"
)

// DefaultErrorCode is reported when the driver gives no SQLSTATE,
// e.g. on connectivity loss or context cancellation.
const DefaultErrorCode = "42000"

// Stage identifies how far statement processing got before failing.
type Stage int

const (
	StagePrepare Stage = iota
	StageExecute
)

func (s Stage) String() string {
	switch s {
	case StagePrepare:
		return "prepare"
	case StageExecute:
		return "execute"
	default:
		return "unknown"
	}
}

// ErrorInfo is the normalized error triple carried by failed results.
type ErrorInfo struct {
	Code     string // SQLSTATE
	Severity string // driver severity
	Message  string
}

// Result is the outcome of one Execute call. It wraps the driver's live
// cursor rather than annotating it: exactly one of Success=true with a
// usable cursor, or Success=false with populated error fields, holds.
type Result struct {
	// QueryID uniquely identifies this execution for log correlation.
	QueryID uuid.UUID

	// SQL is the statement text as submitted.
	SQL string

	// Success reports whether both prepare and execute succeeded.
	Success bool

	// Stage is the processing stage reached; on failure, the stage that
	// failed.
	Stage Stage

	// Elapsed is the wall-clock duration of prepare plus execute.
	Elapsed time.Duration

	// ErrorCode is the SQLSTATE of the failure, DefaultErrorCode when the
	// driver reported none, and empty on success.
	ErrorCode string

	// ErrorInfo is the normalized error triple; zero on success.
	ErrorInfo ErrorInfo

	stmt  database.Stmt
	rows  database.Rows
	cols  []string
	cause error
}

// Seconds returns the elapsed time as floating-point seconds.
func (r *Result) Seconds() float64 {
	return r.Elapsed.Seconds()
}

// ErrorMessage returns the error triple joined for logging, empty on
// success.
func (r *Result) ErrorMessage() string {
	if r.Success {
		return ""
	}
	return strings.Join([]string{r.ErrorInfo.Code, r.ErrorInfo.Severity, r.ErrorInfo.Message}, ", ")
}

// Err returns nil on success, otherwise a *QueryError describing the
// failure.
func (r *Result) Err() error {
	if r.Success {
		return nil
	}
	return &QueryError{
		SQL:   r.SQL,
		Stage: r.Stage,
		Info:  r.ErrorInfo,
		Cause: r.cause,
	}
}

// Columns returns the result set's column names in select-list order.
// Empty until the statement has executed successfully.
func (r *Result) Columns() []string {
	return r.cols
}

// Rows returns the live cursor, nil on failure.
func (r *Result) Rows() database.Rows {
	return r.rows
}

// Close releases the cursor and deallocates the statement. Safe to call
// on failed results and more than once.
func (r *Result) Close(ctx context.Context) {
	if r.rows != nil {
		r.rows.Close()
		r.rows = nil
	}
	if r.stmt != nil {
		_ = r.stmt.Close(ctx)
		r.stmt = nil
	}
}

// FetchRow reads exactly one row as a column-name-to-value mapping and
// closes the result. Returns nil when the result set is empty; remaining
// rows are not read.
func (r *Result) FetchRow(ctx context.Context) (database.Row, error) {
	if r.rows == nil {
		return nil, r.cursorGone()
	}
	defer r.Close(ctx)

	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	vals, err := r.rows.Values()
	if err != nil {
		return nil, err
	}
	return r.makeRow(vals), nil
}

// FetchAll reads every remaining row in result-set order and closes the
// result. A query matching zero rows yields an empty, non-nil slice.
func (r *Result) FetchAll(ctx context.Context) ([]database.Row, error) {
	if r.rows == nil {
		return nil, r.cursorGone()
	}
	defer r.Close(ctx)

	out := []database.Row{}
	for r.rows.Next() {
		vals, err := r.rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, r.makeRow(vals))
	}
	if err := r.rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// cursorGone explains a fetch on a result with no live cursor: either
// the execution failed, or the rows were already consumed.
func (r *Result) cursorGone() error {
	if err := r.Err(); err != nil {
		return err
	}
	return errors.New("result already consumed")
}

func (r *Result) makeRow(vals []any) database.Row {
	row := make(database.Row, len(r.cols))
	for i, col := range r.cols {
		if i < len(vals) {
			row[col] = vals[i]
		}
	}
	return row
}
