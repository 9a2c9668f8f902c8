package query

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/lucaspereyra/statq/database"
	"github.com/stretchr/testify/require"
)

type fakeRows struct {
	cols   []string
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *fakeRows) Columns() []string { return r.cols }

func (r *fakeRows) Next() bool {
	if r.idx < len(r.data) {
		r.idx++
		return true
	}
	return false
}

func (r *fakeRows) Values() ([]any, error) { return r.data[r.idx-1], nil }
func (r *fakeRows) Err() error             { return r.err }
func (r *fakeRows) Close()                 { r.closed = true }

type fakeStmt struct {
	rows    *fakeRows
	execErr error
	closed  bool
}

func (s *fakeStmt) Execute(_ context.Context, _ ...any) (database.Rows, error) {
	if s.execErr != nil {
		return nil, s.execErr
	}
	return s.rows, nil
}

func (s *fakeStmt) Close(_ context.Context) error {
	s.closed = true
	return nil
}

type fakeConn struct {
	prepareErr error
	stmt       *fakeStmt
}

func (c *fakeConn) Prepare(_ context.Context, _ string) (database.Stmt, error) {
	if c.prepareErr != nil {
		return nil, c.prepareErr
	}
	return c.stmt, nil
}

func (c *fakeConn) Ping(_ context.Context) error { return nil }
func (c *fakeConn) Close() error                 { return nil }
func (c *fakeConn) DatabaseName() string         { return "testdb" }

func (c *fakeConn) ColumnsQuery(table string) (string, []any) {
	return "SELECT * FROM information_schema.columns WHERE table_name = $1", []any{table}
}

func connWithRows(cols []string, data [][]any) *fakeConn {
	return &fakeConn{stmt: &fakeStmt{rows: &fakeRows{cols: cols, data: data}}}
}

func TestExecute_Success(t *testing.T) {
	t.Parallel()

	conn := connWithRows([]string{"sum"}, [][]any{{int64(2)}})
	e := New(conn)

	res := e.Execute(context.Background(), "SELECT 1+1 AS sum", nil, true)
	require.True(t, res.Success)
	require.Empty(t, res.ErrorMessage())
	require.Empty(t, res.ErrorCode)
	require.GreaterOrEqual(t, res.Elapsed, time.Duration(0))
	require.Equal(t, []string{"sum"}, res.Columns())
	require.NoError(t, res.Err())

	row, err := res.FetchRow(context.Background())
	require.NoError(t, err)
	require.Equal(t, database.Row{"sum": int64(2)}, row)
	require.True(t, conn.stmt.closed)
	require.True(t, conn.stmt.rows.closed)
}

func TestExecute_PrepareFailure(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{prepareErr: &database.DriverError{
		Code:     "42P01",
		Severity: "ERROR",
		Message:  `relation "no_such_table" does not exist`,
	}}

	var buf bytes.Buffer
	e := New(conn, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	res := e.Execute(context.Background(), "SELECT * FROM no_such_table", nil, true)
	require.False(t, res.Success)
	require.Equal(t, StagePrepare, res.Stage)
	require.Equal(t, "42P01", res.ErrorCode)
	require.NotEmpty(t, res.ErrorMessage())
	require.Contains(t, res.ErrorMessage(), "no_such_table")
	require.Contains(t, buf.String(), "no_such_table")

	var qe *QueryError
	require.ErrorAs(t, res.Err(), &qe)
	require.Equal(t, StagePrepare, qe.Stage)
}

func TestExecute_ExecuteFailureClosesStmt(t *testing.T) {
	t.Parallel()

	stmt := &fakeStmt{execErr: &database.DriverError{
		Code:     "23505",
		Severity: "ERROR",
		Message:  "duplicate key value violates unique constraint",
	}}
	e := New(&fakeConn{stmt: stmt})

	res := e.Execute(context.Background(), "INSERT INTO t VALUES ($1)", []any{1}, false)
	require.False(t, res.Success)
	require.Equal(t, StageExecute, res.Stage)
	require.Equal(t, "23505", res.ErrorCode)
	require.True(t, stmt.closed)
}

func TestExecute_DefaultErrorCode(t *testing.T) {
	t.Parallel()

	e := New(&fakeConn{prepareErr: errors.New("connection reset")})

	res := e.Execute(context.Background(), "SELECT 1", nil, false)
	require.False(t, res.Success)
	require.Equal(t, DefaultErrorCode, res.ErrorCode)
	require.Contains(t, res.ErrorMessage(), "connection reset")
}

func TestExecute_NoLoggingWhenDisabled(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	e := New(
		&fakeConn{prepareErr: errors.New("boom")},
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
	)

	_ = e.Execute(context.Background(), "SELECT 1", nil, false)
	require.Empty(t, buf.String())
}

func TestFetchRow_NoRowSentinel(t *testing.T) {
	t.Parallel()

	e := New(connWithRows([]string{"id"}, nil))

	row, err := e.FetchRow(context.Background(), "SELECT id FROM t WHERE 1=0")
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestFetchRow_LeavesRemainingRowsUnread(t *testing.T) {
	t.Parallel()

	conn := connWithRows([]string{"id"}, [][]any{{1}, {2}, {3}})
	e := New(conn)

	row, err := e.FetchRow(context.Background(), "SELECT id FROM t")
	require.NoError(t, err)
	require.Equal(t, database.Row{"id": 1}, row)
	require.Equal(t, 1, conn.stmt.rows.idx)
	require.True(t, conn.stmt.rows.closed)
}

func TestFetchAll_Empty(t *testing.T) {
	t.Parallel()

	e := New(connWithRows([]string{"id"}, nil))

	rows, err := e.FetchAll(context.Background(), "SELECT id FROM t WHERE 1=0")
	require.NoError(t, err)
	require.NotNil(t, rows)
	require.Empty(t, rows)
}

func TestFetchAll_PreservesOrder(t *testing.T) {
	t.Parallel()

	e := New(connWithRows([]string{"id", "name"}, [][]any{
		{1, "ada"},
		{2, "grace"},
	}))

	rows, err := e.FetchAll(context.Background(), "SELECT id, name FROM t ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, database.Row{"id": 1, "name": "ada"}, rows[0])
	require.Equal(t, database.Row{"id": 2, "name": "grace"}, rows[1])
}

func TestCollectAll_ReturnsColumnOrder(t *testing.T) {
	t.Parallel()

	e := New(connWithRows([]string{"b", "a"}, [][]any{{1, 2}}))

	cols, rows, err := e.CollectAll(context.Background(), "SELECT b, a FROM t")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, cols)
	require.Equal(t, []database.Row{{"b": 1, "a": 2}}, rows)
}

func TestFetchAll_DeferredDriverError(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{stmt: &fakeStmt{rows: &fakeRows{
		cols: []string{"id"},
		err: &database.DriverError{
			Code:     "57014",
			Severity: "ERROR",
			Message:  "canceling statement due to statement timeout",
		},
	}}}

	var handled *QueryError
	e := New(conn, WithFailureHandler(func(qe *QueryError) error {
		handled = qe
		return qe
	}))

	_, err := e.FetchAll(context.Background(), "SELECT id FROM big")
	require.Error(t, err)
	require.NotNil(t, handled)
	require.Equal(t, "57014", handled.Info.Code)
}

func TestFetchRow_FailureHandlerGetsSQLText(t *testing.T) {
	t.Parallel()

	const badSQL = "SELEKT * FROM t"
	conn := &fakeConn{prepareErr: &database.DriverError{
		Code:     "42601",
		Severity: "ERROR",
		Message:  `syntax error at or near "SELEKT"`,
	}}

	var handled *QueryError
	e := New(conn, WithFailureHandler(func(qe *QueryError) error {
		handled = qe
		return qe
	}))

	row, err := e.FetchRow(context.Background(), badSQL)
	require.Nil(t, row)
	require.Error(t, err)
	require.NotNil(t, handled)
	require.Contains(t, handled.Error(), badSQL)
}

func TestDiagnosticsHookOnlyInDevMode(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{prepareErr: errors.New("boom")}

	var hookCalls int
	hook := func(_ *Result) { hookCalls++ }
	swallow := func(qe *QueryError) error { return qe }

	e := New(conn, WithDiagnostics(hook), WithFailureHandler(swallow))
	_, _ = e.FetchRow(context.Background(), "SELECT 1")
	require.Zero(t, hookCalls)

	e = New(conn, WithDiagnostics(hook), WithFailureHandler(swallow), WithDevMode(true))
	_, _ = e.FetchRow(context.Background(), "SELECT 1")
	require.Equal(t, 1, hookCalls)
}

func TestTableColumns(t *testing.T) {
	t.Parallel()

	cols := []string{"column_name", "data_type", "is_nullable", "column_default", "ordinal_position", "is_primary"}
	conn := connWithRows(cols, [][]any{
		{"id", "integer", "NO", "nextval('t_id_seq')", int32(1), true},
		{"name", "text", "YES", "", int32(2), false},
	})
	e := New(conn)

	got, err := e.TableColumns(context.Background(), "t")
	require.NoError(t, err)
	require.Equal(t, []database.Column{
		{Name: "id", DataType: "integer", IsNullable: false, IsPrimary: true, Default: "nextval('t_id_seq')", OrdinalPos: 1},
		{Name: "name", DataType: "text", IsNullable: true, IsPrimary: false, Default: "", OrdinalPos: 2},
	}, got)
}

func TestTableColumns_FailureIsAReturnValue(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{prepareErr: errors.New("permission denied")}
	e := New(conn, WithFailureHandler(func(_ *QueryError) error {
		t.Fatal("failure handler must not run for metadata lookups")
		return nil
	}))

	got, err := e.TableColumns(context.Background(), "missing")
	require.Error(t, err)
	require.Nil(t, got)
}
