package query

import "fmt"

// QueryError is the typed error surfaced by failed results and handed to
// the executor's failure handler. The message includes the statement text
// so that fatal logs identify the offending query.
type QueryError struct {
	SQL   string
	Stage Stage
	Info  ErrorInfo
	Cause error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s failed [%s]: %s: %s", e.Stage, e.Info.Code, e.Info.Message, e.SQL)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}
