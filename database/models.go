package database

import "fmt"

// Row maps column names to values for one fetched record.
type Row map[string]any

// Column represents a table column with its metadata.
type Column struct {
	Name       string
	DataType   string
	IsNullable bool
	IsPrimary  bool
	Default    string
	OrdinalPos int
}

// DriverError is a normalized driver failure. Drivers wrap their native
// errors into this shape so upper layers can read the SQLSTATE and
// severity without importing driver packages.
type DriverError struct {
	Code     string // SQLSTATE, e.g. "42P01"
	Severity string // driver severity, e.g. "ERROR"
	Message  string
	Cause    error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Severity, e.Code, e.Message)
}

func (e *DriverError) Unwrap() error {
	return e.Cause
}

// SQLState returns the error's SQLSTATE code.
func (e *DriverError) SQLState() string {
	return e.Code
}
