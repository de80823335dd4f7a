package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingColumn means a required CSV header column is absent.
	ErrMissingColumn = errors.New("missing column")
	// ErrMalformedValue means a CSV cell could not be parsed as its column type.
	ErrMalformedValue = errors.New("malformed value")
	// ErrEmptyTable means a CSV file has a header but no data rows.
	ErrEmptyTable = errors.New("empty table")
)

// SchemaError reports a CSV file whose header does not match the expected schema.
type SchemaError struct {
	Path   string
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s %q", e.Path, ErrMissingColumn, e.Column)
}

func (e *SchemaError) Unwrap() error { return ErrMissingColumn }

// ParseError reports an unparseable cell in a CSV file.
type ParseError struct {
	Path   string
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s in column %q (%q): %v", e.Path, e.Line, ErrMalformedValue, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrMalformedValue, e.Err} }
