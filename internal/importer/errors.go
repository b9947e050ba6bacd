package importer

import (
	"errors"
	"fmt"
)

// ErrUnknownFormat is wrapped by the ParseError returned for an unregistered
// format name.
var ErrUnknownFormat = errors.New("unknown format")

// ParseError means the whole file was rejected. No rows from it are usable.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s file: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RowError describes one source row that was dropped. It never aborts the
// rest of the file.
type RowError struct {
	Line   int
	Field  string
	Reason string
}

func (e RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Reason)
}
