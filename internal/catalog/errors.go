package catalog

import (
	"fmt"
	"strings"
)

// DocumentParseError is returned when a catalog document cannot be decoded.
type DocumentParseError struct {
	File    string
	Line    int
	Message string
}

func (e *DocumentParseError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// MissingInputError is returned when a required index or document is absent.
// The affected table or column is skipped; the run continues.
type MissingInputError struct {
	Kind  string // "document", "fields index", "transforms index", ...
	Path  string
	Table string
	Err   error
}

func (e *MissingInputError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "missing %s", e.Kind)
	if e.Table != "" {
		fmt.Fprintf(&b, " for table %s", e.Table)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *MissingInputError) Unwrap() error { return e.Err }

// ValidationFailure is returned when patched output does not re-parse into
// the same table. The original document is left untouched.
type ValidationFailure struct {
	Table string
	Path  string
	Err   error
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("table %s: patched document failed validation: %v", e.Table, e.Err)
}

func (e *ValidationFailure) Unwrap() error { return e.Err }

// AmbiguousResolutionWarning records a column for which no resolution tier
// produced a candidate. It is reported, never fatal.
type AmbiguousResolutionWarning struct {
	Table  string
	Column string
	Field  string
}

func (e *AmbiguousResolutionWarning) Error() string {
	return fmt.Sprintf("%s.%s: no %s candidate from any tier", e.Table, e.Column, e.Field)
}

// SchemaConstraintViolation records entries dropped to satisfy a schema
// constraint, such as the related_columns cap.
type SchemaConstraintViolation struct {
	Table   string
	Column  string
	Field   string
	Dropped []string
	Reason  string
}

func (e *SchemaConstraintViolation) Error() string {
	return fmt.Sprintf("%s.%s: %s %s: dropped %s", e.Table, e.Column, e.Field, e.Reason, strings.Join(e.Dropped, ", "))
}
