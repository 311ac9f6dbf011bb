package types

import (
	"errors"
	"fmt"
)

// Schema definition errors.
var (
	ErrEndpointColumnsNotDefined = errors.New("endpoint columns not defined")
	ErrEndpointColumnExists      = errors.New("endpoint column already exists")
	ErrInvalidIdentifier         = errors.New("invalid SQL identifier")
	ErrTypesArrayEmpty           = errors.New("identity types must not be empty")
	ErrTypesWrongDataType        = errors.New("identity type must be an integer")
	ErrDelimiterEmpty            = errors.New("endpoint delimiter must not be empty")
)

// Query and data errors.
var (
	ErrColumnNotFound     = errors.New("column not found")
	ErrColumnDataMissing  = errors.New("column data missing")
	ErrColumnValueInvalid = errors.New("invalid column value")
)

// Registry and dispatch errors.
var (
	ErrTableForTypeNotFound       = errors.New("no table registered for identity type")
	ErrTableNotResponsibleForType = errors.New("table is not responsible for identity type")
	ErrTypeNotFound               = errors.New("identity type not found")
	ErrTypeAlreadyRegistered      = errors.New("identity type already registered by another table")
	ErrTableNotFound              = errors.New("table not found")
)

// Store errors.
var (
	ErrStoreClosed = errors.New("store is closed")
)

// ColumnError reports a failure tied to one named column. It matches its Kind
// sentinel under errors.Is.
type ColumnError struct {
	Kind   error
	Table  string
	Column string
}

func (e *ColumnError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s: %q", e.Kind, e.Column)
	}
	return fmt.Sprintf("%s: %s.%q", e.Kind, e.Table, e.Column)
}

func (e *ColumnError) Unwrap() error { return e.Kind }

// TypeError reports a failure tied to one identity type.
type TypeError struct {
	Kind  error
	Table string
	Type  IdentityType
}

func (e *TypeError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s: %d", e.Kind, e.Type)
	}
	return fmt.Sprintf("%s: table %s, type %d", e.Kind, e.Table, e.Type)
}

func (e *TypeError) Unwrap() error { return e.Kind }
