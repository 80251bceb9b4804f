package main

import (
	"errors"
	"fmt"
)

// Fatal to the whole run.
var (
	ErrSourceUnavailable = errors.New("source store unavailable")
	ErrTargetUnavailable = errors.New("target store unavailable")
)

// Isolated to a single table.
var (
	ErrTableNotFound   = errors.New("table not found in source")
	ErrSchemaConflict  = errors.New("target table exists with an incompatible shape")
	ErrTableExtraction = errors.New("table extraction failed")
	ErrTableDDL        = errors.New("target DDL failed")
)

// Isolated to a single row.
var (
	ErrRowCoercion = errors.New("row coercion failed")
	ErrRowInsert   = errors.New("row insert failed")
)

// SchemaConflictError carries the column sets that did not line up.
type SchemaConflictError struct {
	Table    string
	Existing []string
	Wanted   []string
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("%s: table %s has columns %v, migration needs %v",
		ErrSchemaConflict, e.Table, e.Existing, e.Wanted)
}

func (e *SchemaConflictError) Unwrap() error { return ErrSchemaConflict }

// isFatalRunError reports whether err must stop the whole run.
func isFatalRunError(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrTargetUnavailable)
}
