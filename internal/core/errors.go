package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat rejects an upload whose extension is neither CSV
	// nor a spreadsheet. It is raised before any row is read.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict marks a unique constraint violation reported by the store.
	ErrConflict = errors.New("duplicate key")
)

// ParseError reports file content that does not match its claimed format.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s file: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a store failure for an otherwise valid record.
type PersistenceError struct {
	PatientID string
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.PatientID == "" {
		return fmt.Sprintf("save patient: %v", e.Err)
	}
	return fmt.Sprintf("save patient %s: %v", e.PatientID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
