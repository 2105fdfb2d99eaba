package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for store operations.
var (
	// ErrInvalidGraph is returned when a graph or vulnerability batch fails validation.
	ErrInvalidGraph = errors.New("validation failed")

	// ErrNotFound is returned when a function or vulnerability id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a batch contains duplicate identifiers.
	ErrConflict = errors.New("conflict")

	// ErrNoGraph is returned when an analysis is requested before any graph was loaded.
	ErrNoGraph = errors.New("graph not loaded")
)

// ValidationError describes why a graph or batch was rejected.
type ValidationError struct {
	Message string
	IDs     []string // Offending identifiers, if any
}

func (e *ValidationError) Error() string {
	if len(e.IDs) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.IDs, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidGraph
}

// NotFoundError carries the kind and id of a missing entity.
type NotFoundError struct {
	Kind string // "function" or "vulnerability"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ConflictError reports identifiers that appear more than once in a batch.
type ConflictError struct {
	Kind string
	IDs  []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("duplicate %s ids: %s", e.Kind, strings.Join(e.IDs, ", "))
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
