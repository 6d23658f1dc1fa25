package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRevisionMismatch is returned when a guarded update finds a newer revision.
	ErrRevisionMismatch = errors.New("revision mismatch")

	// ErrNotFound is returned when a record does not exist in a store.
	ErrNotFound = errors.New("not found")

	// ErrMaxDepth is returned when parent resolution exceeds the configured depth.
	ErrMaxDepth = errors.New("maximum parent depth exceeded")
)

// RevisionMismatchError is returned when a revision guard fails.
type RevisionMismatchError struct {
	ID       int
	Expected int
	Actual   int
}

func (e *RevisionMismatchError) Error() string {
	if e.Actual > 0 {
		return fmt.Sprintf("work item %d: revision mismatch: expected %d, got %d", e.ID, e.Expected, e.Actual)
	}
	return fmt.Sprintf("work item %d: revision mismatch: expected %d", e.ID, e.Expected)
}

func (e *RevisionMismatchError) Is(target error) bool {
	return target == ErrRevisionMismatch
}

// CheckRevision validates a revision guard against the current value.
func CheckRevision(id, expected, actual int) error {
	if expected != actual {
		return &RevisionMismatchError{ID: id, Expected: expected, Actual: actual}
	}
	return nil
}

// ParseError reports input that did not match an expected pattern.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Input, e.Reason)
}

// IntegrityError reports a created record whose tracking attribute did not persist.
type IntegrityError struct {
	SourceID int
	TargetID int
	Field    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("target %d created for source %d but %s did not persist", e.TargetID, e.SourceID, e.Field)
}

// ErrorKind classifies failures for reporting.
type ErrorKind string

const (
	KindTransport    ErrorKind = "transport"
	KindParse        ErrorKind = "parse"
	KindPrecondition ErrorKind = "precondition"
	KindIntegrity    ErrorKind = "integrity"
)

// Classify maps an error onto one of the reporting kinds.
// Anything unrecognized is a transport failure.
func Classify(err error) ErrorKind {
	var parseErr *ParseError
	var integrityErr *IntegrityError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRevisionMismatch), errors.Is(err, ErrMaxDepth):
		return KindPrecondition
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &integrityErr):
		return KindIntegrity
	default:
		return KindTransport
	}
}
