// Package syncerr defines the error taxonomy shared by adapters, the
// normalizer and the reconciler.
//
// Run-level errors (SourceUnavailableError, DestinationUnavailableError)
// abort a run. Per-event errors (MalformedEventError,
// DestinationOperationError) are collected and reported at the end.
package syncerr

import (
	"errors"
	"fmt"
)

// MalformedEventError reports a source record that cannot be normalized.
type MalformedEventError struct {
	SourceID string
	Reason   string
	Err      error
}

func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed event %q: %s: %v", e.SourceID, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed event %q: %s", e.SourceID, e.Reason)
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}

// SourceUnavailableError reports an auth or connectivity failure of the source.
type SourceUnavailableError struct {
	Err error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source unavailable: %v", e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// DestinationUnavailableError reports an auth or connectivity failure of the
// destination.
type DestinationUnavailableError struct {
	Err error
}

func (e *DestinationUnavailableError) Error() string {
	return fmt.Sprintf("destination unavailable: %v", e.Err)
}

func (e *DestinationUnavailableError) Unwrap() error {
	return e.Err
}

// Op names a destination write.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// DestinationOperationError reports a single failed create, update or delete.
type DestinationOperationError struct {
	Op            Op
	SourceID      string
	DestinationID string
	Err           error
}

func (e *DestinationOperationError) Error() string {
	if e.DestinationID != "" {
		return fmt.Sprintf("%s %q (destination %s): %v", e.Op, e.SourceID, e.DestinationID, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.SourceID, e.Err)
}

func (e *DestinationOperationError) Unwrap() error {
	return e.Err
}

// Malformed builds a MalformedEventError.
func Malformed(sourceID, reason string, err error) error {
	return &MalformedEventError{SourceID: sourceID, Reason: reason, Err: err}
}

// SourceUnavailable wraps err unless it is already classified.
func SourceUnavailable(err error) error {
	if err == nil || IsRunLevel(err) {
		return err
	}
	return &SourceUnavailableError{Err: err}
}

// DestinationUnavailable wraps err unless it is already classified.
func DestinationUnavailable(err error) error {
	if err == nil || IsRunLevel(err) {
		return err
	}
	return &DestinationUnavailableError{Err: err}
}

// IsRunLevel reports whether err must abort the whole run.
func IsRunLevel(err error) bool {
	var src *SourceUnavailableError
	var dst *DestinationUnavailableError
	return errors.As(err, &src) || errors.As(err, &dst)
}

// IsMalformed reports whether err is a MalformedEventError.
func IsMalformed(err error) bool {
	var m *MalformedEventError
	return errors.As(err, &m)
}
