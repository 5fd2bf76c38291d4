package graph

import (
	"errors"
	"fmt"
)

// ErrNodeNotFound is returned when a requested node does not exist locally.
var ErrNodeNotFound = errors.New("node not found")

// ValidationError reports a malformed payload. LookupKey may be empty when
// the missing field is the lookup key itself.
type ValidationError struct {
	Field     string
	LookupKey string
}

func (e *ValidationError) Error() string {
	if e.LookupKey == "" {
		return fmt.Sprintf("invalid payload: missing %s", e.Field)
	}
	return fmt.Sprintf("invalid payload %q: missing %s", e.LookupKey, e.Field)
}

// TransientError wraps local store contention that persisted through the
// bounded retry schedule. The failed batch is safe to re-submit verbatim.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("staging store busy: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Retryable reports that the caller may re-run the operation.
func (e *TransientError) Retryable() bool { return true }

// RemoteError wraps a failure talking to the remote graph store. The
// synchronization run it aborted left local state untouched and is safe to
// re-run; completed remote upserts converge on the retry.
type RemoteError struct {
	Op       string
	Identity string
	Err      error
}

func (e *RemoteError) Error() string {
	if e.Identity == "" {
		return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.Identity, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }
