package metadata

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that a location addresses no record in the tree. It
// is recoverable by design: repositories synthesize an empty node for the
// missing id instead of surfacing it.
var ErrNotFound = errors.New("metadata not found")

// InvariantError reports a malformed mutation of the tree: a type
// mismatch, an id/scope mismatch, or a malformed sublocation. It is a
// programming-level defect, not a recoverable runtime condition, and is
// returned before any partial write happens.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "metadata invariant violated: " + e.Msg
}

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}
