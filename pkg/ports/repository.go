// Package ports defines the driven-port interfaces the trial-tracking
// core depends on, and the store-level error taxonomy.
package ports

import (
	"context"
	"fmt"
	"strings"

	"github.com/tunetree/tunetree/pkg/metadata"
	"github.com/tunetree/tunetree/pkg/scope"
)

// Repository persists and mutates the metadata tree by scope, at arbitrary
// depth.
type Repository interface {
	// Load returns the node addressed by loc. With deep=false children are
	// shallow placeholders. A miss is not an error: the repository
	// synthesizes an empty node for the missing id so callers can always
	// begin populating a new entity. A corrupt backing record is fatal and
	// surfaces as a *CorruptError.
	Load(ctx context.Context, loc scope.Location, deep bool) (metadata.Node, error)

	// Save validates that node's own id matches the tail of loc (or that
	// loc's length matches the node's level when no id coordinate is set),
	// then persists the node's own fields. With deep=false, previously
	// persisted children at that scope are preserved; with deep=true the
	// full subtree is written recursively.
	Save(ctx context.Context, node metadata.Node, loc scope.Location, deep bool) error

	// ScopedLoggerPath maps a scope deterministically to the destination
	// of that scope's log stream.
	ScopedLoggerPath(loc scope.Location) string
}

// ParallelCapable is implemented by repositories that can be shared across
// worker-process boundaries. Backends that do not implement it (or return
// false) must never be handed to concurrent writers.
type ParallelCapable interface {
	ParallelSafe() bool
}

// CorruptError reports a backing record that exists but cannot be
// deserialized. It is fatal: no automatic repair is attempted. The
// offending path and its sibling listing are carried for diagnosis.
type CorruptError struct {
	Path    string
	Listing []string
	Err     error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt metadata record at %s (siblings: [%s]): %v",
		e.Path, strings.Join(e.Listing, ", "), e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }
