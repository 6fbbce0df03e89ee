// Package memory implements the repository port over a Root node kept in
// process memory. Reads and writes operate on full-object copies, so a
// caller that mutates a returned node and never calls Save has no effect
// on the repository. Not safe to share across worker-process boundaries.
package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tunetree/tunetree/internal/metrics"
	"github.com/tunetree/tunetree/pkg/metadata"
	"github.com/tunetree/tunetree/pkg/scope"
)

// Repository implements ports.Repository in memory.
// Safe for concurrent use within one process.
type Repository struct {
	mu     sync.RWMutex
	root   *metadata.Root
	logDir string
}

// Option configures the Repository.
type Option func(*Repository)

// WithLogDir sets the directory scoped log streams are written under.
func WithLogDir(dir string) Option {
	return func(r *Repository) {
		r.logDir = dir
	}
}

// New creates an empty in-memory repository.
func New(opts ...Option) *Repository {
	r := &Repository{
		root:   metadata.NewRoot(),
		logDir: filepath.Join(os.TempDir(), "tunetree"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load returns a copy of the node addressed by loc, or a fresh empty node
// carrying the missing id when the address has no record yet.
func (r *Repository) Load(ctx context.Context, loc scope.Location, deep bool) (metadata.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot(loc, deep)
}

// snapshot resolves loc against the backing root. Callers hold r.mu.
func (r *Repository) snapshot(loc scope.Location, deep bool) (metadata.Node, error) {
	n, err := r.root.Get(loc)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return metadata.NewStub(loc)
		}
		return nil, err
	}
	if !deep {
		return n.Shallow(), nil
	}
	return n.Clone(), nil
}

// Save persists node's own fields at loc, reattaching the previously
// stored children first so a save never erases descendants it did not
// materialize. With deep=true the non-placeholder children are saved
// recursively the same way.
func (r *Repository) Save(ctx context.Context, node metadata.Node, loc scope.Location, deep bool) error {
	node = node.Clone()

	nodeLoc, err := metadata.ResolveSaveScope(node, loc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveNode(node, nodeLoc, deep)
}

// saveNode writes one node's record. Placeholder and absent child slots
// never overwrite stored subtrees; only children the caller materialized
// are descended into. Callers hold r.mu.
func (r *Repository) saveNode(node metadata.Node, nodeLoc scope.Location, deep bool) error {
	keys := node.Keys()
	children := node.Values()

	prev, err := r.snapshot(nodeLoc, true)
	if err != nil {
		return err
	}
	if err := node.SetChildrenFrom(prev); err != nil {
		return err
	}

	if root, ok := node.(*metadata.Root); ok {
		r.root = root
	} else {
		parent, err := r.ensurePath(nodeLoc.Popped())
		if err != nil {
			return fmt.Errorf("saving %s at %v: %w", node.Kind(), nodeLoc, err)
		}
		if _, err := parent.Store(node); err != nil {
			return err
		}
	}
	metrics.RepositorySaves.WithLabelValues("memory").Inc()

	if !deep {
		return nil
	}
	for i, child := range children {
		if child == nil {
			continue
		}
		childLoc, err := nodeLoc.WithID(keys[i])
		if err != nil {
			return err
		}
		if err := r.saveNode(child, childLoc, true); err != nil {
			return err
		}
	}
	return nil
}

// ensurePath returns the node at loc, materializing missing ancestors as
// empty records along the way. Callers hold r.mu.
func (r *Repository) ensurePath(loc scope.Location) (metadata.Node, error) {
	var cur metadata.Node = r.root
	for i := 0; i < loc.Len(); i++ {
		child, found := cur.Child(loc.At(i))
		if found && child != nil {
			cur = child
			continue
		}
		stub, err := metadata.NewStub(loc.Truncate(scope.Kind(i + 1)))
		if err != nil {
			return nil, err
		}
		if _, err := cur.Store(stub); err != nil {
			return nil, err
		}
		cur = stub
	}
	return cur, nil
}

// ScopedLoggerPath maps loc to a log file under the configured log dir.
func (r *Repository) ScopedLoggerPath(loc scope.Location) string {
	parts := append([]string{r.logDir}, loc.AsStrings()...)
	return filepath.Join(append(parts, "log.txt")...)
}

// ParallelSafe reports that this backend must not be shared across worker
// boundaries.
func (r *Repository) ParallelSafe() bool { return false }
