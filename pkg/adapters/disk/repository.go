// Package disk implements the repository port as one serialized record
// file per node, under a directory path built from the scope coordinates.
//
// Layout: every coordinate becomes one directory segment named
// "_<coordinate>"; each directory holds the node's own record in
// metadata.json and that scope's log stream in log.txt. Children are
// discovered by listing the "_"-prefixed subdirectories, so list
// sublocations reload in numeric order (which equals insertion order,
// their ids being contiguous) while map sublocations reload in lexical
// key order rather than insertion order.
//
// The backend is safe for concurrent writers only under external mutual
// exclusion (see ports.DistributedLocker); it performs no locking itself.
package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tunetree/tunetree/internal/metrics"
	"github.com/tunetree/tunetree/pkg/metadata"
	"github.com/tunetree/tunetree/pkg/ports"
	"github.com/tunetree/tunetree/pkg/scope"
)

// Delim prefixes every scope segment on disk, keeping record directories
// distinguishable from anything else living under the base folder.
const Delim = "_"

const recordFile = "metadata.json"

// Repository implements ports.Repository on the local filesystem.
type Repository struct {
	base string
}

// New opens (or initializes) an on-disk repository rooted at base.
func New(base string) (*Repository, error) {
	if base == "" {
		return nil, errors.New("disk: base folder cannot be empty")
	}
	r := &Repository{base: base}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("disk: ensuring base folder: %w", err)
	}
	// Seed the root record so an empty repository round-trips.
	rootRecord := filepath.Join(base, recordFile)
	if _, err := os.Stat(rootRecord); os.IsNotExist(err) {
		if err := r.writeRecord(metadata.NewRoot(), scope.Location{}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Base returns the repository's root folder.
func (r *Repository) Base() string { return r.base }

func (r *Repository) folderAt(loc scope.Location) string {
	segs := loc.AsStrings()
	parts := make([]string, 0, len(segs)+1)
	parts = append(parts, r.base)
	for _, s := range segs {
		parts = append(parts, Delim+s)
	}
	return filepath.Join(parts...)
}

// Load returns the node addressed by loc, or a fresh empty node carrying
// the missing id when no record exists. A record that exists but fails to
// parse is fatal and reported as a *ports.CorruptError.
func (r *Repository) Load(ctx context.Context, loc scope.Location, deep bool) (metadata.Node, error) {
	n, err := r.loadNode(loc, deep)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return metadata.NewStub(loc)
		}
		return nil, err
	}
	return n, nil
}

func (r *Repository) loadNode(loc scope.Location, deep bool) (metadata.Node, error) {
	dir := r.folderAt(loc)
	path := filepath.Join(dir, recordFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no record at %s: %w", path, metadata.ErrNotFound)
		}
		return nil, fmt.Errorf("reading record %s: %w", path, err)
	}

	n, err := metadata.Unmarshal(data)
	if err != nil {
		return nil, &ports.CorruptError{Path: path, Listing: listDir(dir), Err: err}
	}
	if n.Kind() != loc.Kind() {
		return nil, &ports.CorruptError{
			Path:    path,
			Listing: listDir(dir),
			Err:     fmt.Errorf("record holds a %s node but the path addresses a %s", n.Kind(), loc.Kind()),
		}
	}

	if _, hasChildren := n.Kind().Child(); !hasChildren {
		return n, nil
	}

	keys, err := r.childKeys(dir, path, n.Kind())
	if err != nil {
		return nil, err
	}

	if !deep {
		if err := n.SetChildKeys(keys); err != nil {
			return nil, err
		}
		return n, nil
	}

	for _, key := range keys {
		childLoc, err := loc.WithID(key)
		if err != nil {
			return nil, err
		}
		child, err := r.loadNode(childLoc, true)
		if err != nil {
			return nil, err
		}
		if _, err := n.Store(child); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// childKeys discovers which children exist by listing the scope's
// directory: numeric sort for index-addressed sublocations, lexical sort
// for name-keyed ones.
func (r *Repository) childKeys(dir, recordPath string, kind scope.Kind) ([]scope.Attr, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing children of %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), Delim) {
			names = append(names, strings.TrimPrefix(e.Name(), Delim))
		}
	}

	if kind.SublocationIsList() {
		indices := make([]int, 0, len(names))
		for _, name := range names {
			i, err := strconv.Atoi(name)
			if err != nil {
				return nil, &ports.CorruptError{
					Path:    recordPath,
					Listing: listDir(dir),
					Err:     fmt.Errorf("child segment %q of a %s node is not an index", name, kind),
				}
			}
			indices = append(indices, i)
		}
		sort.Ints(indices)
		keys := make([]scope.Attr, len(indices))
		for i, idx := range indices {
			if idx != i {
				return nil, &ports.CorruptError{
					Path:    recordPath,
					Listing: listDir(dir),
					Err: fmt.Errorf("child segments of a %s node are not the contiguous indices 0..%d",
						kind, len(indices)-1),
				}
			}
			keys[i] = idx
		}
		return keys, nil
	}

	sort.Strings(names)
	keys := make([]scope.Attr, len(names))
	for i, name := range names {
		keys[i] = name
	}
	return keys, nil
}

// Save persists node's own record at loc; with deep=true the full subtree
// is written recursively. Children already on disk are never touched by a
// non-deep save, since records hold no child data.
func (r *Repository) Save(ctx context.Context, node metadata.Node, loc scope.Location, deep bool) error {
	nodeLoc, err := metadata.ResolveSaveScope(node, loc)
	if err != nil {
		return err
	}
	return r.saveNode(node, nodeLoc, deep)
}

func (r *Repository) saveNode(node metadata.Node, nodeLoc scope.Location, deep bool) error {
	if err := r.writeRecord(node, nodeLoc); err != nil {
		return err
	}
	metrics.RepositorySaves.WithLabelValues("disk").Inc()

	if !deep {
		return nil
	}
	for _, child := range node.Values() {
		if child == nil {
			continue
		}
		childLoc, err := nodeLoc.WithID(child.ID())
		if err != nil {
			return err
		}
		if err := r.saveNode(child, childLoc, true); err != nil {
			return err
		}
	}
	return nil
}

// writeRecord writes the node's record atomically: temp file in the same
// directory, fsync, then rename. The uuid suffix keeps concurrent writers
// from colliding on the temp name.
func (r *Repository) writeRecord(node metadata.Node, nodeLoc scope.Location) error {
	dir := r.folderAt(nodeLoc)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensuring record folder %s: %w", dir, err)
	}

	data, err := metadata.Marshal(node)
	if err != nil {
		return err
	}

	dest := filepath.Join(dir, recordFile)
	tmp := filepath.Join(dir, ".tmp-"+uuid.NewString())

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp record: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing temp record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing temp record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp record: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("renaming temp record into place: %w", err)
	}
	return nil
}

// ScopedLoggerPath maps loc to the log.txt file of its record directory.
func (r *Repository) ScopedLoggerPath(loc scope.Location) string {
	return filepath.Join(r.folderAt(loc), "log.txt")
}

// ParallelSafe reports that this backend may be shared across worker
// boundaries, provided writers hold external mutual exclusion.
func (r *Repository) ParallelSafe() bool { return true }

func listDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}
