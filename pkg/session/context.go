// Package session carries the execution context threaded through an
// optimization run: the repository handle, the current scope location, a
// logger bound to that scope, and the locks guarding repository writes.
//
// Contexts are values. Descending into a child scope derives a new
// context; the repository, the in-process commit mutex and the optional
// distributed locker are shared by every context derived from the same
// root.
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tunetree/tunetree/internal/logging"
	"github.com/tunetree/tunetree/pkg/metadata"
	"github.com/tunetree/tunetree/pkg/ports"
	"github.com/tunetree/tunetree/pkg/scope"
)

// lockTTL bounds how long a crashed process can hold the distributed lock.
const lockTTL = 30 * time.Second

// Context is one scope's view of a run.
type Context struct {
	repo   ports.Repository
	loc    scope.Location
	logger *slog.Logger

	mu     *sync.Mutex
	locker ports.DistributedLocker

	stream *logStream
}

type logStream struct {
	file *os.File
	buf  *bytes.Buffer
}

// Option configures the root Context.
type Option func(*Context)

// WithLogger sets the base logger scoped log streams tee into.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithLocker enables distributed locking around repository commits, for
// repositories shared across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(c *Context) {
		c.locker = locker
	}
}

// New creates a root-scoped context over repo.
func New(repo ports.Repository, opts ...Option) *Context {
	c := &Context{
		repo:   repo,
		logger: logging.NewNop(),
		mu:     &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Repo returns the repository this context commits to.
func (c *Context) Repo() ports.Repository { return c.repo }

// Loc returns the scope location this context is bound to.
func (c *Context) Loc() scope.Location { return c.loc }

// Logger returns the logger bound to this scope.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Push derives a context one scope deeper, addressing node. Pushing the
// root node keeps the location empty.
func (c *Context) Push(node metadata.Node) (*Context, error) {
	out := *c
	if node.Kind() == scope.Root {
		return &out, nil
	}
	loc, err := c.loc.WithID(node.ID())
	if err != nil {
		return nil, fmt.Errorf("entering %s scope: %w", node.Kind(), err)
	}
	if loc.Kind() != node.Kind() {
		return nil, fmt.Errorf("entering %s scope: context is at %s level", node.Kind(), c.loc.Kind())
	}
	out.loc = loc
	return &out, nil
}

// WithLocation derives a context rebound to an arbitrary location.
func (c *Context) WithLocation(loc scope.Location) *Context {
	out := *c
	out.loc = loc
	return &out
}

// Load reads the node this context addresses.
func (c *Context) Load(ctx context.Context, deep bool) (metadata.Node, error) {
	return c.repo.Load(ctx, c.loc, deep)
}

// CommitNode persists node at this context's location, serializing against
// other committers of the same run and, when a distributed locker is
// configured, against other processes.
func (c *Context) CommitNode(ctx context.Context, node metadata.Node, deep bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.locker != nil {
		unlock, err := c.locker.Lock(ctx, "repository", lockTTL)
		if err != nil {
			return fmt.Errorf("acquiring repository lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				c.logger.Warn("failed to release repository lock (will expire via TTL)",
					"scope", c.loc.String(),
					"err", err,
				)
			}
		}()
	}

	return c.repo.Save(ctx, node, c.loc, deep)
}

// WithScopedLogStream derives a context whose logger additionally writes
// to this scope's log file and to an in-memory buffer. The caller owns the
// stream and must release it with ReleaseLogStream once the scope ends.
func (c *Context) WithScopedLogStream() (*Context, error) {
	path := c.repo.ScopedLoggerPath(c.loc)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensuring log folder for %s: %w", c.loc, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening scoped log %s: %w", path, err)
	}

	buf := &bytes.Buffer{}
	out := *c
	out.stream = &logStream{file: file, buf: buf}
	out.logger = logging.NewWriter(io.MultiWriter(file, buf), slog.LevelDebug)
	return &out, nil
}

// ReleaseLogStream closes the scoped log stream and returns everything it
// captured, so callers can persist the text into the attempt record.
func (c *Context) ReleaseLogStream() (string, error) {
	if c.stream == nil {
		return "", fmt.Errorf("no scoped log stream on context at %s", c.loc)
	}
	err := c.stream.file.Close()
	text := c.stream.buf.String()
	c.stream = nil
	if err != nil {
		return text, fmt.Errorf("closing scoped log: %w", err)
	}
	return text, nil
}
