package session_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunetree/tunetree/pkg/adapters/memory"
	"github.com/tunetree/tunetree/pkg/metadata"
	"github.com/tunetree/tunetree/pkg/scope"
	"github.com/tunetree/tunetree/pkg/session"
)

func TestPushDescendsScopes(t *testing.T) {
	repo := memory.New(memory.WithLogDir(t.TempDir()))
	root := session.New(repo)

	c, err := root.Push(metadata.NewRoot())
	require.NoError(t, err)
	assert.Equal(t, 0, c.Loc().Len())

	c, err = c.Push(metadata.NewProject("proj"))
	require.NoError(t, err)
	c, err = c.Push(metadata.NewClient("client"))
	require.NoError(t, err)
	c, err = c.Push(metadata.NewRound(0))
	require.NoError(t, err)
	assert.Equal(t, scope.MustNew("proj", "client", 0), c.Loc())

	// Skipping a level is rejected.
	_, err = c.Push(metadata.NewTrialSplit(0, nil))
	assert.Error(t, err)
}

func TestCommitNodePersistsAtScope(t *testing.T) {
	repo := memory.New(memory.WithLogDir(t.TempDir()))
	ctx := context.Background()

	c := session.New(repo).WithLocation(scope.MustNew("proj", "client", 0))
	require.NoError(t, c.CommitNode(ctx, metadata.NewRound(0), false))

	n, err := c.Load(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, scope.Round, n.Kind())
	assert.Equal(t, 0, n.ID())
}

func TestScopedLogStreamCapturesAndTees(t *testing.T) {
	logDir := t.TempDir()
	repo := memory.New(memory.WithLogDir(logDir))

	c := session.New(repo).WithLocation(scope.MustNew("proj", "client", 0, 0))
	streamed, err := c.WithScopedLogStream()
	require.NoError(t, err)

	streamed.Logger().Info("epoch done", "epoch", 1)
	streamed.Logger().Error("training exploded", "error", "nan loss")

	captured, err := streamed.ReleaseLogStream()
	require.NoError(t, err)
	assert.Contains(t, captured, "epoch done")
	assert.Contains(t, captured, "err=")

	onDisk, err := os.ReadFile(repo.ScopedLoggerPath(c.Loc()))
	require.NoError(t, err)
	assert.Equal(t, captured, string(onDisk))

	// A second release has nothing to hand out.
	_, err = streamed.ReleaseLogStream()
	assert.Error(t, err)
}

func TestReleaseWithoutStreamFails(t *testing.T) {
	repo := memory.New(memory.WithLogDir(t.TempDir()))
	c := session.New(repo)
	_, err := c.ReleaseLogStream()
	assert.Error(t, err)
}
