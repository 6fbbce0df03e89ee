// Package tests holds reusable contract suites that verify an adapter
// complies with the repository port. Backend test packages call into it
// with a factory for a fresh, empty repository.
package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunetree/tunetree/pkg/hyperparams"
	"github.com/tunetree/tunetree/pkg/metadata"
	"github.com/tunetree/tunetree/pkg/ports"
	"github.com/tunetree/tunetree/pkg/scope"
)

// RepositoryContractTest verifies an adapter complies with
// ports.Repository. newRepo must return a fresh, empty repository.
func RepositoryContractTest(t *testing.T, newRepo func(t *testing.T) ports.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("LoadMissingReturnsStub", func(t *testing.T) {
		repo := newRepo(t)
		loc := scope.MustNew("proj", "client")

		n, err := repo.Load(ctx, loc, false)
		require.NoError(t, err)

		client, ok := n.(*metadata.Client)
		require.True(t, ok, "expected a client node, got %T", n)
		assert.Equal(t, "client", client.Name)
		assert.Empty(t, client.Keys())
	})

	t.Run("SaveThenLoadRoundTrips", func(t *testing.T) {
		repo := newRepo(t)

		project := metadata.NewProject("proj")
		require.NoError(t, repo.Save(ctx, project, scope.Location{}, false))

		n, err := repo.Load(ctx, scope.MustNew("proj"), false)
		require.NoError(t, err)
		assert.Equal(t, "proj", n.ID())
		assert.Equal(t, scope.Project, n.Kind())
	})

	t.Run("ScopeIDMismatchIsRejected", func(t *testing.T) {
		repo := newRepo(t)

		project := metadata.NewProject("proj")
		err := repo.Save(ctx, project, scope.MustNew("other"), false)
		var ie *metadata.InvariantError
		require.ErrorAs(t, err, &ie)
	})

	t.Run("ShallowSavePreservesChildren", func(t *testing.T) {
		repo := newRepo(t)
		clientLoc := scope.MustNew("proj", "client")

		require.NoError(t, repo.Save(ctx, metadata.NewProject("proj"), scope.Location{}, false))

		client := metadata.NewClient("client")
		client.MainMetricName = "mae"
		metadata.MustStore(client, metadata.NewRound(0))
		metadata.MustStore(client, metadata.NewRound(1))
		require.NoError(t, repo.Save(ctx, client, clientLoc, true))

		// Rewriting the client record without its subtree must not erase
		// the rounds already persisted under it.
		update := metadata.NewClient("client")
		update.MainMetricName = "mse"
		require.NoError(t, repo.Save(ctx, update, clientLoc, false))

		n, err := repo.Load(ctx, clientLoc, true)
		require.NoError(t, err)
		got := n.(*metadata.Client)
		assert.Equal(t, "mse", got.MainMetricName)
		assert.Len(t, got.Values(), 2)
	})

	t.Run("DeepLoadRecursesShallowLoadStops", func(t *testing.T) {
		repo := newRepo(t)
		roundLoc := scope.MustNew("proj", "client", 0)

		round := metadata.NewRound(0)
		trial := metadata.NewTrial(0, hyperparams.Samples{"lr": 0.1})
		metadata.MustStore(trial, metadata.NewTrialSplit(0, nil))
		metadata.MustStore(round, trial)
		require.NoError(t, repo.Save(ctx, round, roundLoc, true))

		deep, err := repo.Load(ctx, roundLoc, true)
		require.NoError(t, err)
		gotTrial, found := deep.Child(0)
		require.True(t, found)
		require.NotNil(t, gotTrial)
		_, found = gotTrial.Child(0)
		assert.True(t, found, "deep load should materialize grandchildren")

		shallow, err := repo.Load(ctx, roundLoc, false)
		require.NoError(t, err)
		assert.Equal(t, []scope.Attr{0}, shallow.Keys(), "shallow load still reports child keys")
		placeholder, found := shallow.Child(0)
		assert.True(t, found)
		assert.Nil(t, placeholder, "shallow load leaves children unmaterialized")
	})

	t.Run("DeepSavePreservesUnmaterializedDescendants", func(t *testing.T) {
		repo := newRepo(t)
		trialLoc := scope.MustNew("proj", "client", 0, 0)

		trial := metadata.NewTrial(0, hyperparams.Samples{"lr": 0.1})
		split := metadata.NewTrialSplit(0, nil)
		v := 0.4
		split.RecordEpoch("mae", 0.5, &v, false)
		metadata.MustStore(trial, split)
		require.NoError(t, repo.Save(ctx, trial, trialLoc, true))

		// Deep-saving a shallow copy must not erase descendants the caller
		// never materialized.
		shallow, err := repo.Load(ctx, trialLoc, false)
		require.NoError(t, err)
		shallow.(*metadata.Trial).Attempt.Start()
		require.NoError(t, repo.Save(ctx, shallow, trialLoc, true))

		n, err := repo.Load(ctx, trialLoc, true)
		require.NoError(t, err)
		got := n.(*metadata.Trial)
		assert.Equal(t, metadata.StatusRunning, got.Status)
		gotSplit, found := got.Child(0)
		require.True(t, found)
		require.NotNil(t, gotSplit, "the split subtree survives the deep save")
		m, ok := gotSplit.(*metadata.TrialSplit).Metric("mae")
		require.True(t, ok)
		assert.Equal(t, []float64{0.5}, m.TrainValues)
	})

	t.Run("ListChildrenKeepOrder", func(t *testing.T) {
		repo := newRepo(t)
		clientLoc := scope.MustNew("proj", "client")

		client := metadata.NewClient("client")
		for i := 0; i < 3; i++ {
			metadata.MustStore(client, metadata.NewRound(i))
		}
		require.NoError(t, repo.Save(ctx, client, clientLoc, true))

		n, err := repo.Load(ctx, clientLoc, true)
		require.NoError(t, err)
		assert.Equal(t, []scope.Attr{0, 1, 2}, n.Keys())
	})

	t.Run("LoadedCopiesAreIsolated", func(t *testing.T) {
		repo := newRepo(t)
		trialLoc := scope.MustNew("proj", "client", 0, 0)

		trial := metadata.NewTrial(0, hyperparams.Samples{"lr": 0.1})
		require.NoError(t, repo.Save(ctx, trial, trialLoc, false))

		n, err := repo.Load(ctx, trialLoc, true)
		require.NoError(t, err)
		got := n.(*metadata.Trial)
		got.Attempt.Start()

		again, err := repo.Load(ctx, trialLoc, true)
		require.NoError(t, err)
		assert.Equal(t, metadata.StatusPlanned, again.(*metadata.Trial).Attempt.Status,
			"mutating a loaded node must not leak into the repository")
	})

	t.Run("ScopedLoggerPathIsStablePerScope", func(t *testing.T) {
		repo := newRepo(t)
		a := repo.ScopedLoggerPath(scope.MustNew("proj", "client", 0, 0))
		b := repo.ScopedLoggerPath(scope.MustNew("proj", "client", 0, 1))
		assert.NotEmpty(t, a)
		assert.NotEqual(t, a, b)
		assert.Equal(t, a, repo.ScopedLoggerPath(scope.MustNew("proj", "client", 0, 0)))
	})
}
