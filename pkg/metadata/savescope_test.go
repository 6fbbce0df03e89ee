package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunetree/tunetree/pkg/scope"
)

func TestResolveSaveScope(t *testing.T) {
	trial := NewTrial(2, nil)

	t.Run("full scope with matching id", func(t *testing.T) {
		loc, err := ResolveSaveScope(trial, scope.MustNew("p", "c", 0, 2))
		require.NoError(t, err)
		assert.Equal(t, scope.MustNew("p", "c", 0, 2), loc)
	})

	t.Run("deeper scope truncates to the node level", func(t *testing.T) {
		loc, err := ResolveSaveScope(trial, scope.MustNew("p", "c", 0, 2, 1, "mae"))
		require.NoError(t, err)
		assert.Equal(t, scope.MustNew("p", "c", 0, 2), loc)
	})

	t.Run("scope one level short is completed by the node id", func(t *testing.T) {
		loc, err := ResolveSaveScope(trial, scope.MustNew("p", "c", 0))
		require.NoError(t, err)
		assert.Equal(t, scope.MustNew("p", "c", 0, 2), loc)
	})

	t.Run("mismatched id is an invariant violation", func(t *testing.T) {
		_, err := ResolveSaveScope(trial, scope.MustNew("p", "c", 0, 7))
		var ie *InvariantError
		assert.ErrorAs(t, err, &ie)
	})

	t.Run("scope more than one level short is rejected", func(t *testing.T) {
		_, err := ResolveSaveScope(trial, scope.MustNew("p"))
		var ie *InvariantError
		assert.ErrorAs(t, err, &ie)
	})

	t.Run("root ignores the scope", func(t *testing.T) {
		loc, err := ResolveSaveScope(NewRoot(), scope.MustNew("p", "c"))
		require.NoError(t, err)
		assert.Equal(t, 0, loc.Len())
	})
}
