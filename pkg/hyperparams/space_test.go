package hyperparams

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributionsStayInSupport(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		v := Uniform{Min: -1, Max: 1}.Sample(r).(float64)
		assert.GreaterOrEqual(t, v, -1.0)
		assert.Less(t, v, 1.0)

		lv := LogUniform{Min: 1e-4, Max: 1e-1}.Sample(r).(float64)
		assert.GreaterOrEqual(t, lv, 1e-4)
		assert.Less(t, lv, 1e-1)

		n := RandInt{Min: 2, Max: 5}.Sample(r).(int)
		assert.GreaterOrEqual(t, n, 2)
		assert.LessOrEqual(t, n, 5)

		c := Choice{Options: []any{"sgd", "adam"}}.Sample(r).(string)
		assert.Contains(t, []string{"sgd", "adam"}, c)
	}
}

func TestRandIntCoversBothBounds(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		seen[RandInt{Min: 0, Max: 3}.Sample(r).(int)] = true
	}
	assert.True(t, seen[0])
	assert.True(t, seen[3])
}

func TestSpaceSampleIsSeedReproducible(t *testing.T) {
	space := Space{
		"lr":        LogUniform{Min: 1e-4, Max: 1e-1},
		"layers":    RandInt{Min: 1, Max: 4},
		"optimizer": Choice{Options: []any{"sgd", "adam"}},
	}

	a := space.Sample(rand.New(rand.NewSource(7)))
	b := space.Sample(rand.New(rand.NewSource(7)))
	assert.Equal(t, a, b)
	assert.Equal(t, []string{"layers", "lr", "optimizer"}, a.Keys())
}

func TestSamplesDecode(t *testing.T) {
	s := Samples{"lr": 0.01, "layers": float64(3), "optimizer": "adam"}

	var cfg struct {
		LR        float64 `hp:"lr"`
		Layers    int     `hp:"layers"`
		Optimizer string  `hp:"optimizer"`
	}
	require.NoError(t, s.Decode(&cfg))
	assert.Equal(t, 0.01, cfg.LR)
	assert.Equal(t, 3, cfg.Layers)
	assert.Equal(t, "adam", cfg.Optimizer)
}

func TestSamplesAccessors(t *testing.T) {
	s := Samples{"lr": 0.01, "layers": float64(3), "optimizer": "adam"}

	f, ok := s.Float("lr")
	require.True(t, ok)
	assert.Equal(t, 0.01, f)

	n, ok := s.Int("layers")
	require.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = s.Int("lr")
	assert.False(t, ok, "a fractional float is not an int")

	str, ok := s.String("optimizer")
	require.True(t, ok)
	assert.Equal(t, "adam", str)

	clone := s.Clone()
	clone["lr"] = 1.0
	assert.Equal(t, 0.01, s["lr"])
}
