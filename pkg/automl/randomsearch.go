package automl

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/tunetree/tunetree/pkg/hyperparams"
	"github.com/tunetree/tunetree/pkg/metadata"
)

// RandomSearch proposes hyperparameters by sampling the space uniformly,
// ignoring the trial history. Safe for concurrent callers.
type RandomSearch struct {
	space hyperparams.Space

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSearch builds a seeded random search over space.
func NewRandomSearch(space hyperparams.Space, seed int64) *RandomSearch {
	return &RandomSearch{
		space: space,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

func (r *RandomSearch) FindNextBestHyperparams(ctx context.Context, round *metadata.Round) (hyperparams.Samples, error) {
	if len(r.space) == 0 {
		return nil, fmt.Errorf("random search needs a non-empty hyperparameter space")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.space.Sample(r.rng), nil
}
