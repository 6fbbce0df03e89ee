package ports

import (
	"context"

	"github.com/tunetree/tunetree/pkg/hyperparams"
	"github.com/tunetree/tunetree/pkg/metadata"
)

// Optimizer proposes the next hyperparameter assignment to try, given full
// read access to the round's trial history so far.
type Optimizer interface {
	FindNextBestHyperparams(ctx context.Context, round *metadata.Round) (hyperparams.Samples, error)
}
