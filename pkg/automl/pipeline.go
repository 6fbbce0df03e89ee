// Package automl drives hyperparameter optimization runs: it walks the
// scope hierarchy, persists trial state transitions through a repository,
// and trains pipelines against sampled hyperparameters.
package automl

import (
	"context"

	"github.com/tunetree/tunetree/pkg/hyperparams"
	"github.com/tunetree/tunetree/pkg/ports"
)

// Pipeline is the trainable model under optimization. Implementations
// live outside this module; the loop only clones, configures, fits and
// evaluates them.
type Pipeline interface {
	// Clone returns an unfitted copy carrying the same configuration.
	Clone() Pipeline
	// SetHyperparams applies one sampled assignment before fitting.
	SetHyperparams(hp hyperparams.Samples) error
	// Space describes the tunable hyperparameters and their domains.
	Space() hyperparams.Space
	// Fit trains on data. Called once per epoch; implementations that do
	// not train incrementally simply refit from scratch.
	Fit(ctx context.Context, data ports.Dataset) error
	// Predict runs inference on data.
	Predict(ctx context.Context, data ports.Dataset) (ports.Dataset, error)
}
