package tunetree

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tunetree/tunetree/pkg/automl"
	"github.com/tunetree/tunetree/pkg/hyperparams"
	"github.com/tunetree/tunetree/pkg/ports"
	"github.com/tunetree/tunetree/pkg/session"
)

// Version is the library version, surfaced by the CLI.
const Version = "0.1.0"

// AutoML is the high-level entry point: configure it with a pipeline, a
// trainer and a repository, then call Fit.
type AutoML struct {
	// Pipeline under optimization. Required.
	Pipeline automl.Pipeline
	// Trainer fitting the pipeline inside each trial. Required.
	Trainer automl.Trainer
	// Repo persists the optimization history. Required.
	Repo ports.Repository

	// Trials per run. Zero means the loop default.
	Trials int
	// Workers for parallel trial execution on parallel-safe repositories.
	Workers int
	// Project and Client name the records' home; empty values fall back
	// to the default project and client.
	Project string
	Client  string
	// Metric picks the best trial. Empty falls back to the first
	// recorded metric.
	Metric string
	// Resume continues the client's last round instead of opening a new
	// one.
	Resume bool
	// RefitBest retrains the winning hyperparameters on the full dataset
	// after the run.
	RefitBest bool

	// Optimizer overrides the default random search.
	Optimizer ports.Optimizer
	// Locker guards commits when the repository is shared across
	// processes.
	Locker ports.DistributedLocker
	// Logger receives run progress. Nil disables logging.
	Logger *slog.Logger

	// LoopOptions are appended last and win over the fields above.
	LoopOptions []automl.Option
}

func (a *AutoML) loop() (*automl.Loop, error) {
	if a.Pipeline == nil {
		return nil, fmt.Errorf("tunetree: AutoML.Pipeline is required")
	}
	if a.Trainer == nil {
		return nil, fmt.Errorf("tunetree: AutoML.Trainer is required")
	}
	if a.Repo == nil {
		return nil, fmt.Errorf("tunetree: AutoML.Repo is required")
	}

	opts := []automl.Option{
		automl.WithProject(a.Project),
		automl.WithClient(a.Client),
		automl.WithMainMetric(a.Metric),
		automl.WithResume(a.Resume),
	}
	if a.Trials > 0 {
		opts = append(opts, automl.WithTrials(a.Trials))
	}
	if a.Workers > 0 {
		opts = append(opts, automl.WithWorkers(a.Workers))
	}
	if a.Optimizer != nil {
		opts = append(opts, automl.WithOptimizer(a.Optimizer))
	}
	if a.Locker != nil {
		opts = append(opts, automl.WithLocker(a.Locker))
	}
	if a.Logger != nil {
		opts = append(opts, automl.WithLogger(a.Logger))
	}
	opts = append(opts, a.LoopOptions...)
	return automl.New(a.Pipeline, a.Trainer, opts...), nil
}

// Fit runs the optimization and returns the winning pipeline. With
// RefitBest it is retrained on the full dataset; otherwise it is an
// unfitted clone configured with the best hyperparameters.
func (a *AutoML) Fit(ctx context.Context, data ports.Dataset) (automl.Pipeline, error) {
	loop, err := a.loop()
	if err != nil {
		return nil, err
	}

	if _, err := loop.Run(ctx, a.Repo, data); err != nil {
		return nil, err
	}

	if a.RefitBest {
		return loop.RefitBestTrial(ctx, a.Repo, data)
	}
	return a.bestClone(ctx)
}

func (a *AutoML) bestClone(ctx context.Context) (automl.Pipeline, error) {
	best, err := a.BestHyperparams(ctx)
	if err != nil {
		return nil, err
	}
	p := a.Pipeline.Clone()
	if err := p.SetHyperparams(best); err != nil {
		return nil, err
	}
	return p, nil
}

// BestHyperparams returns the hyperparameters of the best successful
// trial in the client's most recent round.
func (a *AutoML) BestHyperparams(ctx context.Context) (hyperparams.Samples, error) {
	if a.Repo == nil {
		return nil, fmt.Errorf("tunetree: AutoML.Repo is required")
	}
	sc := session.New(a.Repo)
	clientScope, err := automl.OpenClient(ctx, sc, a.Project, a.Client, "")
	if err != nil {
		return nil, err
	}
	roundScope, err := clientScope.ResumeLastRound(ctx)
	if err != nil {
		return nil, err
	}
	round, err := roundScope.Round(ctx)
	if err != nil {
		return nil, err
	}

	metric := a.Metric
	if metric == "" {
		metric = clientScope.Client().MainMetricName
	}
	_, best, err := automl.BestTrial(round, metric)
	if err != nil {
		return nil, err
	}
	return best.Hyperparams.Clone(), nil
}
