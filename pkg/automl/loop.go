package automl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tunetree/tunetree/internal/logging"
	"github.com/tunetree/tunetree/pkg/metadata"
	"github.com/tunetree/tunetree/pkg/ports"
	"github.com/tunetree/tunetree/pkg/session"
)

// Severity decides what a trial failure does to the rest of the run.
type Severity int

const (
	// SeverityRecoverable marks the trial FAILED and lets the run continue.
	SeverityRecoverable Severity = iota
	// SeverityFatal marks the trial ABORTED and stops the run.
	SeverityFatal
)

// Classifier assigns a severity to every trial error. It must be total:
// any non-nil error gets an answer.
type Classifier func(err error) Severity

// DefaultClassifier aborts on cancellation, corrupted storage and tree
// invariant violations; everything else is a recoverable trial failure.
func DefaultClassifier(err error) Severity {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return SeverityFatal
	}
	var corrupt *ports.CorruptError
	if errors.As(err, &corrupt) {
		return SeverityFatal
	}
	var invariant *metadata.InvariantError
	if errors.As(err, &invariant) {
		return SeverityFatal
	}
	return SeverityRecoverable
}

// AbortAll treats every trial error as fatal.
func AbortAll(error) Severity { return SeverityFatal }

// Loop runs hyperparameter optimization rounds: sample, train, record,
// repeat, with per-trial failure containment.
type Loop struct {
	pipeline Pipeline
	trainer  Trainer

	trials     int
	workers    int
	resume     bool
	project    string
	client     string
	mainMetric string

	optimizer ports.Optimizer
	classify  Classifier
	locker    ports.DistributedLocker
	logger    *slog.Logger
	seed      int64
}

// Option configures the Loop.
type Option func(*Loop)

// WithTrials sets how many trials one Run executes.
func WithTrials(n int) Option {
	return func(l *Loop) { l.trials = n }
}

// WithWorkers enables parallel trial execution. Takes effect only on
// repositories that report ParallelSafe.
func WithWorkers(n int) Option {
	return func(l *Loop) { l.workers = n }
}

// WithResume continues the client's last round instead of opening a new
// one.
func WithResume(resume bool) Option {
	return func(l *Loop) { l.resume = resume }
}

// WithProject sets the project records land under.
func WithProject(name string) Option {
	return func(l *Loop) { l.project = name }
}

// WithClient sets the client records land under.
func WithClient(name string) Option {
	return func(l *Loop) { l.client = name }
}

// WithMainMetric names the metric that picks the best trial.
func WithMainMetric(name string) Option {
	return func(l *Loop) { l.mainMetric = name }
}

// WithOptimizer replaces the default random search.
func WithOptimizer(o ports.Optimizer) Option {
	return func(l *Loop) { l.optimizer = o }
}

// WithClassifier replaces the failure classifier.
func WithClassifier(c Classifier) Option {
	return func(l *Loop) { l.classify = c }
}

// WithContinueOnError(false) aborts the run on the first trial failure.
func WithContinueOnError(cont bool) Option {
	return func(l *Loop) {
		if cont {
			l.classify = DefaultClassifier
		} else {
			l.classify = AbortAll
		}
	}
}

// WithLocker guards repository commits with a distributed lock, for runs
// sharing an on-disk repository across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(l *Loop) { l.locker = locker }
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithSeed seeds the default random search optimizer.
func WithSeed(seed int64) Option {
	return func(l *Loop) { l.seed = seed }
}

// New builds a Loop over pipeline trained by trainer.
func New(pipeline Pipeline, trainer Trainer, opts ...Option) *Loop {
	l := &Loop{
		pipeline: pipeline,
		trainer:  trainer,
		trials:   10,
		workers:  1,
		classify: DefaultClassifier,
		logger:   logging.NewNop(),
		seed:     time.Now().UnixNano(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.optimizer == nil {
		l.optimizer = NewRandomSearch(pipeline.Space(), l.seed)
	}
	return l
}

// Run executes the configured number of trials against repo and returns
// the round number they were recorded under. A recoverable trial failure
// is persisted as FAILED and does not stop the run; a fatal one aborts.
func (l *Loop) Run(ctx context.Context, repo ports.Repository, data ports.Dataset) (int, error) {
	sc := session.New(repo, session.WithLogger(l.logger), session.WithLocker(l.locker))

	clientScope, err := OpenClient(ctx, sc, l.project, l.client, l.mainMetric)
	if err != nil {
		return 0, err
	}

	var roundScope *RoundScope
	if l.resume {
		roundScope, err = clientScope.ResumeLastRound(ctx)
	} else {
		roundScope, err = clientScope.NewRound(ctx)
	}
	if err != nil {
		return 0, err
	}

	workers := l.workers
	if workers < 1 {
		workers = 1
	}
	if workers > 1 && !parallelSafe(repo) {
		l.logger.Warn("repository is not parallel safe, running trials sequentially",
			"requested_workers", workers)
		workers = 1
	}

	l.logger.Info("optimization run started",
		"project", clientScope.Client().Name,
		"round", roundScope.Number(),
		"trials", l.trials,
		"workers", workers,
	)

	for done := 0; done < l.trials; {
		batch := workers
		if remaining := l.trials - done; batch > remaining {
			batch = remaining
		}

		// Trials are planned sequentially so their indices stay contiguous;
		// only the training work itself runs in parallel.
		scopes := make([]*TrialScope, 0, batch)
		for i := 0; i < batch; i++ {
			round, err := roundScope.Round(ctx)
			if err != nil {
				return roundScope.Number(), err
			}
			hp, err := l.optimizer.FindNextBestHyperparams(ctx, round)
			if err != nil {
				return roundScope.Number(), fmt.Errorf("proposing hyperparams: %w", err)
			}
			trial, err := roundScope.PlanTrial(ctx, hp)
			if err != nil {
				return roundScope.Number(), err
			}
			scopes = append(scopes, trial)
		}

		if batch == 1 {
			if err := l.executeTrial(ctx, scopes[0], data); err != nil {
				return roundScope.Number(), err
			}
		} else {
			g, gctx := errgroup.WithContext(ctx)
			for _, trial := range scopes {
				trial := trial
				g.Go(func() error { return l.executeTrial(gctx, trial, data) })
			}
			if err := g.Wait(); err != nil {
				return roundScope.Number(), err
			}
		}

		done += batch
		// Trials can pin large model state; reclaim it between batches.
		runtime.GC()
	}

	return roundScope.Number(), nil
}

// executeTrial runs one trial to a terminal state. It returns an error
// only when the failure is fatal for the whole run.
func (l *Loop) executeTrial(ctx context.Context, trial *TrialScope, data ports.Dataset) error {
	err := l.runTrial(ctx, trial, data)
	if err == nil {
		return trial.Close(ctx, metadata.StatusSuccess)
	}

	severity := l.classify(err)
	status := metadata.StatusFailed
	if severity == SeverityFatal {
		status = metadata.StatusAborted
	}
	trial.Logger().Error("trial failed",
		"trial", trial.Trial().Number,
		"status", string(status),
		"hyperparams", trial.Trial().Hyperparams,
		"error", err,
	)

	// Finalize even when the run context is already canceled, so the
	// terminal status reaches the repository.
	if closeErr := trial.Close(context.WithoutCancel(ctx), status); closeErr != nil {
		l.logger.Error("failed to finalize trial", "trial", trial.Trial().Number, "err", closeErr)
		if severity != SeverityFatal {
			return closeErr
		}
	}

	if severity == SeverityFatal {
		return err
	}
	l.logger.Warn("continuing after trial failure", "trial", trial.Trial().Number, "err", err)
	return nil
}

func (l *Loop) runTrial(ctx context.Context, trial *TrialScope, data ports.Dataset) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trial %d panicked: %v", trial.Trial().Number, r)
		}
	}()

	if err := trial.Enter(ctx); err != nil {
		return err
	}
	trial.Logger().Info("trial started",
		"trial", trial.Trial().Number,
		"hyperparams", trial.Trial().Hyperparams,
	)

	p := l.pipeline.Clone()
	if err := p.SetHyperparams(trial.Trial().Hyperparams); err != nil {
		return fmt.Errorf("applying hyperparams: %w", err)
	}
	return l.trainer.Train(ctx, p, data, trial)
}

// RefitBestTrial retrains a fresh pipeline on the full dataset using the
// hyperparameters of the round's best successful trial.
func (l *Loop) RefitBestTrial(ctx context.Context, repo ports.Repository, data ports.Dataset) (Pipeline, error) {
	sc := session.New(repo, session.WithLogger(l.logger), session.WithLocker(l.locker))

	clientScope, err := OpenClient(ctx, sc, l.project, l.client, "")
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

	metric := l.mainMetric
	if metric == "" {
		metric = clientScope.Client().MainMetricName
	}
	idx, best, err := BestTrial(round, metric)
	if err != nil {
		return nil, err
	}

	p := l.pipeline.Clone()
	if err := p.SetHyperparams(best.Hyperparams); err != nil {
		return nil, fmt.Errorf("applying best hyperparams: %w", err)
	}
	if err := l.trainer.Refit(ctx, p, data); err != nil {
		return nil, fmt.Errorf("refitting best trial %d: %w", idx, err)
	}
	l.logger.Info("refit best trial",
		"round", round.Number,
		"trial", idx,
		"metric", metric,
		"hyperparams", best.Hyperparams,
	)
	return p, nil
}

// BestTrial picks the round's best successful trial by the named metric,
// averaging the last validation value across splits. When metricName is
// empty the first metric recorded by a successful trial is used. Ties go
// to the earliest trial.
func BestTrial(round *metadata.Round, metricName string) (int, *metadata.Trial, error) {
	if metricName == "" {
		metricName = firstRecordedMetric(round)
	}

	bestIdx := -1
	var bestScore float64
	for i, trial := range round.Trials() {
		if trial == nil || trial.Status != metadata.StatusSuccess {
			continue
		}
		score, higherIsBetter, ok := trialScore(trial, metricName)
		if !ok {
			continue
		}
		if bestIdx == -1 || better(score, bestScore, higherIsBetter) {
			bestIdx, bestScore = i, score
		}
	}
	if bestIdx == -1 {
		return 0, nil, fmt.Errorf("round %d has no successful trial with metric %q", round.Number, metricName)
	}
	return bestIdx, round.Trials()[bestIdx], nil
}

// trialScore averages the metric's last validation value over the trial's
// splits.
func trialScore(trial *metadata.Trial, metricName string) (score float64, higherIsBetter, ok bool) {
	var sum float64
	var n int
	for _, split := range trial.Splits() {
		if split == nil {
			continue
		}
		m, found := split.Metric(metricName)
		if !found {
			continue
		}
		v, hasVal := m.LastValidation()
		if !hasVal {
			continue
		}
		sum += v
		n++
		higherIsBetter = m.HigherIsBetter
	}
	if n == 0 {
		return 0, false, false
	}
	return sum / float64(n), higherIsBetter, true
}

func firstRecordedMetric(round *metadata.Round) string {
	for _, trial := range round.Trials() {
		if trial == nil || trial.Status != metadata.StatusSuccess {
			continue
		}
		for _, split := range trial.Splits() {
			if split == nil {
				continue
			}
			for _, key := range split.Keys() {
				if name, ok := key.(string); ok {
					return name
				}
			}
		}
	}
	return ""
}

func parallelSafe(repo ports.Repository) bool {
	pc, ok := repo.(ports.ParallelCapable)
	return ok && pc.ParallelSafe()
}
