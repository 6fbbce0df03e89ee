package automl_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunetree/tunetree/pkg/adapters/memory"
	"github.com/tunetree/tunetree/pkg/automl"
	"github.com/tunetree/tunetree/pkg/hyperparams"
	"github.com/tunetree/tunetree/pkg/metadata"
	"github.com/tunetree/tunetree/pkg/ports"
	"github.com/tunetree/tunetree/pkg/scope"
)

// fakePipeline reports a score taken straight from its hyperparameters and
// fails to fit when the "fail" hyperparameter is set.
type fakePipeline struct {
	hp hyperparams.Samples
}

func (p *fakePipeline) Clone() automl.Pipeline { return &fakePipeline{hp: p.hp.Clone()} }

func (p *fakePipeline) SetHyperparams(hp hyperparams.Samples) error {
	p.hp = hp.Clone()
	return nil
}

func (p *fakePipeline) Space() hyperparams.Space {
	return hyperparams.Space{"score": hyperparams.Uniform{Min: 0, Max: 1}}
}

func (p *fakePipeline) Fit(ctx context.Context, data ports.Dataset) error {
	if _, fail := p.hp["fail"]; fail {
		return errors.New("synthetic training failure")
	}
	return nil
}

func (p *fakePipeline) Predict(ctx context.Context, data ports.Dataset) (ports.Dataset, error) {
	return data, nil
}

// queueOptimizer hands out a preset sequence of samples.
type queueOptimizer struct {
	queue []hyperparams.Samples
	next  int
}

func (o *queueOptimizer) FindNextBestHyperparams(ctx context.Context, round *metadata.Round) (hyperparams.Samples, error) {
	if o.next >= len(o.queue) {
		return nil, errors.New("optimizer queue exhausted")
	}
	hp := o.queue[o.next]
	o.next++
	return hp, nil
}

// singleSplit yields one train/validation pair over the whole dataset.
type singleSplit struct{}

func (singleSplit) Split(ctx context.Context, data ports.Dataset) ([]ports.SplitPair, error) {
	return []ports.SplitPair{{Train: data, Validation: data}}, nil
}

func scoreFromHyperparams(ctx context.Context, p automl.Pipeline, data ports.Dataset) (float64, error) {
	v, ok := p.(*fakePipeline).hp.Float("score")
	if !ok {
		return 0, errors.New("no score hyperparameter")
	}
	return v, nil
}

func newTrainer() *automl.EpochTrainer {
	return &automl.EpochTrainer{
		Splitter: singleSplit{},
		Epochs:   1,
		Callbacks: []automl.Callback{
			automl.ScoringCallback{Name: "mae", Score: scoreFromHyperparams, HigherIsBetter: false},
		},
	}
}

func newLoop(opt ports.Optimizer, trials int, extra ...automl.Option) *automl.Loop {
	opts := append([]automl.Option{
		automl.WithTrials(trials),
		automl.WithOptimizer(opt),
		automl.WithMainMetric("mae"),
	}, extra...)
	return automl.New(&fakePipeline{}, newTrainer(), opts...)
}

func loadRound(t *testing.T, repo ports.Repository, roundNumber int) *metadata.Round {
	t.Helper()
	loc := scope.MustNew(metadata.DefaultProject, metadata.DefaultClient, roundNumber)
	n, err := repo.Load(context.Background(), loc, true)
	require.NoError(t, err)
	return n.(*metadata.Round)
}

func TestRunRecordsEveryTrial(t *testing.T) {
	repo := memory.New(memory.WithLogDir(t.TempDir()))
	opt := &queueOptimizer{queue: []hyperparams.Samples{
		{"score": 0.7},
		{"score": 0.9, "fail": true},
		{"score": 0.5},
	}}

	roundNumber, err := newLoop(opt, 3).Run(context.Background(), repo, nil)
	require.NoError(t, err, "a recoverable trial failure must not abort the run")
	assert.Equal(t, 0, roundNumber)

	round := loadRound(t, repo, 0)
	require.Len(t, round.Trials(), 3)
	assert.Equal(t, metadata.StatusSuccess, round.Trials()[0].Status)
	assert.Equal(t, metadata.StatusFailed, round.Trials()[1].Status)
	assert.Equal(t, metadata.StatusSuccess, round.Trials()[2].Status)

	// The failed trial captured its scoped log into the record.
	assert.Contains(t, round.Trials()[1].Log, "trial failed")
	assert.Contains(t, round.Trials()[0].Log, "trial started")

	// Successful trials carry their split metrics.
	last, ok := round.Trials()[0].Splits()[0].Metric("mae")
	require.True(t, ok)
	v, ok := last.LastValidation()
	require.True(t, ok)
	assert.InDelta(t, 0.7, v, 1e-12)
}

func TestRunAbortsOnFatalFailure(t *testing.T) {
	repo := memory.New(memory.WithLogDir(t.TempDir()))
	opt := &queueOptimizer{queue: []hyperparams.Samples{
		{"score": 0.7},
		{"score": 0.9, "fail": true},
		{"score": 0.5},
	}}

	_, err := newLoop(opt, 3, automl.WithContinueOnError(false)).Run(context.Background(), repo, nil)
	require.Error(t, err)

	round := loadRound(t, repo, 0)
	require.Len(t, round.Trials(), 2, "the run stops after the aborted trial")
	assert.Equal(t, metadata.StatusSuccess, round.Trials()[0].Status)
	assert.Equal(t, metadata.StatusAborted, round.Trials()[1].Status)
}

func TestRunResumeAppendsToLastRound(t *testing.T) {
	repo := memory.New(memory.WithLogDir(t.TempDir()))

	first := &queueOptimizer{queue: []hyperparams.Samples{{"score": 0.7}, {"score": 0.6}}}
	n, err := newLoop(first, 2).Run(context.Background(), repo, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	second := &queueOptimizer{queue: []hyperparams.Samples{{"score": 0.5}}}
	n, err = newLoop(second, 1, automl.WithResume(true)).Run(context.Background(), repo, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "resume reopens the same round")
	assert.Len(t, loadRound(t, repo, 0).Trials(), 3)

	// Without resume a fresh round is opened.
	third := &queueOptimizer{queue: []hyperparams.Samples{{"score": 0.4}}}
	n, err = newLoop(third, 1).Run(context.Background(), repo, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunSurvivesPanickingPipeline(t *testing.T) {
	repo := memory.New(memory.WithLogDir(t.TempDir()))
	opt := &queueOptimizer{queue: []hyperparams.Samples{{"score": 0.7}, {"score": 0.3}}}

	trainer := &automl.EpochTrainer{
		Splitter: &panicSplitter{panicOn: 0},
		Epochs:   1,
		Callbacks: []automl.Callback{
			automl.ScoringCallback{Name: "mae", Score: scoreFromHyperparams},
		},
	}
	loop := automl.New(&fakePipeline{}, trainer,
		automl.WithTrials(2), automl.WithOptimizer(opt), automl.WithMainMetric("mae"))

	_, err := loop.Run(context.Background(), repo, nil)
	require.NoError(t, err)

	round := loadRound(t, repo, 0)
	require.Len(t, round.Trials(), 2)
	assert.Equal(t, metadata.StatusFailed, round.Trials()[0].Status)
	assert.Contains(t, round.Trials()[0].Log, "panicked")
	assert.Equal(t, metadata.StatusSuccess, round.Trials()[1].Status)
}

// panicSplitter panics on the configured call (0-based) and behaves like
// singleSplit afterwards.
type panicSplitter struct {
	panicOn int
	calls   int
}

func (s *panicSplitter) Split(ctx context.Context, data ports.Dataset) ([]ports.SplitPair, error) {
	call := s.calls
	s.calls++
	if call == s.panicOn {
		panic("splitter exploded")
	}
	return singleSplit{}.Split(ctx, data)
}

func TestBestTrialPicksByDirection(t *testing.T) {
	build := func(higherIsBetter bool) *metadata.Round {
		round := metadata.NewRound(0)
		for i, score := range []float64{0.7, 0.9, 0.5} {
			trial := metadata.NewTrial(i, nil)
			split := metadata.NewTrialSplit(0, nil)
			v := score
			split.RecordEpoch("mae", score, &v, higherIsBetter)
			split.Attempt.End(metadata.StatusSuccess, "")
			metadata.MustStore(trial, split)
			trial.Attempt.End(metadata.StatusSuccess, "")
			metadata.MustStore(round, trial)
		}
		return round
	}

	idx, trial, err := automl.BestTrial(build(true), "mae")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 1, trial.Number)

	idx, _, err = automl.BestTrial(build(false), "mae")
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
}

func TestBestTrialSkipsFailedAndTiesGoEarliest(t *testing.T) {
	round := metadata.NewRound(0)
	for i, tc := range []struct {
		score  float64
		status metadata.Status
	}{
		{0.1, metadata.StatusFailed},
		{0.5, metadata.StatusSuccess},
		{0.5, metadata.StatusSuccess},
	} {
		trial := metadata.NewTrial(i, nil)
		split := metadata.NewTrialSplit(0, nil)
		v := tc.score
		split.RecordEpoch("mae", tc.score, &v, false)
		metadata.MustStore(trial, split)
		trial.Attempt.End(tc.status, "")
		metadata.MustStore(round, trial)
	}

	idx, _, err := automl.BestTrial(round, "mae")
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "the failed lower score is skipped, the tie keeps the earliest")
}

func TestBestTrialWithoutSuccessesFails(t *testing.T) {
	round := metadata.NewRound(0)
	trial := metadata.NewTrial(0, nil)
	trial.Attempt.End(metadata.StatusFailed, "")
	metadata.MustStore(round, trial)

	_, _, err := automl.BestTrial(round, "mae")
	assert.Error(t, err)
}

func TestRefitBestTrialAppliesWinningHyperparams(t *testing.T) {
	repo := memory.New(memory.WithLogDir(t.TempDir()))
	opt := &queueOptimizer{queue: []hyperparams.Samples{
		{"score": 0.7, "lr": 0.1},
		{"score": 0.2, "lr": 0.01},
		{"score": 0.5, "lr": 0.5},
	}}

	loop := newLoop(opt, 3)
	_, err := loop.Run(context.Background(), repo, nil)
	require.NoError(t, err)

	fitted, err := loop.RefitBestTrial(context.Background(), repo, nil)
	require.NoError(t, err)

	// mae is lower-is-better, so the 0.2 trial wins.
	hp := fitted.(*fakePipeline).hp
	lr, ok := hp.Float("lr")
	require.True(t, ok)
	assert.InDelta(t, 0.01, lr, 1e-12)
}
