package automl_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunetree/tunetree/internal/logging"
	"github.com/tunetree/tunetree/pkg/adapters/disk"
	"github.com/tunetree/tunetree/pkg/adapters/memory"
	"github.com/tunetree/tunetree/pkg/automl"
	"github.com/tunetree/tunetree/pkg/hyperparams"
	"github.com/tunetree/tunetree/pkg/metadata"
	"github.com/tunetree/tunetree/pkg/ports"
)

// seriesCallback records a fixed per-epoch validation series.
type seriesCallback struct {
	series []float64
}

func (c seriesCallback) OnEpoch(ctx context.Context, split *automl.SplitScope, ev automl.EvalData) (bool, error) {
	v := c.series[ev.Epoch-1]
	split.RecordEpoch("mae", v, &v, false)
	return false, nil
}

func TestEarlyStoppingEndsSplitWithoutFailing(t *testing.T) {
	repo := memory.New(memory.WithLogDir(t.TempDir()))
	opt := &queueOptimizer{queue: []hyperparams.Samples{{"score": 0.7}}}

	trainer := &automl.EpochTrainer{
		Splitter: singleSplit{},
		Epochs:   10,
		Callbacks: []automl.Callback{
			seriesCallback{series: []float64{5, 4, 3, 3, 3, 3, 3, 3, 3, 3}},
			automl.EarlyStoppingCallback{Metric: "mae", Patience: 2},
		},
	}
	loop := automl.New(&fakePipeline{}, trainer,
		automl.WithTrials(1), automl.WithOptimizer(opt), automl.WithMainMetric("mae"))

	_, err := loop.Run(context.Background(), repo, nil)
	require.NoError(t, err)

	round := loadRound(t, repo, 0)
	trial := round.Trials()[0]
	assert.Equal(t, metadata.StatusSuccess, trial.Status)

	m, ok := trial.Splits()[0].Metric("mae")
	require.True(t, ok)
	// Best value appears at epoch 3; two stagnant epochs later training stops.
	assert.Len(t, m.TrainValues, 5)
}

// multiSplit yields n identical train/validation pairs.
type multiSplit struct{ n int }

func (s multiSplit) Split(ctx context.Context, data ports.Dataset) ([]ports.SplitPair, error) {
	pairs := make([]ports.SplitPair, s.n)
	for i := range pairs {
		pairs[i] = ports.SplitPair{Train: data, Validation: data}
	}
	return pairs, nil
}

func TestTrialRecordsEverySplit(t *testing.T) {
	repo := memory.New(memory.WithLogDir(t.TempDir()))
	opt := &queueOptimizer{queue: []hyperparams.Samples{{"score": 0.7}}}

	trainer := &automl.EpochTrainer{
		Splitter: multiSplit{n: 3},
		Epochs:   2,
		Callbacks: []automl.Callback{
			automl.ScoringCallback{Name: "mae", Score: scoreFromHyperparams},
		},
	}
	loop := automl.New(&fakePipeline{}, trainer,
		automl.WithTrials(1), automl.WithOptimizer(opt), automl.WithMainMetric("mae"))

	_, err := loop.Run(context.Background(), repo, nil)
	require.NoError(t, err)

	trial := loadRound(t, repo, 0).Trials()[0]
	require.Len(t, trial.Splits(), 3)
	for _, split := range trial.Splits() {
		assert.Equal(t, metadata.StatusSuccess, split.Status)
		m, ok := split.Metric("mae")
		require.True(t, ok)
		assert.Len(t, m.TrainValues, 2)
	}
}

func TestParallelWorkersRecordAllTrials(t *testing.T) {
	repo, err := disk.New(t.TempDir())
	require.NoError(t, err)

	opt := &queueOptimizer{queue: []hyperparams.Samples{
		{"score": 0.9}, {"score": 0.8}, {"score": 0.7}, {"score": 0.6},
	}}
	loop := newLoop(opt, 4, automl.WithWorkers(2))

	roundNumber, err := loop.Run(context.Background(), repo, nil)
	require.NoError(t, err)

	round := loadRound(t, repo, roundNumber)
	require.Len(t, round.Trials(), 4)
	for i, trial := range round.Trials() {
		assert.Equal(t, i, trial.Number)
		assert.Equal(t, metadata.StatusSuccess, trial.Status)
	}
}

func TestWorkersDowngradeOnSequentialBackend(t *testing.T) {
	repo := memory.New(memory.WithLogDir(t.TempDir()))

	var buf bytes.Buffer
	opt := &queueOptimizer{queue: []hyperparams.Samples{
		{"score": 0.9}, {"score": 0.8}, {"score": 0.7},
	}}
	loop := newLoop(opt, 3,
		automl.WithWorkers(4),
		automl.WithLogger(logging.NewWriter(&buf, slog.LevelInfo)))

	roundNumber, err := loop.Run(context.Background(), repo, nil)
	require.NoError(t, err)

	// The in-memory backend is not parallel safe, so the requested workers
	// collapse to sequential execution instead of racing the backing tree.
	assert.Contains(t, buf.String(), "not parallel safe")

	round := loadRound(t, repo, roundNumber)
	require.Len(t, round.Trials(), 3)
	for i, trial := range round.Trials() {
		assert.Equal(t, i, trial.Number)
		assert.Equal(t, metadata.StatusSuccess, trial.Status)
	}
}
