package automl

import (
	"context"
	"fmt"
	"math"

	"github.com/tunetree/tunetree/pkg/ports"
)

// Scorer evaluates a fitted pipeline against a dataset.
type Scorer func(ctx context.Context, p Pipeline, data ports.Dataset) (float64, error)

// ScoringCallback records one metric's train and validation values after
// every epoch.
type ScoringCallback struct {
	Name           string
	Score          Scorer
	HigherIsBetter bool
}

func (c ScoringCallback) OnEpoch(ctx context.Context, split *SplitScope, ev EvalData) (bool, error) {
	train, err := c.Score(ctx, ev.Pipeline, ev.Train)
	if err != nil {
		return false, fmt.Errorf("scoring %s on train data: %w", c.Name, err)
	}
	if math.IsNaN(train) || math.IsInf(train, 0) {
		return false, fmt.Errorf("metric %s produced a non-finite train value", c.Name)
	}

	var validation *float64
	if ev.Validation != nil {
		v, err := c.Score(ctx, ev.Pipeline, ev.Validation)
		if err != nil {
			return false, fmt.Errorf("scoring %s on validation data: %w", c.Name, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false, fmt.Errorf("metric %s produced a non-finite validation value", c.Name)
		}
		validation = &v
	}

	split.RecordEpoch(c.Name, train, validation, c.HigherIsBetter)
	return false, nil
}

// EarlyStoppingCallback stops a split once the named metric's validation
// value has not improved for Patience consecutive epochs.
type EarlyStoppingCallback struct {
	Metric   string
	Patience int
}

func (c EarlyStoppingCallback) OnEpoch(ctx context.Context, split *SplitScope, ev EvalData) (bool, error) {
	if c.Patience <= 0 {
		return false, nil
	}
	m, ok := split.Split().Metric(c.Metric)
	if !ok {
		return false, nil
	}
	vals := m.ValidationValues
	if len(vals) <= c.Patience {
		return false, nil
	}

	bestIdx := 0
	for i, v := range vals {
		if better(v, vals[bestIdx], m.HigherIsBetter) {
			bestIdx = i
		}
	}
	return len(vals)-1-bestIdx >= c.Patience, nil
}

func better(a, b float64, higherIsBetter bool) bool {
	if higherIsBetter {
		return a > b
	}
	return a < b
}
