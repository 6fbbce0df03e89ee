package automl

import (
	"context"
	"fmt"

	"github.com/tunetree/tunetree/pkg/metadata"
	"github.com/tunetree/tunetree/pkg/ports"
)

// Trainer fits a configured pipeline inside an open trial scope and, after
// the search, refits the winner on the full dataset.
type Trainer interface {
	Train(ctx context.Context, p Pipeline, data ports.Dataset, trial *TrialScope) error
	Refit(ctx context.Context, p Pipeline, data ports.Dataset) error
}

// EvalData is what a callback sees after each fitted epoch.
type EvalData struct {
	Pipeline   Pipeline
	Train      ports.Dataset
	Validation ports.Dataset
	Epoch      int
	Epochs     int
}

// Callback observes epochs within a split. Returning stop ends the split
// early without failing the trial; returning an error fails it.
type Callback interface {
	OnEpoch(ctx context.Context, split *SplitScope, ev EvalData) (stop bool, err error)
}

// EpochTrainer fits each train/validation split for a fixed number of
// epochs, invoking the callbacks after every epoch.
type EpochTrainer struct {
	Splitter  ports.Splitter
	Callbacks []Callback
	Epochs    int
}

func (t *EpochTrainer) epochs() int {
	if t.Epochs <= 0 {
		return 1
	}
	return t.Epochs
}

// Train runs every split of data under the open trial scope. A split that
// fails closes as FAILED and fails the whole trial.
func (t *EpochTrainer) Train(ctx context.Context, p Pipeline, data ports.Dataset, trial *TrialScope) error {
	pairs, err := t.Splitter.Split(ctx, data)
	if err != nil {
		return fmt.Errorf("splitting dataset: %w", err)
	}
	if len(pairs) == 0 {
		return fmt.Errorf("splitter produced no train/validation pairs")
	}

	for _, pair := range pairs {
		split, err := trial.NewSplit(ctx)
		if err != nil {
			return err
		}
		if err := t.trainSplit(ctx, p, pair, split); err != nil {
			if closeErr := split.Close(ctx, metadata.StatusFailed); closeErr != nil {
				trial.Logger().Warn("failed to finalize failed split", "err", closeErr)
			}
			return fmt.Errorf("split %d: %w", split.Split().Number, err)
		}
		if err := split.Close(ctx, metadata.StatusSuccess); err != nil {
			return err
		}
	}
	return nil
}

func (t *EpochTrainer) trainSplit(ctx context.Context, p Pipeline, pair ports.SplitPair, split *SplitScope) error {
	total := t.epochs()
	for epoch := 1; epoch <= total; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Fit(ctx, pair.Train); err != nil {
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}

		ev := EvalData{
			Pipeline:   p,
			Train:      pair.Train,
			Validation: pair.Validation,
			Epoch:      epoch,
			Epochs:     total,
		}
		for _, cb := range t.Callbacks {
			stop, err := cb.OnEpoch(ctx, split, ev)
			if err != nil {
				return fmt.Errorf("epoch %d: %w", epoch, err)
			}
			if stop {
				split.Logger().Info("early stop requested", "epoch", epoch)
				return nil
			}
		}
	}
	return nil
}

// Refit trains the pipeline on the full dataset for the configured number
// of epochs, outside any trial scope.
func (t *EpochTrainer) Refit(ctx context.Context, p Pipeline, data ports.Dataset) error {
	total := t.epochs()
	for epoch := 1; epoch <= total; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Fit(ctx, data); err != nil {
			return fmt.Errorf("refit epoch %d: %w", epoch, err)
		}
	}
	return nil
}
