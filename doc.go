/*
Package tunetree tracks and drives hyperparameter optimization runs.

It persists every trial of an optimization run into a hierarchical
metadata tree (Root > Project > Client > Round > Trial > TrialSplit >
MetricResult), addressable by scope coordinates, over pluggable storage
backends (in-memory or one-JSON-record-per-node on disk). On top of that
tree it runs an optimization loop: sample hyperparameters, train, record
metrics, contain failures, pick and refit the best trial.

# Usage

Implement automl.Pipeline for your model, then hand it to AutoML:

	package main

	import (
		"context"
		"log"

		"github.com/tunetree/tunetree"
		"github.com/tunetree/tunetree/pkg/adapters/disk"
		"github.com/tunetree/tunetree/pkg/automl"
	)

	func main() {
		repo, err := disk.New("./tunetree-data")
		if err != nil {
			log.Fatal(err)
		}

		aml := tunetree.AutoML{
			Pipeline: myPipeline,
			Trainer: &automl.EpochTrainer{
				Splitter: mySplitter,
				Epochs:   20,
				Callbacks: []automl.Callback{
					automl.ScoringCallback{Name: "mae", Score: myScorer},
				},
			},
			Repo:      repo,
			Trials:    50,
			Metric:    "mae",
			RefitBest: true,
		}

		best, err := aml.Fit(context.Background(), myDataset)
		if err != nil {
			log.Fatal(err)
		}
		_ = best // fitted on the full dataset with the winning hyperparams
	}

Every trial's status transitions, hyperparameters, per-epoch metrics and
captured logs survive in the repository; a crashed run resumes with
automl.WithResume and failed trials stay inspectable.
*/
package tunetree
