package automl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tunetree/tunetree/internal/metrics"
	"github.com/tunetree/tunetree/pkg/hyperparams"
	"github.com/tunetree/tunetree/pkg/metadata"
	"github.com/tunetree/tunetree/pkg/session"
)

// ClientScope is an open handle on one client's optimization history.
type ClientScope struct {
	sc     *session.Context
	client *metadata.Client
}

// OpenClient ensures the project and client records exist and returns a
// scope bound to the client. An empty mainMetric leaves the client's
// recorded main metric untouched.
func OpenClient(ctx context.Context, sc *session.Context, projectName, clientName, mainMetric string) (*ClientScope, error) {
	if projectName == "" {
		projectName = metadata.DefaultProject
	}
	if clientName == "" {
		clientName = metadata.DefaultClient
	}

	projectCtx, err := sc.Push(metadata.NewProject(projectName))
	if err != nil {
		return nil, err
	}
	project, err := projectCtx.Load(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("opening project %q: %w", projectName, err)
	}
	if err := projectCtx.CommitNode(ctx, project.Shallow(), false); err != nil {
		return nil, fmt.Errorf("persisting project %q: %w", projectName, err)
	}

	clientCtx, err := projectCtx.Push(metadata.NewClient(clientName))
	if err != nil {
		return nil, err
	}
	n, err := clientCtx.Load(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("opening client %q: %w", clientName, err)
	}
	client, ok := n.(*metadata.Client)
	if !ok {
		return nil, fmt.Errorf("opening client %q: unexpected node %T", clientName, n)
	}
	if mainMetric != "" {
		client.MainMetricName = mainMetric
	}
	if err := clientCtx.CommitNode(ctx, client.Shallow(), false); err != nil {
		return nil, fmt.Errorf("persisting client %q: %w", clientName, err)
	}

	return &ClientScope{sc: clientCtx, client: client}, nil
}

// Client returns the client record as loaded on open.
func (c *ClientScope) Client() *metadata.Client { return c.client }

// NewRound appends a fresh round to the client and returns its scope.
func (c *ClientScope) NewRound(ctx context.Context) (*RoundScope, error) {
	n, err := c.sc.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	round := metadata.NewRound(len(n.Keys()))
	if err := c.sc.CommitNode(ctx, round, false); err != nil {
		return nil, fmt.Errorf("creating round %d: %w", round.Number, err)
	}
	roundCtx, err := c.sc.Push(round)
	if err != nil {
		return nil, err
	}
	return &RoundScope{sc: roundCtx, number: round.Number}, nil
}

// ResumeLastRound reopens the client's most recent round, or creates the
// first one when none exists yet.
func (c *ClientScope) ResumeLastRound(ctx context.Context) (*RoundScope, error) {
	n, err := c.sc.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	count := len(n.Keys())
	if count == 0 {
		return c.NewRound(ctx)
	}
	roundCtx, err := c.sc.Push(metadata.NewRound(count - 1))
	if err != nil {
		return nil, err
	}
	return &RoundScope{sc: roundCtx, number: count - 1}, nil
}

// RoundScope is an open handle on one optimization round.
type RoundScope struct {
	sc     *session.Context
	number int
}

// Number returns the round's index under its client.
func (r *RoundScope) Number() int { return r.number }

// Round loads the round record, deep enough for an optimizer to inspect
// the full trial history.
func (r *RoundScope) Round(ctx context.Context) (*metadata.Round, error) {
	n, err := r.sc.Load(ctx, true)
	if err != nil {
		return nil, err
	}
	round, ok := n.(*metadata.Round)
	if !ok {
		return nil, fmt.Errorf("loading round %d: unexpected node %T", r.number, n)
	}
	return round, nil
}

// PlanTrial appends a new trial in the PLANNED state, reserving its index
// before any training work starts.
func (r *RoundScope) PlanTrial(ctx context.Context, hp hyperparams.Samples) (*TrialScope, error) {
	n, err := r.sc.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	trial := metadata.NewTrial(len(n.Keys()), hp)
	if err := r.sc.CommitNode(ctx, trial, false); err != nil {
		return nil, fmt.Errorf("planning trial %d: %w", trial.Number, err)
	}
	trialCtx, err := r.sc.Push(trial)
	if err != nil {
		return nil, err
	}
	return &TrialScope{sc: trialCtx, trial: trial}, nil
}

// TrialScope is an open handle on one trial attempt. Enter moves it to
// RUNNING and attaches the scoped log stream; Close finalizes it exactly
// once.
type TrialScope struct {
	sc      *session.Context
	trial   *metadata.Trial
	entered bool
	closed  bool
}

// Trial returns the live trial record.
func (t *TrialScope) Trial() *metadata.Trial { return t.trial }

// Logger returns the trial's scoped logger. Before Enter it logs nowhere
// near the trial record; after Enter everything is captured into it.
func (t *TrialScope) Logger() *slog.Logger { return t.sc.Logger() }

// Enter marks the trial RUNNING and routes its logs into the scoped
// stream that Close later folds into the record.
func (t *TrialScope) Enter(ctx context.Context) error {
	streamed, err := t.sc.WithScopedLogStream()
	if err != nil {
		return fmt.Errorf("attaching log stream to trial %d: %w", t.trial.Number, err)
	}
	t.sc = streamed
	t.entered = true
	t.trial.Attempt.Start()
	if err := t.sc.CommitNode(ctx, t.trial, false); err != nil {
		return fmt.Errorf("starting trial %d: %w", t.trial.Number, err)
	}
	return nil
}

// NewSplit appends a validation split to the trial and marks it running.
func (t *TrialScope) NewSplit(ctx context.Context) (*SplitScope, error) {
	split := metadata.NewTrialSplit(len(t.trial.Keys()), t.trial.Hyperparams.Clone())
	split.Attempt.Start()
	if _, err := t.trial.Store(split); err != nil {
		return nil, err
	}
	if err := t.sc.CommitNode(ctx, split, false); err != nil {
		return nil, fmt.Errorf("creating split %d of trial %d: %w", split.Number, t.trial.Number, err)
	}
	splitCtx, err := t.sc.Push(split)
	if err != nil {
		return nil, err
	}
	return &SplitScope{sc: splitCtx, split: split}, nil
}

// Close moves the trial to its terminal status, releases the log stream
// into the record, and persists the whole trial subtree. Safe to call
// once; later calls are no-ops so deferred finalizers can race a direct
// close.
func (t *TrialScope) Close(ctx context.Context, status metadata.Status) error {
	if t.closed {
		return nil
	}
	t.closed = true

	var tail string
	var streamErr error
	if t.entered {
		tail, streamErr = t.sc.ReleaseLogStream()
	}
	t.trial.Attempt.End(status, tail)

	metrics.TrialsTotal.WithLabelValues(string(status)).Inc()
	metrics.TrialDuration.Observe(time.Since(t.trial.StartedAt).Seconds())

	if err := t.sc.CommitNode(ctx, t.trial, true); err != nil {
		return fmt.Errorf("finalizing trial %d: %w", t.trial.Number, err)
	}
	return streamErr
}

// SplitScope is an open handle on one train/validation split attempt.
type SplitScope struct {
	sc     *session.Context
	split  *metadata.TrialSplit
	closed bool
}

// Split returns the live split record.
func (s *SplitScope) Split() *metadata.TrialSplit { return s.split }

// Logger returns the logger inherited from the owning trial.
func (s *SplitScope) Logger() *slog.Logger { return s.sc.Logger() }

// RecordEpoch appends one epoch's values for the named metric.
func (s *SplitScope) RecordEpoch(name string, train float64, validation *float64, higherIsBetter bool) {
	s.split.RecordEpoch(name, train, validation, higherIsBetter)
}

// Close moves the split to its terminal status and persists it with its
// metric results.
func (s *SplitScope) Close(ctx context.Context, status metadata.Status) error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.split.Attempt.End(status, "")
	if err := s.sc.CommitNode(ctx, s.split, true); err != nil {
		return fmt.Errorf("finalizing split %d: %w", s.split.Number, err)
	}
	return nil
}
