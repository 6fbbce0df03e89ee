package metadata

import (
	"time"

	"github.com/tunetree/tunetree/pkg/hyperparams"
)

// Attempt holds the fields shared by Trial and TrialSplit: the sampled
// hyperparameters, the lifecycle status, timestamps, and an append-only
// log string.
type Attempt struct {
	Hyperparams hyperparams.Samples
	Status      Status
	CreatedAt   time.Time
	StartedAt   time.Time
	EndedAt     time.Time // zero until the attempt reaches a terminal state
	Log         string
}

func newAttempt(hp hyperparams.Samples) Attempt {
	now := time.Now()
	return Attempt{
		Hyperparams: hp,
		Status:      StatusPlanned,
		CreatedAt:   now,
		StartedAt:   now,
	}
}

// Start marks the attempt as running. Called on scope entry, before any
// training work begins.
func (a *Attempt) Start() {
	a.Status = StatusRunning
	a.StartedAt = time.Now()
}

// End moves the attempt to a terminal state and appends logTail to its log.
func (a *Attempt) End(status Status, logTail string) {
	a.Status = status
	a.EndedAt = time.Now()
	a.Log += logTail
}

// AppendLog appends text to the attempt's log. The log only grows.
func (a *Attempt) AppendLog(text string) {
	a.Log += text
}
