package metadata

import "fmt"

// Status is the lifecycle state of a Trial or TrialSplit attempt.
type Status string

const (
	StatusPlanned Status = "PLANNED"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusAborted Status = "ABORTED"
)

// Terminal reports whether the attempt has reached a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusAborted:
		return true
	}
	return false
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusRunning, StatusSuccess, StatusFailed, StatusAborted:
		return true
	}
	return false
}

func parseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown trial status %q", s)
	}
	return st, nil
}
