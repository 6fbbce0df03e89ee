package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunetree/tunetree/pkg/hyperparams"
)

func TestTrialRecordRoundTrip(t *testing.T) {
	trial := NewTrial(3, hyperparams.Samples{"lr": 0.01, "layers": 2.0})
	trial.Attempt.Start()
	trial.Attempt.End(StatusFailed, "boom\n")

	data, err := Marshal(trial)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"__type__": "Trial"`)
	assert.Contains(t, string(data), `"trial_number": 3`)

	n, err := Unmarshal(data)
	require.NoError(t, err)
	got := n.(*Trial)
	assert.Equal(t, 3, got.Number)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "boom\n", got.Log)
	assert.InDelta(t, 0.01, got.Hyperparams["lr"], 1e-12)
	assert.WithinDuration(t, trial.EndedAt, got.EndedAt, time.Millisecond)
}

func TestPlannedTrialHasNoEndTime(t *testing.T) {
	data, err := Marshal(NewTrial(0, nil))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"end_time": null`)

	n, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, n.(*Trial).EndedAt.IsZero())
}

func TestMetricRecordRoundTrip(t *testing.T) {
	m := NewMetricResult("mae", false)
	m.TrainValues = []float64{1.0, 0.5}
	m.ValidationValues = []float64{1.1, 0.6}

	data, err := Marshal(m)
	require.NoError(t, err)

	n, err := Unmarshal(data)
	require.NoError(t, err)
	got := n.(*MetricResult)
	assert.Equal(t, m.TrainValues, got.TrainValues)
	assert.Equal(t, m.ValidationValues, got.ValidationValues)
	assert.False(t, got.HigherIsBetter)
}

func TestUnmarshalRejectsBadRecords(t *testing.T) {
	_, err := Unmarshal([]byte(`{"project_name": "p"}`))
	assert.ErrorContains(t, err, "missing the __type__")

	_, err = Unmarshal([]byte(`{"__type__": "Banana"}`))
	assert.ErrorContains(t, err, "unknown node record type")

	_, err = Unmarshal([]byte(`{not json`))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`{"__type__": "Trial", "trial_number": 0, "status": "EXPLODED"}`))
	assert.ErrorContains(t, err, "unknown trial status")
}
