package metadata

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tunetree/tunetree/pkg/hyperparams"
)

// The on-disk record of a node holds its own fields plus a __type__
// discriminator; children are never embedded, they live in child records.

const typeKey = "__type__"

const (
	typeRoot         = "Root"
	typeProject      = "Project"
	typeClient       = "Client"
	typeRound        = "Round"
	typeTrial        = "Trial"
	typeTrialSplit   = "TrialSplit"
	typeMetricResult = "MetricResult"
)

type rootRecord struct {
	Type string `json:"__type__"`
}

type projectRecord struct {
	Type string `json:"__type__"`
	Name string `json:"project_name"`
}

type clientRecord struct {
	Type           string `json:"__type__"`
	Name           string `json:"client_name"`
	MainMetricName string `json:"main_metric_name"`
}

type roundRecord struct {
	Type   string `json:"__type__"`
	Number int    `json:"round_number"`
}

type attemptRecord struct {
	Hyperparams hyperparams.Samples `json:"hyperparams"`
	Status      string              `json:"status"`
	CreatedAt   time.Time           `json:"created_time"`
	StartedAt   time.Time           `json:"start_time"`
	EndedAt     *time.Time          `json:"end_time"`
	Log         string              `json:"log"`
}

type trialRecord struct {
	Type   string `json:"__type__"`
	Number int    `json:"trial_number"`
	attemptRecord
}

type splitRecord struct {
	Type   string `json:"__type__"`
	Number int    `json:"split_number"`
	attemptRecord
}

type metricRecord struct {
	Type             string    `json:"__type__"`
	Name             string    `json:"metric_name"`
	TrainValues      []float64 `json:"train_values"`
	ValidationValues []float64 `json:"validation_values"`
	HigherIsBetter   bool      `json:"higher_score_is_better"`
}

func attemptToRecord(a Attempt) attemptRecord {
	rec := attemptRecord{
		Hyperparams: a.Hyperparams,
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		StartedAt:   a.StartedAt,
		Log:         a.Log,
	}
	if !a.EndedAt.IsZero() {
		ended := a.EndedAt
		rec.EndedAt = &ended
	}
	return rec
}

func (rec attemptRecord) toAttempt() (Attempt, error) {
	status, err := parseStatus(rec.Status)
	if err != nil {
		return Attempt{}, err
	}
	a := Attempt{
		Hyperparams: rec.Hyperparams,
		Status:      status,
		CreatedAt:   rec.CreatedAt,
		StartedAt:   rec.StartedAt,
		Log:         rec.Log,
	}
	if rec.EndedAt != nil {
		a.EndedAt = *rec.EndedAt
	}
	return a, nil
}

// Marshal serializes a node's own fields (never its children) to its
// record form.
func Marshal(n Node) ([]byte, error) {
	var rec any
	switch v := n.(type) {
	case *Root:
		rec = rootRecord{Type: typeRoot}
	case *Project:
		rec = projectRecord{Type: typeProject, Name: v.Name}
	case *Client:
		rec = clientRecord{Type: typeClient, Name: v.Name, MainMetricName: v.MainMetricName}
	case *Round:
		rec = roundRecord{Type: typeRound, Number: v.Number}
	case *Trial:
		rec = trialRecord{Type: typeTrial, Number: v.Number, attemptRecord: attemptToRecord(v.Attempt)}
	case *TrialSplit:
		rec = splitRecord{Type: typeTrialSplit, Number: v.Number, attemptRecord: attemptToRecord(v.Attempt)}
	case *MetricResult:
		rec = metricRecord{
			Type:             typeMetricResult,
			Name:             v.Name,
			TrainValues:      v.TrainValues,
			ValidationValues: v.ValidationValues,
			HigherIsBetter:   v.HigherIsBetter,
		}
	default:
		return nil, invariantf("cannot marshal node of type %T", n)
	}
	return json.MarshalIndent(rec, "", "  ")
}

// Unmarshal reconstructs a node from its record form, dispatching on the
// __type__ discriminator. The returned node has an empty child collection.
func Unmarshal(data []byte) (Node, error) {
	var probe struct {
		Type string `json:"__type__"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding node record: %w", err)
	}

	switch probe.Type {
	case typeRoot:
		return NewRoot(), nil
	case typeProject:
		var rec projectRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding project record: %w", err)
		}
		return NewProject(rec.Name), nil
	case typeClient:
		var rec clientRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding client record: %w", err)
		}
		c := NewClient(rec.Name)
		c.MainMetricName = rec.MainMetricName
		return c, nil
	case typeRound:
		var rec roundRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding round record: %w", err)
		}
		return NewRound(rec.Number), nil
	case typeTrial:
		var rec trialRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding trial record: %w", err)
		}
		attempt, err := rec.toAttempt()
		if err != nil {
			return nil, fmt.Errorf("decoding trial record: %w", err)
		}
		t := NewTrial(rec.Number, nil)
		t.Attempt = attempt
		return t, nil
	case typeTrialSplit:
		var rec splitRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding split record: %w", err)
		}
		attempt, err := rec.toAttempt()
		if err != nil {
			return nil, fmt.Errorf("decoding split record: %w", err)
		}
		s := NewTrialSplit(rec.Number, nil)
		s.Attempt = attempt
		return s, nil
	case typeMetricResult:
		var rec metricRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding metric record: %w", err)
		}
		m := NewMetricResult(rec.Name, rec.HigherIsBetter)
		m.TrainValues = rec.TrainValues
		m.ValidationValues = rec.ValidationValues
		return m, nil
	case "":
		return nil, fmt.Errorf("node record is missing the %s discriminator", typeKey)
	default:
		return nil, fmt.Errorf("unknown node record type %q", probe.Type)
	}
}
