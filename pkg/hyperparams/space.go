package hyperparams

import (
	"math"
	"math/rand"
	"sort"
)

// Distribution is one parameter's sampling domain.
type Distribution interface {
	// Sample draws one value using the provided source.
	Sample(r *rand.Rand) any
}

// Uniform draws float64 values uniformly from [Min, Max).
type Uniform struct {
	Min, Max float64
}

func (u Uniform) Sample(r *rand.Rand) any {
	return u.Min + r.Float64()*(u.Max-u.Min)
}

// LogUniform draws float64 values whose logarithm is uniform over
// [log(Min), log(Max)). Min must be positive.
type LogUniform struct {
	Min, Max float64
}

func (u LogUniform) Sample(r *rand.Rand) any {
	lo, hi := math.Log(u.Min), math.Log(u.Max)
	return math.Exp(lo + r.Float64()*(hi-lo))
}

// RandInt draws int values uniformly from [Min, Max] inclusive.
type RandInt struct {
	Min, Max int
}

func (u RandInt) Sample(r *rand.Rand) any {
	return u.Min + r.Intn(u.Max-u.Min+1)
}

// Choice draws uniformly from a fixed option set.
type Choice struct {
	Options []any
}

func (c Choice) Sample(r *rand.Rand) any {
	return c.Options[r.Intn(len(c.Options))]
}

// Space is a named set of distributions describing every tunable
// hyperparameter of a pipeline.
type Space map[string]Distribution

// Sample draws one full assignment. Parameters are visited in sorted name
// order so a seeded source yields reproducible samples.
func (sp Space) Sample(r *rand.Rand) Samples {
	out := make(Samples, len(sp))
	names := make([]string, 0, len(sp))
	for name := range sp {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out[name] = sp[name].Sample(r)
	}
	return out
}
