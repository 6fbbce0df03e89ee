// Package hyperparams holds hyperparameter samples and the search spaces
// they are drawn from.
package hyperparams

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Samples is one flat hyperparameter assignment, keyed by parameter name.
// Values are scalars (float64, int, string, bool) as produced by a search
// space or decoded from a persisted record.
type Samples map[string]any

// Clone returns an independent copy.
func (s Samples) Clone() Samples {
	if s == nil {
		return nil
	}
	out := make(Samples, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (s Samples) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Decode maps the samples onto a typed struct, converting loosely between
// numeric widths the way JSON round-trips require.
func (s Samples) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "hp",
	})
	if err != nil {
		return fmt.Errorf("building hyperparams decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(s)); err != nil {
		return fmt.Errorf("decoding hyperparams: %w", err)
	}
	return nil
}

// Float returns the parameter as a float64, converting ints and JSON
// numbers along the way.
func (s Samples) Float(key string) (float64, bool) {
	switch v := s[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Int returns the parameter as an int. JSON decoding yields float64; exact
// integral floats convert cleanly.
func (s Samples) Int(key string) (int, bool) {
	switch v := s[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

// String returns the parameter as a string.
func (s Samples) String(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}
