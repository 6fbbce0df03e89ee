// Package scope defines the ordered coordinate tuple that addresses any
// node in the trial-tracking metadata tree. A location is a prefix of the
// fixed level order project → client → round → trial → split → metric:
// a coordinate may only be set when every coordinate before it is set.
package scope

import (
	"fmt"
	"strconv"
	"strings"
)

// Attr is a single coordinate value: a name (string) for projects, clients
// and metrics, or an index (int) for rounds, trials and splits.
type Attr any

// Kind identifies one level of the metadata tree.
type Kind int

const (
	Root Kind = iota
	Project
	Client
	Round
	Trial
	TrialSplit
	MetricResult
)

// MaxDepth is the number of coordinates in a fully specified location.
const MaxDepth = 6

var kindNames = map[Kind]string{
	Root:         "root",
	Project:      "project",
	Client:       "client",
	Round:        "round",
	Trial:        "trial",
	TrialSplit:   "split",
	MetricResult: "metric",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Depth returns the number of coordinates set in a location that addresses
// a node of this kind. The root is addressed by the empty location.
func (k Kind) Depth() int { return int(k) }

// Child returns the kind one level below k, or false for the leaf level.
func (k Kind) Child() (Kind, bool) {
	if k >= MetricResult {
		return 0, false
	}
	return k + 1, true
}

// SublocationIsList reports whether nodes of this kind keep their children
// in an index-addressed list (as opposed to a name-keyed ordered map).
func (k Kind) SublocationIsList() bool {
	return k == Client || k == Round || k == Trial
}

// wantsInt reports whether the id coordinate of this kind is an index.
func (k Kind) wantsInt() bool {
	return k == Round || k == Trial || k == TrialSplit
}

// checkAttr validates that a is an acceptable id for kind k and returns it
// normalized (ints of any width collapse to int).
func checkAttr(k Kind, a Attr) (Attr, error) {
	if k.wantsInt() {
		switch v := a.(type) {
		case int:
			if v < 0 {
				return nil, fmt.Errorf("scope: %s coordinate must be non-negative, got %d", k, v)
			}
			return v, nil
		case int64:
			return checkAttr(k, int(v))
		default:
			return nil, fmt.Errorf("scope: %s coordinate must be an int, got %T", k, a)
		}
	}
	s, ok := a.(string)
	if !ok {
		return nil, fmt.Errorf("scope: %s coordinate must be a string, got %T", k, a)
	}
	if s == "" {
		return nil, fmt.Errorf("scope: %s coordinate must not be empty", k)
	}
	return s, nil
}

// Location is an ordered, partially filled coordinate tuple. The zero value
// addresses the root of the tree. All operations except Pop return new
// values and leave the receiver untouched.
type Location struct {
	attrs []Attr
}

// New builds a location from the given coordinate prefix, validating the
// type of each coordinate against its level.
func New(attrs ...Attr) (Location, error) {
	if len(attrs) > MaxDepth {
		return Location{}, fmt.Errorf("scope: at most %d coordinates, got %d", MaxDepth, len(attrs))
	}
	out := make([]Attr, len(attrs))
	for i, a := range attrs {
		v, err := checkAttr(Kind(i+1), a)
		if err != nil {
			return Location{}, err
		}
		out[i] = v
	}
	return Location{attrs: out}, nil
}

// MustNew is New for statically known coordinates; it panics on error.
func MustNew(attrs ...Attr) Location {
	loc, err := New(attrs...)
	if err != nil {
		panic(err)
	}
	return loc
}

// Len returns the number of set coordinates.
func (l Location) Len() int { return len(l.attrs) }

// At returns the coordinate at position i (0-based).
func (l Location) At(i int) Attr { return l.attrs[i] }

// Kind returns the kind of node this location addresses.
func (l Location) Kind() Kind { return Kind(len(l.attrs)) }

// IDFor returns the coordinate belonging to the given kind, if set.
func (l Location) IDFor(k Kind) (Attr, bool) {
	d := k.Depth()
	if d < 1 || d > len(l.attrs) {
		return nil, false
	}
	return l.attrs[d-1], true
}

// WithID returns a new location extended by one coordinate.
func (l Location) WithID(a Attr) (Location, error) {
	if len(l.attrs) >= MaxDepth {
		return Location{}, fmt.Errorf("scope: %s is already fully specified", l)
	}
	v, err := checkAttr(Kind(len(l.attrs)+1), a)
	if err != nil {
		return Location{}, err
	}
	out := make([]Attr, len(l.attrs), len(l.attrs)+1)
	copy(out, l.attrs)
	return Location{attrs: append(out, v)}, nil
}

// Peek returns the deepest set coordinate, or nil for the root location.
func (l Location) Peek() Attr {
	if len(l.attrs) == 0 {
		return nil
	}
	return l.attrs[len(l.attrs)-1]
}

// Pop removes and returns the deepest set coordinate, mutating the
// receiver. It is meant for internal scope teardown; all other callers
// should use Popped.
func (l *Location) Pop() Attr {
	if len(l.attrs) == 0 {
		return nil
	}
	last := l.attrs[len(l.attrs)-1]
	l.attrs = l.attrs[:len(l.attrs)-1]
	return last
}

// Popped returns a copy with the deepest set coordinate removed.
func (l Location) Popped() Location {
	if len(l.attrs) == 0 {
		return Location{}
	}
	out := make([]Attr, len(l.attrs)-1)
	copy(out, l.attrs)
	return Location{attrs: out}
}

// Truncate returns the prefix of this location ending at (and including)
// the coordinate of the given kind. Truncating past the deepest set
// coordinate returns the location unchanged.
func (l Location) Truncate(k Kind) Location {
	d := k.Depth()
	if d >= len(l.attrs) {
		return l.copy()
	}
	out := make([]Attr, d)
	copy(out, l.attrs[:d])
	return Location{attrs: out}
}

func (l Location) copy() Location {
	out := make([]Attr, len(l.attrs))
	copy(out, l.attrs)
	return Location{attrs: out}
}

// AsList returns the set coordinates in order.
func (l Location) AsList() []Attr {
	out := make([]Attr, len(l.attrs))
	copy(out, l.attrs)
	return out
}

// AsStrings returns the set coordinates stringified, for path building.
func (l Location) AsStrings() []string {
	out := make([]string, len(l.attrs))
	for i, a := range l.attrs {
		switch v := a.(type) {
		case string:
			out[i] = v
		case int:
			out[i] = strconv.Itoa(v)
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}

// Equal reports whether both locations hold the same coordinate prefix.
func (l Location) Equal(o Location) bool { return l.Compare(o) == 0 }

// Compare orders locations lexicographically over their coordinate tuples.
// A strict prefix sorts before its extensions.
func (l Location) Compare(o Location) int {
	n := len(l.attrs)
	if len(o.attrs) < n {
		n = len(o.attrs)
	}
	for i := 0; i < n; i++ {
		switch a := l.attrs[i].(type) {
		case int:
			b := o.attrs[i].(int)
			if a != b {
				if a < b {
					return -1
				}
				return 1
			}
		case string:
			b := o.attrs[i].(string)
			if c := strings.Compare(a, b); c != 0 {
				return c
			}
		}
	}
	switch {
	case len(l.attrs) < len(o.attrs):
		return -1
	case len(l.attrs) > len(o.attrs):
		return 1
	}
	return 0
}

func (l Location) String() string {
	return "Location(" + strings.Join(l.AsStrings(), ", ") + ")"
}
