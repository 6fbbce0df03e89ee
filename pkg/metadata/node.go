// Package metadata implements the hierarchical trial-tracking tree:
// Root → Project → Client → Round → Trial → TrialSplit → MetricResult.
// Each node owns an ordered collection of the next type down, keyed either
// by name (ordered map) or by index (append-only list).
package metadata

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/tunetree/tunetree/pkg/scope"
)

// Node is the uniform capability set exposed by every tree node kind.
// Children slots may hold nil placeholders (see Shallow), which preserve
// keys without materializing subtrees.
type Node interface {
	// Kind returns the node's level in the tree.
	Kind() scope.Kind
	// ID returns the node's own coordinate (nil for the root).
	ID() scope.Attr
	// SetID overwrites the node's own coordinate.
	SetID(id scope.Attr) error
	// Keys returns the child keys in collection order.
	Keys() []scope.Attr
	// Values returns the children in collection order; placeholder slots
	// are returned as nil.
	Values() []Node
	// Child returns the child stored under id. found is false when the key
	// is absent; a present key with a nil placeholder returns (nil, true).
	Child(id scope.Attr) (child Node, found bool)
	// Store inserts child under its own id, enforcing the
	// append-or-overwrite rule for list sublocations, and returns the key
	// used. The node is re-validated; a violation aborts before any write.
	Store(child Node) (scope.Attr, error)
	// SetChildKeys replaces the child collection with nil placeholders for
	// the given keys. Used to reconstruct shallow nodes from a listing.
	SetChildKeys(keys []scope.Attr) error
	// SetChildrenFrom adopts the child collection of another node of the
	// same kind, replacing this node's children.
	SetChildrenFrom(other Node) error
	// Shallow returns a copy whose child slots are nil placeholders.
	Shallow() Node
	// Clone returns a deep copy of the node and all its descendants.
	Clone() Node
	// Get descends recursively through sublocations until loc is exhausted
	// at this node's level. A missing key yields ErrNotFound.
	Get(loc scope.Location) (Node, error)
}

// MustStore stores child under parent and panics on an invariant
// violation. Intended for tree construction in tests and examples.
func MustStore(parent, child Node) {
	if _, err := parent.Store(child); err != nil {
		panic(err)
	}
}

// descend implements Node.Get for every kind.
func descend(n Node, loc scope.Location) (Node, error) {
	childKind, ok := n.Kind().Child()
	if !ok {
		return n, nil
	}
	id, set := loc.IDFor(childKind)
	if !set {
		return n, nil
	}
	child, found := n.Child(id)
	if !found || child == nil {
		return nil, fmt.Errorf("%s %v has no %s %v in %v: %w",
			n.Kind(), n.ID(), childKind, id, loc, ErrNotFound)
	}
	return child.Get(loc)
}

// nodePtr constrains the generic collection helpers to concrete node
// pointer types, so nil placeholders stay comparable.
type nodePtr interface {
	Node
	comparable
}

func mapKeysOf[C nodePtr](om *orderedmap.OrderedMap[string, C]) []scope.Attr {
	keys := make([]scope.Attr, 0, om.Len())
	for p := om.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

func mapValuesOf[C nodePtr](om *orderedmap.OrderedMap[string, C]) []Node {
	var zero C
	values := make([]Node, 0, om.Len())
	for p := om.Oldest(); p != nil; p = p.Next() {
		if p.Value == zero {
			values = append(values, nil)
		} else {
			values = append(values, p.Value)
		}
	}
	return values
}

func mapChildOf[C nodePtr](om *orderedmap.OrderedMap[string, C], id scope.Attr) (Node, bool) {
	key, ok := id.(string)
	if !ok {
		return nil, false
	}
	v, ok := om.Get(key)
	if !ok {
		return nil, false
	}
	var zero C
	if v == zero {
		return nil, true
	}
	return v, true
}

func mapStoreInto[C nodePtr](om *orderedmap.OrderedMap[string, C], owner Node, child Node) (scope.Attr, error) {
	c, ok := child.(C)
	if !ok {
		return nil, invariantf("%s sublocation cannot hold a %T", owner.Kind(), child)
	}
	key, ok := c.ID().(string)
	if !ok || key == "" {
		return nil, invariantf("%s sublocation keys must be non-empty strings, got %v", owner.Kind(), c.ID())
	}
	om.Set(key, c)
	return key, nil
}

func mapPlaceholders[C nodePtr](owner Node, keys []scope.Attr) (*orderedmap.OrderedMap[string, C], error) {
	om := orderedmap.New[string, C]()
	var zero C
	for _, k := range keys {
		key, ok := k.(string)
		if !ok || key == "" {
			return nil, invariantf("%s sublocation keys must be non-empty strings, got %v", owner.Kind(), k)
		}
		om.Set(key, zero)
	}
	return om, nil
}

func listKeysOf[C nodePtr](list []C) []scope.Attr {
	keys := make([]scope.Attr, len(list))
	for i := range list {
		keys[i] = i
	}
	return keys
}

func listValuesOf[C nodePtr](list []C) []Node {
	var zero C
	values := make([]Node, len(list))
	for i, v := range list {
		if v != zero {
			values[i] = v
		}
	}
	return values
}

func listChildOf[C nodePtr](list []C, id scope.Attr) (Node, bool) {
	i, ok := id.(int)
	if !ok || i < 0 || i >= len(list) {
		return nil, false
	}
	var zero C
	if list[i] == zero {
		return nil, true
	}
	return list[i], true
}

// listStoreInto enforces the append rule: a child may land at the index
// equal to the current length (new) or at an existing index (overwrite);
// a gap index aborts the mutation.
func listStoreInto[C nodePtr](list *[]C, owner Node, child Node) (scope.Attr, error) {
	c, ok := child.(C)
	if !ok {
		return nil, invariantf("%s sublocation cannot hold a %T", owner.Kind(), child)
	}
	i, ok := c.ID().(int)
	if !ok {
		return nil, invariantf("%s sublocation is index-addressed, got id %v", owner.Kind(), c.ID())
	}
	switch {
	case i == len(*list):
		*list = append(*list, c)
	case i >= 0 && i < len(*list):
		(*list)[i] = c
	default:
		return nil, invariantf("%s %v has id %d greater than the next id %d",
			c.Kind(), c.ID(), i, len(*list))
	}
	return i, nil
}

func listPlaceholders[C nodePtr](owner Node, keys []scope.Attr) ([]C, error) {
	list := make([]C, len(keys))
	for i, k := range keys {
		idx, ok := k.(int)
		if !ok || idx != i {
			return nil, invariantf("%s sublocation keys must be the contiguous indices 0..%d, got %v at position %d",
				owner.Kind(), len(keys)-1, k, i)
		}
	}
	return list, nil
}
