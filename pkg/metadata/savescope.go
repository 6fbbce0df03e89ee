package metadata

import "github.com/tunetree/tunetree/pkg/scope"

// ResolveSaveScope enforces the scope-sanity rule shared by every
// repository backend: a node's own id, when present in the scope, must
// equal the coordinate at the node's level; when the scope stops short of
// the node's level it must stop exactly one level above it, so the node's
// own id can complete it. The returned location addresses the node itself.
func ResolveSaveScope(n Node, loc scope.Location) (scope.Location, error) {
	if n.Kind() == scope.Root {
		return scope.Location{}, nil
	}

	nodeLoc := loc.Truncate(n.Kind())
	if id, ok := nodeLoc.IDFor(n.Kind()); ok {
		if id != n.ID() {
			return scope.Location{}, invariantf(
				"scope %v carries %s id %v which does not match the node id %v",
				loc, n.Kind(), id, n.ID())
		}
		return nodeLoc, nil
	}

	if nodeLoc.Len() != n.Kind().Depth()-1 {
		return scope.Location{}, invariantf(
			"scope %v is not of the good length for a %s node", loc, n.Kind())
	}
	full, err := nodeLoc.WithID(n.ID())
	if err != nil {
		return scope.Location{}, invariantf("node id %v cannot complete scope %v: %v", n.ID(), loc, err)
	}
	return full, nil
}
