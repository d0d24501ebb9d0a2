package engine

// ChangeOp is the kind of filesystem change reported by a watcher.
type ChangeOp int

const (
	OpAdded ChangeOp = iota
	OpModified
	OpRemoved
)

func (op ChangeOp) String() string {
	switch op {
	case OpAdded:
		return "added"
	case OpModified:
		return "modified"
	default:
		return "removed"
	}
}

// Change is one path-changed notification. The engine consumes these from
// whatever watcher feeds it; it does not watch the filesystem itself.
type Change struct {
	Path string
	Op   ChangeOp
}

// Coalesce merges a burst of change events into at most one change per
// path. Op merging follows the net effect: a path added then modified is
// still added; a path removed then re-created is a modification; otherwise
// the latest op wins.
func Coalesce(changes []Change) []Change {
	if len(changes) <= 1 {
		return changes
	}

	order := make([]string, 0, len(changes))
	merged := make(map[string]ChangeOp, len(changes))
	for _, c := range changes {
		prev, seen := merged[c.Path]
		if !seen {
			order = append(order, c.Path)
			merged[c.Path] = c.Op
			continue
		}
		switch {
		case prev == OpAdded && c.Op == OpModified:
			// still a brand-new path
		case prev == OpRemoved && c.Op == OpAdded:
			merged[c.Path] = OpModified
		default:
			merged[c.Path] = c.Op
		}
	}

	out := make([]Change, 0, len(merged))
	for _, path := range order {
		out = append(out, Change{Path: path, Op: merged[path]})
	}
	return out
}
