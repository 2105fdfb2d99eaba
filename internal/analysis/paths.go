package analysis

import "github.com/abramin/callrisk/internal/graph"

// DefaultMaxStates bounds how many partial paths a single enumeration may expand.
const DefaultMaxStates = 100_000

// Path is a sequence of function ids from a source to a target.
type Path []graph.FunctionID

// PathLimits bounds path enumeration while it runs.
type PathLimits struct {
	// MaxPaths is the number of paths kept (0 = keep all found).
	MaxPaths int

	// MaxLength is the maximum number of functions on a path (0 = unbounded).
	MaxLength int

	// MaxStates is the number of partial paths that may be expanded
	// (0 = DefaultMaxStates).
	MaxStates int
}

func (l PathLimits) maxStates() int {
	if l.MaxStates <= 0 {
		return DefaultMaxStates
	}
	return l.MaxStates
}

// PathSet is the result of an enumeration.
type PathSet struct {
	// Paths holds at most MaxPaths paths, shortest first per source.
	Paths []Path

	// Total counts every matching path seen, including those not kept.
	Total int

	// Truncated is true if the state budget ran out; Total is then a lower bound.
	Truncated bool
}

// Empty reports whether no path was found.
func (ps PathSet) Empty() bool {
	return ps.Total == 0
}

// step is one partial path. Steps share their prefix through parent links.
type step struct {
	node   graph.FunctionID
	parent *step
	length int
}

func (s *step) contains(id graph.FunctionID) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.node == id {
			return true
		}
	}
	return false
}

func (s *step) path() Path {
	p := make(Path, s.length)
	i := s.length - 1
	for cur := s; cur != nil; cur = cur.parent {
		p[i] = cur.node
		i--
	}
	return p
}

// PathFinder enumerates simple directed paths and reachability over a store.
type PathFinder struct {
	store  *graph.Store
	limits PathLimits
}

// NewPathFinder creates a path finder bounded by limits.
func NewPathFinder(st *graph.Store, limits PathLimits) *PathFinder {
	return &PathFinder{store: st, limits: limits}
}

// AllSimplePaths returns the simple paths from source to target in
// breadth-first order: shortest first, ties by neighbor insertion order.
func (pf *PathFinder) AllSimplePaths(source, target graph.FunctionID) PathSet {
	var set PathSet
	budget := pf.limits.maxStates()
	pf.collect(source, target, &set, &budget)
	return set
}

// EntryToTargetPaths concatenates AllSimplePaths(entry, target) over every
// entry point in ingestion order. The state budget is shared by all entries.
func (pf *PathFinder) EntryToTargetPaths(target graph.FunctionID) PathSet {
	var set PathSet
	budget := pf.limits.maxStates()
	for _, entry := range pf.store.Entrypoints() {
		if budget <= 0 {
			set.Truncated = true
			break
		}
		pf.collect(entry, target, &set, &budget)
	}
	return set
}

// collect runs one breadth-first enumeration, appending into set.
func (pf *PathFinder) collect(source, target graph.FunctionID, set *PathSet, budget *int) {
	if !pf.store.HasFunction(source) || !pf.store.HasFunction(target) {
		return
	}

	queue := []*step{{node: source, length: 1}}
	for head := 0; head < len(queue); head++ {
		if *budget <= 0 {
			set.Truncated = true
			return
		}
		*budget--

		cur := queue[head]
		queue[head] = nil

		if cur.node == target {
			set.Total++
			if pf.limits.MaxPaths <= 0 || len(set.Paths) < pf.limits.MaxPaths {
				set.Paths = append(set.Paths, cur.path())
			}
			continue
		}
		if pf.limits.MaxLength > 0 && cur.length >= pf.limits.MaxLength {
			continue
		}

		pf.store.EachNeighbor(cur.node, func(nb graph.FunctionID) {
			if cur.contains(nb) {
				return
			}
			// Entries past the remaining budget would never be expanded.
			if len(queue)-head-1 >= *budget {
				set.Truncated = true
				return
			}
			queue = append(queue, &step{node: nb, parent: cur, length: cur.length + 1})
		})
	}
}

// FunctionSet is a set of function ids.
type FunctionSet map[graph.FunctionID]struct{}

// Has reports whether id is in the set.
func (fs FunctionSet) Has(id graph.FunctionID) bool {
	_, ok := fs[id]
	return ok
}

// ReachableSet returns every function reachable from sources over directed
// edges, sources included. Nodes are marked when enqueued so each is
// expanded once.
func (pf *PathFinder) ReachableSet(sources []graph.FunctionID) FunctionSet {
	visited := make(FunctionSet, len(sources))
	queue := make([]graph.FunctionID, 0, len(sources))
	for _, s := range sources {
		if !visited.Has(s) {
			visited[s] = struct{}{}
			queue = append(queue, s)
		}
	}

	for head := 0; head < len(queue); head++ {
		pf.store.EachNeighbor(queue[head], func(nb graph.FunctionID) {
			if !visited.Has(nb) {
				visited[nb] = struct{}{}
				queue = append(queue, nb)
			}
		})
	}
	return visited
}

// Reachable reports whether target is reachable from any entry point.
func (pf *PathFinder) Reachable(target graph.FunctionID) bool {
	if !pf.store.HasFunction(target) {
		return false
	}
	return pf.ReachableSet(pf.store.Entrypoints()).Has(target)
}
