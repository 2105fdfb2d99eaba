package analysis

import (
	"time"

	"github.com/abramin/callrisk/internal/graph"
)

// DefaultTraceLimit is the number of paths returned by an all-paths trace.
const DefaultTraceLimit = 10

// TraceOptions selects between a shortest-path and an all-paths trace.
type TraceOptions struct {
	AllPaths bool
	Limit    int // Paths returned when AllPaths is set (0 = DefaultTraceLimit)
}

// Trace describes how a function can be reached from the entry points.
type Trace struct {
	FunctionID graph.FunctionID
	Reachable  bool
	AllPaths   bool

	// Shortest-path mode.
	ShortestPath []graph.FunctionID
	PathLength   int

	// All-paths mode.
	Paths              []Path
	ShortestPathLength int

	TotalPaths int
	Truncated  bool
}

// VulnerabilityTrace is a Trace for the function a vulnerability sits on.
type VulnerabilityTrace struct {
	Trace
	Vulnerability graph.Vulnerability
	Score         int
}

// TraceFunction traces the paths from the entry points to id.
func (a *Analyzer) TraceFunction(st *graph.Store, id graph.FunctionID, opts TraceOptions) (Trace, error) {
	start := time.Now()
	defer a.observe("trace", start)

	set, err := a.PathsToFunction(st, id)
	if err != nil {
		return Trace{}, err
	}
	// A truncated enumeration may miss every path, so reachability comes from BFS.
	return buildTrace(id, set, a.Reachable(st, id), opts), nil
}

func buildTrace(id graph.FunctionID, set PathSet, reachable bool, opts TraceOptions) Trace {
	t := Trace{
		FunctionID: id,
		Reachable:  reachable,
		AllPaths:   opts.AllPaths,
		TotalPaths: set.Total,
		Truncated:  set.Truncated,
	}

	var shortest Path
	for _, p := range set.Paths {
		if shortest == nil || len(p) < len(shortest) {
			shortest = p
		}
	}

	if opts.AllPaths {
		limit := opts.Limit
		if limit <= 0 {
			limit = DefaultTraceLimit
		}
		t.Paths = set.Paths
		if len(t.Paths) > limit {
			t.Paths = t.Paths[:limit]
		}
		if t.Paths == nil {
			t.Paths = []Path{}
		}
		t.ShortestPathLength = len(shortest)
		return t
	}

	t.ShortestPath = []graph.FunctionID(shortest)
	if t.ShortestPath == nil {
		t.ShortestPath = []graph.FunctionID{}
	}
	t.PathLength = len(shortest)
	return t
}

// TraceVulnerability traces the function that vulnerability id is attached to
// and scores it with the reachability verdict of the trace.
func (a *Analyzer) TraceVulnerability(st *graph.Store, id string, opts TraceOptions) (VulnerabilityTrace, error) {
	v, err := st.Vulnerability(id)
	if err != nil {
		return VulnerabilityTrace{}, err
	}
	t, err := a.TraceFunction(st, v.FuncID, opts)
	if err != nil {
		return VulnerabilityTrace{}, err
	}
	return VulnerabilityTrace{
		Trace:         t,
		Vulnerability: v,
		Score:         a.factors.Breakdown(v, t.Reachable).Total(),
	}, nil
}
