package analysis

import (
	"math"
	"time"

	"github.com/abramin/callrisk/internal/graph"
)

// DefaultAttackPathLimit is the number of paths kept per vulnerable function.
const DefaultAttackPathLimit = 10

// AttackPathOptions filters and bounds CriticalAttackPaths.
type AttackPathOptions struct {
	MaxPaths      int            // Paths kept per vulnerable function (0 = DefaultAttackPathLimit)
	MinSeverity   graph.Severity // Empty means high
	MaxPathLength int            // Functions per path (0 = unbounded)
}

// AttackPath is one entry-to-vulnerability path.
type AttackPath struct {
	VulnerabilityID      string
	Severity             graph.Severity
	Path                 Path
	PathLength           int
	RiskScore            int
	ExploitDifficulty    Difficulty
	TotalPaths           int
	EntryPointAccessible bool
}

// AttackPathSummary aggregates the emitted paths.
type AttackPathSummary struct {
	TotalPaths               int
	ShortestPath             int
	AveragePathLength        int
	MostVulnerableEntryPoint graph.FunctionID
	GeneratedAt              time.Time
}

// AttackPathAnalysis is the result of CriticalAttackPaths.
type AttackPathAnalysis struct {
	Paths     []AttackPath
	Summary   AttackPathSummary
	Truncated bool // Some enumeration ran out of state budget
}

// CriticalAttackPaths lists the paths from entry points to every vulnerable
// function whose severity meets opts.MinSeverity.
func (a *Analyzer) CriticalAttackPaths(st *graph.Store, opts AttackPathOptions) AttackPathAnalysis {
	start := time.Now()
	defer a.observe("attack_paths", start)

	if opts.MaxPaths <= 0 {
		opts.MaxPaths = DefaultAttackPathLimit
	}
	if opts.MinSeverity == "" {
		opts.MinSeverity = graph.SeverityHigh
	}

	// Length is filtered after the per-function cap, so a long path still
	// occupies its slot among the first MaxPaths.
	finder := a.finder(st, opts.MaxPaths)
	cache := make(map[graph.FunctionID]PathSet)

	var result AttackPathAnalysis
	for _, v := range st.Vulnerabilities() {
		if !v.Severity.AtLeast(opts.MinSeverity) {
			continue
		}

		set, ok := cache[v.FuncID]
		if !ok {
			set = finder.EntryToTargetPaths(v.FuncID)
			cache[v.FuncID] = set
			a.noteTruncated(v.FuncID, set)
		}
		if set.Truncated {
			result.Truncated = true
		}

		score := a.factors.Breakdown(v, true).Total()
		for _, p := range set.Paths {
			if opts.MaxPathLength > 0 && len(p) > opts.MaxPathLength {
				continue
			}
			result.Paths = append(result.Paths, AttackPath{
				VulnerabilityID:      v.ID,
				Severity:             v.Severity,
				Path:                 p,
				PathLength:           len(p),
				RiskScore:            score,
				ExploitDifficulty:    ExploitDifficultyFor(len(p)),
				TotalPaths:           set.Total,
				EntryPointAccessible: true,
			})
		}
	}

	result.Summary = summarize(result.Paths)
	result.Summary.GeneratedAt = a.now().UTC()
	return result
}

func summarize(paths []AttackPath) AttackPathSummary {
	s := AttackPathSummary{TotalPaths: len(paths)}
	if len(paths) == 0 {
		return s
	}

	sum := 0
	s.ShortestPath = paths[0].PathLength
	counts := make(map[graph.FunctionID]int)
	var order []graph.FunctionID
	for _, p := range paths {
		sum += p.PathLength
		if p.PathLength < s.ShortestPath {
			s.ShortestPath = p.PathLength
		}
		origin := p.Path[0]
		if _, seen := counts[origin]; !seen {
			order = append(order, origin)
		}
		counts[origin]++
	}
	s.AveragePathLength = int(math.Round(float64(sum) / float64(len(paths))))

	best := 0
	for _, id := range order {
		if counts[id] > best {
			best = counts[id]
			s.MostVulnerableEntryPoint = id
		}
	}
	return s
}
