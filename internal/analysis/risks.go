package analysis

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/abramin/callrisk/internal/graph"
)

// DefaultRiskLimit caps the risk listing when no limit is given.
const DefaultRiskLimit = 50

// RiskOptions filters the risk listing.
type RiskOptions struct {
	MinSeverity   graph.Severity // Empty keeps every severity
	Limit         int            // 0 = DefaultRiskLimit
	ReachableOnly bool
}

// Risk is one scored vulnerability.
type Risk struct {
	Vulnerability graph.Vulnerability
	FunctionName  string
	Reachable     bool
	Score         int
	Breakdown     ScoreBreakdown
}

// Risks scores every vulnerability attached to a known function, filters by
// opts and returns them ordered by score, highest first.
func (a *Analyzer) Risks(st *graph.Store, opts RiskOptions) []Risk {
	start := time.Now()
	defer a.observe("risks", start)

	if opts.Limit <= 0 {
		opts.Limit = DefaultRiskLimit
	}

	reachable := a.finder(st, 0).ReachableSet(st.Entrypoints())

	risks := make([]Risk, 0)
	for _, v := range st.Vulnerabilities() {
		fn, err := st.Function(v.FuncID)
		if err != nil {
			a.logger.Warn("skipping vulnerability on unknown function",
				zap.String("vulnerability", v.ID),
				zap.String("function", string(v.FuncID)),
			)
			continue
		}

		isReachable := reachable.Has(v.FuncID)
		if opts.ReachableOnly && !isReachable {
			continue
		}
		if opts.MinSeverity != "" && !v.Severity.AtLeast(opts.MinSeverity) {
			continue
		}

		b := a.factors.Breakdown(v, isReachable)
		risks = append(risks, Risk{
			Vulnerability: v,
			FunctionName:  fn.Name,
			Reachable:     isReachable,
			Score:         b.Total(),
			Breakdown:     b,
		})
	}

	sort.SliceStable(risks, func(i, j int) bool {
		return risks[i].Score > risks[j].Score
	})
	if len(risks) > opts.Limit {
		risks = risks[:opts.Limit]
	}
	return risks
}
