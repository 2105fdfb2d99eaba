package analysis

import "github.com/abramin/callrisk/internal/graph"

// Difficulty estimates how hard a path is to exploit.
type Difficulty string

const (
	DifficultyLow    Difficulty = "low"
	DifficultyMedium Difficulty = "medium"
	DifficultyHigh   Difficulty = "high"
)

// ScoringFactors holds the weights used to score a vulnerability.
type ScoringFactors struct {
	Critical          int `yaml:"critical"`
	High              int `yaml:"high"`
	Medium            int `yaml:"medium"`
	Low               int `yaml:"low"`
	ReachabilityBonus int `yaml:"reachability_bonus"`
	PackageRisk       int `yaml:"package_risk"`
	AIRisk            int `yaml:"ai_risk"`
}

// DefaultScoringFactors returns the stock weights.
func DefaultScoringFactors() ScoringFactors {
	return ScoringFactors{
		Critical:          8,
		High:              6,
		Medium:            3,
		Low:               1,
		ReachabilityBonus: 3,
		PackageRisk:       1,
		AIRisk:            2,
	}
}

// ScoreBreakdown is the per-term decomposition of a risk score.
type ScoreBreakdown struct {
	BaseSeverity      int
	ReachabilityBonus int
	PackageRisk       int
	AIRisk            int
}

// base returns the weight for sev. Unknown severities weigh nothing.
func (f ScoringFactors) base(sev graph.Severity) int {
	switch sev {
	case graph.SeverityCritical:
		return f.Critical
	case graph.SeverityHigh:
		return f.High
	case graph.SeverityMedium:
		return f.Medium
	case graph.SeverityLow:
		return f.Low
	default:
		return 0
	}
}

// Breakdown scores v with these factors.
func (f ScoringFactors) Breakdown(v graph.Vulnerability, reachable bool) ScoreBreakdown {
	b := ScoreBreakdown{BaseSeverity: f.base(v.Severity)}
	if reachable {
		b.ReachabilityBonus = f.ReachabilityBonus
	}
	if v.PackageName != "" {
		b.PackageRisk = f.PackageRisk
	}
	if v.IntroducedByAI {
		b.AIRisk = f.AIRisk
	}
	return b
}

// ScoreBreakdownFor scores v with the default factors.
func ScoreBreakdownFor(v graph.Vulnerability, reachable bool) ScoreBreakdown {
	return DefaultScoringFactors().Breakdown(v, reachable)
}

// TotalScore sums the terms of b.
func TotalScore(b ScoreBreakdown) int {
	total := b.BaseSeverity + b.ReachabilityBonus + b.PackageRisk + b.AIRisk
	if total < 0 {
		return 0
	}
	return total
}

// Total is shorthand for TotalScore(b).
func (b ScoreBreakdown) Total() int {
	return TotalScore(b)
}

// ExploitDifficultyFor classifies a path by the number of functions on it.
func ExploitDifficultyFor(pathLength int) Difficulty {
	switch {
	case pathLength <= 3:
		return DifficultyLow
	case pathLength <= 6:
		return DifficultyMedium
	default:
		return DifficultyHigh
	}
}
