package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abramin/callrisk/internal/graph"
)

func TestScoreBreakdown(t *testing.T) {
	tests := []struct {
		name      string
		v         graph.Vulnerability
		reachable bool
		want      ScoreBreakdown
		total     int
	}{
		{
			name:      "critical with every factor",
			v:         graph.Vulnerability{Severity: graph.SeverityCritical, PackageName: "lodash", IntroducedByAI: true},
			reachable: true,
			want:      ScoreBreakdown{BaseSeverity: 8, ReachabilityBonus: 3, PackageRisk: 1, AIRisk: 2},
			total:     14,
		},
		{
			name:  "unreachable low",
			v:     graph.Vulnerability{Severity: graph.SeverityLow},
			want:  ScoreBreakdown{BaseSeverity: 1},
			total: 1,
		},
		{
			name:      "reachable medium",
			v:         graph.Vulnerability{Severity: graph.SeverityMedium},
			reachable: true,
			want:      ScoreBreakdown{BaseSeverity: 3, ReachabilityBonus: 3},
			total:     6,
		},
		{
			name:  "high with package",
			v:     graph.Vulnerability{Severity: graph.SeverityHigh, PackageName: "pkg"},
			want:  ScoreBreakdown{BaseSeverity: 6, PackageRisk: 1},
			total: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreBreakdownFor(tt.v, tt.reachable)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.total, TotalScore(got))
		})
	}
}

func TestScoreMonotonic(t *testing.T) {
	prev := -1
	for _, sev := range graph.Severities {
		v := graph.Vulnerability{Severity: sev}
		unreachable := TotalScore(ScoreBreakdownFor(v, false))
		reachable := TotalScore(ScoreBreakdownFor(v, true))

		if reachable <= unreachable {
			t.Errorf("%s: reachable score %d not above unreachable %d", sev, reachable, unreachable)
		}
		if unreachable <= prev {
			t.Errorf("%s: score %d not above lower severity %d", sev, unreachable, prev)
		}
		prev = unreachable

		withPkg := v
		withPkg.PackageName = "pkg"
		assert.GreaterOrEqual(t, TotalScore(ScoreBreakdownFor(withPkg, false)), unreachable)
	}
}

func TestCustomFactors(t *testing.T) {
	f := DefaultScoringFactors()
	f.ReachabilityBonus = 10
	b := f.Breakdown(graph.Vulnerability{Severity: graph.SeverityHigh}, true)
	assert.Equal(t, 16, b.Total())
}

func TestExploitDifficulty(t *testing.T) {
	tests := []struct {
		length int
		want   Difficulty
	}{
		{1, DifficultyLow},
		{3, DifficultyLow},
		{4, DifficultyMedium},
		{6, DifficultyMedium},
		{7, DifficultyHigh},
		{20, DifficultyHigh},
	}
	for _, tt := range tests {
		if got := ExploitDifficultyFor(tt.length); got != tt.want {
			t.Errorf("ExploitDifficultyFor(%d) = %s, want %s", tt.length, got, tt.want)
		}
	}
}
