package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abramin/callrisk/internal/graph"
)

func TestConnectedComponentsPartition(t *testing.T) {
	st := buildStore(t,
		[]string{"*A", "B", "C", "D", "E", "F", "G"},
		[][2]string{{"A", "B"}, {"C", "B"}, {"D", "E"}, {"E", "D"}, {"F", "F"}},
	)

	components := ConnectedComponents(st)
	require.Len(t, components, 4)

	seen := make(map[graph.FunctionID]int)
	for _, c := range components {
		for _, id := range c {
			seen[id]++
		}
	}
	assert.Len(t, seen, st.Len())
	for id, n := range seen {
		assert.Equal(t, 1, n, "function %s", id)
	}
}

func TestConnectedComponentsOrder(t *testing.T) {
	st := buildStore(t,
		[]string{"X", "*A", "B", "C"},
		[][2]string{{"A", "B"}, {"A", "C"}},
	)

	components := ConnectedComponents(st)
	assert.Equal(t, [][]graph.FunctionID{{"X"}, {"A", "C", "B"}}, components)
}

func TestComponentReportChainAndIsolated(t *testing.T) {
	st := buildStore(t,
		[]string{"*A", "B", "C", "D", "E", "F"},
		[][2]string{{"A", "B"}, {"B", "C"}, {"C", "D"}, {"D", "E"}},
		vuln("V1", "C", graph.SeverityHigh),
		vuln("V2", "F", graph.SeverityCritical),
	)

	got := New().ComponentReport(st)

	assert.Equal(t, 2, got.TotalComponents)
	assert.Equal(t, MainComponent{Size: 5, EntryPoints: 1, Vulnerabilities: 1}, got.MainComponent)
	assert.Equal(t, []IsolatedComponent{{
		Functions:       []graph.FunctionID{"F"},
		Vulnerabilities: []string{"V2"},
		RiskLevel:       graph.SeverityCritical,
	}}, got.IsolatedComponents)
	assert.Equal(t, []graph.FunctionID{"F"}, got.DeadCode)
	assert.Equal(t, SecurityImpact{
		ReachableVulnerabilities: 1,
		IsolatedVulnerabilities:  1,
		DeadCodeFunctions:        1,
		MainComponentCoverage:    83,
	}, got.SecurityImpact)
}

func TestComponentReportSingleNode(t *testing.T) {
	st := buildStore(t, []string{"*A"}, nil)

	got := New().ComponentReport(st)
	assert.Equal(t, 1, got.TotalComponents)
	assert.Empty(t, got.DeadCode)
	assert.Empty(t, got.IsolatedComponents)
	assert.Equal(t, 100, got.SecurityImpact.MainComponentCoverage)
	assert.Equal(t, 1, got.MainComponent.EntryPoints)
}

func TestComponentReportMainSelection(t *testing.T) {
	// X comes first but has no entry point, so the later component wins.
	st := buildStore(t,
		[]string{"X", "*A", "B", "C"},
		[][2]string{{"A", "B"}, {"B", "C"}},
	)

	got := New().ComponentReport(st)
	assert.Equal(t, 3, got.MainComponent.Size)
	assert.Equal(t, 75, got.SecurityImpact.MainComponentCoverage)
	require.Len(t, got.IsolatedComponents, 1)
	assert.Equal(t, []graph.FunctionID{"X"}, got.IsolatedComponents[0].Functions)

	// Equal entry counts fall back to size.
	st = buildStore(t,
		[]string{"P", "Q", "R", "S", "T"},
		[][2]string{{"P", "Q"}, {"R", "S"}, {"S", "T"}},
	)
	got = New().ComponentReport(st)
	assert.Equal(t, 3, got.MainComponent.Size)
	assert.Equal(t, 0, got.MainComponent.EntryPoints)
	assert.Equal(t, 60, got.SecurityImpact.MainComponentCoverage)
	assert.Len(t, got.DeadCode, 5)
}

func TestIsolatedRiskLevel(t *testing.T) {
	st := buildStore(t,
		[]string{"*A", "X", "Y"},
		nil,
		vuln("V1", "X", graph.SeverityLow),
		vuln("V2", "X", graph.SeverityCritical),
		vuln("V3", "X", graph.SeverityMedium),
	)

	got := New().ComponentReport(st)
	require.Len(t, got.IsolatedComponents, 2)

	x := got.IsolatedComponents[0]
	assert.Equal(t, []string{"V1", "V2", "V3"}, x.Vulnerabilities)
	assert.Equal(t, graph.SeverityCritical, x.RiskLevel)

	y := got.IsolatedComponents[1]
	assert.Empty(t, y.Vulnerabilities)
	assert.Equal(t, graph.SeverityLow, y.RiskLevel)

	assert.Equal(t, 3, got.SecurityImpact.IsolatedVulnerabilities)
	assert.Equal(t, 0, got.SecurityImpact.ReachableVulnerabilities)
}
