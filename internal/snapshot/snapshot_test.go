package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abramin/callrisk/internal/analysis"
	"github.com/abramin/callrisk/internal/graph"
)

func testStore(t *testing.T) *graph.Store {
	t.Helper()
	st, err := graph.Build(graph.Graph{
		Functions: []graph.Function{
			{ID: "main", Name: "main.main", IsEntrypoint: true},
			{ID: "handler", Name: "api.Handle"},
			{ID: "query", Name: "db.Query"},
			{ID: "orphan", Name: "legacy.Orphan"},
		},
		Edges: []graph.Edge{
			{From: "main", To: "handler"},
			{From: "handler", To: "query"},
		},
	})
	require.NoError(t, err)
	st.ReplaceVulnerabilities([]graph.Vulnerability{
		{ID: "v1", FuncID: "query", Severity: graph.SeverityCritical, CWEID: "CWE-89", PackageName: "lib/sql"},
		{ID: "v2", FuncID: "orphan", Severity: graph.SeverityLow, IntroducedByAI: true},
	})
	return st
}

func openSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := Open(filepath.Join(t.TempDir(), "out", "callrisk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { snap.Close() })
	return snap
}

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snap.db")
	snap, err := Open(path)
	require.NoError(t, err)
	defer snap.Close()

	assert.Equal(t, path, snap.DBPath())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestWriteAndReadBack(t *testing.T) {
	snap := openSnapshot(t)
	st := testStore(t)

	require.NoError(t, snap.Write(st, nil))

	g, err := snap.ReadGraph()
	require.NoError(t, err)
	assert.Equal(t, st.Functions(), g.Functions)
	assert.Equal(t, st.Edges(), g.Edges)

	vulns, err := snap.ReadVulnerabilities()
	require.NoError(t, err)
	assert.Equal(t, st.Vulnerabilities(), vulns)

	rebuilt, err := graph.Build(g)
	require.NoError(t, err)
	assert.Equal(t, st.Len(), rebuilt.Len())
}

func TestWriteRisks(t *testing.T) {
	snap := openSnapshot(t)
	st := testStore(t)
	risks := analysis.New().Risks(st, analysis.RiskOptions{})

	require.NoError(t, snap.Write(st, risks))

	var score int
	var reachable bool
	err := snap.DB().QueryRow("SELECT score, reachable FROM risks WHERE vulnerability_id = ?", "v1").Scan(&score, &reachable)
	require.NoError(t, err)
	assert.True(t, reachable)
	assert.Equal(t, 12, score)

	stats, err := snap.GetStats()
	require.NoError(t, err)
	assert.Equal(t, st.Revision(), stats.Revision)
	assert.Equal(t, 4, stats.FunctionCount)
	assert.Equal(t, 2, stats.CallEdgeCount)
	assert.Equal(t, 2, stats.VulnerabilityCount)
	assert.Equal(t, 2, stats.RiskCount)
	assert.False(t, stats.ExportedAt.IsZero())
}

func TestWriteReplacesPreviousContents(t *testing.T) {
	snap := openSnapshot(t)
	require.NoError(t, snap.Write(testStore(t), nil))

	small, err := graph.Build(graph.Graph{
		Functions: []graph.Function{{ID: "only", Name: "only", IsEntrypoint: true}},
	})
	require.NoError(t, err)
	require.NoError(t, snap.Write(small, nil))

	g, err := snap.ReadGraph()
	require.NoError(t, err)
	assert.Len(t, g.Functions, 1)
	assert.Empty(t, g.Edges)

	vulns, err := snap.ReadVulnerabilities()
	require.NoError(t, err)
	assert.Empty(t, vulns)
}

func TestWriteIsAtomic(t *testing.T) {
	snap := openSnapshot(t)
	st := testStore(t)
	require.NoError(t, snap.Write(st, nil))

	// a risk for an unknown vulnerability violates the foreign key
	bad := []analysis.Risk{{Vulnerability: graph.Vulnerability{ID: "ghost", FuncID: "main", Severity: graph.SeverityLow}}}
	require.Error(t, snap.Write(st, bad))

	stats, err := snap.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 4, stats.FunctionCount)
	assert.Zero(t, stats.RiskCount)
}
