package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abramin/callrisk/internal/config"
	"github.com/abramin/callrisk/internal/ingest"
	"github.com/abramin/callrisk/internal/metrics"
)

const testGraph = `{
  "functions": [
    {"id": "main", "name": "main.main", "is_entrypoint": true},
    {"id": "auth", "name": "auth.Check"},
    {"id": "db", "name": "db.Query"},
    {"id": "util", "name": "util.Format"},
    {"id": "orphan", "name": "legacy.Orphan"}
  ],
  "edges": [
    {"from": "main", "to": "auth"},
    {"from": "auth", "to": "db"},
    {"from": "main", "to": "util"}
  ]
}`

const testVulns = `[
  {"id": "v1", "func_id": "db", "severity": "critical", "cwe_id": "CWE-89", "package_name": "lib/sql"},
  {"id": "v2", "func_id": "orphan", "severity": "high"},
  {"id": "v3", "func_id": "util", "severity": "low"}
]`

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.RateLimit = config.RateLimitConfig{}
	m := metrics.New()
	return New(Deps{Config: cfg, Workspace: ingest.NewWorkspace(nil, nil, m), Metrics: m})
}

func setupLoadedServer(t *testing.T) *Server {
	t.Helper()
	s := setupTestServer(t)
	w := do(t, s, http.MethodPost, "/graph", testGraph)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, s, http.MethodPost, "/vulns", testVulns)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestHandleHealth(t *testing.T) {
	s := setupTestServer(t)

	w := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decode[healthResponse](t, w)
	assert.True(t, resp.OK)
	assert.Equal(t, "ok", resp.Data.Status)
	assert.Nil(t, resp.Data.Graph)

	s = setupLoadedServer(t)
	resp = decode[healthResponse](t, do(t, s, http.MethodGet, "/health", ""))
	require.NotNil(t, resp.Data.Graph)
	assert.Equal(t, 5, resp.Data.Graph.FunctionCount)
}

func TestLoadAndGetGraph(t *testing.T) {
	s := setupTestServer(t)

	w := do(t, s, http.MethodPost, "/graph", testGraph)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	loaded := decode[ingest.GraphLoaded](t, w)
	assert.True(t, loaded.OK)
	assert.Equal(t, 5, loaded.Functions)
	assert.Equal(t, 3, loaded.Edges)
	assert.Equal(t, 1, loaded.EntryPoints)
	assert.NotEmpty(t, loaded.Revision)

	w = do(t, s, http.MethodGet, "/graph", "")
	require.Equal(t, http.StatusOK, w.Code)
	g := decode[ingest.GraphRequest](t, w)
	assert.Len(t, g.Functions, 5)
	assert.Len(t, g.Edges, 3)
}

func TestGraphNotLoaded(t *testing.T) {
	s := setupTestServer(t)

	for _, target := range []string{
		"/graph",
		"/vulns",
		"/risks",
		"/functions/main/trace",
		"/vulns/v1/trace",
		"/analytics/components",
		"/analytics/attack-paths",
	} {
		t.Run(target, func(t *testing.T) {
			w := do(t, s, http.MethodGet, target, "")
			require.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode[errorResponse](t, w)
			assert.Equal(t, "GRAPH_NOT_LOADED", resp.Code)
		})
	}

	w := do(t, s, http.MethodPost, "/vulns", testVulns)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "GRAPH_NOT_LOADED", decode[errorResponse](t, w).Code)
}

func TestLoadGraphValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"functions": [`},
		{"unknown field", `{"functions": [{"id": "a", "name": "a"}], "extra": 1}`},
		{"no functions", `{"functions": [], "edges": []}`},
		{"bad id", `{"functions": [{"id": "a b", "name": "a"}]}`},
		{"unknown endpoint", `{"functions": [{"id": "a", "name": "a"}], "edges": [{"from": "a", "to": "z"}]}`},
		{"self loop", `{"functions": [{"id": "a", "name": "a"}], "edges": [{"from": "a", "to": "a"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t)
			w := do(t, s, http.MethodPost, "/graph", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, "VALIDATION_ERROR", decode[errorResponse](t, w).Code)

			// a rejected upload leaves no graph behind
			w = do(t, s, http.MethodGet, "/graph", "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestLoadGraphDropsVulnerabilities(t *testing.T) {
	s := setupLoadedServer(t)

	w := do(t, s, http.MethodPost, "/graph", testGraph)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[ingest.VulnerabilitiesResponse](t, do(t, s, http.MethodGet, "/vulns", ""))
	assert.Empty(t, resp.Vulnerabilities)
}

func TestLoadVulnerabilities(t *testing.T) {
	s := setupTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/graph", testGraph).Code)

	w := do(t, s, http.MethodPost, "/vulns", testVulns)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	loaded := decode[ingest.VulnerabilitiesLoaded](t, w)
	assert.True(t, loaded.OK)
	assert.Equal(t, 3, loaded.Loaded)

	resp := decode[ingest.VulnerabilitiesResponse](t, do(t, s, http.MethodGet, "/vulns", ""))
	require.Len(t, resp.Vulnerabilities, 3)
	assert.Equal(t, "v1", resp.Vulnerabilities[0].ID)
	assert.Equal(t, "CWE-89", resp.Vulnerabilities[0].CWEID)
}

func TestLoadVulnerabilitiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"duplicate id", `[{"id": "v1", "func_id": "db", "severity": "low"}, {"id": "v1", "func_id": "main", "severity": "low"}]`, http.StatusConflict, "CONFLICT"},
		{"unknown function", `[{"id": "v1", "func_id": "nope", "severity": "low"}]`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad severity", `[{"id": "v1", "func_id": "db", "severity": "urgent"}]`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not an array", `{"id": "v1"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupLoadedServer(t)
			w := do(t, s, http.MethodPost, "/vulns", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[errorResponse](t, w).Code)

			// the previous set survives a rejected upload
			resp := decode[ingest.VulnerabilitiesResponse](t, do(t, s, http.MethodGet, "/vulns", ""))
			assert.Len(t, resp.Vulnerabilities, 3)
		})
	}
}

func TestHandleRisks(t *testing.T) {
	s := setupLoadedServer(t)

	w := do(t, s, http.MethodGet, "/risks", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[RisksResponse](t, w)
	require.Len(t, resp.Risks, 2)

	top := resp.Risks[0]
	assert.Equal(t, "v1", top.ID)
	assert.Equal(t, "db.Query", top.FunctionName)
	assert.True(t, top.Reachable)
	assert.Equal(t, 12, top.Score)
	assert.Equal(t, ScoreBreakdownDTO{BaseSeverity: 8, ReachabilityBonus: 3, PackageRisk: 1}, top.ScoreBreakdown)
	assert.Equal(t, "lib/sql", top.Metadata.PackageName)
	assert.Equal(t, "v3", resp.Risks[1].ID)
}

func TestHandleRisksFilters(t *testing.T) {
	s := setupLoadedServer(t)

	resp := decode[RisksResponse](t, do(t, s, http.MethodGet, "/risks?reachable_only=false", ""))
	require.Len(t, resp.Risks, 3)
	assert.Equal(t, []string{"v1", "v2", "v3"}, riskIDs(resp))
	assert.False(t, resp.Risks[1].Reachable)

	resp = decode[RisksResponse](t, do(t, s, http.MethodGet, "/risks?reachable_only=false&min_severity=high", ""))
	assert.Equal(t, []string{"v1", "v2"}, riskIDs(resp))

	resp = decode[RisksResponse](t, do(t, s, http.MethodGet, "/risks?limit=1", ""))
	assert.Equal(t, []string{"v1"}, riskIDs(resp))
}

func riskIDs(resp RisksResponse) []string {
	out := make([]string, 0, len(resp.Risks))
	for _, r := range resp.Risks {
		out = append(out, r.ID)
	}
	return out
}

func TestQueryValidation(t *testing.T) {
	s := setupLoadedServer(t)

	for _, target := range []string{
		"/risks?limit=0",
		"/risks?limit=abc",
		"/risks?min_severity=urgent",
		"/functions/db/trace?limit=-1",
		"/analytics/attack-paths?max_paths=0",
		"/analytics/attack-paths?max_path_length=x",
		"/analytics/attack-paths?min_severity=severe",
	} {
		t.Run(target, func(t *testing.T) {
			w := do(t, s, http.MethodGet, target, "")
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_ERROR", decode[errorResponse](t, w).Code)
		})
	}
}

func TestHandleFunctionTrace(t *testing.T) {
	s := setupLoadedServer(t)

	w := do(t, s, http.MethodGet, "/functions/db/trace", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[TraceResponse](t, w)
	assert.Equal(t, "db", resp.FunctionID)
	assert.True(t, resp.Reachable)
	assert.Equal(t, []string{"main", "auth", "db"}, resp.ShortestPath)
	require.NotNil(t, resp.PathLength)
	assert.Equal(t, 3, *resp.PathLength)
	require.NotNil(t, resp.TotalPathsAvailable)
	assert.Equal(t, 1, *resp.TotalPathsAvailable)
	assert.Nil(t, resp.AllPaths)

	resp = decode[TraceResponse](t, do(t, s, http.MethodGet, "/functions/db/trace?all_paths=true", ""))
	assert.Equal(t, [][]string{{"main", "auth", "db"}}, resp.AllPaths)
	require.NotNil(t, resp.ShortestPathLength)
	assert.Equal(t, 3, *resp.ShortestPathLength)
	assert.Nil(t, resp.ShortestPath)

	resp = decode[TraceResponse](t, do(t, s, http.MethodGet, "/functions/orphan/trace", ""))
	assert.False(t, resp.Reachable)
	assert.Nil(t, resp.ShortestPath)
	assert.Nil(t, resp.PathLength)
}

func TestHandleVulnTrace(t *testing.T) {
	s := setupLoadedServer(t)

	w := do(t, s, http.MethodGet, "/vulns/v1/trace", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[TraceResponse](t, w)
	assert.Equal(t, "v1", resp.VulnerabilityID)
	assert.Equal(t, "db", resp.FunctionID)
	assert.True(t, resp.Reachable)
	require.NotNil(t, resp.Score)
	assert.Equal(t, 12, *resp.Score)
	assert.Empty(t, resp.Error)

	resp = decode[TraceResponse](t, do(t, s, http.MethodGet, "/vulns/v2/trace", ""))
	assert.False(t, resp.Reachable)
	assert.NotEmpty(t, resp.Error)
	require.NotNil(t, resp.Score)
	assert.Equal(t, 6, *resp.Score)
}

func TestTraceNotFound(t *testing.T) {
	s := setupLoadedServer(t)

	for _, target := range []string{"/functions/missing/trace", "/vulns/missing/trace"} {
		w := do(t, s, http.MethodGet, target, "")
		require.Equal(t, http.StatusNotFound, w.Code, target)
		assert.Equal(t, "NOT_FOUND", decode[errorResponse](t, w).Code)
	}
}

func TestHandleComponents(t *testing.T) {
	s := setupLoadedServer(t)

	w := do(t, s, http.MethodGet, "/analytics/components", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[ComponentsResponse](t, w)

	assert.Equal(t, 2, resp.TotalComponents)
	assert.Equal(t, MainComponentDTO{Size: 4, EntryPoints: 1, Vulnerabilities: 2}, resp.MainComponent)
	require.Len(t, resp.IsolatedComponents, 1)
	assert.Equal(t, []string{"orphan"}, resp.IsolatedComponents[0].Functions)
	assert.Equal(t, []string{"v2"}, resp.IsolatedComponents[0].Vulnerabilities)
	assert.EqualValues(t, "high", resp.IsolatedComponents[0].RiskLevel)
	assert.Equal(t, 2, resp.SecurityImpact.ReachableVulnerabilities)
	assert.Equal(t, 1, resp.SecurityImpact.IsolatedVulnerabilities)
	assert.Equal(t, 80, resp.SecurityImpact.MainComponentCoverage)
}

func TestHandleAttackPaths(t *testing.T) {
	s := setupLoadedServer(t)

	w := do(t, s, http.MethodGet, "/analytics/attack-paths", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[AttackPathsResponse](t, w)

	require.Len(t, resp.CriticalPaths, 1)
	p := resp.CriticalPaths[0]
	assert.Equal(t, "v1", p.VulnerabilityID)
	assert.Equal(t, []string{"main", "auth", "db"}, p.Path)
	assert.Equal(t, 3, p.PathLength)
	assert.True(t, p.EntryPointAccessible)
	assert.Equal(t, 1, resp.Summary.TotalCriticalPaths)
	require.NotNil(t, resp.Summary.MostVulnerableEntryPoint)
	assert.Equal(t, "main", *resp.Summary.MostVulnerableEntryPoint)

	_, err := time.Parse(time.RFC3339Nano, resp.GeneratedAt)
	assert.NoError(t, err)

	resp = decode[AttackPathsResponse](t, do(t, s, http.MethodGet, "/analytics/attack-paths?min_severity=low", ""))
	assert.Len(t, resp.CriticalPaths, 2)

	resp = decode[AttackPathsResponse](t, do(t, s, http.MethodGet, "/analytics/attack-paths?max_path_length=2", ""))
	assert.Empty(t, resp.CriticalPaths)
	assert.Nil(t, resp.Summary.MostVulnerableEntryPoint)
}

func TestRouteErrors(t *testing.T) {
	s := setupTestServer(t)

	w := do(t, s, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorResponse](t, w).Code)

	w = do(t, s, http.MethodDelete, "/graph", "")
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", decode[errorResponse](t, w).Code)
}

func TestRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 1}
	s := New(Deps{Config: cfg, Workspace: ingest.NewWorkspace(nil, nil, nil)})

	first := do(t, s, http.MethodGet, "/risks", "")
	assert.NotEqual(t, http.StatusTooManyRequests, first.Code)

	second := do(t, s, http.MethodGet, "/risks", "")
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decode[errorResponse](t, second).Code)

	// only analysis routes are limited
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", "").Code)
}

func TestCORS(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/risks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupLoadedServer(t)
	do(t, s, http.MethodGet, "/risks", "")

	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "callrisk_http_requests_total")
	assert.Contains(t, body, `route="/risks"`)
	assert.Contains(t, body, "callrisk_graph_functions 5")
}

func TestServeAndShutdown(t *testing.T) {
	s := setupTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	resp, err := http.Post("http://"+ln.Addr().String()+"/graph", "application/json", bytes.NewBufferString(testGraph))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
