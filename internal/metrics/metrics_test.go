package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abramin/callrisk/internal/graph"
)

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.PathsTruncated()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.PathsTruncation))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PathsTruncation))
}

func TestRecording(t *testing.T) {
	c := New()

	c.ObserveRequest(http.MethodGet, "/risks", http.StatusOK, 10*time.Millisecond)
	c.ObserveRequest(http.MethodGet, "/risks", http.StatusOK, 20*time.Millisecond)
	c.IngestionResult("graph", nil)
	c.IngestionResult("graph", errors.New("bad"))
	c.SetGraph(graph.Stats{FunctionCount: 4, EdgeCount: 3, VulnCount: 2})
	c.ObserveAnalysis("components", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/risks", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.GraphIngestions.WithLabelValues("graph", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.GraphIngestions.WithLabelValues("graph", "error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.GraphFunctions))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.GraphEdges))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Vulnerabilities))
	assert.Equal(t, 1, testutil.CollectAndCount(c.AnalysisDuration))
}

func TestHandler(t *testing.T) {
	c := New()
	c.PathsTruncated()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "callrisk_path_enumeration_truncated_total 1"))
}
