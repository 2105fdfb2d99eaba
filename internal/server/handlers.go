package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/abramin/callrisk/internal/analysis"
	"github.com/abramin/callrisk/internal/graph"
	"github.com/abramin/callrisk/internal/ingest"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	OK   bool       `json:"ok"`
	Data healthData `json:"data"`
}

type healthData struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Uptime    float64      `json:"uptime"`
	Graph     *graph.Stats `json:"graph,omitempty"`
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	data := healthData{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.started).Seconds(),
	}
	if st, err := s.workspace.Current(); err == nil {
		stats := st.Stats()
		data.Graph = &stats
	}
	writeJSON(w, http.StatusOK, healthResponse{OK: true, Data: data})
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// handleLoadGraph handles POST /graph
func (s *Server) handleLoadGraph(w http.ResponseWriter, r *http.Request) {
	var req ingest.GraphRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	st, err := s.workspace.LoadGraph(req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingest.NewGraphLoaded(st))
}

// handleGetGraph handles GET /graph
func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	st, err := s.workspace.Current()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingest.StoreGraph(st))
}

// handleLoadVulns handles POST /vulns
func (s *Server) handleLoadVulns(w http.ResponseWriter, r *http.Request) {
	var dtos []ingest.VulnerabilityDTO
	if err := decodeBody(w, r, &dtos); err != nil {
		badRequest(w, err.Error())
		return
	}

	n, err := s.workspace.ReplaceVulnerabilities(dtos)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingest.VulnerabilitiesLoaded{OK: true, Loaded: n})
}

// handleGetVulns handles GET /vulns
func (s *Server) handleGetVulns(w http.ResponseWriter, r *http.Request) {
	st, err := s.workspace.Current()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingest.VulnerabilitiesResponse{
		Vulnerabilities: ingest.FromVulnerabilities(st.Vulnerabilities()),
	})
}

// handleRisks handles GET /risks
func (s *Server) handleRisks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := analysis.RiskOptions{
		ReachableOnly: q.Get("reachable_only") != "false",
	}

	var err error
	if opts.MinSeverity, err = severityParam(q.Get("min_severity"), ""); err != nil {
		badRequest(w, err.Error())
		return
	}
	if opts.Limit, err = positiveIntParam(q.Get("limit"), "limit", s.cfg.Analysis.RiskLimit); err != nil {
		badRequest(w, err.Error())
		return
	}

	st, err := s.workspace.Current()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewRisksResponse(s.analyzer.Risks(st, opts)))
}

// traceOptions parses all_paths and limit.
func (s *Server) traceOptions(r *http.Request) (analysis.TraceOptions, error) {
	q := r.URL.Query()
	limit, err := positiveIntParam(q.Get("limit"), "limit", s.cfg.Analysis.MaxTracePaths)
	if err != nil {
		return analysis.TraceOptions{}, err
	}
	return analysis.TraceOptions{AllPaths: q.Get("all_paths") == "true", Limit: limit}, nil
}

// handleFunctionTrace handles GET /functions/{id}/trace
func (s *Server) handleFunctionTrace(w http.ResponseWriter, r *http.Request) {
	opts, err := s.traceOptions(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	st, err := s.workspace.Current()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	t, err := s.analyzer.TraceFunction(st, graph.FunctionID(chi.URLParam(r, "id")), opts)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewTraceResponse(t))
}

// handleVulnTrace handles GET /vulns/{id}/trace
func (s *Server) handleVulnTrace(w http.ResponseWriter, r *http.Request) {
	st, err := s.workspace.Current()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	vt, err := s.analyzer.TraceVulnerability(st, chi.URLParam(r, "id"), analysis.TraceOptions{})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewVulnerabilityTraceResponse(vt))
}

// handleComponents handles GET /analytics/components
func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	st, err := s.workspace.Current()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewComponentsResponse(s.analyzer.ComponentReport(st)))
}

// handleAttackPaths handles GET /analytics/attack-paths
func (s *Server) handleAttackPaths(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		opts analysis.AttackPathOptions
		err  error
	)
	if opts.MaxPaths, err = positiveIntParam(q.Get("max_paths"), "max_paths", s.cfg.Analysis.MaxPaths); err != nil {
		badRequest(w, err.Error())
		return
	}
	if opts.MinSeverity, err = severityParam(q.Get("min_severity"), graph.Severity(s.cfg.Analysis.MinSeverity)); err != nil {
		badRequest(w, err.Error())
		return
	}
	if opts.MaxPathLength, err = positiveIntParam(q.Get("max_path_length"), "max_path_length", 0); err != nil {
		badRequest(w, err.Error())
		return
	}

	st, err := s.workspace.Current()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewAttackPathsResponse(s.analyzer.CriticalAttackPaths(st, opts)))
}

// positiveIntParam parses an optional positive integer query parameter.
func positiveIntParam(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

// severityParam parses an optional severity query parameter.
func severityParam(raw string, def graph.Severity) (graph.Severity, error) {
	if raw == "" {
		return def, nil
	}
	sev, err := graph.ParseSeverity(raw)
	if err != nil {
		return "", fmt.Errorf("min_severity: %w", err)
	}
	return sev, nil
}
