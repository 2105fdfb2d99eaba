package server

import (
	"time"

	"github.com/abramin/callrisk/internal/analysis"
	"github.com/abramin/callrisk/internal/graph"
)

// ScoreBreakdownDTO is the wire form of analysis.ScoreBreakdown.
type ScoreBreakdownDTO struct {
	BaseSeverity      int `json:"base_severity"`
	ReachabilityBonus int `json:"reachability_bonus"`
	PackageRisk       int `json:"package_risk"`
	AIRisk            int `json:"ai_risk"`
}

// RiskMetadata carries optional vulnerability attributes.
type RiskMetadata struct {
	PackageName    string `json:"package_name,omitempty"`
	IntroducedByAI bool   `json:"introduced_by_ai,omitempty"`
}

// RiskDTO is one entry of the risk listing.
type RiskDTO struct {
	ID             string            `json:"id"`
	FunctionID     string            `json:"function_id"`
	FunctionName   string            `json:"function_name"`
	Severity       graph.Severity    `json:"severity"`
	CWE            string            `json:"cwe,omitempty"`
	Reachable      bool              `json:"reachable"`
	Score          int               `json:"score"`
	ScoreBreakdown ScoreBreakdownDTO `json:"score_breakdown"`
	Metadata       RiskMetadata      `json:"metadata"`
}

// RisksResponse is the body of GET /risks.
type RisksResponse struct {
	Risks []RiskDTO `json:"risks"`
}

// TraceResponse is the body of the trace endpoints. Optional fields are
// omitted when they do not apply to the trace mode.
type TraceResponse struct {
	VulnerabilityID     string         `json:"vulnerability_id,omitempty"`
	FunctionID          string         `json:"function_id"`
	Reachable           bool           `json:"reachable"`
	ShortestPath        []string       `json:"shortest_path,omitempty"`
	PathLength          *int           `json:"path_length,omitempty"`
	TotalPathsAvailable *int           `json:"total_paths_available,omitempty"`
	AllPaths            [][]string     `json:"all_paths,omitempty"`
	ShortestPathLength  *int           `json:"shortest_path_length,omitempty"`
	TotalPaths          *int           `json:"total_paths,omitempty"`
	Truncated           bool           `json:"truncated,omitempty"`
	Severity            graph.Severity `json:"severity,omitempty"`
	Score               *int           `json:"score,omitempty"`
	Error               string         `json:"error,omitempty"`
}

// MainComponentDTO is the wire form of analysis.MainComponent.
type MainComponentDTO struct {
	Size            int `json:"size"`
	EntryPoints     int `json:"entry_points"`
	Vulnerabilities int `json:"vulnerabilities"`
}

// IsolatedComponentDTO is the wire form of analysis.IsolatedComponent.
type IsolatedComponentDTO struct {
	Functions       []string       `json:"functions"`
	Vulnerabilities []string       `json:"vulnerabilities"`
	RiskLevel       graph.Severity `json:"risk_level"`
}

// SecurityImpactDTO is the wire form of analysis.SecurityImpact.
type SecurityImpactDTO struct {
	ReachableVulnerabilities int `json:"reachable_vulnerabilities"`
	IsolatedVulnerabilities  int `json:"isolated_vulnerabilities"`
	DeadCodeFunctions        int `json:"dead_code_functions"`
	MainComponentCoverage    int `json:"main_component_coverage"`
}

// ComponentsResponse is the body of GET /analytics/components.
type ComponentsResponse struct {
	TotalComponents    int                    `json:"total_components"`
	MainComponent      MainComponentDTO       `json:"main_component"`
	IsolatedComponents []IsolatedComponentDTO `json:"isolated_components"`
	DeadCode           []string               `json:"dead_code"`
	SecurityImpact     SecurityImpactDTO      `json:"security_impact"`
}

// AttackPathDTO is the wire form of analysis.AttackPath.
type AttackPathDTO struct {
	VulnerabilityID      string              `json:"vulnerability_id"`
	Severity             graph.Severity      `json:"severity"`
	Path                 []string            `json:"path"`
	PathLength           int                 `json:"path_length"`
	RiskScore            int                 `json:"risk_score"`
	ExploitDifficulty    analysis.Difficulty `json:"exploit_difficulty"`
	TotalPaths           int                 `json:"total_paths"`
	EntryPointAccessible bool                `json:"entry_point_accessible"`
}

// AttackPathSummaryDTO is the wire form of analysis.AttackPathSummary.
type AttackPathSummaryDTO struct {
	TotalCriticalPaths       int     `json:"total_critical_paths"`
	ShortestPathLength       int     `json:"shortest_path_length"`
	MostVulnerableEntryPoint *string `json:"most_vulnerable_entry_point"`
	AveragePathLength        int     `json:"average_path_length"`
}

// AttackPathsResponse is the body of GET /analytics/attack-paths.
type AttackPathsResponse struct {
	CriticalPaths []AttackPathDTO      `json:"critical_paths"`
	Summary       AttackPathSummaryDTO `json:"summary"`
	Truncated     bool                 `json:"truncated,omitempty"`
	GeneratedAt   string               `json:"generated_at"`
}

func ids(in []graph.FunctionID) []string {
	out := make([]string, len(in))
	for i, id := range in {
		out[i] = string(id)
	}
	return out
}

func intPtr(v int) *int { return &v }

// NewRisksResponse maps a risk listing to the wire.
func NewRisksResponse(risks []analysis.Risk) RisksResponse {
	resp := RisksResponse{Risks: make([]RiskDTO, 0, len(risks))}
	for _, r := range risks {
		v := r.Vulnerability
		resp.Risks = append(resp.Risks, RiskDTO{
			ID:           v.ID,
			FunctionID:   string(v.FuncID),
			FunctionName: r.FunctionName,
			Severity:     v.Severity,
			CWE:          v.CWEID,
			Reachable:    r.Reachable,
			Score:        r.Score,
			ScoreBreakdown: ScoreBreakdownDTO{
				BaseSeverity:      r.Breakdown.BaseSeverity,
				ReachabilityBonus: r.Breakdown.ReachabilityBonus,
				PackageRisk:       r.Breakdown.PackageRisk,
				AIRisk:            r.Breakdown.AIRisk,
			},
			Metadata: RiskMetadata{PackageName: v.PackageName, IntroducedByAI: v.IntroducedByAI},
		})
	}
	return resp
}

// NewTraceResponse maps a function trace to the wire. Path fields are only
// set for reachable functions.
func NewTraceResponse(t analysis.Trace) TraceResponse {
	resp := TraceResponse{
		FunctionID: string(t.FunctionID),
		Reachable:  t.Reachable,
		Truncated:  t.Truncated,
	}
	if !t.Reachable || t.TotalPaths == 0 {
		return resp
	}

	if t.AllPaths {
		resp.AllPaths = make([][]string, 0, len(t.Paths))
		for _, p := range t.Paths {
			resp.AllPaths = append(resp.AllPaths, ids(p))
		}
		resp.ShortestPathLength = intPtr(t.ShortestPathLength)
		resp.TotalPaths = intPtr(t.TotalPaths)
		return resp
	}

	resp.ShortestPath = ids(t.ShortestPath)
	resp.PathLength = intPtr(t.PathLength)
	resp.TotalPathsAvailable = intPtr(t.TotalPaths)
	return resp
}

// NewVulnerabilityTraceResponse maps a vulnerability trace to the wire.
func NewVulnerabilityTraceResponse(vt analysis.VulnerabilityTrace) TraceResponse {
	resp := NewTraceResponse(vt.Trace)
	resp.VulnerabilityID = vt.Vulnerability.ID
	resp.Severity = vt.Vulnerability.Severity
	resp.Score = intPtr(vt.Score)
	if !vt.Reachable {
		resp.Error = "No path exists from entry points to this function"
	}
	return resp
}

// NewComponentsResponse maps a component report to the wire.
func NewComponentsResponse(c analysis.ComponentAnalysis) ComponentsResponse {
	resp := ComponentsResponse{
		TotalComponents: c.TotalComponents,
		MainComponent: MainComponentDTO{
			Size:            c.MainComponent.Size,
			EntryPoints:     c.MainComponent.EntryPoints,
			Vulnerabilities: c.MainComponent.Vulnerabilities,
		},
		IsolatedComponents: make([]IsolatedComponentDTO, 0, len(c.IsolatedComponents)),
		DeadCode:           ids(c.DeadCode),
		SecurityImpact: SecurityImpactDTO{
			ReachableVulnerabilities: c.SecurityImpact.ReachableVulnerabilities,
			IsolatedVulnerabilities:  c.SecurityImpact.IsolatedVulnerabilities,
			DeadCodeFunctions:        c.SecurityImpact.DeadCodeFunctions,
			MainComponentCoverage:    c.SecurityImpact.MainComponentCoverage,
		},
	}
	for _, iso := range c.IsolatedComponents {
		vulns := iso.Vulnerabilities
		if vulns == nil {
			vulns = []string{}
		}
		resp.IsolatedComponents = append(resp.IsolatedComponents, IsolatedComponentDTO{
			Functions:       ids(iso.Functions),
			Vulnerabilities: vulns,
			RiskLevel:       iso.RiskLevel,
		})
	}
	return resp
}

// NewAttackPathsResponse maps an attack path analysis to the wire.
func NewAttackPathsResponse(a analysis.AttackPathAnalysis) AttackPathsResponse {
	resp := AttackPathsResponse{
		CriticalPaths: make([]AttackPathDTO, 0, len(a.Paths)),
		Summary: AttackPathSummaryDTO{
			TotalCriticalPaths: a.Summary.TotalPaths,
			ShortestPathLength: a.Summary.ShortestPath,
			AveragePathLength:  a.Summary.AveragePathLength,
		},
		Truncated:   a.Truncated,
		GeneratedAt: a.Summary.GeneratedAt.Format(time.RFC3339Nano),
	}
	if ep := a.Summary.MostVulnerableEntryPoint; ep != "" {
		s := string(ep)
		resp.Summary.MostVulnerableEntryPoint = &s
	}
	for _, p := range a.Paths {
		resp.CriticalPaths = append(resp.CriticalPaths, AttackPathDTO{
			VulnerabilityID:      p.VulnerabilityID,
			Severity:             p.Severity,
			Path:                 ids(p.Path),
			PathLength:           p.PathLength,
			RiskScore:            p.RiskScore,
			ExploitDifficulty:    p.ExploitDifficulty,
			TotalPaths:           p.TotalPaths,
			EntryPointAccessible: p.EntryPointAccessible,
		})
	}
	return resp
}
