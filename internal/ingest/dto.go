// Package ingest is the boundary between wire representations and the graph
// domain: request DTOs, their validation, mapping to graph types and the
// Workspace holding the current store.
package ingest

import "github.com/abramin/callrisk/internal/graph"

// FunctionDTO is a function as it appears on the wire.
type FunctionDTO struct {
	ID           string `json:"id" yaml:"id" validate:"required,max=100,funcid"`
	Name         string `json:"name" yaml:"name" validate:"required,max=200"`
	IsEntrypoint bool   `json:"is_entrypoint" yaml:"is_entrypoint"`
}

// EdgeDTO is a call edge as it appears on the wire.
type EdgeDTO struct {
	From string `json:"from" yaml:"from" validate:"required,max=100,funcid"`
	To   string `json:"to" yaml:"to" validate:"required,max=100,funcid"`
}

// GraphRequest is the body of a graph upload.
type GraphRequest struct {
	Functions []FunctionDTO `json:"functions" yaml:"functions" validate:"required,min=1,dive"`
	Edges     []EdgeDTO     `json:"edges" yaml:"edges" validate:"dive"`
}

// VulnerabilityDTO is a vulnerability as it appears on the wire.
type VulnerabilityDTO struct {
	ID             string `json:"id" yaml:"id" validate:"required,max=100,funcid"`
	FuncID         string `json:"func_id" yaml:"func_id" validate:"required,max=100,funcid"`
	Severity       string `json:"severity" yaml:"severity" validate:"required,oneof=low medium high critical"`
	CWEID          string `json:"cwe_id,omitempty" yaml:"cwe_id,omitempty" validate:"omitempty,max=50"`
	PackageName    string `json:"package_name,omitempty" yaml:"package_name,omitempty" validate:"omitempty,max=200"`
	IntroducedByAI bool   `json:"introduced_by_ai,omitempty" yaml:"introduced_by_ai,omitempty"`
}

// GraphLoaded is the response to a graph upload.
type GraphLoaded struct {
	OK          bool   `json:"ok"`
	Revision    string `json:"revision"`
	Functions   int    `json:"functions"`
	Edges       int    `json:"edges"`
	EntryPoints int    `json:"entry_points"`
}

// NewGraphLoaded describes a freshly loaded store.
func NewGraphLoaded(st *graph.Store) GraphLoaded {
	s := st.Stats()
	return GraphLoaded{
		OK:          true,
		Revision:    s.Revision,
		Functions:   s.FunctionCount,
		Edges:       s.EdgeCount,
		EntryPoints: s.EntrypointCount,
	}
}

// VulnerabilitiesLoaded is the response to a vulnerability upload.
type VulnerabilitiesLoaded struct {
	OK     bool `json:"ok"`
	Loaded int  `json:"vulnerabilities_loaded"`
}

// VulnerabilitiesResponse lists the current vulnerabilities.
type VulnerabilitiesResponse struct {
	Vulnerabilities []VulnerabilityDTO `json:"vulnerabilities"`
}

// ToGraph maps a request to the domain graph.
func ToGraph(req GraphRequest) graph.Graph {
	g := graph.Graph{
		Functions: make([]graph.Function, 0, len(req.Functions)),
		Edges:     make([]graph.Edge, 0, len(req.Edges)),
	}
	for _, f := range req.Functions {
		g.Functions = append(g.Functions, graph.Function{
			ID:           graph.FunctionID(f.ID),
			Name:         f.Name,
			IsEntrypoint: f.IsEntrypoint,
		})
	}
	for _, e := range req.Edges {
		g.Edges = append(g.Edges, graph.Edge{From: graph.FunctionID(e.From), To: graph.FunctionID(e.To)})
	}
	return g
}

// FromGraph maps a domain graph back to its wire form.
func FromGraph(g graph.Graph) GraphRequest {
	req := GraphRequest{
		Functions: make([]FunctionDTO, 0, len(g.Functions)),
		Edges:     make([]EdgeDTO, 0, len(g.Edges)),
	}
	for _, f := range g.Functions {
		req.Functions = append(req.Functions, FunctionDTO{ID: string(f.ID), Name: f.Name, IsEntrypoint: f.IsEntrypoint})
	}
	for _, e := range g.Edges {
		req.Edges = append(req.Edges, EdgeDTO{From: string(e.From), To: string(e.To)})
	}
	return req
}

// StoreGraph returns the wire form of the graph held by st.
func StoreGraph(st *graph.Store) GraphRequest {
	return FromGraph(graph.Graph{Functions: st.Functions(), Edges: st.Edges()})
}

// ToVulnerabilities maps wire vulnerabilities to the domain.
func ToVulnerabilities(dtos []VulnerabilityDTO) []graph.Vulnerability {
	out := make([]graph.Vulnerability, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, graph.Vulnerability{
			ID:             d.ID,
			FuncID:         graph.FunctionID(d.FuncID),
			Severity:       graph.Severity(d.Severity),
			CWEID:          d.CWEID,
			PackageName:    d.PackageName,
			IntroducedByAI: d.IntroducedByAI,
		})
	}
	return out
}

// FromVulnerabilities maps domain vulnerabilities to the wire.
func FromVulnerabilities(vulns []graph.Vulnerability) []VulnerabilityDTO {
	out := make([]VulnerabilityDTO, 0, len(vulns))
	for _, v := range vulns {
		out = append(out, FromVulnerability(v))
	}
	return out
}

// FromVulnerability maps one domain vulnerability to the wire.
func FromVulnerability(v graph.Vulnerability) VulnerabilityDTO {
	return VulnerabilityDTO{
		ID:             v.ID,
		FuncID:         string(v.FuncID),
		Severity:       string(v.Severity),
		CWEID:          v.CWEID,
		PackageName:    v.PackageName,
		IntroducedByAI: v.IntroducedByAI,
	}
}
