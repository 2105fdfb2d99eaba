package graph

import "fmt"

// FunctionID is a type-safe identifier for functions in the call graph.
type FunctionID string

// Severity represents the severity of a vulnerability.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity from least to most severe.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank orders severities for filtering: low=1 < medium=2 < high=3 < critical=4.
// Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// ParseSeverity converts a severity string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q (want one of low, medium, high, critical)", s)
	}
	return sev, nil
}

// Function is a node of the call graph.
type Function struct {
	ID           FunctionID
	Name         string
	IsEntrypoint bool // Entry points are the sources of every reachability query
}

// Edge is a directed call from one function to another.
type Edge struct {
	From FunctionID
	To   FunctionID
}

// Graph is the ingestion unit a Store is built from.
type Graph struct {
	Functions []Function
	Edges     []Edge
}

// Vulnerability is a known weakness attached to a function.
// Whether it is reachable is computed per query and never stored.
type Vulnerability struct {
	ID             string
	FuncID         FunctionID
	Severity       Severity
	CWEID          string
	PackageName    string
	IntroducedByAI bool
}

// Stats holds counts describing the store contents.
type Stats struct {
	Revision        string `json:"revision"`
	FunctionCount   int    `json:"functions"`
	EdgeCount       int    `json:"edges"`
	EntrypointCount int    `json:"entry_points"`
	VulnCount       int    `json:"vulnerabilities"`
}
