package analysis

import (
	"math"
	"time"

	"github.com/abramin/callrisk/internal/graph"
)

// MainComponent describes the component holding the most entry points.
type MainComponent struct {
	Size            int
	EntryPoints     int
	Vulnerabilities int
}

// IsolatedComponent is a single function disconnected from the rest of the graph.
type IsolatedComponent struct {
	Functions       []graph.FunctionID
	Vulnerabilities []string
	RiskLevel       graph.Severity
}

// SecurityImpact summarises what the component structure means for risk.
type SecurityImpact struct {
	ReachableVulnerabilities int
	IsolatedVulnerabilities  int // Vulnerabilities on dead code
	DeadCodeFunctions        int
	MainComponentCoverage    int // Percentage of functions in the main component
}

// ComponentAnalysis is the result of ComponentReport.
type ComponentAnalysis struct {
	TotalComponents    int
	MainComponent      MainComponent
	IsolatedComponents []IsolatedComponent
	DeadCode           []graph.FunctionID
	SecurityImpact     SecurityImpact
}

// ComponentReport decomposes st into connected components and reports dead
// code and isolated vulnerable functions.
func (a *Analyzer) ComponentReport(st *graph.Store) ComponentAnalysis {
	start := time.Now()
	defer a.observe("components", start)

	components := ConnectedComponents(st)
	var report ComponentAnalysis
	report.TotalComponents = len(components)
	if len(components) == 0 {
		return report
	}

	entry := make(FunctionSet)
	for _, id := range st.Entrypoints() {
		entry[id] = struct{}{}
	}
	vulnsByFunc := make(map[graph.FunctionID][]graph.Vulnerability)
	vulns := st.Vulnerabilities()
	for _, v := range vulns {
		vulnsByFunc[v.FuncID] = append(vulnsByFunc[v.FuncID], v)
	}

	countEntry := func(c []graph.FunctionID) int {
		n := 0
		for _, id := range c {
			if entry.Has(id) {
				n++
			}
		}
		return n
	}

	mainIdx, mainEntry := 0, countEntry(components[0])
	for i := 1; i < len(components); i++ {
		n := countEntry(components[i])
		if n > mainEntry || (n == mainEntry && len(components[i]) > len(components[mainIdx])) {
			mainIdx, mainEntry = i, n
		}
	}

	mainComp := components[mainIdx]
	mainVulns := 0
	for _, id := range mainComp {
		mainVulns += len(vulnsByFunc[id])
	}
	report.MainComponent = MainComponent{
		Size:            len(mainComp),
		EntryPoints:     mainEntry,
		Vulnerabilities: mainVulns,
	}

	for i, c := range components {
		if i == mainIdx || len(c) != 1 {
			continue
		}
		iso := IsolatedComponent{
			Functions:       []graph.FunctionID{c[0]},
			Vulnerabilities: []string{},
			RiskLevel:       graph.SeverityLow,
		}
		for _, v := range vulnsByFunc[c[0]] {
			iso.Vulnerabilities = append(iso.Vulnerabilities, v.ID)
			if v.Severity.Rank() > iso.RiskLevel.Rank() {
				iso.RiskLevel = v.Severity
			}
		}
		report.IsolatedComponents = append(report.IsolatedComponents, iso)
	}

	reachable := a.finder(st, 0).ReachableSet(st.Entrypoints())
	for _, id := range st.FunctionIDs() {
		if !reachable.Has(id) {
			report.DeadCode = append(report.DeadCode, id)
		}
	}

	impact := SecurityImpact{
		DeadCodeFunctions:     len(report.DeadCode),
		MainComponentCoverage: int(math.Round(float64(len(mainComp)) / float64(st.Len()) * 100)),
	}
	for _, v := range vulns {
		if !st.HasFunction(v.FuncID) {
			continue
		}
		if reachable.Has(v.FuncID) {
			impact.ReachableVulnerabilities++
		} else {
			impact.IsolatedVulnerabilities++
		}
	}
	report.SecurityImpact = impact

	return report
}
