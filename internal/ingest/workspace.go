package ingest

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/abramin/callrisk/internal/graph"
)

// Observer receives ingestion outcomes.
type Observer interface {
	IngestionResult(kind string, err error)
	SetGraph(s graph.Stats)
}

type nopObserver struct{}

func (nopObserver) IngestionResult(string, error) {}
func (nopObserver) SetGraph(graph.Stats)          {}

// Workspace holds the current graph store.
//
// Loading a graph swaps in a fully built store, dropping the previous store
// and its vulnerabilities; concurrent loads are last-write-wins. Readers call
// Current once per request and work on that snapshot.
type Workspace struct {
	current   atomic.Pointer[graph.Store]
	validator *Validator
	logger    *zap.Logger
	observer  Observer
}

// NewWorkspace creates an empty workspace. logger and observer may be nil.
func NewWorkspace(v *Validator, logger *zap.Logger, observer Observer) *Workspace {
	if v == nil {
		v = NewValidator(DefaultLimits())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Workspace{validator: v, logger: logger, observer: observer}
}

// Current returns the loaded store, or graph.ErrNoGraph when none is loaded.
func (w *Workspace) Current() (*graph.Store, error) {
	st := w.current.Load()
	if st == nil {
		return nil, graph.ErrNoGraph
	}
	return st, nil
}

// LoadGraph validates req, builds a store from it and makes it current.
func (w *Workspace) LoadGraph(req GraphRequest) (*graph.Store, error) {
	if err := w.validator.ValidateGraph(&req); err != nil {
		w.observer.IngestionResult("graph", err)
		return nil, err
	}
	return w.Load(ToGraph(req))
}

// Load builds a store from an already mapped graph and makes it current.
func (w *Workspace) Load(g graph.Graph) (*graph.Store, error) {
	st, err := graph.Build(g)
	w.observer.IngestionResult("graph", err)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}

	w.current.Store(st)
	stats := st.Stats()
	w.observer.SetGraph(stats)
	w.logger.Info("graph loaded",
		zap.String("revision", stats.Revision),
		zap.Int("functions", stats.FunctionCount),
		zap.Int("edges", stats.EdgeCount),
		zap.Int("entry_points", stats.EntrypointCount),
	)
	return st, nil
}

// ReplaceVulnerabilities validates dtos and replaces the vulnerability set of
// the current store. The replacement is all or nothing.
func (w *Workspace) ReplaceVulnerabilities(dtos []VulnerabilityDTO) (int, error) {
	if err := w.validator.ValidateVulnerabilities(dtos); err != nil {
		w.observer.IngestionResult("vulnerabilities", err)
		return 0, err
	}
	return w.SetVulnerabilities(ToVulnerabilities(dtos))
}

// SetVulnerabilities replaces the vulnerability set of the current store after
// checking that ids are unique and every function exists.
func (w *Workspace) SetVulnerabilities(vulns []graph.Vulnerability) (n int, err error) {
	defer func() { w.observer.IngestionResult("vulnerabilities", err) }()

	st, err := w.Current()
	if err != nil {
		return 0, err
	}
	if err := CheckVulnerabilities(st, vulns); err != nil {
		return 0, err
	}

	st.ReplaceVulnerabilities(vulns)
	w.observer.SetGraph(st.Stats())
	w.logger.Info("vulnerabilities replaced",
		zap.String("revision", st.Revision()),
		zap.Int("vulnerabilities", len(vulns)),
	)
	return len(vulns), nil
}

// CheckVulnerabilities verifies vulns against st: duplicate ids are a conflict,
// unknown functions a validation error.
func CheckVulnerabilities(st *graph.Store, vulns []graph.Vulnerability) error {
	seen := make(map[string]struct{}, len(vulns))
	var dups, unknown []string
	for _, v := range vulns {
		if _, ok := seen[v.ID]; ok {
			dups = append(dups, v.ID)
		}
		seen[v.ID] = struct{}{}
		if !st.HasFunction(v.FuncID) {
			unknown = append(unknown, string(v.FuncID))
		}
		if !v.Severity.Valid() {
			return &graph.ValidationError{Message: "unknown severity", IDs: []string{v.ID}}
		}
	}
	if len(dups) > 0 {
		return &graph.ConflictError{Kind: "vulnerability", IDs: dups}
	}
	if len(unknown) > 0 {
		return &graph.ValidationError{Message: "vulnerabilities reference unknown functions", IDs: unknown}
	}
	return nil
}
