// Package analysis answers security questions over a graph.Store: reachability,
// attack paths, connected components and risk ranking.
package analysis

import (
	"time"

	"go.uber.org/zap"

	"github.com/abramin/callrisk/internal/graph"
)

// Observer receives timing and truncation events from the analyzer.
type Observer interface {
	ObserveAnalysis(name string, d time.Duration)
	PathsTruncated()
}

type nopObserver struct{}

func (nopObserver) ObserveAnalysis(string, time.Duration) {}
func (nopObserver) PathsTruncated()                       {}

// Analyzer composes path finding, components and scoring per request.
// It holds no per-graph state and is safe for concurrent use.
type Analyzer struct {
	maxStates int
	factors   ScoringFactors
	logger    *zap.Logger
	observer  Observer
	now       func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMaxStates bounds every path enumeration to n expanded states.
func WithMaxStates(n int) Option {
	return func(a *Analyzer) { a.maxStates = n }
}

// WithScoringFactors replaces the default scoring weights.
func WithScoringFactors(f ScoringFactors) Option {
	return func(a *Analyzer) { a.factors = f }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(a *Analyzer) {
		if o != nil {
			a.observer = o
		}
	}
}

// WithClock overrides the time source used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		maxStates: DefaultMaxStates,
		factors:   DefaultScoringFactors(),
		logger:    zap.NewNop(),
		observer:  nopObserver{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Factors returns the scoring weights in use.
func (a *Analyzer) Factors() ScoringFactors {
	return a.factors
}

func (a *Analyzer) finder(st *graph.Store, maxPaths int) *PathFinder {
	return NewPathFinder(st, PathLimits{MaxPaths: maxPaths, MaxStates: a.maxStates})
}

// observe records the duration of one analysis.
func (a *Analyzer) observe(name string, start time.Time) {
	a.observer.ObserveAnalysis(name, time.Since(start))
}

func (a *Analyzer) noteTruncated(target graph.FunctionID, set PathSet) {
	if !set.Truncated {
		return
	}
	a.observer.PathsTruncated()
	a.logger.Warn("path enumeration truncated",
		zap.String("target", string(target)),
		zap.Int("paths_seen", set.Total),
		zap.Int("max_states", a.maxStates),
	)
}

// PathsToFunction returns the entry-to-target paths for id.
func (a *Analyzer) PathsToFunction(st *graph.Store, id graph.FunctionID) (PathSet, error) {
	if !st.HasFunction(id) {
		return PathSet{}, &graph.NotFoundError{Kind: "function", ID: string(id)}
	}
	set := a.finder(st, 0).EntryToTargetPaths(id)
	a.noteTruncated(id, set)
	return set, nil
}

// Reachable reports whether some entry point reaches id.
func (a *Analyzer) Reachable(st *graph.Store, id graph.FunctionID) bool {
	return a.finder(st, 0).Reachable(id)
}
