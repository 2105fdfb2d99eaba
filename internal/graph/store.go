package graph

import (
	"sync"

	"github.com/google/uuid"
)

// Store is the in-memory call graph together with the current vulnerability set.
//
// Topology is fixed once Build returns and is read without locking. The
// vulnerability set is swapped wholesale under mu. The reverse adjacency index
// is built lazily on the first undirected query and cached until invalidated.
type Store struct {
	revision    string
	functions   map[FunctionID]Function
	order       []FunctionID // Ingestion order of functions
	edges       []Edge
	adjacency   map[FunctionID][]FunctionID
	entrypoints []FunctionID

	mu    sync.RWMutex
	vulns []Vulnerability

	revMu   sync.Mutex
	reverse map[FunctionID][]FunctionID
}

// Build validates g and constructs a Store from it.
// Nothing is returned unless every function id is unique and non-empty and
// every edge references existing functions.
func Build(g Graph) (*Store, error) {
	s := &Store{
		revision:  uuid.NewString(),
		functions: make(map[FunctionID]Function, len(g.Functions)),
		order:     make([]FunctionID, 0, len(g.Functions)),
		adjacency: make(map[FunctionID][]FunctionID, len(g.Functions)),
	}

	var duplicates []string
	for _, fn := range g.Functions {
		if fn.ID == "" {
			return nil, &ValidationError{Message: "function id cannot be empty"}
		}
		if _, exists := s.functions[fn.ID]; exists {
			duplicates = append(duplicates, string(fn.ID))
			continue
		}
		s.functions[fn.ID] = fn
		s.order = append(s.order, fn.ID)
		if fn.IsEntrypoint {
			s.entrypoints = append(s.entrypoints, fn.ID)
		}
	}
	if len(duplicates) > 0 {
		return nil, &ValidationError{Message: "function ids must be unique", IDs: duplicates}
	}

	// Adjacency lists keep insertion order so traversals are deterministic.
	seen := make(map[Edge]struct{}, len(g.Edges))
	s.edges = make([]Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		_, fromOK := s.functions[e.From]
		_, toOK := s.functions[e.To]
		if !fromOK || !toOK {
			return nil, &ValidationError{
				Message: "edge refers to non-existent function",
				IDs:     []string{string(e.From) + " -> " + string(e.To)},
			}
		}
		s.edges = append(s.edges, e)
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		s.adjacency[e.From] = append(s.adjacency[e.From], e.To)
	}

	return s, nil
}

// Revision returns the identifier assigned to this store when it was built.
func (s *Store) Revision() string {
	return s.revision
}

// Neighbors returns the direct callees of id in insertion order.
// Unknown ids and leaf functions yield an empty slice.
func (s *Store) Neighbors(id FunctionID) []FunctionID {
	out := s.adjacency[id]
	res := make([]FunctionID, len(out))
	copy(res, out)
	return res
}

// EachNeighbor calls fn for every direct callee of id in insertion order
// without copying the adjacency list.
func (s *Store) EachNeighbor(id FunctionID, fn func(FunctionID)) {
	for _, nb := range s.adjacency[id] {
		fn(nb)
	}
}

// neighbors returns the internal adjacency slice. Callers must not modify it.
func (s *Store) neighbors(id FunctionID) []FunctionID {
	return s.adjacency[id]
}

// HasFunction reports whether id is part of the graph.
func (s *Store) HasFunction(id FunctionID) bool {
	_, ok := s.functions[id]
	return ok
}

// Function returns the function with the given id.
func (s *Store) Function(id FunctionID) (Function, error) {
	fn, ok := s.functions[id]
	if !ok {
		return Function{}, &NotFoundError{Kind: "function", ID: string(id)}
	}
	return fn, nil
}

// Functions returns a copy of all functions in ingestion order.
func (s *Store) Functions() []Function {
	res := make([]Function, 0, len(s.order))
	for _, id := range s.order {
		res = append(res, s.functions[id])
	}
	return res
}

// FunctionIDs returns a copy of all function ids in ingestion order.
func (s *Store) FunctionIDs() []FunctionID {
	res := make([]FunctionID, len(s.order))
	copy(res, s.order)
	return res
}

// Edges returns a copy of all edges in ingestion order.
func (s *Store) Edges() []Edge {
	res := make([]Edge, len(s.edges))
	copy(res, s.edges)
	return res
}

// Entrypoints returns the entry point ids in ingestion order.
func (s *Store) Entrypoints() []FunctionID {
	res := make([]FunctionID, len(s.entrypoints))
	copy(res, s.entrypoints)
	return res
}

// Len returns the number of functions.
func (s *Store) Len() int {
	return len(s.order)
}

// ReplaceVulnerabilities swaps the vulnerability set for a copy of vulns.
// It does not validate function ids or duplicate vulnerability ids, and it
// leaves the adjacency and reverse index untouched.
func (s *Store) ReplaceVulnerabilities(vulns []Vulnerability) {
	cp := make([]Vulnerability, len(vulns))
	copy(cp, vulns)

	s.mu.Lock()
	s.vulns = cp
	s.mu.Unlock()
}

// Vulnerabilities returns a copy of the current vulnerability set.
func (s *Store) Vulnerabilities() []Vulnerability {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]Vulnerability, len(s.vulns))
	copy(res, s.vulns)
	return res
}

// Vulnerability looks up a vulnerability by id.
func (s *Store) Vulnerability(id string) (Vulnerability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.vulns {
		if v.ID == id {
			return v, nil
		}
	}
	return Vulnerability{}, &NotFoundError{Kind: "vulnerability", ID: id}
}

// Stats returns counts describing the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	vulnCount := len(s.vulns)
	s.mu.RUnlock()

	return Stats{
		Revision:        s.revision,
		FunctionCount:   len(s.order),
		EdgeCount:       len(s.edges),
		EntrypointCount: len(s.entrypoints),
		VulnCount:       vulnCount,
	}
}
