package graph

// reverseIndex returns the cached caller index, building it on first use.
func (s *Store) reverseIndex() map[FunctionID][]FunctionID {
	s.revMu.Lock()
	defer s.revMu.Unlock()

	if s.reverse == nil {
		rev := make(map[FunctionID][]FunctionID, len(s.functions))
		for _, e := range s.edges {
			rev[e.To] = append(rev[e.To], e.From)
		}
		s.reverse = rev
	}
	return s.reverse
}

// InvalidateReverseIndex drops the cached caller index so the next undirected
// query rebuilds it.
func (s *Store) InvalidateReverseIndex() {
	s.revMu.Lock()
	s.reverse = nil
	s.revMu.Unlock()
}

// reverseIndexBuilt reports whether the caller index is currently cached.
func (s *Store) reverseIndexBuilt() bool {
	s.revMu.Lock()
	defer s.revMu.Unlock()
	return s.reverse != nil
}

// Callers returns the functions that call id, in edge ingestion order.
func (s *Store) Callers(id FunctionID) []FunctionID {
	in := s.reverseIndex()[id]
	res := make([]FunctionID, len(in))
	copy(res, in)
	return res
}

// UndirectedNeighbors returns callees followed by callers of id, without duplicates.
func (s *Store) UndirectedNeighbors(id FunctionID) []FunctionID {
	out := s.neighbors(id)
	in := s.reverseIndex()[id]

	seen := make(map[FunctionID]struct{}, len(out)+len(in))
	res := make([]FunctionID, 0, len(out)+len(in))
	for _, list := range [][]FunctionID{out, in} {
		for _, nb := range list {
			if _, ok := seen[nb]; ok {
				continue
			}
			seen[nb] = struct{}{}
			res = append(res, nb)
		}
	}
	return res
}
