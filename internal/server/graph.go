package server

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/abramin/callrisk/internal/graph"
)

const (
	defaultNeighborhoodDepth = 2
	maxNeighborhoodDepth     = 6
	maxNeighborhoodNodes     = 500
)

// Direction selects which edges a neighbourhood follows.
type Direction string

const (
	DirectionCallees Direction = "callees"
	DirectionCallers Direction = "callers"
	DirectionBoth    Direction = "both"
)

func parseDirection(raw string) (Direction, error) {
	switch d := Direction(raw); d {
	case "":
		return DirectionCallees, nil
	case DirectionCallees, DirectionCallers, DirectionBoth:
		return d, nil
	default:
		return "", errors.New("direction must be one of callees, callers or both")
	}
}

// GraphNode is a function in a neighbourhood response.
type GraphNode struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	IsEntrypoint    bool     `json:"is_entrypoint"`
	Depth           int      `json:"depth"`
	Expanded        bool     `json:"expanded"`
	Vulnerabilities []string `json:"vulnerabilities,omitempty"`
}

// GraphEdge is a call between two nodes of the neighbourhood.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GraphResponse is the body of GET /functions/{id}/graph.
type GraphResponse struct {
	RootID    string      `json:"root_id"`
	Direction Direction   `json:"direction"`
	MaxDepth  int         `json:"max_depth"`
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
	Truncated bool        `json:"truncated"`
}

// GraphBuilder collects the call neighbourhood of a function.
type GraphBuilder struct {
	store     *graph.Store
	direction Direction
	maxNodes  int

	nodes     map[graph.FunctionID]*GraphNode
	order     []graph.FunctionID
	edges     map[GraphEdge]struct{}
	vulns     map[graph.FunctionID][]string
	truncated bool
}

// NewGraphBuilder creates a builder over st.
func NewGraphBuilder(st *graph.Store, direction Direction) *GraphBuilder {
	vulns := make(map[graph.FunctionID][]string)
	for _, v := range st.Vulnerabilities() {
		vulns[v.FuncID] = append(vulns[v.FuncID], v.ID)
	}
	return &GraphBuilder{
		store:     st,
		direction: direction,
		maxNodes:  maxNeighborhoodNodes,
		nodes:     make(map[graph.FunctionID]*GraphNode),
		edges:     make(map[GraphEdge]struct{}),
		vulns:     vulns,
	}
}

// Build expands breadth first from root up to maxDepth hops.
func (gb *GraphBuilder) Build(root graph.FunctionID, maxDepth int) (*GraphResponse, error) {
	if !gb.store.HasFunction(root) {
		return nil, &graph.NotFoundError{Kind: "function", ID: string(root)}
	}

	gb.addNode(root, 0)
	frontier := []graph.FunctionID{root}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []graph.FunctionID
		for _, id := range frontier {
			next = append(next, gb.expand(id, depth)...)
		}
		frontier = next
	}
	return gb.buildResponse(root, maxDepth), nil
}

// expand adds the edges around id and returns the nodes first seen there.
func (gb *GraphBuilder) expand(id graph.FunctionID, depth int) []graph.FunctionID {
	var added []graph.FunctionID
	visit := func(nb graph.FunctionID, edge GraphEdge) {
		if _, ok := gb.nodes[nb]; !ok {
			if len(gb.nodes) >= gb.maxNodes {
				gb.truncated = true
				return
			}
			gb.addNode(nb, depth+1)
			added = append(added, nb)
		}
		gb.edges[edge] = struct{}{}
	}

	if gb.direction != DirectionCallers {
		for _, callee := range gb.store.Neighbors(id) {
			visit(callee, GraphEdge{From: string(id), To: string(callee)})
		}
	}
	if gb.direction != DirectionCallees {
		for _, caller := range gb.store.Callers(id) {
			visit(caller, GraphEdge{From: string(caller), To: string(id)})
		}
	}
	gb.nodes[id].Expanded = !gb.truncated
	return added
}

func (gb *GraphBuilder) addNode(id graph.FunctionID, depth int) {
	fn, err := gb.store.Function(id)
	if err != nil {
		return
	}
	gb.nodes[id] = &GraphNode{
		ID:              string(fn.ID),
		Name:            fn.Name,
		IsEntrypoint:    fn.IsEntrypoint,
		Depth:           depth,
		Vulnerabilities: gb.vulns[id],
	}
	gb.order = append(gb.order, id)
}

// buildResponse lists nodes in discovery order and edges sorted by endpoints.
func (gb *GraphBuilder) buildResponse(root graph.FunctionID, maxDepth int) *GraphResponse {
	nodes := make([]GraphNode, 0, len(gb.order))
	for _, id := range gb.order {
		nodes = append(nodes, *gb.nodes[id])
	}

	edges := make([]GraphEdge, 0, len(gb.edges))
	for e := range gb.edges {
		if _, ok := gb.nodes[graph.FunctionID(e.From)]; !ok {
			continue
		}
		if _, ok := gb.nodes[graph.FunctionID(e.To)]; !ok {
			continue
		}
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	return &GraphResponse{
		RootID:    string(root),
		Direction: gb.direction,
		MaxDepth:  maxDepth,
		Nodes:     nodes,
		Edges:     edges,
		Truncated: gb.truncated,
	}
}

// handleFunctionGraph handles GET /functions/{id}/graph
func (s *Server) handleFunctionGraph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	depth, err := positiveIntParam(q.Get("depth"), "depth", defaultNeighborhoodDepth)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if depth > maxNeighborhoodDepth {
		badRequest(w, fmt.Sprintf("depth must be at most %d", maxNeighborhoodDepth))
		return
	}
	direction, err := parseDirection(q.Get("direction"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	st, err := s.workspace.Current()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	resp, err := NewGraphBuilder(st, direction).Build(graph.FunctionID(chi.URLParam(r, "id")), depth)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
