package analysis

import "github.com/abramin/callrisk/internal/graph"

// ConnectedComponents partitions the functions of st into components of the
// undirected view of the call graph.
//
// Components are ordered by their first unvisited member in ingestion order.
// Members appear in stack pop order.
func ConnectedComponents(st *graph.Store) [][]graph.FunctionID {
	visited := make(map[graph.FunctionID]bool, st.Len())
	var components [][]graph.FunctionID

	for _, start := range st.FunctionIDs() {
		if visited[start] {
			continue
		}

		var component []graph.FunctionID
		stack := []graph.FunctionID{start}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[id] {
				continue
			}
			visited[id] = true
			component = append(component, id)

			for _, nb := range st.UndirectedNeighbors(id) {
				if !visited[nb] {
					stack = append(stack, nb)
				}
			}
		}
		components = append(components, component)
	}

	return components
}
