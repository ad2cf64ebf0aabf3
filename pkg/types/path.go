package types

// Path is an explicit walk through the graph: n nodes joined by n-1 edges.
type Path struct {
	NodeIDs   []string   `json:"node_ids"`
	EdgeIDs   []string   `json:"edge_ids"`
	EdgeTypes []EdgeType `json:"edge_types"`
}

// Len returns the number of hops in the path.
func (p *Path) Len() int { return len(p.EdgeIDs) }

// Neighbor is an adjacent node together with the number of parallel edges
// connecting it. Used as the projection unit for community detection.
type Neighbor struct {
	NodeID    string `json:"node_id"`
	EdgeCount int    `json:"edge_count"`
}
