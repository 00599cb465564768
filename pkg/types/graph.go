package types

// GraphPath is a bounded-depth path between two graph nodes.
// Length is the number of edges; a self path has Length 0 and one node.
type GraphPath struct {
	Nodes  []string `json:"nodes"` // Node keys in order
	Edges  []string `json:"edges"` // Edge labels between successive nodes
	Length int      `json:"length"`
}

// HubSymbol is a symbol with high combined CALLS degree.
type HubSymbol struct {
	QualifiedName string `json:"qualified_name"`
	Name          string `json:"name"`
	File          string `json:"file"`
	InDegree      int    `json:"in_degree"`
	OutDegree     int    `json:"out_degree"`
}

// Degree returns the combined degree used for hub ranking.
func (h *HubSymbol) Degree() int {
	return h.InDegree + h.OutDegree
}

// GraphStats holds node and edge counts by label.
type GraphStats struct {
	Nodes map[string]int `json:"nodes"`
	Edges map[string]int `json:"edges"`
}

// TotalNodes sums all node counts.
func (s *GraphStats) TotalNodes() int {
	n := 0
	for _, v := range s.Nodes {
		n += v
	}
	return n
}

// TotalEdges sums all edge counts.
func (s *GraphStats) TotalEdges() int {
	n := 0
	for _, v := range s.Edges {
		n += v
	}
	return n
}
