package graph

import (
	"fmt"

	"github.com/metropath/pkg/metro/models"
)

// Neighbor is one outgoing edge in the adjacency index.
type Neighbor struct {
	ID         string
	IsTransfer bool
}

// Graph maps every station id to its outgoing edges in edge order.
// Isolated stations are present with an empty list.
type Graph map[string][]Neighbor

// Build indexes the edge set. Parallel edges are kept as they are.
// An edge whose source is not a known station is an error.
func Build(stations []models.Station, edges []models.Edge) (Graph, error) {
	g := make(Graph, len(stations))
	for _, st := range stations {
		if _, ok := g[st.ID]; !ok {
			g[st.ID] = []Neighbor{}
		}
	}
	for _, e := range edges {
		if _, ok := g[e.From]; !ok {
			return nil, fmt.Errorf("edge %s -> %s: unknown source station", e.From, e.To)
		}
		if _, ok := g[e.To]; !ok {
			return nil, fmt.Errorf("edge %s -> %s: unknown target station", e.From, e.To)
		}
		g[e.From] = append(g[e.From], Neighbor{ID: e.To, IsTransfer: e.Class == models.Transfer})
	}
	return g, nil
}

// EdgeCount returns the number of directed edges.
func (g Graph) EdgeCount() int {
	n := 0
	for _, ns := range g {
		n += len(ns)
	}
	return n
}
