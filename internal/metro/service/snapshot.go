package service

import (
	"fmt"

	"github.com/metropath/internal/metro/graph"
	"github.com/metropath/pkg/metro/models"
)

// Snapshot is an immutable materialized graph. Once published it is only read.
type Snapshot struct {
	Info     models.SnapshotInfo
	stations []models.Station
	byID     map[string]int
	edges    []models.Edge
	graph    graph.Graph
}

func newSnapshot(info models.SnapshotInfo, stations []models.Station, edges []models.Edge) (*Snapshot, error) {
	g, err := graph.Build(stations, edges)
	if err != nil {
		return nil, fmt.Errorf("building graph: %w", err)
	}

	byID := make(map[string]int, len(stations))
	for i, st := range stations {
		byID[st.ID] = i
	}

	info.StationCount = len(stations)
	info.EdgeCount = len(edges)
	return &Snapshot{
		Info:     info,
		stations: stations,
		byID:     byID,
		edges:    edges,
		graph:    g,
	}, nil
}

func (s *Snapshot) Station(id string) (models.Station, bool) {
	i, ok := s.byID[id]
	if !ok {
		return models.Station{}, false
	}
	return s.stations[i], true
}

func (s *Snapshot) StationCount() int {
	return len(s.stations)
}

func (s *Snapshot) EdgeCount() int {
	return len(s.edges)
}

// Edges returns a copy of the directed edge set.
func (s *Snapshot) Edges() []models.Edge {
	out := make([]models.Edge, len(s.edges))
	copy(out, s.edges)
	return out
}
