package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EdgeClass distinguishes riding between adjacent stations from walking between lines.
type EdgeClass string

const (
	Segment  EdgeClass = "segment"
	Transfer EdgeClass = "transfer"
)

// ParseEdgeClass accepts the stored/configured spelling of an edge class.
// "same_line" is accepted as an alias for segment.
func ParseEdgeClass(s string) (EdgeClass, error) {
	switch s {
	case string(Segment), "same_line":
		return Segment, nil
	case string(Transfer):
		return Transfer, nil
	default:
		return "", fmt.Errorf("unknown edge class %q", s)
	}
}

// Station is a single platform on a single line.
// ID is stable across refreshes; everything else may be corrected.
type Station struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	LineID    string  `json:"line_id"`
	LineName  string  `json:"line_name"`
	LineColor string  `json:"line_color"`
	Order     int     `json:"order"`
}

// Edge is one directed connection. Every logical connection is stored as two edges.
type Edge struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Class EdgeClass `json:"class"`
}

// Reverse returns the same connection in the opposite direction.
func (e Edge) Reverse() Edge {
	return Edge{From: e.To, To: e.From, Class: e.Class}
}

// Step is one station on a route. ViaTransfer reports whether the
// edge used to reach this station was a transfer; it is false for the origin.
type Step struct {
	StationID   string `json:"station_id"`
	ViaTransfer bool   `json:"is_transfer"`
}

// Route is the result of a shortest-path query.
type Route struct {
	Steps        []Step  `json:"steps"`
	TotalMinutes float64 `json:"total_minutes"`
}

// EdgeCount is the number of edges travelled.
func (r Route) EdgeCount() int {
	if len(r.Steps) == 0 {
		return 0
	}
	return len(r.Steps) - 1
}

// Transfers counts steps entered via a transfer edge.
func (r Route) Transfers() int {
	n := 0
	for i, s := range r.Steps {
		if i > 0 && s.ViaTransfer {
			n++
		}
	}
	return n
}

// SnapshotInfo describes one materialized graph, in memory or at rest.
type SnapshotInfo struct {
	SnapshotID   uuid.UUID
	CreatedAt    time.Time
	IsActive     bool
	Source       string
	Policy       string
	CatalogVer   string
	StationCount int
	EdgeCount    int
}
