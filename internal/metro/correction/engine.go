package correction

import (
	"errors"
	"fmt"

	"github.com/metropath/internal/metro/patches"
	"github.com/metropath/pkg/metro/models"
)

// ErrUnknownStation is returned (wrapped in *PatchError) when an edge
// addition references a station that does not exist after insertions.
var ErrUnknownStation = errors.New("unknown station")

type PatchError struct {
	Index   int
	Patch   patches.EdgePatch
	Missing string
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("addition #%d (%s -> %s, %s): station %s does not exist",
		e.Index, e.Patch.From, e.Patch.To, e.Patch.Class, e.Missing)
}

func (e *PatchError) Unwrap() error {
	return ErrUnknownStation
}

// Report counts what a correction pass did.
type Report struct {
	OverridesApplied int
	OverridesSkipped int
	Inserted         int
	InsertSkipped    int
	Inferred         int
	Removed          int
	Added            int
	AddSkipped       int
	Deduplicated     int
}

type Result struct {
	Stations []models.Station
	Edges    []models.Edge
	Report   Report
}

// Engine applies a catalog and a transfer strategy to normalized feed data.
type Engine struct {
	catalog  *patches.Catalog
	strategy Strategy
}

func New(catalog *patches.Catalog, strategy Strategy) (*Engine, error) {
	if err := strategy.validate(); err != nil {
		return nil, err
	}
	if catalog == nil {
		catalog = patches.Empty()
	}
	return &Engine{catalog: catalog, strategy: strategy}, nil
}

func (e *Engine) Strategy() Strategy {
	return e.strategy
}

func (e *Engine) CatalogVersion() string {
	return e.catalog.Version
}

// Apply runs the correction pipeline. Inputs are not modified.
//
// Order: field overrides, insertions, proximity inference, edge removals,
// edge additions. Repeated input edges are collapsed and a directed edge is
// never added twice, so applying the same catalog to its own output yields
// the same edges.
func (e *Engine) Apply(stations []models.Station, edges []models.Edge) (*Result, error) {
	res := &Result{
		Stations: make([]models.Station, len(stations), len(stations)+len(e.catalog.Insertions)),
	}
	copy(res.Stations, stations)

	index := make(map[string]int, len(res.Stations))
	for i, st := range res.Stations {
		index[st.ID] = i
	}

	for _, o := range e.catalog.Overrides {
		i, ok := index[o.ID]
		if !ok {
			res.Report.OverridesSkipped++
			continue
		}
		o.Apply(&res.Stations[i])
		res.Report.OverridesApplied++
	}

	for _, in := range e.catalog.Insertions {
		if _, ok := index[in.ID]; ok {
			res.Report.InsertSkipped++
			continue
		}
		index[in.ID] = len(res.Stations)
		res.Stations = append(res.Stations, in.Station())
		res.Report.Inserted++
	}

	out := make([]models.Edge, 0, len(edges))
	present := make(map[models.Edge]struct{}, len(edges))
	for _, edge := range edges {
		if _, dup := present[edge]; dup {
			res.Report.Deduplicated++
			continue
		}
		present[edge] = struct{}{}
		out = append(out, edge)
	}

	if e.strategy.infers() {
		for _, edge := range InferTransfers(res.Stations, e.strategy.Threshold) {
			if _, dup := present[edge]; dup {
				continue
			}
			present[edge] = struct{}{}
			out = append(out, edge)
			res.Report.Inferred++
		}
	}

	if e.strategy.patchesEdges() {
		out = e.remove(out, &res.Report)

		present = make(map[models.Edge]struct{}, len(out))
		for _, edge := range out {
			present[edge] = struct{}{}
		}

		for i, p := range e.catalog.Additions {
			for _, id := range []string{p.From, p.To} {
				if _, ok := index[id]; !ok {
					return nil, &PatchError{Index: i, Patch: p, Missing: id}
				}
			}
			fwd, rev := p.Edges()
			for _, edge := range []models.Edge{fwd, rev} {
				if _, dup := present[edge]; dup {
					res.Report.AddSkipped++
					continue
				}
				present[edge] = struct{}{}
				out = append(out, edge)
				res.Report.Added++
			}
		}
	}

	res.Edges = out
	return res, nil
}

func (e *Engine) remove(edges []models.Edge, report *Report) []models.Edge {
	if len(e.catalog.Removals) == 0 {
		return edges
	}
	drop := make(map[models.Edge]struct{}, 2*len(e.catalog.Removals))
	for _, p := range e.catalog.Removals {
		fwd, rev := p.Edges()
		drop[fwd] = struct{}{}
		drop[rev] = struct{}{}
	}

	kept := edges[:0]
	for _, edge := range edges {
		if _, ok := drop[edge]; ok {
			report.Removed++
			continue
		}
		kept = append(kept, edge)
	}
	return kept
}
