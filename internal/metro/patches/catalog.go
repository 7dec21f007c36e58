// Package patches holds the curated corrections applied on top of the upstream feed.
package patches

import (
	"github.com/metropath/pkg/metro/models"
)

const defaultLineColor = "#888888"

// Catalog is a versioned set of corrections. It is plain data; the
// correction engine decides how and in which order it is applied.
type Catalog struct {
	Version    string      `yaml:"version" validate:"required"`
	Overrides  []Override  `yaml:"overrides" validate:"dive"`
	Insertions []Insertion `yaml:"insertions" validate:"dive"`
	Removals   []EdgePatch `yaml:"removals" validate:"dive"`
	Additions  []EdgePatch `yaml:"additions" validate:"dive"`
}

// Override replaces only the attributes that are set.
type Override struct {
	ID        string   `yaml:"id" validate:"required"`
	Name      *string  `yaml:"name" validate:"omitempty,min=1"`
	Lat       *float64 `yaml:"lat" validate:"omitempty,latitude"`
	Lng       *float64 `yaml:"lng" validate:"omitempty,longitude"`
	LineID    *string  `yaml:"line_id" validate:"omitempty,min=1"`
	LineName  *string  `yaml:"line_name"`
	LineColor *string  `yaml:"line_color" validate:"omitempty,hexcolor"`
	Order     *int     `yaml:"order"`
	Note      string   `yaml:"note"`
}

// Apply writes the set attributes onto st. The id is never touched.
func (o Override) Apply(st *models.Station) {
	if o.Name != nil {
		st.Name = *o.Name
	}
	if o.Lat != nil {
		st.Lat = *o.Lat
	}
	if o.Lng != nil {
		st.Lng = *o.Lng
	}
	if o.LineID != nil {
		st.LineID = *o.LineID
	}
	if o.LineName != nil {
		st.LineName = *o.LineName
	}
	if o.LineColor != nil {
		st.LineColor = *o.LineColor
	}
	if o.Order != nil {
		st.Order = *o.Order
	}
}

// Insertion is a station missing from the feed.
type Insertion struct {
	ID        string  `yaml:"id" validate:"required"`
	Name      string  `yaml:"name" validate:"required"`
	LineID    string  `yaml:"line_id" validate:"required"`
	LineName  string  `yaml:"line_name" validate:"required"`
	LineColor string  `yaml:"line_color" validate:"omitempty,hexcolor"`
	Lat       float64 `yaml:"lat" validate:"latitude"`
	Lng       float64 `yaml:"lng" validate:"longitude"`
	Order     int     `yaml:"order"`
	Note      string  `yaml:"note"`
}

func (i Insertion) Station() models.Station {
	color := i.LineColor
	if color == "" {
		color = defaultLineColor
	}
	return models.Station{
		ID:        i.ID,
		Name:      i.Name,
		Lat:       i.Lat,
		Lng:       i.Lng,
		LineID:    i.LineID,
		LineName:  i.LineName,
		LineColor: color,
		Order:     i.Order,
	}
}

// EdgePatch names an unordered station pair and an edge class.
// It always stands for both directed edges.
type EdgePatch struct {
	From  string           `yaml:"from" validate:"required"`
	To    string           `yaml:"to" validate:"required,nefield=From"`
	Class models.EdgeClass `yaml:"class" validate:"required,oneof=segment transfer"`
	Note  string           `yaml:"note"`
}

// Edges returns the forward and reverse directed edges.
func (p EdgePatch) Edges() (models.Edge, models.Edge) {
	e := models.Edge{From: p.From, To: p.To, Class: p.Class}
	return e, e.Reverse()
}

// Empty returns a catalog with no corrections.
func Empty() *Catalog {
	return &Catalog{Version: "empty"}
}
