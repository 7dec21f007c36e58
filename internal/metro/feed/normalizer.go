package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/metropath/pkg/metro/models"
)

const defaultLineColor = "#888888"

// Normalized is the feed flattened into typed records.
type Normalized struct {
	Stations []models.Station
	Edges    []models.Edge
}

// Parse decodes a raw feed document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}
	return &doc, nil
}

// Normalize turns the document into stations and segment edges.
//
// Stations keep the position of their first appearance; when an id occurs in
// more than one line block the attributes of the last occurrence win.
// Segment edges join consecutive entries in feed order, not by the order field.
// Any missing required field fails the whole document.
func Normalize(doc *Document) (*Normalized, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedFeed)
	}

	out := &Normalized{}
	index := make(map[string]int)

	for li, line := range doc.Lines {
		if line.ID == nil || *line.ID == "" {
			return nil, &EntryError{Line: li, Station: -1, Field: "id"}
		}
		if line.Name == nil {
			return nil, &EntryError{Line: li, Station: -1, Field: "name"}
		}
		color := lineColor(line.HexColor)

		ids := make([]string, 0, len(line.Stations))
		for si, s := range line.Stations {
			if err := checkStation(li, si, s); err != nil {
				return nil, err
			}
			st := models.Station{
				ID:        *s.ID,
				Name:      *s.Name,
				Lat:       *s.Lat,
				Lng:       *s.Lng,
				LineID:    *line.ID,
				LineName:  *line.Name,
				LineColor: color,
				Order:     *s.Order,
			}
			if i, ok := index[st.ID]; ok {
				out.Stations[i] = st
			} else {
				index[st.ID] = len(out.Stations)
				out.Stations = append(out.Stations, st)
			}
			ids = append(ids, st.ID)
		}

		for i := 0; i+1 < len(ids); i++ {
			e := models.Edge{From: ids[i], To: ids[i+1], Class: models.Segment}
			out.Edges = append(out.Edges, e, e.Reverse())
		}
	}

	return out, nil
}

func checkStation(li, si int, s StationEntry) error {
	switch {
	case s.ID == nil || *s.ID == "":
		return &EntryError{Line: li, Station: si, Field: "id"}
	case s.Name == nil:
		return &EntryError{Line: li, Station: si, Field: "name"}
	case s.Lat == nil:
		return &EntryError{Line: li, Station: si, Field: "lat"}
	case s.Lng == nil:
		return &EntryError{Line: li, Station: si, Field: "lng"}
	case s.Order == nil:
		return &EntryError{Line: li, Station: si, Field: "order"}
	}
	return nil
}

func lineColor(hex string) string {
	if hex == "" {
		return defaultLineColor
	}
	if !strings.HasPrefix(hex, "#") {
		return "#" + hex
	}
	return hex
}
