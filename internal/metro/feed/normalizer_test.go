package feed

import (
	"errors"
	"testing"

	"github.com/metropath/pkg/metro/models"
)

const sampleFeed = `{
  "id": "1",
  "name": "Москва",
  "lines": [
    {
      "id": "1",
      "hex_color": "D6083B",
      "name": "Сокольническая",
      "stations": [
        {"id": "1.1", "name": "Бульвар Рокоссовского", "lat": 55.8148, "lng": 37.7342, "order": 0},
        {"id": "1.2", "name": "Черкизовская", "lat": 55.8038, "lng": 37.7448, "order": 1},
        {"id": "1.3", "name": "Преображенская площадь", "lat": 55.7963, "lng": 37.7151, "order": 2}
      ]
    },
    {
      "id": "2",
      "hex_color": "#0078BE",
      "name": "Замоскворецкая",
      "stations": [
        {"id": "2.1", "name": "Ховрино", "lat": 55.8777, "lng": 37.4877, "order": 0},
        {"id": "2.2", "name": "Беломорская", "lat": 55.8651, "lng": 37.4764, "order": 1}
      ]
    }
  ]
}`

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func entry(id, name string, lat, lng float64, order int) StationEntry {
	return StationEntry{ID: strPtr(id), Name: strPtr(name), Lat: floatPtr(lat), Lng: floatPtr(lng), Order: intPtr(order)}
}

func TestNormalizeSampleFeed(t *testing.T) {
	doc, err := Parse([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	n, err := Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if len(n.Stations) != 5 {
		t.Fatalf("Expected 5 stations, got %d", len(n.Stations))
	}
	// two segments on line 1, one on line 2, both directions
	if len(n.Edges) != 6 {
		t.Fatalf("Expected 6 edges, got %d", len(n.Edges))
	}

	first := n.Stations[0]
	if first.ID != "1.1" || first.LineID != "1" || first.LineName != "Сокольническая" {
		t.Errorf("Unexpected first station: %+v", first)
	}
	if first.LineColor != "#D6083B" {
		t.Errorf("Expected color #D6083B, got %s", first.LineColor)
	}
	if n.Stations[3].LineColor != "#0078BE" {
		t.Errorf("Expected color #0078BE to be kept, got %s", n.Stations[3].LineColor)
	}

	want := []models.Edge{
		{From: "1.1", To: "1.2", Class: models.Segment},
		{From: "1.2", To: "1.1", Class: models.Segment},
		{From: "1.2", To: "1.3", Class: models.Segment},
		{From: "1.3", To: "1.2", Class: models.Segment},
		{From: "2.1", To: "2.2", Class: models.Segment},
		{From: "2.2", To: "2.1", Class: models.Segment},
	}
	for i, e := range want {
		if n.Edges[i] != e {
			t.Errorf("Edge %d: expected %+v, got %+v", i, e, n.Edges[i])
		}
	}
}

func TestNormalizeEdgesFollowFeedOrderNotOrderField(t *testing.T) {
	doc := &Document{Lines: []Line{{
		ID:   strPtr("7"),
		Name: strPtr("Line 7"),
		Stations: []StationEntry{
			entry("7.a", "A", 55.0, 37.0, 2),
			entry("7.b", "B", 55.1, 37.1, 0),
			entry("7.c", "C", 55.2, 37.2, 1),
		},
	}}}

	n, err := Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if n.Edges[0].From != "7.a" || n.Edges[0].To != "7.b" {
		t.Errorf("Expected first segment 7.a -> 7.b, got %+v", n.Edges[0])
	}
	if n.Edges[2].From != "7.b" || n.Edges[2].To != "7.c" {
		t.Errorf("Expected second segment 7.b -> 7.c, got %+v", n.Edges[2])
	}
	if n.Stations[0].Order != 2 {
		t.Errorf("Expected order to be carried through, got %d", n.Stations[0].Order)
	}
	if n.Stations[0].LineColor != defaultLineColor {
		t.Errorf("Expected default color, got %s", n.Stations[0].LineColor)
	}
}

func TestNormalizeDuplicateIDLastOccurrenceWins(t *testing.T) {
	doc := &Document{Lines: []Line{
		{
			ID:       strPtr("1"),
			Name:     strPtr("One"),
			Stations: []StationEntry{entry("x", "Old", 1, 1, 0), entry("y", "Y", 2, 2, 1)},
		},
		{
			ID:       strPtr("2"),
			Name:     strPtr("Two"),
			Stations: []StationEntry{entry("z", "Z", 3, 3, 0), entry("x", "New", 4, 4, 1)},
		},
	}}

	n, err := Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if len(n.Stations) != 3 {
		t.Fatalf("Expected 3 stations, got %d", len(n.Stations))
	}
	x := n.Stations[0]
	if x.ID != "x" {
		t.Fatalf("Expected x to keep its first position, got %s", x.ID)
	}
	if x.Name != "New" || x.LineID != "2" || x.Lat != 4 {
		t.Errorf("Expected attributes of last occurrence, got %+v", x)
	}
	// segments still come from both line blocks
	if len(n.Edges) != 4 {
		t.Errorf("Expected 4 edges, got %d", len(n.Edges))
	}
}

func TestNormalizeMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		line    int
		station int
		field   string
	}{
		{
			name:    "line id",
			doc:     &Document{Lines: []Line{{Name: strPtr("L")}}},
			line:    0,
			station: -1,
			field:   "id",
		},
		{
			name: "station lat",
			doc: &Document{Lines: []Line{{
				ID:   strPtr("1"),
				Name: strPtr("L"),
				Stations: []StationEntry{
					entry("1.1", "A", 1, 1, 0),
					{ID: strPtr("1.2"), Name: strPtr("B"), Lng: floatPtr(1), Order: intPtr(1)},
				},
			}}},
			line:    0,
			station: 1,
			field:   "lat",
		},
		{
			name: "station order",
			doc: &Document{Lines: []Line{{
				ID:       strPtr("1"),
				Name:     strPtr("L"),
				Stations: []StationEntry{{ID: strPtr("1.1"), Name: strPtr("A"), Lat: floatPtr(1), Lng: floatPtr(1)}},
			}}},
			line:    0,
			station: 0,
			field:   "order",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Normalize(tt.doc)
			if err == nil {
				t.Fatalf("Expected error, got %d stations", len(n.Stations))
			}
			if !errors.Is(err, ErrMalformedFeed) {
				t.Errorf("Expected ErrMalformedFeed, got %v", err)
			}
			var ee *EntryError
			if !errors.As(err, &ee) {
				t.Fatalf("Expected *EntryError, got %T", err)
			}
			if ee.Line != tt.line || ee.Station != tt.station || ee.Field != tt.field {
				t.Errorf("Expected line=%d station=%d field=%s, got %+v", tt.line, tt.station, tt.field, ee)
			}
		})
	}
}

func TestNormalizeNilDocument(t *testing.T) {
	if _, err := Normalize(nil); !errors.Is(err, ErrMalformedFeed) {
		t.Errorf("Expected ErrMalformedFeed, got %v", err)
	}
}

func TestParseInvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`{"lines": [`)); err == nil {
		t.Error("Expected decode error")
	}
}
