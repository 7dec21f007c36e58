package feed

import (
	"errors"
	"fmt"
)

// Document is the raw per-line station feed as published by the upstream API.
// Required fields are pointers so that an absent field can be told apart from a zero value.
type Document struct {
	Lines []Line `json:"lines"`
}

type Line struct {
	ID       *string        `json:"id"`
	Name     *string        `json:"name"`
	HexColor string         `json:"hex_color"`
	Stations []StationEntry `json:"stations"`
}

type StationEntry struct {
	ID    *string  `json:"id"`
	Name  *string  `json:"name"`
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
	Order *int     `json:"order"`
}

// ErrMalformedFeed is returned (wrapped) for any entry missing a required field.
var ErrMalformedFeed = errors.New("malformed feed")

// EntryError locates a malformed entry. Station is -1 for line-level fields.
type EntryError struct {
	Line    int
	Station int
	Field   string
}

func (e *EntryError) Error() string {
	if e.Station < 0 {
		return fmt.Sprintf("line %d: missing %s", e.Line, e.Field)
	}
	return fmt.Sprintf("line %d station %d: missing %s", e.Line, e.Station, e.Field)
}

func (e *EntryError) Unwrap() error {
	return ErrMalformedFeed
}
