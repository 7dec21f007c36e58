package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/metropath/internal/metro/service"
	"github.com/metropath/pkg/metro/models"
)

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StationSummary is the short station form used in listings and routes.
type StationSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LineName string `json:"line_name"`
}

func summarize(st models.Station) StationSummary {
	return StationSummary{ID: st.ID, Name: st.Name, LineName: st.LineName}
}

type PathStep struct {
	StationID   string `json:"station_id"`
	StationName string `json:"station_name"`
	LineName    string `json:"line_name"`
	IsTransfer  bool   `json:"is_transfer"`
}

// PathResponse is the JSON response for GET /api/path
type PathResponse struct {
	FromStation      StationSummary `json:"from_station"`
	ToStation        StationSummary `json:"to_station"`
	Path             []PathStep     `json:"path"`
	TotalSteps       int            `json:"total_steps"`
	StationsCount    int            `json:"stations_count"`
	Transfers        int            `json:"transfers"`
	TotalTimeMinutes float64        `json:"total_time_minutes"`
}

func newPathResponse(r *service.RouteResult) PathResponse {
	steps := make([]PathStep, 0, len(r.Steps))
	for _, s := range r.Steps {
		steps = append(steps, PathStep{
			StationID:   s.Station.ID,
			StationName: s.Station.Name,
			LineName:    s.Station.LineName,
			IsTransfer:  s.ViaTransfer,
		})
	}
	return PathResponse{
		FromStation:      summarize(r.From),
		ToStation:        summarize(r.To),
		Path:             steps,
		TotalSteps:       r.EdgeCount,
		StationsCount:    len(steps),
		Transfers:        r.Transfers,
		TotalTimeMinutes: r.TotalMinutes,
	}
}

// HealthResponse is the JSON response for GET /health
type HealthResponse struct {
	Status   string     `json:"status"`
	Snapshot string     `json:"snapshot,omitempty"`
	Stations int        `json:"stations"`
	Edges    int        `json:"edges"`
	BuiltAt  *time.Time `json:"built_at,omitempty"`
}

// RefreshResponse is the JSON response for POST /admin/refresh
type RefreshResponse struct {
	Stations int `json:"stations"`
	Trips    int `json:"trips"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string, details map[string]interface{}) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}
