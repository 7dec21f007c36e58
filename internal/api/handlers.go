package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/metropath/internal/common/logger"
	"github.com/metropath/internal/metro/service"
	"github.com/metropath/pkg/metro/models"
)

const (
	defaultStationLimit = 100
	maxStationLimit     = 500
)

// MetroService is the read side of the routing service.
type MetroService interface {
	Current() *service.Snapshot
	Route(fromID, toID string) (*service.RouteResult, bool)
	Station(id string) (models.Station, bool)
	ListStations(search string, limit int) []models.Station
}

// Refresher triggers an out-of-band rebuild.
type Refresher interface {
	Refresh(ctx context.Context) (int, int, error)
}

// refreshTimeout bounds a manual refresh once the request has been accepted.
const refreshTimeout = 2 * time.Minute

// MetroHandler handles HTTP requests for stations and routes
type MetroHandler struct {
	svc            MetroService
	refresher      Refresher
	logger         logger.Logger
	refreshTimeout time.Duration
}

func NewMetroHandler(svc MetroService, refresher Refresher, logger logger.Logger) *MetroHandler {
	return &MetroHandler{svc: svc, refresher: refresher, logger: logger, refreshTimeout: refreshTimeout}
}

// Health handles GET /health
// Reports 503 until the first snapshot has been published.
func (h *MetroHandler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Current()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}

	builtAt := snap.Info.CreatedAt
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Snapshot: snap.Info.SnapshotID.String(),
		Stations: snap.StationCount(),
		Edges:    snap.EdgeCount(),
		BuiltAt:  &builtAt,
	})
}

// ListStations handles GET /api/stations
func (h *MetroHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := defaultStationLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxStationLimit {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 500",
				map[string]interface{}{"limit": raw})
			return
		}
		limit = n
	}

	stations := h.svc.ListStations(query.Get("search"), limit)
	out := make([]StationSummary, 0, len(stations))
	for _, st := range stations {
		out = append(out, summarize(st))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetStation handles GET /api/stations/{stationId}
func (h *MetroHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "stationId")

	st, ok := h.svc.Station(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Station not found",
			map[string]interface{}{"stationId": id})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetPath handles GET /api/path
// Returns the minimum-time route between from_id and to_id.
func (h *MetroHandler) GetPath(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	fromID := query.Get("from_id")
	toID := query.Get("to_id")

	if fromID == "" || toID == "" {
		writeError(w, http.StatusBadRequest, "from_id and to_id parameters are required", nil)
		return
	}

	route, ok := h.svc.Route(fromID, toID)
	if !ok {
		writeError(w, http.StatusNotFound, "Path not found or unknown station ids",
			map[string]interface{}{"from_id": fromID, "to_id": toID})
		return
	}
	writeJSON(w, http.StatusOK, newPathResponse(route))
}

// Refresh handles POST /admin/refresh
// The rebuild runs to completion even if the client goes away.
func (h *MetroHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.refreshTimeout)
	defer cancel()

	stations, edges, err := h.refresher.Refresh(ctx)
	if err != nil {
		h.logger.Error("Manual refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, "Refresh failed", nil)
		return
	}

	h.logger.Info("Manual refresh completed", "stations", stations, "edges", edges)
	writeJSON(w, http.StatusOK, RefreshResponse{Stations: stations, Trips: edges})
}
