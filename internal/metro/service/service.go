package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluele/gcache"
	"github.com/google/uuid"

	"github.com/metropath/internal/common/db"
	"github.com/metropath/internal/common/logger"
	"github.com/metropath/internal/metro/correction"
	"github.com/metropath/internal/metro/feed"
	"github.com/metropath/internal/metro/graph"
	"github.com/metropath/pkg/metro/models"
)

// Store persists snapshots. A nil Store keeps everything in memory.
type Store interface {
	SaveSnapshot(ctx context.Context, snap *db.Snapshot) error
	LoadActive(ctx context.Context) (*db.Snapshot, error)
}

type Options struct {
	Weights   graph.Weights
	CacheSize int
}

// Service owns the active snapshot. Queries read it lock-free; Rebuild
// builds a complete new snapshot and swaps it in.
type Service struct {
	fetcher feed.Fetcher
	engine  *correction.Engine
	store   Store
	weights graph.Weights
	cache   gcache.Cache
	logger  logger.Logger

	current   atomic.Pointer[Snapshot]
	rebuildMu sync.Mutex
	now       func() time.Time
}

func New(fetcher feed.Fetcher, engine *correction.Engine, store Store, opts Options, log logger.Logger) (*Service, error) {
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		fetcher: fetcher,
		engine:  engine,
		store:   store,
		weights: opts.Weights,
		logger:  log,
		now:     time.Now,
	}
	if opts.CacheSize > 0 {
		s.cache = gcache.New(opts.CacheSize).LRU().Build()
	}
	return s, nil
}

// Current returns the active snapshot, or nil before the first successful load.
func (s *Service) Current() *Snapshot {
	return s.current.Load()
}

// Rebuild runs fetch, normalize, correct and index, persists the result and
// publishes it. Any failure leaves the active snapshot untouched.
func (s *Service) Rebuild(ctx context.Context) (int, int, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	start := s.now()
	s.logger.Info("Starting rebuild", "source", s.fetcher.Source(), "strategy", s.engine.Strategy().String())

	doc, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("fetching feed: %w", err)
	}

	norm, err := feed.Normalize(doc)
	if err != nil {
		return 0, 0, fmt.Errorf("normalizing feed: %w", err)
	}

	res, err := s.engine.Apply(norm.Stations, norm.Edges)
	if err != nil {
		return 0, 0, fmt.Errorf("applying corrections: %w", err)
	}

	info := models.SnapshotInfo{
		SnapshotID: uuid.New(),
		CreatedAt:  start.UTC(),
		Source:     s.fetcher.Source(),
		Policy:     string(s.engine.Strategy().Policy),
		CatalogVer: s.engine.CatalogVersion(),
	}
	snap, err := newSnapshot(info, res.Stations, res.Edges)
	if err != nil {
		return 0, 0, err
	}

	if s.store != nil {
		stored := &db.Snapshot{Info: snap.Info, Stations: res.Stations, Edges: res.Edges}
		if err := s.store.SaveSnapshot(ctx, stored); err != nil {
			return 0, 0, fmt.Errorf("saving snapshot: %w", err)
		}
	}

	s.publish(snap)

	r := res.Report
	s.logger.Info("Rebuild completed",
		"snapshot_id", snap.Info.SnapshotID,
		"stations", snap.StationCount(),
		"edges", snap.EdgeCount(),
		"overrides_applied", r.OverridesApplied,
		"overrides_skipped", r.OverridesSkipped,
		"inserted", r.Inserted,
		"inferred", r.Inferred,
		"removed", r.Removed,
		"added", r.Added,
		"add_skipped", r.AddSkipped,
		"deduplicated", r.Deduplicated,
		"duration", s.now().Sub(start))

	return snap.StationCount(), snap.EdgeCount(), nil
}

// Load publishes the active stored snapshot. It reports false when the
// store is empty or absent.
func (s *Service) Load(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, nil
	}
	stored, err := s.store.LoadActive(ctx)
	if err != nil {
		return false, fmt.Errorf("loading snapshot: %w", err)
	}
	if stored == nil {
		return false, nil
	}

	snap, err := newSnapshot(stored.Info, stored.Stations, stored.Edges)
	if err != nil {
		return false, err
	}
	s.publish(snap)

	s.logger.Info("Loaded stored snapshot",
		"snapshot_id", snap.Info.SnapshotID,
		"created_at", snap.Info.CreatedAt,
		"stations", snap.StationCount(),
		"edges", snap.EdgeCount())
	return true, nil
}

func (s *Service) publish(snap *Snapshot) {
	snap.Info.IsActive = true
	s.current.Store(snap)
}

// RouteStep is one station of a route with its full record.
type RouteStep struct {
	Station     models.Station
	ViaTransfer bool
}

type RouteResult struct {
	SnapshotID   uuid.UUID
	From         models.Station
	To           models.Station
	Steps        []RouteStep
	TotalMinutes float64
	EdgeCount    int
	Transfers    int
}

type routeKey struct {
	snapshot uuid.UUID
	from, to string
}

type cachedRoute struct {
	result *RouteResult
}

// Route finds the minimum-time route between two stations. The boolean is
// false for unknown stations, unreachable pairs and an empty service.
func (s *Service) Route(fromID, toID string) (*RouteResult, bool) {
	snap := s.current.Load()
	if snap == nil {
		return nil, false
	}

	key := routeKey{snapshot: snap.Info.SnapshotID, from: fromID, to: toID}
	if s.cache != nil {
		if v, err := s.cache.Get(key); err == nil {
			cr := v.(cachedRoute)
			return cr.result, cr.result != nil
		}
	}

	result := s.route(snap, fromID, toID)
	if s.cache != nil {
		_ = s.cache.Set(key, cachedRoute{result: result})
	}
	return result, result != nil
}

func (s *Service) route(snap *Snapshot, fromID, toID string) *RouteResult {
	r, ok := snap.graph.FindPath(fromID, toID, s.weights)
	if !ok {
		return nil
	}

	steps := make([]RouteStep, 0, len(r.Steps))
	for _, st := range r.Steps {
		station, _ := snap.Station(st.StationID)
		steps = append(steps, RouteStep{Station: station, ViaTransfer: st.ViaTransfer})
	}

	return &RouteResult{
		SnapshotID:   snap.Info.SnapshotID,
		From:         steps[0].Station,
		To:           steps[len(steps)-1].Station,
		Steps:        steps,
		TotalMinutes: r.TotalMinutes,
		EdgeCount:    r.EdgeCount(),
		Transfers:    r.Transfers(),
	}
}

// Station looks up a single station in the active snapshot.
func (s *Service) Station(id string) (models.Station, bool) {
	snap := s.current.Load()
	if snap == nil {
		return models.Station{}, false
	}
	return snap.Station(id)
}

// ListStations returns stations whose name contains search (case-insensitive),
// in snapshot order. limit <= 0 means no cap.
func (s *Service) ListStations(search string, limit int) []models.Station {
	snap := s.current.Load()
	if snap == nil {
		return []models.Station{}
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	out := []models.Station{}
	for _, st := range snap.stations {
		if limit > 0 && len(out) >= limit {
			break
		}
		if needle == "" || strings.Contains(strings.ToLower(st.Name), needle) {
			out = append(out, st)
		}
	}
	return out
}
