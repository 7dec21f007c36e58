package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/metropath/internal/common/db"
	"github.com/metropath/internal/common/logger"
	"github.com/metropath/internal/metro/correction"
	"github.com/metropath/internal/metro/feed"
	"github.com/metropath/internal/metro/graph"
	"github.com/metropath/internal/metro/patches"
	"github.com/metropath/pkg/metro/models"
)

type fakeFetcher struct {
	mu    sync.Mutex
	doc   *feed.Document
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context) (*feed.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.doc, f.err
}

func (f *fakeFetcher) Source() string { return "fake" }

func (f *fakeFetcher) set(doc *feed.Document, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc, f.err = doc, err
}

type memoryStore struct {
	saved   []*db.Snapshot
	saveErr error
}

func (m *memoryStore) SaveSnapshot(ctx context.Context, snap *db.Snapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memoryStore) LoadActive(ctx context.Context) (*db.Snapshot, error) {
	if len(m.saved) == 0 {
		return nil, nil
	}
	return m.saved[len(m.saved)-1], nil
}

func ptr[T any](v T) *T { return &v }

func entry(id, name string, lat, lng float64, order int) feed.StationEntry {
	return feed.StationEntry{ID: ptr(id), Name: ptr(name), Lat: ptr(lat), Lng: ptr(lng), Order: ptr(order)}
}

// lines A-B-C-D and E-F; C and E share a location
func twoLineFeed() *feed.Document {
	return &feed.Document{Lines: []feed.Line{
		{
			ID: ptr("1"), Name: ptr("Red"), HexColor: "FF0000",
			Stations: []feed.StationEntry{
				entry("A", "Alpha", 55.70, 37.60, 0),
				entry("B", "Bravo", 55.72, 37.60, 1),
				entry("C", "Charlie", 55.74, 37.60, 2),
				entry("D", "Delta", 55.76, 37.60, 3),
			},
		},
		{
			ID: ptr("2"), Name: ptr("Blue"), HexColor: "0000FF",
			Stations: []feed.StationEntry{
				entry("E", "Echo", 55.74, 37.6004, 0),
				entry("F", "Foxtrot", 55.74, 37.64, 1),
			},
		},
	}}
}

func transferCatalog() *patches.Catalog {
	return &patches.Catalog{Version: "test", Additions: []patches.EdgePatch{
		{From: "C", To: "E", Class: models.Transfer},
	}}
}

func newTestService(t *testing.T, f feed.Fetcher, c *patches.Catalog, s correction.Strategy, store Store, cache int) *Service {
	t.Helper()
	engine, err := correction.New(c, s)
	if err != nil {
		t.Fatalf("correction.New: %v", err)
	}
	svc, err := New(f, engine, store, Options{Weights: graph.DefaultWeights, CacheSize: cache}, logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestRebuildAndRoute(t *testing.T) {
	f := &fakeFetcher{doc: twoLineFeed()}
	store := &memoryStore{}
	svc := newTestService(t, f, transferCatalog(), correction.Curated(), store, 16)

	stations, edges, err := svc.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if stations != 6 || edges != 10 {
		t.Errorf("Expected 6 stations and 10 edges, got %d and %d", stations, edges)
	}
	if len(store.saved) != 1 {
		t.Fatalf("Expected snapshot to be persisted, got %d", len(store.saved))
	}

	route, ok := svc.Route("A", "F")
	if !ok {
		t.Fatal("Expected a route A -> F")
	}
	if route.TotalMinutes != 15 || route.Transfers != 1 || route.EdgeCount != 4 {
		t.Errorf("Unexpected route totals: %+v", route)
	}
	if route.From.Name != "Alpha" || route.To.Name != "Foxtrot" {
		t.Errorf("Unexpected endpoints %s -> %s", route.From.Name, route.To.Name)
	}
	if route.Steps[3].Station.ID != "E" || !route.Steps[3].ViaTransfer {
		t.Errorf("Expected step 3 to be a transfer to E, got %+v", route.Steps[3])
	}
	if route.Steps[3].Station.LineColor != "#0000FF" {
		t.Errorf("Expected line colour carried into route, got %s", route.Steps[3].Station.LineColor)
	}

	snap := svc.Current()
	if snap.Info.SnapshotID != store.saved[0].Info.SnapshotID {
		t.Error("Expected published snapshot to match the stored one")
	}
	if !snap.Info.IsActive || snap.Info.Policy != "curated" || snap.Info.CatalogVer != "test" {
		t.Errorf("Unexpected snapshot info %+v", snap.Info)
	}
}

func TestRouteBeforeFirstRebuild(t *testing.T) {
	svc := newTestService(t, &fakeFetcher{}, nil, correction.Curated(), nil, 0)

	if _, ok := svc.Route("A", "B"); ok {
		t.Error("Expected no route before any snapshot")
	}
	if _, ok := svc.Station("A"); ok {
		t.Error("Expected no station before any snapshot")
	}
	if got := svc.ListStations("", 10); len(got) != 0 {
		t.Errorf("Expected no stations, got %d", len(got))
	}
	if svc.Current() != nil {
		t.Error("Expected nil snapshot")
	}
}

func TestEmptyFeedServesNotFound(t *testing.T) {
	f := &fakeFetcher{doc: &feed.Document{}}
	svc := newTestService(t, f, nil, correction.Curated(), nil, 0)

	if _, _, err := svc.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if _, ok := svc.Route("A", "A"); ok {
		t.Error("Expected not-found on an empty graph")
	}
}

func TestFailedRebuildKeepsPreviousSnapshot(t *testing.T) {
	f := &fakeFetcher{doc: twoLineFeed()}
	store := &memoryStore{}
	svc := newTestService(t, f, transferCatalog(), correction.Curated(), store, 16)

	if _, _, err := svc.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	before := svc.Current()

	tests := []struct {
		name  string
		setup func()
	}{
		{"fetch error", func() { f.set(nil, errors.New("upstream down")) }},
		{"malformed feed", func() {
			f.set(&feed.Document{Lines: []feed.Line{{Name: ptr("no id")}}}, nil)
		}},
		{"store error", func() {
			f.set(twoLineFeed(), nil)
			store.saveErr = errors.New("disk full")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			if _, _, err := svc.Rebuild(context.Background()); err == nil {
				t.Fatal("Expected rebuild error")
			}
			if svc.Current() != before {
				t.Error("Expected previous snapshot to stay active")
			}
			if _, ok := svc.Route("A", "F"); !ok {
				t.Error("Expected routing to keep working")
			}
		})
	}
}

func TestUnknownStationAdditionFailsRebuild(t *testing.T) {
	f := &fakeFetcher{doc: twoLineFeed()}
	c := &patches.Catalog{Version: "bad", Additions: []patches.EdgePatch{
		{From: "A", To: "nowhere", Class: models.Transfer},
	}}
	svc := newTestService(t, f, c, correction.Curated(), nil, 0)

	_, _, err := svc.Rebuild(context.Background())
	if !errors.Is(err, correction.ErrUnknownStation) {
		t.Errorf("Expected ErrUnknownStation, got %v", err)
	}
	if svc.Current() != nil {
		t.Error("Expected no snapshot to be published")
	}
}

func TestProximityPolicyFindsTransfer(t *testing.T) {
	f := &fakeFetcher{doc: twoLineFeed()}
	svc := newTestService(t, f, nil, correction.Proximity(0.001), nil, 0)

	if _, _, err := svc.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	route, ok := svc.Route("A", "F")
	if !ok || route.TotalMinutes != 15 {
		t.Errorf("Expected inferred C-E transfer to give a 15 minute route, got %v", route)
	}
}

func TestRouteCacheIsScopedToSnapshot(t *testing.T) {
	f := &fakeFetcher{doc: twoLineFeed()}
	svc := newTestService(t, f, transferCatalog(), correction.Curated(), nil, 16)

	if _, _, err := svc.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	first, ok := svc.Route("A", "F")
	if !ok {
		t.Fatal("Expected a route")
	}
	again, _ := svc.Route("A", "F")
	if again != first {
		t.Error("Expected cached result for repeated query")
	}

	// the next feed drops the B-C segment
	doc := twoLineFeed()
	doc.Lines[0].Stations = doc.Lines[0].Stations[:2]
	doc.Lines = append(doc.Lines, feed.Line{
		ID: ptr("3"), Name: ptr("Green"),
		Stations: []feed.StationEntry{
			entry("C", "Charlie", 55.74, 37.60, 0),
			entry("D", "Delta", 55.76, 37.60, 1),
		},
	})
	f.set(doc, nil)

	if _, _, err := svc.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if _, ok := svc.Route("A", "F"); ok {
		t.Error("Expected stale cached route to be ignored after swap")
	}
}

func TestRouteCacheKeepsOpaqueIDsApart(t *testing.T) {
	f := &fakeFetcher{doc: &feed.Document{Lines: []feed.Line{
		{ID: ptr("1"), Name: ptr("Pipe"), Stations: []feed.StationEntry{
			entry("a", "a", 55.70, 37.60, 0),
			entry("b|c", "b|c", 55.71, 37.60, 1),
		}},
		{ID: ptr("2"), Name: ptr("Bar"), Stations: []feed.StationEntry{
			entry("a|b", "a|b", 55.80, 37.70, 0),
			entry("c", "c", 55.81, 37.70, 1),
		}},
	}}}
	svc := newTestService(t, f, nil, correction.Curated(), nil, 16)
	if _, _, err := svc.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if r, ok := svc.Route("a", "b|c"); !ok || r.From.ID != "a" || r.To.ID != "b|c" {
		t.Fatalf("Unexpected route a -> b|c: %+v", r)
	}
	r, ok := svc.Route("a|b", "c")
	if !ok {
		t.Fatal("Expected a route a|b -> c")
	}
	if r.From.ID != "a|b" || r.To.ID != "c" {
		t.Errorf("Expected a|b -> c, got %s -> %s", r.From.ID, r.To.ID)
	}
}

func TestSegmentSharedByTwoLinesIsStoredOnce(t *testing.T) {
	doc := twoLineFeed()
	doc.Lines = append(doc.Lines, feed.Line{
		ID: ptr("3"), Name: ptr("Express"),
		Stations: []feed.StationEntry{
			entry("A", "Alpha", 55.70, 37.60, 0),
			entry("B", "Bravo", 55.72, 37.60, 1),
		},
	})
	f := &fakeFetcher{doc: doc}
	svc := newTestService(t, f, transferCatalog(), correction.Curated(), nil, 0)

	_, edges, err := svc.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if edges != 10 {
		t.Errorf("Expected 10 edges, got %d", edges)
	}

	seen := map[models.Edge]int{}
	for _, e := range svc.Current().Edges() {
		seen[e]++
	}
	for e, n := range seen {
		if n != 1 {
			t.Errorf("Edge %+v appears %d times", e, n)
		}
	}
	if seen[models.Edge{From: "B", To: "A", Class: models.Segment}] != 1 {
		t.Error("Expected the shared B -> A segment to survive")
	}
}

func TestLoadFromStore(t *testing.T) {
	store := &memoryStore{}
	f := &fakeFetcher{doc: twoLineFeed()}
	writer := newTestService(t, f, transferCatalog(), correction.Curated(), store, 0)
	if _, _, err := writer.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	reader := newTestService(t, &fakeFetcher{err: errors.New("unused")}, nil, correction.Curated(), store, 0)
	loaded, err := reader.Load(context.Background())
	if err != nil || !loaded {
		t.Fatalf("Expected snapshot to load, got %v %v", loaded, err)
	}
	if reader.Current().Info.SnapshotID != writer.Current().Info.SnapshotID {
		t.Error("Expected the stored snapshot id")
	}
	if _, ok := reader.Route("A", "F"); !ok {
		t.Error("Expected loaded snapshot to route")
	}

	empty := newTestService(t, f, nil, correction.Curated(), &memoryStore{}, 0)
	if loaded, err := empty.Load(context.Background()); err != nil || loaded {
		t.Errorf("Expected nothing to load, got %v %v", loaded, err)
	}
	if loaded, _ := newTestService(t, f, nil, correction.Curated(), nil, 0).Load(context.Background()); loaded {
		t.Error("Expected no load without a store")
	}
}

func TestListStations(t *testing.T) {
	f := &fakeFetcher{doc: twoLineFeed()}
	svc := newTestService(t, f, transferCatalog(), correction.Curated(), nil, 0)
	if _, _, err := svc.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if got := svc.ListStations("", 0); len(got) != 6 {
		t.Errorf("Expected all 6 stations, got %d", len(got))
	}
	if got := svc.ListStations("", 2); len(got) != 2 || got[0].ID != "A" || got[1].ID != "B" {
		t.Errorf("Expected first two stations in order, got %+v", got)
	}
	got := svc.ListStations("CHAR", 10)
	if len(got) != 1 || got[0].ID != "C" {
		t.Errorf("Expected case-insensitive match on Charlie, got %+v", got)
	}
	if got := svc.ListStations("zulu", 10); len(got) != 0 {
		t.Errorf("Expected no match, got %+v", got)
	}

	st, ok := svc.Station("E")
	if !ok || st.LineName != "Blue" {
		t.Errorf("Expected station E on Blue, got %+v %v", st, ok)
	}
}

func TestConcurrentRoutingDuringRebuild(t *testing.T) {
	f := &fakeFetcher{doc: twoLineFeed()}
	svc := newTestService(t, f, transferCatalog(), correction.Curated(), nil, 64)
	if _, _, err := svc.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if r, ok := svc.Route("A", "F"); !ok || r.TotalMinutes != 15 {
					t.Errorf("Unexpected route during rebuild: %v %v", r, ok)
					return
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		if _, _, err := svc.Rebuild(context.Background()); err != nil {
			t.Errorf("Rebuild failed: %v", err)
		}
	}
	wg.Wait()
}
