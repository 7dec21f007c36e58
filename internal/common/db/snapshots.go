package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/metropath/pkg/metro/models"
)

// Snapshot is one materialized graph at rest: stations keyed by id and
// edges as directed triples.
type Snapshot struct {
	Info     models.SnapshotInfo
	Stations []models.Station
	Edges    []models.Edge
}

// SnapshotStore persists snapshots and tracks which one is active.
type SnapshotStore struct {
	db        *DB
	batchSize int
}

func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db, batchSize: 500}
}

// SaveSnapshot writes the snapshot and activates it in a single transaction.
// On any error the previously active snapshot stays active.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	info := snap.Info
	query := fmt.Sprintf(`
		INSERT INTO snapshots (snapshot_id, created_at, is_active, source, policy, catalog_version, station_count, edge_count)
		VALUES (%s, %s, FALSE, %s, %s, %s, %s, %s)`,
		s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3), s.db.Placeholder(4),
		s.db.Placeholder(5), s.db.Placeholder(6), s.db.Placeholder(7))
	_, err = tx.ExecContext(ctx, query,
		info.SnapshotID.String(),
		info.CreatedAt.UTC(),
		info.Source,
		info.Policy,
		info.CatalogVer,
		len(snap.Stations),
		len(snap.Edges),
	)
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}

	stationBatch := s.newBatchInserter(tx, "stations", []string{
		"snapshot_id", "seq", "station_id", "name", "lat", "lng", "line_id", "line_name", "line_color", "station_order",
	})
	for i, st := range snap.Stations {
		err := stationBatch.Add(ctx, info.SnapshotID.String(), i, st.ID, st.Name, st.Lat, st.Lng,
			st.LineID, st.LineName, st.LineColor, st.Order)
		if err != nil {
			return fmt.Errorf("inserting stations: %w", err)
		}
	}

	edgeBatch := s.newBatchInserter(tx, "edges", []string{
		"snapshot_id", "seq", "from_station_id", "to_station_id", "edge_class",
	})
	for i, e := range snap.Edges {
		if err := edgeBatch.Add(ctx, info.SnapshotID.String(), i, e.From, e.To, string(e.Class)); err != nil {
			return fmt.Errorf("inserting edges: %w", err)
		}
	}

	for _, b := range []*batchInserter{stationBatch, edgeBatch} {
		if err := b.Flush(ctx); err != nil {
			return fmt.Errorf("flushing %s batch: %w", b.tableName, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE snapshots SET is_active = FALSE WHERE is_active = TRUE"); err != nil {
		return fmt.Errorf("deactivating snapshots: %w", err)
	}
	activate := fmt.Sprintf("UPDATE snapshots SET is_active = TRUE WHERE snapshot_id = %s", s.db.Placeholder(1))
	if _, err := tx.ExecContext(ctx, activate, info.SnapshotID.String()); err != nil {
		return fmt.Errorf("activating snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.db.logger.Info("Stored and activated snapshot",
		"snapshot_id", info.SnapshotID,
		"stations", len(snap.Stations),
		"edges", len(snap.Edges))
	return nil
}

// LoadActive returns the active snapshot, or nil when none has been stored yet.
func (s *SnapshotStore) LoadActive(ctx context.Context) (*Snapshot, error) {
	query := `
		SELECT snapshot_id, created_at, is_active, source, policy, catalog_version, station_count, edge_count
		FROM snapshots
		WHERE is_active = TRUE
		LIMIT 1
	`
	info, err := scanInfo(s.db.conn.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		s.db.logger.Info("No active snapshot found in database")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying active snapshot: %w", err)
	}

	snap := &Snapshot{Info: *info}
	if snap.Stations, err = s.loadStations(ctx, info.SnapshotID); err != nil {
		return nil, err
	}
	if snap.Edges, err = s.loadEdges(ctx, info.SnapshotID); err != nil {
		return nil, err
	}

	s.db.logger.Debug("Loaded active snapshot",
		"snapshot_id", info.SnapshotID,
		"stations", len(snap.Stations),
		"edges", len(snap.Edges))
	return snap, nil
}

// ListSnapshots returns every stored snapshot, newest first.
func (s *SnapshotStore) ListSnapshots(ctx context.Context) ([]models.SnapshotInfo, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT snapshot_id, created_at, is_active, source, policy, catalog_version, station_count, edge_count
		FROM snapshots
		ORDER BY created_at DESC, snapshot_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.SnapshotInfo
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		out = append(out, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInfo(row rowScanner) (*models.SnapshotInfo, error) {
	var (
		info models.SnapshotInfo
		id   string
	)
	err := row.Scan(
		&id,
		&info.CreatedAt,
		&info.IsActive,
		&info.Source,
		&info.Policy,
		&info.CatalogVer,
		&info.StationCount,
		&info.EdgeCount,
	)
	if err != nil {
		return nil, err
	}
	if info.SnapshotID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parsing snapshot id %q: %w", id, err)
	}
	info.CreatedAt = info.CreatedAt.In(time.UTC)
	return &info, nil
}

func (s *SnapshotStore) loadStations(ctx context.Context, id uuid.UUID) ([]models.Station, error) {
	query := fmt.Sprintf(`
		SELECT station_id, name, lat, lng, line_id, line_name, line_color, station_order
		FROM stations
		WHERE snapshot_id = %s
		ORDER BY seq
	`, s.db.Placeholder(1))
	rows, err := s.db.conn.QueryContext(ctx, query, id.String())
	if err != nil {
		return nil, fmt.Errorf("querying stations: %w", err)
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var st models.Station
		err := rows.Scan(&st.ID, &st.Name, &st.Lat, &st.Lng, &st.LineID, &st.LineName, &st.LineColor, &st.Order)
		if err != nil {
			return nil, fmt.Errorf("scanning station row: %w", err)
		}
		stations = append(stations, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating station rows: %w", err)
	}
	return stations, nil
}

func (s *SnapshotStore) loadEdges(ctx context.Context, id uuid.UUID) ([]models.Edge, error) {
	query := fmt.Sprintf(`
		SELECT from_station_id, to_station_id, edge_class
		FROM edges
		WHERE snapshot_id = %s
		ORDER BY seq
	`, s.db.Placeholder(1))
	rows, err := s.db.conn.QueryContext(ctx, query, id.String())
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	var edges []models.Edge
	for rows.Next() {
		var (
			e     models.Edge
			class string
		)
		if err := rows.Scan(&e.From, &e.To, &class); err != nil {
			return nil, fmt.Errorf("scanning edge row: %w", err)
		}
		if e.Class, err = models.ParseEdgeClass(class); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edge rows: %w", err)
	}
	return edges, nil
}
