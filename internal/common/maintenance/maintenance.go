package maintenance

import (
	"context"
	"fmt"
	"strings"

	"github.com/metropath/internal/common/db"
	"github.com/metropath/internal/common/logger"
)

// CleanupResult describes one pruned snapshot.
type CleanupResult struct {
	SnapshotID     string
	StationsPruned int64
	EdgesPruned    int64
}

// Maintenance prunes snapshots that are no longer needed.
type Maintenance struct {
	db     *db.DB
	logger logger.Logger
}

func New(database *db.DB, logger logger.Logger) *Maintenance {
	return &Maintenance{
		db:     database,
		logger: logger,
	}
}

// CleanupOldSnapshots deletes inactive snapshots, keeping the active one and
// the keepInactive most recent inactive ones as fallback.
func (m *Maintenance) CleanupOldSnapshots(ctx context.Context, keepInactive int) ([]CleanupResult, error) {
	m.logger.Debug("Starting cleanup of old snapshots", "keep_inactive", keepInactive)

	ids, err := m.inactiveSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) <= keepInactive {
		return nil, nil
	}
	stale := ids[keepInactive:]

	tx, err := m.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ph := m.db.Placeholder(1)
	var results []CleanupResult
	for _, id := range stale {
		res := CleanupResult{SnapshotID: id}

		r, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE snapshot_id = "+ph, id)
		if err != nil {
			return nil, fmt.Errorf("deleting edges of %s: %w", id, err)
		}
		res.EdgesPruned, _ = r.RowsAffected()

		r, err = tx.ExecContext(ctx, "DELETE FROM stations WHERE snapshot_id = "+ph, id)
		if err != nil {
			return nil, fmt.Errorf("deleting stations of %s: %w", id, err)
		}
		res.StationsPruned, _ = r.RowsAffected()

		if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE is_active = FALSE AND snapshot_id = "+ph, id); err != nil {
			return nil, fmt.Errorf("deleting snapshot %s: %w", id, err)
		}
		results = append(results, res)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	for _, res := range results {
		m.logger.Info("Pruned snapshot",
			"snapshot_id", res.SnapshotID,
			"stations", res.StationsPruned,
			"edges", res.EdgesPruned)
	}

	if err := m.vacuum(ctx); err != nil {
		m.logger.Warn("Failed to vacuum after cleanup", "error", err)
	}

	return results, nil
}

func (m *Maintenance) inactiveSnapshots(ctx context.Context) ([]string, error) {
	rows, err := m.db.DB().QueryContext(ctx, `
		SELECT snapshot_id
		FROM snapshots
		WHERE is_active = FALSE
		ORDER BY created_at DESC, snapshot_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying inactive snapshots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning snapshot id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// vacuum runs outside any transaction.
func (m *Maintenance) vacuum(ctx context.Context) error {
	var stmts []string
	switch m.db.Dialect() {
	case db.Postgres:
		for _, t := range []string{"snapshots", "stations", "edges"} {
			stmts = append(stmts, "VACUUM ANALYZE "+t)
		}
	default:
		stmts = []string{"VACUUM"}
	}

	for _, stmt := range stmts {
		if _, err := m.db.DB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(stmt), err)
		}
	}
	return nil
}
