package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// batchInserter accumulates rows and writes them as multi-row INSERTs.
type batchInserter struct {
	db         *DB
	tx         *sql.Tx
	tableName  string
	columns    []string
	values     []interface{}
	valueCount int
	batchSize  int
}

func (s *SnapshotStore) newBatchInserter(tx *sql.Tx, tableName string, columns []string) *batchInserter {
	return &batchInserter{
		db:        s.db,
		tx:        tx,
		tableName: tableName,
		columns:   columns,
		values:    make([]interface{}, 0, s.batchSize*len(columns)),
		batchSize: s.batchSize,
	}
}

func (b *batchInserter) Add(ctx context.Context, values ...interface{}) error {
	if len(values) != len(b.columns) {
		return fmt.Errorf("%s: got %d values for %d columns", b.tableName, len(values), len(b.columns))
	}
	b.values = append(b.values, values...)
	b.valueCount++

	if b.valueCount >= b.batchSize {
		return b.Flush(ctx)
	}
	return nil
}

func (b *batchInserter) Flush(ctx context.Context) error {
	if b.valueCount == 0 {
		return nil
	}

	if _, err := b.tx.ExecContext(ctx, b.buildInsertQuery(), b.values...); err != nil {
		return fmt.Errorf("executing batch insert: %w", err)
	}

	b.values = b.values[:0]
	b.valueCount = 0
	return nil
}

func (b *batchInserter) buildInsertQuery() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", b.tableName, strings.Join(b.columns, ", "))

	fieldCount := len(b.columns)
	for i := 0; i < b.valueCount; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < fieldCount; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(b.db.Placeholder(i*fieldCount + j + 1))
		}
		sb.WriteString(")")
	}

	return sb.String()
}
