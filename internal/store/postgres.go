// Package store is an optional observability sink: it persists
// periodic ingestion checkpoints and destroyed-range audit rows to
// Postgres. The core ledger (internal/ledger) never touches disk —
// spec.md's Non-goals exclude persistence of the UTXO set itself — but
// an ambient checkpoint log is the kind of surrounding infrastructure
// the teacher repo builds around its own in-memory engine.
package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type CheckpointStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*CheckpointStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}
	log.Println("Successfully connected to PostgreSQL for checkpoint persistence")
	return &CheckpointStore{pool: pool}, nil
}

func (s *CheckpointStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql.
func (s *CheckpointStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/store/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}
	if _, err := s.pool.Exec(context.Background(), string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}
	log.Println("FTS tracker checkpoint schema initialized")
	return nil
}

// SaveCheckpoint records one ingestion checkpoint row.
func (s *CheckpointStore) SaveCheckpoint(ctx context.Context, runID string, height uint64, utxoCount, rangeCount int, totalMinted uint64, isFinal bool) error {
	const sql = `
		INSERT INTO ingestion_checkpoints (run_id, height, utxo_count, range_count, total_minted, is_final)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := s.pool.Exec(ctx, sql, runID, int64(height), int64(utxoCount), int64(rangeCount), int64(totalMinted), isFinal)
	return err
}

// SaveDestroyedRange records one fee-sweep-into-sentinel event for audit.
func (s *CheckpointStore) SaveDestroyedRange(ctx context.Context, runID, coinbaseTx string, lo, hi uint64) error {
	const sql = `
		INSERT INTO destroyed_ranges (run_id, coinbase_tx, lo, hi)
		VALUES ($1, $2, $3, $4);
	`
	_, err := s.pool.Exec(ctx, sql, runID, coinbaseTx, int64(lo), int64(hi))
	return err
}

// Checkpoint is one row of recorded ingestion progress.
type Checkpoint struct {
	Height      uint64    `json:"height"`
	UTXOCount   int       `json:"utxoCount"`
	RangeCount  int       `json:"rangeCount"`
	TotalMinted uint64    `json:"totalMinted"`
	IsFinal     bool      `json:"isFinal"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// RecentCheckpoints returns the most recent checkpoints for runID, newest
// first, capped at limit rows.
func (s *CheckpointStore) RecentCheckpoints(ctx context.Context, runID string, limit int) ([]Checkpoint, error) {
	const sql = `
		SELECT height, utxo_count, range_count, total_minted, is_final, recorded_at
		FROM ingestion_checkpoints
		WHERE run_id = $1
		ORDER BY height DESC
		LIMIT $2;
	`
	rows, err := s.pool.Query(ctx, sql, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var height, utxoCount, rangeCount, totalMinted int64
		if err := rows.Scan(&height, &utxoCount, &rangeCount, &totalMinted, &cp.IsFinal, &cp.RecordedAt); err != nil {
			return nil, err
		}
		cp.Height = uint64(height)
		cp.UTXOCount = int(utxoCount)
		cp.RangeCount = int(rangeCount)
		cp.TotalMinted = uint64(totalMinted)
		out = append(out, cp)
	}
	return out, rows.Err()
}
