package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/brainbox0/brainbox/internal/log"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists ledger records in PostgreSQL.
type Store struct {
	db     querier
	logger *log.Logger
}

func NewStore(db querier, logger *log.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("ledger: querier is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}, nil
}

// Put writes or replaces the full record for a document.
func (s *Store) Put(ctx context.Context, rec Record) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO index_records
			(document_id, source, chunk_ids, vector_status, graph_status, last_error, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (document_id) DO UPDATE SET
			chunk_ids     = EXCLUDED.chunk_ids,
			vector_status = EXCLUDED.vector_status,
			graph_status  = EXCLUDED.graph_status,
			last_error    = EXCLUDED.last_error,
			attempts      = EXCLUDED.attempts,
			updated_at    = EXCLUDED.updated_at`,
		rec.DocumentID, rec.Source, rec.ChunkIDs,
		string(rec.VectorStatus), string(rec.GraphStatus),
		rec.LastError, rec.Attempts, now,
	)
	if err != nil {
		return fmt.Errorf("put ledger record: %w", err)
	}
	return nil
}

// Get loads the record for one document.
func (s *Store) Get(ctx context.Context, documentID string) (*Record, error) {
	rec, err := scanRecord(s.db.QueryRow(ctx, `
		SELECT document_id, source, chunk_ids, vector_status, graph_status,
		       last_error, attempts, created_at, updated_at
		FROM index_records WHERE document_id = $1`, documentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger record: %w", err)
	}
	return rec, nil
}

// SetVectorStatus updates one half of a record after a repair attempt.
func (s *Store) SetVectorStatus(ctx context.Context, documentID string, status Status, lastError string) error {
	return s.setStatus(ctx, "vector_status", documentID, status, lastError)
}

// SetGraphStatus updates the graph half of a record.
func (s *Store) SetGraphStatus(ctx context.Context, documentID string, status Status, lastError string) error {
	return s.setStatus(ctx, "graph_status", documentID, status, lastError)
}

func (s *Store) setStatus(ctx context.Context, column, documentID string, status Status, lastError string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE index_records SET `+column+` = $2, last_error = $3, attempts = attempts + 1, updated_at = now()
		 WHERE document_id = $1`,
		documentID, string(status), lastError,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListNeedingRepair returns records with at least one failed store half,
// oldest first so long-broken documents get attention before fresh
// failures.
func (s *Store) ListNeedingRepair(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT document_id, source, chunk_ids, vector_status, graph_status,
		       last_error, attempts, created_at, updated_at
		FROM index_records
		WHERE vector_status IN ('failed', 'partial') OR graph_status = 'failed'
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list repairable records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Delete removes the ledger row for a purged document.
func (s *Store) Delete(ctx context.Context, documentID string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM index_records WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete ledger record: %w", err)
	}
	return nil
}

// CountByState tallies documents per derived state for stats output.
func (s *Store) CountByState(ctx context.Context) (map[State]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT vector_status, graph_status, count(*) FROM index_records
		 GROUP BY vector_status, graph_status`)
	if err != nil {
		return nil, fmt.Errorf("count ledger records: %w", err)
	}
	defer rows.Close()

	counts := make(map[State]int64)
	for rows.Next() {
		var vs, gs string
		var n int64
		if err := rows.Scan(&vs, &gs, &n); err != nil {
			return nil, fmt.Errorf("scan ledger count: %w", err)
		}
		rec := Record{VectorStatus: Status(vs), GraphStatus: Status(gs)}
		counts[rec.DeriveState()] += n
	}
	return counts, rows.Err()
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var vs, gs string
	err := row.Scan(
		&rec.DocumentID, &rec.Source, &rec.ChunkIDs, &vs, &gs,
		&rec.LastError, &rec.Attempts, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.VectorStatus, rec.GraphStatus = Status(vs), Status(gs)
	return &rec, nil
}
