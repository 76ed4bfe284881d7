// Package vector persists documents and chunk embeddings in PostgreSQL
// with pgvector, and answers similarity and lexical queries over them.
package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/brainbox0/brainbox/internal/knowledge"
	"github.com/brainbox0/brainbox/internal/log"
)

// Dimensions is the embedding width the chunks table is declared with.
// It matches the text-embedding-004 family used by the default embedder.
const Dimensions = 768

// ErrDimensionMismatch indicates an embedding of the wrong width.
var ErrDimensionMismatch = errors.New("vector: embedding dimension mismatch")

// querier is the subset of pgxpool.Pool the store needs; tests may
// substitute their own implementation.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Hit is one retrieval candidate. Score is cosine similarity for
// similarity search and a normalized ts_rank for lexical search.
type Hit struct {
	ChunkID    string
	DocumentID string
	Source     string
	Text       string
	Score      float64
	CreatedAt  time.Time
	TokenCount int
}

// Store is the recall half of the knowledge base.
type Store struct {
	db     querier
	logger *log.Logger
}

func NewStore(db querier, logger *log.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("vector: querier is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}, nil
}

// UpsertDocument records document metadata. Re-indexing the same content
// hits the same ID and is a no-op apart from refreshing metadata.
func (s *Store) UpsertDocument(ctx context.Context, doc knowledge.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO documents (id, source, source_type, raw_length, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET metadata = EXCLUDED.metadata`,
		doc.ID, doc.Source, string(doc.SourceType), doc.RawLength, meta, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// DocumentExists reports whether a document ID is already indexed.
func (s *Store) DocumentExists(ctx context.Context, documentID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, documentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check document: %w", err)
	}
	return exists, nil
}

// UpsertChunk stores a chunk row. A nil embedding leaves the vector NULL;
// the chunk text is still recorded so a later pass can embed it without
// re-chunking the document.
func (s *Store) UpsertChunk(ctx context.Context, chunk knowledge.Chunk, embedding []float32) error {
	var vec any
	if embedding != nil {
		if len(embedding) != Dimensions {
			return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), Dimensions)
		}
		vec = pgvector.NewVector(embedding)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, byte_offset, token_count, text, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET embedding = COALESCE(EXCLUDED.embedding, chunks.embedding)`,
		chunk.ID, chunk.DocumentID, chunk.Index, chunk.Offset, chunk.TokenCount, chunk.Text, vec,
	)
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	return nil
}

// SetEmbedding fills in the vector for an already-stored chunk.
func (s *Store) SetEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	if len(embedding) != Dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), Dimensions)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE chunks SET embedding = $2 WHERE id = $1`,
		chunkID, pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set embedding: chunk %s not found", chunkID)
	}
	return nil
}

// ChunksByDocument returns a document's chunks in index order, text
// included, for re-embedding and purge bookkeeping.
func (s *Store) ChunksByDocument(ctx context.Context, documentID string) ([]knowledge.Chunk, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, chunk_index, byte_offset, token_count, text
		FROM chunks WHERE document_id = $1 ORDER BY chunk_index`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("query document chunks: %w", err)
	}
	defer rows.Close()

	var out []knowledge.Chunk
	for rows.Next() {
		var c knowledge.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Offset, &c.TokenCount, &c.Text); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChunksMissingEmbedding returns the document's chunks whose vector is
// still NULL, so repair passes touch only the work that actually failed.
func (s *Store) ChunksMissingEmbedding(ctx context.Context, documentID string) ([]knowledge.Chunk, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, chunk_index, byte_offset, token_count, text
		FROM chunks WHERE document_id = $1 AND embedding IS NULL
		ORDER BY chunk_index`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("query unembedded chunks: %w", err)
	}
	defer rows.Close()

	var out []knowledge.Chunk
	for rows.Next() {
		var c knowledge.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Offset, &c.TokenCount, &c.Text); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SearchSimilar returns the k chunks nearest to the query embedding by
// cosine distance. Chunks that never got an embedding are invisible here.
func (s *Store) SearchSimilar(ctx context.Context, embedding []float32, k int) ([]Hit, error) {
	if len(embedding) != Dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), Dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.document_id, d.source, c.text, c.token_count,
		       1 - (c.embedding <=> $1) AS score, d.created_at
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.embedding IS NOT NULL
		ORDER BY c.embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()
	return collectHits(rows)
}

// SearchLexical runs a websearch-syntax full-text query over chunk text.
// Scores are ts_rank values, already in [0,1) for typical queries.
func (s *Store) SearchLexical(ctx context.Context, query string, k int) ([]Hit, error) {
	if query == "" || k <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.document_id, d.source, c.text, c.token_count,
		       ts_rank(to_tsvector('english', c.text), websearch_to_tsquery('english', $1)) AS score,
		       d.created_at
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE to_tsvector('english', c.text) @@ websearch_to_tsquery('english', $1)
		ORDER BY score DESC
		LIMIT $2`,
		query, k)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()
	return collectHits(rows)
}

// DeleteDocument removes a document and, through the foreign key cascade,
// its chunks. The deleted chunk IDs are returned so callers can retract
// graph provenance and ledger rows.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks for delete: %w", err)
	}
	var chunkIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		chunkIDs = append(chunkIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, documentID); err != nil {
		return nil, fmt.Errorf("delete document: %w", err)
	}
	s.logger.Debug("document deleted", "document_id", documentID, "chunks", len(chunkIDs))
	return chunkIDs, nil
}

// Counts reports document and chunk totals for stats.
func (s *Store) Counts(ctx context.Context) (documents, chunks int64, err error) {
	err = s.db.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM documents), (SELECT count(*) FROM chunks)`,
	).Scan(&documents, &chunks)
	if err != nil {
		return 0, 0, fmt.Errorf("count store: %w", err)
	}
	return documents, chunks, nil
}

func collectHits(rows pgx.Rows) ([]Hit, error) {
	var out []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Source, &h.Text, &h.TokenCount, &h.Score, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
