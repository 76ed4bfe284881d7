// Package indexer runs the ingestion pipeline: chunk, embed, extract,
// and record the outcome in the consistency ledger.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/brainbox0/brainbox/internal/chunker"
	"github.com/brainbox0/brainbox/internal/extract"
	"github.com/brainbox0/brainbox/internal/knowledge"
	"github.com/brainbox0/brainbox/internal/ledger"
	"github.com/brainbox0/brainbox/internal/log"
)

// Status summarizes how far a document got through the pipeline.
type Status string

const (
	// StatusComplete means the document is in both stores in full.
	StatusComplete Status = "complete"
	// StatusPartial means the document is searchable but the graph is
	// missing some or all of its entities.
	StatusPartial Status = "partial: recall-only"
	// StatusFailed means the document cannot be recalled by search.
	StatusFailed Status = "failed"
	// StatusDuplicate means identical content from the same source was
	// already indexed; nothing was written.
	StatusDuplicate Status = "duplicate"
)

const (
	// embedBatchSize bounds texts per embedding call.
	embedBatchSize = 16
	// embedTimeout bounds one embedding call.
	embedTimeout = 10 * time.Second
	// embedRetries is how many extra attempts a failed batch gets.
	embedRetries = 2
	// extractTimeout bounds entity extraction for one chunk.
	extractTimeout = 90 * time.Second
)

// Outcome reports the result of indexing one document.
type Outcome struct {
	DocumentID    string
	Status        Status
	ChunkCount    int
	EntityCount   int
	RelationCount int
	Errors        []string
}

// VectorStore is the recall-side persistence the indexer needs.
type VectorStore interface {
	UpsertDocument(ctx context.Context, doc knowledge.Document) error
	UpsertChunk(ctx context.Context, chunk knowledge.Chunk, embedding []float32) error
}

// GraphWriter merges extracted knowledge into the graph.
type GraphWriter interface {
	UpsertEntity(ctx context.Context, name, entityType, description, chunkID string) (string, error)
	UpsertRelation(ctx context.Context, sourceID, targetID, label, chunkID string) (string, error)
}

// Ledger records per-document indexing outcomes. It is the source of
// truth for what happened to a document: the duplicate check reads it
// rather than probing the stores, so a crash between store writes and the
// ledger write leaves a document that re-runs instead of one that lies.
type Ledger interface {
	Get(ctx context.Context, documentID string) (*ledger.Record, error)
	Put(ctx context.Context, rec ledger.Record) error
}

// Embedder turns texts into vectors, batch at a time.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Extractor pulls entities and relations from chunk text.
type Extractor interface {
	Extract(ctx context.Context, text string) (extract.Result, error)
}

// Indexer drives a document through chunking, embedding, extraction, and
// the ledger. Failures are isolated per chunk and per store half: a bad
// chunk or a down extraction model degrades the outcome instead of
// aborting it.
type Indexer struct {
	vectors   VectorStore
	graph     GraphWriter
	records   Ledger
	embedder  Embedder
	extractor Extractor
	chunker   *chunker.Chunker
	limiter   *rate.Limiter
	logger    *log.Logger
}

func New(vectors VectorStore, graph GraphWriter, records Ledger, embedder Embedder, extractor Extractor, ch *chunker.Chunker, logger *log.Logger) (*Indexer, error) {
	if vectors == nil || records == nil || embedder == nil {
		return nil, errors.New("indexer: vector store, ledger, and embedder are required")
	}
	if ch == nil {
		ch = chunker.New(chunker.Config{})
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Indexer{
		vectors:   vectors,
		graph:     graph,
		records:   records,
		embedder:  embedder,
		extractor: extractor,
		chunker:   ch,
		limiter:   rate.NewLimiter(rate.Limit(2), 1),
		logger:    logger,
	}, nil
}

// Index ingests one normalized document. Identical content from the same
// source maps to the same document ID and returns StatusDuplicate without
// touching the stores.
func (ix *Indexer) Index(ctx context.Context, doc knowledge.Document) (Outcome, error) {
	if doc.Text == "" {
		return Outcome{}, chunker.ErrEmptyContent
	}
	if doc.ID == "" {
		doc.ID = knowledge.NewDocumentID(doc.Source, doc.Text)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	out := Outcome{DocumentID: doc.ID}

	// Only a ledger row with both halves done is a duplicate. An absent
	// or unfinished row means the previous attempt did not complete, and
	// the content-addressed IDs make the re-run idempotent.
	prev, err := ix.records.Get(ctx, doc.ID)
	if err != nil && !errors.Is(err, ledger.ErrRecordNotFound) {
		return out, fmt.Errorf("duplicate check: %w", err)
	}
	if prev != nil && prev.VectorStatus == ledger.StatusDone && prev.GraphStatus == ledger.StatusDone {
		out.Status = StatusDuplicate
		ix.logger.Debug("document already indexed", "document_id", doc.ID)
		return out, nil
	}

	chunks, err := ix.chunker.Split(doc.ID, doc.Text)
	if err != nil {
		return out, fmt.Errorf("chunk document: %w", err)
	}
	out.ChunkCount = len(chunks)

	if err := ix.vectors.UpsertDocument(ctx, doc); err != nil {
		return out, fmt.Errorf("store document: %w", err)
	}

	embeddings, embedErrs := ix.embedAll(ctx, chunks)
	embedded := 0
	for i, c := range chunks {
		if err := ix.vectors.UpsertChunk(ctx, c, embeddings[i]); err != nil {
			return out, fmt.Errorf("store chunk %s: %w", c.ID, err)
		}
		if embeddings[i] != nil {
			embedded++
		}
	}
	out.Errors = append(out.Errors, embedErrs...)

	// Embedded chunks are searchable regardless of what happened to the
	// rest, so a partly embedded document is partial, not failed.
	var vectorStatus ledger.Status
	switch {
	case embedded == len(chunks):
		vectorStatus = ledger.StatusDone
	case embedded > 0:
		vectorStatus = ledger.StatusPartial
	default:
		vectorStatus = ledger.StatusFailed
	}

	graphStatus := ledger.StatusDone
	if ix.extractor != nil && ix.graph != nil {
		entities, relations, extractErrs := ix.extractAll(ctx, chunks)
		out.EntityCount, out.RelationCount = entities, relations
		out.Errors = append(out.Errors, extractErrs...)
		if len(extractErrs) > 0 {
			graphStatus = ledger.StatusFailed
		}
	}

	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ID
	}
	rec := ledger.Record{
		DocumentID:   doc.ID,
		Source:       doc.Source,
		ChunkIDs:     chunkIDs,
		VectorStatus: vectorStatus,
		GraphStatus:  graphStatus,
		LastError:    lastOf(out.Errors),
	}
	if err := ix.records.Put(ctx, rec); err != nil {
		return out, fmt.Errorf("record outcome: %w", err)
	}

	out.Status = statusFor(rec)
	ix.logger.Info("document indexed",
		"document_id", doc.ID,
		"status", string(out.Status),
		"chunks", out.ChunkCount,
		"entities", out.EntityCount,
		"relations", out.RelationCount,
	)
	return out, nil
}

// embedAll embeds chunks in rate-limited batches. A batch that keeps
// failing leaves nil embeddings for its chunks; the rest of the document
// is unaffected.
func (ix *Indexer) embedAll(ctx context.Context, chunks []knowledge.Chunk) ([][]float32, []string) {
	embeddings := make([][]float32, len(chunks))
	var errs []string

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = chunks[start+i].Text
		}

		vectors, err := ix.embedBatch(ctx, texts)
		if err != nil {
			errs = append(errs, fmt.Sprintf("embed chunks %d-%d: %v", start, end-1, err))
			continue
		}
		copy(embeddings[start:end], vectors)
	}
	return embeddings, errs
}

func (ix *Indexer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= embedRetries; attempt++ {
		if err := ix.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		cctx, cancel := context.WithTimeout(ctx, embedTimeout)
		vectors, err := ix.embedder.Embed(cctx, texts)
		cancel()
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
			}
			return vectors, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// extractAll runs entity extraction chunk by chunk. Transport failures
// count against the graph half; unparseable model output is dropped
// silently, matching how a human would skip an unusable note.
func (ix *Indexer) extractAll(ctx context.Context, chunks []knowledge.Chunk) (entities, relations int, errs []string) {
	for _, c := range chunks {
		ne, nr, err := ix.extractChunk(ctx, c)
		if err != nil {
			errs = append(errs, fmt.Sprintf("extract chunk %s: %v", c.ID, err))
			continue
		}
		entities += ne
		relations += nr
	}
	return entities, relations, errs
}

func (ix *Indexer) extractChunk(ctx context.Context, chunk knowledge.Chunk) (int, int, error) {
	cctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	result, err := ix.extractor.Extract(cctx, chunk.Text)
	if err != nil {
		return 0, 0, err
	}
	if result.Malformed {
		return 0, 0, nil
	}

	ids := make(map[string]string, len(result.Entities))
	for _, e := range result.Entities {
		id, err := ix.graph.UpsertEntity(ctx, e.Name, e.Type, e.Description, chunk.ID)
		if err != nil {
			return 0, 0, err
		}
		ids[e.Name] = id
	}
	var upserted int
	for _, rel := range result.Relations {
		src, ok := ids[rel.From]
		if !ok {
			continue
		}
		dst, ok := ids[rel.To]
		if !ok {
			continue
		}
		if _, err := ix.graph.UpsertRelation(ctx, src, dst, rel.Label, chunk.ID); err != nil {
			return 0, 0, err
		}
		upserted++
	}
	return len(result.Entities), upserted, nil
}

func statusFor(rec ledger.Record) Status {
	switch rec.DeriveState() {
	case ledger.StateComplete:
		return StatusComplete
	case ledger.StatePartialRecall:
		return StatusPartial
	default:
		return StatusFailed
	}
}

func lastOf(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[len(errs)-1]
}
