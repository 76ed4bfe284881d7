package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/brainbox0/brainbox/internal/extract"
	"github.com/brainbox0/brainbox/internal/knowledge"
	"github.com/brainbox0/brainbox/internal/log"
)

// ErrReconcileBusy indicates another reconcile pass holds the lock, in
// this process or another one.
var ErrReconcileBusy = errors.New("ledger: reconcile already running")

const (
	// defaultBatchSize caps documents repaired per pass.
	defaultBatchSize = 50
	// extractTimeout bounds entity extraction for a single chunk.
	extractTimeout = 90 * time.Second
)

// RecordSource is the ledger access the reconciler needs.
type RecordSource interface {
	ListNeedingRepair(ctx context.Context, limit int) ([]Record, error)
	SetVectorStatus(ctx context.Context, documentID string, status Status, lastError string) error
	SetGraphStatus(ctx context.Context, documentID string, status Status, lastError string) error
}

// ChunkSource exposes stored chunk text so repairs never re-chunk a
// document.
type ChunkSource interface {
	ChunksByDocument(ctx context.Context, documentID string) ([]knowledge.Chunk, error)
	ChunksMissingEmbedding(ctx context.Context, documentID string) ([]knowledge.Chunk, error)
	SetEmbedding(ctx context.Context, chunkID string, embedding []float32) error
}

// Embedder turns chunk texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GraphWriter merges extracted entities and relations into the graph.
type GraphWriter interface {
	UpsertEntity(ctx context.Context, name, entityType, description, chunkID string) (string, error)
	UpsertRelation(ctx context.Context, sourceID, targetID, label, chunkID string) (string, error)
}

// Extractor pulls entities and relations out of chunk text.
type Extractor interface {
	Extract(ctx context.Context, text string) (extract.Result, error)
}

// Reconciler repairs documents whose indexing only half-succeeded. Each
// pass retries the failed store alone using chunk IDs and text recorded at
// index time. Only one pass runs at a time: an in-process flag stops
// concurrent calls, a file lock stops concurrent processes.
type Reconciler struct {
	records   RecordSource
	chunks    ChunkSource
	embedder  Embedder
	graph     GraphWriter
	extractor Extractor
	logger    *log.Logger

	batchSize int
	running   atomic.Bool
	fileLock  *flock.Flock
}

func NewReconciler(records RecordSource, chunks ChunkSource, embedder Embedder, graph GraphWriter, extractor Extractor, lockPath string, logger *log.Logger) (*Reconciler, error) {
	if records == nil || chunks == nil {
		return nil, errors.New("ledger: record and chunk sources are required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	r := &Reconciler{
		records:   records,
		chunks:    chunks,
		embedder:  embedder,
		graph:     graph,
		extractor: extractor,
		logger:    logger,
		batchSize: defaultBatchSize,
	}
	if lockPath != "" {
		r.fileLock = flock.New(lockPath)
	}
	return r, nil
}

// Reconcile runs one repair pass and returns the number of documents
// brought to a better state. Returns ErrReconcileBusy without doing any
// work if a pass is already in flight.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	if !r.running.CompareAndSwap(false, true) {
		return 0, ErrReconcileBusy
	}
	defer r.running.Store(false)

	if r.fileLock != nil {
		locked, err := r.fileLock.TryLock()
		if err != nil {
			return 0, fmt.Errorf("acquire reconcile lock: %w", err)
		}
		if !locked {
			return 0, ErrReconcileBusy
		}
		defer func() { _ = r.fileLock.Unlock() }()
	}

	records, err := r.records.ListNeedingRepair(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list repairable: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	r.logger.Info("reconcile pass started", "candidates", len(records))

	repaired := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return repaired, ctx.Err()
		}
		if r.repairOne(ctx, rec) {
			repaired++
		}
	}
	r.logger.Info("reconcile pass finished", "repaired", repaired, "candidates", len(records))
	return repaired, nil
}

// repairOne retries each failed half of a record independently and
// reports whether the document improved.
func (r *Reconciler) repairOne(ctx context.Context, rec Record) bool {
	improved := false

	if (rec.VectorStatus == StatusFailed || rec.VectorStatus == StatusPartial) && r.embedder != nil {
		if err := r.repairVector(ctx, rec.DocumentID); err != nil {
			r.logger.Warn("vector repair failed", "document_id", rec.DocumentID, "error", err)
			// Keep the current status: a partial document is still
			// partly searchable even when repair did not help.
			_ = r.records.SetVectorStatus(ctx, rec.DocumentID, rec.VectorStatus, err.Error())
		} else {
			if err := r.records.SetVectorStatus(ctx, rec.DocumentID, StatusDone, ""); err != nil {
				r.logger.Warn("ledger update failed", "document_id", rec.DocumentID, "error", err)
			} else {
				improved = true
			}
		}
	}

	if rec.GraphStatus == StatusFailed && r.extractor != nil && r.graph != nil {
		if err := r.repairGraph(ctx, rec.DocumentID); err != nil {
			r.logger.Warn("graph repair failed", "document_id", rec.DocumentID, "error", err)
			_ = r.records.SetGraphStatus(ctx, rec.DocumentID, StatusFailed, err.Error())
		} else {
			if err := r.records.SetGraphStatus(ctx, rec.DocumentID, StatusDone, ""); err != nil {
				r.logger.Warn("ledger update failed", "document_id", rec.DocumentID, "error", err)
			} else {
				improved = true
			}
		}
	}
	return improved
}

// repairVector embeds only the chunks whose vectors are missing.
func (r *Reconciler) repairVector(ctx context.Context, documentID string) error {
	chunks, err := r.chunks.ChunksMissingEmbedding(ctx, documentID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i, c := range chunks {
		if err := r.chunks.SetEmbedding(ctx, c.ID, vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

// repairGraph re-extracts every chunk of the document. Upserts count a
// chunk's evidence at most once, so re-processing chunks that already
// contributed does not inflate weights.
func (r *Reconciler) repairGraph(ctx context.Context, documentID string) error {
	chunks, err := r.chunks.ChunksByDocument(ctx, documentID)
	if err != nil {
		return err
	}
	var failed int
	var lastErr error
	for _, c := range chunks {
		if err := r.extractChunk(ctx, c); err != nil {
			failed++
			lastErr = err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d/%d chunks failed extraction: %w", failed, len(chunks), lastErr)
	}
	return nil
}

func (r *Reconciler) extractChunk(ctx context.Context, chunk knowledge.Chunk) error {
	cctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	result, err := r.extractor.Extract(cctx, chunk.Text)
	if err != nil {
		return err
	}
	if result.Malformed {
		// Unparseable model output is not worth retrying forever; the
		// chunk simply contributes nothing to the graph.
		return nil
	}

	ids := make(map[string]string, len(result.Entities))
	for _, e := range result.Entities {
		id, err := r.graph.UpsertEntity(ctx, e.Name, e.Type, e.Description, chunk.ID)
		if err != nil {
			return err
		}
		ids[e.Name] = id
	}
	for _, rel := range result.Relations {
		src, ok := ids[rel.From]
		if !ok {
			continue
		}
		dst, ok := ids[rel.To]
		if !ok {
			continue
		}
		if _, err := r.graph.UpsertRelation(ctx, src, dst, rel.Label, chunk.ID); err != nil {
			return err
		}
	}
	return nil
}
