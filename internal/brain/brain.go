// Package brain is the service facade over the knowledge base: ingest,
// query, explore, purge, reconcile.
package brain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brainbox0/brainbox/internal/explorer"
	"github.com/brainbox0/brainbox/internal/graph"
	"github.com/brainbox0/brainbox/internal/indexer"
	"github.com/brainbox0/brainbox/internal/knowledge"
	"github.com/brainbox0/brainbox/internal/ledger"
	"github.com/brainbox0/brainbox/internal/log"
	"github.com/brainbox0/brainbox/internal/normalize"
	"github.com/brainbox0/brainbox/internal/retriever"
)

// ErrInvalidSourceType indicates an unknown source type string.
var ErrInvalidSourceType = errors.New("brain: invalid source type")

// Normalizer turns raw input into indexable text.
type Normalizer interface {
	Normalize(ctx context.Context, source string, sourceType knowledge.SourceType, raw string) (normalize.Result, error)
}

// DocumentIndexer runs the ingestion pipeline for one document.
type DocumentIndexer interface {
	Index(ctx context.Context, doc knowledge.Document) (indexer.Outcome, error)
}

// Searcher answers retrieval queries.
type Searcher interface {
	Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]retriever.Result, error)
}

// GraphExplorer answers graph-shaped questions.
type GraphExplorer interface {
	Neighbors(ctx context.Context, name string, depth int, minWeight int64) (*graph.Subgraph, error)
	Connect(ctx context.Context, from, to string, maxDepth int) ([]explorer.Connection, error)
	Ideas(ctx context.Context, topic string, n int) ([]explorer.Idea, error)
}

// DocumentStore is the vector-side access purge and stats need.
type DocumentStore interface {
	DeleteDocument(ctx context.Context, documentID string) ([]string, error)
	Counts(ctx context.Context) (documents, chunks int64, err error)
}

// GraphStore is the graph-side access purge and stats need.
type GraphStore interface {
	RemoveProvenance(ctx context.Context, chunkIDs []string) error
	Counts(ctx context.Context) (entities, relations int64, err error)
}

// LedgerStore is the ledger access purge and stats need.
type LedgerStore interface {
	Delete(ctx context.Context, documentID string) error
	CountByState(ctx context.Context) (map[ledger.State]int64, error)
}

// Reconciler runs one repair pass.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// Stats is a point-in-time census of the knowledge base.
type Stats struct {
	Documents int64                  `json:"documents"`
	Chunks    int64                  `json:"chunks"`
	Entities  int64                  `json:"entities"`
	Relations int64                  `json:"relations"`
	ByState   map[ledger.State]int64 `json:"by_state"`
}

// Brain wires the pipeline components behind one API.
type Brain struct {
	normalizer Normalizer
	indexer    DocumentIndexer
	retriever  Searcher
	explorer   GraphExplorer
	documents  DocumentStore
	graph      GraphStore
	records    LedgerStore
	reconciler Reconciler
	generator  Generator
	logger     *log.Logger
}

// Deps collects the components a Brain is built from.
type Deps struct {
	Normalizer Normalizer
	Indexer    DocumentIndexer
	Retriever  Searcher
	Explorer   GraphExplorer
	Documents  DocumentStore
	Graph      GraphStore
	Records    LedgerStore
	Reconciler Reconciler
	Generator  Generator
	Logger     *log.Logger
}

func New(deps Deps) (*Brain, error) {
	if deps.Normalizer == nil || deps.Indexer == nil || deps.Retriever == nil {
		return nil, errors.New("brain: normalizer, indexer, and retriever are required")
	}
	if deps.Logger == nil {
		deps.Logger = log.NewNop()
	}
	return &Brain{
		normalizer: deps.Normalizer,
		indexer:    deps.Indexer,
		retriever:  deps.Retriever,
		explorer:   deps.Explorer,
		documents:  deps.Documents,
		graph:      deps.Graph,
		records:    deps.Records,
		reconciler: deps.Reconciler,
		generator:  deps.Generator,
		logger:     deps.Logger,
	}, nil
}

// IndexContent normalizes raw input and runs it through the ingestion
// pipeline.
func (b *Brain) IndexContent(ctx context.Context, source, sourceType, raw string) (indexer.Outcome, error) {
	st := knowledge.SourceType(sourceType)
	if sourceType == "" {
		st = knowledge.SourceText
	}
	if !st.Valid() {
		return indexer.Outcome{}, fmt.Errorf("%w: %q", ErrInvalidSourceType, sourceType)
	}

	res, err := b.normalizer.Normalize(ctx, source, st, raw)
	if err != nil {
		return indexer.Outcome{}, err
	}
	doc := knowledge.Document{
		Source:     source,
		SourceType: st,
		Text:       res.Text,
		RawLength:  len(raw),
		Metadata:   res.Metadata,
		CreatedAt:  time.Now().UTC(),
	}
	if st == knowledge.SourceURL {
		doc.RawLength = len(res.Text)
	}
	return b.indexer.Index(ctx, doc)
}

// Query retrieves the chunks most relevant to a question.
func (b *Brain) Query(ctx context.Context, query string, opts ...retriever.Option) ([]retriever.Result, error) {
	return b.retriever.Retrieve(ctx, query, opts...)
}

// Explore returns the neighborhood of a named entity.
func (b *Brain) Explore(ctx context.Context, name string, depth int, minWeight int64) (*graph.Subgraph, error) {
	if b.explorer == nil {
		return nil, errors.New("brain: graph exploration not configured")
	}
	return b.explorer.Neighbors(ctx, name, depth, minWeight)
}

// Connect finds how two entities relate within maxDepth hops. An empty
// slice means no connection exists within the bound.
func (b *Brain) Connect(ctx context.Context, from, to string, maxDepth int) ([]explorer.Connection, error) {
	if b.explorer == nil {
		return nil, errors.New("brain: graph exploration not configured")
	}
	return b.explorer.Connect(ctx, from, to, maxDepth)
}

// Ideas generates suggestions grounded in the graph.
func (b *Brain) Ideas(ctx context.Context, topic string, n int) ([]explorer.Idea, error) {
	if b.explorer == nil {
		return nil, errors.New("brain: graph exploration not configured")
	}
	return b.explorer.Ideas(ctx, topic, n)
}

// Purge removes a document everywhere: chunks and embeddings, graph
// evidence contributed by those chunks, and the ledger row. Entities and
// relations whose only evidence came from this document disappear with
// it.
func (b *Brain) Purge(ctx context.Context, documentID string) error {
	if b.documents == nil {
		return errors.New("brain: document store not configured")
	}
	chunkIDs, err := b.documents.DeleteDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("purge document: %w", err)
	}
	if b.graph != nil && len(chunkIDs) > 0 {
		if err := b.graph.RemoveProvenance(ctx, chunkIDs); err != nil {
			return fmt.Errorf("purge graph evidence: %w", err)
		}
	}
	if b.records != nil {
		if err := b.records.Delete(ctx, documentID); err != nil {
			return fmt.Errorf("purge ledger record: %w", err)
		}
	}
	b.logger.Info("document purged", "document_id", documentID, "chunks", len(chunkIDs))
	return nil
}

// Reconcile runs one repair pass over half-indexed documents.
func (b *Brain) Reconcile(ctx context.Context) (int, error) {
	if b.reconciler == nil {
		return 0, errors.New("brain: reconciler not configured")
	}
	return b.reconciler.Reconcile(ctx)
}

// Stats reports store sizes and ledger health.
func (b *Brain) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	if b.documents != nil {
		if s.Documents, s.Chunks, err = b.documents.Counts(ctx); err != nil {
			return s, err
		}
	}
	if b.graph != nil {
		if s.Entities, s.Relations, err = b.graph.Counts(ctx); err != nil {
			return s, err
		}
	}
	if b.records != nil {
		if s.ByState, err = b.records.CountByState(ctx); err != nil {
			return s, err
		}
	}
	return s, nil
}
