// Package retriever answers queries by fusing vector similarity with
// lexical full-text matches.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/brainbox0/brainbox/internal/log"
	"github.com/brainbox0/brainbox/internal/vector"
)

const (
	defaultTopK        = 8
	defaultTokenBudget = 2000
	defaultPerDocCap   = 3

	// candidateFactor widens the per-store fetch so fusion has real
	// choices before the caps cut the list down.
	candidateFactor = 3

	vectorWeight  = 0.7
	lexicalWeight = 0.3
)

// Searcher is the store access the retriever needs.
type Searcher interface {
	SearchSimilar(ctx context.Context, embedding []float32, k int) ([]vector.Hit, error)
	SearchLexical(ctx context.Context, query string, k int) ([]vector.Hit, error)
}

// Embedder embeds the query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Result is one retrieved chunk with its fused score.
type Result struct {
	ChunkID    string
	DocumentID string
	Source     string
	Text       string
	Score      float64
	CreatedAt  time.Time
	TokenCount int
}

type options struct {
	topK        int
	tokenBudget int
	perDocCap   int
}

// Option adjusts a single retrieval call.
type Option func(*options)

// WithTopK caps the number of results. Zero means no results.
func WithTopK(k int) Option {
	return func(o *options) { o.topK = k }
}

// WithTokenBudget caps the cumulative token count of returned chunks.
func WithTokenBudget(budget int) Option {
	return func(o *options) { o.tokenBudget = budget }
}

// WithPerDocumentCap limits how many chunks a single document may
// contribute, so one dense note cannot crowd out the rest.
func WithPerDocumentCap(n int) Option {
	return func(o *options) { o.perDocCap = n }
}

// Retriever fuses similarity and lexical search over the chunk store.
type Retriever struct {
	store    Searcher
	embedder Embedder
	logger   *log.Logger
}

func New(store Searcher, embedder Embedder, logger *log.Logger) (*Retriever, error) {
	if store == nil || embedder == nil {
		return nil, errors.New("retriever: store and embedder are required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{store: store, embedder: embedder, logger: logger}, nil
}

// Retrieve returns the best chunks for a query. Both search modes run;
// a chunk found by both gets the weighted sum of its scores. Ties break
// toward the newer document.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...Option) ([]Result, error) {
	o := options{topK: defaultTopK, tokenBudget: defaultTokenBudget, perDocCap: defaultPerDocCap}
	for _, opt := range opts {
		opt(&o)
	}
	if query == "" || o.topK <= 0 {
		return nil, nil
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	fetch := o.topK * candidateFactor
	similar, err := r.store.SearchSimilar(ctx, vectors[0], fetch)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	lexical, err := r.store.SearchLexical(ctx, query, fetch)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	fused := fuse(similar, lexical)
	fused = capPerDocument(fused, o.perDocCap)
	fused = capTokens(fused, o.tokenBudget)
	if len(fused) > o.topK {
		fused = fused[:o.topK]
	}
	r.logger.Debug("retrieval complete",
		"similar", len(similar), "lexical", len(lexical), "returned", len(fused))
	return fused, nil
}

// fuse merges both candidate lists into one scored ranking. Lexical
// scores are normalized against the best lexical hit before weighting, so
// the two signals live on comparable scales.
func fuse(similar, lexical []vector.Hit) []Result {
	var maxLex float64
	for _, h := range lexical {
		if h.Score > maxLex {
			maxLex = h.Score
		}
	}

	merged := make(map[string]*Result, len(similar)+len(lexical))
	add := func(h vector.Hit, score float64) {
		if existing, ok := merged[h.ChunkID]; ok {
			existing.Score += score
			return
		}
		merged[h.ChunkID] = &Result{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			Source:     h.Source,
			Text:       h.Text,
			Score:      score,
			CreatedAt:  h.CreatedAt,
			TokenCount: h.TokenCount,
		}
	}
	for _, h := range similar {
		add(h, vectorWeight*h.Score)
	}
	for _, h := range lexical {
		norm := h.Score
		if maxLex > 0 {
			norm = h.Score / maxLex
		}
		add(h, lexicalWeight*norm)
	}

	out := make([]Result, 0, len(merged))
	for _, res := range merged {
		out = append(out, *res)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

func capPerDocument(results []Result, cap int) []Result {
	if cap <= 0 {
		return results
	}
	perDoc := make(map[string]int)
	out := results[:0]
	for _, res := range results {
		if perDoc[res.DocumentID] >= cap {
			continue
		}
		perDoc[res.DocumentID]++
		out = append(out, res)
	}
	return out
}

func capTokens(results []Result, budget int) []Result {
	if budget <= 0 {
		return results
	}
	total := 0
	for i, res := range results {
		total += res.TokenCount
		if total > budget && i > 0 {
			return results[:i]
		}
	}
	return results
}
