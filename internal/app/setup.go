package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/brainbox0/brainbox/db"
	"github.com/brainbox0/brainbox/internal/brain"
	"github.com/brainbox0/brainbox/internal/chunker"
	"github.com/brainbox0/brainbox/internal/config"
	"github.com/brainbox0/brainbox/internal/explorer"
	"github.com/brainbox0/brainbox/internal/extract"
	"github.com/brainbox0/brainbox/internal/graph"
	"github.com/brainbox0/brainbox/internal/indexer"
	"github.com/brainbox0/brainbox/internal/ledger"
	"github.com/brainbox0/brainbox/internal/log"
	"github.com/brainbox0/brainbox/internal/normalize"
	"github.com/brainbox0/brainbox/internal/retriever"
	"github.com/brainbox0/brainbox/internal/vector"
)

// Setup creates and initializes the application. Returns an App with
// embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.New(log.Config{})
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	vectors, err := vector.NewStore(pool, logger.With("component", "vector"))
	if err != nil {
		return nil, err
	}
	graphStore, err := graph.NewStore(pool, logger.With("component", "graph"))
	if err != nil {
		return nil, err
	}
	records, err := ledger.NewStore(pool, logger.With("component", "ledger"))
	if err != nil {
		return nil, err
	}

	generator := extract.NewGenkitGenerator(g, cfg.FullModelName())
	extractor := extract.New(generator, logger.With("component", "extract"))
	batchEmbedder := &genkitEmbedder{embedder: embedder}
	splitter := chunker.New(chunker.Config{
		MaxTokens:     cfg.ChunkMaxTokens,
		OverlapTokens: cfg.ChunkOverlapTokens,
	})

	ix, err := indexer.New(vectors, graphStore, records, batchEmbedder, extractor, splitter, logger.With("component", "indexer"))
	if err != nil {
		return nil, err
	}
	ret, err := retriever.New(vectors, batchEmbedder, logger.With("component", "retriever"))
	if err != nil {
		return nil, err
	}
	exp, err := explorer.New(graphStore, generator, logger.With("component", "explorer"))
	if err != nil {
		return nil, err
	}
	reconciler, err := ledger.NewReconciler(records, vectors, batchEmbedder, graphStore, extractor,
		cfg.ReconcileLockPath, logger.With("component", "reconciler"))
	if err != nil {
		return nil, err
	}

	a.Brain, err = brain.New(brain.Deps{
		Normalizer: normalize.New(nil, logger.With("component", "normalize")),
		Indexer:    ix,
		Retriever:  ret,
		Explorer:   exp,
		Documents:  vectors,
		Graph:      graphStore,
		Records:    records,
		Reconciler: reconciler,
		Generator:  generator,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	a.Scheduler = ledger.NewScheduler(reconciler,
		time.Duration(cfg.ReconcileIntervalMinutes)*time.Minute,
		logger.With("component", "scheduler"))

	_, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	return a, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit
	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
	}
	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider
// plugin. Each provider registers embedders differently:
//   - gemini: GoogleAIEmbedder(g, modelName)
//   - ollama: registered in provideGenkit, keyed by server address
//   - openai: auto-registered in Init(), looked up by model name
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideDBPool creates a PostgreSQL connection pool with pgvector type
// support and runs migrations first.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// genkitEmbedder adapts a Genkit ai.Embedder to the batch interface the
// pipeline components consume.
type genkitEmbedder struct {
	embedder ai.Embedder
}

func (e *genkitEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Embedding
	}
	return out, nil
}
