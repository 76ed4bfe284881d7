// Package app provides application initialization and dependency
// injection. App is the container that wires configuration, the database
// pool, Genkit, and the knowledge-base components together.
package app

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brainbox0/brainbox/internal/brain"
	"github.com/brainbox0/brainbox/internal/config"
	"github.com/brainbox0/brainbox/internal/ledger"
	"github.com/brainbox0/brainbox/internal/log"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *log.Logger

	// Core services
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	// Knowledge base facade and background repair
	Brain     *brain.Brain
	Scheduler *ledger.Scheduler

	cancel context.CancelFunc
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.cancel != nil {
		a.cancel()
	}
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database pool closed")
	}
	return nil
}
