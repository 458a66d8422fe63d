// Package app provides application initialization and dependency wiring.
//
// App is the container behind the serve command: database pool, embedding
// pipeline, stores, matcher, assembler, and the impersonation codec, with a
// single Close for teardown.
package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantigo/vantigo/internal/assembler"
	"github.com/vantigo/vantigo/internal/chatbot"
	"github.com/vantigo/vantigo/internal/config"
	"github.com/vantigo/vantigo/internal/embedding"
	"github.com/vantigo/vantigo/internal/impersonate"
	"github.com/vantigo/vantigo/internal/instruction"
)

// App is the core application container.
type App struct {
	Config *config.Config

	Pool             *pgxpool.Pool
	Cache            *embedding.Cache
	QueryEmbedder    *embedding.CachedEmbedder
	DocEmbedder      embedding.Embedder
	InstructionStore *instruction.Store
	ChatbotStore     *chatbot.Store
	Matcher          *instruction.Matcher
	Worker           *instruction.EmbedWorker
	Assembler        *assembler.Assembler
	Codec            *impersonate.Codec

	logger      *slog.Logger
	dbCleanup   func()
	otelCleanup func()
}

// Close releases all resources acquired during Setup. Safe to call on a
// partially initialized App.
func (a *App) Close() error {
	if a.logger != nil {
		a.logger.Info("shutting down application")
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
