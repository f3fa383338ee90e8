// Package app wires the components into one explicit application context,
// created at startup and passed to whatever needs it.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/synthcerebrum/cerebro/internal/composer"
	"github.com/synthcerebrum/cerebro/internal/config"
	"github.com/synthcerebrum/cerebro/internal/feedback"
	"github.com/synthcerebrum/cerebro/internal/ingest"
	"github.com/synthcerebrum/cerebro/internal/ollama"
	"github.com/synthcerebrum/cerebro/internal/query"
	"github.com/synthcerebrum/cerebro/internal/retrieval"
	"github.com/synthcerebrum/cerebro/internal/session"
	"github.com/synthcerebrum/cerebro/internal/storage"
)

// App is the assembled application: every component reachable from here,
// nothing ambient.
type App struct {
	Settings config.Settings
	Config   *config.Manager
	Store    *storage.Store
	Index    *retrieval.Index
	Embedder *retrieval.Embedder
	Pipeline *ingest.Pipeline
	Sessions *session.Store
	Feedback *feedback.Log
	Answerer *query.Orchestrator
	Ollama   *ollama.Client
	Prefs    *Prefs
}

// New builds the application context from settings. The engine config
// document decides where the chunk database lives.
func New(settings config.Settings) (*App, error) {
	if err := os.MkdirAll(settings.DataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating data root: %w", err)
	}

	manager := config.NewManager(settings.DataRoot)
	engineCfg, err := manager.Get()
	if err != nil {
		return nil, fmt.Errorf("loading engine config: %w", err)
	}

	store, err := storage.Open(engineCfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	client := ollama.New(settings.Ollama.BaseURL)
	embedder := retrieval.NewEmbedder(client, settings.Ollama.EmbedModel)
	index := retrieval.NewIndex(store)
	retriever := retrieval.NewRetriever(embedder, index)

	sessions, err := session.NewStore(filepath.Join(settings.DataRoot, "sessions"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	comp := composer.New(0, 0)
	orchestrator := query.NewOrchestrator(retriever, comp, client, settings.Ollama.GenModel, settings.Retrieval.TopK, 0)

	return &App{
		Settings: settings,
		Config:   manager,
		Store:    store,
		Index:    index,
		Embedder: embedder,
		Pipeline: ingest.NewPipeline(embedder, index, 0),
		Sessions: sessions,
		Feedback: feedback.NewLog(filepath.Join(settings.DataRoot, "feedback.json")),
		Answerer: orchestrator,
		Ollama:   client,
		Prefs:    newPrefs(settings.DataRoot),
	}, nil
}

// Retriever returns a retriever over the app's embedder and index.
func (a *App) Retriever() *retrieval.Retriever {
	return retrieval.NewRetriever(a.Embedder, a.Index)
}

// Close releases held resources.
func (a *App) Close() error {
	return a.Store.Close()
}
