// Package app wires configuration into a running application: store
// backend, invoker, session manager, engine and the collaboration service.
package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wombat2006/wallbounce/internal/analyzer"
	"github.com/wombat2006/wallbounce/internal/config"
	"github.com/wombat2006/wallbounce/internal/engine"
	"github.com/wombat2006/wallbounce/internal/llm"
	"github.com/wombat2006/wallbounce/internal/logger"
	"github.com/wombat2006/wallbounce/internal/metrics"
	"github.com/wombat2006/wallbounce/internal/service/collab"
	"github.com/wombat2006/wallbounce/internal/session"
	"github.com/wombat2006/wallbounce/internal/store"
)

// App holds the wired application components
type App struct {
	Config   *config.AppConfig
	Store    store.VersionedStore
	Invoker  llm.Invoker
	Sessions *session.Manager
	Engine   *engine.Engine
	Metrics  *metrics.CollabMetrics
	Collab   *collab.CollabService
}

// Build wires the application from configuration
func Build(cfg *config.AppConfig) (*App, error) {
	st, err := newStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	cm, err := metrics.NewCollabMetrics()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	invoker := llm.InvokerFromConfig(cfg.Invoker, cfg.Models)
	sessions := session.NewManager(st, cfg.Session, cfg.Region)
	eng := engine.New(invoker, analyzer.New(cfg.Scoring), cfg.Engine, engine.WithMetrics(cm))
	svc := collab.NewCollabService(eng, sessions, cfg, cm)

	logger.Log.WithFields(logrus.Fields{
		"store":   cfg.Store.Backend,
		"invoker": cfg.Invoker.Type,
		"region":  cfg.Region,
	}).Info("Application wired")

	return &App{
		Config:   cfg,
		Store:    st,
		Invoker:  invoker,
		Sessions: sessions,
		Engine:   eng,
		Metrics:  cm,
		Collab:   svc,
	}, nil
}

// Close releases held resources
func (a *App) Close() error {
	return a.Store.Close()
}

// newStore opens the configured store backend
func newStore(cfg config.StoreConfig) (store.VersionedStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "bolt":
		return store.NewBoltStore(cfg.BoltPath)
	case "postgres":
		return store.NewPostgresStore(cfg.Database)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}
