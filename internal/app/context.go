package app

import (
	"log/slog"
	"time"

	"github.com/oggyb/muzz-introductions/internal/config"
	"github.com/oggyb/muzz-introductions/internal/events"
	"github.com/oggyb/muzz-introductions/internal/photos"
	"github.com/oggyb/muzz-introductions/internal/repository"
	"github.com/oggyb/muzz-introductions/internal/store"
)

// AppContext holds shared dependencies (Store, event emitter, Logger, etc.)
type AppContext struct {
	Config *config.Config
	Store  store.Store
	Repos  *repository.Repositories
	Events *events.Emitter
	Photos photos.Signer
	Logger *slog.Logger

	// Now is the clock; tests pin it.
	Now func() time.Time
}

// New creates a new AppContext. A nil signer falls back to photos.Passthrough.
func New(cfg *config.Config, s store.Store, em *events.Emitter, signer photos.Signer, logger *slog.Logger) *AppContext {
	if signer == nil {
		signer = photos.Passthrough{}
	}
	return &AppContext{
		Config: cfg,
		Store:  s,
		Repos:  repository.New(s),
		Events: em,
		Photos: signer,
		Logger: logger,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// MaxRetries is how often a read-modify-write is re-run on version conflicts.
func (a *AppContext) MaxRetries() int {
	if a.Config == nil || a.Config.Store.MaxRetries < 1 {
		return 5
	}
	return a.Config.Store.MaxRetries
}
