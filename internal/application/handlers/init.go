package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/book-character-tracker/internal/domain/ports"
	"github.com/ersonp/book-character-tracker/internal/infrastructure/config"
)

// StoreOpener opens the stores described by a configuration. index is nil
// when semantic search is disabled.
type StoreOpener func(cfg *config.Config) (db ports.RelationalDB, index ports.CharacterIndex, err error)

// InitHandler handles library initialization.
type InitHandler struct {
	open StoreOpener
}

// NewInitHandler creates a new init handler.
func NewInitHandler(open StoreOpener) *InitHandler {
	return &InitHandler{open: open}
}

// InitResult contains the result of initialization.
type InitResult struct {
	ConfigPath     string
	DatabasePath   string
	CollectionName string
}

// Handle writes the default configuration and creates the database schema
// and, when enabled, the vector collection.
func (h *InitHandler) Handle(ctx context.Context, basePath string) (*InitResult, error) {
	if config.Exists(basePath) {
		return nil, fmt.Errorf("tracker already initialized in %s", basePath)
	}

	if err := config.WriteDefault(basePath); err != nil {
		return nil, fmt.Errorf("writing default config: %w", err)
	}

	cfg, err := config.Load(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	db, index, err := h.open(cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	result := &InitResult{
		ConfigPath:   config.ConfigFilePath(basePath),
		DatabasePath: cfg.SQLite.Path,
	}

	if index != nil {
		defer index.Close()
		if err := index.EnsureCollection(ctx, cfg.Embedder.Dimensions); err != nil {
			return nil, fmt.Errorf("creating collection: %w", err)
		}
		result.CollectionName = cfg.Qdrant.Collection
	}

	return result, nil
}
