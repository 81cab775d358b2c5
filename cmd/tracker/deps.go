package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ersonp/book-character-tracker/internal/application/handlers"
	"github.com/ersonp/book-character-tracker/internal/domain/ports"
	"github.com/ersonp/book-character-tracker/internal/domain/services"
	"github.com/ersonp/book-character-tracker/internal/infrastructure/config"
	embedder "github.com/ersonp/book-character-tracker/internal/infrastructure/embedder/openai"
	llm "github.com/ersonp/book-character-tracker/internal/infrastructure/llm/openai"
	"github.com/ersonp/book-character-tracker/internal/infrastructure/relationaldb/retry"
	"github.com/ersonp/book-character-tracker/internal/infrastructure/relationaldb/sqlite"
	"github.com/ersonp/book-character-tracker/internal/infrastructure/vectordb/qdrant"
	"github.com/ersonp/book-character-tracker/internal/logger"
)

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and repositories are internal.
type Deps struct {
	Config      *config.Config
	Log         *logger.Logger
	Library     *handlers.LibraryHandler
	Analyze     *handlers.AnalyzeHandler
	Characters  *handlers.CharacterHandler
	Maintenance *services.MaintenanceService

	// extractorErr explains why no extractor is available. Commands that
	// need AI extraction report it.
	extractorErr error
}

// internalDeps holds all dependencies including low-level components.
type internalDeps struct {
	Deps
	sqlite *sqlite.Repository
	db     ports.RelationalDB
	index  *services.IndexService
}

// withDeps loads config and builds dependencies, then calls the provided function.
// It handles cleanup automatically.
func withDeps(ctx context.Context, fn func(*Deps) error) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		return fn(&d.Deps)
	})
}

// withInternalDeps provides access to all dependencies including low-level components.
func withInternalDeps(ctx context.Context, fn func(*internalDeps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	repo, db, err := openRelationalDB(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring sqlite schema: %w", err)
	}

	index, err := openIndex(cfg)
	if err != nil {
		return err
	}
	var indexService *services.IndexService
	if index != nil {
		defer index.Close()
		emb, err := embedder.NewEmbedder(cfg.Embedder)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		indexService = services.NewIndexService(emb, index, log)
	}

	maintenance := services.NewMaintenanceService(db, log)
	removed, err := maintenance.DeduplicateBooks(ctx)
	if err != nil {
		return fmt.Errorf("deduplicating books: %w", err)
	}
	for _, id := range removed {
		if indexService != nil {
			if err := indexService.RemoveBook(ctx, id); err != nil {
				log.Warn("index update failed", "book_id", id, "error", err)
			}
		}
	}

	var extractor ports.CharacterExtractor
	llmClient, extractorErr := llm.NewClient(cfg.LLM)
	if extractorErr == nil {
		extractor = llmClient
	} else {
		log.Debug("extractor unavailable", "error", extractorErr)
	}

	processor := services.NewChapterProcessor(db, log)
	analysis := services.NewAnalysisService(db, extractor, processor, log, services.AnalysisOptions{
		ChunkSize:    cfg.LLM.MaxChapterChars,
		ChunkOverlap: services.DefaultChunkOverlap,
	})
	merge := services.NewMergeService(db, db, log)

	deps := &internalDeps{
		Deps: Deps{
			Config:       cfg,
			Log:          log,
			Library:      handlers.NewLibraryHandler(db, maintenance, indexService, log),
			Analyze:      handlers.NewAnalyzeHandler(analysis, db, indexService, log),
			Characters:   handlers.NewCharacterHandler(db, merge, indexService, log),
			Maintenance:  maintenance,
			extractorErr: extractorErr,
		},
		sqlite: repo,
		db:     db,
		index:  indexService,
	}

	return fn(deps)
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log, err := logger.New(cfg.Log.Mode, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return log, nil
}

// openRelationalDB opens the SQLite store behind the retry policy.
func openRelationalDB(cfg *config.Config, log *logger.Logger) (*sqlite.Repository, ports.RelationalDB, error) {
	repo, err := sqlite.NewRepository(cfg.SQLite)
	if err != nil {
		return nil, nil, fmt.Errorf("creating sqlite repository: %w", err)
	}
	return repo, retry.New(repo, cfg.Retry, log), nil
}

// openIndex connects to Qdrant. It returns a nil index when search is disabled.
func openIndex(cfg *config.Config) (ports.CharacterIndex, error) {
	if !cfg.Qdrant.Enabled {
		return nil, nil
	}
	repo, err := qdrant.NewRepository(cfg.Qdrant)
	if err != nil {
		return nil, fmt.Errorf("creating qdrant repository: %w", err)
	}
	return repo, nil
}

// openStores is the store opener used by init.
func openStores(cfg *config.Config) (ports.RelationalDB, ports.CharacterIndex, error) {
	_, db, err := openRelationalDB(cfg, logger.Nop())
	if err != nil {
		return nil, nil, err
	}
	index, err := openIndex(cfg)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, index, nil
}
