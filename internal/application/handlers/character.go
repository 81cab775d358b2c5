package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ersonp/book-character-tracker/internal/domain/chapterview"
	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/domain/identity"
	"github.com/ersonp/book-character-tracker/internal/domain/ports"
	"github.com/ersonp/book-character-tracker/internal/domain/services"
	"github.com/ersonp/book-character-tracker/internal/logger"
)

// ErrSearchDisabled is returned by search operations when no index is configured.
var ErrSearchDisabled = errors.New("semantic search is disabled (set qdrant.enabled in config)")

// CharacterHandler handles browsing, merging and searching characters.
type CharacterHandler struct {
	db    ports.RelationalDB
	merge *services.MergeService
	index *services.IndexService
	log   *logger.Logger
}

// NewCharacterHandler creates a new character handler. index may be nil.
func NewCharacterHandler(db ports.RelationalDB, merge *services.MergeService, index *services.IndexService, log *logger.Logger) *CharacterHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CharacterHandler{db: db, merge: merge, index: index, log: log}
}

// uptoOrAll treats a non-positive chapter as "no spoiler limit".
func uptoOrAll(uptoChapter int) int {
	if uptoChapter <= 0 {
		return math.MaxInt
	}
	return uptoChapter
}

// List returns the characters of a book as a reader at uptoChapter sees
// them. A non-positive uptoChapter returns everything.
func (h *CharacterHandler) List(ctx context.Context, bookID string, uptoChapter int) ([]*entities.Character, error) {
	all, err := h.load(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return chapterview.Snapshot(all, uptoOrAll(uptoChapter)), nil
}

// Show returns one character as a reader at uptoChapter sees it. ref is a
// character ID or a name resolved like an extracted observation.
func (h *CharacterHandler) Show(ctx context.Context, bookID, ref string, uptoChapter int) (*entities.Character, error) {
	all, err := h.load(ctx, bookID)
	if err != nil {
		return nil, err
	}
	c := find(all, ref)
	if c == nil {
		return nil, fmt.Errorf("character %q: %w", ref, entities.ErrNotFound)
	}
	for _, v := range chapterview.Snapshot(all, uptoOrAll(uptoChapter)) {
		if v.ID == c.ID {
			return v, nil
		}
	}
	return nil, fmt.Errorf("character %q by chapter %d: %w", ref, uptoChapter, entities.ErrNotFound)
}

// Resolve turns a reference into a character ID.
func (h *CharacterHandler) Resolve(ctx context.Context, bookID, ref string) (string, error) {
	all, err := h.load(ctx, bookID)
	if err != nil {
		return "", err
	}
	c := find(all, ref)
	if c == nil {
		return "", fmt.Errorf("character %q: %w", ref, entities.ErrNotFound)
	}
	return c.ID, nil
}

func find(all []*entities.Character, ref string) *entities.Character {
	for _, c := range all {
		if c.ID == ref {
			return c
		}
	}
	return identity.Resolve(ref, all)
}

// Merge folds source into target and updates the search index.
func (h *CharacterHandler) Merge(ctx context.Context, sourceID, targetID string) (*services.MergeResult, error) {
	result, err := h.merge.Merge(ctx, sourceID, targetID)
	if err != nil {
		return nil, err
	}

	if h.index != nil {
		if err := h.index.Remove(ctx, result.SourceID); err != nil {
			h.log.Warn("index update failed", "character_id", result.SourceID, "error", err)
		}
		if err := h.index.Sync(ctx, []*entities.Character{result.Merged}); err != nil {
			h.log.Warn("index sync failed", "character_id", result.Merged.ID, "error", err)
		}
	}
	return result, nil
}

// SearchResult is a search hit joined with the visible character.
type SearchResult struct {
	Character *entities.Character `json:"character"`
	Score     float32             `json:"score"`
}

// Search finds characters matching a free-text query without revealing
// anyone introduced after uptoChapter.
func (h *CharacterHandler) Search(ctx context.Context, bookID, query string, uptoChapter, limit int) ([]SearchResult, error) {
	if h.index == nil {
		return nil, ErrSearchDisabled
	}
	all, err := h.load(ctx, bookID)
	if err != nil {
		return nil, err
	}
	upto := uptoOrAll(uptoChapter)

	hits, err := h.index.Search(ctx, bookID, query, upto, limit)
	if err != nil {
		return nil, err
	}

	visible := make(map[string]*entities.Character)
	for _, c := range chapterview.Snapshot(all, upto) {
		visible[c.ID] = c
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		c, ok := visible[hit.CharacterID]
		if !ok {
			h.log.Debug("stale index entry skipped", "character_id", hit.CharacterID)
			continue
		}
		results = append(results, SearchResult{Character: c, Score: hit.Score})
	}
	return results, nil
}

// RebuildIndex re-embeds every character of a book.
func (h *CharacterHandler) RebuildIndex(ctx context.Context, bookID string) (int, error) {
	if h.index == nil {
		return 0, ErrSearchDisabled
	}
	all, err := h.load(ctx, bookID)
	if err != nil {
		return 0, err
	}
	if err := h.index.Rebuild(ctx, bookID, all); err != nil {
		return 0, err
	}
	h.log.Info("index rebuilt", "book_id", bookID, "characters", len(all))
	return len(all), nil
}

// History returns the audit entries recorded for a book or character.
func (h *CharacterHandler) History(ctx context.Context, subjectID string) ([]entities.AuditEntry, error) {
	entries, err := h.db.FindAuditLog(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("finding audit log: %w", err)
	}
	return entries, nil
}

func (h *CharacterHandler) load(ctx context.Context, bookID string) ([]*entities.Character, error) {
	book, err := h.db.FindBookByID(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("finding book: %w", err)
	}
	if book == nil {
		return nil, fmt.Errorf("book %s: %w", bookID, entities.ErrNotFound)
	}
	all, err := h.db.ListCharactersByBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	return all, nil
}
