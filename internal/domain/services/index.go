package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/domain/ports"
	"github.com/ersonp/book-character-tracker/internal/logger"
)

// DefaultSearchLimit is the default number of search results.
const DefaultSearchLimit = 10

// IndexService keeps the semantic character index in step with the store.
type IndexService struct {
	embedder ports.Embedder
	index    ports.CharacterIndex
	log      *logger.Logger
}

// NewIndexService creates a new IndexService.
func NewIndexService(embedder ports.Embedder, index ports.CharacterIndex, log *logger.Logger) *IndexService {
	if log == nil {
		log = logger.Nop()
	}
	return &IndexService{embedder: embedder, index: index, log: log}
}

// Sync embeds and upserts the given characters.
func (s *IndexService) Sync(ctx context.Context, characters []*entities.Character) error {
	if len(characters) == 0 {
		return nil
	}

	texts := make([]string, len(characters))
	for i, c := range characters {
		texts[i] = CharacterText(c)
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("generating embeddings: %w", err)
	}
	if len(embeddings) != len(characters) {
		return fmt.Errorf("generating embeddings: got %d vectors for %d characters", len(embeddings), len(characters))
	}

	docs := make([]ports.IndexedCharacter, len(characters))
	for i, c := range characters {
		docs[i] = ports.IndexedCharacter{Character: c, Embedding: embeddings[i]}
	}
	if err := s.index.Upsert(ctx, docs); err != nil {
		return fmt.Errorf("upserting characters: %w", err)
	}
	s.log.Debug("index synced", "characters", len(docs))
	return nil
}

// Remove deletes characters from the index.
func (s *IndexService) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.index.Delete(ctx, ids); err != nil {
		return fmt.Errorf("deleting from index: %w", err)
	}
	return nil
}

// RemoveBook deletes every character of a book from the index.
func (s *IndexService) RemoveBook(ctx context.Context, bookID string) error {
	if err := s.index.DeleteByBook(ctx, bookID); err != nil {
		return fmt.Errorf("deleting book from index: %w", err)
	}
	return nil
}

// Clear empties the index.
func (s *IndexService) Clear(ctx context.Context) error {
	if err := s.index.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}
	return nil
}

// Rebuild replaces the indexed characters of a book.
func (s *IndexService) Rebuild(ctx context.Context, bookID string, characters []*entities.Character) error {
	if err := s.RemoveBook(ctx, bookID); err != nil {
		return err
	}
	return s.Sync(ctx, characters)
}

// Search finds the characters of a book that best match a free-text query
// among those introduced at or before uptoChapter.
func (s *IndexService) Search(ctx context.Context, bookID, query string, uptoChapter, limit int) ([]ports.SearchHit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("generating query embedding: %w", err)
	}
	hits, err := s.index.Search(ctx, bookID, embedding, uptoChapter, limit)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	return hits, nil
}

// CharacterText builds the text embedded for a character.
func CharacterText(c *entities.Character) string {
	var b strings.Builder
	b.WriteString(c.Name)
	if len(c.Aliases) > 0 {
		b.WriteString(" (also known as ")
		b.WriteString(strings.Join(c.Aliases, ", "))
		b.WriteString(")")
	}
	if entities.Known(c.Occupation) {
		b.WriteString(". Occupation: ")
		b.WriteString(c.Occupation)
	}
	if entities.Known(c.Location) {
		b.WriteString(". Location: ")
		b.WriteString(c.Location)
	}
	if c.BriefDescription != "" {
		b.WriteString(". ")
		b.WriteString(c.BriefDescription)
	}
	return b.String()
}
