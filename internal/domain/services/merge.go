package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/domain/ports"
	"github.com/ersonp/book-character-tracker/internal/logger"
)

// MergeResult summarises a completed merge.
type MergeResult struct {
	Merged *entities.Character
	// SourceID is the ID of the deleted character.
	SourceID string
	// Repointed lists the other characters whose edges were rewritten.
	Repointed []string
}

// MergeService folds one character into another.
type MergeService struct {
	store ports.CharacterStore
	audit ports.AuditLog
	log   *logger.Logger
	now   func() time.Time
}

// NewMergeService creates a new MergeService. audit may be nil.
func NewMergeService(store ports.CharacterStore, audit ports.AuditLog, log *logger.Logger) *MergeService {
	if log == nil {
		log = logger.Nop()
	}
	return &MergeService{
		store: store,
		audit: audit,
		log:   log,
		now:   time.Now,
	}
}

// Merge folds source into target and deletes source.
//
// Writes are not transactional. Edges on other characters are repointed
// first, then the merged target is saved, then the source is deleted, so an
// interrupted merge never leaves an edge pointing at a missing character.
func (s *MergeService) Merge(ctx context.Context, sourceID, targetID string) (*MergeResult, error) {
	if sourceID == targetID {
		return nil, fmt.Errorf("merging %s: %w", sourceID, entities.ErrSelfMerge)
	}

	source, err := s.load(ctx, sourceID, "source")
	if err != nil {
		return nil, err
	}
	target, err := s.load(ctx, targetID, "target")
	if err != nil {
		return nil, err
	}
	if source.BookID != target.BookID {
		return nil, fmt.Errorf("merging %s into %s: %w", sourceID, targetID, entities.ErrCrossBookMerge)
	}

	merged := MergeCharacters(source, target)
	merged.UpdatedAt = s.now()

	others, err := s.store.ListCharactersByBook(ctx, target.BookID)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}

	result := &MergeResult{Merged: merged, SourceID: sourceID}
	for _, other := range others {
		if other.ID == sourceID || other.ID == targetID {
			continue
		}
		if !RepointRelationships(other, sourceID, targetID) {
			continue
		}
		other.UpdatedAt = merged.UpdatedAt
		if err := s.store.SaveCharacter(ctx, other); err != nil {
			return nil, fmt.Errorf("repointing relationships of %s: %w", other.ID, err)
		}
		result.Repointed = append(result.Repointed, other.ID)
	}

	if err := s.store.SaveCharacter(ctx, merged); err != nil {
		return nil, fmt.Errorf("saving merged character: %w", err)
	}
	if err := s.store.DeleteCharacter(ctx, sourceID); err != nil {
		return nil, fmt.Errorf("deleting source character: %w", err)
	}

	s.log.Info("characters merged",
		"source", source.Name,
		"target", merged.Name,
		"book_id", merged.BookID,
		"repointed", len(result.Repointed),
	)
	if s.audit != nil {
		details := map[string]any{
			"source_id":   sourceID,
			"source_name": source.Name,
			"book_id":     merged.BookID,
			"repointed":   len(result.Repointed),
		}
		if err := s.audit.LogAction(ctx, entities.ActionCharactersMerged, targetID, details); err != nil {
			s.log.Warn("audit log failed", "action", entities.ActionCharactersMerged, "error", err)
		}
	}
	return result, nil
}

func (s *MergeService) load(ctx context.Context, id, role string) (*entities.Character, error) {
	c, err := s.store.FindCharacterByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding %s character: %w", role, err)
	}
	if c == nil {
		return nil, fmt.Errorf("%s character %s: %w", role, id, entities.ErrNotFound)
	}
	return c, nil
}

// MergeCharacters builds the record that results from folding source into
// target. Neither argument is modified. Scalar fields come from target
// except the chapter span, which covers both records.
// Edges between the two characters are dropped since they would become
// self-loops.
func MergeCharacters(source, target *entities.Character) *entities.Character {
	merged := target.Clone()
	merged.MentionCount = source.MentionCount + target.MentionCount
	if source.FirstAppearance > 0 && (merged.FirstAppearance == 0 || source.FirstAppearance < merged.FirstAppearance) {
		merged.FirstAppearance = source.FirstAppearance
	}
	if source.LastMentioned > merged.LastMentioned {
		merged.LastMentioned = source.LastMentioned
	}

	merged.Relationships = nil
	for _, rel := range target.Relationships {
		if rel.TargetCharacterID == source.ID {
			rel.TargetCharacterID = target.ID
		}
		merged.AddRelationship(rel)
	}
	for _, rel := range source.Relationships {
		if rel.TargetCharacterID == source.ID {
			rel.TargetCharacterID = target.ID
		}
		merged.AddRelationship(rel)
	}

	for _, h := range source.ChapterHistory {
		if merged.HistoryFor(h.Chapter) != nil {
			continue
		}
		merged.ChapterHistory = append(merged.ChapterHistory, entities.ChapterHistoryEntry{
			Chapter: h.Chapter,
			Updates: append([]string(nil), h.Updates...),
		})
	}
	entities.SortHistory(merged.ChapterHistory)

	merged.AddAlias(source.Name)
	for _, a := range source.Aliases {
		merged.AddAlias(a)
	}
	return merged
}

// RepointRelationships rewrites edges on c that target fromID so they
// target toID, dropping any that would duplicate an existing edge.
// Returns true if c changed.
func RepointRelationships(c *entities.Character, fromID, toID string) bool {
	changed := false
	kept := make([]entities.Relationship, 0, len(c.Relationships))
	for _, rel := range c.Relationships {
		if rel.TargetCharacterID != fromID {
			kept = append(kept, rel)
			continue
		}
		changed = true
		rel.TargetCharacterID = toID
		if rel.TargetCharacterID == c.ID || hasEdge(kept, c.Relationships, rel) {
			continue
		}
		kept = append(kept, rel)
	}
	if changed {
		c.Relationships = kept
	}
	return changed
}

// hasEdge reports whether rel's (target, type) already appears in kept, or
// in the untouched edges of all.
func hasEdge(kept, all []entities.Relationship, rel entities.Relationship) bool {
	for _, k := range kept {
		if k.TargetCharacterID == rel.TargetCharacterID && k.Type == rel.Type {
			return true
		}
	}
	for _, a := range all {
		if a.TargetCharacterID == rel.TargetCharacterID && a.Type == rel.Type {
			return true
		}
	}
	return false
}
