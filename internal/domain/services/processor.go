// Package services contains domain business logic.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/domain/identity"
	"github.com/ersonp/book-character-tracker/internal/domain/ports"
	"github.com/ersonp/book-character-tracker/internal/logger"
)

// FirstAppearanceNote is the history note recorded for a new character
// observed without a description.
const FirstAppearanceNote = "First appearance"

// ProcessReport describes the outcome of processing one chapter.
type ProcessReport struct {
	// Characters holds every character created or updated, in the order
	// they were first touched.
	Characters []*entities.Character
	// Created holds the IDs of characters created by this run.
	Created []string
	// Skipped counts candidates dropped for having a blank name.
	Skipped int
	// Relationships counts edges added by the relationship pass.
	Relationships int
}

// Updated returns the characters that existed before this run.
func (r *ProcessReport) Updated() []*entities.Character {
	created := make(map[string]bool, len(r.Created))
	for _, id := range r.Created {
		created[id] = true
	}
	var out []*entities.Character
	for _, c := range r.Characters {
		if !created[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// ChapterProcessor folds one chapter's candidate observations into the
// stored characters of a book.
type ChapterProcessor struct {
	store ports.CharacterStore
	log   *logger.Logger
	now   func() time.Time
	newID func() string
}

// NewChapterProcessor creates a new ChapterProcessor.
func NewChapterProcessor(store ports.CharacterStore, log *logger.Logger) *ChapterProcessor {
	if log == nil {
		log = logger.Nop()
	}
	return &ChapterProcessor{
		store: store,
		log:   log,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Process applies the candidates observed in a chapter and returns every
// character created or updated.
func (p *ChapterProcessor) Process(ctx context.Context, bookID string, chapter int, candidates []entities.CandidateCharacter) ([]*entities.Character, error) {
	report, err := p.ProcessWithReport(ctx, bookID, chapter, candidates)
	if err != nil {
		return nil, err
	}
	return report.Characters, nil
}

// ProcessWithReport is Process with a breakdown of what changed.
//
// Each candidate is resolved against a fresh listing of the book's
// characters and persisted before the next one is looked at, so later
// candidates in the batch can match characters created by earlier ones.
// A failure part way leaves the earlier candidates committed.
func (p *ChapterProcessor) ProcessWithReport(ctx context.Context, bookID string, chapter int, candidates []entities.CandidateCharacter) (*ProcessReport, error) {
	if chapter < 1 {
		return nil, fmt.Errorf("processing chapter %d: %w", chapter, entities.ErrInvalidChapter)
	}

	report := &ProcessReport{}
	touched := make(map[string]*entities.Character)
	byCandidate := make(map[string]string)

	for i := range candidates {
		cand := &candidates[i]
		name := strings.TrimSpace(cand.Name)
		if name == "" {
			report.Skipped++
			continue
		}

		existing, err := p.store.ListCharactersByBook(ctx, bookID)
		if err != nil {
			return nil, fmt.Errorf("listing characters: %w", err)
		}

		var character *entities.Character
		if match := identity.Resolve(name, existing); match != nil {
			character = match
			if prev, ok := touched[match.ID]; ok {
				character = prev
			}
			p.applyObservation(character, cand, chapter, touched[character.ID] == nil)
		} else {
			character = p.newCharacter(bookID, chapter, cand)
			report.Created = append(report.Created, character.ID)
		}

		if err := p.store.SaveCharacter(ctx, character); err != nil {
			return nil, fmt.Errorf("saving character %q: %w", character.Name, err)
		}

		if _, ok := touched[character.ID]; !ok {
			report.Characters = append(report.Characters, character)
		}
		touched[character.ID] = character
		byCandidate[strings.ToLower(name)] = character.ID
	}

	dirty := p.linkRelationships(candidates, chapter, touched, byCandidate, report)
	for _, c := range report.Characters {
		if !dirty[c.ID] {
			continue
		}
		if err := p.store.SaveCharacter(ctx, c); err != nil {
			return nil, fmt.Errorf("saving relationships of %q: %w", c.Name, err)
		}
	}

	p.log.Debug("chapter processed",
		"book_id", bookID,
		"chapter", chapter,
		"created", len(report.Created),
		"touched", len(report.Characters),
		"relationships", report.Relationships,
		"skipped", report.Skipped,
	)
	return report, nil
}

// linkRelationships adds the edges named by candidates whose owner and
// target were both part of this batch. Returns the IDs of characters that
// gained an edge.
func (p *ChapterProcessor) linkRelationships(
	candidates []entities.CandidateCharacter,
	chapter int,
	touched map[string]*entities.Character,
	byCandidate map[string]string,
	report *ProcessReport,
) map[string]bool {
	dirty := make(map[string]bool)
	for i := range candidates {
		cand := &candidates[i]
		if len(cand.Relationships) == 0 {
			continue
		}
		ownerID, ok := byCandidate[strings.ToLower(strings.TrimSpace(cand.Name))]
		if !ok {
			continue
		}
		owner := touched[ownerID]
		for _, rel := range cand.Relationships {
			targetID, ok := byCandidate[strings.ToLower(strings.TrimSpace(rel.TargetName))]
			if !ok {
				continue
			}
			added := owner.AddRelationship(entities.Relationship{
				TargetCharacterID:    targetID,
				Type:                 entities.ParseRelationType(rel.Type),
				Description:          strings.TrimSpace(rel.Description),
				EstablishedInChapter: chapter,
			})
			if added {
				dirty[owner.ID] = true
				report.Relationships++
			}
		}
	}
	return dirty
}

// applyObservation merges a candidate into an existing character.
// firstInRun is false when the character was already touched earlier in the
// same chapter, in which case the mention is not counted again.
func (p *ChapterProcessor) applyObservation(c *entities.Character, cand *entities.CandidateCharacter, chapter int, firstInRun bool) {
	name := strings.TrimSpace(cand.Name)
	if shouldRename(c.Name, name) {
		p.log.Debug("renaming character", "id", c.ID, "from", c.Name, "to", name)
		c.Name = name
	}

	if firstInRun {
		c.MentionCount++
	}
	if chapter < c.LastMentioned {
		p.log.Warn("chapter analyzed out of order",
			"character", c.Name, "chapter", chapter, "last_mentioned", c.LastMentioned)
	}
	if chapter > c.LastMentioned {
		c.LastMentioned = chapter
	}
	if c.FirstAppearance == 0 || chapter < c.FirstAppearance {
		c.FirstAppearance = chapter
	}

	if entities.Known(cand.Occupation) {
		c.Occupation = strings.TrimSpace(cand.Occupation)
	}
	if entities.Known(cand.Age) {
		c.Age = strings.TrimSpace(cand.Age)
	}
	if entities.Known(cand.Location) {
		c.Location = strings.TrimSpace(cand.Location)
	}
	if status := entities.ParseStatus(cand.Status); status != entities.StatusUnknown {
		c.Status = status
	}
	if rel, ok := entities.ParseRelevance(cand.Relevance); ok && rel.Outranks(c.Relevance) {
		c.Relevance = rel
	}
	if entities.Known(cand.BriefDescription) {
		c.BriefDescription = strings.TrimSpace(cand.BriefDescription)
	}

	var notes []string
	if entities.Known(cand.Occupation) {
		notes = append(notes, occupationNote(cand.Occupation))
	}
	if entities.Known(cand.BriefDescription) {
		notes = append(notes, strings.TrimSpace(cand.BriefDescription))
	}
	c.RecordHistory(chapter, notes...)
	c.UpdatedAt = p.now()
}

func (p *ChapterProcessor) newCharacter(bookID string, chapter int, cand *entities.CandidateCharacter) *entities.Character {
	now := p.now()
	c := &entities.Character{
		ID:              p.newID(),
		BookID:          bookID,
		Name:            strings.TrimSpace(cand.Name),
		Occupation:      knownOr(cand.Occupation),
		Age:             knownOr(cand.Age),
		Location:        knownOr(cand.Location),
		Status:          entities.ParseStatus(cand.Status),
		Relevance:       entities.RelevanceMinor,
		FirstAppearance: chapter,
		LastMentioned:   chapter,
		MentionCount:    1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if rel, ok := entities.ParseRelevance(cand.Relevance); ok {
		c.Relevance = rel
	}
	if entities.Known(cand.BriefDescription) {
		c.BriefDescription = strings.TrimSpace(cand.BriefDescription)
	}

	first := FirstAppearanceNote
	if c.BriefDescription != "" {
		first = c.BriefDescription
	}
	notes := []string{first}
	if entities.Known(cand.Occupation) {
		notes = append(notes, occupationNote(cand.Occupation))
	}
	c.RecordHistory(chapter, notes...)
	return c
}

// shouldRename reports whether an observed name is more complete than the
// stored one: strictly longer, or multi-word where the stored name is not.
func shouldRename(current, observed string) bool {
	if observed == "" || observed == current {
		return false
	}
	if utf8.RuneCountInString(observed) > utf8.RuneCountInString(current) {
		return true
	}
	return strings.Contains(observed, " ") && !strings.Contains(current, " ")
}

func occupationNote(occupation string) string {
	return "Occupation: " + strings.TrimSpace(occupation)
}

func knownOr(value string) string {
	if entities.Known(value) {
		return strings.TrimSpace(value)
	}
	return entities.UnknownValue
}
