package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/domain/ports"
	"github.com/ersonp/book-character-tracker/internal/logger"
)

// BookSummary is a book with its library statistics.
type BookSummary struct {
	Book             *entities.Book `json:"book"`
	Chapters         int            `json:"chapters"`
	AnalyzedChapters int            `json:"analyzed_chapters"`
	Characters       int            `json:"characters"`
}

// RepairReport counts the fixes applied by RepairDatabase.
type RepairReport struct {
	Books               int `json:"books"`
	CharactersChecked   int `json:"characters_checked"`
	CharactersRepaired  int `json:"characters_repaired"`
	DanglingEdges       int `json:"dangling_edges"`
	SelfLoops           int `json:"self_loops"`
	DuplicateEdges      int `json:"duplicate_edges"`
	DuplicateAliases    int `json:"duplicate_aliases"`
	HistoryEntriesFused int `json:"history_entries_fused"`
	CountersClamped     int `json:"counters_clamped"`
}

// Changed reports whether any fix was applied.
func (r *RepairReport) Changed() bool {
	return r.CharactersRepaired > 0
}

// MaintenanceService provides administrative operations over the store.
type MaintenanceService struct {
	db  ports.RelationalDB
	log *logger.Logger
}

// NewMaintenanceService creates a new MaintenanceService.
func NewMaintenanceService(db ports.RelationalDB, log *logger.Logger) *MaintenanceService {
	if log == nil {
		log = logger.Nop()
	}
	return &MaintenanceService{db: db, log: log}
}

// ListBooks returns every book with chapter and character counts.
func (s *MaintenanceService) ListBooks(ctx context.Context) ([]BookSummary, error) {
	books, err := s.db.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}

	summaries := make([]BookSummary, 0, len(books))
	for _, b := range books {
		sum, err := s.summarize(ctx, b)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

func (s *MaintenanceService) summarize(ctx context.Context, b *entities.Book) (BookSummary, error) {
	chapters, err := s.db.ListChapters(ctx, b.ID)
	if err != nil {
		return BookSummary{}, fmt.Errorf("listing chapters of %s: %w", b.ID, err)
	}
	count, err := s.db.CountCharacters(ctx, b.ID)
	if err != nil {
		return BookSummary{}, fmt.Errorf("counting characters of %s: %w", b.ID, err)
	}
	sum := BookSummary{Book: b, Chapters: len(chapters), Characters: count}
	for _, ch := range chapters {
		if ch.Analyzed() {
			sum.AnalyzedChapters++
		}
	}
	return sum, nil
}

// RepairDatabase fixes structural problems in every book's characters.
// Running it twice in a row makes no changes the second time.
func (s *MaintenanceService) RepairDatabase(ctx context.Context) (*RepairReport, error) {
	books, err := s.db.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}

	report := &RepairReport{Books: len(books)}
	for _, b := range books {
		characters, err := s.db.ListCharactersByBook(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("listing characters of %s: %w", b.ID, err)
		}
		ids := make(map[string]bool, len(characters))
		for _, c := range characters {
			ids[c.ID] = true
		}
		for _, c := range characters {
			report.CharactersChecked++
			if !repairCharacter(c, ids, report) {
				continue
			}
			if err := s.db.SaveCharacter(ctx, c); err != nil {
				return nil, fmt.Errorf("saving repaired character %s: %w", c.ID, err)
			}
			report.CharactersRepaired++
		}
	}

	if report.Changed() {
		details := map[string]any{
			"characters_repaired": report.CharactersRepaired,
			"dangling_edges":      report.DanglingEdges,
			"self_loops":          report.SelfLoops,
			"duplicate_edges":     report.DuplicateEdges,
		}
		if err := s.db.LogAction(ctx, entities.ActionDatabaseRepaired, "", details); err != nil {
			s.log.Warn("audit log failed", "action", entities.ActionDatabaseRepaired, "error", err)
		}
	}
	s.log.Info("database repaired", "checked", report.CharactersChecked, "repaired", report.CharactersRepaired)
	return report, nil
}

// repairCharacter fixes c in place. ids holds the characters of c's book.
func repairCharacter(c *entities.Character, ids map[string]bool, report *RepairReport) bool {
	changed := false

	edges := make([]entities.Relationship, 0, len(c.Relationships))
	for _, rel := range c.Relationships {
		switch {
		case rel.TargetCharacterID == c.ID:
			report.SelfLoops++
		case !ids[rel.TargetCharacterID]:
			report.DanglingEdges++
		case containsEdge(edges, rel):
			report.DuplicateEdges++
		default:
			edges = append(edges, rel)
			continue
		}
		changed = true
	}
	if len(edges) != len(c.Relationships) {
		c.Relationships = edges
	}

	aliases := c.Aliases
	c.Aliases = nil
	for _, a := range aliases {
		if !c.AddAlias(a) {
			report.DuplicateAliases++
			changed = true
		}
	}

	history := c.ChapterHistory
	c.ChapterHistory = nil
	for _, h := range history {
		if c.HistoryFor(h.Chapter) != nil {
			report.HistoryEntriesFused++
			changed = true
		}
		c.ChapterHistory = appendHistory(c.ChapterHistory, h)
	}
	if !sort.SliceIsSorted(c.ChapterHistory, func(i, j int) bool {
		return c.ChapterHistory[i].Chapter < c.ChapterHistory[j].Chapter
	}) {
		entities.SortHistory(c.ChapterHistory)
		changed = true
	}

	if c.MentionCount < 1 {
		c.MentionCount = 1
		report.CountersClamped++
		changed = true
	}
	if c.FirstAppearance < 1 {
		c.FirstAppearance = 1
		report.CountersClamped++
		changed = true
	}
	if c.LastMentioned < c.FirstAppearance {
		c.LastMentioned = c.FirstAppearance
		report.CountersClamped++
		changed = true
	}
	return changed
}

func containsEdge(edges []entities.Relationship, rel entities.Relationship) bool {
	for _, e := range edges {
		if e.TargetCharacterID == rel.TargetCharacterID && e.Type == rel.Type {
			return true
		}
	}
	return false
}

// appendHistory adds h to history, folding its notes into an existing entry
// for the same chapter.
func appendHistory(history []entities.ChapterHistoryEntry, h entities.ChapterHistoryEntry) []entities.ChapterHistoryEntry {
	for i := range history {
		if history[i].Chapter == h.Chapter {
			history[i].Updates = append(history[i].Updates, h.Updates...)
			return history
		}
	}
	return append(history, entities.ChapterHistoryEntry{
		Chapter: h.Chapter,
		Updates: append([]string(nil), h.Updates...),
	})
}

// ResetDatabase deletes every book, chapter and character.
func (s *MaintenanceService) ResetDatabase(ctx context.Context) error {
	if err := s.db.DeleteAll(ctx); err != nil {
		return fmt.Errorf("resetting database: %w", err)
	}
	if err := s.db.LogAction(ctx, entities.ActionDatabaseReset, "", nil); err != nil {
		s.log.Warn("audit log failed", "action", entities.ActionDatabaseReset, "error", err)
	}
	s.log.Info("database reset")
	return nil
}

// DeduplicateBooks removes books imported more than once under the same
// title and file name. For each group the copy with the most characters is
// kept, then the one with the most chapters, then the oldest. Returns the
// IDs of the deleted books.
func (s *MaintenanceService) DeduplicateBooks(ctx context.Context) ([]string, error) {
	summaries, err := s.ListBooks(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]BookSummary)
	var keys []string
	for _, sum := range summaries {
		key := sum.Book.DedupKey()
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], sum)
	}

	var removed []string
	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i], group[j]
			if a.Characters != b.Characters {
				return a.Characters > b.Characters
			}
			if a.Chapters != b.Chapters {
				return a.Chapters > b.Chapters
			}
			return a.Book.CreatedAt.Before(b.Book.CreatedAt)
		})
		keep := group[0].Book
		for _, dup := range group[1:] {
			if err := s.db.DeleteBook(ctx, dup.Book.ID); err != nil {
				return removed, fmt.Errorf("deleting duplicate book %s: %w", dup.Book.ID, err)
			}
			removed = append(removed, dup.Book.ID)
			details := map[string]any{"reason": "duplicate", "kept": keep.ID, "title": strings.TrimSpace(dup.Book.Title)}
			if err := s.db.LogAction(ctx, entities.ActionBookDeleted, dup.Book.ID, details); err != nil {
				s.log.Warn("audit log failed", "action", entities.ActionBookDeleted, "error", err)
			}
		}
	}

	if len(removed) > 0 {
		s.log.Info("duplicate books removed", "count", len(removed))
	}
	return removed, nil
}
