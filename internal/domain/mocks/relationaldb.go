// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
)

// RelationalDB is an in-memory implementation of ports.RelationalDB.
// Records are copied on the way in and out so callers never share state
// with the store.
type RelationalDB struct {
	mu sync.Mutex

	Books      map[string]*entities.Book
	Chapters   map[string][]entities.Chapter
	Characters map[string]*entities.Character
	Audit      []entities.AuditEntry

	// Err, when set, is returned by every method.
	Err error
	// SaveCharacterHook, when set, runs before each SaveCharacter; a non-nil
	// result aborts the save.
	SaveCharacterHook func(c *entities.Character) error
	// DeleteCharacterErr is returned by DeleteCharacter when set.
	DeleteCharacterErr error

	// SaveCharacterCalls counts successful SaveCharacter calls.
	SaveCharacterCalls int

	seq   int
	order map[string]int
}

// NewRelationalDB creates a new mock RelationalDB.
func NewRelationalDB() *RelationalDB {
	return &RelationalDB{
		Books:      make(map[string]*entities.Book),
		Chapters:   make(map[string][]entities.Chapter),
		Characters: make(map[string]*entities.Character),
		order:      make(map[string]int),
	}
}

// EnsureSchema creates the database schema if it doesn't exist.
func (m *RelationalDB) EnsureSchema(_ context.Context) error {
	return m.Err
}

// Close closes the database connection.
func (m *RelationalDB) Close() error {
	return nil
}

// DeleteAll removes every record.
func (m *RelationalDB) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Books = make(map[string]*entities.Book)
	m.Chapters = make(map[string][]entities.Chapter)
	m.Characters = make(map[string]*entities.Character)
	m.Audit = nil
	m.order = make(map[string]int)
	return nil
}

// Character methods.

// SaveCharacter inserts or replaces a character.
func (m *RelationalDB) SaveCharacter(_ context.Context, c *entities.Character) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.SaveCharacterHook != nil {
		if err := m.SaveCharacterHook(c); err != nil {
			return err
		}
	}
	if _, ok := m.order[c.ID]; !ok {
		m.seq++
		m.order[c.ID] = m.seq
	}
	m.Characters[c.ID] = c.Clone()
	m.SaveCharacterCalls++
	return nil
}

// FindCharacterByID finds a character by its ID.
func (m *RelationalDB) FindCharacterByID(_ context.Context, id string) (*entities.Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	c, ok := m.Characters[id]
	if !ok {
		return nil, nil
	}
	return c.Clone(), nil
}

// ListCharactersByBook lists all characters of a book in insertion order.
func (m *RelationalDB) ListCharactersByBook(_ context.Context, bookID string) ([]*entities.Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	result := make([]*entities.Character, 0, len(m.Characters))
	for _, c := range m.Characters {
		if c.BookID == bookID {
			result = append(result, c.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return m.order[result[i].ID] < m.order[result[j].ID]
	})
	return result, nil
}

// DeleteCharacter deletes a character by ID.
func (m *RelationalDB) DeleteCharacter(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.DeleteCharacterErr != nil {
		return m.DeleteCharacterErr
	}
	if _, ok := m.Characters[id]; !ok {
		return fmt.Errorf("character not found: %s", id)
	}
	delete(m.Characters, id)
	delete(m.order, id)
	return nil
}

// CountCharacters returns the number of characters of a book.
func (m *RelationalDB) CountCharacters(ctx context.Context, bookID string) (int, error) {
	list, err := m.ListCharactersByBook(ctx, bookID)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

// Book methods.

// SaveBook inserts or updates a book.
func (m *RelationalDB) SaveBook(_ context.Context, b *entities.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cp := *b
	m.Books[b.ID] = &cp
	return nil
}

// FindBookByID finds a book by its ID.
func (m *RelationalDB) FindBookByID(_ context.Context, id string) (*entities.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	b, ok := m.Books[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

// ListBooks lists all books ordered by creation time.
func (m *RelationalDB) ListBooks(_ context.Context) ([]*entities.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	result := make([]*entities.Book, 0, len(m.Books))
	for _, b := range m.Books {
		cp := *b
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteBook deletes a book with its chapters and characters.
func (m *RelationalDB) DeleteBook(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.Books[id]; !ok {
		return fmt.Errorf("book not found: %s", id)
	}
	delete(m.Books, id)
	delete(m.Chapters, id)
	for cid, c := range m.Characters {
		if c.BookID == id {
			delete(m.Characters, cid)
			delete(m.order, cid)
		}
	}
	return nil
}

// SaveChapters replaces the chapter boundaries of a book.
func (m *RelationalDB) SaveChapters(_ context.Context, bookID string, chapters []entities.Chapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cp := make([]entities.Chapter, len(chapters))
	copy(cp, chapters)
	for i := range cp {
		cp[i].BookID = bookID
	}
	sort.Slice(cp, func(i, j int) bool { return cp[i].Number < cp[j].Number })
	m.Chapters[bookID] = cp
	return nil
}

// ListChapters lists the chapters of a book without their text.
func (m *RelationalDB) ListChapters(_ context.Context, bookID string) ([]entities.Chapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	result := make([]entities.Chapter, len(m.Chapters[bookID]))
	copy(result, m.Chapters[bookID])
	for i := range result {
		result[i].Text = ""
	}
	return result, nil
}

// FindChapter finds one chapter including its text.
func (m *RelationalDB) FindChapter(_ context.Context, bookID string, number int) (*entities.Chapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, ch := range m.Chapters[bookID] {
		if ch.Number == number {
			cp := ch
			return &cp, nil
		}
	}
	return nil, nil
}

// MarkChapterAnalyzed records when a chapter was last analyzed.
func (m *RelationalDB) MarkChapterAnalyzed(_ context.Context, bookID string, number int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for i := range m.Chapters[bookID] {
		if m.Chapters[bookID][i].Number == number {
			t := at
			m.Chapters[bookID][i].AnalyzedAt = &t
			return nil
		}
	}
	return fmt.Errorf("chapter %d not found for book %s", number, bookID)
}

// Audit log methods.

// LogAction logs an action to the audit log.
func (m *RelationalDB) LogAction(_ context.Context, action string, subjectID string, details map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Audit = append(m.Audit, entities.AuditEntry{
		ID:        int64(len(m.Audit) + 1),
		Action:    action,
		SubjectID: subjectID,
		Details:   details,
		CreatedAt: time.Now(),
	})
	return nil
}

// FindAuditLog finds audit log entries for a subject, newest first.
func (m *RelationalDB) FindAuditLog(_ context.Context, subjectID string) ([]entities.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var result []entities.AuditEntry
	for i := len(m.Audit) - 1; i >= 0; i-- {
		if m.Audit[i].SubjectID == subjectID {
			result = append(result, m.Audit[i])
		}
	}
	return result, nil
}
