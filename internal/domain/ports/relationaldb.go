package ports

import (
	"context"
	"time"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
)

// CharacterStore is the character part of the persistence collaborator.
// Lookups return (nil, nil) when no record exists.
type CharacterStore interface {
	// SaveCharacter inserts or replaces a character.
	SaveCharacter(ctx context.Context, character *entities.Character) error

	// FindCharacterByID finds a character by its ID.
	FindCharacterByID(ctx context.Context, id string) (*entities.Character, error)

	// ListCharactersByBook lists all characters of a book ordered by creation.
	ListCharactersByBook(ctx context.Context, bookID string) ([]*entities.Character, error)

	// DeleteCharacter deletes a character by ID.
	DeleteCharacter(ctx context.Context, id string) error

	// CountCharacters returns the number of characters of a book.
	CountCharacters(ctx context.Context, bookID string) (int, error)
}

// BookStore is the book and chapter part of the persistence collaborator.
type BookStore interface {
	// SaveBook inserts or updates a book.
	SaveBook(ctx context.Context, book *entities.Book) error

	// FindBookByID finds a book by its ID.
	FindBookByID(ctx context.Context, id string) (*entities.Book, error)

	// ListBooks lists all books ordered by creation time.
	ListBooks(ctx context.Context) ([]*entities.Book, error)

	// DeleteBook deletes a book with its chapters and characters.
	DeleteBook(ctx context.Context, id string) error

	// SaveChapters replaces the chapter boundaries of a book.
	SaveChapters(ctx context.Context, bookID string, chapters []entities.Chapter) error

	// ListChapters lists the chapters of a book ordered by number, without text.
	ListChapters(ctx context.Context, bookID string) ([]entities.Chapter, error)

	// FindChapter finds one chapter including its text.
	FindChapter(ctx context.Context, bookID string, number int) (*entities.Chapter, error)

	// MarkChapterAnalyzed records when a chapter was last analyzed.
	MarkChapterAnalyzed(ctx context.Context, bookID string, number int, at time.Time) error
}

// AuditLog records administrative and analysis actions.
type AuditLog interface {
	// LogAction logs an action to the audit log.
	LogAction(ctx context.Context, action string, subjectID string, details map[string]any) error

	// FindAuditLog finds audit log entries for a subject, newest first.
	FindAuditLog(ctx context.Context, subjectID string) ([]entities.AuditEntry, error)
}

// RelationalDB defines the full persistence collaborator.
type RelationalDB interface {
	CharacterStore
	BookStore
	AuditLog

	// EnsureSchema creates the database schema if it doesn't exist.
	EnsureSchema(ctx context.Context) error

	// DeleteAll removes every book, chapter, character and audit entry.
	DeleteAll(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
