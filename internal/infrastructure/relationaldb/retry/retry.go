// Package retry wraps a RelationalDB so transient storage failures are
// retried with exponential backoff.
package retry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/domain/ports"
	"github.com/ersonp/book-character-tracker/internal/infrastructure/config"
	"github.com/ersonp/book-character-tracker/internal/logger"
)

// transientMarkers are substrings of driver errors worth another attempt.
var transientMarkers = []string{
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	"sqlite_locked",
}

// IsTransient reports whether err looks like lock contention that usually
// clears on its own.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// DB decorates a ports.RelationalDB with retries.
type DB struct {
	next      ports.RelationalDB
	cfg       config.RetryConfig
	log       *logger.Logger
	retryable func(error) bool
}

// Option customises a DB.
type Option func(*DB)

// WithRetryable replaces the transient error classifier.
func WithRetryable(fn func(error) bool) Option {
	return func(d *DB) {
		d.retryable = fn
	}
}

// New wraps next. A MaxAttempts of 0 or 1 disables retries.
func New(next ports.RelationalDB, cfg config.RetryConfig, log *logger.Logger, opts ...Option) *DB {
	if log == nil {
		log = logger.Nop()
	}
	d := &DB{
		next:      next,
		cfg:       cfg,
		log:       log,
		retryable: IsTransient,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DB) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if d.cfg.InitialInterval > 0 {
		b.InitialInterval = d.cfg.InitialInterval
	}
	if d.cfg.MaxInterval > 0 {
		b.MaxInterval = d.cfg.MaxInterval
	}
	b.MaxElapsedTime = 0

	retries := 0
	if d.cfg.MaxAttempts > 1 {
		retries = d.cfg.MaxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// do runs op until it succeeds, fails permanently or the policy gives up.
func (d *DB) do(ctx context.Context, name string, op func() error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err != nil && !d.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		d.log.Warn("retrying database operation", "op", name, "attempt", attempt, "wait", wait, "error", err)
	}
	return backoff.RetryNotify(wrapped, d.policy(ctx), notify)
}

// EnsureSchema creates the database schema if it doesn't exist.
func (d *DB) EnsureSchema(ctx context.Context) error {
	return d.do(ctx, "ensure_schema", func() error { return d.next.EnsureSchema(ctx) })
}

// DeleteAll removes every book, chapter, character and audit entry.
func (d *DB) DeleteAll(ctx context.Context) error {
	return d.do(ctx, "delete_all", func() error { return d.next.DeleteAll(ctx) })
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.next.Close()
}

// SaveCharacter inserts or replaces a character.
func (d *DB) SaveCharacter(ctx context.Context, c *entities.Character) error {
	return d.do(ctx, "save_character", func() error { return d.next.SaveCharacter(ctx, c) })
}

// FindCharacterByID finds a character by its ID.
func (d *DB) FindCharacterByID(ctx context.Context, id string) (*entities.Character, error) {
	var out *entities.Character
	err := d.do(ctx, "find_character", func() error {
		var err error
		out, err = d.next.FindCharacterByID(ctx, id)
		return err
	})
	return out, err
}

// ListCharactersByBook lists all characters of a book ordered by creation.
func (d *DB) ListCharactersByBook(ctx context.Context, bookID string) ([]*entities.Character, error) {
	var out []*entities.Character
	err := d.do(ctx, "list_characters", func() error {
		var err error
		out, err = d.next.ListCharactersByBook(ctx, bookID)
		return err
	})
	return out, err
}

// DeleteCharacter deletes a character by ID.
func (d *DB) DeleteCharacter(ctx context.Context, id string) error {
	return d.do(ctx, "delete_character", func() error { return d.next.DeleteCharacter(ctx, id) })
}

// CountCharacters returns the number of characters of a book.
func (d *DB) CountCharacters(ctx context.Context, bookID string) (int, error) {
	var out int
	err := d.do(ctx, "count_characters", func() error {
		var err error
		out, err = d.next.CountCharacters(ctx, bookID)
		return err
	})
	return out, err
}

// SaveBook inserts or updates a book.
func (d *DB) SaveBook(ctx context.Context, b *entities.Book) error {
	return d.do(ctx, "save_book", func() error { return d.next.SaveBook(ctx, b) })
}

// FindBookByID finds a book by its ID.
func (d *DB) FindBookByID(ctx context.Context, id string) (*entities.Book, error) {
	var out *entities.Book
	err := d.do(ctx, "find_book", func() error {
		var err error
		out, err = d.next.FindBookByID(ctx, id)
		return err
	})
	return out, err
}

// ListBooks lists all books ordered by creation time.
func (d *DB) ListBooks(ctx context.Context) ([]*entities.Book, error) {
	var out []*entities.Book
	err := d.do(ctx, "list_books", func() error {
		var err error
		out, err = d.next.ListBooks(ctx)
		return err
	})
	return out, err
}

// DeleteBook deletes a book with its chapters and characters.
func (d *DB) DeleteBook(ctx context.Context, id string) error {
	return d.do(ctx, "delete_book", func() error { return d.next.DeleteBook(ctx, id) })
}

// SaveChapters replaces the chapter boundaries of a book.
func (d *DB) SaveChapters(ctx context.Context, bookID string, chapters []entities.Chapter) error {
	return d.do(ctx, "save_chapters", func() error { return d.next.SaveChapters(ctx, bookID, chapters) })
}

// ListChapters lists the chapters of a book ordered by number.
func (d *DB) ListChapters(ctx context.Context, bookID string) ([]entities.Chapter, error) {
	var out []entities.Chapter
	err := d.do(ctx, "list_chapters", func() error {
		var err error
		out, err = d.next.ListChapters(ctx, bookID)
		return err
	})
	return out, err
}

// FindChapter finds one chapter including its text.
func (d *DB) FindChapter(ctx context.Context, bookID string, number int) (*entities.Chapter, error) {
	var out *entities.Chapter
	err := d.do(ctx, "find_chapter", func() error {
		var err error
		out, err = d.next.FindChapter(ctx, bookID, number)
		return err
	})
	return out, err
}

// MarkChapterAnalyzed records when a chapter was last analyzed.
func (d *DB) MarkChapterAnalyzed(ctx context.Context, bookID string, number int, at time.Time) error {
	return d.do(ctx, "mark_chapter_analyzed", func() error { return d.next.MarkChapterAnalyzed(ctx, bookID, number, at) })
}

// LogAction logs an action to the audit log.
func (d *DB) LogAction(ctx context.Context, action string, subjectID string, details map[string]any) error {
	return d.do(ctx, "log_action", func() error { return d.next.LogAction(ctx, action, subjectID, details) })
}

// FindAuditLog finds audit log entries for a subject, newest first.
func (d *DB) FindAuditLog(ctx context.Context, subjectID string) ([]entities.AuditEntry, error) {
	var out []entities.AuditEntry
	err := d.do(ctx, "find_audit_log", func() error {
		var err error
		out, err = d.next.FindAuditLog(ctx, subjectID)
		return err
	})
	return out, err
}
