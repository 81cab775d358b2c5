// Package sqlite provides a SQLite implementation of the RelationalDB interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/infrastructure/config"
)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// Repository implements ports.RelationalDB using SQLite.
type Repository struct {
	db   *sql.DB
	path string
}

// NewRepository creates a new SQLite repository.
func NewRepository(cfg config.SQLiteConfig) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// One connection: pragmas are per connection, and an in-memory database
	// exists only on the connection that created it.
	db.SetMaxOpenConns(1)

	// Enable foreign keys for referential integrity
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &Repository{
		db:   db,
		path: cfg.Path,
	}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// EnsureSchema creates the database schema if it doesn't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	-- Imported books
	CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		file_name TEXT NOT NULL,
		page_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	-- Chapter boundaries and text
	CREATE TABLE IF NOT EXISTS chapters (
		book_id TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		number INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		start_page INTEGER NOT NULL DEFAULT 0,
		end_page INTEGER NOT NULL DEFAULT 0,
		text TEXT NOT NULL DEFAULT '',
		analyzed_at TIMESTAMP,
		PRIMARY KEY (book_id, number)
	);

	-- Characters; list-valued fields are stored as JSON
	CREATE TABLE IF NOT EXISTS characters (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		aliases TEXT NOT NULL DEFAULT '[]',
		occupation TEXT NOT NULL DEFAULT '',
		age TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'Unknown',
		relevance TEXT NOT NULL DEFAULT 'Minor',
		brief_description TEXT NOT NULL DEFAULT '',
		first_appearance INTEGER NOT NULL,
		last_mentioned INTEGER NOT NULL,
		mention_count INTEGER NOT NULL DEFAULT 0,
		relationships TEXT NOT NULL DEFAULT '[]',
		chapter_history TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_characters_book ON characters(book_id);
	CREATE INDEX IF NOT EXISTS idx_characters_first ON characters(book_id, first_appearance);

	-- Audit log (tracks all actions)
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		subject_id TEXT,
		details TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_subject ON audit_log(subject_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
	`

	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// DeleteAll removes every book, chapter, character and audit entry.
func (r *Repository) DeleteAll(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, table := range []string{"characters", "chapters", "books", "audit_log"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reset: %w", err)
	}
	return nil
}

// Book methods.

// SaveBook inserts or updates a book.
func (r *Repository) SaveBook(ctx context.Context, book *entities.Book) error {
	query := `
		INSERT INTO books (id, title, file_name, page_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			file_name = excluded.file_name,
			page_count = excluded.page_count,
			updated_at = excluded.updated_at
	`
	createdAt := book.CreatedAt
	if createdAt.IsZero() {
		createdAt = timeNow()
	}
	updatedAt := book.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	_, err := r.db.ExecContext(ctx, query,
		book.ID,
		book.Title,
		book.FileName,
		book.PageCount,
		createdAt.UTC(),
		updatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving book: %w", err)
	}
	return nil
}

// FindBookByID finds a book by its ID.
func (r *Repository) FindBookByID(ctx context.Context, id string) (*entities.Book, error) {
	query := `
		SELECT id, title, file_name, page_count, created_at, updated_at
		FROM books
		WHERE id = ?
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var b entities.Book
	err := row.Scan(&b.ID, &b.Title, &b.FileName, &b.PageCount, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning book: %w", err)
	}
	return &b, nil
}

// ListBooks lists all books ordered by creation time.
func (r *Repository) ListBooks(ctx context.Context) ([]*entities.Book, error) {
	query := `
		SELECT id, title, file_name, page_count, created_at, updated_at
		FROM books
		ORDER BY created_at ASC, rowid ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying books: %w", err)
	}
	defer rows.Close()

	var books []*entities.Book
	for rows.Next() {
		var b entities.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.FileName, &b.PageCount, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning book: %w", err)
		}
		books = append(books, &b)
	}
	return books, rows.Err()
}

// DeleteBook deletes a book with its chapters and characters.
func (r *Repository) DeleteBook(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("book not found: %s", id)
	}
	return nil
}

// SaveChapters replaces the chapter boundaries of a book.
func (r *Repository) SaveChapters(ctx context.Context, bookID string, chapters []entities.Chapter) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM chapters WHERE book_id = ?`, bookID); err != nil {
		return fmt.Errorf("clearing chapters: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chapters (book_id, number, title, start_page, end_page, text, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing chapter insert: %w", err)
	}
	defer stmt.Close()

	for i := range chapters {
		ch := &chapters[i]
		var analyzedAt sql.NullTime
		if ch.AnalyzedAt != nil {
			analyzedAt = sql.NullTime{Time: ch.AnalyzedAt.UTC(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, bookID, ch.Number, ch.Title, ch.StartPage, ch.EndPage, ch.Text, analyzedAt); err != nil {
			return fmt.Errorf("inserting chapter %d: %w", ch.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chapters: %w", err)
	}
	return nil
}

// ListChapters lists the chapters of a book ordered by number, without text.
func (r *Repository) ListChapters(ctx context.Context, bookID string) ([]entities.Chapter, error) {
	query := `
		SELECT book_id, number, title, start_page, end_page, analyzed_at
		FROM chapters
		WHERE book_id = ?
		ORDER BY number ASC
	`
	rows, err := r.db.QueryContext(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("querying chapters: %w", err)
	}
	defer rows.Close()

	var chapters []entities.Chapter
	for rows.Next() {
		var ch entities.Chapter
		var analyzedAt sql.NullTime
		if err := rows.Scan(&ch.BookID, &ch.Number, &ch.Title, &ch.StartPage, &ch.EndPage, &analyzedAt); err != nil {
			return nil, fmt.Errorf("scanning chapter: %w", err)
		}
		if analyzedAt.Valid {
			t := analyzedAt.Time
			ch.AnalyzedAt = &t
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

// FindChapter finds one chapter including its text.
func (r *Repository) FindChapter(ctx context.Context, bookID string, number int) (*entities.Chapter, error) {
	query := `
		SELECT book_id, number, title, start_page, end_page, text, analyzed_at
		FROM chapters
		WHERE book_id = ? AND number = ?
	`
	row := r.db.QueryRowContext(ctx, query, bookID, number)

	var ch entities.Chapter
	var analyzedAt sql.NullTime
	err := row.Scan(&ch.BookID, &ch.Number, &ch.Title, &ch.StartPage, &ch.EndPage, &ch.Text, &analyzedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning chapter: %w", err)
	}
	if analyzedAt.Valid {
		t := analyzedAt.Time
		ch.AnalyzedAt = &t
	}
	return &ch, nil
}

// MarkChapterAnalyzed records when a chapter was last analyzed.
func (r *Repository) MarkChapterAnalyzed(ctx context.Context, bookID string, number int, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE chapters SET analyzed_at = ? WHERE book_id = ? AND number = ?`,
		at.UTC(), bookID, number,
	)
	if err != nil {
		return fmt.Errorf("marking chapter analyzed: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("chapter %d not found for book %s", number, bookID)
	}
	return nil
}

// Character methods.

const characterColumns = `
	id, book_id, name, aliases, occupation, age, location, status, relevance,
	brief_description, first_appearance, last_mentioned, mention_count,
	relationships, chapter_history, created_at, updated_at`

// SaveCharacter inserts or replaces a character.
func (r *Repository) SaveCharacter(ctx context.Context, c *entities.Character) error {
	aliases, err := marshalJSON(c.Aliases, "[]")
	if err != nil {
		return fmt.Errorf("marshaling aliases: %w", err)
	}
	relationships, err := marshalJSON(c.Relationships, "[]")
	if err != nil {
		return fmt.Errorf("marshaling relationships: %w", err)
	}
	history, err := marshalJSON(c.ChapterHistory, "[]")
	if err != nil {
		return fmt.Errorf("marshaling chapter history: %w", err)
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = timeNow()
	}
	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	query := `
		INSERT INTO characters (` + characterColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			aliases = excluded.aliases,
			occupation = excluded.occupation,
			age = excluded.age,
			location = excluded.location,
			status = excluded.status,
			relevance = excluded.relevance,
			brief_description = excluded.brief_description,
			first_appearance = excluded.first_appearance,
			last_mentioned = excluded.last_mentioned,
			mention_count = excluded.mention_count,
			relationships = excluded.relationships,
			chapter_history = excluded.chapter_history,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		c.ID,
		c.BookID,
		c.Name,
		aliases,
		c.Occupation,
		c.Age,
		c.Location,
		string(c.Status),
		string(c.Relevance),
		c.BriefDescription,
		c.FirstAppearance,
		c.LastMentioned,
		c.MentionCount,
		relationships,
		history,
		createdAt.UTC(),
		updatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving character: %w", err)
	}
	return nil
}

// FindCharacterByID finds a character by its ID.
func (r *Repository) FindCharacterByID(ctx context.Context, id string) (*entities.Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters WHERE id = ?`
	c, err := scanCharacter(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCharactersByBook lists all characters of a book ordered by creation.
func (r *Repository) ListCharactersByBook(ctx context.Context, bookID string) ([]*entities.Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters WHERE book_id = ? ORDER BY rowid ASC`
	rows, err := r.db.QueryContext(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("querying characters: %w", err)
	}
	defer rows.Close()

	var characters []*entities.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		characters = append(characters, c)
	}
	return characters, rows.Err()
}

// DeleteCharacter deletes a character by ID.
func (r *Repository) DeleteCharacter(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM characters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting character: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("character not found: %s", id)
	}
	return nil
}

// CountCharacters returns the number of characters of a book.
func (r *Repository) CountCharacters(ctx context.Context, bookID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM characters WHERE book_id = ?`, bookID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting characters: %w", err)
	}
	return count, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCharacter(row rowScanner) (*entities.Character, error) {
	var c entities.Character
	var status, relevance, aliases, relationships, history string
	err := row.Scan(
		&c.ID,
		&c.BookID,
		&c.Name,
		&aliases,
		&c.Occupation,
		&c.Age,
		&c.Location,
		&status,
		&relevance,
		&c.BriefDescription,
		&c.FirstAppearance,
		&c.LastMentioned,
		&c.MentionCount,
		&relationships,
		&history,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning character: %w", err)
	}

	c.Status = entities.Status(status)
	c.Relevance = entities.Relevance(relevance)
	if err := unmarshalJSON(aliases, &c.Aliases); err != nil {
		return nil, fmt.Errorf("unmarshaling aliases of %s: %w", c.ID, err)
	}
	if err := unmarshalJSON(relationships, &c.Relationships); err != nil {
		return nil, fmt.Errorf("unmarshaling relationships of %s: %w", c.ID, err)
	}
	if err := unmarshalJSON(history, &c.ChapterHistory); err != nil {
		return nil, fmt.Errorf("unmarshaling chapter history of %s: %w", c.ID, err)
	}
	return &c, nil
}

// marshalJSON encodes v, using empty for nil or empty slices.
func marshalJSON(v any, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" || string(data) == "[]" {
		return empty, nil
	}
	return string(data), nil
}

// unmarshalJSON decodes data into v, leaving v nil for empty lists.
func unmarshalJSON(data string, v any) error {
	if data == "" || data == "[]" || data == "null" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

// Audit log methods.

// LogAction logs an action to the audit log.
func (r *Repository) LogAction(ctx context.Context, action string, subjectID string, details map[string]any) error {
	var detailsJSON sql.NullString
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshaling details: %w", err)
		}
		detailsJSON = sql.NullString{String: string(data), Valid: true}
	}

	var subject sql.NullString
	if subjectID != "" {
		subject = sql.NullString{String: subjectID, Valid: true}
	}

	query := `INSERT INTO audit_log (action, subject_id, details, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, action, subject, detailsJSON, timeNow().UTC())
	if err != nil {
		return fmt.Errorf("logging action: %w", err)
	}
	return nil
}

// FindAuditLog finds audit log entries for a subject, newest first.
func (r *Repository) FindAuditLog(ctx context.Context, subjectID string) ([]entities.AuditEntry, error) {
	query := `
		SELECT id, action, subject_id, details, created_at
		FROM audit_log
		WHERE subject_id = ?
		ORDER BY id DESC
	`
	return r.queryAuditLog(ctx, query, subjectID)
}

// FindAuditLogByAction finds audit log entries by action type, newest first.
func (r *Repository) FindAuditLogByAction(ctx context.Context, action string, limit int) ([]entities.AuditEntry, error) {
	query := `
		SELECT id, action, subject_id, details, created_at
		FROM audit_log
		WHERE action = ?
		ORDER BY id DESC
		LIMIT ?
	`
	return r.queryAuditLog(ctx, query, action, limit)
}

// queryAuditLog is a helper to execute audit log queries.
func (r *Repository) queryAuditLog(ctx context.Context, query string, args ...any) ([]entities.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []entities.AuditEntry
	for rows.Next() {
		var entry entities.AuditEntry
		var subjectID, details sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&subjectID,
			&details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		entry.SubjectID = subjectID.String

		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling details: %w", err)
			}
		}

		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
