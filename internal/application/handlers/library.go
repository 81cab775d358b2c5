// Package handlers contains application use case handlers.
package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/domain/ports"
	"github.com/ersonp/book-character-tracker/internal/domain/services"
	"github.com/ersonp/book-character-tracker/internal/infrastructure/parsers"
	"github.com/ersonp/book-character-tracker/internal/logger"
)

// LibraryHandler handles importing, listing and deleting books.
type LibraryHandler struct {
	db          ports.RelationalDB
	maintenance *services.MaintenanceService
	index       *services.IndexService
	log         *logger.Logger
	now         func() time.Time
}

// NewLibraryHandler creates a new library handler. index may be nil when
// semantic search is disabled.
func NewLibraryHandler(db ports.RelationalDB, maintenance *services.MaintenanceService, index *services.IndexService, log *logger.Logger) *LibraryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &LibraryHandler{
		db:          db,
		maintenance: maintenance,
		index:       index,
		log:         log,
		now:         time.Now,
	}
}

// ImportOptions controls manuscript import.
type ImportOptions struct {
	// Title overrides the title derived from the file name.
	Title string
	// LinesPerPage paginates text without form feeds.
	LinesPerPage int
}

// ImportResult contains the result of an import.
type ImportResult struct {
	Book     *entities.Book
	Chapters []entities.Chapter
	// Reimported is set when the file replaced the chapters of an existing book.
	Reimported bool
	// RemovedDuplicates lists books deleted by deduplication.
	RemovedDuplicates []string
}

// Import reads a paged text manuscript, detects its chapters and stores the
// book. Importing the same title and file name again refreshes the chapter
// boundaries of the existing book and keeps its characters.
func (h *LibraryHandler) Import(ctx context.Context, filePath string, opts ImportOptions) (*ImportResult, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("accessing file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", absPath)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	parser := &parsers.ManuscriptParser{LinesPerPage: opts.LinesPerPage}
	manuscript, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parsing manuscript: %w", err)
	}

	removed, err := h.maintenance.DeduplicateBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("deduplicating books: %w", err)
	}
	h.dropFromIndex(ctx, removed)

	now := h.now()
	book := &entities.Book{
		Title:     opts.Title,
		FileName:  filepath.Base(absPath),
		PageCount: manuscript.PageCount,
	}
	if strings.TrimSpace(book.Title) == "" {
		book.Title = TitleFromFileName(book.FileName)
	}

	existing, err := h.findExisting(ctx, book)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Book: book, RemovedDuplicates: removed}
	previous := map[int]*time.Time{}
	if existing != nil {
		book.ID = existing.ID
		book.CreatedAt = existing.CreatedAt
		result.Reimported = true
		chapters, err := h.db.ListChapters(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("listing chapters: %w", err)
		}
		for _, ch := range chapters {
			previous[ch.Number] = ch.AnalyzedAt
		}
	} else {
		book.ID = uuid.New().String()
		book.CreatedAt = now
	}
	book.UpdatedAt = now

	if err := h.db.SaveBook(ctx, book); err != nil {
		return nil, fmt.Errorf("saving book: %w", err)
	}

	chapters := make([]entities.Chapter, len(manuscript.Chapters))
	for i, ch := range manuscript.Chapters {
		ch.BookID = book.ID
		ch.AnalyzedAt = previous[ch.Number]
		chapters[i] = ch
	}
	if err := h.db.SaveChapters(ctx, book.ID, chapters); err != nil {
		return nil, fmt.Errorf("saving chapters: %w", err)
	}
	result.Chapters = chapters

	details := map[string]any{
		"title":      book.Title,
		"file_name":  book.FileName,
		"pages":      book.PageCount,
		"chapters":   len(chapters),
		"reimported": result.Reimported,
	}
	if err := h.db.LogAction(ctx, entities.ActionBookImported, book.ID, details); err != nil {
		h.log.Warn("audit log failed", "action", entities.ActionBookImported, "error", err)
	}

	h.log.Info("book imported", "book_id", book.ID, "title", book.Title, "chapters", len(chapters))
	return result, nil
}

func (h *LibraryHandler) findExisting(ctx context.Context, book *entities.Book) (*entities.Book, error) {
	books, err := h.db.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	key := book.DedupKey()
	for _, b := range books {
		if b.DedupKey() == key {
			return b, nil
		}
	}
	return nil, nil
}

// List returns every book with its statistics.
func (h *LibraryHandler) List(ctx context.Context) ([]services.BookSummary, error) {
	return h.maintenance.ListBooks(ctx)
}

// Chapters returns the chapter boundaries of a book.
func (h *LibraryHandler) Chapters(ctx context.Context, bookID string) ([]entities.Chapter, error) {
	if _, err := h.Book(ctx, bookID); err != nil {
		return nil, err
	}
	chapters, err := h.db.ListChapters(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("listing chapters: %w", err)
	}
	return chapters, nil
}

// Book returns a book or an error wrapping entities.ErrNotFound.
func (h *LibraryHandler) Book(ctx context.Context, bookID string) (*entities.Book, error) {
	book, err := h.db.FindBookByID(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("finding book: %w", err)
	}
	if book == nil {
		return nil, fmt.Errorf("book %s: %w", bookID, entities.ErrNotFound)
	}
	return book, nil
}

// FindBook looks a book up by ID, then by case-insensitive title.
func (h *LibraryHandler) FindBook(ctx context.Context, ref string) (*entities.Book, error) {
	book, err := h.db.FindBookByID(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("finding book: %w", err)
	}
	if book != nil {
		return book, nil
	}

	books, err := h.db.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	var matches []*entities.Book
	for _, b := range books {
		if strings.EqualFold(strings.TrimSpace(b.Title), strings.TrimSpace(ref)) {
			matches = append(matches, b)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("book %q: %w", ref, entities.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("title %q matches %d books, use the book ID", ref, len(matches))
	}
}

// Delete removes a book with its chapters and characters.
func (h *LibraryHandler) Delete(ctx context.Context, bookID string) error {
	book, err := h.Book(ctx, bookID)
	if err != nil {
		return err
	}
	if err := h.db.DeleteBook(ctx, bookID); err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}
	h.dropFromIndex(ctx, []string{bookID})

	details := map[string]any{"title": book.Title, "reason": "user"}
	if err := h.db.LogAction(ctx, entities.ActionBookDeleted, bookID, details); err != nil {
		h.log.Warn("audit log failed", "action", entities.ActionBookDeleted, "error", err)
	}
	h.log.Info("book deleted", "book_id", bookID)
	return nil
}

// dropFromIndex removes deleted books from the search index. Failures are
// logged only; `index rebuild` repairs a stale index.
func (h *LibraryHandler) dropFromIndex(ctx context.Context, bookIDs []string) {
	if h.index == nil {
		return
	}
	for _, id := range bookIDs {
		if err := h.index.RemoveBook(ctx, id); err != nil {
			h.log.Warn("index update failed", "book_id", id, "error", err)
		}
	}
}

// TitleFromFileName turns "the_great-gatsby.txt" into "The Great Gatsby".
func TitleFromFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	if len(words) == 0 {
		return name
	}
	return strings.Join(words, " ")
}
