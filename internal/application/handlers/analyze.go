package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/domain/ports"
	"github.com/ersonp/book-character-tracker/internal/domain/services"
	"github.com/ersonp/book-character-tracker/internal/infrastructure/parsers"
	"github.com/ersonp/book-character-tracker/internal/logger"
)

// AnalyzeHandler runs chapter analysis. At most one analysis per book is in
// flight at a time because the character store has no locking.
type AnalyzeHandler struct {
	analysis *services.AnalysisService
	books    ports.BookStore
	index    *services.IndexService
	log      *logger.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewAnalyzeHandler creates a new analyze handler. index may be nil.
func NewAnalyzeHandler(analysis *services.AnalysisService, books ports.BookStore, index *services.IndexService, log *logger.Logger) *AnalyzeHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AnalyzeHandler{
		analysis: analysis,
		books:    books,
		index:    index,
		log:      log,
		inFlight: make(map[string]bool),
	}
}

// AnalyzeOptions selects the chapters to analyze.
type AnalyzeOptions struct {
	// From is the first chapter. Zero means the first chapter not yet analyzed.
	From int
	// To is the last chapter, inclusive. Zero means From only, or every
	// remaining chapter when From is also zero.
	To int
	// ObservationsFile supplies pre-extracted observations (JSON, YAML or
	// CSV) instead of calling the extractor.
	ObservationsFile string
}

// AnalyzeBatchResult contains the results of a range analysis.
type AnalyzeBatchResult struct {
	BookID   string
	Chapters []*services.AnalysisResult
}

// Handle analyzes the selected chapters of a book in increasing order and
// stops at the first failure. Chapters finished before the failure stay
// committed and are returned with the error.
func (h *AnalyzeHandler) Handle(ctx context.Context, bookID string, opts AnalyzeOptions) (*AnalyzeBatchResult, error) {
	if err := h.acquire(bookID); err != nil {
		return nil, err
	}
	defer h.release(bookID)

	numbers, err := h.selectChapters(ctx, bookID, opts)
	if err != nil {
		return nil, err
	}

	var observations []parsers.ChapterObservations
	if opts.ObservationsFile != "" {
		observations, err = readObservations(opts.ObservationsFile)
		if err != nil {
			return nil, err
		}
	}

	batch := &AnalyzeBatchResult{BookID: bookID}
	for _, n := range numbers {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		var result *services.AnalysisResult
		if opts.ObservationsFile != "" {
			result, err = h.analysis.ProcessObservations(ctx, bookID, n, parsers.ForChapter(observations, n))
		} else {
			result, err = h.analysis.AnalyzeChapter(ctx, bookID, n)
		}
		if err != nil {
			return batch, err
		}
		batch.Chapters = append(batch.Chapters, result)
		h.syncIndex(ctx, result)
	}
	return batch, nil
}

// InFlight reports whether an analysis of the book is running.
func (h *AnalyzeHandler) InFlight(bookID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inFlight[bookID]
}

func (h *AnalyzeHandler) acquire(bookID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inFlight[bookID] {
		return fmt.Errorf("book %s: %w", bookID, entities.ErrAnalysisInProgress)
	}
	h.inFlight[bookID] = true
	return nil
}

func (h *AnalyzeHandler) release(bookID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inFlight, bookID)
}

// selectChapters resolves the options to an ascending list of chapter numbers.
func (h *AnalyzeHandler) selectChapters(ctx context.Context, bookID string, opts AnalyzeOptions) ([]int, error) {
	if opts.From < 0 || opts.To < 0 {
		return nil, entities.ErrInvalidChapter
	}
	if opts.To != 0 && opts.From > opts.To {
		return nil, fmt.Errorf("invalid chapter range %d-%d", opts.From, opts.To)
	}

	book, err := h.books.FindBookByID(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("finding book: %w", err)
	}
	if book == nil {
		return nil, fmt.Errorf("book %s: %w", bookID, entities.ErrNotFound)
	}

	// Observation files may describe chapters beyond the detected boundaries.
	if opts.From > 0 && opts.ObservationsFile != "" {
		return chapterRange(opts.From, opts.To), nil
	}

	chapters, err := h.books.ListChapters(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("listing chapters: %w", err)
	}

	from, to := opts.From, opts.To
	if from == 0 {
		from = firstPending(chapters)
		if from == 0 {
			return nil, nil
		}
		if to == 0 && len(chapters) > 0 {
			to = chapters[len(chapters)-1].Number
		}
	}
	if to == 0 {
		to = from
	}

	var numbers []int
	for _, ch := range chapters {
		if ch.Number >= from && ch.Number <= to {
			numbers = append(numbers, ch.Number)
		}
	}
	if len(numbers) == 0 {
		return nil, fmt.Errorf("chapters %d-%d of book %s: %w", from, to, bookID, entities.ErrNotFound)
	}
	return numbers, nil
}

// firstPending returns the number of the first chapter not yet analyzed,
// or zero when every chapter has been analyzed.
func firstPending(chapters []entities.Chapter) int {
	for _, ch := range chapters {
		if !ch.Analyzed() {
			return ch.Number
		}
	}
	return 0
}

func chapterRange(from, to int) []int {
	if to == 0 {
		to = from
	}
	out := make([]int, 0, to-from+1)
	for n := from; n <= to; n++ {
		out = append(out, n)
	}
	return out
}

// syncIndex pushes the touched characters to the search index. Failures are
// logged and never fail the analysis.
func (h *AnalyzeHandler) syncIndex(ctx context.Context, result *services.AnalysisResult) {
	if h.index == nil {
		return
	}
	if err := h.index.Sync(ctx, result.Characters()); err != nil {
		h.log.Warn("index sync failed", "book_id", result.BookID, "chapter", result.Chapter, "error", err)
	}
}

func readObservations(path string) ([]parsers.ChapterObservations, error) {
	parser := parsers.ForFile(path)
	if parser == nil {
		return nil, fmt.Errorf("unsupported observations format: %s (use .json, .yaml or .csv)", filepath.Ext(path))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening observations: %w", err)
	}
	defer file.Close()

	observations, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parsing observations: %w", err)
	}
	return observations, nil
}
