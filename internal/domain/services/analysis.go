package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/domain/ports"
	"github.com/ersonp/book-character-tracker/internal/logger"
)

const (
	// DefaultChunkSize is the default maximum chapter text sent to the
	// extractor in one call.
	DefaultChunkSize = 24000
	// DefaultChunkOverlap is the default overlap between chunks.
	DefaultChunkOverlap = 400
)

// AnalysisOptions controls chapter analysis.
type AnalysisOptions struct {
	ChunkSize    int
	ChunkOverlap int
}

// AnalysisResult describes one analyzed chapter.
type AnalysisResult struct {
	BookID        string                `json:"book_id"`
	Chapter       int                   `json:"chapter"`
	Candidates    int                   `json:"candidates"`
	Created       []*entities.Character `json:"created"`
	Updated       []*entities.Character `json:"updated"`
	Relationships int                   `json:"relationships"`
	Skipped       int                   `json:"skipped"`
}

// Characters returns every character touched by the analysis.
func (r *AnalysisResult) Characters() []*entities.Character {
	out := make([]*entities.Character, 0, len(r.Created)+len(r.Updated))
	out = append(out, r.Created...)
	return append(out, r.Updated...)
}

// AnalysisService runs chapters through the extractor and the processor.
type AnalysisService struct {
	db        ports.RelationalDB
	extractor ports.CharacterExtractor
	processor *ChapterProcessor
	log       *logger.Logger
	opts      AnalysisOptions
	now       func() time.Time
}

// NewAnalysisService creates a new AnalysisService. extractor may be nil
// when only pre-extracted observations are processed.
func NewAnalysisService(
	db ports.RelationalDB,
	extractor ports.CharacterExtractor,
	processor *ChapterProcessor,
	log *logger.Logger,
	opts AnalysisOptions,
) *AnalysisService {
	if log == nil {
		log = logger.Nop()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 0
	}
	return &AnalysisService{
		db:        db,
		extractor: extractor,
		processor: processor,
		log:       log,
		opts:      opts,
		now:       time.Now,
	}
}

// AnalyzeChapter extracts the characters of a stored chapter and folds them
// into the book. A malformed extraction aborts before anything is written.
func (s *AnalysisService) AnalyzeChapter(ctx context.Context, bookID string, number int) (*AnalysisResult, error) {
	if s.extractor == nil {
		return nil, fmt.Errorf("analyzing chapter %d: no extractor configured", number)
	}
	if number < 1 {
		return nil, fmt.Errorf("analyzing chapter %d: %w", number, entities.ErrInvalidChapter)
	}
	if _, err := s.requireBook(ctx, bookID); err != nil {
		return nil, err
	}

	chapter, err := s.db.FindChapter(ctx, bookID, number)
	if err != nil {
		return nil, fmt.Errorf("finding chapter %d: %w", number, err)
	}
	if chapter == nil {
		return nil, fmt.Errorf("chapter %d of book %s: %w", number, bookID, entities.ErrNotFound)
	}

	candidates, err := s.extract(ctx, chapter.Text)
	if err != nil {
		return nil, fmt.Errorf("extracting chapter %d: %w", number, err)
	}
	return s.apply(ctx, bookID, number, candidates, true)
}

// ProcessObservations folds pre-extracted candidates into a book as the
// observations of the given chapter.
func (s *AnalysisService) ProcessObservations(ctx context.Context, bookID string, number int, candidates []entities.CandidateCharacter) (*AnalysisResult, error) {
	if number < 1 {
		return nil, fmt.Errorf("processing chapter %d: %w", number, entities.ErrInvalidChapter)
	}
	if _, err := s.requireBook(ctx, bookID); err != nil {
		return nil, err
	}
	chapter, err := s.db.FindChapter(ctx, bookID, number)
	if err != nil {
		return nil, fmt.Errorf("finding chapter %d: %w", number, err)
	}
	return s.apply(ctx, bookID, number, candidates, chapter != nil)
}

func (s *AnalysisService) apply(ctx context.Context, bookID string, number int, candidates []entities.CandidateCharacter, markChapter bool) (*AnalysisResult, error) {
	report, err := s.processor.ProcessWithReport(ctx, bookID, number, candidates)
	if err != nil {
		return nil, fmt.Errorf("processing chapter %d: %w", number, err)
	}

	if markChapter {
		if err := s.db.MarkChapterAnalyzed(ctx, bookID, number, s.now()); err != nil {
			return nil, fmt.Errorf("marking chapter %d analyzed: %w", number, err)
		}
	}

	result := &AnalysisResult{
		BookID:        bookID,
		Chapter:       number,
		Candidates:    len(candidates),
		Updated:       report.Updated(),
		Relationships: report.Relationships,
		Skipped:       report.Skipped,
	}
	created := make(map[string]bool, len(report.Created))
	for _, id := range report.Created {
		created[id] = true
	}
	for _, c := range report.Characters {
		if created[c.ID] {
			result.Created = append(result.Created, c)
		}
	}

	details := map[string]any{
		"chapter":       number,
		"candidates":    len(candidates),
		"created":       len(result.Created),
		"updated":       len(result.Updated),
		"relationships": result.Relationships,
	}
	if err := s.db.LogAction(ctx, entities.ActionChapterAnalyzed, bookID, details); err != nil {
		s.log.Warn("audit log failed", "action", entities.ActionChapterAnalyzed, "error", err)
	}

	s.log.Info("chapter analyzed",
		"book_id", bookID,
		"chapter", number,
		"created", len(result.Created),
		"updated", len(result.Updated),
	)
	return result, nil
}

func (s *AnalysisService) requireBook(ctx context.Context, bookID string) (*entities.Book, error) {
	book, err := s.db.FindBookByID(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("finding book: %w", err)
	}
	if book == nil {
		return nil, fmt.Errorf("book %s: %w", bookID, entities.ErrNotFound)
	}
	return book, nil
}

// extract sends the chapter text to the extractor, split into chunks when
// it is too long for one call, and combines the per-chunk candidates.
// Extractor calls in a loop are intentional: each chunk must fit the model's
// context window.
func (s *AnalysisService) extract(ctx context.Context, text string) ([]entities.CandidateCharacter, error) {
	chunks := ChunkText(text, s.opts.ChunkSize, s.opts.ChunkOverlap)
	if len(chunks) == 1 {
		return s.extractor.ExtractCharacters(ctx, chunks[0])
	}

	s.log.Debug("chapter split for extraction", "chunks", len(chunks))
	batches := make([][]entities.CandidateCharacter, 0, len(chunks))
	for i, chunk := range chunks {
		candidates, err := s.extractor.ExtractCharacters(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		batches = append(batches, candidates)
	}
	return CombineCandidates(batches...), nil
}

// CombineCandidates folds candidate lists from several extractions of the
// same chapter into one list with a single entry per name
// (case-insensitive). Later known attributes win, relevance takes the
// highest level, and relationships are unioned.
func CombineCandidates(batches ...[]entities.CandidateCharacter) []entities.CandidateCharacter {
	var out []entities.CandidateCharacter
	index := make(map[string]int)
	for _, batch := range batches {
		for _, cand := range batch {
			key := strings.ToLower(strings.TrimSpace(cand.Name))
			if key == "" {
				continue
			}
			i, ok := index[key]
			if !ok {
				cand.Relationships = append([]entities.CandidateRelationship(nil), cand.Relationships...)
				index[key] = len(out)
				out = append(out, cand)
				continue
			}
			combineCandidate(&out[i], cand)
		}
	}
	return out
}

func combineCandidate(dst *entities.CandidateCharacter, src entities.CandidateCharacter) {
	if entities.Known(src.Occupation) {
		dst.Occupation = src.Occupation
	}
	if entities.Known(src.Age) {
		dst.Age = src.Age
	}
	if entities.Known(src.Location) {
		dst.Location = src.Location
	}
	if entities.Known(src.Status) {
		dst.Status = src.Status
	}
	if entities.Known(src.BriefDescription) {
		dst.BriefDescription = src.BriefDescription
	}
	srcRel, srcOK := entities.ParseRelevance(src.Relevance)
	dstRel, _ := entities.ParseRelevance(dst.Relevance)
	if srcOK && srcRel.Outranks(dstRel) {
		dst.Relevance = src.Relevance
	}
	for _, rel := range src.Relationships {
		dup := false
		for _, have := range dst.Relationships {
			if strings.EqualFold(have.TargetName, rel.TargetName) && strings.EqualFold(have.Type, rel.Type) {
				dup = true
				break
			}
		}
		if !dup {
			dst.Relationships = append(dst.Relationships, rel)
		}
	}
}

// ChunkText splits text into chunks of roughly chunkSize characters,
// breaking on paragraph boundaries.
func ChunkText(text string, chunkSize int, overlap int) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	paragraphs := strings.Split(text, "\n\n")

	var currentChunk strings.Builder
	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if currentChunk.Len()+len(para)+2 > chunkSize && currentChunk.Len() > 0 {
			chunks = append(chunks, currentChunk.String())

			overlapText := getOverlapText(currentChunk.String(), overlap)
			currentChunk.Reset()
			currentChunk.WriteString(overlapText)
		}

		if currentChunk.Len() > 0 {
			currentChunk.WriteString("\n\n")
		}
		currentChunk.WriteString(para)
	}

	if currentChunk.Len() > 0 {
		chunks = append(chunks, currentChunk.String())
	}

	if len(chunks) == 0 && len(text) > 0 {
		chunks = append(chunks, text)
	}

	return chunks
}

func getOverlapText(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(text) <= n {
		return text
	}
	return text[len(text)-n:]
}
