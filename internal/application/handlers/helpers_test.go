package handlers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/domain/mocks"
	"github.com/ersonp/book-character-tracker/internal/domain/ports"
	"github.com/ersonp/book-character-tracker/internal/domain/services"
)

const testBook = "book-1"

// seedBook stores a book with one chapter per text, numbered from 1.
func seedBook(t *testing.T, db *mocks.RelationalDB, id string, texts ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.SaveBook(ctx, &entities.Book{ID: id, Title: "Test " + id, FileName: id + ".txt", CreatedAt: time.Now()}))
	chapters := make([]entities.Chapter, len(texts))
	for i, text := range texts {
		chapters[i] = entities.Chapter{Number: i + 1, Title: "Chapter", Text: text}
	}
	require.NoError(t, db.SaveChapters(ctx, id, chapters))
}

func newIndexService(idx *mocks.Index) *services.IndexService {
	return services.NewIndexService(&mocks.Embedder{}, idx, nil)
}

func newAnalyzeHandler(db *mocks.RelationalDB, ext ports.CharacterExtractor, index *services.IndexService) *AnalyzeHandler {
	processor := services.NewChapterProcessor(db, nil)
	analysis := services.NewAnalysisService(db, ext, processor, nil, services.AnalysisOptions{})
	return NewAnalyzeHandler(analysis, db, index, nil)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func auditActions(db *mocks.RelationalDB) []string {
	out := make([]string, 0, len(db.Audit))
	for _, e := range db.Audit {
		out = append(out, e.Action)
	}
	return out
}
