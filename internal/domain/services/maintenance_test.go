package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/domain/mocks"
)

func TestMaintenanceService_ListBooks(t *testing.T) {
	ctx := context.Background()
	db := mocks.NewRelationalDB()
	seedBook(t, db,
		entities.Chapter{Number: 1},
		entities.Chapter{Number: 2},
	)
	require.NoError(t, db.MarkChapterAnalyzed(ctx, testBook, 1, time.Now()))
	seedCharacters(t, db, &entities.Character{ID: "c1", BookID: testBook, Name: "Pip"})

	books, err := NewMaintenanceService(db, nil).ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, testBook, books[0].Book.ID)
	assert.Equal(t, 2, books[0].Chapters)
	assert.Equal(t, 1, books[0].AnalyzedChapters)
	assert.Equal(t, 1, books[0].Characters)
}

func TestMaintenanceService_RepairDatabase(t *testing.T) {
	ctx := context.Background()
	db := mocks.NewRelationalDB()
	seedBook(t, db)
	seedCharacters(t, db,
		&entities.Character{
			ID: "a", BookID: testBook, Name: "Ann",
			Aliases:         []string{"Annie", "annie", "Ann", ""},
			FirstAppearance: 3, LastMentioned: 1, MentionCount: 0,
			Relationships: []entities.Relationship{
				edge("b", entities.RelationFamily, 1),
				edge("b", entities.RelationFamily, 2),
				edge("a", entities.RelationOther, 1),
				edge("ghost", entities.RelationConflict, 1),
				edge("b", entities.RelationConflict, 2),
			},
			ChapterHistory: []entities.ChapterHistoryEntry{
				{Chapter: 4, Updates: []string{"late"}},
				{Chapter: 3, Updates: []string{"first"}},
				{Chapter: 3, Updates: []string{"again"}},
			},
		},
		&entities.Character{ID: "b", BookID: testBook, Name: "Bob", FirstAppearance: 1, LastMentioned: 1, MentionCount: 1},
	)
	svc := NewMaintenanceService(db, nil)

	report, err := svc.RepairDatabase(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Books)
	assert.Equal(t, 2, report.CharactersChecked)
	assert.Equal(t, 1, report.CharactersRepaired)
	assert.Equal(t, 1, report.DanglingEdges)
	assert.Equal(t, 1, report.SelfLoops)
	assert.Equal(t, 1, report.DuplicateEdges)
	assert.Equal(t, 2, report.DuplicateAliases)
	assert.Equal(t, 1, report.HistoryEntriesFused)
	assert.Equal(t, 2, report.CountersClamped)

	a, err := db.FindCharacterByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []entities.Relationship{
		edge("b", entities.RelationFamily, 1),
		edge("b", entities.RelationConflict, 2),
	}, a.Relationships)
	assert.Equal(t, []string{"Annie", "Ann"}, a.Aliases)
	assert.Equal(t, []entities.ChapterHistoryEntry{
		{Chapter: 3, Updates: []string{"first", "again"}},
		{Chapter: 4, Updates: []string{"late"}},
	}, a.ChapterHistory)
	assert.Equal(t, 1, a.MentionCount)
	assert.Equal(t, 3, a.LastMentioned)

	require.Len(t, db.Audit, 1)
	assert.Equal(t, entities.ActionDatabaseRepaired, db.Audit[0].Action)

	// Idempotent.
	saves := db.SaveCharacterCalls
	report, err = svc.RepairDatabase(ctx)
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.Equal(t, saves, db.SaveCharacterCalls)
	assert.Len(t, db.Audit, 1)
}

func TestMaintenanceService_ResetDatabase(t *testing.T) {
	ctx := context.Background()
	db := mocks.NewRelationalDB()
	seedBook(t, db, entities.Chapter{Number: 1})
	seedCharacters(t, db, &entities.Character{ID: "a", BookID: testBook, Name: "Ann"})

	require.NoError(t, NewMaintenanceService(db, nil).ResetDatabase(ctx))
	assert.Empty(t, db.Books)
	assert.Empty(t, db.Characters)
	assert.Empty(t, db.Chapters)
	require.Len(t, db.Audit, 1)
	assert.Equal(t, entities.ActionDatabaseReset, db.Audit[0].Action)
}

func TestMaintenanceService_DeduplicateBooks(t *testing.T) {
	ctx := context.Background()
	db := mocks.NewRelationalDB()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	books := []*entities.Book{
		{ID: "old-empty", Title: "Dune", FileName: "dune.pdf", CreatedAt: base},
		{ID: "analyzed", Title: "dune ", FileName: "DUNE.pdf", CreatedAt: base.Add(time.Hour)},
		{ID: "newer-empty", Title: "Dune", FileName: "dune.pdf", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "other", Title: "Emma", FileName: "emma.pdf", CreatedAt: base},
		{ID: "emma-copy", Title: "Emma", FileName: "emma.pdf", CreatedAt: base.Add(time.Minute)},
	}
	for _, b := range books {
		require.NoError(t, db.SaveBook(ctx, b))
	}
	seedCharacters(t, db, &entities.Character{ID: "paul", BookID: "analyzed", Name: "Paul"})

	svc := NewMaintenanceService(db, nil)
	removed, err := svc.DeduplicateBooks(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"old-empty", "newer-empty", "emma-copy"}, removed)

	remaining, err := db.ListBooks(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(remaining))
	for _, b := range remaining {
		ids = append(ids, b.ID)
	}
	assert.ElementsMatch(t, []string{"analyzed", "other"}, ids)
	assert.Contains(t, db.Characters, "paul")

	removed, err = svc.DeduplicateBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, removed)
}
