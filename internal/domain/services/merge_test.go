package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/domain/mocks"
)

func seedCharacters(t *testing.T, db *mocks.RelationalDB, chars ...*entities.Character) {
	t.Helper()
	for _, c := range chars {
		require.NoError(t, db.SaveCharacter(context.Background(), c))
	}
}

func edge(target string, relType entities.RelationType, chapter int) entities.Relationship {
	return entities.Relationship{TargetCharacterID: target, Type: relType, EstablishedInChapter: chapter}
}

// mergeFixture is a small book: A and B are the same person, C and D point
// at A, and A and B know each other.
func mergeFixture() []*entities.Character {
	return []*entities.Character{
		{
			ID: "a", BookID: testBook, Name: "Bill", Aliases: []string{"Billy"},
			FirstAppearance: 2, LastMentioned: 6, MentionCount: 3,
			Relationships: []entities.Relationship{
				edge("c", entities.RelationFriendship, 2),
				edge("d", entities.RelationFamily, 3),
				edge("b", entities.RelationOther, 4),
			},
			ChapterHistory: []entities.ChapterHistoryEntry{
				{Chapter: 2, Updates: []string{"from a, ch2"}},
				{Chapter: 6, Updates: []string{"from a, ch6"}},
			},
		},
		{
			ID: "b", BookID: testBook, Name: "William Parker", Occupation: "Clerk",
			Relevance:       entities.RelevanceMajor,
			FirstAppearance: 4, LastMentioned: 5, MentionCount: 2,
			Relationships: []entities.Relationship{
				edge("c", entities.RelationFriendship, 4),
				edge("a", entities.RelationConflict, 4),
			},
			ChapterHistory: []entities.ChapterHistoryEntry{
				{Chapter: 4, Updates: []string{"from b, ch4"}},
				{Chapter: 6, Updates: []string{"from b, ch6"}},
			},
		},
		{
			ID: "c", BookID: testBook, Name: "Jane", FirstAppearance: 1, LastMentioned: 4, MentionCount: 2,
			Relationships: []entities.Relationship{
				edge("a", entities.RelationFriendship, 2),
				edge("b", entities.RelationFriendship, 4),
			},
		},
		{
			ID: "d", BookID: testBook, Name: "Martha Parker", FirstAppearance: 3, LastMentioned: 3, MentionCount: 1,
			Relationships: []entities.Relationship{
				edge("a", entities.RelationFamily, 3),
			},
		},
	}
}

func TestMergeService_Merge(t *testing.T) {
	ctx := context.Background()
	db := mocks.NewRelationalDB()
	seedCharacters(t, db, mergeFixture()...)
	svc := NewMergeService(db, db, nil)

	result, err := svc.Merge(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a", result.SourceID)
	assert.ElementsMatch(t, []string{"c", "d"}, result.Repointed)

	gone, err := db.FindCharacterByID(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, gone)

	b, err := db.FindCharacterByID(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, b)

	assert.Equal(t, "William Parker", b.Name)
	assert.Equal(t, "Clerk", b.Occupation)
	assert.Equal(t, entities.RelevanceMajor, b.Relevance)
	assert.Equal(t, 5, b.MentionCount)
	assert.Equal(t, 2, b.FirstAppearance)
	assert.Equal(t, 6, b.LastMentioned)
	assert.ElementsMatch(t, []string{"Bill", "Billy"}, b.Aliases)

	assert.ElementsMatch(t, []entities.Relationship{
		edge("c", entities.RelationFriendship, 4),
		edge("d", entities.RelationFamily, 3),
	}, b.Relationships)

	require.Len(t, b.ChapterHistory, 3)
	assert.Equal(t, 2, b.ChapterHistory[0].Chapter)
	assert.Equal(t, 4, b.ChapterHistory[1].Chapter)
	assert.Equal(t, 6, b.ChapterHistory[2].Chapter)
	assert.Equal(t, []string{"from b, ch6"}, b.ChapterHistory[2].Updates, "target wins on the same chapter")

	c, err := db.FindCharacterByID(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []entities.Relationship{edge("b", entities.RelationFriendship, 4)}, c.Relationships,
		"repointed edge collapses into the existing one")

	d, err := db.FindCharacterByID(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, []entities.Relationship{edge("b", entities.RelationFamily, 3)}, d.Relationships)

	assertNoDanglingEdges(t, db)

	require.Len(t, db.Audit, 1)
	assert.Equal(t, entities.ActionCharactersMerged, db.Audit[0].Action)
	assert.Equal(t, "b", db.Audit[0].SubjectID)
}

func TestMergeService_MergeTwiceFailsWithNotFound(t *testing.T) {
	ctx := context.Background()
	db := mocks.NewRelationalDB()
	seedCharacters(t, db, mergeFixture()...)
	svc := NewMergeService(db, nil, nil)

	_, err := svc.Merge(ctx, "a", "b")
	require.NoError(t, err)

	_, err = svc.Merge(ctx, "a", "b")
	require.ErrorIs(t, err, entities.ErrNotFound)
}

func TestMergeService_Errors(t *testing.T) {
	other := &entities.Character{ID: "x", BookID: "book-2", Name: "Stranger", MentionCount: 1, FirstAppearance: 1, LastMentioned: 1}

	tests := []struct {
		name    string
		source  string
		target  string
		wantErr error
	}{
		{name: "self merge", source: "a", target: "a", wantErr: entities.ErrSelfMerge},
		{name: "missing source", source: "nope", target: "b", wantErr: entities.ErrNotFound},
		{name: "missing target", source: "a", target: "nope", wantErr: entities.ErrNotFound},
		{name: "cross book", source: "a", target: "x", wantErr: entities.ErrCrossBookMerge},
		{name: "self merge checked before lookup", source: "nope", target: "nope", wantErr: entities.ErrSelfMerge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := mocks.NewRelationalDB()
			seedCharacters(t, db, mergeFixture()...)
			seedCharacters(t, db, other)
			before := db.SaveCharacterCalls

			_, err := NewMergeService(db, db, nil).Merge(context.Background(), tt.source, tt.target)
			require.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, before, db.SaveCharacterCalls, "nothing is written")
			assert.Len(t, db.Characters, 5)
			assert.Empty(t, db.Audit)
		})
	}
}

func TestMergeService_CrossBookMutatesNothing(t *testing.T) {
	ctx := context.Background()
	db := mocks.NewRelationalDB()
	fixture := mergeFixture()
	other := &entities.Character{ID: "x", BookID: "book-2", Name: "Bill", MentionCount: 4, FirstAppearance: 1, LastMentioned: 9}
	seedCharacters(t, db, fixture...)
	seedCharacters(t, db, other)

	_, err := NewMergeService(db, db, nil).Merge(ctx, "a", "x")
	require.ErrorIs(t, err, entities.ErrCrossBookMerge)

	for _, want := range append(fixture, other) {
		got, err := db.FindCharacterByID(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestMergeService_PartialFailureLeavesNoDanglingEdges(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("write failed")

	tests := []struct {
		name   string
		failOn func(c *entities.Character) bool
	}{
		{name: "during repoint", failOn: func(c *entities.Character) bool { return c.ID == "d" }},
		{name: "saving merged record", failOn: func(c *entities.Character) bool { return c.ID == "b" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := mocks.NewRelationalDB()
			seedCharacters(t, db, mergeFixture()...)
			db.SaveCharacterHook = func(c *entities.Character) error {
				if tt.failOn(c) {
					return boom
				}
				return nil
			}

			_, err := NewMergeService(db, db, nil).Merge(ctx, "a", "b")
			require.ErrorIs(t, err, boom)

			src, err := db.FindCharacterByID(ctx, "a")
			require.NoError(t, err)
			assert.NotNil(t, src, "source survives a failed merge")
			assertNoDanglingEdges(t, db)
		})
	}
}

func TestMergeService_DeleteFailure(t *testing.T) {
	ctx := context.Background()
	db := mocks.NewRelationalDB()
	seedCharacters(t, db, mergeFixture()...)
	db.DeleteCharacterErr = errors.New("busy")

	_, err := NewMergeService(db, db, nil).Merge(ctx, "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deleting source character")
	assertNoDanglingEdges(t, db)
}

func TestMergeCharacters_DoesNotModifyInputs(t *testing.T) {
	fixture := mergeFixture()
	source, target := fixture[0], fixture[1]
	sourceCopy, targetCopy := source.Clone(), target.Clone()

	merged := MergeCharacters(source, target)
	assert.Equal(t, sourceCopy, source)
	assert.Equal(t, targetCopy, target)
	assert.Equal(t, target.ID, merged.ID)
}

func TestMergeCharacters_AliasUnion(t *testing.T) {
	source := &entities.Character{ID: "s", Name: "Lizzy", Aliases: []string{"Eliza", "Miss Bennet"}, MentionCount: 1, FirstAppearance: 3}
	target := &entities.Character{ID: "t", Name: "Elizabeth Bennet", Aliases: []string{"eliza"}, MentionCount: 4, FirstAppearance: 1}

	merged := MergeCharacters(source, target)
	assert.Equal(t, []string{"eliza", "Lizzy", "Miss Bennet"}, merged.Aliases)
	assert.Equal(t, 5, merged.MentionCount)
	assert.Equal(t, 1, merged.FirstAppearance)
}

func TestMergeService_SameNameKeepsSourceAsAlias(t *testing.T) {
	ctx := context.Background()
	db := mocks.NewRelationalDB()
	seedBook(t, db)
	seedCharacters(t, db,
		&entities.Character{ID: "a", BookID: testBook, Name: "John Smith", FirstAppearance: 1, LastMentioned: 1, MentionCount: 1},
		&entities.Character{ID: "b", BookID: testBook, Name: "John Smith", FirstAppearance: 2, LastMentioned: 2, MentionCount: 1},
	)

	result, err := NewMergeService(db, nil, nil).Merge(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"John Smith"}, result.Merged.Aliases)

	stored, err := db.FindCharacterByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"John Smith"}, stored.Aliases)
}

func TestMergeCharacters_LastMentionedTakesLatest(t *testing.T) {
	source := &entities.Character{ID: "s", Name: "Lizzy", FirstAppearance: 2, LastMentioned: 9, MentionCount: 1}
	target := &entities.Character{ID: "t", Name: "Elizabeth", FirstAppearance: 1, LastMentioned: 4, MentionCount: 1}

	assert.Equal(t, 9, MergeCharacters(source, target).LastMentioned)
	assert.Equal(t, 9, MergeCharacters(target, source).LastMentioned)
}

func TestRepointRelationships(t *testing.T) {
	tests := []struct {
		name        string
		edges       []entities.Relationship
		wantChanged bool
		want        []entities.Relationship
	}{
		{
			name:        "no edges to source",
			edges:       []entities.Relationship{edge("z", entities.RelationFamily, 1)},
			wantChanged: false,
			want:        []entities.Relationship{edge("z", entities.RelationFamily, 1)},
		},
		{
			name:        "rewritten",
			edges:       []entities.Relationship{edge("from", entities.RelationConflict, 2)},
			wantChanged: true,
			want:        []entities.Relationship{edge("to", entities.RelationConflict, 2)},
		},
		{
			name: "duplicate of later edge dropped",
			edges: []entities.Relationship{
				edge("from", entities.RelationConflict, 2),
				edge("to", entities.RelationConflict, 5),
			},
			wantChanged: true,
			want:        []entities.Relationship{edge("to", entities.RelationConflict, 5)},
		},
		{
			name: "different type kept",
			edges: []entities.Relationship{
				edge("to", entities.RelationFamily, 1),
				edge("from", entities.RelationConflict, 2),
			},
			wantChanged: true,
			want: []entities.Relationship{
				edge("to", entities.RelationFamily, 1),
				edge("to", entities.RelationConflict, 2),
			},
		},
		{
			name:        "would become self-loop",
			edges:       []entities.Relationship{edge("from", entities.RelationOther, 1)},
			wantChanged: true,
			want:        []entities.Relationship{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner := "owner"
			to := "to"
			if tt.name == "would become self-loop" {
				to = owner
			}
			c := &entities.Character{ID: owner, Relationships: tt.edges}
			changed := RepointRelationships(c, "from", to)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.want, c.Relationships)
		})
	}
}
