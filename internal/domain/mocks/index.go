package mocks

import (
	"context"
	"sort"
	"strings"

	"github.com/ersonp/book-character-tracker/internal/domain/ports"
)

// Embedder is a mock implementation of ports.Embedder. It produces a small
// bag-of-letters vector so that texts sharing words score as similar.
type Embedder struct {
	Err   error
	Calls int
}

// Embed generates a deterministic vector for the text.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates deterministic vectors for the texts.
func (m *Embedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 26)
		for _, r := range strings.ToLower(t) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		out[i] = v
	}
	return out, nil
}

// Index is an in-memory implementation of ports.CharacterIndex.
type Index struct {
	Docs map[string]ports.IndexedCharacter
	Err  error
}

// NewIndex creates an empty mock index.
func NewIndex() *Index {
	return &Index{Docs: make(map[string]ports.IndexedCharacter)}
}

// EnsureCollection is a no-op.
func (m *Index) EnsureCollection(_ context.Context, _ uint64) error {
	return m.Err
}

// Upsert stores the given characters.
func (m *Index) Upsert(_ context.Context, docs []ports.IndexedCharacter) error {
	if m.Err != nil {
		return m.Err
	}
	for _, d := range docs {
		m.Docs[d.Character.ID] = ports.IndexedCharacter{
			Character: d.Character.Clone(),
			Embedding: d.Embedding,
		}
	}
	return nil
}

// Delete removes characters by ID.
func (m *Index) Delete(_ context.Context, ids []string) error {
	if m.Err != nil {
		return m.Err
	}
	for _, id := range ids {
		delete(m.Docs, id)
	}
	return nil
}

// DeleteByBook removes every character of a book.
func (m *Index) DeleteByBook(_ context.Context, bookID string) error {
	if m.Err != nil {
		return m.Err
	}
	for id, d := range m.Docs {
		if d.Character.BookID == bookID {
			delete(m.Docs, id)
		}
	}
	return nil
}

// DeleteAll removes every document.
func (m *Index) DeleteAll(_ context.Context) error {
	if m.Err != nil {
		return m.Err
	}
	m.Docs = make(map[string]ports.IndexedCharacter)
	return nil
}

// Search scores documents by dot product.
func (m *Index) Search(_ context.Context, bookID string, embedding []float32, uptoChapter, limit int) ([]ports.SearchHit, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var hits []ports.SearchHit
	for _, d := range m.Docs {
		c := d.Character
		if c.BookID != bookID || c.FirstAppearance > uptoChapter {
			continue
		}
		var score float32
		for i := range embedding {
			if i < len(d.Embedding) {
				score += embedding[i] * d.Embedding[i]
			}
		}
		hits = append(hits, ports.SearchHit{CharacterID: c.ID, Name: c.Name, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].CharacterID < hits[j].CharacterID
		}
		return hits[i].Score > hits[j].Score
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Close is a no-op.
func (m *Index) Close() error {
	return nil
}
