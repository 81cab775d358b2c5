package entities

import (
	"strings"
	"time"
)

// Book is an uploaded novel.
type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	FileName  string    `json:"file_name"`
	PageCount int       `json:"page_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DedupKey identifies re-imports of the same file.
func (b *Book) DedupKey() string {
	return strings.ToLower(strings.TrimSpace(b.Title)) + "\x00" + strings.ToLower(strings.TrimSpace(b.FileName))
}

// Chapter is one chapter boundary of a book together with its raw text.
// Page numbers are 1-based and inclusive.
type Chapter struct {
	BookID     string     `json:"book_id"`
	Number     int        `json:"number"`
	Title      string     `json:"title"`
	StartPage  int        `json:"start_page"`
	EndPage    int        `json:"end_page"`
	Text       string     `json:"-"`
	AnalyzedAt *time.Time `json:"analyzed_at,omitempty"`
}

// Analyzed reports whether the chapter has been run through extraction.
func (c *Chapter) Analyzed() bool {
	return c.AnalyzedAt != nil
}
