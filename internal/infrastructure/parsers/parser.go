// Package parsers reads character observation files and paged manuscripts.
package parsers

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
)

// ChapterObservations holds the candidates observed in one chapter.
type ChapterObservations struct {
	Chapter    int                           `json:"chapter"`
	Characters []entities.CandidateCharacter `json:"characters"`
}

// Parser defines the interface for parsing observation files.
type Parser interface {
	Parse(r io.Reader) ([]ChapterObservations, error)
}

// ForFormat returns the appropriate parser for the given format.
// Supported formats: "json", "yaml", "csv".
func ForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case "json":
		return &JSONParser{}
	case "yaml", "yml":
		return &YAMLParser{}
	case "csv":
		return &CSVParser{}
	default:
		return nil
	}
}

// ForFile returns the appropriate parser based on file extension.
func ForFile(filename string) Parser {
	ext := strings.ToLower(filepath.Ext(filename))
	return ForFormat(strings.TrimPrefix(ext, "."))
}

// ForChapter returns the candidates recorded for one chapter, combining
// every block that names it.
func ForChapter(observations []ChapterObservations, chapter int) []entities.CandidateCharacter {
	var out []entities.CandidateCharacter
	for _, obs := range observations {
		if obs.Chapter == chapter {
			out = append(out, obs.Characters...)
		}
	}
	return out
}

// validate checks chapter numbers after decoding.
func validate(observations []ChapterObservations) error {
	for i, obs := range observations {
		if obs.Chapter < 1 {
			return fmt.Errorf("entry %d: %w (got %d)", i+1, entities.ErrInvalidChapter, obs.Chapter)
		}
	}
	return nil
}
