package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
)

// CSVParser parses observations from CSV format.
type CSVParser struct{}

// Parse reads CSV from the reader and returns parsed observations.
// Expected columns: chapter, name, occupation, age, location, status,
// relevance, brief_description, related_to, relation_type,
// relation_description. Rows repeating a chapter and name add further
// relationships to the same candidate.
func (p *CSVParser) Parse(r io.Reader) ([]ChapterObservations, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	colIndex, err := p.readHeader(reader)
	if err != nil {
		return nil, err
	}

	return p.readRecords(reader, colIndex)
}

// readHeader reads and validates the CSV header row.
func (p *CSVParser) readHeader(reader *csv.Reader) (map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	requiredCols := []string{"chapter", "name"}
	for _, col := range requiredCols {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	return colIndex, nil
}

// candidateRef locates a candidate inside the result slice.
type candidateRef struct {
	block, index int
}

// readRecords reads all data rows and groups them by chapter.
func (p *CSVParser) readRecords(reader *csv.Reader, colIndex map[string]int) ([]ChapterObservations, error) {
	var observations []ChapterObservations
	blocks := make(map[int]int)
	seen := make(map[string]candidateRef)
	lineNum := 1 // Header is line 1

	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		chapter, cand, err := p.parseRecord(record, colIndex, lineNum)
		if err != nil {
			return nil, err
		}

		key := strconv.Itoa(chapter) + "\x00" + strings.ToLower(cand.Name)
		if ref, ok := seen[key]; ok {
			existing := &observations[ref.block].Characters[ref.index]
			existing.Relationships = append(existing.Relationships, cand.Relationships...)
			continue
		}

		b, ok := blocks[chapter]
		if !ok {
			observations = append(observations, ChapterObservations{Chapter: chapter})
			b = len(observations) - 1
			blocks[chapter] = b
		}
		observations[b].Characters = append(observations[b].Characters, cand)
		seen[key] = candidateRef{block: b, index: len(observations[b].Characters) - 1}
	}

	return observations, nil
}

// parseRecord converts a CSV record to a candidate.
func (p *CSVParser) parseRecord(record []string, colIndex map[string]int, lineNum int) (int, entities.CandidateCharacter, error) {
	chapterStr := getColumn(record, colIndex, "chapter")
	chapter, err := strconv.Atoi(chapterStr)
	if err != nil {
		return 0, entities.CandidateCharacter{}, fmt.Errorf("line %d: invalid chapter value %q: %w", lineNum, chapterStr, err)
	}
	if chapter < 1 {
		return 0, entities.CandidateCharacter{}, fmt.Errorf("line %d: %w (got %d)", lineNum, entities.ErrInvalidChapter, chapter)
	}

	cand := entities.CandidateCharacter{
		Name:             getColumn(record, colIndex, "name"),
		Occupation:       getColumn(record, colIndex, "occupation"),
		Age:              getColumn(record, colIndex, "age"),
		Location:         getColumn(record, colIndex, "location"),
		Status:           getColumn(record, colIndex, "status"),
		Relevance:        getColumn(record, colIndex, "relevance"),
		BriefDescription: getColumn(record, colIndex, "brief_description"),
	}
	if cand.Name == "" {
		return 0, entities.CandidateCharacter{}, fmt.Errorf("line %d: name is required", lineNum)
	}

	if target := getColumn(record, colIndex, "related_to"); target != "" {
		cand.Relationships = append(cand.Relationships, entities.CandidateRelationship{
			TargetName:  target,
			Type:        getColumn(record, colIndex, "relation_type"),
			Description: getColumn(record, colIndex, "relation_description"),
		})
	}

	return chapter, cand, nil
}

// getColumn safely retrieves a trimmed column value from a record.
func getColumn(record []string, colIndex map[string]int, col string) string {
	if idx, ok := colIndex[col]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}
