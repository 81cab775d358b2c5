package parsers

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
)

// DefaultLinesPerPage is the page size used for text without form feeds.
const DefaultLinesPerPage = 40

// maxHeadingLen keeps sentences that merely start with "Chapter" out.
const maxHeadingLen = 80

var (
	reChapterHeading = regexp.MustCompile(`(?i)^chapter\s+([a-z0-9]+(?:-[a-z]+)?)(?:[\s.:]|$)`)
	reBookendHeading = regexp.MustCompile(`(?i)^(?:prologue|epilogue)\b`)
	reNumber         = regexp.MustCompile(`^[0-9]+$`)
	reRoman          = regexp.MustCompile(`^m{0,3}(?:cm|cd|d?c{0,3})(?:xc|xl|l?x{0,3})(?:ix|iv|v?i{0,3})$`)
)

var numberWords = map[string]bool{
	"one": true, "two": true, "three": true, "four": true, "five": true,
	"six": true, "seven": true, "eight": true, "nine": true, "ten": true,
	"eleven": true, "twelve": true, "thirteen": true, "fourteen": true, "fifteen": true,
	"sixteen": true, "seventeen": true, "eighteen": true, "nineteen": true,
	"twenty": true, "thirty": true, "forty": true, "fifty": true,
	"sixty": true, "seventy": true, "eighty": true, "ninety": true,
}

// isChapterNumber accepts digits, roman numerals and spelled-out numbers
// such as "twenty-one".
func isChapterNumber(token string) bool {
	token = strings.ToLower(token)
	if reNumber.MatchString(token) || reRoman.MatchString(token) {
		return true
	}
	tens, unit, compound := strings.Cut(token, "-")
	if !compound {
		return numberWords[token]
	}
	switch tens {
	case "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety":
	default:
		return false
	}
	switch unit {
	case "one", "two", "three", "four", "five", "six", "seven", "eight", "nine":
		return true
	}
	return false
}

// Manuscript is the result of splitting a text into pages and chapters.
type Manuscript struct {
	PageCount int
	Chapters  []entities.Chapter
}

// ManuscriptParser splits paged text (form-feed separated, as produced by
// pdftotext) into chapters.
type ManuscriptParser struct {
	// LinesPerPage paginates text that has no form feeds.
	// Zero means DefaultLinesPerPage.
	LinesPerPage int
}

// Parse reads the manuscript and detects chapter boundaries. A text without
// recognisable headings becomes a single chapter spanning every page.
func (p *ManuscriptParser) Parse(r io.Reader) (*Manuscript, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading manuscript: %w", err)
	}

	pages := p.paginate(string(data))
	if len(pages) == 0 {
		return nil, fmt.Errorf("manuscript is empty")
	}

	chapters := detectChapters(pages)
	if len(chapters) == 0 {
		chapters = []entities.Chapter{{
			Number:    1,
			Title:     "Chapter 1",
			StartPage: 1,
			EndPage:   len(pages),
			Text:      strings.TrimSpace(strings.Join(pages, "\n")),
		}}
	}

	return &Manuscript{
		PageCount: len(pages),
		Chapters:  chapters,
	}, nil
}

// paginate splits text into pages, dropping blank trailing pages.
func (p *ManuscriptParser) paginate(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var pages []string
	if strings.Contains(text, "\f") {
		pages = strings.Split(text, "\f")
	} else {
		size := p.LinesPerPage
		if size <= 0 {
			size = DefaultLinesPerPage
		}
		lines := strings.Split(text, "\n")
		for start := 0; start < len(lines); start += size {
			end := start + size
			if end > len(lines) {
				end = len(lines)
			}
			pages = append(pages, strings.Join(lines[start:end], "\n"))
		}
	}

	for len(pages) > 0 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}

// IsHeading reports whether a line opens a chapter.
func IsHeading(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || len(line) > maxHeadingLen {
		return false
	}
	if reBookendHeading.MatchString(line) {
		return true
	}
	m := reChapterHeading.FindStringSubmatch(line)
	return m != nil && isChapterNumber(m[1])
}

// chapterBuilder accumulates one chapter while scanning.
type chapterBuilder struct {
	title     string
	startPage int
	endPage   int
	body      strings.Builder
}

// detectChapters scans pages for headings. Text before the first heading
// is front matter and is dropped, as are chapters with no body, which is
// what a table of contents produces.
func detectChapters(pages []string) []entities.Chapter {
	var builders []*chapterBuilder
	var current *chapterBuilder

	for i, page := range pages {
		pageNum := i + 1
		for _, line := range strings.Split(strings.TrimRight(page, "\n"), "\n") {
			if IsHeading(line) {
				current = &chapterBuilder{title: strings.TrimSpace(line), startPage: pageNum, endPage: pageNum}
				builders = append(builders, current)
				continue
			}
			if current == nil {
				continue
			}
			current.body.WriteString(line)
			current.body.WriteByte('\n')
			if strings.TrimSpace(line) != "" {
				current.endPage = pageNum
			}
		}
	}

	var chapters []entities.Chapter
	for _, b := range builders {
		body := strings.TrimSpace(b.body.String())
		if body == "" {
			continue
		}
		chapters = append(chapters, entities.Chapter{
			Number:    len(chapters) + 1,
			Title:     b.title,
			StartPage: b.startPage,
			EndPage:   b.endPage,
			Text:      body,
		})
	}
	return chapters
}
