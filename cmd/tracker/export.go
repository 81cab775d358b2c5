package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
)

type exportFlags struct {
	format string
	output string
	upto   int
}

func newExportCmd() *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "export <book>",
		Short: "Export characters to file",
		Long: `Exports the characters of a book to JSON, CSV, or markdown format.
With --chapter only what a reader knows by that chapter is exported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "json", "Output format (json, csv, markdown)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().IntVarP(&flags.upto, "chapter", "c", 0, "Export only what is known by this chapter (default: everything)")

	return cmd
}

func runExport(cmd *cobra.Command, ref string, flags exportFlags) error {
	if !contains(validFormats, flags.format) {
		return fmt.Errorf("invalid format %q, valid formats: %v", flags.format, validFormats)
	}

	ctx := cmd.Context()
	return withDeps(ctx, func(d *Deps) error {
		book, err := d.Library.FindBook(ctx, ref)
		if err != nil {
			return err
		}
		chars, err := d.Characters.List(ctx, book.ID, flags.upto)
		if err != nil {
			return err
		}
		if len(chars) == 0 {
			return fmt.Errorf("no characters found to export")
		}
		return export(flags, book, chars)
	})
}

func export(flags exportFlags, book *entities.Book, chars []*entities.Character) (err error) {
	var w io.Writer = os.Stdout
	var f *os.File

	if flags.output != "" {
		f, err = os.OpenFile(flags.output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing file: %w", cerr)
			}
		}()
		w = f
	}

	if err := formatCharacters(w, flags.format, book, chars, flags.upto); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	if flags.output != "" {
		fmt.Printf("Exported %d characters to %s\n", len(chars), flags.output)
	}
	return nil
}

func formatCharacters(w io.Writer, format string, book *entities.Book, chars []*entities.Character, upto int) error {
	switch format {
	case "json":
		return formatJSON(w, book, chars, upto)
	case "csv":
		return formatCSV(w, chars)
	case "markdown":
		return formatMarkdown(w, book, chars, upto)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func formatJSON(w io.Writer, book *entities.Book, chars []*entities.Character, upto int) error {
	type exportDoc struct {
		Book        *entities.Book        `json:"book"`
		UpToChapter int                   `json:"up_to_chapter,omitempty"`
		Characters  []*entities.Character `json:"characters"`
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exportDoc{Book: book, UpToChapter: upto, Characters: chars})
}

func formatCSV(w io.Writer, chars []*entities.Character) error {
	writer := csv.NewWriter(w)
	names := characterNames(chars)

	header := []string{
		"id", "name", "aliases", "occupation", "age", "location", "status", "relevance",
		"description", "first_appearance", "last_mentioned", "mention_count", "relationships",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, c := range chars {
		row := []string{
			c.ID,
			c.Name,
			strings.Join(c.Aliases, "; "),
			c.Occupation,
			c.Age,
			c.Location,
			string(c.Status),
			string(c.Relevance),
			c.BriefDescription,
			strconv.Itoa(c.FirstAppearance),
			strconv.Itoa(c.LastMentioned),
			strconv.Itoa(c.MentionCount),
			relationshipSummary(c, names),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// relationshipSummary renders edges as "type:Name" pairs.
func relationshipSummary(c *entities.Character, names map[string]string) string {
	parts := make([]string, 0, len(c.Relationships))
	for _, r := range c.Relationships {
		target := names[r.TargetCharacterID]
		if target == "" {
			target = r.TargetCharacterID
		}
		parts = append(parts, string(r.Type)+":"+target)
	}
	return strings.Join(parts, "; ")
}

func formatMarkdown(w io.Writer, book *entities.Book, chars []*entities.Character, upto int) error {
	title := fmt.Sprintf("# Characters of %s", escapeMarkdown(book.Title))
	if upto > 0 {
		title += fmt.Sprintf(" (through chapter %d)", upto)
	}
	if _, err := fmt.Fprintf(w, "%s\n\nTotal: %d characters\n\n", title, len(chars)); err != nil {
		return err
	}

	if _, err := fmt.Fprint(w, "| Name | Relevance | Status | Occupation | Chapters | Relationships |\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "|------|-----------|--------|------------|----------|---------------|\n"); err != nil {
		return err
	}

	names := characterNames(chars)
	for _, c := range chars {
		occupation := c.Occupation
		if !entities.Known(occupation) {
			occupation = ""
		}
		if _, err := fmt.Fprintf(w, "| %s | %s | %s | %s | %d-%d | %s |\n",
			escapeMarkdown(c.Name),
			c.Relevance,
			c.Status,
			escapeMarkdown(occupation),
			c.FirstAppearance,
			c.LastMentioned,
			escapeMarkdown(relationshipSummary(c, names)),
		); err != nil {
			return err
		}
	}

	return nil
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
