package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/book-character-tracker/internal/application/handlers"
)

func newBooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Manage the book library",
		RunE:  runBooksList,
	}

	cmd.AddCommand(
		newBooksImportCmd(),
		newBooksListCmd(),
		newBooksChaptersCmd(),
		newBooksDeleteCmd(),
	)

	return cmd
}

func newBooksImportCmd() *cobra.Command {
	var opts handlers.ImportOptions

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a manuscript",
		Long: `Imports a paged text manuscript and detects its chapters.

Pages are separated by form feeds, as produced by "pdftotext -layout".
Text without form feeds is split into pages of --lines-per-page lines.

Examples:
  tracker books import gatsby.txt
  tracker books import draft.txt --title "Working Title"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				result, err := d.Library.Import(cmd.Context(), args[0], opts)
				if err != nil {
					return fmt.Errorf("importing %s: %w", args[0], err)
				}

				for _, id := range result.RemovedDuplicates {
					fmt.Printf("%s removed duplicate book %s\n", warning("note:"), id)
				}
				verb := "Imported"
				if result.Reimported {
					verb = "Re-imported"
				}
				fmt.Printf("%s %s %s (%d pages, %d chapters)\n",
					success(verb), bold(result.Book.Title), faint(result.Book.ID), result.Book.PageCount, len(result.Chapters))
				for _, ch := range result.Chapters {
					fmt.Printf("  %3d. %s %s\n", ch.Number, ch.Title, faint(fmt.Sprintf("pp. %d-%d", ch.StartPage, ch.EndPage)))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "Book title (default: derived from the file name)")
	cmd.Flags().IntVar(&opts.LinesPerPage, "lines-per-page", 0, "Page size for text without form feeds (default 40)")

	return cmd
}

func newBooksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List imported books",
		RunE:  runBooksList,
	}
}

func runBooksList(cmd *cobra.Command, args []string) error {
	return withDeps(cmd.Context(), func(d *Deps) error {
		books, err := d.Library.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(books) == 0 {
			fmt.Println("No books imported. Use 'tracker books import <file>'.")
			return nil
		}
		for _, b := range books {
			fmt.Printf("%s %s\n", bold(b.Book.Title), faint(b.Book.ID))
			fmt.Printf("  %s, %d pages, %d/%d chapters analyzed, %d characters\n",
				b.Book.FileName, b.Book.PageCount, b.AnalyzedChapters, b.Chapters, b.Characters)
		}
		return nil
	})
}

func newBooksChaptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chapters <book>",
		Short: "List the chapters of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				book, err := d.Library.FindBook(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				chapters, err := d.Library.Chapters(cmd.Context(), book.ID)
				if err != nil {
					return err
				}
				fmt.Printf("%s\n", bold(book.Title))
				for _, ch := range chapters {
					state := faint("pending")
					if ch.Analyzed() {
						state = success("analyzed " + ch.AnalyzedAt.Format("2006-01-02 15:04"))
					}
					fmt.Printf("  %3d. %-40s pp. %d-%d  %s\n", ch.Number, ch.Title, ch.StartPage, ch.EndPage, state)
				}
				return nil
			})
		},
	}
}

func newBooksDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <book>",
		Short: "Delete a book with its chapters and characters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				book, err := d.Library.FindBook(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !force && !confirmAction(fmt.Sprintf("Delete %q and all of its characters?", book.Title)) {
					fmt.Println("Aborted.")
					return nil
				}
				if err := d.Library.Delete(cmd.Context(), book.ID); err != nil {
					return err
				}
				fmt.Printf("%s %s\n", success("Deleted"), book.Title)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")
	return cmd
}
