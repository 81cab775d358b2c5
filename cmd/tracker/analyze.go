package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/book-character-tracker/internal/application/handlers"
	"github.com/ersonp/book-character-tracker/internal/domain/services"
)

func newAnalyzeCmd() *cobra.Command {
	var opts handlers.AnalyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze <book>",
		Short: "Extract characters from chapters",
		Long: `Runs chapters through AI extraction and folds the observed characters
into the book. Without --chapter every chapter not yet analyzed is processed
in order.

Examples:
  tracker analyze "The Great Gatsby"
  tracker analyze gatsby --chapter 3
  tracker analyze gatsby --chapter 1 --to 5
  tracker analyze gatsby --chapter 1 --to 9 --observations notes.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				if opts.ObservationsFile == "" && d.extractorErr != nil {
					return fmt.Errorf("AI extraction unavailable: %w", d.extractorErr)
				}

				book, err := d.Library.FindBook(ctx, args[0])
				if err != nil {
					return err
				}

				result, err := d.Analyze.Handle(ctx, book.ID, opts)
				if result != nil {
					for _, r := range result.Chapters {
						printAnalysis(r)
					}
				}
				if err != nil {
					return fmt.Errorf("analyzing %s: %w", book.Title, err)
				}
				if len(result.Chapters) == 0 {
					fmt.Println("Nothing to analyze: every chapter has been processed.")
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&opts.From, "chapter", "c", 0, "Chapter to analyze (default: first pending chapter onwards)")
	cmd.Flags().IntVar(&opts.To, "to", 0, "Last chapter of a range, inclusive")
	cmd.Flags().StringVar(&opts.ObservationsFile, "observations", "", "Read observations from a JSON, YAML or CSV file instead of calling the AI")

	return cmd
}

func printAnalysis(r *services.AnalysisResult) {
	fmt.Printf("%s %d: %d observations, %d new, %d updated, %d relationships\n",
		success("Chapter"), r.Chapter, r.Candidates, len(r.Created), len(r.Updated), r.Relationships)
	for _, c := range r.Created {
		fmt.Printf("  %s %s\n", success("+"), c.Name)
	}
	for _, c := range r.Updated {
		fmt.Printf("  %s %s\n", cyan("~"), c.Name)
	}
	if r.Skipped > 0 {
		fmt.Printf("  %s %d observations without a name were skipped\n", warning("!"), r.Skipped)
	}
}
