package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var (
		upto  int
		limit int
	)

	cmd := &cobra.Command{
		Use:   "search <book> <query...>",
		Short: "Find characters by description",
		Long: `Semantic search over the characters of a book. Requires qdrant.enabled.
Characters introduced after --chapter are never returned.

Examples:
  tracker search gatsby "the narrator's cousin" --chapter 3`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := strings.Join(args[1:], " ")
			return withDeps(ctx, func(d *Deps) error {
				book, err := d.Library.FindBook(ctx, args[0])
				if err != nil {
					return err
				}
				results, err := d.Characters.Search(ctx, book.ID, query, upto, limit)
				if err != nil {
					return err
				}
				if len(results) == 0 {
					fmt.Println("No matching characters.")
					return nil
				}
				for i, r := range results {
					fmt.Printf("%d. %s %s\n", i+1, bold(r.Character.Name), faint(fmt.Sprintf("(score %.3f)", r.Score)))
					if r.Character.BriefDescription != "" {
						fmt.Printf("   %s\n", r.Character.BriefDescription)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&upto, "chapter", "c", 0, "Only characters known by this chapter (default: all)")
	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultSearchLimit, "Maximum number of results")
	return cmd
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the semantic search index",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild <book>",
		Short: "Re-embed every character of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				book, err := d.Library.FindBook(ctx, args[0])
				if err != nil {
					return err
				}
				n, err := d.Characters.RebuildIndex(ctx, book.ID)
				if err != nil {
					return err
				}
				fmt.Printf("%s %d characters of %s\n", success("Indexed"), n, book.Title)
				return nil
			})
		},
	})

	return cmd
}
