package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMergeCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "merge <book> <source> <target>",
		Short: "Merge two characters that are the same person",
		Long: `Folds the source character into the target. The source's name becomes an
alias of the target, mentions are summed and relationships pointing at the
source are moved to the target. Characters are given by ID or name.

Examples:
  tracker merge gatsby "Jay" "Jay Gatsby"`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				book, err := d.Library.FindBook(ctx, args[0])
				if err != nil {
					return err
				}
				sourceID, err := d.Characters.Resolve(ctx, book.ID, args[1])
				if err != nil {
					return fmt.Errorf("source: %w", err)
				}
				targetID, err := d.Characters.Resolve(ctx, book.ID, args[2])
				if err != nil {
					return fmt.Errorf("target: %w", err)
				}

				if !force && !confirmAction(fmt.Sprintf("Merge %s into %s?", args[1], args[2])) {
					fmt.Println("Aborted.")
					return nil
				}

				result, err := d.Characters.Merge(ctx, sourceID, targetID)
				if err != nil {
					return err
				}
				fmt.Printf("%s into %s (%d characters repointed)\n",
					success("Merged"), bold(result.Merged.Name), len(result.Repointed))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")
	return cmd
}
