package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCharactersCmd() *cobra.Command {
	var upto int

	cmd := &cobra.Command{
		Use:   "characters <book>",
		Short: "List the characters of a book",
		Long: `Lists characters as a reader at the given chapter knows them. Characters,
relationships and history from later chapters are hidden.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				book, err := d.Library.FindBook(ctx, args[0])
				if err != nil {
					return err
				}
				chars, err := d.Characters.List(ctx, book.ID, upto)
				if err != nil {
					return err
				}
				if len(chars) == 0 {
					fmt.Println("No characters found.")
					return nil
				}
				fmt.Printf("%s: %d characters%s\n\n", bold(book.Title), len(chars), chapterSuffix(upto))
				for _, c := range chars {
					printCharacterLine(c)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&upto, "chapter", "c", 0, "Show only what is known by this chapter (default: everything)")
	return cmd
}

func newShowCmd() *cobra.Command {
	var upto int

	cmd := &cobra.Command{
		Use:   "show <book> <character>",
		Short: "Show one character in detail",
		Long:  "Shows a character by ID or name, as known by the given chapter.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				book, err := d.Library.FindBook(ctx, args[0])
				if err != nil {
					return err
				}
				c, err := d.Characters.Show(ctx, book.ID, args[1], upto)
				if err != nil {
					return err
				}
				visible, err := d.Characters.List(ctx, book.ID, upto)
				if err != nil {
					return err
				}
				printCharacter(c, characterNames(visible))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&upto, "chapter", "c", 0, "Show only what is known by this chapter (default: everything)")
	return cmd
}

func chapterSuffix(upto int) string {
	if upto <= 0 {
		return ""
	}
	return fmt.Sprintf(" by chapter %d", upto)
}
