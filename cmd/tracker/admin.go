package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Database maintenance",
	}

	cmd.AddCommand(
		newAdminListBooksCmd(),
		newAdminRepairCmd(),
		newAdminResetCmd(),
		newAdminDedupeCmd(),
		newAdminAuditCmd(),
	)

	return cmd
}

func newAdminListBooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-books",
		Short: "List books with statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				books, err := d.Maintenance.ListBooks(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(books)
			})
		},
	}
}

func newAdminRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Fix dangling relationships and inconsistent counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				report, err := d.Maintenance.RepairDatabase(cmd.Context())
				if err != nil {
					return err
				}
				if !report.Changed() {
					fmt.Printf("%s checked %d characters in %d books, nothing to repair\n",
						success("OK:"), report.CharactersChecked, report.Books)
					return nil
				}
				fmt.Printf("%s %d of %d characters\n", success("Repaired"), report.CharactersRepaired, report.CharactersChecked)
				fmt.Printf("  dangling edges: %d, self loops: %d, duplicate edges: %d\n",
					report.DanglingEdges, report.SelfLoops, report.DuplicateEdges)
				fmt.Printf("  duplicate aliases: %d, history entries fused: %d, counters clamped: %d\n",
					report.DuplicateAliases, report.HistoryEntriesFused, report.CountersClamped)
				return nil
			})
		},
	}
}

func newAdminResetCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every book, character and audit entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withInternalDeps(ctx, func(d *internalDeps) error {
				if !force && !confirmAction(warning("Delete ALL data? This cannot be undone.")) {
					fmt.Println("Aborted.")
					return nil
				}
				if err := d.Maintenance.ResetDatabase(ctx); err != nil {
					return err
				}
				if d.index != nil {
					if err := d.index.Clear(ctx); err != nil {
						d.Log.Warn("clearing index failed", "error", err)
					}
				}
				fmt.Println(success("Database reset."))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")
	return cmd
}

func newAdminDedupeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe",
		Short: "Remove books imported more than once",
		Long:  "Duplicate books are also removed automatically whenever the tracker starts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				removed, err := d.Maintenance.DeduplicateBooks(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("%d duplicate books removed\n", len(removed))
				return nil
			})
		},
	}
}

func newAdminAuditCmd() *cobra.Command {
	var (
		action string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "audit [subject-id]",
		Short: "Show audit log entries",
		Long:  "Shows entries for a book or character ID, or the latest entries of one action.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 0 && action == "" {
				return fmt.Errorf("give a subject ID or --action")
			}
			return withInternalDeps(ctx, func(d *internalDeps) error {
				var (
					entries []entities.AuditEntry
					err     error
				)
				if len(args) == 1 {
					entries, err = d.Characters.History(ctx, args[0])
				} else {
					entries, err = d.sqlite.FindAuditLogByAction(ctx, action, limit)
				}
				if err != nil {
					return err
				}
				for _, e := range entries {
					details, _ := json.Marshal(e.Details)
					fmt.Printf("%s %-20s %s %s\n", faint(e.CreatedAt.Format("2006-01-02 15:04:05")), e.Action, e.SubjectID, details)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "Filter by action, e.g. chapter_analyzed")
	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultAuditLimit, "Maximum entries with --action")
	return cmd
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func confirmAction(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("%s [y/N]: ", prompt)
	response, _ := reader.ReadString('\n') // Error ignored: EOF/error treated as "no"
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
