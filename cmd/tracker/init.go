package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/book-character-tracker/internal/application/handlers"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new character library",
		Long:  "Creates a .tracker directory with default configuration and the SQLite database.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	result, err := handlers.NewInitHandler(openStores).Handle(cmd.Context(), cwd)
	if err != nil {
		return err
	}

	fmt.Printf("Created %s\n", result.ConfigPath)
	fmt.Printf("Created database %s\n", result.DatabasePath)
	if result.CollectionName != "" {
		fmt.Printf("Created Qdrant collection: %s\n", result.CollectionName)
	}
	fmt.Println(success("Tracker initialized successfully!"))
	return nil
}
