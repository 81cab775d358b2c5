// Package main provides the entry point for the tracker CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	verbose bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "%s loading .env: %v\n", color.YellowString("warning:"), err)
	}

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootCmd := &cobra.Command{
		Use:           "tracker",
		Short:         "Track the characters of a novel chapter by chapter",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newInitCmd(),
		newBooksCmd(),
		newAnalyzeCmd(),
		newCharactersCmd(),
		newShowCmd(),
		newMergeCmd(),
		newSearchCmd(),
		newExportCmd(),
		newIndexCmd(),
		newAdminCmd(),
	)

	return rootCmd.ExecuteContext(ctx)
}
