// rlmail analyzes email corpora with recursive, budget-governed language
// model calls. It loads a corpus from a provider query or a saved file,
// routes a natural language goal to the right workflow, and executes the
// resulting plan under budget, call and depth limits.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Exit codes: 0 success, 1 configuration or execution error, 130 user
// cancellation.
const exitCancelled = 130

var errCancelled = errors.New("cancelled")

func main() {
	// Best-effort: a missing .env file is not an error.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errCancelled) || errors.Is(ctx.Err(), context.Canceled) {
			os.Exit(exitCancelled)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose, jsonOutput bool

	root := &cobra.Command{
		Use:           "rlmail",
		Short:         "Recursive language model email analysis",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&jsonOutput, "json-output", false, "emit results and logs as JSON")

	root.AddCommand(newRunCommand(&verbose, &jsonOutput))
	root.AddCommand(newSessionsCommand(&verbose, &jsonOutput))

	return root
}

// newLogger builds the process logger. Console output goes to stderr so
// stdout stays clean for results.
func newLogger(verbose, jsonOutput bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if jsonOutput {
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}
