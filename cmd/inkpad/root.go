package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kuitang/inkpad/internal/config"
	"github.com/kuitang/inkpad/internal/errs"
	"github.com/kuitang/inkpad/internal/obs"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// cli carries the persistent flag values into subcommands.
type cli struct {
	flags config.Flags
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:   "inkpad",
		Short: "Notes with a per-note AI conversation",
		Long: `inkpad keeps titled notes, each with its own conversation with an assistant.
State is stored encrypted in SQLCipher or an S3-compatible bucket, and the
whole notebook can be served to agents over MCP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if c.flags.Verbose {
				level = slog.LevelDebug
			}
			obs.InitWithLevel(level)
			name := strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()+" ")
			cmd.SetContext(obs.WithCorrelation(cmd.Context(), obs.Correlation{Command: name}))
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&c.flags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&c.flags.NoLLM, "no-llm", false, "Answer chat locally with an echo instead of calling a model")
	rootCmd.PersistentFlags().BoolVar(&c.flags.Ephemeral, "ephemeral", false, "Keep all state in memory (nothing is read or written)")

	rootCmd.AddCommand(
		newNoteCmd(c),
		newChatCmd(c),
		newMCPCmd(c),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the CLI and returns the process exit status.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, newRootCmd(), os.Args[1:], os.Stderr)
}

func run(ctx context.Context, rootCmd *cobra.Command, args []string, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if problems := config.Problems(err); problems != nil {
			fmt.Fprintln(stderr, err)
			return errs.ExitCode(errs.InvalidArgument)
		}
		var coded *errs.Error
		if errors.As(err, &coded) {
			fmt.Fprintf(stderr, "Error: %s\n", errs.MessageOf(err))
			return errs.ExitCode(coded.Code)
		}
		// Usage errors from cobra and untyped failures.
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
