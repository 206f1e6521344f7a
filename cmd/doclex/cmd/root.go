// Package cmd provides the CLI commands for doclex.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/doclex/doclex/internal/config"
	"github.com/doclex/doclex/internal/doclexerr"
	"github.com/doclex/doclex/internal/logging"
	"github.com/doclex/doclex/pkg/version"
)

// Exit codes: 0 clean, 1 fatal startup error, 2 configuration
// error.
const (
	ExitOK     = 0
	ExitFatal  = 1
	ExitConfig = 2
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the doclex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doclex",
		Short: "Local document search engine for AI clients",
		Long: `doclex continuously indexes documents from configured directories and
exposes precise lexical retrieval to a conversational AI client over
MCP (line-delimited JSON-RPC on stdio).

Run 'doclex serve' from an MCP client configuration, or 'doclex index'
for a one-shot crawl.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("doclex version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.doclex/logs/")
	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	// serve configures MCP-mode logging itself; anything it wrote to
	// stderr before that point is harmless, stdout is what must stay
	// protocol-clean.
	if cmd.Name() == "serve" {
		return nil
	}
	var err error
	if debugMode {
		var logger *slog.Logger
		logger, loggingCleanup, err = logging.Setup(logging.DebugConfig())
		if err == nil {
			slog.SetDefault(logger)
		}
	} else {
		loggingCleanup, err = logging.SetupDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: logging setup failed: %v\n", err)
	}
	return nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}
	return ExitOK
}

// exitCodeFor classifies an error into the process exit codes.
func exitCodeFor(err error) int {
	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}
	if kind, ok := doclexerr.GetKind(err); ok {
		switch kind {
		case doclexerr.KindSchemaMismatch, doclexerr.KindIndexUnavailable:
			return ExitFatal
		}
	}
	return ExitFatal
}

// configError wraps configuration load/validate failures so Execute can
// map them to exit code 2.
type configError struct{ cause error }

func (e *configError) Error() string { return "configuration error: " + e.cause.Error() }
func (e *configError) Unwrap() error { return e.cause }

// loadConfig loads the effective configuration for the working
// directory, wrapping failures as configuration errors.
func loadConfig() (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, &configError{cause: err}
	}
	cfg, err := config.Load(wd)
	if err != nil {
		return nil, &configError{cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &configError{cause: err}
	}
	return cfg, nil
}
