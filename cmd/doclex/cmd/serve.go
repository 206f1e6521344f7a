package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/doclex/doclex/internal/engine"
	"github.com/doclex/doclex/internal/logging"
)

// newServeCmd creates the serve command: run the MCP server over stdio.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdin/stdout",
		Long: `Start doclex as an MCP server speaking line-delimited JSON-RPC on
stdin/stdout. Logs go to the per-user log file only; nothing is ever
written to stdout except protocol frames.

On startup the engine reconciles the index against the configured
directories and begins watching them for changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// Stdout carries the protocol from here on; the logger must
			// never touch it.
			cleanup, err := logging.SetupMCPModeWithLevel(cfg.Server.LogLevel)
			if err == nil {
				defer cleanup()
			}

			e, err := engine.New(cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return e.Run(ctx)
		},
	}
}
