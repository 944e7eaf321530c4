// Package admin implements pongadmin, the operator tool that works on the
// configured storage directly instead of through the HTTP API.
package admin

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcoot/pongladder/internal/config"
	"github.com/mcoot/pongladder/internal/factory"
	"github.com/mcoot/pongladder/internal/logging"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pongadmin",
		Short: "Operator tool for the ping-pong ladder storage",
		Long: `pongadmin opens the storage backend selected by the server configuration
(PONG_CONFIG, STORAGE_TYPE and friends) and operates on it directly.

Stop the server before importing; the import does not coordinate with a
running ledger.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newVerifyCmd())

	return rootCmd
}

// withApp opens the configured application for the duration of run
func withApp(run func(cmd *cobra.Command, app *factory.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		app, err := factory.New(factory.ConfigFrom(cfg, logger))
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, app.Close())
		}()

		return run(cmd, app)
	}
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
