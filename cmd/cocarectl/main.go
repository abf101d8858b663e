// Command cocarectl runs operator tasks against the patient database:
// bulk imports from a file, creating the admin user, and issuing API tokens.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cocaresync/cocaresync/internal/config"
	"github.com/cocaresync/cocaresync/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	// Filled in before any subcommand runs.
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:          "cocarectl",
		Short:        "Operator tools for the TB/HIV patient registry",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				slog.Debug("no .env file found, using environment variables")
			}
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			// Logs go to stderr so command output stays machine readable.
			slog.SetDefault(logging.New(os.Stderr, loaded.Logging.Level, loaded.Logging.Format))
			*cfg = *loaded
			return nil
		},
	}

	root.AddCommand(
		newImportCmd(cfg),
		newCreateAdminCmd(cfg),
		newTokenCmd(cfg),
	)
	return root
}
