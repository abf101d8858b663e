package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/cocaresync/cocaresync/internal/application"
	"github.com/cocaresync/cocaresync/internal/config"
	"github.com/cocaresync/cocaresync/internal/core"
	"github.com/cocaresync/cocaresync/internal/web/middleware"
)

type importOptions struct {
	userID  string
	asJSON  bool
	maxErrs int
}

func newImportCmd(cfg *config.Config) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import patients from a CSV or Excel file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if info.Size() > cfg.Import.MaxFileSize {
				return fmt.Errorf("%s is %d bytes, over the %d byte import limit", path, info.Size(), cfg.Import.MaxFileSize)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			app, err := application.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Service.ImportPatients(cmd.Context(), data, filepath.Base(path), opts.userID)
			if err != nil {
				return errors.New(core.FormatUserError(err))
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Fprintf(out, "batch %s: imported %d of %d rows\n", result.BatchID, result.Success, result.Total)
			for i, rowErr := range result.Errors {
				if opts.maxErrs > 0 && i >= opts.maxErrs {
					fmt.Fprintf(out, "  ... %d more\n", len(result.Errors)-i)
					break
				}
				fmt.Fprintf(out, "  row %d: %s\n", rowErr.Row, rowErr.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.userID, "user", core.DefaultAdmin.ID, "User ID recorded as the importer")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().IntVar(&opts.maxErrs, "max-errors", 20, "Row errors to print (0 prints all)")
	return cmd
}

func newCreateAdminCmd(cfg *config.Config) *cobra.Command {
	admin := core.DefaultAdmin

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create or update the admin user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := application.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			admin.Role = core.RoleAdmin
			u, err := app.Service.EnsureUser(cmd.Context(), admin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin user %s <%s> ready\n", u.ID, u.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&admin.ID, "id", admin.ID, "User ID")
	cmd.Flags().StringVar(&admin.Email, "email", admin.Email, "Email address")
	cmd.Flags().StringVar(&admin.FirstName, "first-name", admin.FirstName, "First name")
	cmd.Flags().StringVar(&admin.LastName, "last-name", admin.LastName, "Last name")
	return cmd
}

func newTokenCmd(cfg *config.Config) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			authCfg := cfg.Auth
			if ttl > 0 {
				authCfg.TokenTTL = ttl
			}
			token, err := middleware.IssueToken(authCfg, userID, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", core.DefaultAdmin.ID, "User ID placed in the sub claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default AUTH_TOKEN_TTL)")
	return cmd
}
