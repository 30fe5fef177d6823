package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/filebrowser/internal/logging"
	"github.com/fruitsalade/filebrowser/pkg/client"
)

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Save a bearer token for later commands",
		Long: `Save a bearer token issued by the store. The token is read from --token or
prompted for, checked against the store, and written to the token file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)

			raw := a.cfg.Token
			if raw == "" {
				var err error
				raw, err = a.promptSecret("Token: ")
				if err != nil {
					return fmt.Errorf("reading token: %w", err)
				}
			}
			raw = strings.TrimSpace(raw)
			if raw == "" {
				return fmt.Errorf("no token given")
			}

			tf, err := client.TokenFromJWT(raw, a.cfg.BaseURL)
			if err != nil {
				return err
			}
			if tf.IsExpired(0) {
				return fmt.Errorf("token has already expired")
			}

			a.client.SetAuthToken(raw)
			if _, err := a.client.List(cmd.Context(), ""); err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}

			if err := client.SaveToken(a.cfg.TokenFile, tf); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			path := a.cfg.TokenFile
			if path == "" {
				path = client.TokenFilePath()
			}
			logging.Info("token saved",
				logging.String("path", path),
				logging.Any("expires_at", tf.ExpiresAt),
			)
			if tf.Username != "" {
				fmt.Fprintf(a.out, "Login successful! Logged in as %s. Token saved to %s\n", tf.Username, path)
			} else {
				fmt.Fprintf(a.out, "Login successful! Token saved to %s\n", path)
			}
			return nil
		},
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			if err := client.DeleteToken(a.cfg.TokenFile); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("no saved token found")
				}
				return fmt.Errorf("failed to delete token file: %w", err)
			}
			fmt.Fprintln(a.out, "Logged out successfully.")
			return nil
		},
	}
}
