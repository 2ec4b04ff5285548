package cli

import (
	"fmt"
	"os"

	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/googleauth"
	"github.com/soyeahso/chatrelay/internal/mail"
	"github.com/soyeahso/chatrelay/internal/remote"
	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Google services for uploads and mail",
	}
	cmd.AddCommand(newAuthServiceCmd("drive", "Authorize Google Drive uploads", remote.DriveScope))
	cmd.AddCommand(newAuthServiceCmd("gmail", "Authorize sending notifications through Gmail", mail.GmailScope))
	return cmd
}

func newAuthServiceCmd(service, short, scope string) *cobra.Command {
	return &cobra.Command{
		Use:   service,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			creds := credentialsPath(service, cfg)
			oauthCfg, err := googleauth.ClientConfig(creds, scope)
			if err != nil {
				return fmt.Errorf("%w\n\nDownload an OAuth client (Desktop app) from the Google Cloud console and save it to %s", err, creds)
			}

			tok, err := googleauth.Authorize(cmd.Context(), oauthCfg, os.Stdin, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			dest := tokenPath(service, cfg)
			if err := googleauth.SaveToken(dest, tok); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", dest)
			return nil
		},
	}
}

// credentialsPath returns the OAuth client file for a Google service,
// honoring the per-driver override.
func credentialsPath(service string, cfg config.Config) string {
	override := cfg.Remote.CredentialsFile
	if service == "gmail" {
		override = cfg.Mail.CredentialsFile
	}
	if override != "" {
		return override
	}
	return paths.DriveCredentials()
}

// tokenPath returns where the token for a Google service is kept.
func tokenPath(service string, cfg config.Config) string {
	override := cfg.Remote.TokenFile
	if service == "gmail" {
		override = cfg.Mail.TokenFile
	}
	if override != "" {
		return override
	}
	return paths.Token(service)
}
