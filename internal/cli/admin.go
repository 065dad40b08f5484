// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"

	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-chat/internal/config"
)

func newAdminCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin endpoint credentials",
	}

	var (
		account string
		save    bool
	)
	totpCmd := &cobra.Command{
		Use:   "totp",
		Short: "Generate a TOTP secret for /admin/*",
		Long: `Generate a TOTP secret for the admin endpoints.

Add the printed otpauth URL to an authenticator app, then send the current
code in the X-Admin-OTP header together with the bearer token. With --save
the secret is written to server.admin_totp_secret in the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := totp.Generate(totp.GenerateOpts{
				Issuer:      "rigrun-chat",
				AccountName: account,
			})
			if err != nil {
				return fmt.Errorf("generate TOTP secret: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, RenderLabel("Secret:")+ValueStyle.Render(key.Secret()))
			fmt.Fprintln(out, RenderLabel("URL:")+ValueStyle.Render(key.URL()))

			if !save {
				fmt.Fprintln(out, DimStyle.Render("Set server.admin_totp_secret to the secret, or rerun with --save."))
				return nil
			}

			path, err := opts.resolveConfigPath()
			if err != nil {
				return err
			}
			// Start from the file itself so env overrides are not persisted.
			cfg := config.Default()
			if _, err := os.Stat(path); err == nil {
				if err := config.LoadTOML(cfg, path); err != nil {
					return err
				}
			}
			if cfg.Server.AdminToken == "" {
				fmt.Fprintln(os.Stderr, WarningStyle.Render("server.admin_token is empty: admin endpoints stay disabled until it is set"))
			}
			cfg.Server.AdminTOTPSecret = key.Secret()
			if err := config.SaveTOML(cfg, path); err != nil {
				return err
			}
			fmt.Fprintln(out, SuccessStyle.Render("Saved to")+" "+path)
			return nil
		},
	}
	totpCmd.Flags().StringVar(&account, "account", "admin", "account name shown in the authenticator")
	totpCmd.Flags().BoolVar(&save, "save", false, "write the secret to the config file")

	cmd.AddCommand(totpCmd)
	return cmd
}
