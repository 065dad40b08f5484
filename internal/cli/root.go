// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-chat/internal/config"
)

// Version information (overridden at build time with -ldflags).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions holds the global flags shared by every command.
type rootOptions struct {
	configPath string
	verbose    bool
}

// resolveConfigPath returns --config or the default config file path.
func (o *rootOptions) resolveConfigPath() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.ConfigPath()
}

// loadConfig loads the configuration, applying --verbose.
func (o *rootOptions) loadConfig() (*config.Config, string, error) {
	path, err := o.resolveConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, path, nil
}

// Execute runs the rigrun-chat command line and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

// NewRootCmd builds the root command with all subcommands.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "rigrun-chat",
		Short: "Document Q&A chat server",
		Long: `rigrun-chat serves a web chat that answers questions through a local
Ollama model or an upstream answer service, renders answers as sanitized
markdown, and keeps each browser's conversation in SQLite.

Examples:
  rigrun-chat serve                      Start the web server
  rigrun-chat chat                       Chat in the terminal
  rigrun-chat render answer.md           Render markdown to HTML
  rigrun-chat history                    List recent conversations
  rigrun-chat config init                Write a default config file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: ~/.rigrun-chat/config.toml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newRenderCmd(opts),
		newHistoryCmd(opts),
		newConfigCmd(opts),
		newAdminCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rigrun-chat %s\n", Version)
			fmt.Fprintf(out, "Commit: %s\n", GitCommit)
			fmt.Fprintf(out, "Built:  %s\n", BuildDate)
		},
	}
}
