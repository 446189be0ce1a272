/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package cmd implements the aithrottle command line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pulsefit/aithrottle/internal/libinfo"
)

type rootOptions struct {
	configFile string
}

// NewRootCommand builds the aithrottle command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "aithrottle",
		Short: "Client-side rate limiter for the Gemini API",
		Long: `aithrottle admits Gemini API calls under per-minute and per-day quotas,
queues the excess by priority and backs off when the API pushes back.

Use the subcommands to run the limiter as a service, send prompts through it
or inspect its state.`,
		Version:       libinfo.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"config file (YAML or JSON); environment variables with the "+envVarsPrefix+"_ prefix override it")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newPromptCommand(opts),
		newStatusCommand(opts),
	)
	return rootCmd
}

// Execute runs the root command. It's called by main.main().
func Execute() error {
	return NewRootCommand().Execute()
}
