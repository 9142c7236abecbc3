// Package main is the entry point of the doggos server and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/doggos/internal/handler"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root command serves the API.
func newRootCmd() *cobra.Command {
	var opts serveOptions

	root := &cobra.Command{
		Use:   "doggos",
		Short: "doggos - a personal dog roster with random photos",
		Long: `doggos serves a per-user roster of dogs over HTTP and WebSocket.

Dogs are added through a draft that fetches a random photo from dog.ceo
while the name is being typed, liked or unliked, removed, and listed
liked-first with an optional name filter.

Configuration is read from defaults, an optional YAML file and APP_*
environment variables, in that order.`,
		Version:       handler.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate("doggos version {{.Version}}\n")

	root.Flags().StringVarP(&opts.configFile, "config", "c", "", "path to a YAML config file (default $APP_CONFIG_FILE)")
	root.Flags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(newRandomImageCmd())

	return root
}
