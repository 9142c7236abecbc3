package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/doggos/internal/config"
	"github.com/vyrodovalexey/doggos/internal/dogapi"
)

func newRandomImageCmd() *cobra.Command {
	var (
		timeout time.Duration
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "random-image",
		Short: "Fetch one random dog photo URL and print it",
		Long: `Fetch the URL of one random dog photo, the same request a draft makes,
and print it. Exits non-zero when the photo service fails.

Examples:
  doggos random-image
  doggos random-image --timeout 2s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := dogapi.NewClient(baseURL, timeout, dogapi.WithLogger(zap.NewNop()))
			if err != nil {
				return err
			}

			imageURL, err := client.RandomImage(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), imageURL)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", config.DefaultDogAPITimeout, "request timeout")
	cmd.Flags().StringVar(&baseURL, "base-url", config.DefaultDogAPIBaseURL, "dog API base URL")

	return cmd
}
