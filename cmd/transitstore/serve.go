package main

import (
	"context"

	"github.com/spf13/cobra"

	"transitstore.org/internal/app"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the resource API over HTTP",
		Long: `Serve the resource API, change streams, health and metrics endpoints.
The debug pages under /debug/schema are mounted outside production.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			coreApp, err := BuildApplication(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			srv, api := CreateServer(coreApp)
			return Run(cmd.Context(), srv, coreApp, api)
		},
	}
}

// withApplication builds the application for a one-shot command and closes
// its stores when fn returns.
func withApplication(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, coreApp *app.Application) error) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	coreApp, err := BuildApplication(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := coreApp.Close(); closeErr != nil {
			coreApp.Logger.Warn("failed to close stores", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, coreApp)
}
