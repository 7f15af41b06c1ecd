package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"transitstore.org/internal/app"
	"transitstore.org/internal/dataset"
	"transitstore.org/internal/families/transit"
	"transitstore.org/internal/resource"
)

func newInstallCmd(opts *rootOptions) *cobra.Command {
	var family string

	cmd := &cobra.Command{
		Use:   "install <file|->",
		Short: "Install a deployed dataset as a family's database",
		Long: `Install replaces a family's database with a prebuilt SQLite file, plain
or gzip compressed. Use - to read the dataset from stdin.`,
		Example: `  transitstore install --family stm stm_2024.db.gz`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, opts, func(ctx context.Context, coreApp *app.Application) error {
				src, closeSrc, err := openSource(cmd, args[0])
				if err != nil {
					return err
				}
				defer closeSrc()

				if err := coreApp.Resolver.Install(ctx, family, src); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", family)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&family, "family", "", "Family receiving the dataset (transit|stm|data)")
	_ = cmd.MarkFlagRequired("family")
	return cmd
}

func newImportGTFSCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-gtfs <url|file>",
		Short: "Import a static GTFS feed into the transit family",
		Long: `Import a static GTFS zip, read from a URL or a local file, replacing the
routes, trips and stops of the transit family in one transaction.`,
		Example: `  transitstore import-gtfs https://example.org/gtfs.zip`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			location := args[0]
			return withApplication(cmd, opts, func(ctx context.Context, coreApp *app.Application) error {
				p, err := coreApp.Resolver.Provider(transit.Authority)
				if err != nil {
					return err
				}
				data, err := dataset.ReadFeed(ctx, location)
				if err != nil {
					return err
				}
				counts, err := dataset.ImportGTFS(ctx, p.Store(), data, location)
				if err != nil {
					return err
				}
				coreApp.Notifier.Publish(resource.New(transit.Authority))

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d routes, %d trips, %d stops, %d trip stops\n",
					counts.Routes, counts.Trips, counts.Stops, counts.TripStops)
				return err
			})
		},
	}
}

func openSource(cmd *cobra.Command, name string) (io.Reader, func(), error) {
	if name == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
