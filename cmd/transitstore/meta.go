package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"transitstore.org/internal/app"
	"transitstore.org/internal/planner"
	"transitstore.org/internal/provider"
	"transitstore.org/internal/resource"
	"transitstore.org/transitdb"
)

var metaPaths = []string{"version", "label", "deployed", "setuprequired"}

func newMetaCmd(opts *rootOptions) *cobra.Command {
	var family string

	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Show version and deployment state of each family",
		Long: `Show the meta resources of every family, or of one with --family.
Reading them never creates a missing database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, opts, func(ctx context.Context, coreApp *app.Application) error {
				providers := coreApp.Resolver.Providers()
				if family != "" {
					p, err := coreApp.Resolver.Provider(family)
					if err != nil {
						return err
					}
					providers = []*provider.Provider{p}
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "FAMILY\tVERSION\tLABEL\tDEPLOYED\tSETUP REQUIRED")
				for _, p := range providers {
					cells := make([]any, 0, len(metaPaths)+1)
					cells = append(cells, p.Authority())
					for _, name := range metaPaths {
						rs, err := p.Query(ctx, resource.New(p.Authority(), "meta", name), planner.Query{})
						if err != nil {
							return err
						}
						cells = append(cells, rs.Text(0, rs.Columns[0]))
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", cells...)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&family, "family", "", "Limit output to one family (transit|stm|data)")
	return cmd
}

func newSchemaCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <family>",
		Short: "Print the DDL of a family's database",
		Long: `Print the tables, indexes and triggers of a family's database. The
database is created or upgraded first when needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, opts, func(ctx context.Context, coreApp *app.Application) error {
				p, err := coreApp.Resolver.Provider(args[0])
				if err != nil {
					return err
				}
				db, err := p.Store().Get(ctx)
				if err != nil {
					return err
				}
				return transitdb.PrintSimpleSchema(ctx, db, cmd.OutOrStdout())
			})
		},
	}
}
