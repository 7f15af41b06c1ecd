package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"transitstore.org/internal/app"
	"transitstore.org/internal/planner"
	"transitstore.org/internal/resource"
)

type queryOptions struct {
	projection []string
	selection  string
	args       []string
	sort       string
	format     string
	dump       bool
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	qo := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query <uri>",
		Short: "Read a resource",
		Long: `Read a resource such as transit://transit/route/12 or stm/busstops/search/berri.
The selection is appended to the resource's own predicate; use ? placeholders
with one --arg per placeholder.`,
		Example: `  transitstore query transit://data/favs
  transitstore query stm/buslines --projection number,name --sort "number DESC"
  transitstore query transit/stop --selection "name LIKE ?" --arg "%Berri%"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := resource.Parse(args[0])
			if err != nil {
				return err
			}
			return withApplication(cmd, opts, func(ctx context.Context, coreApp *app.Application) error {
				rs, err := coreApp.Resolver.Query(ctx, u, qo.query())
				if err != nil {
					return err
				}
				return qo.write(cmd.OutOrStdout(), rs)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&qo.projection, "projection", nil, "Columns to return (comma separated)")
	flags.StringVar(&qo.selection, "selection", "", "Extra SQL predicate")
	flags.StringArrayVar(&qo.args, "arg", nil, "Argument for a ? placeholder in --selection (repeatable)")
	flags.StringVar(&qo.sort, "sort", "", "Sort order overriding the resource default")
	flags.StringVar(&qo.format, "format", "table", "Output format (table|json)")
	flags.BoolVar(&qo.dump, "dump", false, "Dump the raw result set")
	return cmd
}

func (qo *queryOptions) query() planner.Query {
	q := planner.Query{
		Projection: qo.projection,
		Selection:  qo.selection,
		SortOrder:  qo.sort,
	}
	for _, a := range qo.args {
		q.SelectionArgs = append(q.SelectionArgs, a)
	}
	return q
}

func (qo *queryOptions) write(w io.Writer, rs *planner.ResultSet) error {
	if qo.dump {
		spew.Fdump(w, rs)
		return nil
	}
	switch qo.format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rs.Maps())
	case "table":
		return writeTable(w, rs)
	}
	return fmt.Errorf("unknown format %q", qo.format)
}

// writeTable prints the result set as aligned columns followed by a row count.
func writeTable(w io.Writer, rs *planner.ResultSet) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(rs.Columns, "\t")))
	for i := range rs.Rows {
		cells := make([]string, len(rs.Columns))
		for j, c := range rs.Columns {
			cells[j] = rs.Text(i, c)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", rs.Len())
	return err
}
