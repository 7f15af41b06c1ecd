package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"transitstore.org/internal/app"
	"transitstore.org/internal/mutation"
	"transitstore.org/internal/resource"
)

func newInsertCmd(opts *rootOptions) *cobra.Command {
	var (
		sets    []string
		rawJSON string
	)

	cmd := &cobra.Command{
		Use:   "insert <uri>",
		Short: "Insert a row into a writable resource",
		Example: `  transitstore insert data/favs --set fk1=51234 --set fk2=24 --set type=1
  transitstore insert data/history --json '{"text":"berri"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := resource.Parse(args[0])
			if err != nil {
				return err
			}
			values, err := parseValues(sets, rawJSON)
			if err != nil {
				return err
			}
			return withApplication(cmd, opts, func(ctx context.Context, coreApp *app.Application) error {
				inserted, err := coreApp.Resolver.Insert(ctx, u, values)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), inserted.String())
				return err
			})
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "Column value as name=value (repeatable)")
	cmd.Flags().StringVar(&rawJSON, "json", "", "Row as a JSON object")
	cmd.MarkFlagsMutuallyExclusive("set", "json")
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <uri>",
		Short:   "Delete the rows addressed by a resource",
		Example: `  transitstore delete data/favs/3`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := resource.Parse(args[0])
			if err != nil {
				return err
			}
			return withApplication(cmd, opts, func(ctx context.Context, coreApp *app.Application) error {
				n, err := coreApp.Resolver.Delete(ctx, u)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d rows deleted\n", n)
				return err
			})
		},
	}
}

// parseValues builds a row from --set pairs or a JSON object. JSON numbers
// keep their literal text so the column affinity decides the storage class.
func parseValues(sets []string, rawJSON string) (mutation.Values, error) {
	values := mutation.Values{}
	if rawJSON != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(rawJSON)))
		dec.UseNumber()
		if err := dec.Decode(&values); err != nil {
			return nil, fmt.Errorf("invalid --json: %w", err)
		}
		return values, nil
	}
	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, want name=value", s)
		}
		values[name] = value
	}
	return values, nil
}
