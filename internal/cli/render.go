package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atlekbai/source_registry/internal/query"
	"github.com/atlekbai/source_registry/internal/source"
)

type RenderOptions struct {
	Filters []string
	Order   string
	Limit   int
}

type renderResult struct {
	Entity string `json:"entity"`
	Source string `json:"source"`
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{}

	cmd := &cobra.Command{
		Use:   "render <entity> <source> [args...]",
		Short: "Print the SQL an entrypoint compiles to",
		Long: `Render the statement produced by querying an entrypoint, with its
ordered parameters. Extra arguments are passed to call-parameterized
entrypoints positionally.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(rootOpts, opts, cmd, args)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Filters, "filter", "f", nil, "column filter as col=op.value (repeatable)")
	cmd.Flags().StringVar(&opts.Order, "order", "", "order as col[.desc]")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "row limit")

	return cmd
}

func runRender(rootOpts *RootOptions, opts *RenderOptions, cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry(cmd.Context(), rootOpts)
	if err != nil {
		return err
	}

	var call source.Call
	for _, a := range args[2:] {
		call.Args = append(call.Args, a)
	}
	b, err := reg.Query(args[0], args[1], call)
	if err != nil {
		return err
	}

	if opts.Order != "" || opts.Limit > 0 || len(opts.Filters) > 0 {
		in := query.ParamsInput{Order: opts.Order, Limit: opts.Limit, Filters: map[string]string{}}
		for _, f := range opts.Filters {
			col, val, ok := strings.Cut(f, "=")
			if !ok {
				return fmt.Errorf("invalid filter %q, expected col=op.value", f)
			}
			in.Filters[col] = val
		}
		params, err := query.ParseParams(b.Entity(), in)
		if err != nil {
			return err
		}
		if opts.Limit == 0 {
			params.Limit = 0
		}
		b = params.Apply(b)
	}

	sqlStr, sqlArgs, err := b.ToSql()
	if err != nil {
		return err
	}
	if sqlArgs == nil {
		sqlArgs = []any{}
	}

	out := cmd.OutOrStdout()
	if rootOpts.Format == "json" {
		return writeJSON(out, renderResult{Entity: args[0], Source: args[1], SQL: sqlStr, Params: sqlArgs})
	}
	fmt.Fprintln(out, sqlStr)
	dim.Fprintf(out, "-- params: %v\n", sqlArgs)
	return nil
}
