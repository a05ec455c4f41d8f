// Package cli implements sourcectl, the offline companion of the server:
// it renders entrypoints to SQL and checks sources files.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/atlekbai/source_registry/internal/db"
	"github.com/atlekbai/source_registry/internal/dialect"
	"github.com/atlekbai/source_registry/internal/schema"
	"github.com/atlekbai/source_registry/internal/source"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Sources       string
	Dialect       string
	Format        string // "json" | "text"
	Catalog       string // postgres url; entities come from the sources file when empty
	CatalogSchema string

	Fs afero.Fs
}

var ValidFormats = []string{"text", "json"}

var (
	okMark   = color.New(color.FgGreen, color.Bold)
	failMark = color.New(color.FgRed, color.Bold)
	dim      = color.New(color.FgCyan)
)

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Fs: afero.NewOsFs()}

	cmd := &cobra.Command{
		Use:           "sourcectl",
		Short:         "Inspect entity sources",
		Long:          "Render entrypoints of a sources file to SQL and check that every source fits its entity.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			_, err := dialect.ByName(opts.Dialect)
			return err
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Sources, "sources", "s", "sources.yaml", "sources file")
	cmd.PersistentFlags().StringVarP(&opts.Dialect, "dialect", "d", "postgres", "SQL dialect (postgres|sqlite|mysql)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Catalog, "catalog", "", "postgres url to load entities from")
	cmd.PersistentFlags().StringVar(&opts.CatalogSchema, "catalog-schema", "public", "schema read from --catalog")

	cmd.AddCommand(NewRenderCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewListCommand(opts))

	return cmd
}

// loadRegistry builds the registry described by the options, reading the
// catalog first when one is configured.
func loadRegistry(ctx context.Context, opts *RootOptions) (*source.Registry, error) {
	d, err := dialect.ByName(opts.Dialect)
	if err != nil {
		return nil, err
	}
	cache := schema.NewCache()
	if opts.Catalog != "" {
		pool, err := db.NewPool(ctx, opts.Catalog)
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		if err := cache.Load(ctx, pool, opts.CatalogSchema); err != nil {
			return nil, err
		}
	}
	return source.LoadRegistry(opts.Fs, opts.Sources, cache, d)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
