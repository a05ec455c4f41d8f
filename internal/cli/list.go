package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type listEntry struct {
	Entity            string `json:"entity"`
	Name              string `json:"name"`
	CallParameterized bool   `json:"call_parameterized"`
	Default           bool   `json:"default"`
}

func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List registered entrypoints",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}

			var entries []listEntry
			for _, e := range reg.All() {
				def := reg.Default(e.Entity.Name)
				entries = append(entries, listEntry{
					Entity:            e.Entity.Name,
					Name:              e.Name,
					CallParameterized: e.IsCallParameterized(),
					Default:           def == e,
				})
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return writeJSON(out, entries)
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s.%s", e.Entity, e.Name)
				if e.Default {
					dim.Fprint(out, " (default)")
				}
				if e.CallParameterized {
					dim.Fprint(out, " (call-parameterized)")
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}
