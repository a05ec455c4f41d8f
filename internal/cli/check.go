package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atlekbai/source_registry/internal/source"
)

type checkResult struct {
	Entrypoint string `json:"entrypoint"`
	Status     string `json:"status"` // "ok" | "deferred" | "error"
	Error      string `json:"error,omitempty"`
}

func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that every source fits its entity",
		Long: `Load the sources file and compile every eager entrypoint against its
entity. Call-parameterized entrypoints can only be checked once called
and are reported as deferred.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}
}

func runCheck(rootOpts *RootOptions, cmd *cobra.Command) error {
	reg, err := loadRegistry(cmd.Context(), rootOpts)
	if err != nil {
		return err
	}

	eps := reg.All()
	results := make([]checkResult, len(eps))

	var g errgroup.Group
	g.SetLimit(8)
	for i, e := range eps {
		g.Go(func() error {
			results[i] = checkEntrypoint(e)
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, r := range results {
		if r.Status == "error" {
			failed++
		}
	}

	out := cmd.OutOrStdout()
	if rootOpts.Format == "json" {
		if err := writeJSON(out, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			switch r.Status {
			case "ok":
				okMark.Fprint(out, "✓ ")
				fmt.Fprintln(out, r.Entrypoint)
			case "deferred":
				dim.Fprint(out, "- ")
				fmt.Fprintf(out, "%s (call-parameterized)\n", r.Entrypoint)
			default:
				failMark.Fprint(out, "✗ ")
				fmt.Fprintf(out, "%s: %s\n", r.Entrypoint, r.Error)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d entrypoints failed", failed, len(results))
	}
	return nil
}

func checkEntrypoint(e *source.Entrypoint) checkResult {
	r := checkResult{Entrypoint: e.String(), Status: "ok"}
	if e.IsCallParameterized() {
		r.Status = "deferred"
		return r
	}
	b, err := e.Query()
	if err == nil {
		_, _, err = b.ToSql()
	}
	if err == nil {
		_, _, err = b.CountSql()
	}
	if err != nil {
		r.Status = "error"
		r.Error = err.Error()
	}
	return r
}
