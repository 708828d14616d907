package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/quorum/internal/output"
	"github.com/dshills/quorum/internal/store"
)

func (a *app) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse saved review reports",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent reviews, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return a.failErr(err)
			}
			defer st.Close()

			entries, err := st.List(cmd.Context(), limit)
			if err != nil {
				return a.fail(ExitRuntimeError, err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.stdout, "No reviews saved yet.")
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWHEN\tMODE\tMODEL\tFILES\tCOMMENTS\t")
			for _, e := range entries {
				comments := fmt.Sprint(e.TotalComments)
				if e.Partial {
					comments += " (partial)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t\n",
					e.ID, humanize.Time(e.CreatedAt), e.Mode, e.Model, e.FilesReviewed, comments)
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of reviews to list")

	var format string
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return a.failErr(err)
			}
			defer st.Close()

			report, err := st.Get(cmd.Context(), args[0])
			if err != nil {
				return a.fail(ExitRuntimeError, err)
			}
			if err := output.WriteReport(report, format, "", a.stdout); err != nil {
				return a.fail(ExitRuntimeError, err)
			}
			return nil
		},
	}
	show.Flags().StringVar(&format, "format", "text", "Output format (text, json, markdown, sarif)")

	cmd.AddCommand(list, show)
	return cmd
}

func (a *app) openStore() (*store.Store, error) {
	cfg, err := a.loadConfig(nil)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening review history: %w", err)
	}
	return st, nil
}
