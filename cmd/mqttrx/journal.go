package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqttrx/internal/journal"
)

func newJournalCommand(a *app) *cobra.Command {
	var filter journal.Filter
	var kind string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print recorded client activity, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			filter.Kind = journal.Kind(kind)

			db, err := a.openJournalDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := journal.NewSQLiteRepository(db.DB).Recent(ctx, filter)
			if err != nil {
				return err
			}

			a.outMu.Lock()
			defer a.outMu.Unlock()

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tKIND\tTOPIC\tDETAIL\tCOUNT\tERROR")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					e.RecordedAt.Local().Format(time.DateTime), e.Kind, e.Topic, e.Detail, e.Count, e.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 0, "maximum entries (default 50)")
	cmd.Flags().StringVar(&kind, "kind", "", "only this kind: status, delivery or publish")
	cmd.Flags().StringVar(&filter.Topic, "topic", "", "only this topic")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
