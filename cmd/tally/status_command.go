package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tally/internal/receipts"
)

type statusView struct {
	Documents        map[string]int `json:"documents"`
	Total            int            `json:"total"`
	StoredBytes      int64          `json:"stored_bytes"`
	Linked           int            `json:"linked"`
	PendingTemplates int            `json:"pending_templates"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show document counts per status",
		RunE: ctx.action(func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			counts, err := store.CountByStatus(cmd.Context())
			if err != nil {
				return err
			}
			totals, err := store.Totals(cmd.Context())
			if err != nil {
				return err
			}
			pending, err := store.ListTemplates(cmd.Context(), receipts.TemplateNeedsReview)
			if err != nil {
				return err
			}

			view := statusView{
				Documents:        make(map[string]int, len(counts)),
				Total:            totals.Documents,
				StoredBytes:      totals.Bytes,
				Linked:           totals.Linked,
				PendingTemplates: len(pending),
			}
			for _, status := range receipts.AllStatuses() {
				view.Documents[string(status)] = counts[status]
			}
			if jsonOutput {
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Documents", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, status := range receipts.AllStatuses() {
				count := counts[status]
				fmt.Fprintln(out, renderStatusLine(string(status), documentStatusKind(status, count), strconv.Itoa(count), colorize))
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderCounts([][]string{
				{"Stored documents", strconv.Itoa(totals.Documents)},
				{"Stored size", formatBytes(totals.Bytes)},
				{"Linked to ledger", strconv.Itoa(totals.Linked)},
				{"Templates awaiting approval", strconv.Itoa(len(pending))},
			}))
			return nil
		}),
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
