package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type reportView struct {
	Documents []documentView `json:"documents"`
	Templates []templateView `json:"templates"`
}

func newReportCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "List documents held for review and layouts awaiting approval",
		RunE: ctx.action(func(cmd *cobra.Command, args []string) error {
			processor, err := ctx.processor(cmd.Context())
			if err != nil {
				return err
			}
			report, err := processor.DriftReport(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				view := reportView{
					Documents: make([]documentView, len(report.Documents)),
					Templates: make([]templateView, len(report.Templates)),
				}
				for i, doc := range report.Documents {
					view.Documents[i] = newDocumentView(doc)
				}
				for i, tpl := range report.Templates {
					view.Templates[i] = newTemplateView(tpl)
				}
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Templates awaiting approval", colorize) {
				fmt.Fprintln(out, line)
			}
			if len(report.Templates) == 0 {
				fmt.Fprintln(out, "None")
			} else {
				fmt.Fprintln(out, renderTable(templateHeaders, templateRows(report.Templates), templateAligns))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Documents needing review", colorize) {
				fmt.Fprintln(out, line)
			}
			if len(report.Documents) == 0 {
				fmt.Fprintln(out, "None")
				return nil
			}
			rows := make([][]string, 0, len(report.Documents))
			for _, doc := range report.Documents {
				rows = append(rows, []string{
					strconv.FormatInt(doc.ID, 10),
					doc.Vendor,
					formatTime(doc.ReceivedAt),
					truncate(doc.ErrorMessage, 80),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Vendor", "Received", "Reason"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
			return nil
		}),
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
