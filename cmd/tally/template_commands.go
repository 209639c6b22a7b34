package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tally/internal/drift"
	"tally/internal/receipts"
)

func newTemplateCommand(ctx *commandContext) *cobra.Command {
	templateCmd := &cobra.Command{
		Use:   "template",
		Short: "Review document layouts held by the drift guard",
	}

	templateCmd.AddCommand(newTemplateApproveCommand(ctx))
	templateCmd.AddCommand(newTemplateRejectCommand(ctx))
	templateCmd.AddCommand(newTemplateListCommand(ctx))

	return templateCmd
}

func newTemplateApproveCommand(ctx *commandContext) *cobra.Command {
	var vendor string
	var notes string

	cmd := &cobra.Command{
		Use:   "approve HASH",
		Short: "Approve a layout and requeue the documents it blocked",
		Long:  "Approve the template whose fingerprint starts with HASH. Documents held under it return to pending; run parse to re-validate them.",
		Args:  cobra.ExactArgs(1),
		RunE: ctx.action(func(cmd *cobra.Command, args []string) error {
			guard, err := ctx.guard()
			if err != nil {
				return err
			}
			tpl, requeued, err := guard.Approve(ctx.runContext(cmd), strings.TrimSpace(vendor), args[0], notes)
			if err != nil {
				return fmt.Errorf("approve template: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Approved template %s for %s; requeued %d document(s)\n",
				drift.ShortHash(tpl.Hash), tpl.Vendor, len(requeued))
			return nil
		}),
	}

	cmd.Flags().StringVar(&vendor, "vendor", "", "Restrict the hash lookup to one vendor")
	cmd.Flags().StringVar(&notes, "notes", "", "Review notes stored with the template")
	return cmd
}

func newTemplateRejectCommand(ctx *commandContext) *cobra.Command {
	var vendor string
	var notes string

	cmd := &cobra.Command{
		Use:   "reject HASH",
		Short: "Reject a layout; its documents stay held for review",
		Args:  cobra.ExactArgs(1),
		RunE: ctx.action(func(cmd *cobra.Command, args []string) error {
			guard, err := ctx.guard()
			if err != nil {
				return err
			}
			tpl, err := guard.Reject(ctx.runContext(cmd), strings.TrimSpace(vendor), args[0], notes)
			if err != nil {
				return fmt.Errorf("reject template: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rejected template %s for %s\n", drift.ShortHash(tpl.Hash), tpl.Vendor)
			return nil
		}),
	}

	cmd.Flags().StringVar(&vendor, "vendor", "", "Restrict the hash lookup to one vendor")
	cmd.Flags().StringVar(&notes, "notes", "", "Review notes stored with the template")
	return cmd
}

func newTemplateListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known layouts",
		RunE: ctx.action(func(cmd *cobra.Command, args []string) error {
			statuses, err := parseTemplateStatuses(statusFilter)
			if err != nil {
				return err
			}
			guard, err := ctx.guard()
			if err != nil {
				return err
			}
			templates, err := guard.List(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			if jsonOutput {
				views := make([]templateView, len(templates))
				for i, tpl := range templates {
					views[i] = newTemplateView(tpl)
				}
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			if len(templates) == 0 {
				fmt.Fprintln(out, "No templates recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(templateHeaders, templateRows(templates), templateAligns))
			return nil
		}),
	}

	cmd.Flags().StringSliceVar(&statusFilter, "status", nil, "Filter by status (needs_review, approved, rejected)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func parseTemplateStatuses(values []string) ([]receipts.TemplateStatus, error) {
	statuses := make([]receipts.TemplateStatus, 0, len(values))
	for _, value := range values {
		switch status := receipts.TemplateStatus(strings.ToLower(strings.TrimSpace(value))); status {
		case receipts.TemplateNeedsReview, receipts.TemplateApproved, receipts.TemplateRejected:
			statuses = append(statuses, status)
		default:
			return nil, fmt.Errorf("unknown template status %q", value)
		}
	}
	return statuses, nil
}
