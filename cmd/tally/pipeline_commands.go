package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tally/internal/collector"
	"tally/internal/linker"
	"tally/internal/pipeline"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download new receipt documents from every configured source",
		RunE: ctx.action(func(cmd *cobra.Command, args []string) error {
			runCtx := ctx.runContext(cmd)
			runner, err := ctx.runner(runCtx)
			if err != nil {
				return err
			}
			summary, collectErr := runner.Collect(runCtx)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderCollectSummary(summary))

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			totals, err := store.Totals(runCtx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Stored documents: %d (%s), linked: %d\n", totals.Documents, formatBytes(totals.Bytes), totals.Linked)
			return collectErr
		}),
	}
}

func newParseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "parse",
		Short: "Extract, parse and validate every pending document",
		RunE: ctx.action(func(cmd *cobra.Command, args []string) error {
			runCtx := ctx.runContext(cmd)
			processor, err := ctx.processor(runCtx)
			if err != nil {
				return err
			}
			summary, err := processor.ProcessPending(runCtx)
			fmt.Fprintln(cmd.OutOrStdout(), renderParseSummary(summary))
			return err
		}),
	}
}

func newLinkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "link",
		Short: "Link accepted receipts to matching ledger transactions",
		RunE: ctx.action(func(cmd *cobra.Command, args []string) error {
			runCtx := ctx.runContext(cmd)
			lnk, err := ctx.linker()
			if err != nil {
				return err
			}
			summary, err := lnk.LinkUnlinked(runCtx)
			fmt.Fprintln(cmd.OutOrStdout(), renderLinkSummary(summary))
			return err
		}),
	}
}

func newCreateTransactionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "create-transactions",
		Short: "Create ledger transactions for accepted receipts with no match",
		RunE: ctx.action(func(cmd *cobra.Command, args []string) error {
			runCtx := ctx.runContext(cmd)
			lnk, err := ctx.linker()
			if err != nil {
				return err
			}
			summary, err := lnk.CreateForUnlinked(runCtx)
			fmt.Fprintln(cmd.OutOrStdout(), renderLinkSummary(summary))
			return err
		}),
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var createTransactions bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, parse and link in one locked pass (for cron)",
		RunE: ctx.action(func(cmd *cobra.Command, args []string) error {
			runCtx := ctx.runContext(cmd)
			runner, err := ctx.runner(runCtx)
			if err != nil {
				return err
			}
			summary, err := runner.Run(runCtx, pipeline.RunOptions{CreateTransactions: createTransactions})
			out := cmd.OutOrStdout()
			if errors.Is(err, pipeline.ErrRunInProgress) {
				fmt.Fprintln(out, "Another tally run holds the lock; exiting")
				return nil
			}
			if summary.RunID != "" {
				fmt.Fprintf(out, "Run %s\n", summary.RunID)
				fmt.Fprintln(out, renderCollectSummary(summary.Collect))
				fmt.Fprintln(out, renderParseSummary(summary.Parse))
				fmt.Fprintln(out, renderLinkSummary(summary.Link))
			}
			return err
		}),
	}

	cmd.Flags().BoolVar(&createTransactions, "create-transactions", false, "Create ledger transactions for receipts with no match")
	return cmd
}

func newReparseCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reparse ID",
		Short: "Return a document to pending and parse it again",
		Long: `Return a document to pending and parse it again.

Forcing a success document also drops its ledger link. Run link or
create-transactions afterwards to attach it again; a created transaction is
found again by its idempotency key.`,
		Args: cobra.ExactArgs(1),
		RunE: ctx.action(func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			runCtx := ctx.runContext(cmd)
			processor, err := ctx.processor(runCtx)
			if err != nil {
				return err
			}
			doc, err := processor.Reparse(runCtx, id, force)
			if err != nil {
				return fmt.Errorf("reparse document %d: %w", id, err)
			}
			writeOutcome(cmd.OutOrStdout(), doc.ID, string(doc.Status), doc.ErrorMessage)
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Also reparse skipped, failed and success documents")
	return cmd
}

func writeOutcome(out io.Writer, id int64, status, message string) {
	if message = strings.TrimSpace(message); message != "" {
		fmt.Fprintf(out, "Document #%d: %s (%s)\n", id, status, message)
		return
	}
	fmt.Fprintf(out, "Document #%d: %s\n", id, status)
}

func parseDocumentID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(arg), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid document id %q", arg)
	}
	return id, nil
}

func renderCollectSummary(s collector.Summary) string {
	return renderCounts([][]string{
		{"Messages seen", strconv.Itoa(s.MessagesSeen)},
		{"Messages already stored", strconv.Itoa(s.MessagesSkipped)},
		{"Messages failed", strconv.Itoa(s.MessagesFailed)},
		{"Documents saved", strconv.Itoa(s.DocumentsSaved)},
		{"Duplicates", strconv.Itoa(s.Duplicates)},
		{"Attachments ignored", strconv.Itoa(s.Ignored)},
		{"Attachment failures", strconv.Itoa(s.AttachmentFailures)},
		{"Invalid PDFs", strconv.Itoa(s.InvalidPDFs)},
	})
}

func renderParseSummary(s pipeline.Summary) string {
	return renderCounts([][]string{
		{"Pending parsed", strconv.Itoa(s.Considered)},
		{"Success", strconv.Itoa(s.Succeeded)},
		{"Needs review", strconv.Itoa(s.NeedsReview)},
		{"Skipped", strconv.Itoa(s.Skipped)},
		{"Failed", strconv.Itoa(s.Failed)},
	})
}

func renderLinkSummary(s linker.Summary) string {
	return renderCounts([][]string{
		{"Unlinked receipts", strconv.Itoa(s.Considered)},
		{"Matched", strconv.Itoa(s.Matched)},
		{"Created", strconv.Itoa(s.Created)},
		{"Reused", strconv.Itoa(s.Reused)},
		{"Unmatched", strconv.Itoa(s.Unmatched)},
		{"Failed", strconv.Itoa(s.Failed)},
	})
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
