package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tally/internal/money"
	"tally/internal/receipts"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var showText bool

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Display one document with its parsed fields and line items",
		Args:  cobra.ExactArgs(1),
		RunE: ctx.action(func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			doc, err := store.GetDocument(cmd.Context(), id)
			if err != nil {
				return err
			}
			items, err := store.LineItems(cmd.Context(), id)
			if err != nil {
				return err
			}
			link, err := store.GetLink(cmd.Context(), id)
			if err != nil && !errors.Is(err, receipts.ErrNotFound) {
				return err
			}

			view := newDocumentView(doc)
			view.LineItems = newLineItemViews(items)
			if link != nil {
				view.Link = &linkView{TransactionID: link.TransactionID, MatchType: link.MatchType, Confidence: link.Confidence}
			}
			if jsonOutput {
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderFields([][]string{
				{"ID", formatDocumentID(doc.ID)},
				{"Vendor", doc.Vendor},
				{"Status", string(doc.Status)},
				{"Message", doc.ErrorMessage},
				{"File", doc.Filename},
				{"Type", doc.MediaType},
				{"Size", formatBytes(doc.SizeBytes)},
				{"From", doc.EmailFrom},
				{"Subject", doc.EmailSubject},
				{"Received", formatTime(doc.ReceivedAt)},
				{"Document type", doc.Header.DocType},
				{"Document number", doc.Header.DocumentNumber},
				{"Order number", doc.Header.OrderNumber},
				{"Date", view.DocumentDate},
				{"Store", doc.Header.StoreName},
				{"Subtotal", displayAmount(doc.Header.Subtotal, doc.Header.Currency)},
				{"Tax", displayAmount(doc.Header.TaxAmount, doc.Header.Currency)},
				{"Total", displayAmount(doc.Header.Total, doc.Header.Currency)},
				{"Payment", doc.Header.PaymentMethod},
				{"Template", doc.TemplateHash},
				{"Parser", doc.ParseVersion},
			}))

			if len(items) > 0 {
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.Itoa(item.LineNumber),
						displayDescription(item),
						item.QtyDelivered.String(),
						money.Format(item.UnitPriceIncl),
						money.Format(item.Discount),
						money.Format(item.Total),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"#", "Description", "Qty", "Unit", "Discount", "Total"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
			}

			if link != nil {
				fmt.Fprintf(out, "Linked to transaction %s (%s, confidence %.2f)\n", link.TransactionID, link.MatchType, link.Confidence)
			}

			if showText {
				text, err := store.Text(cmd.Context(), id)
				if err != nil && !errors.Is(err, receipts.ErrNotFound) {
					return err
				}
				for _, line := range renderSectionHeader("Extracted text", shouldColorize(out)) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, text)
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&showText, "text", false, "Include the extracted text")
	return cmd
}

func displayAmount(value decimal.NullDecimal, currency string) string {
	if !value.Valid {
		return ""
	}
	return money.Display(value.Decimal, currency)
}
