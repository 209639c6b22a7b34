package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tally/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, credentials, tools and store connectivity",
		RunE: ctx.action(func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var targets preflight.Targets
			var openFailures []preflight.Result
			if store, err := ctx.openStore(); err != nil {
				openFailures = append(openFailures, preflight.Result{Name: "Document database", Detail: err.Error()})
			} else {
				targets.Store = store
			}
			if l, err := ctx.openLedger(); err != nil {
				openFailures = append(openFailures, preflight.Result{Name: "Ledger", Detail: err.Error()})
			} else {
				targets.Ledger = l
			}
			if blobs, err := ctx.openBlobs(cmd.Context()); err != nil {
				openFailures = append(openFailures, preflight.Result{Name: "Document storage", Detail: err.Error()})
			} else {
				targets.Blobs = blobs
			}

			results := preflight.RunAll(cmd.Context(), cfg, targets)
			results = replaceUnopened(results, openFailures)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Doctor", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range results {
				fmt.Fprintln(out, renderCheck(result, colorize))
			}
			if preflight.Failed(results) {
				return errors.New("one or more checks failed")
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		}),
	}
}

// replaceUnopened swaps "not opened" ping results for the error that kept the store closed.
func replaceUnopened(results, failures []preflight.Result) []preflight.Result {
	for _, failure := range failures {
		for i := range results {
			if results[i].Name == failure.Name {
				results[i] = failure
			}
		}
	}
	return results
}
