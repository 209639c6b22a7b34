package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tally/internal/source/gmail"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to document sources",
	}
	authCmd.AddCommand(newAuthGmailCommand(ctx))
	return authCmd
}

func newAuthGmailCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "gmail",
		Short: "Run the Gmail OAuth consent flow and store the token",
		RunE: ctx.action(func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			reader := bufio.NewReader(cmd.InOrStdin())
			prompt := func(url string) (string, error) {
				fmt.Fprintln(out, "Open this URL in a browser and grant read-only access:")
				fmt.Fprintln(out, url)
				fmt.Fprint(out, "Authorization code: ")
				code, err := reader.ReadString('\n')
				if err != nil && err != io.EOF {
					return "", fmt.Errorf("read authorization code: %w", err)
				}
				return strings.TrimSpace(code), nil
			}
			if err := gmail.Authorize(cmd.Context(), cfg.Gmail.CredentialsPath, cfg.Gmail.TokenPath, prompt); err != nil {
				return fmt.Errorf("authorize gmail: %w", err)
			}
			fmt.Fprintf(out, "Saved token to %s\n", cfg.Gmail.TokenPath)
			return nil
		}),
	}
}
