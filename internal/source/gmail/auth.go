package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
)

// Authorize runs the one-time OAuth consent flow: prompt receives the consent
// URL and returns the authorization code the user pasted back. The resulting
// token is written to tokenPath with owner-only permissions.
func Authorize(ctx context.Context, credentialsPath, tokenPath string, prompt func(url string) (string, error)) error {
	cfg, err := clientConfig(credentialsPath)
	if err != nil {
		return err
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	}
	url := cfg.AuthCodeURL("tally", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	code, err := prompt(url)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("authorization code required")
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	return saveToken(tokenPath, tok)
}

func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return os.Rename(tmp, path)
}
