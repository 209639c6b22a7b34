package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCredentials(t *testing.T, dir, tokenURL string) string {
	t.Helper()
	path := filepath.Join(dir, "client_secret.json")
	body := fmt.Sprintf(`{"installed":{"client_id":"id","client_secret":"secret","auth_uri":"https://accounts.example/auth","token_uri":%q,"redirect_uris":["http://localhost"]}}`, tokenURL)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}
	return path
}

func TestAuthorizeSavesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "abc" {
			http.Error(w, "bad code", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{
			"access_token":  "access",
			"refresh_token": "refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	dir := t.TempDir()
	creds := writeCredentials(t, dir, srv.URL)
	tokenPath := filepath.Join(dir, "nested", "token.json")

	var shownURL string
	err := Authorize(context.Background(), creds, tokenPath, func(url string) (string, error) {
		shownURL = url
		return " abc\n", nil
	})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !strings.Contains(shownURL, "access_type=offline") || !strings.Contains(shownURL, "gmail.readonly") {
		t.Fatalf("consent url = %q", shownURL)
	}

	info, err := os.Stat(tokenPath)
	if err != nil {
		t.Fatalf("stat token: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("token mode = %v", info.Mode().Perm())
	}
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		t.Fatalf("read token: %v", err)
	}
	var saved map[string]any
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if saved["refresh_token"] != "refresh" {
		t.Fatalf("saved token = %v", saved)
	}
}

func TestAuthorizeRejectsEmptyCode(t *testing.T) {
	dir := t.TempDir()
	creds := writeCredentials(t, dir, "http://127.0.0.1:1/token")
	err := Authorize(context.Background(), creds, filepath.Join(dir, "token.json"), func(string) (string, error) {
		return "   ", nil
	})
	if err == nil || !strings.Contains(err.Error(), "authorization code required") {
		t.Fatalf("expected empty code error, got %v", err)
	}
}
