package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"tally/internal/config"
	"tally/internal/logging"
)

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func newTestSource(t *testing.T, handler http.Handler) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	svc, err := gmailapi.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewWithService(svc, config.Gmail{User: "me", PageSize: 2, DownloadConcurrency: 2}, logging.NewNop())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestListMessagesFollowsPages(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gmail/v1/users/me/labels":
			writeJSON(w, map[string]any{"labels": []map[string]string{
				{"id": "Label_1", "name": "Receipts/Carrefour"},
			}})
		case "/gmail/v1/users/me/messages":
			if got := r.URL.Query().Get("labelIds"); got != "Label_1" {
				t.Errorf("labelIds = %q", got)
			}
			if r.URL.Query().Get("pageToken") == "" {
				writeJSON(w, map[string]any{
					"messages":      []map[string]string{{"id": "m1"}, {"id": "m2"}},
					"nextPageToken": "p2",
				})
				return
			}
			writeJSON(w, map[string]any{"messages": []map[string]string{{"id": "m3"}}})
		default:
			http.NotFound(w, r)
		}
	}))

	ids, err := src.ListMessages(context.Background(), "receipts/carrefour")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if strings.Join(ids, ",") != "m1,m2,m3" {
		t.Fatalf("ids = %v", ids)
	}
	if _, err := src.ListMessages(context.Background(), "Receipts/Lulu"); err == nil {
		t.Fatal("expected unknown label error")
	}
}

func TestFetchMessageCollectsPartsAndFailures(t *testing.T) {
	received := time.Date(2026, 1, 21, 9, 30, 0, 0, time.UTC)
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gmail/v1/users/me/messages/m1":
			writeJSON(w, map[string]any{
				"id":           "m1",
				"threadId":     "t1",
				"internalDate": "1768987800000",
				"payload": map[string]any{
					"mimeType": "multipart/mixed",
					"headers": []map[string]string{
						{"name": "From", "value": "Carrefour UAE <noreply@carrefouruae.com>"},
						{"name": "Subject", "value": "Your invoice"},
					},
					"parts": []map[string]any{
						{"mimeType": "text/html", "body": map[string]any{"data": encode("<p>Thanks</p>")}},
						{"mimeType": "application/pdf", "filename": "invoice.pdf", "body": map[string]any{"attachmentId": "a1"}},
						{"mimeType": "application/pdf", "filename": "broken.pdf", "body": map[string]any{"attachmentId": "a2"}},
					},
				},
			})
		case "/gmail/v1/users/me/messages/m1/attachments/a1":
			writeJSON(w, map[string]any{"data": encode("%PDF-1.4 invoice")})
		case "/gmail/v1/users/me/messages/m1/attachments/a2":
			http.Error(w, `{"error":{"code":500,"message":"backend"}}`, http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))

	msg, err := src.FetchMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("FetchMessage: %v", err)
	}
	if msg.ThreadID != "t1" || msg.From != "noreply@carrefouruae.com" || msg.Subject != "Your invoice" {
		t.Fatalf("unexpected metadata %+v", msg)
	}
	if !msg.ReceivedAt.Equal(received) {
		t.Fatalf("received = %s", msg.ReceivedAt)
	}
	if len(msg.Attachments) != 2 {
		t.Fatalf("expected body plus one attachment, got %+v", msg.Attachments)
	}
	body, pdf := msg.Attachments[0], msg.Attachments[1]
	if !body.Body || body.MediaType != "text/html" || string(body.Data) != "<p>Thanks</p>" {
		t.Fatalf("unexpected body %+v", body)
	}
	if pdf.Filename != "invoice.pdf" || string(pdf.Data) != "%PDF-1.4 invoice" {
		t.Fatalf("unexpected attachment %+v", pdf)
	}
	if len(msg.Failures) != 1 || msg.Failures[0].Filename != "broken.pdf" {
		t.Fatalf("expected one failure, got %+v", msg.Failures)
	}
}

func TestDecodeDataAcceptsPadding(t *testing.T) {
	for _, in := range []string{encode("ab"), strings.TrimRight(encode("ab"), "=")} {
		out, err := decodeData(in)
		if err != nil || string(out) != "ab" {
			t.Fatalf("decodeData(%q) = %q, %v", in, out, err)
		}
	}
}
