// Package gmail implements source.Source on top of the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"tally/internal/config"
	"tally/internal/logging"
	"tally/internal/source"
)

// Source reads labelled messages from one mailbox.
type Source struct {
	svc         *gmailapi.Service
	user        string
	pageSize    int64
	concurrency int
	logger      *slog.Logger
	labelIDs    map[string]string
}

// New builds a Gmail-backed source from the OAuth client secret and the
// token saved by Authorize.
func New(ctx context.Context, cfg config.Gmail, logger *slog.Logger) (*Source, error) {
	oauthCfg, err := clientConfig(cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}
	tok, err := loadToken(cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("load gmail token (run `tally auth gmail`): %w", err)
	}
	client := oauth2.NewClient(ctx, oauthCfg.TokenSource(ctx, tok))
	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewWithService(svc, cfg, logger), nil
}

// NewWithService wraps an existing API client.
func NewWithService(svc *gmailapi.Service, cfg config.Gmail, logger *slog.Logger) *Source {
	concurrency := cfg.DownloadConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Source{
		svc:         svc,
		user:        cfg.User,
		pageSize:    cfg.PageSize,
		concurrency: concurrency,
		logger:      logging.NewComponentLogger(logger, "gmail"),
	}
}

// ListMessages returns every message id under label, following pagination.
func (s *Source) ListMessages(ctx context.Context, label string) ([]string, error) {
	labelID, err := s.labelID(ctx, label)
	if err != nil {
		return nil, err
	}
	var ids []string
	call := s.svc.Users.Messages.List(s.user).LabelIds(labelID).MaxResults(s.pageSize)
	err = call.Pages(ctx, func(page *gmailapi.ListMessagesResponse) error {
		for _, msg := range page.Messages {
			ids = append(ids, msg.Id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages for %q: %w", label, err)
	}
	s.logger.Debug("messages listed", logging.String("label", label), logging.Int("count", len(ids)))
	return ids, nil
}

func (s *Source) labelID(ctx context.Context, label string) (string, error) {
	if s.labelIDs == nil {
		resp, err := s.svc.Users.Labels.List(s.user).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("list labels: %w", err)
		}
		s.labelIDs = make(map[string]string, len(resp.Labels))
		for _, l := range resp.Labels {
			s.labelIDs[strings.ToLower(l.Name)] = l.Id
		}
	}
	id, ok := s.labelIDs[strings.ToLower(label)]
	if !ok {
		return "", fmt.Errorf("gmail label %q not found", label)
	}
	return id, nil
}

// FetchMessage loads metadata, the HTML or text body, and every named
// attachment. Attachment downloads run concurrently; a failed download is
// recorded in Failures rather than failing the message.
func (s *Source) FetchMessage(ctx context.Context, id string) (*source.Message, error) {
	msg, err := s.svc.Users.Messages.Get(s.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	out := &source.Message{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				out.From = senderAddress(h.Value)
			case "subject":
				out.Subject = h.Value
			}
		}
	}

	var pending []*gmailapi.MessagePart
	walkParts(msg.Payload, func(part *gmailapi.MessagePart) {
		switch {
		case part.Filename != "" && part.Body != nil && (part.Body.AttachmentId != "" || part.Body.Data != ""):
			pending = append(pending, part)
		case part.Filename == "" && part.Body != nil && part.Body.Data != "" && isBodyType(part.MimeType):
			data, err := decodeData(part.Body.Data)
			if err != nil {
				out.Failures = append(out.Failures, source.AttachmentFailure{Filename: "body", Err: err})
				return
			}
			out.Attachments = append(out.Attachments, source.Attachment{
				Filename: "body" + bodyExt(part.MimeType), MediaType: source.NormalizeMediaType(part.MimeType), Data: data, Body: true,
			})
		}
	})

	results := make([]source.Attachment, len(pending))
	failures := make([]error, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, part := range pending {
		g.Go(func() error {
			data, err := s.attachmentData(gctx, id, part)
			if err != nil {
				failures[i] = err
				return nil
			}
			results[i] = source.Attachment{
				Filename:  part.Filename,
				MediaType: source.NormalizeMediaType(part.MimeType),
				Data:      data,
			}
			return nil
		})
	}
	_ = g.Wait()
	for i, part := range pending {
		if failures[i] != nil {
			out.Failures = append(out.Failures, source.AttachmentFailure{Filename: part.Filename, Err: failures[i]})
			continue
		}
		out.Attachments = append(out.Attachments, results[i])
	}
	return out, nil
}

func (s *Source) attachmentData(ctx context.Context, messageID string, part *gmailapi.MessagePart) ([]byte, error) {
	if part.Body.Data != "" {
		return decodeData(part.Body.Data)
	}
	body, err := s.svc.Users.Messages.Attachments.Get(s.user, messageID, part.Body.AttachmentId).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return decodeData(body.Data)
}

func walkParts(part *gmailapi.MessagePart, fn func(*gmailapi.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, child := range part.Parts {
		walkParts(child, fn)
	}
}

func isBodyType(mimeType string) bool {
	mt := source.NormalizeMediaType(mimeType)
	return mt == "text/html" || mt == "text/plain"
}

func bodyExt(mimeType string) string {
	if source.NormalizeMediaType(mimeType) == "text/html" {
		return ".html"
	}
	return ".txt"
}

// decodeData accepts both padded and unpadded base64url payloads.
func decodeData(data string) ([]byte, error) {
	trimmed := strings.TrimRight(data, "=")
	out, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode part data: %w", err)
	}
	return out, nil
}

func senderAddress(header string) string {
	addr, err := mail.ParseAddress(header)
	if err != nil {
		return strings.TrimSpace(header)
	}
	return addr.Address
}

func clientConfig(credentialsPath string) (*oauth2.Config, error) {
	raw, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read gmail credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(raw, gmailapi.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse gmail credentials: %w", err)
	}
	return cfg, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("token file holds no credentials")
	}
	return &tok, nil
}
