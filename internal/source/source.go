// Package source describes the mailbox boundary documents are collected from.
package source

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Attachment is one downloadable part of a message. Body marks the message's
// own HTML or text body, surfaced as a pseudo-attachment.
type Attachment struct {
	Filename  string
	MediaType string
	Data      []byte
	Body      bool
}

// AttachmentFailure records a part that could not be downloaded.
type AttachmentFailure struct {
	Filename string
	Err      error
}

func (f AttachmentFailure) Error() string {
	return fmt.Sprintf("attachment %q: %v", f.Filename, f.Err)
}

func (f AttachmentFailure) Unwrap() error { return f.Err }

// Message is one fetched mailbox message.
type Message struct {
	ID          string
	ThreadID    string
	Label       string
	From        string
	Subject     string
	ReceivedAt  time.Time
	Attachments []Attachment
	Failures    []AttachmentFailure
}

// Source enumerates and fetches messages under a label.
type Source interface {
	ListMessages(ctx context.Context, label string) ([]string, error)
	FetchMessage(ctx context.Context, id string) (*Message, error)
}

// NormalizeMediaType lowercases mediaType and drops parameters.
func NormalizeMediaType(mediaType string) string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = strings.TrimSpace(mt[:idx])
	}
	return mt
}
