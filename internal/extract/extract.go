// Package extract turns stored document bytes into text for the parsers.
package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"tally/internal/services"
)

const stageName = "extract"

// Extractor converts one document into text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
	// Method names the extraction for the audit record.
	Method() string
}

// Set selects an extractor by media type.
type Set struct {
	byType map[string]Extractor
}

// NewSet maps each media type to its extractor.
func NewSet(pdf Extractor) *Set {
	html := HTMLBody{}
	return &Set{byType: map[string]Extractor{
		"application/pdf":          pdf,
		"application/octet-stream": pdf,
		"text/html":                html,
		"text/plain":               html,
	}}
}

// ByMediaType returns the extractor registered for mediaType, ignoring parameters.
func (s *Set) ByMediaType(mediaType string) (Extractor, error) {
	key := strings.ToLower(strings.TrimSpace(mediaType))
	if idx := strings.Index(key, ";"); idx >= 0 {
		key = strings.TrimSpace(key[:idx])
	}
	if ex, ok := s.byType[key]; ok && ex != nil {
		return ex, nil
	}
	return nil, services.Wrap(services.ErrUnsupportedDocument, stageName, "select extractor",
		fmt.Sprintf("no extractor for media type %q", mediaType), nil)
}

// HTMLBody passes decoded message bodies through unchanged. Vendor parsers
// handle markup and transfer encodings themselves.
type HTMLBody struct{}

func (HTMLBody) Method() string { return "html_body" }

func (HTMLBody) Extract(_ context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", services.Wrap(services.ErrCriticalExtraction, stageName, "html body", "empty body", nil)
	}
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "\uFFFD"), nil
	}
	return string(data), nil
}
