package services

import (
	"errors"
	"fmt"
	"strings"

	"tally/internal/receipts"
)

var (
	ErrExternalTool        = errors.New("external tool error")
	ErrConfiguration       = errors.New("configuration error")
	ErrNotFound            = errors.New("not found")
	ErrTimeout             = errors.New("timeout")
	ErrTransient           = errors.New("transient failure")
	ErrUnsupportedDocument = errors.New("unsupported document type")
	ErrCriticalExtraction  = errors.New("critical extraction failure")
	ErrUnapprovedTemplate  = errors.New("unapproved template")
	ErrReconciliation      = errors.New("reconciliation mismatch")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a per-document error to the status the pipeline should
// persist. Anything unclassified fails the current attempt.
func FailureStatus(err error) receipts.Status {
	switch {
	case errors.Is(err, ErrUnsupportedDocument):
		return receipts.StatusSkipped
	case errors.Is(err, ErrUnapprovedTemplate), errors.Is(err, ErrReconciliation):
		return receipts.StatusNeedsReview
	default:
		return receipts.StatusFailed
	}
}

// Message strips the marker prefix so the stored document message reads as
// the stage detail.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{
		ErrExternalTool, ErrConfiguration, ErrNotFound, ErrTimeout, ErrTransient,
		ErrUnsupportedDocument, ErrCriticalExtraction, ErrUnapprovedTemplate,
		ErrReconciliation,
	} {
		if prefix := marker.Error() + ": "; strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
