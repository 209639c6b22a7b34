package receipts

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a missing document, template or link.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateDocument reports content that is already stored.
	ErrDuplicateDocument = errors.New("duplicate document")
	// ErrAmbiguousTemplate reports a hash prefix that matches several templates.
	ErrAmbiguousTemplate = errors.New("ambiguous template hash")
)

// TransitionError reports a status change the lifecycle does not allow.
type TransitionError struct {
	DocumentID int64
	From       Status
	To         Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("document %d: cannot move from %s to %s", e.DocumentID, e.From, e.To)
}
