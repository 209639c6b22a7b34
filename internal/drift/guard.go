package drift

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tally/internal/logging"
	"tally/internal/parser"
	"tally/internal/receipts"
	"tally/internal/services"
)

const stageName = "drift"

// TemplateStore is the subset of receipts.Store the guard needs.
type TemplateStore interface {
	EnsureTemplate(ctx context.Context, vendor, hash, parseVersion string, sampleDocumentID int64) (bool, error)
	GetTemplate(ctx context.Context, vendor, hash string) (*receipts.Template, error)
	ResolveTemplate(ctx context.Context, vendor, prefix string) (*receipts.Template, error)
	ListTemplates(ctx context.Context, statuses ...receipts.TemplateStatus) ([]*receipts.Template, error)
	ApproveTemplate(ctx context.Context, vendor, hash, notes string) ([]int64, error)
	RejectTemplate(ctx context.Context, vendor, hash, notes string) error
}

// Decision is the guard's verdict for one parse.
type Decision struct {
	Allowed bool
	// Created is set when this parse registered the layout for the first time.
	Created bool
	Status  receipts.TemplateStatus
	Reason  string
}

// Err returns nil for allowed parses and an ErrUnapprovedTemplate-marked error otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return services.Wrap(services.ErrUnapprovedTemplate, stageName, "", d.Reason, nil)
}

// Guard gates parses on approved templates.
type Guard struct {
	store  TemplateStore
	logger *slog.Logger
}

// New constructs a Guard over store.
func New(store TemplateStore, logger *slog.Logger) *Guard {
	return &Guard{store: store, logger: logging.NewComponentLogger(logger, "drift")}
}

// Check records unseen layouts and decides whether receipt may be accepted.
func (g *Guard) Check(ctx context.Context, doc *receipts.Document, receipt *parser.Receipt) (Decision, error) {
	logger := logging.WithContext(ctx, g.logger)
	hash := strings.TrimSpace(receipt.TemplateHash)
	if hash == "" {
		logging.WarnWithContext(logger, "no layout anchors recognized", "template_unrecognized",
			logging.String(logging.FieldVendor, doc.Vendor),
			logging.String(logging.FieldImpact, "document held for review"),
			logging.String(logging.FieldErrorHint, "inspect the extracted text with tally show"),
		)
		return Decision{Reason: "no template anchors recognized"}, nil
	}

	created, err := g.store.EnsureTemplate(ctx, doc.Vendor, hash, receipt.ParseVersion, doc.ID)
	if err != nil {
		return Decision{}, services.Wrap(services.ErrTransient, stageName, "register template", "", err)
	}
	if created {
		logging.WarnWithContext(logger, "new template detected", "template_new",
			logging.String(logging.FieldVendor, doc.Vendor),
			logging.String("template_hash", ShortHash(hash)),
			logging.Alert("template_drift"),
			logging.String(logging.FieldImpact, "documents with this layout are held for review"),
			logging.String(logging.FieldErrorHint, "tally template approve "+ShortHash(hash)),
		)
		return Decision{
			Created: true,
			Status:  receipts.TemplateNeedsReview,
			Reason:  fmt.Sprintf("new template %s for %s awaiting approval", ShortHash(hash), doc.Vendor),
		}, nil
	}

	tpl, err := g.store.GetTemplate(ctx, doc.Vendor, hash)
	if err != nil {
		return Decision{}, services.Wrap(services.ErrTransient, stageName, "load template", "", err)
	}
	decision := Decision{Status: tpl.Status}
	switch tpl.Status {
	case receipts.TemplateApproved:
		decision.Allowed = true
	case receipts.TemplateRejected:
		decision.Reason = fmt.Sprintf("template %s for %s was rejected", ShortHash(hash), doc.Vendor)
	default:
		decision.Reason = fmt.Sprintf("template %s for %s awaiting approval", ShortHash(hash), doc.Vendor)
	}
	logger.Debug("template decision",
		logging.Args(logging.DecisionAttrs("template_gate", string(tpl.Status), decision.Reason)...)...)
	return decision, nil
}

// Approve marks the template matching hashOrPrefix approved and requeues its
// blocked documents. An empty vendor searches all vendors.
func (g *Guard) Approve(ctx context.Context, vendor, hashOrPrefix, notes string) (*receipts.Template, []int64, error) {
	tpl, err := g.store.ResolveTemplate(ctx, vendor, hashOrPrefix)
	if err != nil {
		return nil, nil, err
	}
	requeued, err := g.store.ApproveTemplate(ctx, tpl.Vendor, tpl.Hash, notes)
	if err != nil {
		return nil, nil, err
	}
	g.logger.Info("template approved",
		logging.String(logging.FieldVendor, tpl.Vendor),
		logging.String("template_hash", ShortHash(tpl.Hash)),
		logging.Int("requeued", len(requeued)),
		logging.String(logging.FieldEventType, "template_approved"),
	)
	tpl.Status = receipts.TemplateApproved
	return tpl, requeued, nil
}

// Reject marks the template matching hashOrPrefix rejected. Its documents stay blocked.
func (g *Guard) Reject(ctx context.Context, vendor, hashOrPrefix, notes string) (*receipts.Template, error) {
	tpl, err := g.store.ResolveTemplate(ctx, vendor, hashOrPrefix)
	if err != nil {
		return nil, err
	}
	if err := g.store.RejectTemplate(ctx, tpl.Vendor, tpl.Hash, notes); err != nil {
		return nil, err
	}
	g.logger.Info("template rejected",
		logging.String(logging.FieldVendor, tpl.Vendor),
		logging.String("template_hash", ShortHash(tpl.Hash)),
		logging.String(logging.FieldEventType, "template_rejected"),
	)
	tpl.Status = receipts.TemplateRejected
	return tpl, nil
}

// Pending lists templates still awaiting review, oldest first.
func (g *Guard) Pending(ctx context.Context) ([]*receipts.Template, error) {
	return g.store.ListTemplates(ctx, receipts.TemplateNeedsReview)
}

// List returns templates in the given statuses, or all of them.
func (g *Guard) List(ctx context.Context, statuses ...receipts.TemplateStatus) ([]*receipts.Template, error) {
	return g.store.ListTemplates(ctx, statuses...)
}

// ShortHash abbreviates a fingerprint for messages and tables.
func ShortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
