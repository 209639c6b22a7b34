package parser

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Parser turns extracted document text into a Receipt. Parse never fails:
// problems are reported through Receipt.ParseErrors.
type Parser interface {
	Vendor() string
	Version() string
	Parse(text string) *Receipt
}

// MessageDater is implemented by parsers whose documents carry no date of
// their own and are dated by the message that delivered them.
type MessageDater interface {
	ApplyMessageDate(r *Receipt, received time.Time)
}

// ErrUnknownVendor reports a vendor tag with no registered parser.
var ErrUnknownVendor = errors.New("no parser registered for vendor")

// Registry maps vendor tags to parsers. It is immutable once built.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry indexes parsers by vendor tag. Duplicate tags are rejected.
func NewRegistry(parsers ...Parser) (*Registry, error) {
	index := make(map[string]Parser, len(parsers))
	for _, p := range parsers {
		vendor := strings.ToLower(strings.TrimSpace(p.Vendor()))
		if vendor == "" {
			return nil, errors.New("parser with empty vendor tag")
		}
		if _, exists := index[vendor]; exists {
			return nil, fmt.Errorf("duplicate parser for vendor %q", vendor)
		}
		index[vendor] = p
	}
	return &Registry{parsers: index}, nil
}

// DefaultRegistry returns the built-in vendor parsers.
func DefaultRegistry() *Registry {
	registry, err := NewRegistry(NewCarrefour(), NewCareem())
	if err != nil {
		panic(err)
	}
	return registry
}

// Lookup returns the parser for vendor.
func (r *Registry) Lookup(vendor string) (Parser, error) {
	p, ok := r.parsers[strings.ToLower(strings.TrimSpace(vendor))]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownVendor, vendor)
	}
	return p, nil
}

// Vendors lists registered vendor tags in sorted order.
func (r *Registry) Vendors() []string {
	vendors := make([]string, 0, len(r.parsers))
	for vendor := range r.parsers {
		vendors = append(vendors, vendor)
	}
	sort.Strings(vendors)
	return vendors
}
