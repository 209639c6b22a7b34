package parser

import "strings"

// DocTypeRule maps case-insensitive keywords to a document type.
type DocTypeRule struct {
	DocType  string
	Keywords []string
}

// Classify returns the type of the first rule with a keyword present in text,
// or DocUnknown. Rule order is priority order: a tax invoice that carries a
// refund policy footer must list the invoice rule first.
func Classify(text string, rules []DocTypeRule) string {
	lower := strings.ToLower(text)
	for _, rule := range rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(lower, strings.ToLower(keyword)) {
				return rule.DocType
			}
		}
	}
	return DocUnknown
}
