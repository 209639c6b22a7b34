package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

// Anchor is a structural label whose presence and position describe a
// vendor's layout.
type Anchor struct {
	Name    string
	Pattern *regexp.Regexp
}

// NewAnchor compiles an anchor; pattern must never match numeric payload.
func NewAnchor(name, pattern string) Anchor {
	return Anchor{Name: name, Pattern: regexp.MustCompile(pattern)}
}

// Fingerprint hashes the names of the anchors found in text, ordered by
// their first position. Values printed next to the anchors do not take part,
// so two receipts of one layout share a hash while adding, removing, or
// reordering a label changes it. It returns "" when no anchor is present.
func Fingerprint(text string, anchors []Anchor) (string, []string) {
	type hit struct {
		name string
		pos  int
	}
	hits := make([]hit, 0, len(anchors))
	for _, anchor := range anchors {
		loc := anchor.Pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		hits = append(hits, hit{name: anchor.Name, pos: loc[0]})
	}
	if len(hits) == 0 {
		return "", []string{}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return hits[i].name < hits[j].name
	})
	names := make([]string, len(hits))
	for i, h := range hits {
		names[i] = h.name
	}
	sum := sha256.Sum256([]byte(strings.Join(names, "\n")))
	return hex.EncodeToString(sum[:]), names
}
