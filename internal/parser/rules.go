package parser

import (
	"fmt"
	"regexp"
	"sort"
)

// Strategy selects how a rule locates a value relative to its label.
type Strategy int

const (
	// Inline matches the value on the same line, right after the label.
	Inline Strategy = iota
	// ColonLine matches a line of the form ": value" starting within Window
	// characters after the label. Table cells often serialize labels and values onto
	// separate lines.
	ColonLine
	// Window matches the first occurrence of the value pattern when it starts
	// within Window characters after the label, or anywhere in the text when Label is empty.
	Window
)

func (s Strategy) String() string {
	switch s {
	case Inline:
		return "inline"
	case ColonLine:
		return "colon_line"
	case Window:
		return "window"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Field names a receipt value populated by rules.
type Field string

// Rule is one declarative extraction step. Label and Pattern are regular
// expression fragments; Pattern's capture groups are handed to the field's
// setter. Lower Priority runs first; the first rule that yields a value for a
// field wins.
type Rule struct {
	Field    Field
	Label    string
	Strategy Strategy
	Pattern  string
	Window   int
	Priority int
}

// Setter stores captured groups onto the receipt. groups[0] is the full match.
type Setter func(r *Receipt, groups []string) error

type compiledRule struct {
	Rule
	label *regexp.Regexp
	value *regexp.Regexp
}

// RuleSet is a compiled, ordered list of rules plus the setters they feed.
type RuleSet struct {
	rules    []compiledRule
	setters  map[Field]Setter
	required []Field
}

const separator = `[ \t]*[:.]?[ \t]*`

// NewRuleSet compiles rules. Every rule's field needs a setter and every
// required field needs at least one rule.
func NewRuleSet(rules []Rule, setters map[Field]Setter, required ...Field) (*RuleSet, error) {
	set := &RuleSet{setters: setters, required: required}
	covered := make(map[Field]bool, len(rules))
	for i, rule := range rules {
		if _, ok := setters[rule.Field]; !ok {
			return nil, fmt.Errorf("rule %d: no setter for field %q", i, rule.Field)
		}
		compiled, err := compileRule(rule)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Field, err)
		}
		set.rules = append(set.rules, compiled)
		covered[rule.Field] = true
	}
	for _, field := range required {
		if !covered[field] {
			return nil, fmt.Errorf("required field %q has no rule", field)
		}
	}
	sort.SliceStable(set.rules, func(i, j int) bool {
		return set.rules[i].Priority < set.rules[j].Priority
	})
	return set, nil
}

// MustRuleSet is NewRuleSet for package-level rule tables.
func MustRuleSet(rules []Rule, setters map[Field]Setter, required ...Field) *RuleSet {
	set, err := NewRuleSet(rules, setters, required...)
	if err != nil {
		panic(err)
	}
	return set
}

func compileRule(rule Rule) (compiledRule, error) {
	out := compiledRule{Rule: rule}
	if rule.Pattern == "" {
		return out, fmt.Errorf("empty value pattern")
	}
	var err error
	switch rule.Strategy {
	case Inline:
		if rule.Label == "" {
			return out, fmt.Errorf("inline rule needs a label")
		}
		out.value, err = regexp.Compile(`(?m)(?:` + rule.Label + `)` + separator + `(?:` + rule.Pattern + `)`)
	case ColonLine:
		if rule.Label == "" || rule.Window <= 0 {
			return out, fmt.Errorf("colon-line rule needs a label and a window")
		}
		out.value, err = regexp.Compile(`(?m)^[ \t]*:[ \t]*(?:` + rule.Pattern + `)[ \t]*$`)
	case Window:
		out.value, err = regexp.Compile(`(?m)` + rule.Pattern)
	default:
		return out, fmt.Errorf("unknown strategy %s", rule.Strategy)
	}
	if err != nil {
		return out, err
	}
	if rule.Label != "" && rule.Strategy != Inline {
		if out.label, err = regexp.Compile(`(?m)` + rule.Label); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (c compiledRule) find(text string) []string {
	if c.Strategy == Inline {
		return c.value.FindStringSubmatch(text)
	}
	region := text
	if c.label != nil {
		loc := c.label.FindStringIndex(text)
		if loc == nil {
			return nil
		}
		region = text[loc[1]:]
	}
	// The window bounds where a value may start, not where it may end, so a
	// value straddling the edge is taken whole instead of truncated.
	idx := c.value.FindStringSubmatchIndex(region)
	if idx == nil || (c.Window > 0 && idx[0] > c.Window) {
		return nil
	}
	groups := make([]string, len(idx)/2)
	for i := range groups {
		if start, end := idx[2*i], idx[2*i+1]; start >= 0 {
			groups[i] = region[start:end]
		}
	}
	return groups
}

// Apply runs the rules against text and returns the fields that received a
// value. Required fields that stay empty are reported on the receipt.
func (s *RuleSet) Apply(text string, r *Receipt) map[Field]bool {
	found := make(map[Field]bool)
	for _, rule := range s.rules {
		if found[rule.Field] {
			continue
		}
		groups := rule.find(text)
		if groups == nil {
			continue
		}
		if err := s.setters[rule.Field](r, groups); err != nil {
			r.AddError("invalid %s (%s rule): %v", rule.Field, rule.Strategy, err)
			continue
		}
		found[rule.Field] = true
	}
	for _, field := range s.required {
		if !found[field] {
			r.AddError("could not extract %s", field)
		}
	}
	return found
}
