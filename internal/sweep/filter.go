package sweep

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Predicate decides whether a message should be deleted.  It is a pure
// conjunction of a time threshold and an optional keyword set.
type Predicate struct {
	cutoff   time.Time
	keywords []string
	patterns []*regexp.Regexp
}

// NewPredicate compiles the keyword set.  A message matches when its
// timestamp is strictly before cutoff AND, if keywords are given, any keyword
// occurs in its text.  wholeWords requires matches to be bounded by non-word
// characters or string edges.
func NewPredicate(cutoff time.Time, keywords []string, caseSensitive, wholeWords bool) (*Predicate, error) {
	p := &Predicate{cutoff: cutoff, keywords: keywords}
	for _, kw := range keywords {
		expr := regexp.QuoteMeta(kw)
		if wholeWords {
			expr = `\b` + expr + `\b`
		}
		if !caseSensitive {
			expr = `(?i)` + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", kw, err)
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// Match reports whether m is selected, and why.
func (p *Predicate) Match(m Message) (Reason, bool) {
	if !m.Date.Before(p.cutoff) {
		return 0, false
	}
	if len(p.patterns) == 0 {
		return ByAge, true
	}
	// a message without text can never match a keyword.
	if m.Text == "" {
		return 0, false
	}
	for _, re := range p.patterns {
		if re.MatchString(m.Text) {
			return ByAge | ByKeyword, true
		}
	}
	return 0, false
}

// Cutoff returns the time threshold.
func (p *Predicate) Cutoff() time.Time { return p.cutoff }

// Describe returns a human readable description of the filter, suitable for
// confirmation prompts.
func (p *Predicate) Describe() string {
	desc := fmt.Sprintf("sent before %s", p.cutoff.Format("2006-01-02 15:04:05"))
	if len(p.keywords) > 0 {
		desc += fmt.Sprintf(", containing any of: %s", strings.Join(p.keywords, ", "))
	}
	return desc
}
