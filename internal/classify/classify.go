package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// invisible lists format characters that render as nothing. They are not
// unicode.IsSpace but a cell containing only them looks blank to a user.
var invisible = map[rune]bool{
	'\u200b': true, // zero width space
	'\u200c': true, // zero width non-joiner
	'\u200d': true, // zero width joiner
	'\u2060': true, // word joiner
	'\ufeff': true, // byte order mark
	'\u00ad': true, // soft hyphen
}

type columnClass struct {
	ignore         bool
	blank          bool
	whitespaceOnly bool
	sentinels      map[string]bool
}

// Classifier is a compiled, immutable form of Rules.
type Classifier struct {
	caseInsensitive bool
	base            columnClass
	perColumn       map[string]columnClass
}

// New compiles rules into a Classifier. Sentinels are normalized once here.
func New(rules Rules) *Classifier {
	c := &Classifier{
		caseInsensitive: rules.CaseInsensitive,
		perColumn:       make(map[string]columnClass, len(rules.PerColumn)),
	}
	c.base = columnClass{
		blank:          rules.Blank,
		whitespaceOnly: rules.WhitespaceOnly,
		sentinels:      c.sentinelSet(rules.SentinelValues),
	}

	for name, rule := range rules.PerColumn {
		cc := columnClass{
			ignore:         rule.Ignore,
			blank:          c.base.blank,
			whitespaceOnly: c.base.whitespaceOnly,
			sentinels:      c.base.sentinels,
		}
		if rule.Blank != nil {
			cc.blank = *rule.Blank
		}
		if rule.WhitespaceOnly != nil {
			cc.whitespaceOnly = *rule.WhitespaceOnly
		}
		switch {
		case rule.ReplaceSentinels:
			cc.sentinels = c.sentinelSet(rule.SentinelValues)
		case len(rule.SentinelValues) > 0:
			cc.sentinels = c.sentinelSet(append(append([]string(nil), rules.SentinelValues...), rule.SentinelValues...))
		}
		c.perColumn[strings.ToLower(name)] = cc
	}
	return c
}

// IsEmpty classifies raw for column under rules. It compiles the rules on every call;
// hot paths should build a Classifier once with New.
func IsEmpty(raw, column string, rules Rules) bool {
	return New(rules).IsEmpty(raw, column)
}

// IsEmpty reports whether raw counts as an empty cell in column.
func (c *Classifier) IsEmpty(raw, column string) bool {
	cc := c.base
	if len(c.perColumn) > 0 {
		if override, ok := c.perColumn[strings.ToLower(column)]; ok {
			cc = override
		}
	}
	if cc.ignore {
		return false
	}

	if cc.blank && strings.TrimFunc(raw, unicode.IsSpace) == "" {
		return true
	}
	if cc.whitespaceOnly && strings.TrimFunc(raw, isWhitespaceLike) == "" {
		return true
	}
	if len(cc.sentinels) == 0 {
		return false
	}
	return cc.sentinels[c.normalize(raw)]
}

// normalize prepares a value for sentinel comparison.
func (c *Classifier) normalize(v string) string {
	v = norm.NFKC.String(v)
	v = strings.TrimFunc(v, isWhitespaceLike)
	if c.caseInsensitive {
		// A Caser carries state and must not be shared between goroutines.
		v = cases.Fold().String(v)
	}
	return v
}

func (c *Classifier) sentinelSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		n := c.normalize(v)
		if n == "" {
			continue
		}
		set[n] = true
	}
	return set
}

func isWhitespaceLike(r rune) bool {
	return unicode.IsSpace(r) || invisible[r]
}
