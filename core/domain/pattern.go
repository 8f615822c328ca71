package domain

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Pattern is a compiled glob. '*' matches any run of characters including '/',
// '?' matches one character, and matching is case-sensitive.
type Pattern struct {
	raw string
	g   glob.Glob
}

func ParsePattern(raw string) (Pattern, error) {
	g, err := glob.Compile(raw)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid pattern %q: %w", raw, err)
	}
	return Pattern{raw: raw, g: g}, nil
}

// LiteralPattern matches s and nothing else.
func LiteralPattern(s string) Pattern {
	p, _ := ParsePattern(glob.QuoteMeta(s))
	p.raw = s
	return p
}

// ParsePatterns compiles every pattern, stopping at the first invalid one.
func ParsePatterns(raws []string) ([]Pattern, error) {
	patterns := make([]Pattern, 0, len(raws))
	for _, raw := range raws {
		p, err := ParsePattern(raw)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func (p Pattern) Match(s string) bool {
	// the zero Pattern matches everything
	if p.g == nil {
		return true
	}
	return p.g.Match(s)
}

func (p Pattern) String() string {
	return p.raw
}

// MatchAny reports whether s matches at least one pattern.
func MatchAny(patterns []Pattern, s string) bool {
	for _, p := range patterns {
		if p.Match(s) {
			return true
		}
	}
	return false
}
