// Package sanitize screens end-user queries before they reach the prompt
// pipeline. A query that matches a known injection pattern is rejected at
// the API boundary instead of being embedded into the assembled prompt.
//
// Pattern matching is a first line of defense only: crafted inputs can
// evade it, and homoglyph substitution is not detected.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

// Report describes the outcome of screening one input.
type Report struct {
	Clean    bool
	Patterns []string
}

// Screen matches user input against known prompt-injection patterns.
type Screen struct {
	patterns []*regexp.Regexp
}

var defaultPatterns = []string{
	// override the standing prompt
	`(?i)(ignore|disregard|forget|override)\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?|context)`,

	// role substitution
	`(?i)^(pretend|act|behave|imagine)\s+(you\s+are|to\s+be|as\s+if|like)`,
	`(?i)^you\s+are\s+now\s+a`,
	`(?i)^from\s+now\s+on,?\s+you\s+(are|will|must)`,

	// injected directives
	`(?i)^\s*(important|critical|urgent|system)\s*:\s*`,
	`(?i)^new\s+(instruction|task|rule)\s*:`,
	`(?i)^admin\s*(mode|override|command)\s*:`,

	// escaping the surrounding context
	`(?i)\]\s*\[\s*(system|assistant|instruction)`,
	`(?i)</?(system|instruction|prompt)>`,
	`(?i)---+\s*(system|new\s+instruction)`,

	// jailbreak phrasing
	`(?i)do\s+anything\s+now`,
	`(?i)jailbreak`,
	`(?i)bypass\s+(safety|filter|restrictions?)`,
}

// NewScreen builds a Screen with the default pattern set.
func NewScreen() *Screen {
	compiled := make([]*regexp.Regexp, 0, len(defaultPatterns))
	for _, p := range defaultPatterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return &Screen{patterns: compiled}
}

// Scan screens input and reports every pattern it matched.
func (s *Screen) Scan(input string) Report {
	normalized := normalize(input)

	var matched []string
	for _, re := range s.patterns {
		if re.MatchString(normalized) {
			matched = append(matched, re.String())
		}
	}
	return Report{Clean: len(matched) == 0, Patterns: matched}
}

// Allow reports whether input passes the screen.
func (s *Screen) Allow(input string) bool {
	return s.Scan(input).Clean
}

// normalize strips zero-width and combining characters and collapses
// whitespace, so spacing and invisible-character tricks cannot split a
// pattern across the match.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsSpace(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
