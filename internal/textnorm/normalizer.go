// Package textnorm turns raw in-game text into clean, single-line strings
// suitable for speech and braille output. Game text arrives polluted with
// rich-text markup, escape sequences and arbitrary whitespace; Clean strips
// all of it and then applies caller-registered rewrite rules.
package textnorm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// ErrInvalidPattern is returned when a pattern rule fails to compile.
var ErrInvalidPattern = errors.New("invalid pattern rule")

var (
	// Rich-text tags the engine is known to emit, matched with any
	// attribute payload (<color=#ff0000>, <size=20>, <quad material=x>).
	knownTags = regexp.MustCompile(`(?i)</?(color|size|b|i|material|quad)([ =][^>]*)?>`)
	// Safety net for tags the list above misses.
	anyTag        = regexp.MustCompile(`<[^<>]*>`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

type literalRule struct {
	match       string
	replacement string
}

type patternRule struct {
	re          *regexp.Regexp
	replacement string
}

// Normalizer holds the mutable rewrite-rule registry. Rules are applied in
// registration order, literal rules before pattern rules. Safe for
// concurrent use.
type Normalizer struct {
	mu       sync.RWMutex
	literals []literalRule
	patterns []patternRule
}

func New() *Normalizer {
	return &Normalizer{}
}

// PatternOption configures a pattern rule at registration time.
type PatternOption func(*patternOptions)

type patternOptions struct {
	caseInsensitive bool
}

// CaseInsensitive makes the pattern match regardless of letter case.
func CaseInsensitive() PatternOption {
	return func(o *patternOptions) {
		o.caseInsensitive = true
	}
}

// AddReplacement registers a literal substring rule. Empty match strings
// are ignored.
func (n *Normalizer) AddReplacement(match, replacement string) {
	if match == "" {
		return
	}
	n.mu.Lock()
	n.literals = append(n.literals, literalRule{match: match, replacement: replacement})
	n.mu.Unlock()
}

// AddPatternReplacement registers a regular-expression rule. The
// replacement may reference capture groups ($1, ${name}). A pattern that
// fails to compile is rejected here and leaves the registry untouched.
func (n *Normalizer) AddPatternReplacement(pattern, replacement string, opts ...PatternOption) error {
	if pattern == "" {
		return nil
	}
	var options patternOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.caseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
	}
	n.mu.Lock()
	n.patterns = append(n.patterns, patternRule{re: re, replacement: replacement})
	n.mu.Unlock()
	return nil
}

// ClearReplacements drops all literal rules.
func (n *Normalizer) ClearReplacements() {
	n.mu.Lock()
	n.literals = nil
	n.mu.Unlock()
}

// ClearPatternReplacements drops all pattern rules.
func (n *Normalizer) ClearPatternReplacements() {
	n.mu.Lock()
	n.patterns = nil
	n.mu.Unlock()
}

// ClearAll drops every registered rule. Built-in tag stripping is not
// affected.
func (n *Normalizer) ClearAll() {
	n.mu.Lock()
	n.literals = nil
	n.patterns = nil
	n.mu.Unlock()
}

// Clean normalizes input for output: strips markup tags, unescapes
// backslash sequences, applies registered rules, and collapses all
// whitespace runs to single spaces. Blank input yields the empty string.
// The result is stable under a second Clean pass.
func (n *Normalizer) Clean(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	text := knownTags.ReplaceAllString(input, "")
	text = anyTag.ReplaceAllString(text, "")
	text = unescape(text)

	n.mu.RLock()
	literals := n.literals
	patterns := n.patterns
	n.mu.RUnlock()

	for _, rule := range literals {
		text = strings.ReplaceAll(text, rule.match, rule.replacement)
	}
	for _, rule := range patterns {
		text = rule.re.ReplaceAllString(text, rule.replacement)
	}

	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// CombineLines cleans each line independently and joins the non-blank
// results with single spaces.
func (n *Normalizer) CombineLines(lines ...string) string {
	var parts []string
	for _, line := range lines {
		if cleaned := n.Clean(line); cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	return strings.Join(parts, " ")
}

// unescape resolves backslash escapes in a single left-to-right pass.
// Resolving \\ in the same pass keeps an escaped backslash inert: \\n
// becomes the two characters \n, never a newline.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '"':
			b.WriteByte('"')
		case '\'':
			b.WriteByte('\'')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(c)
			continue
		}
		i++
	}
	return b.String()
}
