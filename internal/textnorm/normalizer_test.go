package textnorm

import (
	"errors"
	"testing"
)

func TestCleanBlankInput(t *testing.T) {
	n := New()
	for _, input := range []string{"", "   ", "\n\t "} {
		if got := n.Clean(input); got != "" {
			t.Fatalf("Clean(%q) = %q, want empty", input, got)
		}
	}
}

func TestCleanStripsKnownTags(t *testing.T) {
	n := New()
	if got := n.Clean("<color=#ff0000>Red</color>"); got != "Red" {
		t.Fatalf("expected %q, got %q", "Red", got)
	}
	if got := n.Clean("<b>Line</b> <i>two</i>"); got != "Line two" {
		t.Fatalf("expected %q, got %q", "Line two", got)
	}
	if got := n.Clean("<SIZE=20>big</SIZE>"); got != "big" {
		t.Fatalf("tag stripping should be case-insensitive, got %q", got)
	}
}

func TestCleanStripsUnknownTags(t *testing.T) {
	n := New()
	if got := n.Clean("<sprite name=icon>Press A"); got != "Press A" {
		t.Fatalf("expected unknown tag removed, got %q", got)
	}
}

func TestCleanCollapsesWhitespace(t *testing.T) {
	n := New()
	if got := n.Clean("a   b\n\nc"); got != "a b c" {
		t.Fatalf("expected %q, got %q", "a b c", got)
	}
}

func TestCleanUnescapesSequences(t *testing.T) {
	n := New()
	// Source-level \\n is a single backslash followed by n: unescaped to a
	// newline, then collapsed to a space.
	if got := n.Clean("line1\\nline2"); got != "line1 line2" {
		t.Fatalf("expected %q, got %q", "line1 line2", got)
	}
	if got := n.Clean(`say \"hi\"`); got != `say "hi"` {
		t.Fatalf("expected quote unescape, got %q", got)
	}
}

func TestCleanEscapedBackslashStaysLiteral(t *testing.T) {
	n := New()
	// Backslash-backslash-n must resolve to the two characters backslash-n,
	// not to a newline.
	if got := n.Clean(`path\\name`); got != `path\name` {
		t.Fatalf("expected %q, got %q", `path\name`, got)
	}
	if got := n.Clean(`a\\nb`); got != `a\nb` {
		t.Fatalf("expected %q, got %q", `a\nb`, got)
	}
}

func TestCleanIdempotent(t *testing.T) {
	n := New()
	inputs := []string{
		"<color=#00ff00>Hello</color>   world",
		"plain text",
		"a\tb\nc",
	}
	for _, input := range inputs {
		once := n.Clean(input)
		if twice := n.Clean(once); twice != once {
			t.Fatalf("Clean not idempotent for %q: %q vs %q", input, once, twice)
		}
	}
}

func TestLiteralRulesAppliedInOrder(t *testing.T) {
	n := New()
	n.AddReplacement("HP", "health points")
	n.AddReplacement("health points", "hit points")
	if got := n.Clean("HP restored"); got != "hit points restored" {
		t.Fatalf("expected chained literal rules, got %q", got)
	}
}

func TestLiteralRulesBeforePatternRules(t *testing.T) {
	n := New()
	if err := n.AddPatternReplacement(`\bgold\b`, "coins"); err != nil {
		t.Fatalf("add pattern: %v", err)
	}
	n.AddReplacement("Au", "gold")
	if got := n.Clean("Au earned"); got != "coins earned" {
		t.Fatalf("literal output should feed pattern rules, got %q", got)
	}
}

func TestPatternRuleCaptureGroups(t *testing.T) {
	n := New()
	if err := n.AddPatternReplacement(`(\d+)G`, "$1 gold"); err != nil {
		t.Fatalf("add pattern: %v", err)
	}
	if got := n.Clean("You found 50G"); got != "You found 50 gold" {
		t.Fatalf("expected capture reference, got %q", got)
	}
}

func TestPatternRuleCaseInsensitiveOption(t *testing.T) {
	n := New()
	if err := n.AddPatternReplacement("mr\\.", "Mister", CaseInsensitive()); err != nil {
		t.Fatalf("add pattern: %v", err)
	}
	if got := n.Clean("MR. Wright"); got != "Mister Wright" {
		t.Fatalf("expected case-insensitive rule, got %q", got)
	}
}

func TestInvalidPatternRejected(t *testing.T) {
	n := New()
	err := n.AddPatternReplacement("([unclosed", "x")
	if !errors.Is(err, ErrInvalidPattern) {
		t.Fatalf("expected ErrInvalidPattern, got %v", err)
	}
	// Registry must be untouched.
	if got := n.Clean("([unclosed"); got != "([unclosed" {
		t.Fatalf("registry corrupted by failed registration: %q", got)
	}
}

func TestEmptyRuleIgnored(t *testing.T) {
	n := New()
	n.AddReplacement("", "x")
	if err := n.AddPatternReplacement("", "x"); err != nil {
		t.Fatalf("empty pattern should be a no-op, got %v", err)
	}
	if got := n.Clean("abc"); got != "abc" {
		t.Fatalf("expected input unchanged, got %q", got)
	}
}

func TestClearRules(t *testing.T) {
	n := New()
	n.AddReplacement("foo", "bar")
	if err := n.AddPatternReplacement("ba+z", "qux"); err != nil {
		t.Fatalf("add pattern: %v", err)
	}
	n.ClearReplacements()
	if got := n.Clean("foo baaz"); got != "foo qux" {
		t.Fatalf("expected only literal rules cleared, got %q", got)
	}
	n.ClearAll()
	if got := n.Clean("foo baaz"); got != "foo baaz" {
		t.Fatalf("expected all rules cleared, got %q", got)
	}
}

func TestCombineLines(t *testing.T) {
	n := New()
	if got := n.CombineLines("Line 1", "<b>Line 2</b>", ""); got != "Line 1 Line 2" {
		t.Fatalf("expected %q, got %q", "Line 1 Line 2", got)
	}
	if got := n.CombineLines(); got != "" {
		t.Fatalf("expected empty result for no lines, got %q", got)
	}
}
