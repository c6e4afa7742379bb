package stringutils

import (
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("short input must pass through, got %q", got)
	}
	if got := Truncate("abcdefgh", 5); got != "abcde..." {
		t.Errorf("got %q, want abcde...", got)
	}
}

func TestTruncateIsRuneSafe(t *testing.T) {
	s := "zażółć gęślą jaźń i jeszcze trochę"
	got := Truncate(s, 10)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a UTF-8 sequence: %q", got)
	}
	if got != "zażółć gęś..." {
		t.Errorf("got %q, want a 10-rune prefix", got)
	}

	// Byte length over n but rune length within it: no cut.
	if got := Truncate("żółw", 4); got != "żółw" {
		t.Errorf("4-rune string must pass through at n=4, got %q", got)
	}
}

func TestStripThink(t *testing.T) {
	in := "<think>working\nit out</think>Paris.<think>more</think>"
	if got := StripThink(in); got != "Paris." {
		t.Errorf("got %q, want Paris.", got)
	}
	if got := StripThink("no blocks here"); got != "no blocks here" {
		t.Errorf("got %q", got)
	}
}
