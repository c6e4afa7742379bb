// Package stringutils holds small text helpers shared across the memory core.
package stringutils

import "regexp"

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Truncate shortens a string to at most n runes, adding "..." if it was cut.
// Counting runes keeps the cut from splitting a UTF-8 sequence; transcripts
// are routinely non-ASCII.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// StripThink removes <think>…</think> blocks that some models embed.
func StripThink(s string) string {
	return thinkBlock.ReplaceAllString(s, "")
}
