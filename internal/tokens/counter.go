// Package tokens estimates the token cost of text without touching the
// network. Counts are approximate: good enough for triggering compression
// thresholds, not for billing.
package tokens

// charsPerToken is the classic ~4-characters-per-token heuristic.
const charsPerToken = 4

// MessageOverhead accounts for role markers and separators per message.
const MessageOverhead = 4

// Counter estimates the token cost of a piece of text. Implementations must
// be deterministic and cheap.
type Counter interface {
	Count(text string) int
}

// CountFunc adapts a plain function to the Counter interface.
type CountFunc func(text string) int

func (f CountFunc) Count(text string) int { return f(text) }

// Estimator is the default Counter. When Tokenizer is set it is used first;
// any panic or non-positive result falls back to the length heuristic, so
// Count never fails regardless of the tokenizer's behaviour.
type Estimator struct {
	Tokenizer func(text string) int
}

func (e *Estimator) Count(text string) (n int) {
	if text == "" {
		return 0
	}
	if e != nil && e.Tokenizer != nil {
		defer func() {
			if recover() != nil || n <= 0 {
				n = heuristic(text)
			}
		}()
		n = e.Tokenizer(text)
		return n
	}
	return heuristic(text)
}

func heuristic(text string) int {
	n := len(text) / charsPerToken
	if n == 0 {
		n = 1
	}
	return n
}
