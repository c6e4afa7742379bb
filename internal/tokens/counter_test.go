package tokens

import "testing"

func TestCount_Heuristic(t *testing.T) {
	e := &Estimator{}

	if got := e.Count(""); got != 0 {
		t.Errorf("empty text should cost 0 tokens, got %d", got)
	}
	if got := e.Count("ab"); got != 1 {
		t.Errorf("short text should cost at least 1 token, got %d", got)
	}
	if got := e.Count("12345678"); got != 2 {
		t.Errorf("8 chars should cost 2 tokens, got %d", got)
	}
}

func TestCount_CustomTokenizer(t *testing.T) {
	e := &Estimator{Tokenizer: func(string) int { return 42 }}
	if got := e.Count("anything"); got != 42 {
		t.Errorf("expected tokenizer result 42, got %d", got)
	}
}

func TestCount_TokenizerPanicFallsBack(t *testing.T) {
	e := &Estimator{Tokenizer: func(string) int { panic("boom") }}
	if got := e.Count("12345678"); got != 2 {
		t.Errorf("expected heuristic fallback 2, got %d", got)
	}
}

func TestCount_TokenizerZeroFallsBack(t *testing.T) {
	e := &Estimator{Tokenizer: func(string) int { return 0 }}
	if got := e.Count("12345678"); got != 2 {
		t.Errorf("expected heuristic fallback 2, got %d", got)
	}
}

func TestCountFunc(t *testing.T) {
	var c Counter = CountFunc(func(text string) int { return len(text) })
	if got := c.Count("abc"); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}
