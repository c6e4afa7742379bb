package window

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/driftwhale/driftwhale/internal/schema"
	"github.com/driftwhale/driftwhale/internal/summary"
	"github.com/driftwhale/driftwhale/internal/tokens"
)

// fakeSummarizer returns a fixed summary, or fails when failing is set.
type fakeSummarizer struct {
	calls     int
	failing   bool
	lastOpts  summary.Options
	summaries []string
}

func (f *fakeSummarizer) Summarize(_ context.Context, msgs []schema.Message, previous string, opts summary.Options) (string, error) {
	f.calls++
	f.lastOpts = opts
	if f.failing {
		return "", fmt.Errorf("summarizer down")
	}
	text := fmt.Sprintf("summary #%d of %d messages", f.calls, len(msgs))
	f.summaries = append(f.summaries, text)
	return text, nil
}

func charCounter() tokens.Counter {
	return tokens.CountFunc(func(text string) int { return len(text) })
}

func pad(n int) string { return strings.Repeat("x", n) }

func addTurn(w *Window, userChars, assistantChars int) {
	w.Add(context.Background(), schema.NewUserMessage(pad(userChars)))
	w.Add(context.Background(), schema.NewAssistantMessage(pad(assistantChars), nil, nil))
}

func TestAdd_StaysUnderBudget(t *testing.T) {
	w := New(Config{MaxTokens: 1000}, charCounter(), &fakeSummarizer{})

	for i := 0; i < 30; i++ {
		addTurn(w, 80, 80)
		if got := w.TokenCount(); got > 1000 {
			t.Fatalf("token count %d exceeds hard cap after turn %d", got, i)
		}
	}
	if w.Compressions() == 0 {
		t.Error("expected at least one summarization while filling the window")
	}
}

func TestAdd_HardCapWithFailingSummarizer(t *testing.T) {
	w := New(Config{MaxTokens: 1000}, charCounter(), &fakeSummarizer{failing: true})

	// One oversized turn forces trim, summarize (fails), then eviction.
	addTurn(w, 600, 600)
	if got := w.TokenCount(); got > 1000 {
		t.Fatalf("token count %d exceeds hard cap despite eviction fallback", got)
	}
}

func TestAdd_SingleOversizedMessageEvicted(t *testing.T) {
	w := New(Config{MaxTokens: 1000}, charCounter(), &fakeSummarizer{failing: true})

	w.Add(context.Background(), schema.NewUserMessage(pad(1100)))
	if got := w.TokenCount(); got > 1000 {
		t.Fatalf("token count %d exceeds hard cap", got)
	}
	if w.Len() != 0 {
		t.Errorf("expected oversized message evicted, %d messages remain", w.Len())
	}
}

func TestCompressionNeeded(t *testing.T) {
	w := New(Config{MaxTokens: 1000}, charCounter(), nil)

	if got := w.CompressionNeeded(); got != LevelNone {
		t.Errorf("empty window should need no compression, got %v", got)
	}

	w.Add(context.Background(), schema.NewUserMessage(pad(700)))
	if got := w.CompressionNeeded(); got != LevelTrim {
		t.Errorf("at 70%% usage expected trim, got %v", got)
	}

	w.Add(context.Background(), schema.NewUserMessage(pad(200)))
	if got := w.CompressionNeeded(); got != LevelSummarize {
		t.Errorf("above 90%% usage expected summarize, got %v", got)
	}
}

func TestCompress_KeepsRecentMessages(t *testing.T) {
	fs := &fakeSummarizer{}
	w := New(Config{MaxTokens: 10000, RecentKeep: 4}, charCounter(), fs)

	for i := 0; i < 6; i++ {
		addTurn(w, 50, 50)
	}

	w.Compress(context.Background(), true)

	if w.Len() != 4 {
		t.Errorf("expected 4 recent messages kept, got %d", w.Len())
	}
	if w.Summary() == "" {
		t.Error("expected a stored summary after compression")
	}
}

func TestMessagesForAPI_Headers(t *testing.T) {
	fs := &fakeSummarizer{}
	w := New(Config{MaxTokens: 10000, SystemPrompt: "base prompt"}, charCounter(), fs)
	addTurn(w, 50, 50)

	msgs := w.MessagesForAPI().Messages
	if len(msgs) != 3 || msgs[0].Role != "system" {
		t.Fatalf("expected system+2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "base prompt" {
		t.Errorf("unexpected system content %q", msgs[0].Content)
	}

	w.performSummarization(context.Background(), false)
	sys := w.MessagesForAPI().Messages[0].Content
	if !strings.Contains(sys, "base prompt") || !strings.Contains(sys, w.Summary()) {
		t.Error("system message should carry both the base prompt and the summary")
	}
	if !strings.Contains(sys, "## Conversation summary") {
		t.Error("soft compression should use the plain summary header")
	}
	if strings.Contains(sys, "automatic compression") {
		t.Error("soft compression must not use the emergency header")
	}

	addTurn(w, 50, 50)
	w.performSummarization(context.Background(), true)
	sys = w.MessagesForAPI().Messages[0].Content
	if !strings.Contains(sys, "automatic compression") {
		t.Error("emergency compression should switch to the emergency header")
	}
}

func TestEmergencyPassesActiveTask(t *testing.T) {
	fs := &fakeSummarizer{}
	w := New(Config{MaxTokens: 10000}, charCounter(), fs)
	w.SetActiveTaskFunc(func() string { return "migrating the database" })
	addTurn(w, 50, 50)

	w.Compress(context.Background(), true)
	if !fs.lastOpts.Emergency {
		t.Error("expected emergency flag on the summarizer call")
	}
	if fs.lastOpts.ActiveTask != "migrating the database" {
		t.Errorf("expected active task forwarded, got %q", fs.lastOpts.ActiveTask)
	}

	// A later soft summarization must not consult the task supplier.
	addTurn(w, 50, 50)
	w.performSummarization(context.Background(), false)
	if fs.lastOpts.Emergency {
		t.Error("soft summarization should not be flagged emergency")
	}
	if fs.lastOpts.ActiveTask != "" {
		t.Error("active task must only be consulted under emergency")
	}
}

func TestObserver(t *testing.T) {
	fs := &fakeSummarizer{}
	w := New(Config{MaxTokens: 10000}, charCounter(), fs)

	var gotEmergency bool
	var gotText string
	w.SetObserver(func(emergency bool, text string) {
		gotEmergency = emergency
		gotText = text
	})

	addTurn(w, 50, 50)
	w.Compress(context.Background(), true)

	if !gotEmergency || gotText == "" {
		t.Errorf("observer not invoked correctly: emergency=%v text=%q", gotEmergency, gotText)
	}
}

func TestReset_DiscardsStaleState(t *testing.T) {
	fs := &fakeSummarizer{}
	w := New(Config{MaxTokens: 10000}, charCounter(), fs)
	addTurn(w, 50, 50)
	w.Compress(context.Background(), false)

	w.Reset()
	if w.Len() != 0 || w.Summary() != "" {
		t.Error("reset should clear messages and summary")
	}
}

func TestEvictOldest_TakesPairs(t *testing.T) {
	w := New(Config{MaxTokens: 100000}, charCounter(), nil)
	ctx := context.Background()
	w.Add(ctx, schema.NewUserMessage("first question"))
	w.Add(ctx, schema.NewAssistantMessage("first answer", nil, nil))
	w.Add(ctx, schema.NewUserMessage("second question"))

	w.mu.Lock()
	n := w.evictOldestLocked()
	w.mu.Unlock()

	if n != 2 {
		t.Fatalf("expected user+assistant pair evicted, got %d", n)
	}
	if got := w.Messages(); len(got) != 1 || got[0].Content != "second question" {
		t.Errorf("unexpected remaining buffer: %+v", got)
	}
}

func TestEvictOldest_TakesToolResults(t *testing.T) {
	w := New(Config{MaxTokens: 100000}, charCounter(), nil)
	ctx := context.Background()

	calls := []schema.ToolCall{{ID: "c1", Name: "search"}, {ID: "c2", Name: "search"}}
	w.Add(ctx, schema.NewUserMessage("look this up"))
	w.Add(ctx, schema.NewAssistantMessage("", calls, nil))
	w.Add(ctx, schema.NewToolResultMessage("c1", "search", "result one"))
	w.Add(ctx, schema.NewToolResultMessage("c2", "search", "result two"))
	w.Add(ctx, schema.NewUserMessage("thanks"))

	w.mu.Lock()
	n := w.evictOldestLocked()
	w.mu.Unlock()

	if n != 4 {
		t.Fatalf("expected user+assistant+2 tool results evicted, got %d", n)
	}
	if got := w.Messages(); len(got) != 1 || got[0].Content != "thanks" {
		t.Errorf("unexpected remaining buffer: %+v", got)
	}
}

func TestTrimOldToolResults(t *testing.T) {
	w := New(Config{MaxTokens: 100000, RecentKeep: 2}, charCounter(), nil)
	ctx := context.Background()

	big := pad(2000)
	w.Add(ctx, schema.NewToolResultMessage("c1", "fetch", big))
	w.Add(ctx, schema.NewUserMessage("ok"))
	w.Add(ctx, schema.NewUserMessage("recent one"))
	w.Add(ctx, schema.NewUserMessage("recent two"))

	report := w.TrimOldToolResults(2)
	if report.Count != 1 {
		t.Fatalf("expected 1 trimmed result, got %d", report.Count)
	}
	if report.BytesSaved <= 0 {
		t.Error("expected positive bytes saved")
	}
	if report.Items[0].Tool != "fetch" || report.Items[0].OriginalSize != len(big) {
		t.Errorf("unexpected report item: %+v", report.Items[0])
	}

	msgs := w.Messages()
	if !strings.Contains(msgs[0].Content, "[tool result trimmed") {
		t.Error("trimmed message should carry the trim marker")
	}

	// Second pass must not re-trim.
	if again := w.TrimOldToolResults(2); again.Count != 0 {
		t.Errorf("expected idempotent trim, got %d new trims", again.Count)
	}
}
