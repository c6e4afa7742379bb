// Package window holds the live conversation buffer under a hard token
// budget. Compression runs as an ordered pipeline of increasingly expensive
// reducers: a free structural trim of old tool results first, a semantic
// summarization second, and forced eviction of the oldest messages as the
// exception-free last resort.
package window

import (
	"context"
	"log/slog"
	"sync"

	"github.com/driftwhale/driftwhale/internal/schema"
	"github.com/driftwhale/driftwhale/internal/summary"
	"github.com/driftwhale/driftwhale/internal/tokens"
)

// Level classifies how much compression current usage calls for.
type Level int

const (
	LevelNone Level = iota
	LevelTrim
	LevelSummarize
)

func (l Level) String() string {
	switch l {
	case LevelTrim:
		return "trim"
	case LevelSummarize:
		return "summarize"
	default:
		return "none"
	}
}

const (
	defaultTrimThreshold      = 0.70
	defaultSummarizeThreshold = 0.90
	defaultRecentKeep         = 4
)

// Summarizer is the slice of summary.Summarizer the window needs.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []schema.Message, previousSummary string, opts summary.Options) (string, error)
}

// Observer is notified after each successful summarization.
type Observer func(emergency bool, summaryText string)

// Config sets the window's budget and thresholds. Zero values take defaults.
type Config struct {
	MaxTokens          int     // hard cap; usage never exceeds this after Add returns
	TrimThreshold      float64 // fraction of MaxTokens where trimming starts (0.70)
	SummarizeThreshold float64 // fraction where summarization starts (0.90)
	RecentKeep         int     // messages never touched by trim/summarize (4)
	SystemPrompt       string  // base system prompt, counted against the budget
	ToolSchemaText     string  // serialized tool schemas; token cost cached once
}

func (c *Config) applyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 8000
	}
	if c.TrimThreshold <= 0 {
		c.TrimThreshold = defaultTrimThreshold
	}
	if c.SummarizeThreshold <= 0 {
		c.SummarizeThreshold = defaultSummarizeThreshold
	}
	if c.RecentKeep <= 0 {
		c.RecentKeep = defaultRecentKeep
	}
}

// Window owns one conversation's live message buffer for the lifetime of a
// session. It is safe for concurrent use, though the design keeps one
// compression in flight at a time per conversation.
type Window struct {
	cfg        Config
	counter    tokens.Counter
	summarizer Summarizer

	mu               sync.Mutex
	msgs             []schema.Message
	summary          string
	emergency        bool // last compression was emergency
	compressions     int
	toolSchemaTokens int
	gen              int // bumped on Reset; stale summarizations are discarded
	closed           bool

	observer   Observer
	activeTask func() string // in-flight task context, consulted under emergency
}

// New creates a Window. summarizer may be nil; the window then degrades to
// trim + eviction only.
func New(cfg Config, counter tokens.Counter, summarizer Summarizer) *Window {
	cfg.applyDefaults()
	if counter == nil {
		counter = &tokens.Estimator{}
	}
	w := &Window{
		cfg:        cfg,
		counter:    counter,
		summarizer: summarizer,
	}
	w.toolSchemaTokens = counter.Count(cfg.ToolSchemaText)
	return w
}

// SetObserver registers a callback invoked after each successful summarization.
func (w *Window) SetObserver(fn Observer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observer = fn
}

// SetActiveTaskFunc registers the supplier of in-flight task context used
// under emergency compression.
func (w *Window) SetActiveTaskFunc(fn func() string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.activeTask = fn
}

// Add appends a message and enforces the hard cap. It never returns with
// usage above MaxTokens and never panics: if trimming and summarization both
// fail to reclaim enough, the oldest messages are evicted in user+assistant
// pairs until the budget holds.
func (w *Window) Add(ctx context.Context, msg schema.Message) {
	w.mu.Lock()
	w.msgs = append(w.msgs, msg)
	over := w.tokenCountLocked() > w.cfg.MaxTokens
	w.mu.Unlock()

	if !over {
		return
	}

	slog.Warn("window: hard cap exceeded, compressing",
		"tokens", w.TokenCount(), "max", w.cfg.MaxTokens)

	report := w.TrimOldToolResults(w.cfg.RecentKeep)
	if report.Count > 0 {
		slog.Info("window: trimmed old tool results",
			"count", report.Count, "bytes_saved", report.BytesSaved)
	}
	if w.TokenCount() <= w.cfg.MaxTokens {
		return
	}

	w.performSummarization(ctx, true)

	w.mu.Lock()
	defer w.mu.Unlock()
	evicted := 0
	for w.tokenCountLocked() > w.cfg.MaxTokens && len(w.msgs) > 0 {
		evicted += w.evictOldestLocked()
	}
	if evicted > 0 {
		slog.Warn("window: force-evicted oldest messages", "count", evicted)
	}
}

// CompressionNeeded classifies current usage against the two thresholds.
func (w *Window) CompressionNeeded() Level {
	used := float64(w.TokenCount())
	max := float64(w.cfg.MaxTokens)
	switch {
	case used >= max*w.cfg.SummarizeThreshold:
		return LevelSummarize
	case used >= max*w.cfg.TrimThreshold:
		return LevelTrim
	default:
		return LevelNone
	}
}

// Compress runs the reducer pipeline: each stage is tried only when the
// previous one left usage above the summarize threshold. isEmergency forces
// the summarize stage regardless of thresholds.
func (w *Window) Compress(ctx context.Context, isEmergency bool) {
	w.TrimOldToolResults(w.cfg.RecentKeep)

	stillOver := float64(w.TokenCount()) >= float64(w.cfg.MaxTokens)*w.cfg.SummarizeThreshold
	if stillOver || isEmergency {
		w.performSummarization(ctx, isEmergency)
	}
}

// performSummarization asks the summarizer to fold the buffer into the
// stored summary. On success the buffer shrinks to the last RecentKeep
// messages. On failure the state is left untouched; callers still enforce
// the hard cap independently.
func (w *Window) performSummarization(ctx context.Context, isEmergency bool) bool {
	w.mu.Lock()
	if w.closed || w.summarizer == nil || len(w.msgs) == 0 {
		w.mu.Unlock()
		return false
	}
	gen := w.gen
	msgs := make([]schema.Message, len(w.msgs))
	copy(msgs, w.msgs)
	previous := w.summary
	taskFn := w.activeTask
	w.mu.Unlock()

	activeTask := ""
	if isEmergency && taskFn != nil {
		activeTask = taskFn()
	}

	text, err := w.summarizer.Summarize(ctx, msgs, previous, summary.Options{
		Emergency:  isEmergency,
		ActiveTask: activeTask,
	})
	if err != nil {
		slog.Warn("window: summarization failed, skipping", "err", err)
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.gen != gen {
		// The session moved on while the call was in flight. Applying the
		// result now would clobber a state it no longer describes.
		slog.Debug("window: discarding stale summarization result")
		return false
	}

	keep := w.cfg.RecentKeep
	if keep > len(w.msgs) {
		keep = len(w.msgs)
	}
	tail := make([]schema.Message, keep)
	copy(tail, w.msgs[len(w.msgs)-keep:])
	w.msgs = tail
	w.summary = text
	w.emergency = isEmergency
	w.compressions++

	if w.observer != nil {
		w.observer(isEmergency, text)
	}
	slog.Info("window: summarized", "emergency", isEmergency,
		"kept_messages", keep, "tokens", w.tokenCountLocked())
	return true
}

// MessagesForAPI produces the message list to send to the completion
// service: one synthesized system message followed by the live buffer with
// tool-call and reasoning fields forwarded untouched.
func (w *Window) MessagesForAPI() schema.Messages {
	w.mu.Lock()
	defer w.mu.Unlock()

	sys := w.cfg.SystemPrompt
	if w.summary != "" {
		header := softCompressionHeader
		if w.emergency {
			header = emergencyCompressionHeader
		}
		if sys != "" {
			sys += "\n\n"
		}
		sys += header + "\n\n" + w.summary
	}

	out := schema.NewMessages()
	if sys != "" {
		out.AddSystem(sys)
	}
	out.Messages = append(out.Messages, w.msgs...)
	return out
}

const softCompressionHeader = "## Conversation summary\n\n" +
	"Earlier parts of this conversation were summarized to stay within the " +
	"context budget. The summary below supersedes the dropped messages:"

const emergencyCompressionHeader = "## Conversation summary (automatic compression)\n\n" +
	"The context limit was exceeded mid-task and the conversation was " +
	"automatically compressed. Resume the in-progress task described below; " +
	"do not ask the user to repeat anything:"

// TokenCount returns the current estimated usage: system prompt, summary,
// every message's content, tool-call arguments and reasoning text, plus the
// cached tool-schema cost.
func (w *Window) TokenCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tokenCountLocked()
}

func (w *Window) tokenCountLocked() int {
	total := w.counter.Count(w.cfg.SystemPrompt) + w.toolSchemaTokens
	if w.summary != "" {
		total += w.counter.Count(w.summary)
	}
	for _, msg := range w.msgs {
		total += w.counter.Count(msg.Content) + tokens.MessageOverhead
		for _, tc := range msg.ToolCalls {
			total += w.counter.Count(tc.ArgumentsText())
		}
		if msg.ReasoningContent != nil {
			total += w.counter.Count(*msg.ReasoningContent)
		}
	}
	return total
}

// Messages returns a snapshot of the live buffer.
func (w *Window) Messages() []schema.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]schema.Message, len(w.msgs))
	copy(out, w.msgs)
	return out
}

// Summary returns the current stored summary, if any.
func (w *Window) Summary() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summary
}

// Compressions returns how many summarizations have been applied.
func (w *Window) Compressions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.compressions
}

// Len returns the number of live messages.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

// Reset clears the buffer and summary for a fresh session. Any in-flight
// summarization result will be discarded when it lands.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = nil
	w.summary = ""
	w.emergency = false
	w.gen++
}

// Close marks the window abandoned (new session, agent switch). Late
// completion results are dropped rather than applied to stale state.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// evictOldestLocked removes the oldest message span and returns how many
// messages went. A user message takes its following assistant reply along,
// and an assistant message with tool calls takes its matching tool results,
// so the remaining buffer never starts with an orphaned reply or result.
func (w *Window) evictOldestLocked() int {
	if len(w.msgs) == 0 {
		return 0
	}

	n := 1
	// Leading tool results (already orphaned) go as one contiguous run.
	if w.msgs[0].Role == "tool" {
		for n < len(w.msgs) && w.msgs[n].Role == "tool" {
			n++
		}
		w.msgs = w.msgs[n:]
		return n
	}

	if w.msgs[0].Role == "user" && len(w.msgs) > 1 && w.msgs[1].Role == "assistant" {
		n = 2
	}

	// Extend across tool results belonging to the last evicted assistant.
	if last := w.msgs[n-1]; last.Role == "assistant" && len(last.ToolCalls) > 0 {
		ids := make(map[string]bool, len(last.ToolCalls))
		for _, tc := range last.ToolCalls {
			ids[tc.ID] = true
		}
		for n < len(w.msgs) && w.msgs[n].Role == "tool" && ids[w.msgs[n].ToolCallID] {
			n++
		}
	}

	w.msgs = w.msgs[n:]
	return n
}
