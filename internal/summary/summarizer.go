// Package summary turns a transcript into one structured, resumable text
// summary via a single completion call. The output is written so that an
// agent reading only the summary can continue the user's task without asking
// the user to repeat themselves.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/driftwhale/driftwhale/internal/schema"
	"github.com/driftwhale/driftwhale/internal/shared/stringutils"
)

const (
	// defaultTrigger is the fraction of the token budget at which
	// summarization becomes worthwhile.
	defaultTrigger = 0.9

	// maxUserMessageChars bounds each quoted user message in the prompt.
	maxUserMessageChars = 300
)

// sections is the fixed shape every summary follows. Order matters: the
// model fills them top to bottom and readers scan them the same way.
var sections = []string{
	"1. Goal - what the user ultimately wants",
	"2. Chronological trace - what happened, in order",
	"3. User messages - every user request, kept verbatim",
	"4. Files and tools touched - paths, tool names, artifacts",
	"5. Problems and fixes - errors hit and how they were resolved",
	"6. Decisions - choices made and their reasons",
	"7. Current work state - what is done, what is mid-flight",
	"8. Open threads - questions or tasks not yet addressed",
}

const emergencySection = "9. Task in progress - exactly what the agent was doing " +
	"when compression fired and the very next step it must take"

// Options tunes a single summarization call.
type Options struct {
	// Emergency marks compression forced by the hard token cap. It adds the
	// task-in-progress section and embeds ActiveTask into the prompt.
	Emergency bool

	// ActiveTask is caller-supplied in-flight task context (pending todos,
	// plan state). Only used under Emergency.
	ActiveTask string
}

// Summarizer builds progressive structured summaries.
type Summarizer struct {
	completer schema.Completer
	model     string
	trigger   float64
}

// New creates a Summarizer using the given completion backend. model may be
// empty to use the backend's default.
func New(completer schema.Completer, model string) *Summarizer {
	return &Summarizer{
		completer: completer,
		model:     model,
		trigger:   defaultTrigger,
	}
}

// ShouldSummarize reports whether current usage has crossed the trigger
// threshold of the budget.
func (s *Summarizer) ShouldSummarize(currentTokens, maxTokens int) bool {
	return float64(currentTokens) >= float64(maxTokens)*s.trigger
}

// Summarize produces a new summary superseding previousSummary. On any
// failure it returns an error and no summary; callers must treat that as
// "skip this compression attempt", never as a user-facing problem.
func (s *Summarizer) Summarize(ctx context.Context, msgs []schema.Message, previousSummary string, opts Options) (string, error) {
	if len(msgs) == 0 {
		return "", fmt.Errorf("summarize: empty transcript")
	}

	prompt := s.buildPrompt(msgs, previousSummary, opts)

	messages := schema.NewMessages(
		schema.NewSystemMessage("You compress conversation history for an AI assistant. "+
			"Your summary is the only record the assistant will have, so it must be complete "+
			"enough to resume work without re-asking the user anything."),
		schema.NewUserMessage(prompt),
	)

	resp, err := s.completer.Complete(ctx, messages, schema.NewChatOptions(s.model, 4096, 0.3))
	if err != nil {
		return "", fmt.Errorf("summarization call: %w", err)
	}

	text := strings.TrimSpace(stringutils.StripThink(resp.Text))
	if text == "" {
		return "", fmt.Errorf("summarization call: empty response")
	}
	return text, nil
}

func (s *Summarizer) buildPrompt(msgs []schema.Message, previousSummary string, opts Options) string {
	var b strings.Builder

	if previousSummary != "" {
		b.WriteString("## Existing summary\n\n")
		b.WriteString(previousSummary)
		b.WriteString("\n\nEXTEND this summary with the new conversation below. ")
		b.WriteString("Do not replace or drop anything it already records.\n\n")
	}

	b.WriteString("## Conversation\n\n")
	b.WriteString(formatTranscript(msgs))

	// User messages are quoted separately so their literal content is always
	// retrievable from the summary even when the transcript section is terse.
	if users := distinctUserMessages(msgs); len(users) > 0 {
		b.WriteString("\n## User messages (preserve verbatim)\n\n")
		for _, u := range users {
			b.WriteString("- ")
			b.WriteString(stringutils.Truncate(u, maxUserMessageChars))
			b.WriteString("\n")
		}
	}

	if tools := distinctToolNames(msgs); len(tools) > 0 {
		b.WriteString("\n## Tools used\n\n")
		b.WriteString(strings.Join(tools, ", "))
		b.WriteString("\n")
	}

	b.WriteString("\n## Required structure\n\nWrite the summary under these sections:\n\n")
	for _, sec := range sections {
		b.WriteString(sec)
		b.WriteString("\n")
	}

	if opts.Emergency {
		b.WriteString(emergencySection)
		b.WriteString("\n")
		if opts.ActiveTask != "" {
			b.WriteString("\n## Active task context\n\n")
			b.WriteString(opts.ActiveTask)
			b.WriteString("\n")
		}
		b.WriteString("\nCompression fired mid-task. Section 9 must state exactly what ")
		b.WriteString("the agent was doing and what it must do next.\n")
	}

	return b.String()
}

// formatTranscript renders messages as labelled lines for the prompt.
func formatTranscript(msgs []schema.Message) string {
	var lines []string
	for _, msg := range msgs {
		content := strings.TrimSpace(msg.Content)
		if content == "" && len(msg.ToolCalls) == 0 {
			continue
		}
		label := strings.ToUpper(msg.Role)
		if len(msg.ToolCalls) > 0 {
			names := make([]string, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				names[i] = tc.Name
			}
			label += " [calls: " + strings.Join(names, ", ") + "]"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, stringutils.Truncate(content, 1200)))
	}
	return strings.Join(lines, "\n")
}

// distinctUserMessages returns unique user-authored messages in order.
func distinctUserMessages(msgs []schema.Message) []string {
	seen := map[string]bool{}
	var out []string
	for _, msg := range msgs {
		if msg.Role != "user" {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" || seen[content] {
			continue
		}
		seen[content] = true
		out = append(out, content)
	}
	return out
}

// distinctToolNames returns unique tool names invoked, in first-use order.
func distinctToolNames(msgs []schema.Message) []string {
	seen := map[string]bool{}
	var out []string
	for _, msg := range msgs {
		for _, tc := range msg.ToolCalls {
			if tc.Name == "" || seen[tc.Name] {
				continue
			}
			seen[tc.Name] = true
			out = append(out, tc.Name)
		}
	}
	return out
}
