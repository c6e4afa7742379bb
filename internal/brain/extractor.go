package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/driftwhale/driftwhale/internal/schema"
	"github.com/driftwhale/driftwhale/internal/shared/stringutils"
)

// noFactsMarker is the literal the model is told to reply with when a
// conversation yields nothing durable. Kept from the original prompt tuning;
// the parser also accepts the English form.
const noFactsMarker = "Brak nowych faktów"

// maxFactsPerSession bounds one extraction batch.
const maxFactsPerSession = 8

// Extraction is the result of one extraction call.
type Extraction struct {
	Updates       []schema.Fact
	ActiveContext string // parsed SUMMARY section; may be set even with no facts
}

// Extractor pulls categorized facts out of a finished conversation.
type Extractor struct {
	completer schema.Completer
	model     string
}

func NewExtractor(completer schema.Completer, model string) *Extractor {
	return &Extractor{completer: completer, model: model}
}

// Extract runs one completion call over the transcript and parses the
// response line by line. Unparseable lines are dropped silently; a failure
// of the call itself is returned so the caller can skip this boundary and
// retry at the next one.
func (e *Extractor) Extract(ctx context.Context, msgs []schema.Message, currentBrain string) (Extraction, error) {
	if len(msgs) == 0 {
		return Extraction{}, nil
	}

	prompt := buildExtractionPrompt(msgs, currentBrain)
	messages := schema.NewMessages(
		schema.NewSystemMessage("You maintain a long-term fact document about the user. "+
			"You extract only durable, useful facts and you never invent any."),
		schema.NewUserMessage(prompt),
	)

	resp, err := e.completer.Complete(ctx, messages, schema.NewChatOptions(e.model, 2048, 0.2))
	if err != nil {
		return Extraction{}, fmt.Errorf("extraction call: %w", err)
	}

	return ParseExtraction(stringutils.StripThink(resp.Text)), nil
}

func buildExtractionPrompt(msgs []schema.Message, currentBrain string) string {
	var b strings.Builder

	b.WriteString("## Known facts\n\n")
	if currentBrain == "" {
		b.WriteString("(none yet)\n")
	} else {
		b.WriteString(currentBrain)
		b.WriteString("\n")
	}

	b.WriteString("\n## Conversation\n\n")
	for _, msg := range msgs {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(msg.Role), stringutils.Truncate(content, 800))
	}

	b.WriteString(`
## Instructions

Extract new durable facts from this conversation. Rules:
- At most ` + fmt.Sprint(maxFactsPerSession) + ` facts; usually 5 or fewer. Quality over quantity.
- Write every fact in third person ("User ...").
- Skip any fact already present in the known facts above.
- NEVER extract secrets, passwords, API keys, tokens, or service configuration.
- One fact per line, in exactly one of these forms:

CORE: stable identity fact (name, family, work, health)
PREFERENCE: a like, dislike, or way the user wants things done
DECISION: a choice that was agreed in this conversation
PROJECT: current work or an in-flight topic
UPDATE [Section]: old fact fragment => corrected fact
DELETE [Section]: fragment of a fact that is no longer true

If there are no new facts, reply with exactly: ` + noFactsMarker + `

After the facts, add one final block:

SUMMARY: one short paragraph describing what the user is currently working on and where it stands.
`)

	return b.String()
}

// ParseExtraction parses the model response. Recognized category lines become
// facts (the first maxFactsPerSession of them); everything after a SUMMARY:
// label becomes the active context; anything else is ignored.
func ParseExtraction(text string) Extraction {
	var out Extraction
	var summaryLines []string
	inSummary := false

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		if line == "" {
			continue
		}

		if rest, ok := cutLabel(line, "SUMMARY"); ok {
			inSummary = true
			if rest != "" {
				summaryLines = append(summaryLines, rest)
			}
			continue
		}

		if fact, ok := parseFactLine(line); ok {
			inSummary = false
			if len(out.Updates) < maxFactsPerSession {
				out.Updates = append(out.Updates, fact)
			}
			continue
		}

		if strings.EqualFold(line, noFactsMarker) || strings.EqualFold(line, "No new facts") {
			continue
		}

		if inSummary {
			summaryLines = append(summaryLines, line)
		}
		// Anything else: dropped silently.
	}

	out.ActiveContext = strings.TrimSpace(strings.Join(summaryLines, "\n"))
	return out
}

// parseFactLine parses one "CATEGORY...: content" line.
func parseFactLine(line string) (schema.Fact, bool) {
	for _, cat := range []schema.FactCategory{
		schema.FactCore, schema.FactPreference, schema.FactDecision, schema.FactProject,
	} {
		if rest, ok := cutLabel(line, string(cat)); ok && rest != "" {
			return schema.Fact{Category: cat, Content: rest}, true
		}
	}

	if rest, section, ok := cutSectionLabel(line, string(schema.FactUpdate)); ok {
		oldPart, newPart, found := strings.Cut(rest, "=>")
		oldPart = strings.TrimSpace(oldPart)
		newPart = strings.TrimSpace(newPart)
		if !found || oldPart == "" || newPart == "" {
			return schema.Fact{}, false
		}
		return schema.Fact{
			Category:   schema.FactUpdate,
			Section:    section,
			OldContent: oldPart,
			Content:    newPart,
		}, true
	}

	if rest, section, ok := cutSectionLabel(line, string(schema.FactDelete)); ok && rest != "" {
		return schema.Fact{Category: schema.FactDelete, Section: section, Content: rest}, true
	}

	return schema.Fact{}, false
}

// cutLabel matches "LABEL: rest" case-insensitively.
func cutLabel(line, label string) (string, bool) {
	if len(line) <= len(label) || !strings.EqualFold(line[:len(label)], label) {
		return "", false
	}
	rest := line[len(label):]
	if !strings.HasPrefix(rest, ":") {
		return "", false
	}
	return strings.TrimSpace(rest[1:]), true
}

// cutSectionLabel matches "LABEL [Section]: rest" with the section optional.
func cutSectionLabel(line, label string) (rest, section string, ok bool) {
	if len(line) < len(label) || !strings.EqualFold(line[:len(label)], label) {
		return "", "", false
	}
	tail := strings.TrimSpace(line[len(label):])
	if strings.HasPrefix(tail, "[") {
		end := strings.Index(tail, "]")
		if end < 0 {
			return "", "", false
		}
		section = strings.TrimSpace(tail[1:end])
		tail = strings.TrimSpace(tail[end+1:])
	}
	if !strings.HasPrefix(tail, ":") {
		return "", "", false
	}
	return strings.TrimSpace(tail[1:]), section, true
}
