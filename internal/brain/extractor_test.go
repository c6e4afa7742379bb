package brain

import (
	"context"
	"strings"
	"testing"

	"github.com/driftwhale/driftwhale/internal/schema"
)

type fakeCompleter struct {
	lastPrompt string
	reply      string
}

func (f *fakeCompleter) Complete(_ context.Context, messages schema.Messages, _ schema.ChatOptions) (schema.Completion, error) {
	f.lastPrompt = messages.Messages[len(messages.Messages)-1].Content
	return schema.Completion{Text: f.reply}, nil
}

func (f *fakeCompleter) DefaultModel() string { return "fake" }

func TestParseExtraction_Categories(t *testing.T) {
	out := ParseExtraction(`CORE: Has a dog named Rex
PREFERENCE: Prefers short answers
DECISION: Blog moves to Hugo
PROJECT: Writing the migration script`)

	if len(out.Updates) != 4 {
		t.Fatalf("expected 4 facts, got %d", len(out.Updates))
	}
	wantCats := []schema.FactCategory{
		schema.FactCore, schema.FactPreference, schema.FactDecision, schema.FactProject,
	}
	for i, want := range wantCats {
		if out.Updates[i].Category != want {
			t.Errorf("fact %d: expected category %s, got %s", i, want, out.Updates[i].Category)
		}
	}
	if out.Updates[0].Content != "Has a dog named Rex" {
		t.Errorf("unexpected content %q", out.Updates[0].Content)
	}
}

func TestParseExtraction_UpdateAndDelete(t *testing.T) {
	out := ParseExtraction(`UPDATE [User]: dog named Rex => Has a labrador named Rex
DELETE [Decisions]: moves to Hugo`)

	if len(out.Updates) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(out.Updates))
	}

	up := out.Updates[0]
	if up.Category != schema.FactUpdate || up.Section != "User" {
		t.Errorf("unexpected update fact: %+v", up)
	}
	if up.OldContent != "dog named Rex" || up.Content != "Has a labrador named Rex" {
		t.Errorf("update parts wrong: %+v", up)
	}

	del := out.Updates[1]
	if del.Category != schema.FactDelete || del.Section != "Decisions" || del.Content != "moves to Hugo" {
		t.Errorf("unexpected delete fact: %+v", del)
	}
}

func TestParseExtraction_NoFactsMarker(t *testing.T) {
	for _, reply := range []string{"Brak nowych faktów", "brak nowych faktów", "No new facts"} {
		out := ParseExtraction(reply)
		if len(out.Updates) != 0 {
			t.Errorf("reply %q should yield no facts, got %d", reply, len(out.Updates))
		}
	}
}

func TestParseExtraction_SummaryCapture(t *testing.T) {
	out := ParseExtraction(`CORE: Has a dog named Rex
SUMMARY: Migrating the blog to Hugo.
Still needs the RSS feed ported.`)

	if len(out.Updates) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(out.Updates))
	}
	want := "Migrating the blog to Hugo.\nStill needs the RSS feed ported."
	if out.ActiveContext != want {
		t.Errorf("expected summary %q, got %q", want, out.ActiveContext)
	}
}

func TestParseExtraction_DropsGarbageSilently(t *testing.T) {
	out := ParseExtraction(`Here are the facts I found:
CORE: Has a dog named Rex
MALFORMED LINE with no label
UPDATE [User] missing the arrow`)

	if len(out.Updates) != 1 {
		t.Errorf("expected only the well-formed fact, got %+v", out.Updates)
	}
}

func TestParseExtraction_BulletsAndCap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteString("- PROJECT: distinct fact number ")
		b.WriteString(strings.Repeat("x", i+1))
		b.WriteString("\n")
	}

	out := ParseExtraction(b.String())
	if len(out.Updates) != 8 {
		t.Errorf("expected cap at 8 facts, got %d", len(out.Updates))
	}
	if out.Updates[0].Content != "distinct fact number x" {
		t.Errorf("bullet prefix should be stripped, got %q", out.Updates[0].Content)
	}
}

func TestExtract_PromptContents(t *testing.T) {
	f := &fakeCompleter{reply: "Brak nowych faktów"}
	e := NewExtractor(f, "m")

	msgs := []schema.Message{
		schema.NewUserMessage("my dog is called Rex"),
		schema.NewAssistantMessage("Nice to meet Rex!", nil, nil),
	}
	out, err := e.Extract(context.Background(), msgs, "## User\n- Lives in Warsaw\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Updates) != 0 {
		t.Errorf("no-facts reply should yield nothing, got %+v", out.Updates)
	}

	for _, want := range []string{
		"## Known facts",
		"Lives in Warsaw",
		"USER: my dog is called Rex",
		"NEVER extract secrets",
		"Brak nowych faktów",
	} {
		if !strings.Contains(f.lastPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestExtract_EmptyTranscript(t *testing.T) {
	e := NewExtractor(&fakeCompleter{}, "m")
	out, err := e.Extract(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Updates) != 0 || out.ActiveContext != "" {
		t.Errorf("empty transcript should yield empty extraction, got %+v", out)
	}
}
