package consolidate

import (
	"strings"
	"testing"
	"time"
)

func TestArtifact_EncodeDecode(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	art := NewArtifact(LevelL1, []string{"s1.jsonl", "s2.jsonl"}, "## Topics\n\nkayaks", now)

	raw, err := art.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(string(raw), "---\n") {
		t.Error("encoded artifact must start with frontmatter")
	}

	got, err := DecodeArtifact(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Header.Type != LevelL1 {
		t.Errorf("expected type l1, got %q", got.Header.Type)
	}
	if len(got.Header.Sessions) != 2 || got.Header.Sessions[0] != "s1.jsonl" {
		t.Errorf("unexpected sessions: %v", got.Header.Sessions)
	}
	if got.Body != "## Topics\n\nkayaks" {
		t.Errorf("unexpected body %q", got.Body)
	}
}

func TestArtifact_RefsPerLevel(t *testing.T) {
	now := time.Now()
	cases := map[string][]string{
		LevelL1: NewArtifact(LevelL1, []string{"a"}, "b", now).Header.Refs(),
		LevelL2: NewArtifact(LevelL2, []string{"a"}, "b", now).Header.Refs(),
		LevelL3: NewArtifact(LevelL3, []string{"a"}, "b", now).Header.Refs(),
	}
	for level, refs := range cases {
		if len(refs) != 1 || refs[0] != "a" {
			t.Errorf("level %s: unexpected refs %v", level, refs)
		}
	}
}

func TestDecodeArtifact_NoFrontmatter(t *testing.T) {
	got, err := DecodeArtifact([]byte("just a body\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Header.Type != "" || got.Body != "just a body" {
		t.Errorf("unexpected artifact: %+v", got)
	}
}

func TestDecodeArtifact_Unterminated(t *testing.T) {
	if _, err := DecodeArtifact([]byte("---\ntype: l1\nno closing delimiter")); err == nil {
		t.Error("expected error on unterminated frontmatter")
	}
}
