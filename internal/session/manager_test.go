package session

import (
	"testing"
	"time"

	"github.com/hack-pad/hackpadfs/mem"

	"github.com/driftwhale/driftwhale/internal/schema"
	"github.com/driftwhale/driftwhale/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	fsys, err := mem.NewFS()
	if err != nil {
		t.Fatalf("mem fs: %v", err)
	}
	return NewManager(store.NewFSStore(fsys))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := newTestManager(t)

	s := New("main", "20260301-090000")
	s.AddUser("what is the capital of France?")
	s.AddAssistant("Paris.")
	s.AddUser("and <b>Germany</b>?")
	reasoning := "the user wants a capital city"
	s.Add(schema.NewAssistantMessage("Berlin.",
		[]schema.ToolCall{{ID: "call_1", Name: "lookup", Arguments: map[string]any{"country": "Germany"}}},
		&reasoning))
	s.Add(schema.NewToolResultMessage("call_1", "lookup", "Berlin"))

	if err := m.Save(s); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := m.Load("main", "20260301-090000.jsonl")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID != s.ID {
		t.Errorf("id = %q, want %q", got.ID, s.ID)
	}
	if got.UserTurns() != 2 {
		t.Errorf("user turns = %d, want 2", got.UserTurns())
	}
	msgs := got.CopyMessages()
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if msgs[2].Content != "and <b>Germany</b>?" {
		t.Errorf("html must round-trip unescaped, got %q", msgs[2].Content)
	}
	assistant := msgs[3]
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].Name != "lookup" {
		t.Fatalf("tool call lost: %+v", assistant.ToolCalls)
	}
	if assistant.ToolCalls[0].Arguments["country"] != "Germany" {
		t.Errorf("tool arguments lost: %v", assistant.ToolCalls[0].Arguments)
	}
	if assistant.ReasoningContent == nil || *assistant.ReasoningContent != reasoning {
		t.Error("reasoning content lost")
	}
	if msgs[4].ToolCallID != "call_1" || msgs[4].ToolName != "lookup" {
		t.Errorf("tool result fields lost: %+v", msgs[4])
	}
}

func TestListOrderAndInfo(t *testing.T) {
	m := newTestManager(t)

	for i, id := range []string{"b-second", "a-first", "c-third"} {
		s := New("main", id)
		s.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
		s.AddUser("hello")
		if err := m.Save(s); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := m.List("main")
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(infos))
	}
	// Ordered by creation time, not filename.
	want := []string{"b-second.jsonl", "a-first.jsonl", "c-third.jsonl"}
	for i, info := range infos {
		if info.File != want[i] {
			t.Errorf("infos[%d].File = %q, want %q", i, info.File, want[i])
		}
	}
	if infos[0].ID != "b-second" || infos[0].UserTurns != 1 {
		t.Errorf("metadata not read from first line: %+v", infos[0])
	}
	if infos[0].CreatedAt.IsZero() {
		t.Error("created_at not parsed")
	}
}

func TestListSkipsUnreadable(t *testing.T) {
	m := newTestManager(t)

	s := New("main", "good")
	s.AddUser("hi")
	if err := m.Save(s); err != nil {
		t.Fatal(err)
	}
	if err := m.store.MkdirAll(Dir("main")); err != nil {
		t.Fatal(err)
	}
	if err := m.store.Write(Dir("main")+"/broken.jsonl", []byte("not json\n")); err != nil {
		t.Fatal(err)
	}
	if err := m.store.Write(Dir("main")+"/notes.txt", []byte("ignored")); err != nil {
		t.Fatal(err)
	}

	infos, err := m.List("main")
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].File != "good.jsonl" {
		t.Errorf("expected only the valid session, got %+v", infos)
	}
}

func TestActiveAndRotate(t *testing.T) {
	m := newTestManager(t)

	live := m.Active("main")
	if again := m.Active("main"); again != live {
		t.Fatal("Active must return the same live session")
	}
	live.AddUser("remember this")

	old, err := m.Rotate("main")
	if err != nil {
		t.Fatal(err)
	}
	if old != live {
		t.Fatal("Rotate must hand back the live session")
	}

	// Rotation persisted the session and detached it from the cache.
	infos, err := m.List("main")
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Fatalf("rotated session not saved, got %d files", len(infos))
	}
	if fresh := m.Active("main"); fresh == old {
		t.Error("Active after Rotate must start a new session")
	}

	// Rotating with no live session is a quiet no-op.
	m2 := newTestManager(t)
	old, err = m2.Rotate("main")
	if err != nil || old != nil {
		t.Errorf("expected nil, nil for idle agent, got %v, %v", old, err)
	}
}

func TestDelete(t *testing.T) {
	m := newTestManager(t)

	s := New("main", "doomed")
	s.AddUser("bye")
	if err := m.Save(s); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete("main", "doomed.jsonl"); err != nil {
		t.Fatal(err)
	}
	infos, err := m.List("main")
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 0 {
		t.Errorf("expected no sessions after delete, got %d", len(infos))
	}
}

func TestLoadRecountsUserTurnsFromMessages(t *testing.T) {
	m := newTestManager(t)
	if err := m.store.MkdirAll(Dir("main")); err != nil {
		t.Fatal(err)
	}
	raw := []byte(`{"_type":"metadata","id":"stale","user_turns":99}` + "\n" +
		`{"role":"user","content":"one"}` + "\n" +
		`{"role":"assistant","content":"reply"}` + "\n" +
		`{"role":"user","content":"two"}` + "\n")
	if err := m.store.Write(Dir("main")+"/stale.jsonl", raw); err != nil {
		t.Fatal(err)
	}

	s, err := m.Load("main", "stale.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	// The messages are the ground truth; the metadata counter is for the
	// cheap List path only.
	if s.UserTurns() != 2 {
		t.Errorf("user turns = %d, want 2", s.UserTurns())
	}
}

func TestLoadIDFallsBackToFilename(t *testing.T) {
	m := newTestManager(t)
	if err := m.store.MkdirAll(Dir("main")); err != nil {
		t.Fatal(err)
	}
	raw := []byte(`{"role":"user","content":"orphan line"}` + "\n")
	if err := m.store.Write(Dir("main")+"/legacy.jsonl", raw); err != nil {
		t.Fatal(err)
	}

	s, err := m.Load("main", "legacy.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	if s.ID != "legacy" {
		t.Errorf("id = %q, want filename stem", s.ID)
	}
	if s.UserTurns() != 1 || s.Len() != 1 {
		t.Errorf("message not loaded: turns=%d len=%d", s.UserTurns(), s.Len())
	}
}

func TestSafeFilename(t *testing.T) {
	cases := map[string]string{
		"20260301-090000": "20260301-090000",
		`a/b\c:d`:         "a_b_c_d",
		`x?*<>|`:          "x_____",
	}
	for in, want := range cases {
		if got := safeFilename(in); got != want {
			t.Errorf("safeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
