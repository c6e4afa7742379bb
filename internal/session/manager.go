// Package session manages per-conversation history stored as JSONL files
// under each agent's workspace directory.
//
// File format:
//
//	Line 1:  {"_type":"metadata","id":"…","agent":"…","created_at":"…",
//	           "updated_at":"…","user_turns":N}
//	Line 2+: one JSON message object per line
//
// Messages are append-only; consolidation never rewrites a session file,
// it only reads and eventually deletes it.
package session

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/driftwhale/driftwhale/internal/schema"
	"github.com/driftwhale/driftwhale/internal/store"
)

// Info is one session file's metadata, read without loading the messages.
type Info struct {
	File      string // filename relative to the agent's sessions dir
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	UserTurns int
}

// Manager loads and persists sessions as JSONL files.
type Manager struct {
	store store.Store
	cache sync.Map // agent → *Session (the active session)
}

// NewManager creates a Manager over the workspace store.
func NewManager(st store.Store) *Manager {
	return &Manager{store: st}
}

// Dir returns an agent's sessions directory relative to the workspace root.
func Dir(agent string) string {
	return path.Join("agents", agent, "sessions")
}

// Active returns the cached live session for an agent, creating a fresh one
// if none exists yet.
func (m *Manager) Active(agent string) *Session {
	if v, ok := m.cache.Load(agent); ok {
		return v.(*Session)
	}

	s := New(agent, time.Now().UTC().Format("20060102-150405"))
	actual, _ := m.cache.LoadOrStore(agent, s)
	return actual.(*Session)
}

// ActiveSessions returns a snapshot of all live sessions.
func (m *Manager) ActiveSessions() []*Session {
	var out []*Session
	m.cache.Range(func(_, v any) bool {
		out = append(out, v.(*Session))
		return true
	})
	return out
}

// Rotate closes out the active session and starts a new one. The old session
// is returned so the caller can run a boundary over it; it has already been
// saved to disk.
func (m *Manager) Rotate(agent string) (*Session, error) {
	v, ok := m.cache.Load(agent)
	if !ok {
		return nil, nil
	}
	old := v.(*Session)
	if err := m.Save(old); err != nil {
		return nil, err
	}
	m.cache.Delete(agent)
	return old, nil
}

// Save writes the session to disk.
func (m *Manager) Save(s *Session) error {
	s.mu.Lock()
	msgs := s.Messages.Clone()
	meta := map[string]any{
		"_type":      "metadata",
		"id":         s.ID,
		"agent":      s.Agent,
		"created_at": s.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
		"user_turns": s.userTurns,
	}
	s.mu.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	for _, msg := range msgs.Messages {
		if err := enc.Encode(messageToWire(msg)); err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
	}

	dir := Dir(s.Agent)
	if err := m.store.MkdirAll(dir); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}

	file := path.Join(dir, safeFilename(s.ID)+".jsonl")
	if err := m.store.Write(file, buf.Bytes()); err != nil {
		return fmt.Errorf("write session %s: %w", file, err)
	}
	return nil
}

// List returns metadata for all of an agent's session files, oldest-first by
// creation time. Files whose first line is not a metadata record are skipped.
func (m *Manager) List(agent string) ([]Info, error) {
	listing, err := m.store.List(Dir(agent))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var out []Info
	for _, file := range listing.Files {
		if !strings.HasSuffix(file, ".jsonl") {
			continue
		}
		info, err := m.readInfo(agent, file)
		if err != nil {
			slog.Warn("skipping unreadable session", "agent", agent, "file", file, "err", err)
			continue
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].File < out[j].File
	})
	return out, nil
}

// Load reads a full session from disk.
func (m *Manager) Load(agent, file string) (*Session, error) {
	raw, err := m.store.Read(path.Join(Dir(agent), file))
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", file, err)
	}

	s := &Session{Agent: agent, Messages: schema.NewMessages()}

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 1<<20), 1<<20) // 1 MB per line
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var data map[string]any
		if err := json.Unmarshal(line, &data); err != nil {
			slog.Warn("skipping malformed session line", "file", file, "err", err)
			continue
		}

		if data["_type"] == "metadata" {
			applyMeta(s, data)
			continue
		}
		msg := wireToMessage(data)
		s.Messages.Add(msg)
		if msg.Role == "user" {
			s.userTurns++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan session %s: %w", file, err)
	}

	if s.ID == "" {
		s.ID = strings.TrimSuffix(file, ".jsonl")
	}
	return s, nil
}

// Delete removes a session file.
func (m *Manager) Delete(agent, file string) error {
	return m.store.Remove(path.Join(Dir(agent), file))
}

// readInfo parses only the metadata line of a session file.
func (m *Manager) readInfo(agent, file string) (Info, error) {
	raw, err := m.store.Read(path.Join(Dir(agent), file))
	if err != nil {
		return Info{}, err
	}

	line := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}

	var data map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(line), &data); err != nil {
		return Info{}, err
	}
	if data["_type"] != "metadata" {
		return Info{}, fmt.Errorf("first line of %s is not metadata", file)
	}

	info := Info{File: file}
	info.ID, _ = data["id"].(string)
	if info.ID == "" {
		info.ID = strings.TrimSuffix(file, ".jsonl")
	}
	if ts, ok := data["created_at"].(string); ok {
		info.CreatedAt, _ = time.Parse(time.RFC3339, ts)
	}
	if ts, ok := data["updated_at"].(string); ok {
		info.UpdatedAt, _ = time.Parse(time.RFC3339, ts)
	}
	if ut, ok := data["user_turns"].(float64); ok {
		info.UserTurns = int(ut)
	}
	return info, nil
}

// applyMeta copies the metadata line into the session. The user_turns field
// is deliberately ignored: Load recounts from the messages themselves, which
// are the ground truth and survive a stale or missing metadata value.
func applyMeta(s *Session, data map[string]any) {
	if id, ok := data["id"].(string); ok {
		s.ID = id
	}
	if ts, ok := data["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			s.CreatedAt = t
		}
	}
	if ts, ok := data["updated_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			s.UpdatedAt = t
		}
	}
}

// ---------------------------------------------------------------------------
// Wire format helpers

// wireMessage is the on-disk JSON representation of a message.
type wireMessage struct {
	Role             string           `json:"role"`
	Content          string           `json:"content"`
	ToolCalls        []map[string]any `json:"tool_calls,omitempty"`
	ToolCallID       string           `json:"tool_call_id,omitempty"`
	Name             string           `json:"name,omitempty"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
	Timestamp        string           `json:"timestamp"`
}

func messageToWire(msg schema.Message) wireMessage {
	w := wireMessage{
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		Name:       msg.ToolName,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	if msg.ReasoningContent != nil {
		w.ReasoningContent = *msg.ReasoningContent
	}
	for _, tc := range msg.ToolCalls {
		w.ToolCalls = append(w.ToolCalls, tc.ToWireMap())
	}
	return w
}

func wireToMessage(data map[string]any) schema.Message {
	role, _ := data["role"].(string)
	content, _ := data["content"].(string)

	msg := schema.Message{Role: role, Content: content}

	if tcs, ok := data["tool_calls"].([]any); ok {
		for _, tc := range tcs {
			tcm, ok := tc.(map[string]any)
			if !ok {
				continue
			}
			fn, _ := tcm["function"].(map[string]any)
			id, _ := tcm["id"].(string)
			name, _ := fn["name"].(string)
			argsStr, _ := fn["arguments"].(string)
			var args map[string]any
			_ = json.Unmarshal([]byte(argsStr), &args)
			msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
				ID:        id,
				Name:      name,
				Arguments: args,
			})
		}
	}

	if id, ok := data["tool_call_id"].(string); ok {
		msg.ToolCallID = id
	}
	if name, ok := data["name"].(string); ok {
		msg.ToolName = name
	}
	if rc, ok := data["reasoning_content"].(string); ok && rc != "" {
		msg.ReasoningContent = &rc
	}

	return msg
}

// safeFilename replaces filesystem-unsafe characters with underscores.
func safeFilename(name string) string {
	const unsafe = `<>:"/\|?*`
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(unsafe, r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
