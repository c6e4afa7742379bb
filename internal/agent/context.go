package agent

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/driftwhale/driftwhale/internal/brain"
	"github.com/driftwhale/driftwhale/internal/consolidate"
	"github.com/driftwhale/driftwhale/internal/store"
)

// ContextBuilder assembles the system prompt for an agent from its permanent
// fact document, the active context note, and the newest history digests.
type ContextBuilder struct {
	store  store.Store
	brains func(agent string) *brain.Service
}

func NewContextBuilder(st store.Store, brains func(agent string) *brain.Service) *ContextBuilder {
	return &ContextBuilder{store: st, brains: brains}
}

// BuildSystemPrompt returns the full system prompt for one agent.
func (cb *ContextBuilder) BuildSystemPrompt(agent string) string {
	var parts []string

	parts = append(parts, cb.buildIdentity(agent))

	if facts := cb.brains(agent).Raw(); facts != "" {
		parts = append(parts, "# What you know about the user\n\n"+facts)
	}

	if active := cb.activeContext(agent); active != "" {
		parts = append(parts, "# Current focus\n\n"+active)
	}

	if digests := cb.historyDigests(agent); digests != "" {
		parts = append(parts, "# Earlier conversations (compressed)\n\n"+digests)
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func (cb *ContextBuilder) buildIdentity(agent string) string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	tz, _ := time.Now().Zone()
	if tz == "" {
		tz = "UTC"
	}

	return fmt.Sprintf(`# driftwhale

You are %s, a helpful assistant with persistent memory.

## Current time
%s (%s)

Answer directly and concisely. What you know about the user is listed below;
use it naturally, never recite it back.`, agent, now, tz)
}

func (cb *ContextBuilder) activeContext(agent string) string {
	raw, err := cb.store.Read(path.Join("agents", agent, activeContextFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// historyDigests returns the newest digest of each consolidation level,
// coarsest first, so the prompt carries long-range context before recent.
func (cb *ContextBuilder) historyDigests(agent string) string {
	var parts []string
	for _, level := range []string{consolidate.LevelL3, consolidate.LevelL2, consolidate.LevelL1} {
		if body := cb.newestDigest(agent, level); body != "" {
			parts = append(parts, body)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (cb *ContextBuilder) newestDigest(agent, level string) string {
	dir := path.Join("agents", agent, "consolidation", level)
	listing, err := cb.store.List(dir)
	if err != nil || len(listing.Files) == 0 {
		return ""
	}

	files := listing.Files
	sort.Strings(files)
	raw, err := cb.store.Read(path.Join(dir, files[len(files)-1]))
	if err != nil {
		return ""
	}
	art, err := consolidate.DecodeArtifact(raw)
	if err != nil {
		return ""
	}
	return art.Body
}
