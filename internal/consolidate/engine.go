// Package consolidate compresses conversation history into a hierarchy of
// summary artifacts. Raw sessions roll up into L1 summaries, batches of L1s
// into L2s, and batches of L2s into L3s. Each artifact records exactly which
// inputs it consumed in its frontmatter; an input is consolidated when any
// artifact references it, which makes every pass idempotent.
package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/driftwhale/driftwhale/internal/schema"
	"github.com/driftwhale/driftwhale/internal/session"
	"github.com/driftwhale/driftwhale/internal/store"
)

// Config tunes batch sizes and retention.
type Config struct {
	Model        string
	L1Batch      int // sessions per L1 artifact
	L2Batch      int // L1 artifacts per L2
	L3Batch      int // L2 artifacts per L3
	KeepRecent   int // raw sessions never deleted by cleanup
	MinUserTurns int // sessions below this are garbage and never consolidated
}

func (c *Config) applyDefaults() {
	if c.L1Batch <= 0 {
		c.L1Batch = 5
	}
	if c.L2Batch <= 0 {
		c.L2Batch = 5
	}
	if c.L3Batch <= 0 {
		c.L3Batch = 10
	}
	if c.KeepRecent <= 0 {
		c.KeepRecent = 5
	}
	if c.MinUserTurns <= 0 {
		c.MinUserTurns = 3
	}
}

// KnownFactsFunc supplies an agent's current fact document so consolidation
// prompts can exclude already-captured knowledge.
type KnownFactsFunc func(agent string) string

// Report summarises one consolidation pass.
type Report struct {
	L1Created       int
	L2Created       int
	L3Created       int
	SessionsDeleted int
	ArtifactsPruned int
}

// Engine runs hierarchical consolidation for one workspace.
type Engine struct {
	store     store.Store
	sessions  *session.Manager
	completer schema.Completer
	known     KnownFactsFunc
	cfg       Config
	now       func() time.Time
}

// NewEngine creates an Engine. known may be nil when no fact document exists.
func NewEngine(st store.Store, sm *session.Manager, completer schema.Completer, known KnownFactsFunc, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		store:     st,
		sessions:  sm,
		completer: completer,
		known:     known,
		cfg:       cfg,
		now:       time.Now,
	}
}

func levelDir(agent, level string) string {
	return path.Join("agents", agent, "consolidation", level)
}

// RunPass runs one full consolidation pass for an agent: build every complete
// L1 batch, then L2, then L3, then clean up consumed inputs. The pass aborts
// on the first failure so a flaky model call never produces artifacts with
// missing inputs; the next pass picks up exactly where this one stopped.
func (e *Engine) RunPass(ctx context.Context, agent string) (Report, error) {
	var rep Report

	for {
		batch, err := e.nextSessionBatch(agent)
		if err != nil {
			return rep, err
		}
		if batch == nil {
			break
		}
		if err := e.createL1(ctx, agent, batch); err != nil {
			return rep, err
		}
		rep.L1Created++
	}

	for _, up := range []struct {
		from, to string
		batch    int
	}{
		{LevelL1, LevelL2, e.cfg.L2Batch},
		{LevelL2, LevelL3, e.cfg.L3Batch},
	} {
		for {
			files, err := e.UnconsolidatedArtifacts(agent, up.from)
			if err != nil {
				return rep, err
			}
			if len(files) < up.batch {
				break
			}
			if err := e.rollUp(ctx, agent, up.from, up.to, files[:up.batch]); err != nil {
				return rep, err
			}
			if up.to == LevelL2 {
				rep.L2Created++
			} else {
				rep.L3Created++
			}
		}
	}

	deleted, pruned, err := e.cleanup(agent)
	rep.SessionsDeleted = deleted
	rep.ArtifactsPruned = pruned
	if err != nil {
		return rep, err
	}

	if rep.L1Created+rep.L2Created+rep.L3Created > 0 {
		slog.Info("consolidation pass complete", "agent", agent,
			"l1", rep.L1Created, "l2", rep.L2Created, "l3", rep.L3Created,
			"sessions_deleted", rep.SessionsDeleted)
	}
	return rep, nil
}

// UnconsolidatedSessions returns session files not yet referenced by any L1
// artifact, oldest-first. Garbage sessions (too few user turns) are excluded.
func (e *Engine) UnconsolidatedSessions(agent string) ([]session.Info, error) {
	infos, err := e.sessions.List(agent)
	if err != nil {
		return nil, err
	}

	refs, err := e.referenced(agent, LevelL1)
	if err != nil {
		return nil, err
	}

	var out []session.Info
	for _, info := range infos {
		if refs[info.File] || info.UserTurns < e.cfg.MinUserTurns {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// UnconsolidatedArtifacts returns level files not yet referenced by the level
// above, sorted by filename (which sorts chronologically).
func (e *Engine) UnconsolidatedArtifacts(agent, level string) ([]string, error) {
	files, err := e.listArtifacts(agent, level)
	if err != nil {
		return nil, err
	}

	above := map[string]string{LevelL1: LevelL2, LevelL2: LevelL3}[level]
	if above == "" {
		return files, nil
	}
	refs, err := e.referenced(agent, above)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, f := range files {
		if !refs[f] {
			out = append(out, f)
		}
	}
	return out, nil
}

// PurgeGarbage deletes unconsolidated sessions with too few user turns.
// The most recent sessions are spared since one of them may still be live.
func (e *Engine) PurgeGarbage(agent string) (int, error) {
	infos, err := e.sessions.List(agent)
	if err != nil {
		return 0, err
	}
	refs, err := e.referenced(agent, LevelL1)
	if err != nil {
		return 0, err
	}

	spared := recentSet(infos, e.cfg.KeepRecent)
	purged := 0
	for _, info := range infos {
		if refs[info.File] || spared[info.File] || info.UserTurns >= e.cfg.MinUserTurns {
			continue
		}
		if err := e.sessions.Delete(agent, info.File); err != nil {
			return purged, fmt.Errorf("purge session %s: %w", info.File, err)
		}
		purged++
	}
	return purged, nil
}

// nextSessionBatch returns the next full L1 batch, or nil when fewer than a
// batch of unconsolidated sessions remain.
func (e *Engine) nextSessionBatch(agent string) ([]session.Info, error) {
	pending, err := e.UnconsolidatedSessions(agent)
	if err != nil {
		return nil, err
	}
	if len(pending) < e.cfg.L1Batch {
		return nil, nil
	}
	return pending[:e.cfg.L1Batch], nil
}

// createL1 summarises a batch of sessions into one L1 artifact.
func (e *Engine) createL1(ctx context.Context, agent string, batch []session.Info) error {
	transcripts := make([]string, len(batch))

	var g errgroup.Group
	for i, info := range batch {
		i, info := i, info
		g.Go(func() error {
			s, err := e.sessions.Load(agent, info.File)
			if err != nil {
				return err
			}
			transcripts[i] = renderTranscript(info, s.CopyMessages())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load session batch: %w", err)
	}

	body, err := e.summarize(ctx, agent, l1Prompt, strings.Join(transcripts, "\n\n"))
	if err != nil {
		return err
	}

	refs := make([]string, len(batch))
	for i, info := range batch {
		refs[i] = info.File
	}
	return e.writeArtifact(agent, NewArtifact(LevelL1, refs, body, e.now()))
}

// rollUp summarises a batch of artifacts into one artifact of the next level.
func (e *Engine) rollUp(ctx context.Context, agent, from, to string, files []string) error {
	bodies := make([]string, len(files))

	var g errgroup.Group
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			raw, err := e.store.Read(path.Join(levelDir(agent, from), f))
			if err != nil {
				return err
			}
			art, err := DecodeArtifact(raw)
			if err != nil {
				return fmt.Errorf("decode %s: %w", f, err)
			}
			bodies[i] = fmt.Sprintf("### %s\n\n%s", f, art.Body)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load %s batch: %w", from, err)
	}

	instructions := l2Prompt
	if to == LevelL3 {
		instructions = l3Prompt
	}
	body, err := e.summarize(ctx, agent, instructions, strings.Join(bodies, "\n\n"))
	if err != nil {
		return err
	}
	return e.writeArtifact(agent, NewArtifact(to, files, body, e.now()))
}

const (
	l1Prompt = "Summarise these conversations into one digest. Keep concrete outcomes, " +
		"decisions, and unresolved threads. Drop greetings and small talk."
	l2Prompt = "Merge these conversation digests into one higher-level digest. " +
		"Collapse repeated topics; keep the overall arc and every open thread."
	l3Prompt = "Merge these digests into one long-range digest of this period. " +
		"Keep only what would still matter months from now."
)

// summarize runs one meta-summary call with a fixed output shape. The current
// fact document is included as negative context so the digest does not repeat
// what is already captured permanently.
func (e *Engine) summarize(ctx context.Context, agent, instructions, material string) (string, error) {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nStructure the digest as:\n## Topics\n## Decisions\n## Open threads\n")

	if e.known != nil {
		if known := e.known(agent); known != "" {
			b.WriteString("\nThe following facts are stored permanently; do NOT repeat them:\n\n")
			b.WriteString(known)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n## Material\n\n")
	b.WriteString(material)

	messages := schema.NewMessages(
		schema.NewSystemMessage("You compress conversation history into dense, factual digests."),
		schema.NewUserMessage(b.String()),
	)

	resp, err := e.completer.Complete(ctx, messages, schema.NewChatOptions(e.cfg.Model, 4096, 0.3))
	if err != nil {
		return "", fmt.Errorf("consolidation call: %w", err)
	}
	body := strings.TrimSpace(resp.Text)
	if body == "" {
		return "", fmt.Errorf("consolidation call returned empty digest")
	}
	return body, nil
}

func (e *Engine) writeArtifact(agent string, art Artifact) error {
	dir := levelDir(agent, art.Header.Type)
	if err := e.store.MkdirAll(dir); err != nil {
		return fmt.Errorf("create %s dir: %w", art.Header.Type, err)
	}

	name, err := e.nextArtifactName(agent, art.Header.Type)
	if err != nil {
		return err
	}

	raw, err := art.Encode()
	if err != nil {
		return err
	}
	if err := e.store.Write(path.Join(dir, name), raw); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	return nil
}

// nextArtifactName picks the lowest unused sequence number for today. A name
// must never repeat one held in a higher-level reference set: reference-set
// membership is what marks an input as consumed, so reusing a pruned
// predecessor's name would make a fresh artifact look already consolidated.
// Pruned names therefore count toward the sequence alongside live files.
func (e *Engine) nextArtifactName(agent, level string) (string, error) {
	names, err := e.listArtifacts(agent, level)
	if err != nil {
		return "", err
	}
	if above := map[string]string{LevelL1: LevelL2, LevelL2: LevelL3}[level]; above != "" {
		refs, err := e.referenced(agent, above)
		if err != nil {
			return "", err
		}
		for r := range refs {
			names = append(names, r)
		}
	}

	prefix := fmt.Sprintf("%s-%s-", level, e.now().UTC().Format("20060102"))
	seq := 0
	for _, n := range names {
		rest, ok := strings.CutPrefix(n, prefix)
		if !ok {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSuffix(rest, ".md"))
		if err == nil && v > seq {
			seq = v
		}
	}
	return fmt.Sprintf("%s%03d.md", prefix, seq+1), nil
}

// cleanup deletes consumed inputs: sessions referenced by an L1 (sparing the
// most recent few) and artifacts referenced by the level above.
func (e *Engine) cleanup(agent string) (sessionsDeleted, artifactsPruned int, err error) {
	infos, err := e.sessions.List(agent)
	if err != nil {
		return 0, 0, err
	}
	refs, err := e.referenced(agent, LevelL1)
	if err != nil {
		return 0, 0, err
	}

	spared := recentSet(infos, e.cfg.KeepRecent)
	for _, info := range infos {
		if !refs[info.File] || spared[info.File] {
			continue
		}
		if err := e.sessions.Delete(agent, info.File); err != nil {
			return sessionsDeleted, 0, fmt.Errorf("delete session %s: %w", info.File, err)
		}
		sessionsDeleted++
	}

	for _, pair := range []struct{ level, above string }{
		{LevelL1, LevelL2},
		{LevelL2, LevelL3},
	} {
		files, err := e.listArtifacts(agent, pair.level)
		if err != nil {
			return sessionsDeleted, artifactsPruned, err
		}
		consumed, err := e.referenced(agent, pair.above)
		if err != nil {
			return sessionsDeleted, artifactsPruned, err
		}
		for _, f := range files {
			if !consumed[f] {
				continue
			}
			if err := e.store.Remove(path.Join(levelDir(agent, pair.level), f)); err != nil {
				return sessionsDeleted, artifactsPruned, fmt.Errorf("prune %s: %w", f, err)
			}
			artifactsPruned++
		}
	}
	return sessionsDeleted, artifactsPruned, nil
}

// referenced returns the union of input references across every artifact of
// the given level.
func (e *Engine) referenced(agent, level string) (map[string]bool, error) {
	files, err := e.listArtifacts(agent, level)
	if err != nil {
		return nil, err
	}

	refs := make(map[string]bool)
	for _, f := range files {
		raw, err := e.store.Read(path.Join(levelDir(agent, level), f))
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", f, err)
		}
		art, err := DecodeArtifact(raw)
		if err != nil {
			slog.Warn("skipping undecodable artifact", "agent", agent, "file", f, "err", err)
			continue
		}
		for _, r := range art.Header.Refs() {
			refs[r] = true
		}
	}
	return refs, nil
}

func (e *Engine) listArtifacts(agent, level string) ([]string, error) {
	listing, err := e.store.List(levelDir(agent, level))
	if err != nil {
		return nil, fmt.Errorf("list %s artifacts: %w", level, err)
	}
	var out []string
	for _, f := range listing.Files {
		if strings.HasSuffix(f, ".md") {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out, nil
}

// recentSet returns the filenames of the n most recently created sessions.
func recentSet(infos []session.Info, n int) map[string]bool {
	sorted := make([]session.Info, len(infos))
	copy(sorted, infos)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	out := make(map[string]bool, n)
	for i := 0; i < len(sorted) && i < n; i++ {
		out[sorted[i].File] = true
	}
	return out
}

// renderTranscript renders one session into labelled text for the prompt.
func renderTranscript(info session.Info, msgs []schema.Message) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("## Session %s (%s)",
		info.ID, info.CreatedAt.UTC().Format("2006-01-02 15:04")))

	for _, msg := range msgs {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		if len(content) > 1500 {
			content = content[:1500] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(msg.Role), content))
	}
	return strings.Join(lines, "\n")
}
