package agent

import (
	"context"
	"log/slog"
	"path"
	"sync"

	"github.com/driftwhale/driftwhale/internal/brain"
	"github.com/driftwhale/driftwhale/internal/consolidate"
	"github.com/driftwhale/driftwhale/internal/session"
	"github.com/driftwhale/driftwhale/internal/store"
)

// activeContextFile holds the extractor's latest SUMMARY block for an agent.
const activeContextFile = "active-context.md"

// Compactor runs session boundaries: fact extraction into the fact document,
// then a consolidation pass. All memory writes for one agent go through here,
// serialised by a per-agent worker so the fact document has a single writer.
type Compactor struct {
	store        store.Store
	sessions     *session.Manager
	extractor    *brain.Extractor
	brains       func(agent string) *brain.Service
	engine       *consolidate.Engine
	minUserTurns int

	// Per-agent boundary queue. An agent is either idle (absent from
	// running) or has one drain goroutine working through its queue.
	running map[string]bool
	queue   map[string][]*session.Session
	mu      sync.Mutex
	wg      sync.WaitGroup
}

func NewCompactor(st store.Store, sm *session.Manager, extractor *brain.Extractor, brains func(agent string) *brain.Service, engine *consolidate.Engine, minUserTurns int) *Compactor {
	if minUserTurns <= 0 {
		minUserTurns = 3
	}
	return &Compactor{
		store:        st,
		sessions:     sm,
		extractor:    extractor,
		brains:       brains,
		engine:       engine,
		minUserTurns: minUserTurns,
		running:      make(map[string]bool),
		queue:        make(map[string][]*session.Session),
	}
}

// Schedule queues a finished session for boundary processing. At most one
// goroutine works per agent; further sessions wait in that agent's queue.
func (c *Compactor) Schedule(s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	agent := s.Agent
	c.queue[agent] = append(c.queue[agent], s)
	if c.running[agent] {
		return
	}

	c.running[agent] = true
	c.wg.Add(1)
	go c.drain(agent)
}

// Wait blocks until all queued boundaries have finished. Used on shutdown.
func (c *Compactor) Wait() {
	c.wg.Wait()
}

func (c *Compactor) drain(agent string) {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		q := c.queue[agent]
		if len(q) == 0 {
			delete(c.running, agent)
			c.mu.Unlock()
			return
		}
		s := q[0]
		c.queue[agent] = q[1:]
		c.mu.Unlock()

		if err := c.RunBoundary(context.Background(), s); err != nil {
			slog.Error("session boundary failed", "agent", agent, "session", s.ID, "err", err)
		}
	}
}

// RunBoundary processes one finished session: extract facts, apply them to
// the fact document, record the active context, then run a consolidation
// pass. Extraction failures skip the fact step but never block consolidation.
func (c *Compactor) RunBoundary(ctx context.Context, s *session.Session) error {
	agent := s.Agent

	if s.UserTurns() >= c.minUserTurns {
		b := c.brains(agent)
		ext, err := c.extractor.Extract(ctx, s.CopyMessages(), b.Raw())
		switch {
		case err != nil:
			slog.Warn("fact extraction failed, will retry at next boundary",
				"agent", agent, "session", s.ID, "err", err)
		default:
			if len(ext.Updates) > 0 {
				if err := b.Apply(ext.Updates); err != nil {
					slog.Error("applying facts failed", "agent", agent, "err", err)
				}
			}
			if ext.ActiveContext != "" {
				c.saveActiveContext(agent, ext.ActiveContext)
			}
		}
	} else {
		slog.Debug("skipping extraction for short session",
			"agent", agent, "session", s.ID, "user_turns", s.UserTurns())
	}

	_, err := c.engine.RunPass(ctx, agent)
	return err
}

func (c *Compactor) saveActiveContext(agent, text string) {
	dir := path.Join("agents", agent)
	if err := c.store.MkdirAll(dir); err != nil {
		slog.Warn("saving active context failed", "agent", agent, "err", err)
		return
	}
	if err := c.store.Write(path.Join(dir, activeContextFile), []byte(text+"\n")); err != nil {
		slog.Warn("saving active context failed", "agent", agent, "err", err)
	}
}
