// Package sweeper runs the background memory maintenance schedule: it closes
// idle sessions so their boundaries run, which in turn drives fact extraction
// and consolidation.
package sweeper

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/driftwhale/driftwhale/internal/agent"
	"github.com/driftwhale/driftwhale/internal/session"
)

// Sweeper periodically closes idle sessions and schedules their boundaries.
type Sweeper struct {
	sessions  *session.Manager
	compactor *agent.Compactor
	timeout   time.Duration
	cron      *cron.Cron
}

func New(sm *session.Manager, compactor *agent.Compactor, timeout time.Duration) *Sweeper {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Sweeper{sessions: sm, compactor: compactor, timeout: timeout}
}

// Start begins sweeping on the given cron schedule.
func (s *Sweeper) Start(schedule string) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("sweeper started", "schedule", schedule, "idle_timeout", s.timeout)
	return nil
}

// Stop halts the schedule. Boundaries already queued keep running.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Sweep rotates every session idle past the timeout and hands it to the
// compactor. Exported so a manual maintenance command can trigger it.
func (s *Sweeper) Sweep() {
	for _, live := range s.sessions.ActiveSessions() {
		if live.Len() == 0 || time.Since(live.LastActivity()) < s.timeout {
			continue
		}

		old, err := s.sessions.Rotate(live.Agent)
		if err != nil {
			slog.Error("rotating idle session failed", "agent", live.Agent, "err", err)
			continue
		}
		if old == nil {
			continue
		}

		slog.Info("closing idle session", "agent", old.Agent, "session", old.ID,
			"idle", time.Since(old.LastActivity()).Round(time.Second))
		s.compactor.Schedule(old)
	}
}
