package brain

import (
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/driftwhale/driftwhale/internal/schema"
	"github.com/driftwhale/driftwhale/internal/store"
)

const (
	brainFile   = "brain.md"
	archiveFile = "archive.md"
	auditFile   = "audit.jsonl"

	// DefaultMaxChars caps the serialized document size.
	DefaultMaxChars = 6000
)

// categorySections maps the append fact categories onto document sections.
var categorySections = map[schema.FactCategory]string{
	schema.FactCore:       "User",
	schema.FactPreference: "Preferences",
	schema.FactDecision:   "Decisions",
	schema.FactProject:    "Current",
}

// Service owns one agent's fact document: loading, mutation, overflow
// archival and the audit trail. At most one writer may be in flight per
// agent; the boundary scheduler guarantees that.
type Service struct {
	store    store.Store
	agentDir string
	maxChars int
	now      func() time.Time
}

// NewService creates a Service for the agent directory (e.g. "agents/main").
func NewService(st store.Store, agentDir string, maxChars int) *Service {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Service{
		store:    st,
		agentDir: agentDir,
		maxChars: maxChars,
		now:      time.Now,
	}
}

// Load reads and parses the document, returning an empty one when the file
// does not exist yet.
func (s *Service) Load() *Document {
	data, err := s.store.Read(path.Join(s.agentDir, brainFile))
	if err != nil {
		return NewDocument()
	}
	return Parse(string(data))
}

// Raw returns the serialized current document, or "" when empty. Used as
// negative context in prompts ("do not repeat facts already known").
func (s *Service) Raw() string {
	doc := s.Load()
	if doc.FactCount() == 0 {
		return ""
	}
	return doc.Serialize()
}

// Apply merges a batch of extracted facts into the document, enforces the
// size cap, persists the result, and records the batch in the audit log.
// Individual facts never fail the batch; storage errors do.
func (s *Service) Apply(updates []schema.Fact) error {
	if len(updates) == 0 {
		return nil
	}

	doc := s.Load()
	for _, f := range updates {
		switch f.Category {
		case schema.FactUpdate:
			s.applyUpdate(doc, f)
		case schema.FactDelete:
			s.applyDelete(doc, f)
		default:
			s.applyAppend(doc, f)
		}
	}

	archived := s.enforceCap(doc)

	if err := s.store.MkdirAll(s.agentDir); err != nil {
		return fmt.Errorf("create agent dir: %w", err)
	}
	if err := s.store.Write(path.Join(s.agentDir, brainFile), []byte(doc.Serialize())); err != nil {
		return fmt.Errorf("write fact document: %w", err)
	}

	if len(archived) > 0 {
		if err := s.appendArchive(archived); err != nil {
			slog.Warn("brain: failed to archive overflow facts", "err", err)
		}
	}
	if err := s.appendAudit(updates); err != nil {
		slog.Warn("brain: failed to append audit log", "err", err)
	}

	slog.Info("brain: applied updates", "agent_dir", s.agentDir,
		"updates", len(updates), "archived", len(archived), "size", doc.CharSize())
	return nil
}

// applyAppend adds the fact to its mapped section unless a fuzzy duplicate
// already lives there.
func (s *Service) applyAppend(doc *Document, f schema.Fact) {
	name := categorySections[f.Category]
	if name == "" {
		name = f.Section
	}
	sec := doc.Section(name)
	if sec == nil {
		sec = doc.Section("Current")
	}
	for _, existing := range sec.Facts {
		if isDuplicate(existing, f.Content) {
			slog.Debug("brain: skipping duplicate fact", "section", sec.Name, "fact", f.Content)
			return
		}
	}
	sec.Facts = append(sec.Facts, f.Content)
}

// applyUpdate locates the fact containing OldContent (declared section
// first, then everywhere) and replaces it in place. With no match the new
// content is appended as a fresh fact instead.
func (s *Service) applyUpdate(doc *Document, f schema.Fact) {
	if f.OldContent != "" {
		if sec, i := findFact(doc, f.Section, f.OldContent); sec != nil {
			sec.Facts[i] = f.Content
			return
		}
	}
	s.applyAppend(doc, schema.Fact{
		Category: schema.FactProject,
		Section:  f.Section,
		Content:  f.Content,
	})
}

// applyDelete removes the first fact containing Content; a miss is a no-op.
func (s *Service) applyDelete(doc *Document, f schema.Fact) {
	sec, i := findFact(doc, f.Section, f.Content)
	if sec == nil {
		return
	}
	sec.Facts = append(sec.Facts[:i], sec.Facts[i+1:]...)
}

// findFact searches for a fact containing needle as a substring, in the
// declared section first and then across all sections.
func findFact(doc *Document, declared, needle string) (*Section, int) {
	if declared != "" {
		if sec := doc.Section(declared); sec != nil {
			for i, fact := range sec.Facts {
				if strings.Contains(fact, needle) {
					return sec, i
				}
			}
		}
	}
	for si := range doc.Sections {
		sec := &doc.Sections[si]
		for i, fact := range sec.Facts {
			if strings.Contains(fact, needle) {
				return sec, i
			}
		}
	}
	return nil, 0
}

// archivedFact records a fact displaced by the size cap.
type archivedFact struct {
	Section string
	Content string
}

// enforceCap evicts the oldest facts from the most volatile sections until
// the serialized document fits maxChars. Evicted facts are returned for
// archival; nothing is silently dropped.
func (s *Service) enforceCap(doc *Document) []archivedFact {
	var archived []archivedFact
	for doc.CharSize() > s.maxChars {
		evicted := false
		for _, name := range volatileOrder {
			sec := doc.Section(name)
			if sec == nil || len(sec.Facts) == 0 {
				continue
			}
			archived = append(archived, archivedFact{Section: sec.Name, Content: sec.Facts[0]})
			sec.Facts = sec.Facts[1:]
			evicted = true
			break
		}
		if !evicted {
			break
		}
	}
	return archived
}

// appendArchive appends displaced facts, timestamped, to the append-only
// archive document.
func (s *Service) appendArchive(facts []archivedFact) error {
	p := path.Join(s.agentDir, archiveFile)
	existing, _ := s.store.Read(p)

	var b strings.Builder
	b.Write(existing)
	ts := s.now().UTC().Format("2006-01-02 15:04")
	for _, f := range facts {
		fmt.Fprintf(&b, "- [%s] (%s) %s\n", ts, f.Section, f.Content)
	}
	return s.store.Write(p, []byte(b.String()))
}

// auditEntry is one line of the audit log. The log is for human inspection
// only and is never replayed into the document.
type auditEntry struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (s *Service) appendAudit(updates []schema.Fact) error {
	p := path.Join(s.agentDir, auditFile)
	existing, _ := s.store.Read(p)

	var b strings.Builder
	b.Write(existing)
	ts := s.now().UTC().Format(time.RFC3339)
	for _, f := range updates {
		entry := auditEntry{
			ID:        uuid.NewString(),
			Category:  string(f.Category),
			Content:   f.Content,
			Timestamp: ts,
		}
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal audit entry: %w", err)
		}
		b.Write(line)
		b.WriteString("\n")
	}
	return s.store.Write(p, []byte(b.String()))
}
