// Package dependency wires core driftwhale services using go.uber.org/dig.
package dependency

import (
	"fmt"
	"path"
	"time"

	"go.uber.org/dig"

	"github.com/driftwhale/driftwhale/internal/agent"
	"github.com/driftwhale/driftwhale/internal/brain"
	"github.com/driftwhale/driftwhale/internal/config"
	"github.com/driftwhale/driftwhale/internal/consolidate"
	"github.com/driftwhale/driftwhale/internal/providers"
	"github.com/driftwhale/driftwhale/internal/schema"
	"github.com/driftwhale/driftwhale/internal/session"
	"github.com/driftwhale/driftwhale/internal/store"
	"github.com/driftwhale/driftwhale/internal/summary"
	"github.com/driftwhale/driftwhale/internal/sweeper"
	"github.com/driftwhale/driftwhale/internal/tokens"
)

// BrainFactory returns the fact-document service for an agent.
type BrainFactory func(agentName string) *brain.Service

// Container holds the resolved core service singletons. Callers use the
// typed getter methods; they never need to import dig directly.
type Container struct {
	cfg        *config.Config
	store      store.Store
	completer  schema.Completer
	catalog    *providers.ModelCatalog
	sessions   *session.Manager
	brains     BrainFactory
	engine     *consolidate.Engine
	compactor  *agent.Compactor
	contextB   *agent.ContextBuilder
	summarizer *summary.Summarizer
	counter    tokens.Counter
	sweep      *sweeper.Sweeper
}

func (c *Container) Config() *config.Config                { return c.cfg }
func (c *Container) Store() store.Store                    { return c.store }
func (c *Container) Completer() schema.Completer           { return c.completer }
func (c *Container) Catalog() *providers.ModelCatalog      { return c.catalog }
func (c *Container) Sessions() *session.Manager            { return c.sessions }
func (c *Container) Brain(agentName string) *brain.Service { return c.brains(agentName) }
func (c *Container) Engine() *consolidate.Engine           { return c.engine }
func (c *Container) Compactor() *agent.Compactor           { return c.compactor }
func (c *Container) Context() *agent.ContextBuilder        { return c.contextB }
func (c *Container) Summarizer() *summary.Summarizer       { return c.summarizer }
func (c *Container) Counter() tokens.Counter               { return c.counter }
func (c *Container) Sweeper() *sweeper.Sweeper             { return c.sweep }

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	providersFns := []any{
		func() *config.Config { return cfg },
		newStore,
		newCompleter,
		newCatalog,
		newSessionManager,
		newBrainFactory,
		newEngine,
		newExtractor,
		newCompactor,
		newContextBuilder,
		newSummarizer,
		newCounter,
		newSweeper,
	}
	for _, fn := range providersFns {
		if err := d.Provide(fn); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		st store.Store,
		completer schema.Completer,
		catalog *providers.ModelCatalog,
		sessions *session.Manager,
		brains BrainFactory,
		engine *consolidate.Engine,
		compactor *agent.Compactor,
		contextB *agent.ContextBuilder,
		summarizer *summary.Summarizer,
		counter tokens.Counter,
		sweep *sweeper.Sweeper,
	) {
		result = &Container{
			cfg:        cfg,
			store:      st,
			completer:  completer,
			catalog:    catalog,
			sessions:   sessions,
			brains:     brains,
			engine:     engine,
			compactor:  compactor,
			contextB:   contextB,
			summarizer: summarizer,
			counter:    counter,
			sweep:      sweep,
		}
	})
	return result, err
}

func newStore(cfg *config.Config) (store.Store, error) {
	st, err := store.NewWorkspaceStore(cfg.Workspace())
	if err != nil {
		return nil, err
	}
	return st, nil
}

func newCompleter(cfg *config.Config) (schema.Completer, *providers.OpenAICompleter, error) {
	if cfg.Provider.APIKey == "" {
		return nil, nil, fmt.Errorf("no API key configured, edit %s", config.ConfigPath())
	}
	p := providers.NewOpenAICompleter(cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Provider.Model)
	return p, p, nil
}

func newCatalog(p *providers.OpenAICompleter) *providers.ModelCatalog {
	return providers.NewModelCatalog(p)
}

func newSessionManager(st store.Store) *session.Manager {
	return session.NewManager(st)
}

func newBrainFactory(cfg *config.Config, st store.Store) BrainFactory {
	return func(agentName string) *brain.Service {
		return brain.NewService(st, path.Join("agents", agentName), cfg.Memory.BrainMaxChars)
	}
}

func newEngine(cfg *config.Config, st store.Store, sm *session.Manager, completer schema.Completer, brains BrainFactory) *consolidate.Engine {
	known := func(agentName string) string { return brains(agentName).Raw() }
	return consolidate.NewEngine(st, sm, completer, known, consolidate.Config{
		Model:        cfg.UtilityModel(),
		L1Batch:      cfg.Memory.L1Batch,
		L2Batch:      cfg.Memory.L2Batch,
		L3Batch:      cfg.Memory.L3Batch,
		KeepRecent:   cfg.Memory.KeepRecentSessions,
		MinUserTurns: cfg.Memory.MinUserTurns,
	})
}

func newExtractor(cfg *config.Config, completer schema.Completer) *brain.Extractor {
	return brain.NewExtractor(completer, cfg.UtilityModel())
}

func newCompactor(cfg *config.Config, st store.Store, sm *session.Manager, extractor *brain.Extractor, brains BrainFactory, engine *consolidate.Engine) *agent.Compactor {
	return agent.NewCompactor(st, sm, extractor,
		func(name string) *brain.Service { return brains(name) },
		engine, cfg.Memory.MinUserTurns)
}

func newContextBuilder(st store.Store, brains BrainFactory) *agent.ContextBuilder {
	return agent.NewContextBuilder(st, func(name string) *brain.Service { return brains(name) })
}

func newSummarizer(cfg *config.Config, completer schema.Completer) *summary.Summarizer {
	return summary.New(completer, cfg.UtilityModel())
}

func newCounter() tokens.Counter {
	return &tokens.Estimator{}
}

func newSweeper(cfg *config.Config, sm *session.Manager, compactor *agent.Compactor) *sweeper.Sweeper {
	return sweeper.New(sm, compactor,
		time.Duration(cfg.Memory.SessionTimeoutMinutes)*time.Minute)
}
