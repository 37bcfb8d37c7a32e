package team

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/harun/agentforge/internal/config"
	"github.com/harun/agentforge/internal/observability"
	"github.com/harun/agentforge/pkg/agent"
	"github.com/harun/agentforge/pkg/control"
	"github.com/harun/agentforge/pkg/events"
	"github.com/harun/agentforge/pkg/hooks"
	"github.com/harun/agentforge/pkg/llm"
	"github.com/harun/agentforge/pkg/memory"
	"github.com/harun/agentforge/pkg/toolexecutor"
	"github.com/harun/agentforge/pkg/workflow"
	"github.com/rs/zerolog"
)

// Option configures a Team
type Option func(*Team)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Team) {
		t.logger = logger
	}
}

// WithProvider registers or replaces the provider for a model prefix.
func WithProvider(name string, provider llm.Provider) Option {
	return func(t *Team) {
		t.extraProviders[name] = provider
	}
}

// WithoutEnvProviders skips the providers built from API keys in the environment.
func WithoutEnvProviders() Option {
	return func(t *Team) {
		t.skipEnv = true
	}
}

// WithBackoff sets the base delay between model retries
func WithBackoff(d time.Duration) Option {
	return func(t *Team) {
		t.backoff = d
	}
}

// WithApprover sets the handler for approval gates. Without one, gates are skipped.
func WithApprover(approver control.Approver) Option {
	return func(t *Team) {
		t.approver = approver
	}
}

// WithMemoryStore uses st instead of opening the configured backend.
// The team does not close a store passed this way.
func WithMemoryStore(st memory.Store) Option {
	return func(t *Team) {
		t.memory = st
		t.externalMemory = true
	}
}

// WithSubscriber receives every event of every run, in order.
func WithSubscriber(fn func(events.Event)) Option {
	return func(t *Team) {
		t.subscribers = append(t.subscribers, fn)
	}
}

// Team owns the agents, the shared tool registry, memory and router built from a config.
type Team struct {
	cfg      *config.Config
	router   *llm.Router
	registry *toolexecutor.Registry
	builtins *toolexecutor.Builtins
	agents   map[string]*agent.Agent
	workflow workflow.Workflow
	approver control.Approver
	logger   zerolog.Logger

	memory         memory.Store
	externalMemory bool

	extraProviders map[string]llm.Provider
	skipEnv        bool
	backoff        time.Duration
	subscribers    []func(events.Event)
	hooks          *hooks.Manager
}

// New validates cfg and builds the team. The returned Team must be closed.
func New(cfg *config.Config, opts ...Option) (*Team, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	observability.EnsureRegistered()

	t := &Team{
		cfg:            cfg,
		agents:         make(map[string]*agent.Agent),
		logger:         zerolog.Nop(),
		extraProviders: make(map[string]llm.Provider),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With().Str("component", "team").Str("team", cfg.Team.Name).Logger()

	t.registry = toolexecutor.New()
	builtins, err := toolexecutor.RegisterBuiltins(t.registry, toolexecutor.BuiltinOptions{
		BaseDir:              cfg.Tools.BaseDir,
		HTTPTimeout:          time.Duration(cfg.Tools.HTTPTimeout * float64(time.Second)),
		AllowPrivateNetworks: cfg.Tools.AllowPrivateNetworks,
		Browser: toolexecutor.BrowserOptions{
			Enabled:    cfg.Tools.Browser.Enabled,
			Headless:   cfg.Tools.Browser.Headless,
			ControlURL: cfg.Tools.Browser.ControlURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	t.builtins = builtins

	if err := config.NewValidator(builtins.Names()...).Validate(cfg); err != nil {
		t.builtins.Close()
		return nil, err
	}
	for _, w := range cfg.Warnings() {
		t.logger.Warn().Msg(w)
	}

	if err := t.openMemory(); err != nil {
		t.builtins.Close()
		return nil, err
	}

	t.router = llm.NewRouter(llm.RouterConfig{
		DefaultModel:      cfg.Team.LLM,
		Providers:         t.providers(),
		BaseDelay:         t.backoff,
		RequestsPerSecond: cfg.Team.Control.RequestsPerSecond,
		DisableCost:       !cfg.Team.Observe.CostTracking,
		Logger:            t.logger,
	})

	for _, name := range cfg.AgentNames() {
		a, err := t.buildAgent(name, cfg.Agents[name])
		if err != nil {
			t.Close()
			return nil, err
		}
		t.agents[name] = a
	}

	if len(cfg.Hooks) > 0 {
		t.hooks, err = hooks.FromConfig(cfg.Hooks, t.logger)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("invalid hooks: %w", err)
		}
	}

	t.workflow = BuildWorkflow(cfg)

	t.logger.Info().
		Int("agents", len(t.agents)).
		Int("steps", cfg.StepCount()).
		Int("hooks", t.hooks.Len()).
		Str("llm", cfg.Team.LLM).
		Msg("Team ready")

	return t, nil
}

func (t *Team) providers() map[string]llm.Provider {
	providers := map[string]llm.Provider{}
	if !t.skipEnv {
		providers = ProvidersFromEnv()
	}
	for name, p := range t.extraProviders {
		providers[name] = p
	}
	return providers
}

func (t *Team) openMemory() error {
	if t.memory != nil || !t.memoryWanted() {
		return nil
	}

	mc := t.cfg.Team.Memory
	var embedder memory.Embedder
	if mc.Backend == memory.BackendVector {
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return errors.New("vector memory needs OPENAI_API_KEY for embeddings")
		}
		embedder = memory.NewOpenAIEmbedder(key, mc.EmbeddingModel)
	}

	st, err := memory.Open(memory.Config{
		Backend:  mc.Backend,
		Path:     mc.Path,
		Shared:   mc.Shared,
		MaxItems: mc.MaxItems,
		Embedder: embedder,
		Logger:   t.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open memory: %w", err)
	}
	t.memory = st
	return nil
}

// memoryWanted reports whether any agent ends up with memory enabled.
func (t *Team) memoryWanted() bool {
	for _, ac := range t.cfg.Agents {
		if t.agentUsesMemory(ac) {
			return true
		}
	}
	return false
}

func (t *Team) agentUsesMemory(ac config.AgentConfig) bool {
	if ac.Memory != nil {
		return *ac.Memory
	}
	return t.cfg.Team.Memory.Enabled
}

// buildAgent fills unset agent fields from the team defaults.
func (t *Team) buildAgent(name string, ac config.AgentConfig) (*agent.Agent, error) {
	team := t.cfg.Team

	ag := agent.Config{
		Name:         name,
		Role:         ac.Role,
		Goal:         ac.Goal,
		Backstory:    ac.Backstory,
		Instructions: ac.Instructions,
		Model:        ac.LLM,
		Fallbacks:    ac.Fallback,
		Temperature:  team.Temperature,
		MaxTokens:    ac.MaxTokens,
		Tools:        ac.Tools,
		Control: agent.Control{
			MaxIterations:       ac.Control.MaxIterations,
			ConfidenceThreshold: team.Control.ConfidenceThreshold,
			RecallLimit:         ac.Control.RecallLimit,
			AllowedActions:      ac.Control.AllowedActions,
			BlockedActions:      ac.Control.BlockedActions,
		},
	}
	if ag.Model == "" {
		ag.Model = team.LLM
	}
	if ac.Temperature != nil {
		ag.Temperature = *ac.Temperature
	}
	if ag.MaxTokens <= 0 {
		ag.MaxTokens = team.MaxTokens
	}
	if ac.Control.ConfidenceThreshold != nil {
		ag.Control.ConfidenceThreshold = *ac.Control.ConfidenceThreshold
	}

	opts := []agent.Option{
		agent.WithTools(t.registry),
		agent.WithLogger(t.logger),
	}
	if t.agentUsesMemory(ac) {
		opts = append(opts, agent.WithMemory(t.memory))
	}
	return agent.New(ag, opts...)
}

// BuildWorkflow converts the configured steps into a workflow.Workflow.
func BuildWorkflow(cfg *config.Config) workflow.Workflow {
	wf := workflow.Workflow{
		MaxRetries:     cfg.Team.Control.MaxRetries,
		DefaultTimeout: cfg.Team.Control.StepTimeout(),
	}
	for _, sc := range cfg.Workflow.Steps {
		if sc.IsParallel() {
			group := workflow.ParallelGroup{}
			for _, member := range sc.Parallel {
				group.Steps = append(group.Steps, toStep(member))
			}
			wf.Elements = append(wf.Elements, group)
			continue
		}
		wf.Elements = append(wf.Elements, toStep(sc))
	}
	return wf
}

func toStep(sc config.StepConfig) workflow.Step {
	return workflow.Step{
		ID:           sc.ID,
		Agent:        sc.Agent,
		Task:         sc.Task,
		OutputFormat: sc.OutputFormat,
		Timeout:      sc.TimeoutDuration(),
		RetryOnFail:  sc.RetryOnFail,
		ApprovalGate: sc.ApprovalGate,
		DryRun:       sc.DryRun,
		Condition:    sc.Condition,
		SaveAs:       sc.SaveAs,
		OnSuccess:    sc.OnSuccess,
		OnFail:       sc.OnFail,
		Next:         sc.Next,
	}
}

// Name returns the team name
func (t *Team) Name() string { return t.cfg.Team.Name }

// Config returns the config the team was built from
func (t *Team) Config() *config.Config { return t.cfg }

// Agent returns the named agent
func (t *Team) Agent(name string) (*agent.Agent, bool) {
	a, ok := t.agents[name]
	return a, ok
}

// Router returns the shared model router
func (t *Team) Router() *llm.Router { return t.router }

// Tools returns the shared tool registry
func (t *Team) Tools() *toolexecutor.Registry { return t.registry }

// Close releases the memory store and the browser, if any.
func (t *Team) Close() error {
	var errs []error
	if t.memory != nil && !t.externalMemory {
		if err := t.memory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close memory: %w", err))
		}
	}
	if t.builtins != nil {
		if err := t.builtins.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tools: %w", err))
		}
	}
	return errors.Join(errs...)
}
