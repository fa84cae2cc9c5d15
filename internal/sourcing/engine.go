// Package sourcing runs the lifecycle hooks: it prepares fragment files,
// registers the local types and keeps the node store in sync with the
// remote API.
package sourcing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	cache "github.com/hanpama/graphsync/internal/cache"
	compiler "github.com/hanpama/graphsync/internal/compiler"
	delta "github.com/hanpama/graphsync/internal/delta"
	discovery "github.com/hanpama/graphsync/internal/discovery"
	eventbus "github.com/hanpama/graphsync/internal/eventbus"
	events "github.com/hanpama/graphsync/internal/events"
	fragments "github.com/hanpama/graphsync/internal/fragments"
	introspection "github.com/hanpama/graphsync/internal/introspection"
	nodes "github.com/hanpama/graphsync/internal/nodes"
	queue "github.com/hanpama/graphsync/internal/queue"
	remote "github.com/hanpama/graphsync/internal/remote"
	runid "github.com/hanpama/graphsync/internal/runid"
)

const (
	DefaultTypePrefix = "Craft_"
	DefaultPageSize   = 100
)

// Plan is everything a run needs that does not change within a process:
// the remote schema, the node types and their compiled documents.
type Plan struct {
	Schema    *introspection.RemoteSchema
	Discovery *discovery.Result
	Documents []*compiler.Document
	Policy    SyncPolicy
}

// Document returns the compiled document of a node type, or nil.
func (p *Plan) Document(remoteTypeName string) *compiler.Document {
	for _, doc := range p.Documents {
		if doc.RemoteTypeName() == remoteTypeName {
			return doc
		}
	}
	return nil
}

// Engine owns the collaborators of a sourcing process.
type Engine struct {
	queue      *queue.Queue
	loader     *introspection.Loader
	discoverer *discovery.Discoverer
	detector   *delta.Detector
	fragments  *fragments.Store
	compiler   *compiler.Compiler
	cache      cache.Cache
	store      nodes.Store
	builder    *nodes.Builder

	prefix      string
	pageSize    int
	concurrency int
	policy      SyncPolicy
	strategy    discovery.Strategy
	changes     delta.Source
	logger      *slog.Logger

	mu   sync.Mutex
	plan *Plan
}

type Option func(*Engine)

func WithTypePrefix(prefix string) Option { return func(e *Engine) { e.prefix = prefix } }

func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithConcurrency bounds the remote operations in flight.
func WithConcurrency(n int) Option { return func(e *Engine) { e.concurrency = n } }

func WithPolicy(p SyncPolicy) Option { return func(e *Engine) { e.policy = p } }

func WithStrategy(s discovery.Strategy) Option { return func(e *Engine) { e.strategy = s } }

func WithFragments(s *fragments.Store) Option { return func(e *Engine) { e.fragments = s } }

func WithCompiler(c *compiler.Compiler) Option { return func(e *Engine) { e.compiler = c } }

// WithChangeSource sets where the flag policy gets its delta events.
func WithChangeSource(src delta.Source) Option { return func(e *Engine) { e.changes = src } }

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New builds an engine around exec. The schema is loaded through exec
// directly; every other remote operation goes through a bounded queue.
func New(exec remote.Executor, c cache.Cache, store nodes.Store, opts ...Option) *Engine {
	e := &Engine{
		cache:       c,
		store:       store,
		prefix:      DefaultTypePrefix,
		pageSize:    DefaultPageSize,
		concurrency: queue.DefaultLimit,
		policy:      PolicyAuto,
		strategy:    discovery.StrategyAuto,
		changes:     delta.Static{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fragments == nil {
		e.fragments = fragments.New("src/fragments", fragments.WithLogger(e.logger))
	}
	if e.compiler == nil {
		e.compiler = compiler.New(compiler.WithLogger(e.logger))
	}
	e.queue = queue.New(exec, e.concurrency)
	e.loader = introspection.NewLoader(exec, e.logger)
	e.discoverer = discovery.New(e.strategy, e.queue, e.logger)
	e.detector = delta.NewDetector(e.queue, e.logger)
	e.builder = nodes.NewBuilder(e.prefix)
	return e
}

func (e *Engine) TypePrefix() string { return e.prefix }

func (e *Engine) log(ctx context.Context) *slog.Logger {
	if id, ok := runid.FromContext(ctx); ok {
		return e.logger.With("run_id", id)
	}
	return e.logger
}

// discover loads the schema and the node types. Both are memoized by
// their components.
func (e *Engine) discover(ctx context.Context) (*introspection.RemoteSchema, *discovery.Result, error) {
	rs, err := e.loader.Load(ctx)
	if err != nil {
		return nil, nil, &RunError{Phase: PhaseLoadSchema, Operation: introspection.OperationName, Err: err}
	}
	res, err := e.discoverer.Discover(ctx, rs)
	if err != nil {
		return nil, nil, &RunError{Phase: PhaseDiscover, Err: err}
	}
	return rs, res, nil
}

// Prepare builds the plan on first use and returns it afterwards. Nothing
// is mutated before it succeeds.
func (e *Engine) Prepare(ctx context.Context) (*Plan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.plan != nil {
		return e.plan, nil
	}

	rs, res, err := e.discover(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.fragments.EnsureDir(ctx); err != nil {
		return nil, &RunError{Phase: PhaseFragments, Err: err}
	}
	custom, err := e.fragments.CollectAll(ctx)
	if err != nil {
		return nil, &RunError{Phase: PhaseFragments, Err: err}
	}
	docs, err := e.compiler.Compile(ctx, rs, res.Types, custom)
	if err != nil {
		var cerr *compiler.CompileError
		if errors.As(err, &cerr) {
			return nil, &RunError{Phase: PhaseCompile, RemoteTypeName: cerr.RemoteTypeName, Err: err}
		}
		return nil, &RunError{Phase: PhaseCompile, Err: err}
	}

	policy := e.policy
	if policy == PolicyAuto {
		policy = PolicyFlag
		if delta.Supported(rs) {
			policy = PolicyWatermark
		}
	}
	e.plan = &Plan{Schema: rs, Discovery: res, Documents: docs, Policy: policy}
	e.log(ctx).InfoContext(ctx, "sourcing plan ready", "types", len(docs), "policy", policy, "strategy", res.Strategy)
	return e.plan, nil
}

// PreBootstrap writes default fragments for node types that have none.
// It returns the types it wrote files for.
func (e *Engine) PreBootstrap(ctx context.Context) ([]string, error) {
	rs, res, err := e.discover(ctx)
	if err != nil {
		return nil, err
	}
	written, err := e.fragments.EnsureDefaults(ctx, rs, res.Types)
	if err != nil {
		return written, &RunError{Phase: PhaseFragments, Err: err}
	}
	return written, nil
}

// CustomizeSchema registers one local type per node type. It runs on
// every invocation regardless of sync mode.
func (e *Engine) CustomizeSchema(ctx context.Context, reg TypeRegistry) error {
	plan, err := e.Prepare(ctx)
	if err != nil {
		return err
	}
	local := LocalSchema(plan, e.prefix)
	if err := reg.RegisterTypes(ctx, local); err != nil {
		return &RunError{Phase: PhaseRegister, Err: err}
	}
	e.log(ctx).InfoContext(ctx, "registered local types", "types", len(plan.Documents))
	return nil
}

func (e *Engine) syncState(plan *Plan) syncState {
	if plan.Policy == PolicyWatermark {
		return &watermarkState{cache: e.cache, key: CacheKey(e.prefix, watermarkKey), detector: e.detector}
	}
	return &flagState{cache: e.cache, key: CacheKey(e.prefix, sourcedKey), source: e.changes}
}

// SourceNodes runs a full or delta sync and persists the sync state when
// it succeeds.
func (e *Engine) SourceNodes(ctx context.Context) (*Report, error) {
	start := time.Now()
	plan, err := e.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	logger := e.log(ctx)

	state := e.syncState(plan)
	mode, err := state.decide(ctx)
	if err != nil {
		return nil, &RunError{Phase: PhaseSyncState, Err: err}
	}
	report := &Report{Mode: mode, Types: len(plan.Documents)}
	eventbus.Publish(ctx, events.SyncStart{Mode: string(mode), Types: report.Types})
	logger.InfoContext(ctx, "sourcing nodes", "mode", mode, "types", report.Types)

	t := newTally()
	switch mode {
	case ModeFull:
		err = e.fullSync(ctx, plan, t)
	case ModeDelta:
		var evs []delta.Event
		evs, err = state.changes(ctx)
		if err != nil {
			err = &RunError{Phase: PhaseDeltaSync, Err: err}
			break
		}
		report.Events = len(evs)
		err = e.applyChanges(ctx, plan, evs, t)
	}
	if err == nil {
		if cerr := state.commit(ctx); cerr != nil {
			err = &RunError{Phase: PhasePersistState, Err: cerr}
		}
	}
	t.fill(report)

	eventbus.Publish(ctx, events.SyncFinish{
		Mode:      string(mode),
		Created:   report.Created,
		Updated:   report.Updated,
		Deleted:   report.Deleted,
		Unchanged: report.Unchanged,
		Err:       err,
		Duration:  time.Since(start),
	})
	if err != nil {
		logger.ErrorContext(ctx, "sourcing failed", "mode", mode, "error", err)
		return nil, err
	}
	logger.InfoContext(ctx, "sourcing finished", "report", report, "duration", time.Since(start))
	return report, nil
}

// Run invokes the three hooks in lifecycle order.
func (e *Engine) Run(ctx context.Context, reg TypeRegistry) (*Report, error) {
	if _, err := e.PreBootstrap(ctx); err != nil {
		return nil, err
	}
	if err := e.CustomizeSchema(ctx, reg); err != nil {
		return nil, err
	}
	return e.SourceNodes(ctx)
}
