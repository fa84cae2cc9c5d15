package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hanpama/graphsync/internal/compiler"
	"github.com/hanpama/graphsync/internal/config"
	"github.com/hanpama/graphsync/internal/delta"
	"github.com/hanpama/graphsync/internal/discovery"
	"github.com/hanpama/graphsync/internal/fragments"
	"github.com/hanpama/graphsync/internal/introspection"
	"github.com/hanpama/graphsync/internal/remote"
	"github.com/hanpama/graphsync/internal/runid"
	"github.com/hanpama/graphsync/internal/sourcing"
	badgerstore "github.com/hanpama/graphsync/internal/storage/badger"
	"github.com/spf13/cobra"
)

// process is what one command invocation works with.
type process struct {
	cfg    config.Config
	logger *slog.Logger
	exec   remote.Executor
	out    io.Writer
}

// withProcess loads the configuration, sets up logging and observability,
// and runs fn with a fresh run id.
func withProcess(g *globalFlags, fn func(ctx context.Context, p *process) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		logger, err := newLogger(cmd.ErrOrStderr(), g.logLevel, g.logFormat)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(g)
		if err != nil {
			return err
		}
		stop, err := observe(g, logger)
		if err != nil {
			return err
		}
		defer stop()

		opts := []remote.Option{remote.WithLogger(logger), remote.WithTimeout(cfg.Timeout)}
		if cfg.RateLimit > 0 {
			opts = append(opts, remote.WithRateLimit(cfg.RateLimit))
		}
		p := &process{
			cfg:    cfg,
			logger: logger,
			exec:   remote.NewHTTPExecutor(cfg.Endpoint, cfg.Token, opts...),
			out:    cmd.OutOrStdout(),
		}
		ctx, id := runid.NewContext(cmd.Context())
		logger.DebugContext(ctx, "starting", "command", cmd.Name(), "run_id", id)
		return fn(ctx, p)
	}
}

// withEngine additionally opens the store and builds the engine.
func withEngine(g *globalFlags, fn func(ctx context.Context, p *process, e *sourcing.Engine) error) func(*cobra.Command, []string) error {
	return withProcess(g, func(ctx context.Context, p *process) error {
		storeCfg := badgerstore.DefaultConfig(p.cfg.Store.Path)
		if p.cfg.Store.InMemory {
			storeCfg = badgerstore.InMemoryConfig()
		}
		storeCfg.Logger = p.logger
		db, err := badgerstore.Open(storeCfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				p.logger.Warn("close store", "error", err)
			}
		}()

		e, err := newEngine(p, db)
		if err != nil {
			return err
		}
		return fn(ctx, p, e)
	})
}

func newEngine(p *process, db *badgerstore.DB) (*sourcing.Engine, error) {
	policy, err := sourcing.ParsePolicy(p.cfg.SyncPolicy)
	if err != nil {
		return nil, err
	}
	strategy, err := discovery.ParseStrategy(p.cfg.Discovery)
	if err != nil {
		return nil, err
	}
	return sourcing.New(p.exec, db.Cache(), db.Nodes(),
		sourcing.WithLogger(p.logger),
		sourcing.WithTypePrefix(p.cfg.TypePrefix),
		sourcing.WithPageSize(p.cfg.PageSize),
		sourcing.WithConcurrency(p.cfg.Concurrency),
		sourcing.WithPolicy(policy),
		sourcing.WithStrategy(strategy),
		sourcing.WithFragments(fragments.New(p.cfg.FragmentsDir, fragments.WithLogger(p.logger))),
		sourcing.WithCompiler(compiler.New(compiler.WithDebugDir(p.cfg.DebugDir), compiler.WithLogger(p.logger))),
		sourcing.WithChangeSource(delta.Static{Events: p.cfg.StaticEvents}),
	), nil
}

func printReport(w io.Writer, r *sourcing.Report) {
	fmt.Fprintf(w, "%s sync of %d types: %d created, %d updated, %d deleted, %d unchanged",
		r.Mode, r.Types, r.Created, r.Updated, r.Deleted, r.Unchanged)
	if r.Mode == sourcing.ModeDelta {
		fmt.Fprintf(w, " from %d events", r.Events)
	}
	fmt.Fprintln(w)
}

func newPrebootstrapCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prebootstrap",
		Short: "Write default fragment files for node types that have none",
		Args:  cobra.NoArgs,
		RunE: withEngine(g, func(ctx context.Context, p *process, e *sourcing.Engine) error {
			written, err := e.PreBootstrap(ctx)
			if err != nil {
				return err
			}
			for _, name := range written {
				fmt.Fprintln(p.out, fragments.New(p.cfg.FragmentsDir).Path(name))
			}
			return nil
		}),
	}
}

func newCustomizeSchemaCmd(g *globalFlags) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "customize-schema",
		Short: "Write the local node types as SDL",
		Args:  cobra.NoArgs,
		RunE: withEngine(g, func(ctx context.Context, p *process, e *sourcing.Engine) error {
			return e.CustomizeSchema(ctx, registry(p, out))
		}),
	}
	cmd.Flags().StringVar(&out, "out", "", "SDL output file or URL, overrides schemaOutput; - for stdout")
	return cmd
}

func newSourceCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "source",
		Short: "Run a full or delta sync of the node store",
		Args:  cobra.NoArgs,
		RunE: withEngine(g, func(ctx context.Context, p *process, e *sourcing.Engine) error {
			report, err := e.SourceNodes(ctx)
			if err != nil {
				return err
			}
			printReport(p.out, report)
			return nil
		}),
	}
}

func newRunCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run prebootstrap, customize-schema and source in order",
		Args:  cobra.NoArgs,
		RunE: withEngine(g, func(ctx context.Context, p *process, e *sourcing.Engine) error {
			report, err := e.Run(ctx, registry(p, ""))
			if err != nil {
				return err
			}
			printReport(p.out, report)
			return nil
		}),
	}
}

func newIntrospectCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "introspect",
		Short: "Print the remote schema as SDL",
		Args:  cobra.NoArgs,
		RunE: withProcess(g, func(ctx context.Context, p *process) error {
			rs, err := introspection.NewLoader(p.exec, p.logger).Load(ctx)
			if err != nil {
				return err
			}
			_, err = io.WriteString(p.out, rs.SDL)
			return err
		}),
	}
}

func registry(p *process, out string) sourcing.TypeRegistry {
	if out == "" {
		out = p.cfg.SchemaOutput
	}
	if out == "-" {
		return sourcing.RegistryFunc(func(_ context.Context, sdl string) error {
			_, err := io.WriteString(p.out, sdl)
			return err
		})
	}
	return sourcing.NewFileRegistry(out, nil)
}
