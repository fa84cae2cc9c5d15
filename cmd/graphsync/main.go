package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hanpama/graphsync/internal/config"
	"github.com/hanpama/graphsync/internal/eventbus"
	"github.com/hanpama/graphsync/internal/metrics"
	"github.com/hanpama/graphsync/internal/otel"
	"github.com/spf13/cobra"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath   string
	logLevel     string
	logFormat    string
	otelEndpoint string
	otelService  string
	metricsAddr  string

	endpoint      string
	storeInMemory bool
}

func run(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.Execute()
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "graphsync",
		Short:         "Source nodes from a remote GraphQL API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML config file")
	pf.StringVar(&g.logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log.format", "text", "Log format: text or json")
	pf.StringVar(&g.otelEndpoint, "otel.endpoint", "", "OTLP collector endpoint")
	pf.StringVar(&g.otelService, "otel.service", "graphsync", "OpenTelemetry service name")
	pf.StringVar(&g.metricsAddr, "metrics.addr", "", "Serve Prometheus metrics on this address")
	pf.StringVar(&g.endpoint, "endpoint", "", "Remote GraphQL endpoint, overrides the config")
	pf.BoolVar(&g.storeInMemory, "store.in-memory", false, "Keep nodes and sync state in memory")

	root.AddCommand(
		newPrebootstrapCmd(g),
		newCustomizeSchemaCmd(g),
		newSourceCmd(g),
		newRunCmd(g),
		newIntrospectCmd(g),
	)
	return root
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// loadConfig applies flags on top of the file and environment.
func loadConfig(g *globalFlags) (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	if g.endpoint != "" {
		cfg.Endpoint = g.endpoint
	}
	if g.storeInMemory {
		cfg.Store.InMemory = true
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// observe turns on the event bus and the optional exporters. The returned
// function stops them.
func observe(g *globalFlags, logger *slog.Logger) (func(), error) {
	eventbus.Use(eventbus.New())
	shutdownTracing, err := otel.Setup(g.otelEndpoint, g.otelService)
	if err != nil {
		return nil, fmt.Errorf("otel setup: %w", err)
	}

	var srv *http.Server
	var unsubscribe func()
	if g.metricsAddr != "" {
		m := metrics.New()
		unsubscribe = m.Subscribe()
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv = &http.Server{Addr: g.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listening", "addr", g.metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", "error", err)
			}
		}()
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if srv != nil {
			unsubscribe()
			_ = srv.Shutdown(ctx)
		}
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("otel shutdown", "error", err)
		}
		eventbus.Use(nil)
	}, nil
}
