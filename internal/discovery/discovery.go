// Package discovery decides which remote types are sourced as nodes and
// writes the query templates used to fetch them.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	introspection "github.com/hanpama/graphsync/internal/introspection"
	remote "github.com/hanpama/graphsync/internal/remote"
)

// Strategy selects how node types are found.
type Strategy string

const (
	// StrategyAuto uses the dynamic strategy when the remote API describes
	// its node types, and the static one when the fixed interfaces exist.
	StrategyAuto Strategy = "auto"
	// StrategyStatic enumerates implementations of the fixed interfaces.
	StrategyStatic Strategy = "static"
	// StrategyDynamic asks the remote API through sourceNodeInformation.
	StrategyDynamic Strategy = "dynamic"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(s)) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyStatic:
		return StrategyStatic, nil
	case StrategyDynamic:
		return StrategyDynamic, nil
	}
	return "", fmt.Errorf("unknown discovery strategy %q", s)
}

// NodeType describes one sourced remote type. It is never modified after
// discovery returns it.
type NodeType struct {
	RemoteTypeName string
	RemoteIDFields []string
	// Interface is the abstract type the node type was found through.
	Interface string
	// ListQuery, NodeQuery and IdentityFragment are GraphQL templates.
	// Any of them may be empty.
	ListQuery        string
	NodeQuery        string
	IdentityFragment string
}

// Queries returns the templates as a single document.
func (n NodeType) Queries() string {
	var parts []string
	for _, q := range []string{n.ListQuery, n.NodeQuery, n.IdentityFragment} {
		if q != "" {
			parts = append(parts, q)
		}
	}
	return strings.Join(parts, "\n")
}

func (n NodeType) ListOperationName() string { return "LIST_" + n.RemoteTypeName }
func (n NodeType) NodeOperationName() string { return "NODE_" + n.RemoteTypeName }

// Target is an interface whose implementations are node types, together
// with the root field that loads any of them by id.
type Target struct {
	Interface string
	NodeField string
	Types     []string
}

// Result is the discovery output for one process.
type Result struct {
	Strategy Strategy // the strategy that actually ran
	Types    []NodeType
	Targets  []Target
}

// Type returns the node type with the given remote name.
func (r *Result) Type(name string) (NodeType, bool) {
	for _, t := range r.Types {
		if t.RemoteTypeName == name {
			return t, true
		}
	}
	return NodeType{}, false
}

// Target returns the target interface for name, accepting either the
// interface name or its name without the "Interface" suffix.
func (r *Result) Target(name string) (Target, bool) {
	for _, t := range r.Targets {
		if t.Interface == name || t.Interface == name+"Interface" {
			return t, true
		}
	}
	return Target{}, false
}

// Discoverer runs discovery once and hands out the same result afterwards.
type Discoverer struct {
	strategy Strategy
	exec     remote.Executor
	logger   *slog.Logger

	mu     sync.Mutex
	result *Result
}

func New(strategy Strategy, exec remote.Executor, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	if strategy == "" {
		strategy = StrategyAuto
	}
	return &Discoverer{strategy: strategy, exec: exec, logger: logger}
}

// Discover returns the node types of rs. Only the first successful call
// does any work, including the capability query.
func (d *Discoverer) Discover(ctx context.Context, rs *introspection.RemoteSchema) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.result != nil {
		return d.result, nil
	}

	strategy := d.strategy
	if strategy == StrategyAuto {
		strategy = d.choose(rs)
	}

	var (
		res *Result
		err error
	)
	switch strategy {
	case StrategyStatic:
		res = discoverStatic(rs, d.logger)
	case StrategyDynamic:
		res, err = d.discoverDynamic(ctx, rs)
	default:
		d.logger.InfoContext(ctx, "remote schema exposes no node types")
		res = &Result{Strategy: StrategyAuto}
	}
	if err != nil {
		return nil, err
	}
	d.logger.InfoContext(ctx, "discovered node types", "strategy", res.Strategy, "types", len(res.Types))
	d.result = res
	return res, nil
}

func (d *Discoverer) choose(rs *introspection.RemoteSchema) Strategy {
	if hasCapability(rs) {
		return StrategyDynamic
	}
	for _, name := range StaticInterfaces {
		if _, ok := rs.Model.Types[name]; ok {
			return StrategyStatic
		}
	}
	return StrategyAuto
}
