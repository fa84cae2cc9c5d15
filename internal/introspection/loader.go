package introspection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	language "github.com/hanpama/graphsync/internal/language"
	remote "github.com/hanpama/graphsync/internal/remote"
	schema "github.com/hanpama/graphsync/internal/schema"
)

// RemoteSchema is the loaded remote schema in both representations: the
// model used for rendering and discovery, and the validated AST used to
// compile documents.
type RemoteSchema struct {
	Model *schema.Schema
	AST   *language.Schema
	SDL   string
}

// FromModel renders m and loads it with the GraphQL prelude.
func FromModel(m *schema.Schema) (*RemoteSchema, error) {
	sdl := schema.Render(m)
	doc, err := language.LoadSchema("remote.graphql", sdl)
	if err != nil {
		return nil, fmt.Errorf("load remote schema: %w", err)
	}
	return &RemoteSchema{Model: m, AST: doc, SDL: sdl}, nil
}

// Loader introspects the remote API once and keeps the result. A failed
// attempt is not remembered, so a later call tries again.
type Loader struct {
	exec   remote.Executor
	logger *slog.Logger

	mu     sync.Mutex
	loaded *RemoteSchema
}

func NewLoader(exec remote.Executor, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{exec: exec, logger: logger}
}

// Load returns the remote schema, sending the introspection query only on
// the first successful call.
func (l *Loader) Load(ctx context.Context) (*RemoteSchema, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded != nil {
		return l.loaded, nil
	}

	resp, err := l.exec.Execute(ctx, remote.Operation{Name: OperationName, Query: Query})
	if err != nil {
		return nil, fmt.Errorf("introspect: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("introspect: %w", &remote.ResponseError{Operation: OperationName, Errors: resp.Errors})
	}
	model, err := Decode(resp.Data)
	if err != nil {
		return nil, err
	}
	rs, err := FromModel(model)
	if err != nil {
		return nil, err
	}
	l.logger.InfoContext(ctx, "loaded remote schema", "types", len(model.Types), "query_type", model.QueryType)
	l.loaded = rs
	return rs, nil
}
