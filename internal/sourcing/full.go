package sourcing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	compiler "github.com/hanpama/graphsync/internal/compiler"
	language "github.com/hanpama/graphsync/internal/language"
	nodes "github.com/hanpama/graphsync/internal/nodes"
	remote "github.com/hanpama/graphsync/internal/remote"
	"golang.org/x/sync/errgroup"
)

// fullSync lists every node type in parallel and then removes the nodes
// the listing did not return. Pages of one type are fetched in order.
func (e *Engine) fullSync(ctx context.Context, plan *Plan, t *tally) error {
	var (
		mu   sync.Mutex
		seen = map[string]map[string]bool{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.queue.Limit())
	for _, doc := range plan.Documents {
		if doc.ListOperation == "" {
			e.log(ctx).InfoContext(ctx, "node type has no list query, not listed", "remote_type", doc.RemoteTypeName())
			continue
		}
		doc := doc
		g.Go(func() error {
			ids, err := e.sourceType(gctx, doc, t)
			if err != nil {
				return err
			}
			mu.Lock()
			seen[doc.RemoteTypeName()] = ids
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, doc := range plan.Documents {
		ids, ok := seen[doc.RemoteTypeName()]
		if !ok {
			continue
		}
		if err := e.sweep(ctx, doc.RemoteTypeName(), ids, t); err != nil {
			return &RunError{Phase: PhaseFullSync, RemoteTypeName: doc.RemoteTypeName(), Err: err}
		}
	}
	return nil
}

// sourceType pages through the list query of one type and upserts every
// node. It returns the ids of the nodes it saw.
func (e *Engine) sourceType(ctx context.Context, doc *compiler.Document, t *tally) (map[string]bool, error) {
	nt := doc.NodeType
	key := responseKey(doc, doc.ListOperation)
	seen := map[string]bool{}
	fail := func(err error) (map[string]bool, error) {
		return nil, &RunError{Phase: PhaseFullSync, RemoteTypeName: nt.RemoteTypeName, Operation: doc.ListOperation, Err: err}
	}

	for offset := 0; ; offset += e.pageSize {
		op := remote.Operation{
			Name:      doc.ListOperation,
			Query:     doc.Text,
			Variables: map[string]any{"limit": e.pageSize, "offset": offset},
		}
		items, err := fetchList(ctx, e.queue, op, key)
		if err != nil {
			return fail(err)
		}

		foreign := 0
		for _, item := range items {
			if item == nil {
				continue
			}
			if typename, _ := item["__typename"].(string); typename != nt.RemoteTypeName {
				foreign++
				continue
			}
			n, err := e.builder.Build(nt.RemoteTypeName, nt.RemoteIDFields, item)
			if err != nil {
				return fail(err)
			}
			action, err := e.store.Upsert(ctx, n)
			if err != nil {
				return fail(err)
			}
			seen[n.ID] = true
			t.record(ctx, action, nt.RemoteTypeName, n.RemoteID)
		}
		if foreign > 0 {
			e.log(ctx).InfoContext(ctx, "skipped items of other types", "remote_type", nt.RemoteTypeName, "offset", offset, "count", foreign)
		}
		if len(items) < e.pageSize {
			break
		}
	}
	e.log(ctx).DebugContext(ctx, "listed node type", "remote_type", nt.RemoteTypeName, "nodes", len(seen))
	return seen, nil
}

// sweep deletes nodes of a listed type that the listing did not return.
// Only nodes under this engine's type prefix are candidates.
func (e *Engine) sweep(ctx context.Context, remoteTypeName string, seen map[string]bool, t *tally) error {
	ids, err := e.store.IDs(ctx, e.builder.TypeName(remoteTypeName))
	if err != nil {
		return err
	}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		if err := e.deleteByID(ctx, id, t); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) deleteByID(ctx context.Context, id string, t *tally) error {
	n, ok, err := e.store.Get(ctx, id)
	if err != nil || !ok {
		return err
	}
	deleted, err := e.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if deleted {
		t.record(ctx, nodes.Deleted, n.RemoteTypeName, n.RemoteID)
	}
	return nil
}

// responseKey is the response key of the root field of an operation.
func responseKey(doc *compiler.Document, operation string) string {
	op := doc.AST.Operations.ForName(operation)
	if op == nil || len(op.SelectionSet) == 0 {
		return ""
	}
	f, ok := op.SelectionSet[0].(*language.Field)
	if !ok {
		return ""
	}
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

func fetchList(ctx context.Context, exec remote.Executor, op remote.Operation, key string) ([]map[string]any, error) {
	var data map[string]json.RawMessage
	if err := remote.Data(ctx, exec, op, &data); err != nil {
		return nil, err
	}
	raw, ok := data[key]
	if !ok {
		return nil, fmt.Errorf("response has no %s", key)
	}
	var items []map[string]any
	if err := decodeItems(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, nil
}

func fetchOne(ctx context.Context, exec remote.Executor, op remote.Operation, key string) (map[string]any, error) {
	var data map[string]json.RawMessage
	if err := remote.Data(ctx, exec, op, &data); err != nil {
		return nil, err
	}
	raw, ok := data[key]
	if !ok {
		return nil, fmt.Errorf("response has no %s", key)
	}
	var item map[string]any
	if err := decodeItems(raw, &item); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return item, nil
}

// decodeItems keeps numbers as json.Number so numeric ids stay exact, the
// same way change events read them.
func decodeItems(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
