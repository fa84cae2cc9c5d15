package sourcing

import (
	"context"
	"fmt"

	compiler "github.com/hanpama/graphsync/internal/compiler"
	delta "github.com/hanpama/graphsync/internal/delta"
	discovery "github.com/hanpama/graphsync/internal/discovery"
	nodes "github.com/hanpama/graphsync/internal/nodes"
	remote "github.com/hanpama/graphsync/internal/remote"
)

// applyChanges applies events in order. An UPDATE of an id the store has
// not seen creates the node.
func (e *Engine) applyChanges(ctx context.Context, plan *Plan, evs []delta.Event, t *tally) error {
	for _, ev := range evs {
		if err := e.applyChange(ctx, plan, ev, t); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyChange(ctx context.Context, plan *Plan, ev delta.Event, t *tally) error {
	doc := plan.Document(ev.RemoteTypeName)
	if doc == nil {
		return e.applyAbstractChange(ctx, plan, ev, t)
	}
	if ev.Name == delta.Delete {
		return e.deleteRemote(ctx, doc.NodeType, ev.ID, t)
	}
	return e.refresh(ctx, doc, ev.ID, t)
}

// applyAbstractChange handles events reported under a target interface
// rather than a concrete node type.
func (e *Engine) applyAbstractChange(ctx context.Context, plan *Plan, ev delta.Event, t *tally) error {
	logger := e.log(ctx).With("remote_type", ev.RemoteTypeName, "remote_id", ev.ID, "event", ev.Name)
	target, ok := plan.Discovery.Target(ev.RemoteTypeName)
	if !ok {
		logger.InfoContext(ctx, "change event for unknown type skipped")
		return nil
	}

	if ev.Name == delta.Delete {
		return e.deleteCandidates(ctx, plan, target, ev.ID, t)
	}

	if target.NodeField == "" {
		logger.InfoContext(ctx, "change event skipped, interface has no node query", "interface", target.Interface)
		return nil
	}
	typename, err := e.resolveTypename(ctx, plan, target, ev.ID)
	if err != nil {
		return &RunError{Phase: PhaseDeltaSync, RemoteTypeName: target.Interface, Operation: resolveOperation(target), Err: err}
	}
	if typename == "" {
		logger.InfoContext(ctx, "changed node no longer exists remotely")
		return e.deleteCandidates(ctx, plan, target, ev.ID, t)
	}
	doc := plan.Document(typename)
	if doc == nil {
		logger.InfoContext(ctx, "change event resolved to a type that is not sourced", "resolved_type", typename)
		return nil
	}
	return e.refresh(ctx, doc, ev.ID, t)
}

// deleteCandidates deletes the node with id under whichever implementation
// of target holds it.
func (e *Engine) deleteCandidates(ctx context.Context, plan *Plan, target discovery.Target, id string, t *tally) error {
	for _, typeName := range target.Types {
		if doc := plan.Document(typeName); doc != nil {
			if err := e.deleteRemote(ctx, doc.NodeType, id, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolveOperation(target discovery.Target) string {
	return "RESOLVE_" + target.Interface
}

// resolveTypename asks the interface's node query for the concrete type of
// id. It returns "" when the remote API returns no node.
func (e *Engine) resolveTypename(ctx context.Context, plan *Plan, target discovery.Target, id string) (string, error) {
	argType := "ID"
	if q := plan.Schema.AST.Query; q != nil {
		if f := q.Fields.ForName(target.NodeField); f != nil {
			if arg := f.Arguments.ForName("id"); arg != nil {
				argType = arg.Type.String()
			}
		}
	}
	op := remote.Operation{
		Name: resolveOperation(target),
		Query: fmt.Sprintf("query %s($id: %s) {\n  %s(id: $id) {\n    __typename\n  }\n}",
			resolveOperation(target), argType, target.NodeField),
		Variables: map[string]any{"id": id},
	}
	var data map[string]*struct {
		Typename string `json:"__typename"`
	}
	if err := remote.Data(ctx, e.queue, op, &data); err != nil {
		return "", err
	}
	if node := data[target.NodeField]; node != nil {
		return node.Typename, nil
	}
	return "", nil
}

// refresh fetches one node by id and upserts it. A node the remote API no
// longer returns is deleted.
func (e *Engine) refresh(ctx context.Context, doc *compiler.Document, id string, t *tally) error {
	nt := doc.NodeType
	if doc.NodeOperation == "" {
		e.log(ctx).InfoContext(ctx, "change event skipped, type has no node query", "remote_type", nt.RemoteTypeName, "remote_id", id)
		return nil
	}
	fail := func(err error) error {
		return &RunError{Phase: PhaseDeltaSync, RemoteTypeName: nt.RemoteTypeName, Operation: doc.NodeOperation, Err: err}
	}

	op := remote.Operation{
		Name:      doc.NodeOperation,
		Query:     doc.Text,
		Variables: map[string]any{"id": id},
	}
	item, err := fetchOne(ctx, e.queue, op, responseKey(doc, doc.NodeOperation))
	if err != nil {
		return fail(err)
	}
	if item == nil {
		return e.deleteRemote(ctx, nt, id, t)
	}
	if typename, _ := item["__typename"].(string); typename != nt.RemoteTypeName {
		e.log(ctx).InfoContext(ctx, "change event returned another type", "remote_type", nt.RemoteTypeName, "remote_id", id, "returned_type", typename)
		return nil
	}
	n, err := e.builder.Build(nt.RemoteTypeName, nt.RemoteIDFields, item)
	if err != nil {
		return fail(err)
	}
	action, err := e.store.Upsert(ctx, n)
	if err != nil {
		return fail(err)
	}
	t.record(ctx, action, nt.RemoteTypeName, n.RemoteID)
	return nil
}

// deleteRemote deletes the node of a remote type and id if it exists.
func (e *Engine) deleteRemote(ctx context.Context, nt discovery.NodeType, id string, t *tally) error {
	nodeID := e.builder.ID(nt.RemoteTypeName, eventRemoteID(nt, id))
	deleted, err := e.store.Delete(ctx, nodeID)
	if err != nil {
		return &RunError{Phase: PhaseDeltaSync, RemoteTypeName: nt.RemoteTypeName, Err: err}
	}
	if deleted {
		t.record(ctx, nodes.Deleted, nt.RemoteTypeName, eventRemoteID(nt, id))
	}
	return nil
}

// eventRemoteID rebuilds the identity of a node from a change event, which
// only carries the id.
func eventRemoteID(nt discovery.NodeType, id string) nodes.RemoteID {
	out := nodes.RemoteID{}
	for _, field := range nt.RemoteIDFields {
		if field == "__typename" {
			out[field] = nt.RemoteTypeName
		} else {
			out[field] = id
		}
	}
	return out
}
