package sourcing

import (
	"context"
	"log/slog"
	"sync"

	eventbus "github.com/hanpama/graphsync/internal/eventbus"
	events "github.com/hanpama/graphsync/internal/events"
	nodes "github.com/hanpama/graphsync/internal/nodes"
)

// Report summarizes one SourceNodes run.
type Report struct {
	Mode      Mode
	Types     int
	Created   int
	Updated   int
	Deleted   int
	Unchanged int
	// Events is the number of change events a delta sync received.
	Events int
}

// Mutations is the number of nodes the run created, updated or deleted.
func (r *Report) Mutations() int { return r.Created + r.Updated + r.Deleted }

func (r *Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("mode", string(r.Mode)),
		slog.Int("types", r.Types),
		slog.Int("created", r.Created),
		slog.Int("updated", r.Updated),
		slog.Int("deleted", r.Deleted),
		slog.Int("unchanged", r.Unchanged),
		slog.Int("events", r.Events),
	)
}

// tally counts mutations from concurrent type workers.
type tally struct {
	mu     sync.Mutex
	counts map[nodes.Action]int
}

func newTally() *tally { return &tally{counts: map[nodes.Action]int{}} }

func (t *tally) record(ctx context.Context, action nodes.Action, remoteTypeName string, id nodes.RemoteID) {
	t.mu.Lock()
	t.counts[action]++
	t.mu.Unlock()
	eventbus.Publish(ctx, events.NodeMutation{
		Action:         string(action),
		RemoteTypeName: remoteTypeName,
		RemoteID:       remoteIDString(id),
	})
}

func (t *tally) fill(r *Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r.Created = t.counts[nodes.Created]
	r.Updated = t.counts[nodes.Updated]
	r.Deleted = t.counts[nodes.Deleted]
	r.Unchanged = t.counts[nodes.Unchanged]
}

func remoteIDString(id nodes.RemoteID) string {
	if v, ok := id["id"].(string); ok && len(id) <= 2 {
		return v
	}
	return id.Key()
}
