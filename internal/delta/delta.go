// Package delta finds what changed on the remote side since the last run.
package delta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	introspection "github.com/hanpama/graphsync/internal/introspection"
	remote "github.com/hanpama/graphsync/internal/remote"
)

// EventName is the kind of a change event.
type EventName string

const (
	Create EventName = "CREATE"
	Update EventName = "UPDATE"
	Delete EventName = "DELETE"
)

// Event is one remote change. RemoteTypeName is either a concrete node type
// or an abstract type the remote API reports changes under.
type Event struct {
	Name           EventName `json:"eventName" yaml:"eventName" validate:"oneof=CREATE UPDATE DELETE"`
	RemoteTypeName string    `json:"remoteTypeName" yaml:"remoteTypeName" validate:"required"`
	ID             string    `json:"id" yaml:"id" validate:"required"`
}

// Watermark marks how far a previous run got.
type Watermark struct {
	ConfigVersion         string `json:"configVersion"`
	LastContentUpdateTime string `json:"lastContentUpdateTime"`
}

func (w Watermark) IsZero() bool { return w == Watermark{} }

// Source lists the changes since a watermark.
type Source interface {
	Changes(ctx context.Context, since Watermark) ([]Event, error)
}

// Static always returns the same events.
type Static struct {
	Events []Event
}

func (s Static) Changes(context.Context, Watermark) ([]Event, error) {
	out := make([]Event, len(s.Events))
	copy(out, s.Events)
	return out, nil
}

// StateFields and ChangeFields are the root fields the watermark policy
// depends on.
var (
	StateFields  = []string{"configVersion", "lastUpdateTime"}
	ChangeFields = []string{"nodesUpdatedSince", "nodesDeletedSince"}
)

const (
	stateOperation   = "SYNC_STATE"
	changesOperation = "NODE_CHANGES"
)

const stateQuery = `query SYNC_STATE {
  configVersion
  lastUpdateTime
}`

const changesQuery = `query NODE_CHANGES($since: String!) {
  nodesUpdatedSince(since: $since) {
    nodeId
    nodeType
  }
  nodesDeletedSince(since: $since) {
    nodeId
    nodeType
  }
}`

// Supported reports whether rs exposes every root field a Detector uses.
func Supported(rs *introspection.RemoteSchema) bool {
	q := rs.Model.GetQueryType()
	if q == nil {
		return false
	}
	for _, name := range append(append([]string(nil), StateFields...), ChangeFields...) {
		if q.Field(name) == nil {
			return false
		}
	}
	return true
}

// Detector asks the remote API for its state and change log.
type Detector struct {
	exec   remote.Executor
	logger *slog.Logger
}

func NewDetector(exec remote.Executor, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{exec: exec, logger: logger}
}

// State returns the remote configuration version and last update time.
func (d *Detector) State(ctx context.Context) (Watermark, error) {
	var data struct {
		ConfigVersion  scalar `json:"configVersion"`
		LastUpdateTime scalar `json:"lastUpdateTime"`
	}
	op := remote.Operation{Name: stateOperation, Query: stateQuery}
	if err := remote.Data(ctx, d.exec, op, &data); err != nil {
		return Watermark{}, fmt.Errorf("query sync state: %w", err)
	}
	return Watermark{
		ConfigVersion:         string(data.ConfigVersion),
		LastContentUpdateTime: string(data.LastUpdateTime),
	}, nil
}

type change struct {
	NodeID   scalar `json:"nodeId"`
	NodeType string `json:"nodeType"`
}

// Changes maps updated records to UPDATE events and deleted records to
// DELETE events, updates first.
func (d *Detector) Changes(ctx context.Context, since Watermark) ([]Event, error) {
	var data struct {
		Updated []change `json:"nodesUpdatedSince"`
		Deleted []change `json:"nodesDeletedSince"`
	}
	op := remote.Operation{
		Name:      changesOperation,
		Query:     changesQuery,
		Variables: map[string]any{"since": since.LastContentUpdateTime},
	}
	if err := remote.Data(ctx, d.exec, op, &data); err != nil {
		return nil, fmt.Errorf("query node changes: %w", err)
	}

	events := make([]Event, 0, len(data.Updated)+len(data.Deleted))
	for _, c := range data.Updated {
		events = append(events, Event{Name: Update, RemoteTypeName: c.NodeType, ID: string(c.NodeID)})
	}
	for _, c := range data.Deleted {
		events = append(events, Event{Name: Delete, RemoteTypeName: c.NodeType, ID: string(c.NodeID)})
	}
	d.logger.DebugContext(ctx, "detected node changes", "since", since.LastContentUpdateTime,
		"updated", len(data.Updated), "deleted", len(data.Deleted))
	return events, nil
}

// scalar accepts a JSON string or number and keeps its text.
type scalar string

func (s *scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = ""
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = scalar(v)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", b)
		}
		if i, err := n.Int64(); err == nil {
			*s = scalar(strconv.FormatInt(i, 10))
		} else {
			*s = scalar(n.String())
		}
	}
	return nil
}
