package sourcing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	introspection "github.com/hanpama/graphsync/internal/introspection"
	language "github.com/hanpama/graphsync/internal/language"
	remote "github.com/hanpama/graphsync/internal/remote"
	schema "github.com/hanpama/graphsync/internal/schema"
	"github.com/stretchr/testify/require"
)

// fakeRemote answers the operations the engine sends by operation name.
type fakeRemote struct {
	mu sync.Mutex

	introspection []byte
	capability    string
	items         map[string][]map[string]any
	lists         map[string]string // operation name -> type group in items
	version       string
	updatedAt     string
	updated       []map[string]any
	deleted       []map[string]any
	failOn        string
	delay         time.Duration

	ops         []remote.Operation
	inFlight    int
	maxInFlight int
}

func newFakeRemote(t *testing.T, sdl string) *fakeRemote {
	t.Helper()
	model, err := schema.BuildFromSDL(sdl)
	require.NoError(t, err)
	data, err := introspection.Encode(model)
	require.NoError(t, err)
	return &fakeRemote{
		introspection: data,
		items:         map[string][]map[string]any{},
		lists:         map[string]string{},
	}
}

func (f *fakeRemote) put(items ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		typename := item["__typename"].(string)
		list := f.items[typename]
		replaced := false
		for i, existing := range list {
			if existing["id"] == item["id"] {
				list[i] = item
				replaced = true
			}
		}
		if !replaced {
			list = append(list, item)
		}
		f.items[typename] = list
	}
}

func (f *fakeRemote) remove(typename, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []map[string]any
	for _, item := range f.items[typename] {
		if item["id"] != id {
			kept = append(kept, item)
		}
	}
	f.items[typename] = kept
}

// operations returns the names of the operations sent so far.
func (f *fakeRemote) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, op := range f.ops {
		names = append(names, op.Name)
	}
	return names
}

func (f *fakeRemote) offsets(name string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, op := range f.ops {
		if op.Name == name {
			out = append(out, op.Variables["offset"].(int))
		}
	}
	return out
}

func (f *fakeRemote) Execute(_ context.Context, op remote.Operation) (*remote.Response, error) {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.delay
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if op.Name == f.failOn {
		return nil, &remote.TransportError{Operation: op.Name, StatusCode: 502, Err: errors.New("bad gateway")}
	}

	switch {
	case op.Name == introspection.OperationName:
		return &remote.Response{Data: f.introspection}, nil
	case op.Name == "SOURCE_NODE_INFORMATION":
		return &remote.Response{Data: json.RawMessage(f.capability)}, nil
	case op.Name == "SYNC_STATE":
		return respond(map[string]any{"configVersion": f.version, "lastUpdateTime": f.updatedAt})
	case op.Name == "NODE_CHANGES":
		return respond(map[string]any{"nodesUpdatedSince": orEmpty(f.updated), "nodesDeletedSince": orEmpty(f.deleted)})
	case strings.HasPrefix(op.Name, "LIST_"):
		group := f.lists[op.Name]
		var all []map[string]any
		if group == "" {
			all = f.items[strings.TrimPrefix(op.Name, "LIST_")]
		} else {
			for _, typename := range strings.Split(group, ",") {
				all = append(all, f.items[typename]...)
			}
		}
		limit, offset := op.Variables["limit"].(int), op.Variables["offset"].(int)
		page := []map[string]any{}
		for i := offset; i < len(all) && i < offset+limit; i++ {
			page = append(page, all[i])
		}
		return respond(map[string]any{rootKey(op): page})
	case strings.HasPrefix(op.Name, "NODE_"):
		item := f.find(strings.TrimPrefix(op.Name, "NODE_"), op.Variables["id"])
		return respond(map[string]any{rootKey(op): item})
	case strings.HasPrefix(op.Name, "RESOLVE_"):
		item := f.find("", op.Variables["id"])
		if item == nil {
			return respond(map[string]any{rootKey(op): nil})
		}
		return respond(map[string]any{rootKey(op): map[string]any{"__typename": item["__typename"]}})
	}
	return nil, fmt.Errorf("unexpected operation %s", op.Name)
}

// find looks an item up by id, within one type or across all of them.
func (f *fakeRemote) find(typename string, id any) map[string]any {
	for name, items := range f.items {
		if typename != "" && name != typename {
			continue
		}
		for _, item := range items {
			if fmt.Sprint(item["id"]) == fmt.Sprint(id) {
				return item
			}
		}
	}
	return nil
}

func orEmpty(v []map[string]any) []map[string]any {
	if v == nil {
		return []map[string]any{}
	}
	return v
}

func respond(v any) (*remote.Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &remote.Response{Data: b}, nil
}

// rootKey is the response key of the root field of the operation sent.
func rootKey(op remote.Operation) string {
	doc, err := language.ParseQuery(op.Query)
	if err != nil {
		return ""
	}
	def := doc.Operations.ForName(op.Name)
	if def == nil {
		return ""
	}
	for _, sel := range def.SelectionSet {
		if f, ok := sel.(*language.Field); ok {
			return f.Alias
		}
	}
	return ""
}
