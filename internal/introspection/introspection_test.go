package introspection

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	remote "github.com/hanpama/graphsync/internal/remote"
	schema "github.com/hanpama/graphsync/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/introspection.json")
	require.NoError(t, err)
	return data
}

func TestDecode(t *testing.T) {
	s, err := Decode(readFixture(t))
	require.NoError(t, err)

	assert.Equal(t, "Query", s.QueryType)
	assert.NotContains(t, s.Types, "String")
	assert.NotContains(t, s.Types, "__Schema")
	assert.NotContains(t, s.Directives, "skip")
	assert.Contains(t, s.Directives, "transform")

	entry := s.Types["blog_blog_Entry"]
	require.NotNil(t, entry)
	assert.Equal(t, []string{"EntryInterface"}, entry.Interfaces)
	status := entry.Field("status")
	require.NotNil(t, status)
	assert.Equal(t, "Status!", status.Type.String())
	assert.True(t, status.IsDeprecated)
	assert.Equal(t, "Use enabled", status.DeprecationReason)

	entries := s.GetQueryType().Field("entries")
	require.NotNil(t, entries)
	assert.Equal(t, "[String]", entries.Argument("type").Type.String())
	assert.Equal(t, schema.Literal("100"), entries.Argument("limit").DefaultValue)

	assert.Equal(t, []string{"blog_blog_Entry"}, s.Types["EntryInterface"].PossibleTypes)
}

func TestDecodeWithoutSchema(t *testing.T) {
	_, err := Decode([]byte(`{"__type": null}`))
	assert.ErrorIs(t, err, ErrNoSchema)
}

func TestEncodeRoundTrip(t *testing.T) {
	want, err := Decode(readFixture(t))
	require.NoError(t, err)

	data, err := Encode(want)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFromModelLoadsWithPrelude(t *testing.T) {
	model, err := Decode(readFixture(t))
	require.NoError(t, err)

	rs, err := FromModel(model)
	require.NoError(t, err)
	require.NotNil(t, rs.AST.Query)
	assert.Equal(t, "Query", rs.AST.Query.Name)
	iface := rs.AST.Types["EntryInterface"]
	require.NotNil(t, iface)
	possible := rs.AST.GetPossibleTypes(iface)
	require.Len(t, possible, 1)
	assert.Equal(t, "blog_blog_Entry", possible[0].Name)
}

type countingExecutor struct {
	mu    sync.Mutex
	calls int
	fail  bool
	data  []byte
}

func (c *countingExecutor) Execute(_ context.Context, op remote.Operation) (*remote.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if op.Name != OperationName {
		return nil, errors.New("unexpected operation " + op.Name)
	}
	if c.fail {
		return nil, &remote.TransportError{Operation: op.Name, Err: errors.New("offline")}
	}
	return &remote.Response{Data: json.RawMessage(c.data)}, nil
}

func TestLoaderMemoizes(t *testing.T) {
	exec := &countingExecutor{data: readFixture(t)}
	loader := NewLoader(exec, nil)

	var wg sync.WaitGroup
	results := make([]*RemoteSchema, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rs, err := loader.Load(context.Background())
			assert.NoError(t, err)
			results[i] = rs
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, exec.calls)
	for _, rs := range results {
		assert.Same(t, results[0], rs)
	}
}

func TestLoaderRetriesAfterFailure(t *testing.T) {
	exec := &countingExecutor{data: readFixture(t), fail: true}
	loader := NewLoader(exec, nil)

	_, err := loader.Load(context.Background())
	var transportErr *remote.TransportError
	require.ErrorAs(t, err, &transportErr)

	exec.fail = false
	rs, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rs.Model.Types["blog_blog_Entry"])
	assert.Equal(t, 2, exec.calls)
}

func TestLoaderReportsGraphQLErrors(t *testing.T) {
	exec := remote.ExecutorFunc(func(context.Context, remote.Operation) (*remote.Response, error) {
		return &remote.Response{Errors: []remote.GraphQLError{{Message: "introspection disabled"}}}, nil
	})
	_, err := NewLoader(exec, nil).Load(context.Background())
	var respErr *remote.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, OperationName, respErr.Operation)
}
