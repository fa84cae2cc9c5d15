package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	eventbus "github.com/hanpama/graphsync/internal/eventbus"
	events "github.com/hanpama/graphsync/internal/events"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsBecomeMetrics(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	m := New()
	unsubscribe := m.Subscribe()
	defer unsubscribe()

	ctx := context.Background()
	eventbus.Publish(ctx, events.RemoteFinish{OperationName: "LIST_blog_Entry", StatusCode: 200, Duration: time.Millisecond})
	eventbus.Publish(ctx, events.RemoteFinish{OperationName: "LIST_blog_Entry", StatusCode: 502, Err: errors.New("bad gateway")})
	eventbus.Publish(ctx, events.NodeMutation{Action: "create", RemoteTypeName: "blog_Entry"})
	eventbus.Publish(ctx, events.NodeMutation{Action: "create", RemoteTypeName: "blog_Entry"})
	eventbus.Publish(ctx, events.SyncFinish{Mode: "full", Duration: time.Second})
	eventbus.Publish(ctx, events.SyncFinish{Mode: "delta", Err: errors.New("boom")})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteErrors.WithLabelValues("LIST_blog_Entry")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.nodeMutations.WithLabelValues("create", "blog_Entry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncRuns.WithLabelValues("full", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncRuns.WithLabelValues("delta", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.remoteDuration))
}

func TestHandler(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	m := New()
	defer m.Subscribe()()
	eventbus.Publish(context.Background(), events.NodeMutation{Action: "delete", RemoteTypeName: "news_Entry"})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `graphsync_nodes_mutations_total{action="delete",remote_type="news_Entry"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
