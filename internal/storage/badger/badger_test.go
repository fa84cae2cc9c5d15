package badger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	cache "github.com/hanpama/graphsync/internal/cache"
	nodes "github.com/hanpama/graphsync/internal/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ cache.Cache = (*Cache)(nil)
	_ nodes.Store = (*NodeStore)(nil)
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func buildNode(t *testing.T, typeName, id, title string) *nodes.Node {
	t.Helper()
	n, err := nodes.NewBuilder("Craft_").Build(typeName, []string{"__typename", "id"}, map[string]any{
		"__typename": typeName,
		"id":         id,
		"title":      title,
		"rank":       float64(3),
		"tags":       []any{"a", "b"},
		"author":     map[string]any{"__typename": "User", "id": "7"},
	})
	require.NoError(t, err)
	return n
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	c := openTestDB(t).Cache()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.SetJSON(ctx, c, "Craft_WATERMARK", map[string]string{"configVersion": "v1"}))
	var got map[string]string
	ok, err = cache.GetJSON(ctx, c, "Craft_WATERMARK", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", got["configVersion"])

	require.NoError(t, c.Delete(ctx, "Craft_WATERMARK"))
	_, ok, err = c.Get(ctx, "Craft_WATERMARK")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNodeStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).Nodes()
	n := buildNode(t, "blog_Entry", "1", "Hello")

	action, err := store.Upsert(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, nodes.Created, action)

	got, ok, err := store.Get(ctx, n.ID)
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(n, got); diff != "" {
		t.Fatalf("stored node differs (-want +got):\n%s", diff)
	}

	_, ok, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNodeStoreActions(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).Nodes()

	first := buildNode(t, "blog_Entry", "1", "Hello")
	second := buildNode(t, "blog_Entry", "2", "World")
	other := buildNode(t, "blog_EntryDraft", "1", "Draft")
	for _, n := range []*nodes.Node{first, second, other} {
		action, err := store.Upsert(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, nodes.Created, action)
	}

	action, err := store.Upsert(ctx, buildNode(t, "blog_Entry", "1", "Hello"))
	require.NoError(t, err)
	assert.Equal(t, nodes.Unchanged, action)

	action, err = store.Upsert(ctx, buildNode(t, "blog_Entry", "1", "Changed"))
	require.NoError(t, err)
	assert.Equal(t, nodes.Updated, action)

	ids, err := store.IDs(ctx, "Craft_blog_Entry")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	deleted, err := store.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = store.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	ids, err = store.IDs(ctx, "Craft_blog_Entry")
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, ids)
}

func TestNodeStoreIDsByPrefix(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).Nodes()
	item := map[string]any{"__typename": "blog_Entry", "id": "1", "title": "Hello"}

	var want []string
	for _, prefix := range []string{"SiteA_", "SiteB_"} {
		n, err := nodes.NewBuilder(prefix).Build("blog_Entry", []string{"__typename", "id"}, item)
		require.NoError(t, err)
		_, err = store.Upsert(ctx, n)
		require.NoError(t, err)
		want = append(want, n.ID)
	}

	ids, err := store.IDs(ctx, "SiteA_blog_Entry")
	require.NoError(t, err)
	assert.Equal(t, want[:1], ids)
	ids, err = store.IDs(ctx, "SiteB_blog_Entry")
	require.NoError(t, err)
	assert.Equal(t, want[1:], ids)
}

func TestPersistentDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")
	n := buildNode(t, "blog_Entry", "1", "Hello")

	db, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	_, err = db.Nodes().Upsert(ctx, n)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(DefaultConfig(path))
	require.NoError(t, err)
	defer db.Close()
	_, ok, err := db.Nodes().Get(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
