package fragments

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	discovery "github.com/hanpama/graphsync/internal/discovery"
	introspection "github.com/hanpama/graphsync/internal/introspection"
	schema "github.com/hanpama/graphsync/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSDL = `
interface EntryInterface { id: ID title: String }
interface UserInterface { id: ID name: String }
enum Status { live pending }
type blog_blog_Entry implements EntryInterface {
  id: ID
  title: String
  status: Status!
  tags: [String]
  author: User
  related: [EntryInterface]
  excerpt(length: Int!): String
  meta: Meta
}
type User implements UserInterface { id: ID name: String }
type Meta { keywords: String }
type Query { entries: [EntryInterface] users: [UserInterface] }
`

var testTypes = []discovery.NodeType{
	{RemoteTypeName: "blog_blog_Entry", Interface: "EntryInterface"},
	{RemoteTypeName: "User", Interface: "UserInterface"},
}

func remoteSchema(t *testing.T) *introspection.RemoteSchema {
	t.Helper()
	model, err := schema.BuildFromSDL(testSDL)
	require.NoError(t, err)
	rs, err := introspection.FromModel(model)
	require.NoError(t, err)
	return rs
}

func TestDefault(t *testing.T) {
	rs := remoteSchema(t)
	text, ok := Default(rs.Model, "blog_blog_Entry", testTypes)
	require.True(t, ok)
	assert.Equal(t, `fragment blog_blog_Entry on blog_blog_Entry {
  id
  title
  status
  tags
  author { __typename id }
  related { __typename id }
}
`, text)

	_, ok = Default(rs.Model, "Missing", testTypes)
	assert.False(t, ok)
}

func TestEnsureDefaultsNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "fragments")
	store := New(dir)
	rs := remoteSchema(t)

	written, err := store.EnsureDefaults(ctx, rs, testTypes)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"blog_blog_Entry", "User"}, written)

	custom := "fragment Mine on User { name }\n"
	userPath := filepath.Join(dir, "User.graphql")
	require.NoError(t, os.WriteFile(userPath, []byte(custom), 0o644))

	for i := 0; i < 3; i++ {
		written, err = store.EnsureDefaults(ctx, rs, testTypes)
		require.NoError(t, err)
		assert.Empty(t, written)
	}

	got, err := os.ReadFile(userPath)
	require.NoError(t, err)
	assert.Equal(t, custom, string(got))
}

func TestCollectAll(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.graphql"), []byte("fragment B on User { id }"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.graphql"), []byte("fragment A on User { name }"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.graphql"), []byte("  \n"), 0o644))

	got, err := New(dir).CollectAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fragment A on User { name }", "fragment B on User { id }"}, got)
}

func TestCollectAllWithoutDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing")).CollectAll(context.Background())
	assert.ErrorIs(t, err, ErrNoDirectory)
}

func TestEnsureDirIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "fragments")
	store := New(dir)
	require.NoError(t, store.EnsureDir(ctx))
	require.NoError(t, store.EnsureDir(ctx))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
