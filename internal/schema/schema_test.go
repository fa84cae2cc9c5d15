package schema

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaRenderSnapshot(t *testing.T) {
	schema, err := BuildFromSDL(mustReadFile(t, "testdata/remote.graphql"))
	require.NoError(t, err, "failed to build schema from SDL")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "remote", []byte(Render(schema)))
}

func TestRenderRoundTrip(t *testing.T) {
	want, err := BuildFromSDL(mustReadFile(t, "testdata/remote.graphql"))
	require.NoError(t, err)

	got, err := BuildFromSDL(Render(want))
	require.NoError(t, err, "rendered SDL must load again")

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildFromSDL(t *testing.T) {
	schema, err := BuildFromSDL(mustReadFile(t, "testdata/remote.graphql"))
	require.NoError(t, err)

	assert.Equal(t, "Root", schema.QueryType)
	assert.NotContains(t, schema.Types, "String", "prelude scalars are not part of the model")
	assert.NotContains(t, schema.Types, "__Schema")
	assert.NotContains(t, schema.Directives, "deprecated")
	assert.Contains(t, schema.Directives, "transform")

	root := schema.GetQueryType()
	require.NotNil(t, root)
	assert.Nil(t, root.Field("__schema"))
	entries := root.Field("entries")
	require.NotNil(t, entries)
	assert.Equal(t, "[EntryInterface]", entries.Type.String())
	assert.NotNil(t, entries.Argument("offset"))

	iface := schema.Types["EntryInterface"]
	require.NotNil(t, iface)
	assert.Equal(t, TypeKindInterface, iface.Kind)
	assert.Equal(t, []string{"blog_blog_Entry"}, iface.PossibleTypes)

	entry := schema.Types["blog_blog_Entry"]
	require.NotNil(t, entry)
	assert.True(t, entry.Implements("EntryInterface"))
	legacy := entry.Field("legacy")
	require.NotNil(t, legacy)
	assert.True(t, legacy.IsDeprecated)
	assert.Equal(t, "use title", legacy.DeprecationReason)
	assert.Equal(t, Literal(`"short"`), legacy.Argument("format").DefaultValue)
}

func TestRenderConventionalRoots(t *testing.T) {
	s := NewSchema("")
	s.AddType(NewType("Query", TypeKindObject, "").
		AddField(NewField("ping", "", NonNullType(NamedType("String")))))

	assert.Equal(t, "type Query {\n  ping: String!\n}\n", Render(s))
}

func TestIsBuiltin(t *testing.T) {
	assert.True(t, IsBuiltinType("ID"))
	assert.True(t, IsBuiltinType("__Type"))
	assert.False(t, IsBuiltinType("DateTime"))
	assert.True(t, IsBuiltinDirective("skip"))
	assert.False(t, IsBuiltinDirective("transform"))
}

func mustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read file: %s", path)
	return string(content)
}
