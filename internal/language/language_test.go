package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSDL = `
type Entry { id: ID title: String }
type Query { entry(id: ID): Entry }
`

func TestParseValidatePrint(t *testing.T) {
	sch, err := LoadSchema("schema.graphql", testSDL)
	require.NoError(t, err)

	doc, err := ParseNamedQuery("entry", `query NODE_Entry($id: ID) { entry(id: $id) { id title } }`)
	require.NoError(t, err)
	require.NoError(t, Validate(sch, doc))

	op := doc.Operations.ForName("NODE_Entry")
	require.NotNil(t, op)
	root, ok := op.SelectionSet[0].(*Field)
	require.True(t, ok)
	assert.Equal(t, "entry", root.Name)
	assert.Equal(t, Variable, root.Arguments[0].Value.Kind)
	require.NotNil(t, root.Definition, "validated fields carry their definitions")
	assert.Equal(t, Object, sch.Types[root.Definition.Type.NamedType].Kind)

	printed := Print(doc)
	assert.Contains(t, printed, "    title\n")
	again, err := ParseQuery(printed)
	require.NoError(t, err)
	assert.NoError(t, Validate(sch, again))
}

func TestValidateReportsErrors(t *testing.T) {
	sch, err := LoadSchema("schema.graphql", testSDL)
	require.NoError(t, err)
	doc, err := ParseQuery(`{ entry { nope } }`)
	require.NoError(t, err)

	err = Validate(sch, doc)
	var list ErrorList
	require.ErrorAs(t, err, &list)
	assert.Contains(t, list[0].Message, `Cannot query field "nope"`)
}
