package language

import "github.com/vektah/gqlparser/v2/ast"

type (
	Schema                 = ast.Schema
	QueryDocument          = ast.QueryDocument
	OperationDefinition    = ast.OperationDefinition
	OperationList          = ast.OperationList
	VariableDefinition     = ast.VariableDefinition
	SelectionSet           = ast.SelectionSet
	Field                  = ast.Field
	InlineFragment         = ast.InlineFragment
	FragmentDefinition     = ast.FragmentDefinition
	FragmentDefinitionList = ast.FragmentDefinitionList
	FragmentSpread         = ast.FragmentSpread
	Definition             = ast.Definition
	FieldDefinition        = ast.FieldDefinition
	ArgumentDefinition     = ast.ArgumentDefinition
	DirectiveDefinition    = ast.DirectiveDefinition
	DirectiveList          = ast.DirectiveList
	Type                   = ast.Type
)

type DefinitionKind = ast.DefinitionKind

const (
	Object      DefinitionKind = ast.Object
	Interface   DefinitionKind = ast.Interface
	Union       DefinitionKind = ast.Union
	Scalar      DefinitionKind = ast.Scalar
	Enum        DefinitionKind = ast.Enum
	InputObject DefinitionKind = ast.InputObject
)

// Variable is the value kind of a $variable reference.
const Variable = ast.Variable
