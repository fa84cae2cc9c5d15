// Package compiler turns node type templates and fragments into validated
// GraphQL documents, one per node type.
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	discovery "github.com/hanpama/graphsync/internal/discovery"
	fragments "github.com/hanpama/graphsync/internal/fragments"
	introspection "github.com/hanpama/graphsync/internal/introspection"
	language "github.com/hanpama/graphsync/internal/language"
	"github.com/viant/afs"
	"github.com/viant/afs/url"
)

// Document is the compiled query document of one node type.
type Document struct {
	NodeType discovery.NodeType
	AST      *language.QueryDocument
	Text     string
	// ListOperation and NodeOperation name the operations inside Text, or
	// are empty when the node type has no such query.
	ListOperation string
	NodeOperation string
	// Fields are the fields selected on the node type itself.
	Fields []SelectedField
}

func (d *Document) RemoteTypeName() string { return d.NodeType.RemoteTypeName }

// SelectedField is one response key selected on a node type.
type SelectedField struct {
	Key  string
	Type *language.Type
	Leaf bool
}

// Compiler builds documents and writes them to an optional debug location.
type Compiler struct {
	debugDir string
	fs       afs.Service
	logger   *slog.Logger
}

type Option func(*Compiler)

// WithDebugDir sets where pretty-printed documents are written. An empty
// dir disables the output.
func WithDebugDir(dir string) Option { return func(c *Compiler) { c.debugDir = dir } }

func WithFS(fs afs.Service) Option { return func(c *Compiler) { c.fs = fs } }

func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(opts ...Option) *Compiler {
	c := &Compiler{fs: afs.New(), logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile builds one document per node type. The first failure aborts the
// whole compilation and nothing is written.
func (c *Compiler) Compile(ctx context.Context, rs *introspection.RemoteSchema, types []discovery.NodeType, custom []string) ([]*Document, error) {
	docs := make([]*Document, 0, len(types))
	for _, nt := range types {
		doc, err := compileType(rs, nt, types, custom)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	c.writeDebug(ctx, docs)
	return docs, nil
}

func (c *Compiler) writeDebug(ctx context.Context, docs []*Document) {
	if c.debugDir == "" || len(docs) == 0 {
		return
	}
	written := 0
	for _, doc := range docs {
		path := url.Join(c.debugDir, doc.RemoteTypeName()+".graphql")
		if err := c.fs.Upload(ctx, path, 0o644, strings.NewReader(doc.Text)); err != nil {
			c.logger.WarnContext(ctx, "write compiled document", "path", path, "error", err)
			continue
		}
		written++
	}
	c.logger.DebugContext(ctx, "wrote compiled documents", "dir", c.debugDir, "count", written)
}

func compileType(rs *introspection.RemoteSchema, nt discovery.NodeType, types []discovery.NodeType, custom []string) (*Document, error) {
	typeName := nt.RemoteTypeName
	fail := func(err error) (*Document, error) {
		return nil, &CompileError{RemoteTypeName: typeName, Err: err}
	}

	if rs.AST.Types[typeName] == nil {
		return fail(fmt.Errorf("type not in remote schema"))
	}

	doc, err := language.ParseNamedQuery(typeName+" templates", nt.Queries())
	if err != nil {
		return fail(err)
	}
	pool := map[string]*language.FragmentDefinition{}
	for _, frag := range doc.Fragments {
		pool[frag.Name] = frag
	}

	var own []*language.FragmentDefinition
	for i, text := range custom {
		fragDoc, err := language.ParseNamedQuery(fmt.Sprintf("fragment source %d", i), text)
		if err != nil {
			return fail(err)
		}
		if len(fragDoc.Operations) > 0 {
			return fail(fmt.Errorf("fragment source %d contains operations", i))
		}
		for _, frag := range fragDoc.Fragments {
			if _, dup := pool[frag.Name]; dup {
				return fail(fmt.Errorf("fragment %s is defined more than once", frag.Name))
			}
			pool[frag.Name] = frag
			if appliesTo(rs.AST, frag.TypeCondition, typeName) {
				own = append(own, frag)
			}
		}
	}

	if len(own) == 0 {
		frag, err := defaultFragment(rs, nt, types, pool)
		if err != nil {
			return fail(err)
		}
		if frag != nil {
			pool[frag.Name] = frag
			own = append(own, frag)
		}
	}
	sort.Slice(own, func(i, j int) bool { return own[i].Name < own[j].Name })

	out := &Document{NodeType: nt}
	for _, op := range doc.Operations {
		if err := attachSelections(rs.AST, op, nt, own); err != nil {
			return fail(err)
		}
		declareVariables(rs.AST, op)
		switch op.Name {
		case nt.ListOperationName():
			out.ListOperation = op.Name
		case nt.NodeOperationName():
			out.NodeOperation = op.Name
		}
	}
	doc.Fragments = referencedFragments(doc.Operations, pool)

	if err := language.Validate(rs.AST, doc); err != nil {
		if list, ok := err.(language.ErrorList); ok {
			return nil, &CompileError{RemoteTypeName: typeName, Violations: list}
		}
		return fail(err)
	}

	out.AST = doc
	out.Text = language.Print(doc)
	out.Fields = selectedFields(rs.AST, doc, typeName)
	return out, nil
}

// appliesTo reports whether a fragment on condition can be spread directly
// on an object of typeName.
func appliesTo(sch *language.Schema, condition, typeName string) bool {
	if condition == typeName {
		return true
	}
	def := sch.Types[typeName]
	if def == nil {
		return false
	}
	for _, iface := range def.Interfaces {
		if iface == condition {
			return true
		}
	}
	return false
}

func defaultFragment(rs *introspection.RemoteSchema, nt discovery.NodeType, types []discovery.NodeType, pool map[string]*language.FragmentDefinition) (*language.FragmentDefinition, error) {
	text, ok := fragments.Default(rs.Model, nt.RemoteTypeName, types)
	if !ok {
		return nil, nil
	}
	name := nt.RemoteTypeName
	if _, taken := pool[name]; taken {
		name = "_Default" + name + "_"
		text = strings.Replace(text, "fragment "+nt.RemoteTypeName+" ", "fragment "+name+" ", 1)
	}
	fragDoc, err := language.ParseNamedQuery(nt.RemoteTypeName+" default fragment", text)
	if err != nil {
		return nil, err
	}
	return fragDoc.Fragments[0], nil
}

// attachSelections adds the identity fields and the node type's fragments
// to the root field of op.
func attachSelections(sch *language.Schema, op *language.OperationDefinition, nt discovery.NodeType, own []*language.FragmentDefinition) error {
	root := rootField(op)
	if root == nil {
		return fmt.Errorf("operation %s has no root field", op.Name)
	}
	if !hasField(root.SelectionSet, "__typename") {
		root.SelectionSet = append(root.SelectionSet, newField("__typename"))
	}
	inline := &language.InlineFragment{TypeCondition: nt.RemoteTypeName}
	for _, name := range nt.RemoteIDFields {
		if name == "__typename" {
			continue
		}
		inline.SelectionSet = append(inline.SelectionSet, newField(name))
	}
	for _, frag := range own {
		inline.SelectionSet = append(inline.SelectionSet, &language.FragmentSpread{Name: frag.Name})
	}
	root.SelectionSet = append(root.SelectionSet, inline)
	return nil
}

func rootField(op *language.OperationDefinition) *language.Field {
	if op == nil || len(op.SelectionSet) == 0 {
		return nil
	}
	f, _ := op.SelectionSet[0].(*language.Field)
	return f
}

func newField(name string) *language.Field {
	return &language.Field{Alias: name, Name: name}
}

func hasField(set language.SelectionSet, name string) bool {
	for _, sel := range set {
		if f, ok := sel.(*language.Field); ok && f.Name == name && (f.Alias == "" || f.Alias == name) {
			return true
		}
	}
	return false
}

// declareVariables adds a definition for every variable used by a root
// field argument that the template left undeclared. Types come from the
// argument definitions of the query type.
func declareVariables(sch *language.Schema, op *language.OperationDefinition) {
	if sch.Query == nil {
		return
	}
	for _, sel := range op.SelectionSet {
		f, ok := sel.(*language.Field)
		if !ok {
			continue
		}
		def := sch.Query.Fields.ForName(f.Name)
		if def == nil {
			continue
		}
		for _, arg := range f.Arguments {
			if arg.Value == nil || arg.Value.Kind != language.Variable {
				continue
			}
			if op.VariableDefinitions.ForName(arg.Value.Raw) != nil {
				continue
			}
			argDef := def.Arguments.ForName(arg.Name)
			if argDef == nil {
				continue
			}
			op.VariableDefinitions = append(op.VariableDefinitions, &language.VariableDefinition{
				Variable: arg.Value.Raw,
				Type:     copyType(argDef.Type),
			})
		}
	}
}

func copyType(t *language.Type) *language.Type {
	if t == nil {
		return nil
	}
	return &language.Type{NamedType: t.NamedType, Elem: copyType(t.Elem), NonNull: t.NonNull}
}

// referencedFragments returns the fragments reachable from ops, by name.
func referencedFragments(ops language.OperationList, pool map[string]*language.FragmentDefinition) language.FragmentDefinitionList {
	seen := map[string]bool{}
	var visit func(set language.SelectionSet)
	visit = func(set language.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *language.Field:
				visit(s.SelectionSet)
			case *language.InlineFragment:
				visit(s.SelectionSet)
			case *language.FragmentSpread:
				if seen[s.Name] {
					continue
				}
				seen[s.Name] = true
				if frag := pool[s.Name]; frag != nil {
					visit(frag.SelectionSet)
				}
			}
		}
	}
	for _, op := range ops {
		visit(op.SelectionSet)
	}

	var out language.FragmentDefinitionList
	for name := range seen {
		if frag := pool[name]; frag != nil {
			out = append(out, frag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// selectedFields flattens what the first operation selects on typeName.
// It runs on a validated document, so field definitions are resolved.
func selectedFields(sch *language.Schema, doc *language.QueryDocument, typeName string) []SelectedField {
	if len(doc.Operations) == 0 {
		return nil
	}
	root := rootField(doc.Operations[0])
	if root == nil {
		return nil
	}

	var out []SelectedField
	seen := map[string]bool{}
	visiting := map[string]bool{}
	var visit func(set language.SelectionSet)
	visit = func(set language.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *language.Field:
				if strings.HasPrefix(s.Name, "__") || seen[s.Alias] || s.Definition == nil {
					continue
				}
				seen[s.Alias] = true
				named := sch.Types[s.Definition.Type.Name()]
				out = append(out, SelectedField{
					Key:  s.Alias,
					Type: s.Definition.Type,
					Leaf: named != nil && named.IsLeafType(),
				})
			case *language.InlineFragment:
				if s.TypeCondition == "" || appliesTo(sch, s.TypeCondition, typeName) {
					visit(s.SelectionSet)
				}
			case *language.FragmentSpread:
				frag := doc.Fragments.ForName(s.Name)
				if frag == nil || visiting[s.Name] || !appliesTo(sch, frag.TypeCondition, typeName) {
					continue
				}
				visiting[s.Name] = true
				visit(frag.SelectionSet)
				visiting[s.Name] = false
			}
		}
	}
	visit(root.SelectionSet)
	return out
}
