package schema

import (
	"sort"
	"strings"

	language "github.com/hanpama/graphsync/internal/language"
)

// BuildFromAST converts a validated gqlparser schema into the schema model.
// Prelude definitions and introspection fields are left out.
func BuildFromAST(src *language.Schema) *Schema {
	s := NewSchema(src.Description)
	if src.Query != nil {
		s.SetQueryType(src.Query.Name)
	}
	if src.Mutation != nil {
		s.SetMutationType(src.Mutation.Name)
	}
	if src.Subscription != nil {
		s.SetSubscriptionType(src.Subscription.Name)
	}

	for _, def := range src.Types {
		if def.BuiltIn || IsBuiltinType(def.Name) {
			continue
		}
		switch def.Kind {
		case language.Object, language.Interface:
			s.AddType(buildComposite(src, def))
		case language.Union:
			s.AddType(buildUnion(def))
		case language.Enum:
			s.AddType(buildEnum(def))
		case language.InputObject:
			s.AddType(buildInput(def))
		case language.Scalar:
			s.AddType(buildScalar(def))
		}
	}
	for _, dir := range src.Directives {
		if IsBuiltinDirective(dir.Name) {
			continue
		}
		s.AddDirective(buildDirective(dir))
	}
	return s
}

func buildComposite(src *language.Schema, def *language.Definition) *Type {
	kind := TypeKindObject
	if def.Kind == language.Interface {
		kind = TypeKindInterface
	}
	t := NewType(def.Name, kind, def.Description)
	for _, name := range def.Interfaces {
		t.AddInterface(name)
	}
	for _, fieldDef := range def.Fields {
		if strings.HasPrefix(fieldDef.Name, "__") {
			continue
		}
		t.AddField(buildField(fieldDef))
	}
	if kind == TypeKindInterface {
		var names []string
		for _, possible := range src.GetPossibleTypes(def) {
			names = append(names, possible.Name)
		}
		sort.Strings(names)
		for _, name := range names {
			t.AddPossibleType(name)
		}
	}
	return t
}

func buildField(def *language.FieldDefinition) *Field {
	f := NewField(def.Name, def.Description, buildTypeRef(def.Type))
	if reason, ok := deprecation(def.Directives); ok {
		f.Deprecate(reason)
	}
	for _, arg := range def.Arguments {
		f.AddArgument(buildArgument(arg))
	}
	return f
}

func buildArgument(def *language.ArgumentDefinition) *InputValue {
	in := NewInputValue(def.Name, def.Description, buildTypeRef(def.Type))
	if def.DefaultValue != nil {
		in.SetDefault(Literal(def.DefaultValue.String()))
	}
	if reason, ok := deprecation(def.Directives); ok {
		in.Deprecate(reason)
	}
	return in
}

func buildEnum(def *language.Definition) *Type {
	t := NewType(def.Name, TypeKindEnum, def.Description)
	for _, v := range def.EnumValues {
		e := NewEnumValue(v.Name, v.Description)
		if reason, ok := deprecation(v.Directives); ok {
			e.Deprecate(reason)
		}
		t.AddEnumValue(e)
	}
	return t
}

func buildInput(def *language.Definition) *Type {
	t := NewType(def.Name, TypeKindInputObject, def.Description).
		SetOneOf(def.Directives.ForName("oneOf") != nil)
	for _, fieldDef := range def.Fields {
		in := NewInputValue(fieldDef.Name, fieldDef.Description, buildTypeRef(fieldDef.Type))
		if fieldDef.DefaultValue != nil {
			in.SetDefault(Literal(fieldDef.DefaultValue.String()))
		}
		if reason, ok := deprecation(fieldDef.Directives); ok {
			in.Deprecate(reason)
		}
		t.AddInputField(in)
	}
	return t
}

func buildUnion(def *language.Definition) *Type {
	t := NewType(def.Name, TypeKindUnion, def.Description)

	// Sort union type names for deterministic output
	typeNames := append([]string(nil), def.Types...)
	sort.Strings(typeNames)

	for _, name := range typeNames {
		t.AddPossibleType(name)
	}
	return t
}

func buildScalar(def *language.Definition) *Type {
	t := NewType(def.Name, TypeKindScalar, def.Description)
	if d := def.Directives.ForName("specifiedBy"); d != nil {
		if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
			t.SetSpecifiedBy(arg.Value.Raw)
		}
	}
	return t
}

func buildDirective(dir *language.DirectiveDefinition) *Directive {
	d := NewDirective(dir.Name, dir.Description).SetRepeatable(dir.IsRepeatable)
	for _, loc := range dir.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, arg := range dir.Arguments {
		d.AddArgument(buildArgument(arg))
	}
	return d
}

func buildTypeRef(t *language.Type) *TypeRef {
	var ref *TypeRef
	if t.NamedType != "" {
		ref = NamedType(t.NamedType)
	} else {
		ref = ListType(buildTypeRef(t.Elem))
	}
	if t.NonNull {
		return NonNullType(ref)
	}
	return ref
}

func deprecation(dirs language.DirectiveList) (string, bool) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return "", true
}

// BuildFromSDL parses SDL string and returns the corresponding Schema.
func BuildFromSDL(sdl string) (*Schema, error) {
	src, err := language.LoadSchema("schema.graphql", sdl)
	if err != nil {
		return nil, err
	}
	return BuildFromAST(src), nil
}
