package sourcing

import (
	"context"
	"fmt"
	"strings"

	language "github.com/hanpama/graphsync/internal/language"
	schema "github.com/hanpama/graphsync/internal/schema"
	"github.com/viant/afs"
)

// TypeRegistry receives the local type definitions as SDL.
type TypeRegistry interface {
	RegisterTypes(ctx context.Context, sdl string) error
}

// RegistryFunc adapts a function to TypeRegistry.
type RegistryFunc func(ctx context.Context, sdl string) error

func (f RegistryFunc) RegisterTypes(ctx context.Context, sdl string) error { return f(ctx, sdl) }

// FileRegistry writes the SDL to a file URL.
type FileRegistry struct {
	url string
	fs  afs.Service
}

func NewFileRegistry(url string, fs afs.Service) *FileRegistry {
	if fs == nil {
		fs = afs.New()
	}
	return &FileRegistry{url: url, fs: fs}
}

func (r *FileRegistry) RegisterTypes(ctx context.Context, sdl string) error {
	if err := r.fs.Upload(ctx, r.url, 0o644, strings.NewReader(sdl)); err != nil {
		return fmt.Errorf("write %s: %w", r.url, err)
	}
	return nil
}

// JSONScalar names the scalar that carries values without a local type.
func JSONScalar(prefix string) string { return prefix + "JSON" }

// LocalSchema renders one object type per node type. A local type has the
// node id, the remote type name and every field the compiled document
// selects on the remote type. Enums are copied under the prefix, other
// non-builtin types become the JSON scalar.
func LocalSchema(plan *Plan, prefix string) string {
	local := schema.NewSchema("").SetQueryType("")
	jsonScalar := JSONScalar(prefix)
	usesJSON := false

	named := func(name string) string {
		if schema.IsBuiltinType(name) {
			return name
		}
		remoteType := plan.Schema.Model.Types[name]
		if remoteType != nil && remoteType.Kind == schema.TypeKindEnum {
			localName := prefix + name
			if _, ok := local.Types[localName]; !ok {
				enum := schema.NewType(localName, schema.TypeKindEnum, remoteType.Description)
				for _, v := range remoteType.EnumValues {
					enum.AddEnumValue(schema.NewEnumValue(v.Name, v.Description))
				}
				local.AddType(enum)
			}
			return localName
		}
		usesJSON = true
		return jsonScalar
	}

	for _, doc := range plan.Documents {
		remoteName := doc.RemoteTypeName()
		t := schema.NewType(prefix+remoteName, schema.TypeKindObject, "Sourced from remote type "+remoteName+".")
		t.AddField(schema.NewField("id", "", schema.NonNullType(schema.NamedType("ID"))))
		t.AddField(schema.NewField("remoteTypeName", "", schema.NonNullType(schema.NamedType("String"))))
		for _, f := range doc.Fields {
			t.AddField(schema.NewField(localFieldName(f.Key), "", localRef(f.Type, named)))
		}
		local.AddType(t)
	}
	if usesJSON {
		local.AddType(schema.NewType(jsonScalar, schema.TypeKindScalar, "Remote value kept as JSON."))
	}
	return schema.Render(local)
}

// localFieldName moves remote fields out of the way of the local ones.
func localFieldName(key string) string {
	switch key {
	case "id", "remoteTypeName":
		return "remote" + strings.ToUpper(key[:1]) + key[1:]
	}
	return key
}

func localRef(t *language.Type, named func(string) string) *schema.TypeRef {
	var ref *schema.TypeRef
	if t.Elem != nil {
		ref = schema.ListType(localRef(t.Elem, named))
	} else {
		ref = schema.NamedType(named(t.NamedType))
	}
	if t.NonNull {
		ref = schema.NonNullType(ref)
	}
	return ref
}
