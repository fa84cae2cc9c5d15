package fragments

import (
	"strings"

	discovery "github.com/hanpama/graphsync/internal/discovery"
	schema "github.com/hanpama/graphsync/internal/schema"
)

// Default builds the default fragment for typeName: every leaf field that
// takes no required argument, plus a reference selection for fields that
// point at other node types. It reports false when nothing is selectable.
func Default(s *schema.Schema, typeName string, types []discovery.NodeType) (string, bool) {
	t := s.Types[typeName]
	if t == nil {
		return "", false
	}
	nodeTypes := make(map[string]bool, len(types))
	for _, nt := range types {
		nodeTypes[nt.RemoteTypeName] = true
		if nt.Interface != "" {
			nodeTypes[nt.Interface] = true
		}
	}

	var b strings.Builder
	b.WriteString("fragment ")
	b.WriteString(typeName)
	b.WriteString(" on ")
	b.WriteString(typeName)
	b.WriteString(" {\n")
	n := 0
	for _, f := range t.Fields {
		if strings.HasPrefix(f.Name, "__") || hasRequiredArgument(f) {
			continue
		}
		named := s.Types[f.Type.GetNamedType()]
		switch {
		case named == nil || named.IsLeaf():
			// specified scalars are absent from the model
			b.WriteString("  " + f.Name + "\n")
		case nodeTypes[named.Name] && named.Field("id") != nil:
			b.WriteString("  " + f.Name + " { __typename id }\n")
		default:
			continue
		}
		n++
	}
	b.WriteString("}\n")
	if n == 0 {
		return "", false
	}
	return b.String(), true
}

func hasRequiredArgument(f *schema.Field) bool {
	for _, a := range f.Arguments {
		if a.Type.IsNonNull() && a.DefaultValue == nil {
			return true
		}
	}
	return false
}
