package introspection

import (
	"encoding/json"
	"sort"

	schema "github.com/hanpama/graphsync/internal/schema"
)

// Encode produces the data member of an introspection response for s, the
// way a server would answer Query. The specified scalars are included since
// every field of a real server references them.
func Encode(s *schema.Schema) ([]byte, error) {
	return json.Marshal(wireResult{Schema: toWire(s)})
}

func toWire(s *schema.Schema) *wireSchema {
	ws := &wireSchema{
		QueryType:  rootName(s.QueryType),
		Types:      []wireType{},
		Directives: []wireDirective{},
	}
	ws.MutationType = rootName(s.MutationType)
	ws.SubscriptionType = rootName(s.SubscriptionType)

	for _, name := range []string{"Boolean", "Float", "ID", "Int", "String"} {
		if _, ok := s.Types[name]; !ok {
			ws.Types = append(ws.Types, wireType{Kind: string(schema.TypeKindScalar), Name: name})
		}
	}
	for _, t := range sortedTypes(s) {
		ws.Types = append(ws.Types, typeToWire(s, t))
	}
	sort.Slice(ws.Types, func(i, j int) bool { return ws.Types[i].Name < ws.Types[j].Name })

	for _, d := range sortedDirectives(s) {
		wd := wireDirective{
			Name:         d.Name,
			Description:  optional(d.Description),
			Locations:    append([]string{}, d.Locations...),
			Args:         inputValuesToWire(s, d.Arguments),
			IsRepeatable: d.IsRepeatable,
		}
		sort.Strings(wd.Locations)
		ws.Directives = append(ws.Directives, wd)
	}
	return ws
}

func rootName(name string) *wireName {
	if name == "" {
		return nil
	}
	return &wireName{Name: name}
}

func sortedTypes(s *schema.Schema) []*schema.Type {
	out := make([]*schema.Type, 0, len(s.Types))
	for _, t := range s.Types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedDirectives(s *schema.Schema) []*schema.Directive {
	out := make([]*schema.Directive, 0, len(s.Directives))
	for _, d := range s.Directives {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func typeToWire(s *schema.Schema, t *schema.Type) wireType {
	wt := wireType{
		Kind:           string(t.Kind),
		Name:           t.Name,
		Description:    optional(t.Description),
		SpecifiedByURL: t.SpecifiedByURL,
		IsOneOf:        t.OneOf,
	}
	switch t.Kind {
	case schema.TypeKindObject, schema.TypeKindInterface:
		wt.Fields = []wireField{}
		for _, f := range t.Fields {
			wt.Fields = append(wt.Fields, wireField{
				Name:              f.Name,
				Description:       optional(f.Description),
				Args:              inputValuesToWire(s, f.Arguments),
				Type:              *typeRefToWire(s, f.Type),
				IsDeprecated:      f.IsDeprecated,
				DeprecationReason: deprecationReason(f.IsDeprecated, f.DeprecationReason),
			})
		}
		wt.Interfaces = namedRefs(s, t.Interfaces)
		if t.Kind == schema.TypeKindInterface {
			wt.PossibleTypes = namedRefs(s, t.PossibleTypes)
		}
	case schema.TypeKindUnion:
		wt.PossibleTypes = namedRefs(s, t.PossibleTypes)
	case schema.TypeKindEnum:
		wt.EnumValues = []wireEnumValue{}
		for _, v := range t.EnumValues {
			wt.EnumValues = append(wt.EnumValues, wireEnumValue{
				Name:              v.Name,
				Description:       optional(v.Description),
				IsDeprecated:      v.IsDeprecated,
				DeprecationReason: deprecationReason(v.IsDeprecated, v.DeprecationReason),
			})
		}
	case schema.TypeKindInputObject:
		wt.InputFields = inputValuesToWire(s, t.InputFields)
	}
	return wt
}

func inputValuesToWire(s *schema.Schema, values []*schema.InputValue) []wireInputValue {
	out := []wireInputValue{}
	for _, v := range values {
		wv := wireInputValue{
			Name:              v.Name,
			Description:       optional(v.Description),
			Type:              *typeRefToWire(s, v.Type),
			IsDeprecated:      v.IsDeprecated,
			DeprecationReason: deprecationReason(v.IsDeprecated, v.DeprecationReason),
		}
		if lit, ok := v.DefaultValue.(schema.Literal); ok {
			text := string(lit)
			wv.DefaultValue = &text
		}
		out = append(out, wv)
	}
	return out
}

func namedRefs(s *schema.Schema, names []string) []wireTypeRef {
	out := []wireTypeRef{}
	for _, name := range names {
		out = append(out, *typeRefToWire(s, schema.NamedType(name)))
	}
	return out
}

func typeRefToWire(s *schema.Schema, ref *schema.TypeRef) *wireTypeRef {
	switch ref.Kind {
	case schema.TypeRefKindNonNull, schema.TypeRefKindList:
		return &wireTypeRef{Kind: string(ref.Kind), OfType: typeRefToWire(s, ref.OfType)}
	}
	name := ref.Named
	kind := string(schema.TypeKindScalar)
	if t := s.Types[name]; t != nil {
		kind = string(t.Kind)
	}
	return &wireTypeRef{Kind: kind, Name: &name}
}

func deprecationReason(deprecated bool, reason string) *string {
	if !deprecated {
		return nil
	}
	return &reason
}
