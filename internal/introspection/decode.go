package introspection

import (
	"encoding/json"
	"errors"
	"fmt"

	schema "github.com/hanpama/graphsync/internal/schema"
)

// ErrNoSchema is returned when an introspection result has no __schema.
var ErrNoSchema = errors.New("introspection result has no __schema")

// Decode converts the data member of an introspection response into the
// schema model. Specified scalars, introspection types and specified
// directives are dropped.
func Decode(data []byte) (*schema.Schema, error) {
	var res wireResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode introspection: %w", err)
	}
	if res.Schema == nil {
		return nil, ErrNoSchema
	}
	return fromWire(res.Schema)
}

func fromWire(ws *wireSchema) (*schema.Schema, error) {
	if ws.QueryType == nil || ws.QueryType.Name == "" {
		return nil, fmt.Errorf("decode introspection: schema has no query type")
	}
	s := schema.NewSchema("").SetQueryType(ws.QueryType.Name)
	if ws.MutationType != nil {
		s.SetMutationType(ws.MutationType.Name)
	}
	if ws.SubscriptionType != nil {
		s.SetSubscriptionType(ws.SubscriptionType.Name)
	}

	for _, wt := range ws.Types {
		if schema.IsBuiltinType(wt.Name) {
			continue
		}
		t, err := typeFromWire(wt)
		if err != nil {
			return nil, err
		}
		s.AddType(t)
	}
	for _, wd := range ws.Directives {
		if schema.IsBuiltinDirective(wd.Name) {
			continue
		}
		d := schema.NewDirective(wd.Name, deref(wd.Description)).SetRepeatable(wd.IsRepeatable)
		d.Locations = append(d.Locations, wd.Locations...)
		for _, a := range wd.Args {
			d.AddArgument(inputValueFromWire(a))
		}
		s.AddDirective(d)
	}
	return s, nil
}

func typeFromWire(wt wireType) (*schema.Type, error) {
	kind := schema.TypeKind(wt.Kind)
	t := schema.NewType(wt.Name, kind, deref(wt.Description))
	switch kind {
	case schema.TypeKindObject, schema.TypeKindInterface:
		for _, ref := range wt.Interfaces {
			t.AddInterface(deref(ref.Name))
		}
		for _, wf := range wt.Fields {
			f := schema.NewField(wf.Name, deref(wf.Description), typeRefFromWire(&wf.Type))
			if wf.IsDeprecated {
				f.Deprecate(deref(wf.DeprecationReason))
			}
			for _, a := range wf.Args {
				f.AddArgument(inputValueFromWire(a))
			}
			t.AddField(f)
		}
		if kind == schema.TypeKindInterface {
			for _, ref := range wt.PossibleTypes {
				t.AddPossibleType(deref(ref.Name))
			}
		}
	case schema.TypeKindUnion:
		for _, ref := range wt.PossibleTypes {
			t.AddPossibleType(deref(ref.Name))
		}
	case schema.TypeKindEnum:
		for _, wv := range wt.EnumValues {
			v := schema.NewEnumValue(wv.Name, deref(wv.Description))
			if wv.IsDeprecated {
				v.Deprecate(deref(wv.DeprecationReason))
			}
			t.AddEnumValue(v)
		}
	case schema.TypeKindInputObject:
		t.SetOneOf(wt.IsOneOf)
		for _, a := range wt.InputFields {
			t.AddInputField(inputValueFromWire(a))
		}
	case schema.TypeKindScalar:
		if wt.SpecifiedByURL != nil {
			t.SetSpecifiedBy(*wt.SpecifiedByURL)
		}
	default:
		return nil, fmt.Errorf("decode introspection: type %s has unknown kind %q", wt.Name, wt.Kind)
	}
	return t, nil
}

func inputValueFromWire(a wireInputValue) *schema.InputValue {
	in := schema.NewInputValue(a.Name, deref(a.Description), typeRefFromWire(&a.Type))
	if a.DefaultValue != nil {
		in.SetDefault(schema.Literal(*a.DefaultValue))
	}
	if a.IsDeprecated {
		in.Deprecate(deref(a.DeprecationReason))
	}
	return in
}

func typeRefFromWire(ref *wireTypeRef) *schema.TypeRef {
	if ref == nil {
		return nil
	}
	switch ref.Kind {
	case "NON_NULL":
		return schema.NonNullType(typeRefFromWire(ref.OfType))
	case "LIST":
		return schema.ListType(typeRefFromWire(ref.OfType))
	default:
		return schema.NamedType(deref(ref.Name))
	}
}
