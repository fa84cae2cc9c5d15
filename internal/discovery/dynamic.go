package discovery

import (
	"context"
	"fmt"
	"regexp"

	introspection "github.com/hanpama/graphsync/internal/introspection"
	remote "github.com/hanpama/graphsync/internal/remote"
)

// CapabilityField is the root field a self-describing API exposes.
const CapabilityField = "sourceNodeInformation"

const capabilityQuery = `query SOURCE_NODE_INFORMATION {
  sourceNodeInformation {
    node
    list
    filterArgument
    filterTypeExpression
    targetInterface
  }
}`

// Capability is one record of sourceNodeInformation.
type Capability struct {
	Node                 string `json:"node"`
	List                 string `json:"list"`
	FilterArgument       string `json:"filterArgument"`
	FilterTypeExpression string `json:"filterTypeExpression"`
	TargetInterface      string `json:"targetInterface"`
}

// CapabilityProbe is the outcome of asking for sourceNodeInformation.
// Absent is a normal outcome, not an error.
type CapabilityProbe struct {
	Present      bool
	Capabilities []Capability
}

func hasCapability(rs *introspection.RemoteSchema) bool {
	q := rs.Model.GetQueryType()
	return q != nil && q.Field(CapabilityField) != nil
}

// Probe queries the capability when the schema declares it.
func Probe(ctx context.Context, exec remote.Executor, rs *introspection.RemoteSchema) (CapabilityProbe, error) {
	if !hasCapability(rs) {
		return CapabilityProbe{}, nil
	}
	var data struct {
		SourceNodeInformation []Capability `json:"sourceNodeInformation"`
	}
	op := remote.Operation{Name: "SOURCE_NODE_INFORMATION", Query: capabilityQuery}
	if err := remote.Data(ctx, exec, op, &data); err != nil {
		return CapabilityProbe{}, fmt.Errorf("probe %s: %w", CapabilityField, err)
	}
	return CapabilityProbe{Present: true, Capabilities: data.SourceNodeInformation}, nil
}

// FilterLiteral returns the first capture of pattern in typeName. It
// reports false when the pattern does not match or captures nothing.
func FilterLiteral(pattern *regexp.Regexp, typeName string) (string, bool) {
	m := pattern.FindStringSubmatch(typeName)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// IdentityFragmentName names the fragment selecting a type's id fields.
func IdentityFragmentName(typeName string) string {
	return "_Craft" + typeName + "ID_"
}

func (d *Discoverer) discoverDynamic(ctx context.Context, rs *introspection.RemoteSchema) (*Result, error) {
	probe, err := Probe(ctx, d.exec, rs)
	if err != nil {
		return nil, err
	}
	res := &Result{Strategy: StrategyDynamic}
	if !probe.Present {
		d.logger.InfoContext(ctx, "remote API does not describe node types", "field", CapabilityField)
		return res, nil
	}

	seen := map[string]bool{}
	for _, c := range probe.Capabilities {
		iface := rs.Model.Types[c.TargetInterface]
		if iface == nil {
			d.logger.InfoContext(ctx, "target interface not in remote schema", "interface", c.TargetInterface)
			continue
		}

		var pattern *regexp.Regexp
		if c.List != "" && c.FilterArgument != "" && c.FilterTypeExpression != "" {
			pattern, err = regexp.Compile(c.FilterTypeExpression)
			if err != nil {
				d.logger.WarnContext(ctx, "invalid filter type expression",
					"interface", c.TargetInterface, "expression", c.FilterTypeExpression, "error", err)
				pattern = nil
			}
		}

		target := Target{Interface: c.TargetInterface, NodeField: c.Node}
		for _, typeName := range possibleTypes(rs.Model, iface) {
			target.Types = append(target.Types, typeName)
			if seen[typeName] {
				continue
			}

			nt := NodeType{
				RemoteTypeName:   typeName,
				RemoteIDFields:   []string{"__typename", "id"},
				Interface:        c.TargetInterface,
				IdentityFragment: fmt.Sprintf("fragment %s on %s { __typename id }", IdentityFragmentName(typeName), typeName),
			}
			if c.Node != "" {
				nt.NodeQuery = fmt.Sprintf("query NODE_%s { %s(id: $id) { ...%s } }",
					typeName, c.Node, IdentityFragmentName(typeName))
			}
			if pattern != nil {
				if literal, ok := FilterLiteral(pattern, typeName); ok {
					nt.ListQuery = fmt.Sprintf("query LIST_%s { %s(%s: %q, limit: $limit, offset: $offset) { ...%s } }",
						typeName, c.List, c.FilterArgument, literal, IdentityFragmentName(typeName))
				} else {
					d.logger.InfoContext(ctx, "type name does not match filter, sourcing by id only",
						"remote_type", typeName, "expression", c.FilterTypeExpression)
				}
			}
			if nt.ListQuery == "" && nt.NodeQuery == "" {
				d.logger.InfoContext(ctx, "type has neither list nor node query, skipped", "remote_type", typeName)
				continue
			}
			seen[typeName] = true
			res.Types = append(res.Types, nt)
		}
		res.Targets = append(res.Targets, target)
	}
	return res, nil
}
