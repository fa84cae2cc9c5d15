package discovery

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	introspection "github.com/hanpama/graphsync/internal/introspection"
	schema "github.com/hanpama/graphsync/internal/schema"
)

// StaticInterfaces are the abstract types the static strategy enumerates.
var StaticInterfaces = []string{
	"EntryInterface",
	"AssetInterface",
	"UserInterface",
	"TagInterface",
	"GlobalSetInterface",
}

// staticTemplates renders the templates for one concrete type of an
// interface. Only entries can be loaded by id.
var staticTemplates = map[string]func(typeName string) (list, node string){
	"EntryInterface": func(typeName string) (string, string) {
		section := strings.SplitN(typeName, "_", 2)[0]
		return fmt.Sprintf(`query LIST_%s { entries(type: %q, limit: $limit, offset: $offset) }`, typeName, section),
			fmt.Sprintf(`query NODE_%s { entry(type: %q, id: $id) }`, typeName, section)
	},
	"AssetInterface":     listOnly("assets"),
	"UserInterface":      listOnly("users"),
	"TagInterface":       listOnly("tags"),
	"GlobalSetInterface": listOnly("globalSets"),
}

var staticNodeFields = map[string]string{
	"EntryInterface": "entry",
}

func listOnly(field string) func(string) (string, string) {
	return func(typeName string) (string, string) {
		return fmt.Sprintf(`query LIST_%s { %s(limit: $limit, offset: $offset) }`, typeName, field), ""
	}
}

func discoverStatic(rs *introspection.RemoteSchema, logger *slog.Logger) *Result {
	res := &Result{Strategy: StrategyStatic}
	seen := map[string]bool{}
	for _, ifaceName := range StaticInterfaces {
		iface := rs.Model.Types[ifaceName]
		if iface == nil {
			logger.Info("interface not in remote schema", "interface", ifaceName)
			continue
		}
		target := Target{Interface: ifaceName, NodeField: staticNodeFields[ifaceName]}
		for _, typeName := range possibleTypes(rs.Model, iface) {
			target.Types = append(target.Types, typeName)
			if seen[typeName] {
				continue
			}
			seen[typeName] = true
			list, node := staticTemplates[ifaceName](typeName)
			res.Types = append(res.Types, NodeType{
				RemoteTypeName: typeName,
				RemoteIDFields: []string{"__typename", "id"},
				Interface:      ifaceName,
				ListQuery:      list,
				NodeQuery:      node,
			})
		}
		res.Targets = append(res.Targets, target)
	}
	return res
}

// possibleTypes lists the object types implementing iface in name order.
func possibleTypes(s *schema.Schema, iface *schema.Type) []string {
	var out []string
	for _, name := range iface.PossibleTypes {
		if t := s.Types[name]; t != nil && t.Kind == schema.TypeKindObject {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
