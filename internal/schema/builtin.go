package schema

import "strings"

var builtinScalars = map[string]bool{
	"String":  true,
	"Int":     true,
	"Float":   true,
	"Boolean": true,
	"ID":      true,
}

// Directives every GraphQL server is expected to know about. gqlparser ships
// them in its prelude, so rendering them again would redeclare them.
var builtinDirectives = map[string]bool{
	"include":     true,
	"skip":        true,
	"deprecated":  true,
	"specifiedBy": true,
	"defer":       true,
	"oneOf":       true,
}

// IsBuiltinType reports whether name is a specified scalar or an
// introspection type.
func IsBuiltinType(name string) bool {
	return builtinScalars[name] || strings.HasPrefix(name, "__")
}

// IsBuiltinDirective reports whether name is a specified directive.
func IsBuiltinDirective(name string) bool {
	return builtinDirectives[name]
}
