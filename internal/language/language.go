package language

import (
	"bytes"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// Error is a located GraphQL error as produced by the parser and validator.
type Error = gqlerror.Error

// ErrorList groups validation errors for a single document.
type ErrorList = gqlerror.List

func ParseQuery(source string) (*QueryDocument, error) {
	return ParseNamedQuery("", source)
}

// ParseNamedQuery parses an executable document. The name shows up in error
// locations, so callers pass the file or type the text came from.
func ParseNamedQuery(name, source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadSchema parses and validates SDL together with the GraphQL prelude
// (built-in scalars, introspection types and standard directives).
func LoadSchema(name, sdl string) (*Schema, error) {
	sch, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: sdl})
	if err != nil {
		return nil, err
	}
	return sch, nil
}

// Validate runs the standard executable-document rules. On success the
// document's fields and fragment spreads carry their schema definitions.
func Validate(sch *Schema, doc *QueryDocument) error {
	if errs := validator.ValidateWithRules(sch, doc, nil); len(errs) > 0 {
		return errs
	}
	return nil
}

// Print pretty-prints an executable document.
func Print(doc *QueryDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatQueryDocument(doc)
	return buf.String()
}
