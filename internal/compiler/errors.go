package compiler

import (
	"fmt"
	"strings"

	language "github.com/hanpama/graphsync/internal/language"
)

// CompileError reports a node type whose documents could not be built or do
// not validate against the remote schema. Any CompileError aborts the run.
type CompileError struct {
	RemoteTypeName string
	Violations     language.ErrorList
	Err            error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	if e.RemoteTypeName != "" {
		fmt.Fprintf(&b, "compile %s", e.RemoteTypeName)
	} else {
		b.WriteString("compile")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	for _, v := range e.Violations {
		fmt.Fprintf(&b, "\n  %s", v.Error())
	}
	return b.String()
}

func (e *CompileError) Unwrap() error { return e.Err }
