package sourcing

import "strings"

// Phases of a run, as reported by RunError.
const (
	PhaseLoadSchema   = "load schema"
	PhaseDiscover     = "discover node types"
	PhaseFragments    = "read fragments"
	PhaseCompile      = "compile documents"
	PhaseRegister     = "register types"
	PhaseSyncState    = "read sync state"
	PhaseFullSync     = "full sync"
	PhaseDeltaSync    = "delta sync"
	PhasePersistState = "persist sync state"
)

// RunError is a run failure with enough context for the host to report:
// the phase, and the node type and operation when there is one.
type RunError struct {
	Phase          string
	RemoteTypeName string
	Operation      string
	Err            error
}

func (e *RunError) Error() string {
	var b strings.Builder
	b.WriteString(e.Phase)
	if e.RemoteTypeName != "" {
		b.WriteString(" ")
		b.WriteString(e.RemoteTypeName)
	}
	if e.Operation != "" {
		b.WriteString(" (")
		b.WriteString(e.Operation)
		b.WriteString(")")
	}
	b.WriteString(": ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RunError) Unwrap() error { return e.Err }
