package events

import "time"

// SyncStart is emitted when a sourcing run has chosen its mode.
type SyncStart struct {
	Mode  string
	Types int
}

// SyncFinish is emitted when a sourcing run ends.
type SyncFinish struct {
	Mode      string
	Created   int
	Updated   int
	Deleted   int
	Unchanged int
	Err       error
	Duration  time.Duration
}

// NodeMutation is emitted for every node the run touches.
type NodeMutation struct {
	Action         string // create, update, delete, unchanged
	RemoteTypeName string
	RemoteID       string
}
