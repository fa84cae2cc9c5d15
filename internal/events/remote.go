package events

import "time"

// RemoteStart is emitted before a GraphQL operation is sent to the remote API.
// Seq identifies the call and is repeated on the matching RemoteFinish.
type RemoteStart struct {
	Seq           uint64
	OperationName string
	Endpoint      string
}

// RemoteFinish is emitted after the remote call returns or fails.
type RemoteFinish struct {
	Seq           uint64
	OperationName string
	Endpoint      string
	StatusCode    int
	ErrorCount    int // GraphQL-level errors carried in the response
	Err           error
	Duration      time.Duration
}
