// Package remote talks GraphQL-over-HTTP to the content API.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Operation is a named GraphQL request.
type Operation struct {
	Name      string         `json:"operationName,omitempty"`
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// MarshalJSON writes variables as an empty object when there are none.
func (o Operation) MarshalJSON() ([]byte, error) {
	type wire Operation
	w := wire(o)
	if w.Variables == nil {
		w.Variables = map[string]any{}
	}
	return json.Marshal(w)
}

// Response is the decoded response body. Errors are carried as returned by
// the server; the executor does not interpret them.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Executor sends one operation to the remote API.
type Executor interface {
	Execute(ctx context.Context, op Operation) (*Response, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, op Operation) (*Response, error)

func (f ExecutorFunc) Execute(ctx context.Context, op Operation) (*Response, error) {
	return f(ctx, op)
}

// Err returns a *ResponseError when the response carries GraphQL errors.
func (r *Response) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return &ResponseError{Errors: r.Errors}
}

// Decode unmarshals the data member into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Data) == 0 || string(r.Data) == "null" {
		return fmt.Errorf("response has no data")
	}
	return json.Unmarshal(r.Data, v)
}

// Data executes op and decodes its data into v. GraphQL errors are returned
// as *ResponseError naming the operation.
func Data(ctx context.Context, exec Executor, op Operation, v any) error {
	resp, err := exec.Execute(ctx, op)
	if err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return &ResponseError{Operation: op.Name, Errors: resp.Errors}
	}
	if err := resp.Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", op.Name, err)
	}
	return nil
}

// ResponseError reports GraphQL-level errors for an operation whose data the
// caller needed.
type ResponseError struct {
	Operation string
	Errors    []GraphQLError
}

func (e *ResponseError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		msgs = append(msgs, ge.Message)
	}
	if e.Operation == "" {
		return "graphql: " + strings.Join(msgs, "; ")
	}
	return fmt.Sprintf("graphql %s: %s", e.Operation, strings.Join(msgs, "; "))
}

// TransportError reports a failure to obtain a GraphQL response at all.
type TransportError struct {
	Operation  string
	StatusCode int // zero when no HTTP response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote %s: http %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
