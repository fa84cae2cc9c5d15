// Package queue bounds the number of remote operations in flight.
package queue

import (
	"context"

	remote "github.com/hanpama/graphsync/internal/remote"
	"golang.org/x/sync/semaphore"
)

// DefaultLimit is used when a non-positive limit is given.
const DefaultLimit = 10

// Queue wraps an executor so that at most Limit calls run at once. Waiting
// callers are admitted in the order they arrived.
type Queue struct {
	exec  remote.Executor
	sem   *semaphore.Weighted
	limit int
}

func New(exec remote.Executor, limit int) *Queue {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Queue{exec: exec, sem: semaphore.NewWeighted(int64(limit)), limit: limit}
}

func (q *Queue) Limit() int { return q.limit }

// Execute waits for a free slot and forwards op. Errors from the wrapped
// executor are returned unchanged.
func (q *Queue) Execute(ctx context.Context, op remote.Operation) (*remote.Response, error) {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer q.sem.Release(1)
	return q.exec.Execute(ctx, op)
}
