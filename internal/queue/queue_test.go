package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	remote "github.com/hanpama/graphsync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueNeverExceedsLimit(t *testing.T) {
	for _, limit := range []int{1, 3, 10} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			var inFlight, peak, served atomic.Int64
			exec := remote.ExecutorFunc(func(ctx context.Context, op remote.Operation) (*remote.Response, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				served.Add(1)
				return &remote.Response{}, nil
			})

			q := New(exec, limit)
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := q.Execute(context.Background(), remote.Operation{Name: "op"})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			assert.LessOrEqual(t, peak.Load(), int64(limit))
			assert.Equal(t, int64(50), served.Load(), "every call is serviced")
		})
	}
}

func TestQueueAdmitsWaitersInArrivalOrder(t *testing.T) {
	const limit, waiting = 2, 5
	names := []string{"hold-0", "hold-1"}
	for i := 0; i < waiting; i++ {
		names = append(names, fmt.Sprintf("wait-%d", i))
	}
	release := map[string]chan struct{}{}
	for _, name := range names {
		release[name] = make(chan struct{})
	}

	admitted := make(chan string)
	exec := remote.ExecutorFunc(func(_ context.Context, op remote.Operation) (*remote.Response, error) {
		admitted <- op.Name
		<-release[op.Name]
		return &remote.Response{}, nil
	})
	q := New(exec, limit)

	var wg sync.WaitGroup
	submit := func(name string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Execute(context.Background(), remote.Operation{Name: name})
			assert.NoError(t, err)
		}()
	}
	for _, name := range names[:limit] {
		submit(name)
		require.Equal(t, name, <-admitted)
	}
	for _, name := range names[limit:] {
		submit(name)
		// let the caller block in Execute before the next one arrives
		time.Sleep(10 * time.Millisecond)
	}

	// Free one slot at a time; each frees room for exactly one waiter.
	var order []string
	for _, name := range names[:waiting] {
		close(release[name])
		order = append(order, <-admitted)
	}
	assert.Equal(t, names[limit:], order)

	for _, name := range names[waiting:] {
		close(release[name])
	}
	wg.Wait()
}

func TestQueueFailureFreesSlot(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	exec := remote.ExecutorFunc(func(context.Context, remote.Operation) (*remote.Response, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return &remote.Response{}, nil
	})
	q := New(exec, 1)

	_, err := q.Execute(context.Background(), remote.Operation{})
	require.ErrorIs(t, err, boom, "wrapped errors pass through unchanged")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = q.Execute(ctx, remote.Operation{})
	require.NoError(t, err, "slot released after failure")
}

func TestQueueWaitHonoursContext(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	exec := remote.ExecutorFunc(func(context.Context, remote.Operation) (*remote.Response, error) {
		close(entered)
		<-release
		return &remote.Response{}, nil
	})
	q := New(exec, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Execute(context.Background(), remote.Operation{})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Execute(ctx, remote.Operation{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
}

func TestDefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, New(nil, 0).Limit())
	assert.Equal(t, 4, New(nil, 4).Limit())
}
