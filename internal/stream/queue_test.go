package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueDrainsInPushOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		q.Push(i)
	}

	for i := 0; i < 5; i++ {
		v, ok, err := q.Next(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestQueueCloseDefersUntilBufferDrained(t *testing.T) {
	q := New[string]()
	q.Push("a")
	q.Push("b")
	q.Close()

	v, ok, err := q.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", v)

	v, ok, err = q.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b", v)

	_, ok, err = q.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	// Terminal state is sticky.
	_, ok, err = q.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueueErrorDeliveredAfterBufferedValues(t *testing.T) {
	q := New[int]()
	q.Push(1)
	failure := errors.New("connection reset")
	q.Fail(failure)

	v, ok, err := q.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, v)

	_, ok, err = q.Next(context.Background())
	require.False(t, ok)
	require.ErrorIs(t, err, failure)
}

func TestQueuePushAfterTerminalIsDropped(t *testing.T) {
	q := New[int]()
	q.Close()
	q.Push(42)
	q.Fail(errors.New("too late"))

	_, ok, err := q.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueueRendezvousHandoff(t *testing.T) {
	q := New[string]()

	got := make(chan string, 1)
	go func() {
		v, ok, err := q.Next(context.Background())
		if err == nil && ok {
			got <- v
		}
	}()

	// Give the consumer time to park before pushing.
	time.Sleep(10 * time.Millisecond)
	q.Push("direct")

	select {
	case v := <-got:
		require.Equal(t, "direct", v)
	case <-time.After(time.Second):
		t.Fatal("waiting Next was not resumed by Push")
	}
}

func TestQueueFailRejectsWaitingPull(t *testing.T) {
	q := New[int]()
	failure := errors.New("boom")

	errCh := make(chan error, 1)
	go func() {
		_, _, err := q.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Fail(failure)

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, failure)
	case <-time.After(time.Second):
		t.Fatal("waiting Next was not rejected by Fail")
	}
}

func TestQueueCloseResumesWaitingPull(t *testing.T) {
	q := New[int]()

	done := make(chan bool, 1)
	go func() {
		_, ok, _ := q.Next(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("waiting Next was not resumed by Close")
	}
}

func TestQueueConcurrentNextIsRejected(t *testing.T) {
	q := New[int]()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		close(started)
		_, _, _ = q.Next(context.Background())
		<-release
	}()

	<-started
	time.Sleep(10 * time.Millisecond)

	_, _, err := q.Next(context.Background())
	require.ErrorIs(t, err, ErrPullInFlight)

	q.Close()
	close(release)
}

func TestQueueCancelledPullEndsSequence(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())

	type result struct {
		ok  bool
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		_, ok, err := q.Next(ctx)
		resultCh <- result{ok: ok, err: err}
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		require.False(t, r.ok)
	case <-time.After(time.Second):
		t.Fatal("cancelled Next did not return")
	}

	// The cancellation closed the queue, so later pulls end immediately.
	_, ok, err := q.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueueBuffersFasterThanConsumed(t *testing.T) {
	q := New[int]()

	const n = 100
	for i := 0; i < n; i++ {
		q.Push(i)
	}

	// Close arrives mid-drain; everything already accepted is still seen.
	seen := 0
	for {
		v, ok, err := q.Next(context.Background())
		require.NoError(t, err)
		if seen == n/2 {
			q.Close()
		}
		if !ok {
			break
		}
		require.Equal(t, seen, v)
		seen++
	}
	require.Equal(t, n, seen)
}
