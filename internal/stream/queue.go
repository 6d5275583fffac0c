package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/gammazero/deque"
)

// ErrPullInFlight is returned by Next when another Next call on the same
// queue is still pending. The queue is single-consumer.
var ErrPullInFlight = errors.New("stream: concurrent Next on the same queue")

type queueState int

const (
	stateOpen queueState = iota
	stateClosed
	stateErrored
)

type pullResult[T any] struct {
	value T
	ok    bool
	err   error
}

// Queue bridges a push-driven producer and a pull-driven consumer. The
// producer calls Push, Close and Fail; the consumer iterates with Next.
// Values come out in the exact order they went in, and a Close or Fail that
// arrives while values are still buffered is only observed once the buffer
// has drained. One producer and one consumer; a Queue is used for a single
// stream and not reused.
type Queue[T any] struct {
	mu     sync.Mutex
	buf    *deque.Deque[T]
	waiter chan pullResult[T]
	state  queueState
	err    error
}

func New[T any]() *Queue[T] {
	return &Queue[T]{buf: deque.New[T]()}
}

// Push hands value to a waiting consumer directly, or buffers it for a
// later Next. It does nothing once the queue is closed or errored.
func (q *Queue[T]) Push(value T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state != stateOpen {
		return
	}
	if q.waiter != nil {
		q.waiter <- pullResult[T]{value: value, ok: true}
		q.waiter = nil
		return
	}
	q.buf.PushBack(value)
}

// Close marks the queue as finished. Buffered values are still drained by
// subsequent Next calls; only after that does Next report the end. Calling
// Close on a terminal queue is a no-op.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state != stateOpen {
		return
	}
	q.state = stateClosed
	if q.waiter != nil {
		q.waiter <- pullResult[T]{}
		q.waiter = nil
	}
}

// Fail marks the queue as failed with err. A waiting Next is rejected
// immediately; otherwise err is delivered by the first Next after the
// buffered values are exhausted. Calling Fail on a terminal queue is a
// no-op.
func (q *Queue[T]) Fail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state != stateOpen {
		return
	}
	q.state = stateErrored
	q.err = err
	if q.waiter != nil {
		q.waiter <- pullResult[T]{err: err}
		q.waiter = nil
	}
}

// Next returns the next value in arrival order. It reports ok=false with a
// nil error at the end of the sequence and ok=false with the stored error
// after Fail. When the queue is empty and still open, Next blocks until the
// producer acts or ctx is cancelled; cancellation ends the sequence without
// an error and closes the queue.
func (q *Queue[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T

	q.mu.Lock()
	if q.buf.Len() > 0 {
		value := q.buf.PopFront()
		q.mu.Unlock()
		return value, true, nil
	}
	switch q.state {
	case stateErrored:
		err := q.err
		q.mu.Unlock()
		return zero, false, err
	case stateClosed:
		q.mu.Unlock()
		return zero, false, nil
	}
	if q.waiter != nil {
		q.mu.Unlock()
		return zero, false, ErrPullInFlight
	}
	wait := make(chan pullResult[T], 1)
	q.waiter = wait
	q.mu.Unlock()

	select {
	case result := <-wait:
		return result.value, result.ok, result.err
	case <-ctx.Done():
		q.mu.Lock()
		if q.waiter == wait {
			q.waiter = nil
		}
		if q.state == stateOpen {
			q.state = stateClosed
		}
		q.mu.Unlock()
		return zero, false, nil
	}
}
