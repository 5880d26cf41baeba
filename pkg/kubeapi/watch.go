package kubeapi

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// TaskEvent is one item a WatchTask's output sequence carries: a decoded E,
// or an error. A stream failure (a line that fails to decode, or a read
// error mid-stream) is forwarded and the task then reconnects per its retry
// strategy; MaxRetriesReachedError is the last event of the sequence. A
// failure to open the stream is not forwarded on its own.
type TaskEvent[E any] struct {
	Item E
	Err  error
}

// WatchTask is a cold handle bound to a built Request, a Transformer and a
// RetryStrategy (§4.H). It does nothing until Start is called. Cancelling
// twice is a no-op; cancelling before Start makes Start return an
// already-closed, empty sequence.
//
// Known limitation (spec §9 open question, preserved intentionally): the
// retry loop reconnects after *any* stream termination (EOF, a stream error
// or a failed open, 4xx responses included), rather than distinguishing authorization loss from a transient
// server error. Callers who want stricter behavior should cap attempts to 1.
type WatchTask[E any] struct {
	dispatcher *Dispatcher
	request    *Request
	transform  Transformer[E]
	strategy   RetryStrategy
	log        logr.Logger

	mu        sync.Mutex
	cancelled bool
	cancelCh  chan struct{}
}

func newWatchTask[E any](d *Dispatcher, req *Request, transform Transformer[E], strategy RetryStrategy) *WatchTask[E] {
	return &WatchTask[E]{
		dispatcher: d,
		request:    req,
		transform:  transform,
		strategy:   strategy,
		log:        d.Log,
		cancelCh:   make(chan struct{}),
	}
}

// Cancel stops the task. In-flight and future reconnect attempts are
// abandoned; the output sequence completes normally with no error.
func (t *WatchTask[E]) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.cancelled {
		t.cancelled = true
		close(t.cancelCh)
	}
}

func (t *WatchTask[E]) isCancelled() bool {
	select {
	case <-t.cancelCh:
		return true
	default:
		return false
	}
}

// Start begins the task's reconnect loop and returns the channel it
// publishes TaskEvents on. The channel behaves as an unbounded buffer: a
// slow consumer causes the task's internal queue to grow rather than
// applying back-pressure upstream. This is a deliberate match of the
// reference client's behavior, not an accident — callers with bounded
// memory budgets must drain the channel promptly.
func (t *WatchTask[E]) Start(ctx context.Context) <-chan TaskEvent[E] {
	out := make(chan TaskEvent[E])

	t.mu.Lock()
	cancelled := t.cancelled
	t.mu.Unlock()
	if cancelled {
		close(out)
		return out
	}

	internal := make(chan TaskEvent[E])
	go t.pumpUnbounded(internal, out)
	go t.run(ctx, internal)
	return out
}

// pumpUnbounded relays items from in to out through a growing slice buffer,
// so a producer never blocks on a slow consumer.
func (t *WatchTask[E]) pumpUnbounded(in <-chan TaskEvent[E], out chan<- TaskEvent[E]) {
	defer close(out)
	var queue []TaskEvent[E]
	for {
		if len(queue) == 0 {
			v, ok := <-in
			if !ok {
				return
			}
			queue = append(queue, v)
			continue
		}
		select {
		case v, ok := <-in:
			if !ok {
				for _, q := range queue {
					out <- q
				}
				return
			}
			queue = append(queue, v)
		case out <- queue[0]:
			queue = queue[1:]
		}
	}
}

// run drives the reconnect loop: open a stream, forward every item the
// streaming engine produces, and on EOF/error either sleep-and-retry or
// finish with MaxRetriesReachedError once the retry policy is exhausted.
func (t *WatchTask[E]) run(ctx context.Context, internal chan<- TaskEvent[E]) {
	defer close(internal)
	it := newRetryIterator(t.strategy)

	for {
		if t.isCancelled() {
			return
		}

		body, err := t.dispatcher.openStream(ctx, t.request)
		if err == nil {
			t.drainStream(body, internal)
		}

		if t.isCancelled() {
			return
		}

		attempt, ok := it.next()
		if !ok {
			select {
			case internal <- TaskEvent[E]{Err: &MaxRetriesReachedError{Request: t.request}}:
			case <-t.cancelCh:
			}
			return
		}
		t.log.V(1).Info("watch reconnecting", "attempt", attempt.Attempt, "delay", attempt.Delay)
		select {
		case <-time.After(attempt.Delay):
		case <-t.cancelCh:
			return
		}
	}
}

// drainStream runs the streaming engine over one open connection and
// forwards its output until the connection ends or the task is cancelled.
func (t *WatchTask[E]) drainStream(body io.ReadCloser, internal chan<- TaskEvent[E]) {
	streamOut := make(chan streamResult[E])
	streamDone := make(chan struct{})
	var closeOnce sync.Once
	closeBody := func() { closeOnce.Do(func() { body.Close() }) }

	go func() {
		select {
		case <-t.cancelCh:
			closeBody()
		case <-streamDone:
		}
	}()

	go runStream(t.cancelCh, body, t.transform, streamOut)

	for res := range streamOut {
		if t.isCancelled() {
			continue
		}
		select {
		case internal <- TaskEvent[E]{Item: res.Item, Err: res.Err}:
		case <-t.cancelCh:
		}
	}
	close(streamDone)
	closeBody()
}
