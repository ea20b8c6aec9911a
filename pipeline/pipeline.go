// Package pipeline implements the per-connection command multiplexer: a
// strict FIFO matcher that pairs outbound commands with the next inbound
// RESP value, plus the Default/Draining/Errored lifecycle that governs
// graceful shutdown and error propagation.
package pipeline

import (
	"container/list"
	"sync"

	"github.com/rdpipe/redispipe/rediserr"
	"github.com/rdpipe/redispipe/resp"
)

// State identifies the pipeline's lifecycle phase.
type State int

const (
	// Default accepts writes and reads.
	Default State = iota
	// Draining accepts no new writes; waits for the queue to empty.
	Draining
	// Errored is terminal: every write and every queued promise fails.
	Errored
)

func (s State) String() string {
	switch s {
	case Default:
		return "default"
	case Draining:
		return "draining"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Promise is the one-shot channel a caller observes for a single
// command's response, per the Design Notes' "futures tied to the event
// loop" model.
type Promise struct {
	ch     chan struct{}
	result resp.Value
	err    error
}

func newPromise() *Promise {
	return &Promise{ch: make(chan struct{})}
}

func (p *Promise) resolve(v resp.Value) {
	p.result = v
	close(p.ch)
}

func (p *Promise) reject(err error) {
	p.err = err
	close(p.ch)
}

// Wait blocks until the promise settles and returns its outcome.
func (p *Promise) Wait() (resp.Value, error) {
	<-p.ch
	return p.result, p.err
}

// Done returns a channel that closes once the promise settles, for
// select-based callers.
func (p *Promise) Done() <-chan struct{} {
	return p.ch
}

// Writer is the transport the pipeline forwards encoded commands to.
// Connection implements this by writing to its socket.
type Writer interface {
	WriteCommand(encoded []byte) error
}

// Pipeline pairs every outbound command with the next inbound RESP
// value in strict FIFO order (§4.2). It holds no socket of its own; the
// owning Connection drives Write on the send path and PushResponse/Fail
// on the read path.
type Pipeline struct {
	mu      sync.Mutex
	state   State
	err     error
	queue   *list.List // of *Promise
	writer  Writer
	drained chan struct{} // unused; drain completion is signalled through onDrain
	onDrain func()

	successCount int64
	failureCount int64
}

// New returns a Pipeline in the Default state, writing through w.
func New(w Writer) *Pipeline {
	return &Pipeline{
		state:  Default,
		queue:  list.New(),
		writer: w,
	}
}

// State returns the pipeline's current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Counts returns the number of responses matched to a success and to a
// server error reply so far.
func (p *Pipeline) Counts() (success, failure int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.successCount, p.failureCount
}

// Write enqueues message for sending and forwards its encoding to the
// writer. In Default, the promise joins the tail of the queue. In
// Draining it fails immediately with ConnectionClosed; in Errored it
// fails with the terminal error (§4.2 write path).
func (p *Pipeline) Write(message resp.Value) *Promise {
	promise := newPromise()

	p.mu.Lock()
	switch p.state {
	case Draining:
		p.mu.Unlock()
		promise.reject(rediserr.NewConnectionClosed(nil))
		return promise
	case Errored:
		err := p.err
		p.mu.Unlock()
		promise.reject(err)
		return promise
	}
	p.queue.PushBack(promise)
	p.mu.Unlock()

	encoded := resp.Encode(nil, message)
	if err := p.writer.WriteCommand(encoded); err != nil {
		p.Fail(rediserr.NewTransportError(err))
	}
	return promise
}

// PushResponse matches one decoded RESP value against the head of the
// queue (§4.2 read path). A value arriving with an empty queue is
// spurious (a race against a state transition) and is silently
// discarded rather than treated as an error.
func (p *Pipeline) PushResponse(v resp.Value) {
	p.mu.Lock()
	front := p.queue.Front()
	if front == nil {
		p.mu.Unlock()
		return
	}
	p.queue.Remove(front)
	promise := front.Value.(*Promise)

	if v.Kind == resp.KindError {
		p.failureCount++
	} else {
		p.successCount++
	}

	drained := p.state == Draining && p.queue.Len() == 0
	onDrain := p.onDrain
	p.mu.Unlock()

	if v.Kind == resp.KindError {
		promise.reject(rediserr.NewRedisError(v.Str))
	} else {
		promise.resolve(v)
	}

	if drained && onDrain != nil {
		onDrain()
	}
}

// Fail transitions the pipeline to Errored and fails every promise
// currently queued, in FIFO order, with err. It is idempotent: once
// Errored, later calls are no-ops (the queue is already empty).
func (p *Pipeline) Fail(err error) {
	p.mu.Lock()
	if p.state == Errored {
		p.mu.Unlock()
		return
	}
	p.state = Errored
	p.err = err
	pending := p.drainQueueLocked()
	p.mu.Unlock()

	for _, promise := range pending {
		promise.reject(err)
	}
}

// drainQueueLocked empties the queue and returns its promises in order.
// Callers must hold p.mu.
func (p *Pipeline) drainQueueLocked() []*Promise {
	pending := make([]*Promise, 0, p.queue.Len())
	for e := p.queue.Front(); e != nil; e = e.Next() {
		pending = append(pending, e.Value.(*Promise))
	}
	p.queue.Init()
	return pending
}

// Drain initiates a graceful close (§4.2 graceful shutdown). onClose is
// invoked exactly once: synchronously if the pipeline can close
// immediately, or later, once the in-flight queue empties, if not. If
// the pipeline is already Draining or Errored, onClose is invoked
// synchronously as well; an earlier Drain's pending onClose is left in
// place.
func (p *Pipeline) Drain(onClose func()) {
	p.mu.Lock()
	switch p.state {
	case Errored, Draining:
		p.mu.Unlock()
		onClose()
		return
	}
	if p.queue.Len() == 0 {
		p.state = Errored
		p.err = rediserr.NewConnectionClosed(nil)
		p.mu.Unlock()
		onClose()
		return
	}
	p.state = Draining
	p.onDrain = onClose
	p.mu.Unlock()
}
