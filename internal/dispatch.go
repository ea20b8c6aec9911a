// Package internal provides a small sharded goroutine dispatcher used
// to run blocking work (dialing, backoff sleeps) off a pool's
// event-loop goroutine without spawning one goroutine per task.
package internal

import "sync/atomic"

const shardCount = 16

type shard struct {
	jobs chan func()
}

// Dispatcher runs submitted functions on a fixed-size ring of worker
// goroutines, each draining its own buffered job channel in order. It
// bounds the number of concurrently-running background goroutines a
// pool spawns for connection creation and backoff waits, while still
// letting independent shards make progress concurrently.
type Dispatcher struct {
	shards [shardCount]shard
	cursor atomic.Uint64
}

// NewDispatcher starts shardCount worker goroutines, each with a job
// queue of the given depth.
func NewDispatcher(queueDepth int) *Dispatcher {
	d := &Dispatcher{}
	for i := range d.shards {
		d.shards[i].jobs = make(chan func(), queueDepth)
		go d.worker(i)
	}
	return d
}

func (d *Dispatcher) worker(i int) {
	for job := range d.shards[i].jobs {
		job()
	}
}

// Go schedules f to run on one of the dispatcher's worker goroutines.
// Jobs submitted to the same shard run in submission order; jobs on
// different shards run concurrently. Picking a shard by round-robin
// (rather than by task identity) keeps no single caller pinned to a
// slow worker.
func (d *Dispatcher) Go(f func()) {
	shard := &d.shards[d.cursor.Add(1)%shardCount]
	shard.jobs <- f
}

// Close stops accepting new work. Workers drain their remaining queued
// jobs and then exit.
func (d *Dispatcher) Close() {
	for i := range d.shards {
		close(d.shards[i].jobs)
	}
}
