/*
Copyright 2025 The goARRG Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package task

import (
	"fmt"
	"sync"
	"sync/atomic"

	"goarrg.com/rhi/framegraph/internal/util"
)

// job is the queue element: a task plus the countdown (if any) it must
// wait on and the countdowns it must signal once Run returns.
type job struct {
	task     Task
	wait     *countdown
	outbound []*countdown
}

// Runtime is the CPU worker pool the render graph submits its per-frame
// task graph into. A single shared queue feeds every worker; dependency
// ordering between tasks in the same bulk submission is enforced by
// per-task countdowns rather than by queue position, so producers never
// need to reason about worker scheduling order. The queue itself is
// unbounded: Enqueue/EnqueueBulk never block a producer waiting for
// room, per spec's queue failure semantics — the only way they fail is
// the backing allocation itself failing, which is fatal.
//
// Three counters track a submission's lifecycle: outstandingTarget is
// raised by every Enqueue/EnqueueBulk call and never lowered except by
// TryFlush; queued is raised the same way but lowered the moment a job
// is claimed off the queue (by a worker or by PumpUntilEmpty), so it
// reaching zero means every job has been picked up for execution, not
// that any of them have finished; finished is raised only once a job's
// callback returns. TryFlush compares finished against outstandingTarget,
// never queued.
//
// Runtime is safe for concurrent use once Start has returned.
type Runtime struct {
	noCopy util.NoCopy

	queue *unboundedQueue
	wg    sync.WaitGroup

	queued            atomic.Int32
	outstandingTarget atomic.Int32
	finished          atomic.Int32

	started atomic.Bool

	poolSize     int
	totalThreads int
	namePrefix   string
	priority     int
}

// Init allocates the shared queue and records the pool's identity for
// worker naming/priority. poolSize is the number of worker threads Start
// is expected to spawn; totalThreads is poolSize plus however many
// external submitter threads participate in enqueue/pump, matching
// spec's `init(pool_size, total_threads, name_prefix, priority)` — the
// core has no manual per-thread producer/consumer tokens to preallocate
// (Go's channel-free queue and atomics already serve that role), so
// totalThreads is recorded for diagnostics rather than sized allocation.
func (r *Runtime) Init(poolSize, totalThreads int, namePrefix string, priority int) {
	r.noCopy.Init()

	if poolSize <= 0 {
		poolSize = 64
	}
	if totalThreads < poolSize {
		totalThreads = poolSize
	}
	if namePrefix == "" {
		namePrefix = "framegraph-worker"
	}

	r.poolSize = poolSize
	r.totalThreads = totalThreads
	r.namePrefix = namePrefix
	r.priority = priority
	r.queue = newUnboundedQueue()

	logger.VPrintf("runtime: init pool_size=%d total_threads=%d name_prefix=%q priority=%d", poolSize, totalThreads, namePrefix, priority)
}

// Start launches one worker goroutine per entry in threadIDs, naming
// each "name_prefix-id" in its log lines. onWorkerStart, if non-nil, is
// called once from the new goroutine before it begins draining the
// queue, letting an embedder (the renderer façade, in practice) apply
// its own OS-thread name/priority setting per spec §6's "thread-id
// discovery, per-thread name/priority setting" façade duty.
func (r *Runtime) Start(threadIDs []int, onWorkerStart func(id int)) {
	r.noCopy.Check()

	if !r.started.CompareAndSwap(false, true) {
		abort("Start called twice on the same Runtime")
	}

	r.wg.Add(len(threadIDs))
	for _, id := range threadIDs {
		go r.worker(id, onWorkerStart)
	}
}

func (r *Runtime) worker(id int, onWorkerStart func(id int)) {
	defer r.wg.Done()

	if onWorkerStart != nil {
		onWorkerStart(id)
	}
	name := fmt.Sprintf("%s-%d", r.namePrefix, id)
	logger.VPrintf("%s: worker started, priority=%d", name, r.priority)

	for {
		j, ok := r.queue.pop()
		if !ok {
			return
		}
		r.run(j)
	}
}

func (r *Runtime) run(j job) {
	r.queued.Add(-1)

	if j.wait != nil {
		j.wait.wait()
	}

	j.task.Run()

	for _, c := range j.outbound {
		c.signal()
	}

	r.finished.Add(1)
}

// Enqueue submits a single task with no dependency bookkeeping. It is
// used for background work that never participates in a TaskSet.
// Allocation failure while growing the queue is fatal per spec §7c.
func (r *Runtime) Enqueue(t Task) {
	r.queued.Add(1)
	r.outstandingTarget.Add(1)
	if err := r.queue.push(job{task: t}); err != nil {
		abort("Enqueue: %s", err)
	}
}

// EnqueueBulk submits every task produced by TaskSet.Finalize, wiring up
// the countdowns that implement the set's edges. Tasks with
// PriorityBackground never wait on or raise a countdown, matching the
// priority's documented meaning. Allocation failure while growing the
// queue is fatal per spec §7c.
func (r *Runtime) EnqueueBulk(tasks []Task) {
	if len(tasks) == 0 {
		return
	}

	countdowns := make(map[SignalHandle]*countdown, len(tasks))
	for _, t := range tasks {
		if t.Signal == SignalNone || t.Priority == PriorityBackground {
			continue
		}
		countdowns[t.Signal] = newCountdown(inDegree(tasks, t.Signal))
	}

	r.queued.Add(int32(len(tasks)))
	r.outstandingTarget.Add(int32(len(tasks)))

	for _, t := range tasks {
		j := job{task: t}

		if t.Priority != PriorityBackground && t.Signal != SignalNone {
			j.wait = countdowns[t.Signal]
		}

		if t.Priority != PriorityBackground {
			for _, h := range t.Outbound {
				if c, ok := countdowns[h]; ok {
					j.outbound = append(j.outbound, c)
				}
			}
		}

		if err := r.queue.push(j); err != nil {
			abort("EnqueueBulk: %s", err)
		}
	}
}

// inDegree counts how many tasks in the set raise handle h, which is the
// number of signals the gated task must collect before it may run.
func inDegree(tasks []Task, h SignalHandle) int32 {
	var n int32
	for _, t := range tasks {
		for _, o := range t.Outbound {
			if o == h {
				n++
			}
		}
	}
	return n
}

// PumpUntilEmpty lets a non-worker thread (the submitting thread, in
// practice) help drain the queue instead of blocking idle. It runs jobs
// itself until queued reads zero; a single failed, non-blocking pop
// does not mean the queue is empty (a worker may be about to claim the
// next job), so it rechecks the counter rather than returning on the
// first miss.
func (r *Runtime) PumpUntilEmpty() {
	for r.queued.Load() > 0 {
		if j, ok := r.queue.tryPop(); ok {
			r.run(j)
		}
	}
}

// TryFlush reports whether every job enqueued since the last successful
// TryFlush has finished running. On true it resets both counters for the
// next round. On false it calls PumpUntilEmpty to help the remaining
// jobs get claimed before returning, but still reports false this call;
// the caller is expected to call TryFlush again.
func (r *Runtime) TryFlush() bool {
	if r.finished.Load() == r.outstandingTarget.Load() {
		r.finished.Store(0)
		r.outstandingTarget.Store(0)
		return true
	}
	r.PumpUntilEmpty()
	return false
}

// Outstanding returns the number of jobs that have been enqueued but
// have not yet finished running.
func (r *Runtime) Outstanding() int32 {
	return r.outstandingTarget.Load() - r.finished.Load()
}

// Shutdown closes the queue and waits for every worker to drain its
// in-flight job and whatever remains queued before exiting. It is safe
// to call at most once.
func (r *Runtime) Shutdown() {
	r.noCopy.Check()
	r.queue.close()
	r.wg.Wait()
	r.noCopy.Close()
}
