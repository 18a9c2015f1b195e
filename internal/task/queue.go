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

	"goarrg.com/rhi/framegraph/internal/container"
)

// unboundedQueue adapts container.Queue[job] with a mutex and condition
// variable so Runtime's workers can block on an empty queue and Shutdown
// can wake every one of them at once. Unlike a channel it never blocks a
// pusher: push only fails if growing the backing slice itself fails,
// which is reported back to the caller instead of panicking the pushing
// goroutine, matching spec's "queue-allocation failure is fatal, but it
// is the core's fatal error to raise, not a runtime panic" failure mode.
type unboundedQueue struct {
	mu     sync.Mutex
	cond   sync.Cond
	q      container.Queue[job]
	closed bool
}

func newUnboundedQueue() *unboundedQueue {
	uq := &unboundedQueue{}
	uq.cond.L = &uq.mu
	return uq
}

// push appends j, recovering from any allocation panic the backing
// slice's growth triggers (e.g. out of memory) and returning it as an
// error instead, so the caller can raise it through the fatal-error path
// rather than crash the pushing goroutine with an unrecoverable panic.
func (uq *unboundedQueue) push(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task queue allocation failed: %v", r)
		}
	}()

	uq.mu.Lock()
	uq.q.Push(j)
	uq.mu.Unlock()
	uq.cond.Signal()
	return nil
}

// pop blocks until a job is available or the queue is closed and empty,
// in which case it returns false.
func (uq *unboundedQueue) pop() (job, bool) {
	uq.mu.Lock()
	defer uq.mu.Unlock()
	for uq.q.Empty() && !uq.closed {
		uq.cond.Wait()
	}
	if uq.q.Empty() {
		return job{}, false
	}
	return uq.q.Pop(), true
}

// tryPop is pop's non-blocking counterpart, used by PumpUntilEmpty.
func (uq *unboundedQueue) tryPop() (job, bool) {
	uq.mu.Lock()
	defer uq.mu.Unlock()
	if uq.q.Empty() {
		return job{}, false
	}
	return uq.q.Pop(), true
}

// close marks the queue closed and wakes every blocked pop so workers
// can drain what remains and exit.
func (uq *unboundedQueue) close() {
	uq.mu.Lock()
	uq.closed = true
	uq.mu.Unlock()
	uq.cond.Broadcast()
}
