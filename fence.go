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

package framegraph

import (
	"sync"

	"goarrg.com/rhi/framegraph/internal/util"
)

// TimelineFence is a monotonically increasing counter a Facade
// implementation can use as its completion-fence currency without
// reaching for whatever native timeline-semaphore type its GPU backend
// exposes. It is not used by the core itself (which only ever stores
// and compares the uint64 values Facade hands back) but is provided
// as the default fence object test Facades and simple single-GPU
// backends can build on directly.
type TimelineFence struct {
	noCopy util.NoCopy

	mu           sync.Mutex
	cond         sync.Cond
	value        uint64
	nextPromised uint64
}

// NewTimelineFence returns a fence starting at value 0.
func NewTimelineFence() *TimelineFence {
	f := &TimelineFence{}
	f.noCopy.Init()
	f.cond.L = &f.mu
	return f
}

// Value returns the highest value reached so far.
func (f *TimelineFence) Value() uint64 {
	f.noCopy.Check()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Promise reserves the next value in sequence, to be signalled later
// by a call to FencePromise.Signal.
func (f *TimelineFence) Promise() *FencePromise {
	f.noCopy.Check()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPromised++
	p := &FencePromise{fence: f, value: f.nextPromised}
	p.noCopy.Init()
	return p
}

func (f *TimelineFence) reach(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value > f.value {
		f.value = value
		f.cond.Broadcast()
	}
}

// Wait blocks until the fence reaches or exceeds value.
func (f *TimelineFence) Wait(value uint64) {
	f.noCopy.Check()
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.value < value {
		f.cond.Wait()
	}
}

// FencePromise is a value reserved on a TimelineFence, to be signalled
// exactly once. Mirrors goarrg-vxr's TimelineSemaphorePromise: NoCopy is
// closed the moment Signal fires, since a promise cannot be signalled
// twice.
type FencePromise struct {
	noCopy util.NoCopy

	fence *TimelineFence
	value uint64
}

func (p *FencePromise) Value() uint64 {
	p.noCopy.Check()
	return p.value
}

// Signal marks this promise's value as reached.
func (p *FencePromise) Signal() {
	p.noCopy.Check()
	p.fence.reach(p.value)
	p.noCopy.Close()
}

// FenceWaiter blocks until a TimelineFence reaches a specific value,
// letting a caller hold the (fence, value) pair without exposing the
// fence's Promise/reach surface. Handed out as a pointer, mirroring
// goarrg-vxr's TimelineSemaphoreWaiter, rather than as a copyable value.
type FenceWaiter struct {
	noCopy util.NoCopy

	fence *TimelineFence
	value uint64
}

func (f *TimelineFence) Waiter(value uint64) *FenceWaiter {
	f.noCopy.Check()
	w := &FenceWaiter{fence: f, value: value}
	w.noCopy.Init()
	return w
}

func (w *FenceWaiter) Wait() {
	w.noCopy.Check()
	w.fence.Wait(w.value)
}

// FrameWaitObject is signalled exactly once, when the last aggregate
// of a built frame submits. SetFrameSubmissionWaitObject registers one
// per Build call; it is cleared the moment it fires.
type FrameWaitObject struct {
	noCopy util.NoCopy

	once sync.Once
	done chan struct{}
}

// NewFrameWaitObject returns an unfired wait object.
func NewFrameWaitObject() *FrameWaitObject {
	w := &FrameWaitObject{done: make(chan struct{})}
	w.noCopy.Init()
	return w
}

// Notify fires the wait object. Safe to call more than once; only the
// first call has an effect.
func (w *FrameWaitObject) Notify() {
	w.noCopy.Check()
	w.once.Do(func() { close(w.done) })
}

// Wait blocks until Notify has been called.
func (w *FrameWaitObject) Wait() {
	w.noCopy.Check()
	<-w.done
}
