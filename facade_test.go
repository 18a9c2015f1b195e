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
	"sync/atomic"
)

// fakeCmdList is the in-memory CmdList a fakeFacade hands out: it just
// records what was recorded on it, and tags itself with the queue it
// was acquired for so tests can assert acquisition routing.
type fakeCmdList struct {
	queue string

	mu       sync.Mutex
	barriers []Barrier
}

func (l *fakeCmdList) RecordBarriers(b []Barrier) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.barriers = append(l.barriers, b...)
}

// fakeFacade is a minimal in-memory Facade: every acquisition hands
// back a fresh fakeCmdList, submission assigns the next fence from an
// atomic counter, and every call a test cares about is logged for
// later assertion. Safe for concurrent use by the worker pool.
type fakeFacade struct {
	backbufferID uint64
	acquireErr   error

	nextFence atomic.Uint64

	mu                  sync.Mutex
	graphicsAcquired    []*fakeCmdList
	computeAcquired     []*fakeCmdList
	submitted           []*fakeCmdList
	waitDirectOnCompute []uint64
	waitComputeOnDirect []uint64
	beginQueryCalls     int
	endQueryCalls       int

	namedThreads map[string]WorkerPriority
}

func newFakeFacade(backbufferID uint64) *fakeFacade {
	return &fakeFacade{backbufferID: backbufferID}
}

func (f *fakeFacade) AcquireGraphicsCmdList() (CmdList, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	l := &fakeCmdList{queue: "graphics"}
	f.mu.Lock()
	f.graphicsAcquired = append(f.graphicsAcquired, l)
	f.mu.Unlock()
	return l, nil
}

func (f *fakeFacade) AcquireComputeCmdList() (CmdList, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	l := &fakeCmdList{queue: "compute"}
	f.mu.Lock()
	f.computeAcquired = append(f.computeAcquired, l)
	f.mu.Unlock()
	return l, nil
}

func (f *fakeFacade) SubmitCmdList(list CmdList) (uint64, error) {
	fence := f.nextFence.Add(1)
	f.mu.Lock()
	f.submitted = append(f.submitted, list.(*fakeCmdList))
	f.mu.Unlock()
	return fence, nil
}

func (f *fakeFacade) WaitDirectOnCompute(fence uint64) {
	f.mu.Lock()
	f.waitDirectOnCompute = append(f.waitDirectOnCompute, fence)
	f.mu.Unlock()
}

func (f *fakeFacade) WaitComputeOnDirect(fence uint64) {
	f.mu.Lock()
	f.waitComputeOnDirect = append(f.waitComputeOnDirect, fence)
	f.mu.Unlock()
}

func (f *fakeFacade) CurrentBackbufferResourceID() uint64 {
	return f.backbufferID
}

func (f *fakeFacade) BeginGPUQuery(CmdList) {
	f.mu.Lock()
	f.beginQueryCalls++
	f.mu.Unlock()
}

func (f *fakeFacade) EndGPUQuery(CmdList) {
	f.mu.Lock()
	f.endQueryCalls++
	f.mu.Unlock()
}

// DiscoverThreadIDs hands back a trivial 0..count-1 id range; a real
// renderer would return actual OS thread ids from its own pool.
func (f *fakeFacade) DiscoverThreadIDs(count int) []int {
	ids := make([]int, count)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func (f *fakeFacade) SetThreadMetadata(name string, priority WorkerPriority) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.namedThreads == nil {
		f.namedThreads = make(map[string]WorkerPriority)
	}
	f.namedThreads[name] = priority
}
