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
	"testing"

	"goarrg.com/rhi/framegraph/internal/task"
)

// A graphics producer feeding an async-compute consumer never merges
// (merging is graphics-only), submits each aggregate on its own queue,
// and makes the consumer wait the compute queue on the producer's fence.
func TestGraph_Build_CrossQueueEndToEnd(t *testing.T) {
	fake := newFakeFacade(0)
	g := New(Config{MaxResources: 8, MaxRenderNodes: 8, WorkerPoolSize: 2}, fake)
	t.Cleanup(g.Shutdown)

	g.BeginFrame()
	g.RegisterResource("native", 16, StateUnorderedAccess, false)
	g.MoveToPostRegister()

	hA := g.RegisterPass("A", QueueGraphics, func(CmdList) {}, false)
	g.AddOutput(hA, 16, StateUnorderedAccess)

	hB := g.RegisterPass("B", QueueAsyncCompute, func(CmdList) {}, false)
	g.AddInput(hB, 16, StateUnorderedAccess)

	w := NewFrameWaitObject()
	g.SetFrameSubmissionWaitObject(w)
	g.Build()
	w.Wait()

	fake.mu.Lock()
	numSubmitted := len(fake.submitted)
	numGraphics := len(fake.graphicsAcquired)
	numCompute := len(fake.computeAcquired)
	numWaitComputeOnDirect := len(fake.waitComputeOnDirect)
	fake.mu.Unlock()

	if numSubmitted != 2 {
		t.Fatalf("submitted = %d, want 2 (no merge across queue types)", numSubmitted)
	}
	if numGraphics != 1 || numCompute != 1 {
		t.Fatalf("graphicsAcquired = %d, computeAcquired = %d, want 1, 1", numGraphics, numCompute)
	}
	if numWaitComputeOnDirect != 1 {
		t.Fatalf("waitComputeOnDirect calls = %d, want 1 (B waits on A's fence)", numWaitComputeOnDirect)
	}
	if got := g.Stats().MergeChainCount; got != 0 {
		t.Fatalf("Stats().MergeChainCount = %d, want 0 (no merge across queue types)", got)
	}

	fenceA := g.CompletionFence(hA)
	fenceB := g.CompletionFence(hB)
	if fenceA == 0 || fenceB == 0 {
		t.Fatalf("fenceA = %d, fenceB = %d, want both nonzero", fenceA, fenceB)
	}
	if got := g.FrameCompletionFence(); got != fenceB {
		t.Fatalf("FrameCompletionFence() = %d, want B's fence %d (B is the last aggregate)", got, fenceB)
	}
}

// S5: two single-record graphics aggregates across consecutive batches
// fold into one merge chain sharing a single command list and a single
// submit; every member's completion fence reads back the chain's one
// fence, and querying a non-mergeEnd member directly is rejected.
func TestGraph_Build_MergeChainEndToEnd(t *testing.T) {
	fake := newFakeFacade(0)
	g := New(Config{MaxResources: 8, MaxRenderNodes: 8, WorkerPoolSize: 2}, fake)
	t.Cleanup(g.Shutdown)

	g.BeginFrame()
	g.RegisterResource("native", 16, StateRenderTarget, false)
	g.MoveToPostRegister()

	hA := g.RegisterPass("A", QueueGraphics, func(CmdList) {}, false)
	g.AddOutput(hA, 16, StateUnorderedAccess)

	hB := g.RegisterPass("B", QueueGraphics, func(CmdList) {}, false)
	g.AddInput(hB, 16, StateShaderResourceNonPixel)

	w := NewFrameWaitObject()
	g.SetFrameSubmissionWaitObject(w)
	g.Build()
	w.Wait()

	fake.mu.Lock()
	numSubmitted := len(fake.submitted)
	numGraphics := len(fake.graphicsAcquired)
	fake.mu.Unlock()

	if numSubmitted != 1 {
		t.Fatalf("submitted = %d, want 1 (A and B share one merged command list)", numSubmitted)
	}
	if numGraphics != 1 {
		t.Fatalf("graphicsAcquired = %d, want 1 (only the chain's MergeStart acquires)", numGraphics)
	}
	if got := g.Stats().MergeChainCount; got != 1 {
		t.Fatalf("Stats().MergeChainCount = %d, want 1", got)
	}

	mustAbort(t, "CompletionFence on a non-mergeEnd chain member", func() {
		g.CompletionFence(hA)
	})

	fenceB := g.CompletionFence(hB)
	if fenceB == 0 {
		t.Fatalf("CompletionFence(B) = 0, want nonzero")
	}
	if got := g.FrameCompletionFence(); got != fenceB {
		t.Fatalf("FrameCompletionFence() = %d, want %d", got, fenceB)
	}
}

// S6: a force-separate aggregate sharing a batch with another aggregate
// still gets a task-graph edge from it, even though batch-monotonicity
// alone would not have required one.
func TestGraph_AddTaskGraphEdges_ForceSeparateWithinBatch(t *testing.T) {
	g := &Graph{}

	aggA := newAggregate(false)
	aggA.batchIdx = 0
	aggB := newAggregate(false)
	aggB.batchIdx = 0
	aggB.forceSeparate = true

	g.aggregates = []*aggregate{aggA, aggB}

	ts := &task.TaskSet{}
	aggA.taskIdx = ts.Add("A", task.PriorityNormal, func() {})
	aggB.taskIdx = ts.Add("B", task.PriorityNormal, func() {})

	g.addTaskGraphEdges(ts)
	final := ts.Finalize()

	if len(final[0].Outbound) != 1 || final[0].Outbound[0] != task.SignalHandle(aggB.taskIdx) {
		t.Fatalf("A's outbound = %+v, want an edge to B despite sharing a batch", final[0].Outbound)
	}
	if final[1].Signal == task.SignalNone {
		t.Fatalf("B's signal = SignalNone, want a real handle since it has an inbound edge")
	}
}

// Two aggregates one batch apart get the batch-monotonicity edge even
// without force-separate, and two aggregates more than one batch apart
// never get a direct edge (monotonicity transfers through the chain).
func TestGraph_AddTaskGraphEdges_BatchMonotonicity(t *testing.T) {
	g := &Graph{}

	aggA := newAggregate(false)
	aggA.batchIdx = 0
	aggB := newAggregate(false)
	aggB.batchIdx = 1
	aggC := newAggregate(false)
	aggC.batchIdx = 2

	g.aggregates = []*aggregate{aggA, aggB, aggC}

	ts := &task.TaskSet{}
	aggA.taskIdx = ts.Add("A", task.PriorityNormal, func() {})
	aggB.taskIdx = ts.Add("B", task.PriorityNormal, func() {})
	aggC.taskIdx = ts.Add("C", task.PriorityNormal, func() {})

	g.addTaskGraphEdges(ts)
	final := ts.Finalize()

	if len(final[0].Outbound) != 1 || final[0].Outbound[0] != task.SignalHandle(aggB.taskIdx) {
		t.Fatalf("A's outbound = %+v, want exactly an edge to B", final[0].Outbound)
	}
	if len(final[1].Outbound) != 1 || final[1].Outbound[0] != task.SignalHandle(aggC.taskIdx) {
		t.Fatalf("B's outbound = %+v, want exactly an edge to C", final[1].Outbound)
	}
}
