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
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"goarrg.com/rhi/framegraph/internal/task"
)

// Build runs the graph builder over this frame's declared nodes and
// resources, emits one task per resulting aggregate into the worker
// pool, and closes the begin/end block. It must be called exactly once
// per BeginFrame. A non-DAG graph, an unknown resource reference, or an
// empty frame aborts per spec's fatal-error taxonomy. Facade failures
// (command-list acquisition, submission) surface later, while the
// emitted tasks run on the worker pool — the core has no retry policy
// for them and does not recover from them, per §7d.
func (g *Graph) Build() {
	g.noCopy.Check()
	if !g.inBeginEndBlock || g.inPreRegister {
		abort("Build called outside post-register")
	}

	buildID := uuid.NewString()
	logger.IPrintf("framegraph: build %s starting with %d render nodes", buildID, g.nodes.count())

	b := newBuilder(g.nodes, g.res, g.facade)
	g.aggregates = b.build()
	g.mergeChainCount = b.mergeChainCount
	g.mergedCmdLists = make([]CmdList, g.mergeChainCount)
	g.buildCount++

	ts := &task.TaskSet{}
	for _, agg := range g.aggregates {
		agg.taskIdx = ts.Add(agg.name, task.PriorityNormal, g.taskBody(agg, buildID))
	}
	g.addTaskGraphEdges(ts)
	g.runtime.EnqueueBulk(ts.Finalize())

	g.inBeginEndBlock = false
	logger.VPrintf("framegraph: build %s emitted %d aggregates across %d merge chains", buildID, len(g.aggregates), b.mergeChainCount)
}

// addTaskGraphEdges wires batch-monotonicity (every aggregate at batch
// b must finish before any aggregate at batch b+1 starts) and
// force-separate isolation within a batch, per §4.4.6. Aggregates are
// batch-monotonic in g.aggregates order, so once a later aggregate's
// batch exceeds b+1 nothing further down the list can need an edge
// from the current one either.
func (g *Graph) addTaskGraphEdges(ts *task.TaskSet) {
	for i, a := range g.aggregates {
		for j := i + 1; j < len(g.aggregates); j++ {
			b := g.aggregates[j]
			switch {
			case b.batchIdx == a.batchIdx+1:
				ts.AddEdge(a.taskIdx, b.taskIdx)
			case b.batchIdx == a.batchIdx && b.forceSeparate:
				ts.AddEdge(a.taskIdx, b.taskIdx)
			case b.batchIdx > a.batchIdx+1:
				j = len(g.aggregates)
			}
		}
	}
}

// taskBody returns the closure emitted as agg's task, implementing
// §4.4.6 steps 1-7.
func (g *Graph) taskBody(agg *aggregate, buildID string) func() {
	return func() {
		var cmdList CmdList
		var barrierFence uint64
		hasBarrierFence := false

		grp := new(errgroup.Group)

		// Acquiring this aggregate's own command list and recording an
		// unsupported barrier on a separate graphics list (if any) are
		// independent Facade round-trips; run them concurrently.
		grp.Go(func() error {
			list, err := g.acquireAggregateCmdList(agg)
			if err != nil {
				return err
			}
			cmdList = list
			return nil
		})

		if agg.hasUnsupportedBarrier {
			grp.Go(func() error {
				fence, err := g.recordUnsupportedBarrier(agg)
				if err != nil {
					return err
				}
				barrierFence = fence
				hasBarrierFence = true
				return nil
			})
		}

		if err := grp.Wait(); err != nil {
			abort("build %s: aggregate %q: %s", buildID, agg.name, err)
		}

		if hasBarrierFence {
			g.facade.WaitComputeOnDirect(barrierFence)
		} else if len(agg.barriers) > 0 {
			cmdList.RecordBarriers(agg.barriers)
		}

		for _, record := range agg.records {
			record(cmdList)
		}

		if !agg.hasUnsupportedBarrier && agg.gpuDepIdx != invalidAggregateIdx {
			dep := g.aggregates[agg.gpuDepIdx]
			fence := dep.completionFence.Load()
			if fence == 0 {
				abort("build %s: aggregate %q depends on %q's GPU fence, but it hasn't submitted yet", buildID, agg.name, dep.name)
			}
			if agg.isAsyncCompute {
				g.facade.WaitComputeOnDirect(fence)
			} else {
				g.facade.WaitDirectOnCompute(fence)
			}
		}

		if agg.isLast {
			g.facade.EndGPUQuery(cmdList)
		}

		if agg.mergedCmdListIdx == invalidAggregateIdx || agg.mergeEnd {
			fence, err := g.facade.SubmitCmdList(cmdList)
			if err != nil {
				abort("build %s: %s", buildID, errSubmit(err))
			}
			agg.completionFence.Store(fence)

			if agg.mergeEnd {
				g.mergedCmdLists[agg.mergedCmdListIdx] = nil
				g.propagateMergeChainFence(agg, fence)
			}
		}

		if g.submissionWait != nil && agg.isLast {
			g.submissionWait.Notify()
			g.submissionWait = nil
		}
	}
}

// acquireAggregateCmdList implements §4.4.6 step 1: a merge-start
// publishes a fresh command list into its shared slot, a merge
// continuation reads it back out, everything else acquires its own.
func (g *Graph) acquireAggregateCmdList(agg *aggregate) (CmdList, error) {
	switch {
	case agg.mergeStart:
		list, err := g.facade.AcquireGraphicsCmdList()
		if err != nil {
			return nil, errQueueAcquire("graphics", err)
		}
		g.mergedCmdLists[agg.mergedCmdListIdx] = list
		return list, nil
	case agg.mergedCmdListIdx != invalidAggregateIdx:
		list := g.mergedCmdLists[agg.mergedCmdListIdx]
		if list == nil {
			abort("aggregate %q: merged command list slot %d was read before its MergeStart task published it", agg.name, agg.mergedCmdListIdx)
		}
		return list, nil
	case agg.isAsyncCompute:
		list, err := g.facade.AcquireComputeCmdList()
		if err != nil {
			return nil, errQueueAcquire("compute", err)
		}
		return list, nil
	default:
		list, err := g.facade.AcquireGraphicsCmdList()
		if err != nil {
			return nil, errQueueAcquire("graphics", err)
		}
		return list, nil
	}
}

// recordUnsupportedBarrier implements §4.4.6 step 2's unsupported-
// barrier branch: the barrier is illegal on the async-compute queue, so
// it is recorded and submitted on the graphics queue instead, and its
// fence is what the caller waits the compute queue on before recording
// agg's own pass bodies.
func (g *Graph) recordUnsupportedBarrier(agg *aggregate) (uint64, error) {
	list, err := g.facade.AcquireGraphicsCmdList()
	if err != nil {
		return 0, errQueueAcquire("graphics", err)
	}
	list.RecordBarriers(agg.barriers)
	fence, err := g.facade.SubmitCmdList(list)
	if err != nil {
		return 0, errSubmit(err)
	}
	return fence, nil
}

// propagateMergeChainFence copies a mergeEnd's completion fence back
// onto every earlier aggregate in the same chain, satisfying S5: a
// chain member read as another aggregate's GPU dependency would
// otherwise report a fence that was never independently submitted.
// CompletionFence itself rejects every chain member except the
// merge-end, per the Open Question decision.
func (g *Graph) propagateMergeChainFence(mergeEnd *aggregate, fence uint64) {
	for i := mergeEnd.taskIdx - 1; i >= 0; i-- {
		a := g.aggregates[i]
		if a.mergedCmdListIdx != mergeEnd.mergedCmdListIdx {
			break
		}
		a.completionFence.Store(fence)
	}
}

// CompletionFence returns the completion fence of the aggregate
// containing the render node named by h, once Build has run. Querying
// a node whose aggregate is a non-mergeEnd member of a merge chain is
// unsupported and aborts, per the Open Question decided in DESIGN.md.
func (g *Graph) CompletionFence(h NodeHandle) uint64 {
	g.noCopy.Check()
	n := g.nodes.node(h)
	if n.aggregateIdx == invalidAggregateIdx {
		abort("CompletionFence called for a render node that was never aggregated by Build")
	}
	agg := g.aggregates[n.aggregateIdx]
	if agg.mergedCmdListIdx != invalidAggregateIdx && !agg.mergeEnd {
		abort("CompletionFence is unsupported for a render node whose aggregate is part of a merged command-list chain (query the chain's last pass instead)")
	}
	return agg.completionFence.Load()
}

// FrameCompletionFence returns the completion fence of the last
// aggregate submitted this frame.
func (g *Graph) FrameCompletionFence() uint64 {
	g.noCopy.Check()
	if len(g.aggregates) == 0 {
		abort("FrameCompletionFence called before Build")
	}
	return g.aggregates[len(g.aggregates)-1].completionFence.Load()
}

// SetFrameSubmissionWaitObject registers w to be notified exactly once,
// when the frame's last aggregate submits. It is cleared the moment it
// fires; Build silently does nothing with a nil w left over from a
// previous frame that already fired.
func (g *Graph) SetFrameSubmissionWaitObject(w *FrameWaitObject) {
	g.noCopy.Check()
	g.submissionWait = w
}
