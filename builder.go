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
	"sort"

	"goarrg.com/rhi/framegraph/internal/container"
)

// builder runs the single-threaded pass that turns a populated
// nodeTable and resourceTable into an ordered list of aggregates ready
// for task emission. It owns no state across frames; a fresh one is
// used per Build call.
type builder struct {
	nodes  *nodeTable
	res    *resourceTable
	facade Facade

	// mapping[originalHandle] = sorted index; producer lists in the
	// resource table still refer to original (pre-sort) handles.
	mapping []int32

	aggregates      []*aggregate
	mergeChainCount int
}

func newBuilder(nodes *nodeTable, res *resourceTable, facade Facade) *builder {
	return &builder{nodes: nodes, res: res, facade: facade}
}

// build runs the full pipeline: edge construction, topological sort and
// batch assignment, barrier insertion, aggregation, and small-node
// merging. It returns the ordered aggregate list that submission.go
// turns into a task graph.
func (b *builder) build() []*aggregate {
	n := b.nodes.count()
	if n == 0 {
		abort("Build called with no render nodes declared this frame")
	}

	adjacency := b.constructEdges(n)
	b.sort(n, adjacency)
	b.insertResourceBarriers(n)
	b.forceBackbufferPresent()
	b.joinRenderNodes(n)
	b.mergeSmallNodes()
	debugCheckMergeChains(b.aggregates)

	return b.aggregates
}

// forceBackbufferPresent sets the swapchain image's tracked state to
// PRESENT once every node has run, per spec's backbuffer hand-off: the
// core assumes some pass has logically transitioned it there and simply
// reflects that in next frame's starting state rather than emitting a
// barrier for it.
func (b *builder) forceBackbufferPresent() {
	id := b.facade.CurrentBackbufferResourceID()
	if isDummyResourceID(id) {
		return
	}
	if idx := b.res.find(id, -1); idx != -1 {
		b.res.entries[idx].state = StatePresent
	}
}

// constructEdges computes each node's starting in-degree correction and
// the adjacency map (producer -> dependents), resolving the ping-pong
// case where a node lists the same resource as both input and output.
func (b *builder) constructEdges(n int) [][]NodeHandle {
	adjacency := make([][]NodeHandle, n)

	for curr := 0; curr < n; curr++ {
		node := b.nodes.node(NodeHandle(curr))
		node.inDegree = int32(len(node.inputs))

		for _, in := range node.inputs {
			resIdx := b.res.find(in.resourceID, -1)
			if resIdx == -1 {
				abort("node %q: input resource %d was not found", node.name, in.resourceID)
			}

			numProducers := b.res.producerCount(resIdx)
			if numProducers == 0 {
				node.inDegree--
				if node.inDegree < 0 {
					abort("node %q: invalid in-degree, resource %d has no producer but was also never registered as carried over", node.name, in.resourceID)
				}
			} else {
				node.inDegree += int32(numProducers) - 1
			}

			for p := 0; p < numProducers; p++ {
				prodHandle := int(b.res.entries[resIdx].producers[p])

				if prodHandle == curr {
					node.inDegree--
					if len(node.outputs) == 0 {
						abort("node %q: resource %d is listed as an output-producer of itself but the node has no outputs", node.name, in.resourceID)
					}
					for i, out := range node.outputs {
						if out.resourceID == in.resourceID {
							node.outputMask |= 1 << uint(i)
							break
						}
					}
				} else {
					adjacency[prodHandle] = append(adjacency[prodHandle], NodeHandle(curr))
				}
			}
		}
	}

	return adjacency
}

// sort runs Kahn's algorithm to find a valid topological order, assigns
// each node a batch index equal to the length of the longest path
// ending at it, stably reorders by batch index, and permutes the node
// table into that order while recording mapping for producer-list
// translation.
func (b *builder) sort(n int, adjacency [][]NodeHandle) {
	sorted := make([]NodeHandle, 0, n)

	var frontier container.Queue[NodeHandle]
	for i := 0; i < n; i++ {
		node := b.nodes.node(NodeHandle(i))
		if node.inDegree == 0 {
			node.batchIdx = 0
			frontier.Push(NodeHandle(i))
		}
	}
	if frontier.Empty() {
		abort("render graph is not a DAG: no node has zero in-degree")
	}

	for !frontier.Empty() {
		curr := frontier.Pop()
		sorted = append(sorted, curr)

		for _, adj := range adjacency[curr] {
			m := b.nodes.node(adj)
			m.inDegree--
			if m.inDegree == 0 {
				frontier.Push(adj)
			}
		}
	}

	if len(sorted) != n {
		abort("render graph is not a DAG: %d of %d nodes are reachable by topological sort", len(sorted), n)
	}

	for _, curr := range sorted {
		currNode := b.nodes.node(curr)
		for _, adj := range adjacency[curr] {
			m := b.nodes.node(adj)
			if currNode.batchIdx+1 > m.batchIdx {
				m.batchIdx = currNode.batchIdx + 1
			}
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return b.nodes.node(sorted[i]).batchIdx < b.nodes.node(sorted[j]).batchIdx
	})

	b.mapping = make([]int32, n)
	for newIdx, orig := range sorted {
		b.mapping[orig] = int32(newIdx)
	}

	permuted := make([]renderNode, n)
	for newIdx, orig := range sorted {
		permuted[newIdx] = *b.nodes.node(orig)
		permuted[newIdx].handle = NodeHandle(newIdx)
	}
	copy(b.nodes.nodes[:n], permuted)
}

// insertResourceBarriers walks nodes in execution order, inserting a
// transition barrier wherever a resource's tracked state doesn't
// already satisfy what the node expects, and recording the single
// latest cross-queue GPU dependency each node actually needs (the
// "transitive sync" reduction: once an earlier node on the same queue
// has already synced past a given point, producers on the other queue
// up to that point are provably already ordered before it).
func (b *builder) insertResourceBarriers(n int) {
	lastSyncedIdx := [2]int32{-1, -1} // indexed by QueueType; -1 = nothing synced yet

	for curr := 0; curr < n; curr++ {
		node := b.nodes.node(NodeHandle(curr))
		isAsync := node.queue == QueueAsyncCompute
		largestProducerIdx := int32(-1)

		for _, in := range node.inputs {
			if isDummyResourceID(in.resourceID) {
				continue
			}

			resIdx := b.res.find(in.resourceID, -1)
			if resIdx == -1 {
				abort("node %q: input resource %d was not found", node.name, in.resourceID)
			}
			entry := &b.res.entries[resIdx]

			if !entry.state.HasBits(in.state) {
				if isAsync && entry.state&IllegalOnComputeStates != 0 {
					node.hasUnsupportedBarrier = true
				}
				node.barriers = append(node.barriers, transitionBarrier(entry.id, entry.native, entry.state, in.state))
				entry.state = in.state
			}

			numProducers := b.res.producerCount(resIdx)
			for p := 0; p < numProducers; p++ {
				sortedHandle := b.mapping[int(entry.producers[p])]
				producer := b.nodes.node(NodeHandle(sortedHandle))
				producerOnOtherQueue := (isAsync && producer.queue != QueueAsyncCompute) || (!isAsync && producer.queue == QueueAsyncCompute)

				if producerOnOtherQueue && sortedHandle > largestProducerIdx {
					largestProducerIdx = sortedHandle
				}
			}
		}

		queueIdx := QueueGraphics
		if isAsync {
			queueIdx = QueueAsyncCompute
		}
		if largestProducerIdx != -1 && lastSyncedIdx[queueIdx] < largestProducerIdx {
			lastSyncedIdx[queueIdx] = largestProducerIdx
			node.gpuDepSourceIdx = largestProducerIdx
		}

		for i, out := range node.outputs {
			if isDummyResourceID(out.resourceID) {
				continue
			}

			resIdx := b.res.find(out.resourceID, -1)
			if resIdx == -1 {
				abort("node %q: output resource %d was not found", node.name, out.resourceID)
			}
			entry := &b.res.entries[resIdx]

			// A set output_mask bit means this output names the same
			// resource as one of the node's inputs (the ping-pong
			// case): it contributes no barrier and the resource's
			// state stays whatever the input transition left it at.
			if node.outputMask&(1<<uint(i)) != 0 {
				continue
			}

			if !entry.state.HasBits(out.state) {
				if isAsync && entry.state&IllegalOnComputeStates != 0 {
					node.hasUnsupportedBarrier = true
				}
				node.barriers = append(node.barriers, transitionBarrier(entry.id, entry.native, entry.state, out.state))
			}
			entry.state = out.state
		}
	}
}

// joinRenderNodes groups execution-ordered nodes sharing a batch index
// and queue type into aggregates, flushing the async-compute bucket
// (if any) before the graphics bucket on every batch-index change, and
// isolating force_separate_cmdlist nodes as their own single-node
// aggregate the moment they're encountered.
func (b *builder) joinRenderNodes(n int) {
	b.aggregates = make([]*aggregate, 0, n)
	currBatch := int32(0)
	var graphicsBucket, asyncBucket []int

	flush := func() {
		if len(asyncBucket) == 0 && len(graphicsBucket) == 0 {
			return
		}

		if len(asyncBucket) > 0 {
			agg := newAggregate(true)
			hasGpuFence := false
			hasUnsupportedBarrier := false

			for _, idx := range asyncBucket {
				node := b.nodes.node(NodeHandle(idx))
				mapped := b.mappedGpuDepAggIdx(node)
				hasGpuFence = hasGpuFence || node.gpuDepSourceIdx != -1
				hasUnsupportedBarrier = hasUnsupportedBarrier || node.hasUnsupportedBarrier

				agg.append(node, mapped, false)
				node.aggregateIdx = int32(len(b.aggregates))
			}

			if hasGpuFence && hasUnsupportedBarrier {
				agg.gpuDepIdx = -1
			}

			b.aggregates = append(b.aggregates, agg)
		}

		if len(graphicsBucket) > 0 {
			agg := newAggregate(false)

			for _, idx := range graphicsBucket {
				node := b.nodes.node(NodeHandle(idx))
				mapped := b.mappedGpuDepAggIdx(node)
				agg.append(node, mapped, false)
				node.aggregateIdx = int32(len(b.aggregates))
			}

			b.aggregates = append(b.aggregates, agg)
		}

		graphicsBucket = graphicsBucket[:0]
		asyncBucket = asyncBucket[:0]
	}

	for curr := 0; curr < n; curr++ {
		node := b.nodes.node(NodeHandle(curr))

		if node.batchIdx != currBatch {
			flush()
			currBatch = node.batchIdx
		}

		if node.forceSeparateCmdList {
			// Flush whatever the current batch's buckets already hold
			// before this node's own standalone aggregate, so a
			// force-separate node occurring after other same-batch
			// nodes in execution order doesn't jump ahead of them in
			// aggregate order.
			flush()

			agg := newAggregate(node.queue == QueueAsyncCompute)
			mapped := b.mappedGpuDepAggIdx(node)
			agg.append(node, mapped, true)
			node.aggregateIdx = int32(len(b.aggregates))
			b.aggregates = append(b.aggregates, agg)
			continue
		}

		if node.queue == QueueAsyncCompute {
			asyncBucket = append(asyncBucket, curr)
		} else {
			graphicsBucket = append(graphicsBucket, curr)
		}
	}

	flush()

	if len(b.aggregates) > 0 {
		b.aggregates[len(b.aggregates)-1].isLast = true
	}
}

func (b *builder) mappedGpuDepAggIdx(node *renderNode) int32 {
	if node.gpuDepSourceIdx == -1 {
		return -1
	}
	producer := b.nodes.node(NodeHandle(node.gpuDepSourceIdx))
	if producer.aggregateIdx == -1 {
		abort("node %q: GPU-dependency producer's aggregate must be built before the dependent node's", node.name)
	}
	return producer.aggregateIdx
}

// mergeSmallNodes folds consecutive single-record graphics aggregates
// into a shared command list. A tentative run that never grows past a
// single member has its merge fields cleared (mergedCmdListIdx back to
// -1), and the slot counter only advances when a run closes with two or
// more members, so the next chain reuses the slot the single-member run
// provisionally claimed; MergeStart/MergeEnd bracket a run of at least
// two aggregates.
func (b *builder) mergeSmallNodes() {
	currOffset := -1
	cmdListIdx := int32(0)
	currCount := 0

	closeRun := func(prev *aggregate) {
		if currCount == 0 {
			return
		}
		if currCount == 1 {
			if !prev.mergeStart || prev.mergedCmdListIdx == -1 {
				abort("mergeSmallNodes: single-member run was not left in its provisional MergeStart state")
			}
			prev.mergeStart = false
			prev.mergedCmdListIdx = invalidAggregateIdx
		} else {
			prev.mergeEnd = true
			cmdListIdx++
		}
		currCount = 0
		currOffset = -1
	}

	for idx, agg := range b.aggregates {
		if !agg.isAsyncCompute && !agg.forceSeparate && len(agg.records) == 1 {
			agg.mergeStart = currOffset == -1
			agg.mergedCmdListIdx = cmdListIdx
			if currOffset == -1 {
				currOffset = idx
			}
			currCount++
		} else if currCount > 0 {
			closeRun(b.aggregates[idx-1])
		}
	}

	if currCount > 0 {
		closeRun(b.aggregates[len(b.aggregates)-1])
	}

	b.mergeChainCount = int(cmdListIdx)
}
