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

import "sync/atomic"

const invalidAggregateIdx int32 = -1

// aggregate is a run of one or more render nodes sharing a batch index
// and queue affinity, recorded onto a single command list. Its barrier
// list and record callbacks are the concatenation, in node order, of
// everything appended to it.
type aggregate struct {
	name         string
	isAsyncCompute bool
	forceSeparate  bool
	isLast         bool

	records  []RecordFunc
	barriers []Barrier

	batchIdx              int32
	gpuDepIdx             int32 // index into the aggregate slice, or -1
	hasUnsupportedBarrier bool

	// merge-chain fields, filled in by mergeSmallNodes.
	mergeStart      bool
	mergeEnd        bool
	mergedCmdListIdx int32 // -1 if this aggregate owns its own command list

	taskIdx int // index into the TaskSet staged by submission.go

	// completionFence is written by this aggregate's own task (or, for
	// a merge-chain member, by the chain's mergeEnd task) and read by
	// dependent tasks and by CompletionFence/FrameCompletionFence; it's
	// an atomic because those are different goroutines even though the
	// task graph's dependency edges already order the write before any
	// read that matters.
	completionFence atomic.Uint64
}

func newAggregate(isAsyncCompute bool) *aggregate {
	return &aggregate{
		isAsyncCompute:   isAsyncCompute,
		gpuDepIdx:        -1,
		mergedCmdListIdx: -1,
	}
}

// append folds node into the aggregate: concatenates its barriers,
// appends its record callback, and raises gpuDepIdx to the max of
// itself and the node's GPU dependency translated through
// mappedGpuDepIdx (an index into the aggregate slice, already resolved
// by the caller). forceSeparate aggregates may only ever receive one
// node.
func (a *aggregate) append(n *renderNode, mappedGpuDepIdx int32, forceSeparate bool) {
	if a.isAsyncCompute != (n.queue == QueueAsyncCompute) {
		abort("all nodes in an aggregate must share the same queue type")
	}
	if len(a.records) > 0 && n.batchIdx != a.batchIdx {
		abort("all nodes in an aggregate must share the same batch index")
	}
	if forceSeparate && len(a.records) > 0 {
		abort("a force-separate aggregate can't have more than one node")
	}

	a.barriers = append(a.barriers, n.barriers...)
	a.records = append(a.records, n.record)
	a.batchIdx = n.batchIdx
	a.forceSeparate = forceSeparate
	if mappedGpuDepIdx > a.gpuDepIdx {
		a.gpuDepIdx = mappedGpuDepIdx
	}
	if n.hasUnsupportedBarrier {
		a.hasUnsupportedBarrier = true
	}

	if len(a.records) > 1 {
		a.name += "_" + n.name
	} else {
		a.name = n.name
	}
}
