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

// QueueType names the GPU queue a render node records its commands on.
type QueueType int32

const (
	QueueGraphics QueueType = iota
	QueueAsyncCompute
)

func (q QueueType) String() string {
	switch q {
	case QueueGraphics:
		return "Graphics"
	case QueueAsyncCompute:
		return "AsyncCompute"
	default:
		return "Unknown"
	}
}

// RecordFunc records a render node's commands into the command list the
// builder hands it at emission time.
type RecordFunc func(CmdList)

// dependency is a declared (resource id, expected state) pair, shared
// shape for both a node's inputs and outputs.
type dependency struct {
	resourceID uint64
	state      ResourceState
}

// NodeHandle identifies a render node by its pre-sort registration
// index. Build permutes the node table into execution order and
// rewrites each node's handle field to its sorted index; the builder's
// mapping table translates a registration handle to that sorted index.
type NodeHandle int32

const invalidHandle NodeHandle = -1

func (h NodeHandle) Valid() bool { return h >= 0 }

// renderNode is one declared pass: stable handle, queue affinity,
// record callback, declared dependencies, and the fields the builder
// fills in during Build. It is allocated once in register_pass and
// mutated in place by add_input/add_output and then by the builder;
// nothing about it is safe for concurrent mutation after Build starts.
type renderNode struct {
	handle             NodeHandle
	name               string
	queue              QueueType
	record             RecordFunc
	forceSeparateCmdList bool

	inputs  []dependency
	outputs []dependency

	inDegree int32

	barriers            []Barrier
	batchIdx            int32
	gpuDepSourceIdx      int32 // index into sorted order, or -1
	outputMask           uint64
	aggregateIdx         int32
	hasUnsupportedBarrier bool
}

func (n *renderNode) reset() {
	n.name = ""
	n.record = nil
	n.forceSeparateCmdList = false
	n.inputs = n.inputs[:0]
	n.outputs = n.outputs[:0]
	n.inDegree = 0
	n.barriers = n.barriers[:0]
	n.batchIdx = 0
	n.gpuDepSourceIdx = -1
	n.outputMask = 0
	n.aggregateIdx = -1
	n.hasUnsupportedBarrier = false
}

// nodeTable is the bounded, append-only-per-frame store of declared
// render nodes. register_pass allocates a slot atomically so passes
// may be declared from multiple goroutines; add_input/add_output
// mutate a single node's slot and are safe to call concurrently across
// distinct handles but not on the same handle from two goroutines.
type nodeTable struct {
	nodes   []renderNode
	nextIdx atomic.Int32
	res     *resourceTable
}

func newNodeTable(capacity int, res *resourceTable) *nodeTable {
	nodes := make([]renderNode, capacity)
	for i := range nodes {
		nodes[i].handle = NodeHandle(i)
		nodes[i].gpuDepSourceIdx = -1
		nodes[i].aggregateIdx = -1
	}
	return &nodeTable{nodes: nodes, res: res}
}

func (t *nodeTable) beginFrame() {
	t.nextIdx.Store(0)
	for i := range t.nodes {
		t.nodes[i].reset()
	}
}

func (t *nodeTable) count() int {
	return int(t.nextIdx.Load())
}

func (t *nodeTable) registerPass(name string, queue QueueType, record RecordFunc, forceSeparateCmdList bool) NodeHandle {
	h := t.nextIdx.Add(1) - 1
	if int(h) >= len(t.nodes) {
		abort("number of render passes exceeded the configured MaxRenderNodes (%d)", len(t.nodes))
	}

	n := &t.nodes[h]
	n.name = name
	n.queue = queue
	n.record = record
	n.forceSeparateCmdList = forceSeparateCmdList

	return NodeHandle(h)
}

func (t *nodeTable) node(h NodeHandle) *renderNode {
	if !h.Valid() || int(h) >= t.count() {
		abort("invalid render node handle %d", h)
	}
	return &t.nodes[h]
}

// addInput records a dependency on the node; resource existence is
// checked later, during edge construction, not here.
func (t *nodeTable) addInput(h NodeHandle, resourceID uint64, expected ResourceState) {
	n := t.node(h)
	if expected == 0 || expected&^ReadStates != 0 {
		abort("node %q: input state %s is not a legal read state", n.name, expected)
	}

	n.inputs = append(n.inputs, dependency{resourceID: resourceID, state: expected})
}

// addOutput records a dependency on the node and atomically appends
// the node's handle to the named resource's producer list, so
// concurrent declarations from independent goroutines never race on
// the producer-count increment.
func (t *nodeTable) addOutput(h NodeHandle, resourceID uint64, expected ResourceState) {
	n := t.node(h)

	if expected == 0 || expected&^WriteStates != 0 {
		abort("node %q: output state %s is not a legal write state", n.name, expected)
	}
	if n.queue == QueueAsyncCompute && expected&IllegalOnComputeStates != 0 {
		abort("node %q: state transition to %s is not supported on the async-compute queue", n.name, expected)
	}

	n.outputs = append(n.outputs, dependency{resourceID: resourceID, state: expected})

	resIdx := t.res.find(resourceID, -1)
	if resIdx == -1 {
		abort("node %q: output names unregistered resource path %d", n.name, resourceID)
	}
	t.res.addProducer(resIdx, resourceHandle(h))
}
