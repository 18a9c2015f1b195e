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
	"fmt"

	"goarrg.com/rhi/framegraph/internal/task"
	"goarrg.com/rhi/framegraph/internal/util"
)

// Graph is the per-frame scheduler: a resource table, a render-node
// table, and, after Build, the ordered aggregates and the task graph
// derived from them. One Graph is built once at startup and reused
// every frame; BeginFrame resets only the per-frame portions.
type Graph struct {
	noCopy util.NoCopy

	config Config
	facade Facade

	res   *resourceTable
	nodes *nodeTable

	runtime task.Runtime

	inBeginEndBlock bool
	inPreRegister   bool

	aggregates      []*aggregate
	mergedCmdLists  []CmdList
	mergeChainCount int
	submissionWait  *FrameWaitObject

	buildCount uint64
}

// New allocates the fixed-capacity tables Config describes, starts the
// worker pool, and wires everything to facade. Config is validated and
// defaulted in place. Worker thread ids are discovered from facade
// (spec §6's "thread-id discovery" duty) and each worker goroutine hands
// its name and priority back to facade before it starts draining the
// queue ("per-thread name/priority setting").
func New(config Config, facade Facade) *Graph {
	config.validate()

	g := &Graph{
		config: config,
		facade: facade,
	}
	g.noCopy.Init()
	g.res = newResourceTable(config.MaxResources, config.MaxProducersPerResource)
	g.nodes = newNodeTable(config.MaxRenderNodes, g.res)

	ids := facade.DiscoverThreadIDs(config.WorkerPoolSize)
	g.runtime.Init(config.WorkerPoolSize, len(ids)+1, config.WorkerNamePrefix, int(config.WorkerPriority))
	g.runtime.Start(ids, func(id int) {
		facade.SetThreadMetadata(fmt.Sprintf("%s-%d", config.WorkerNamePrefix, id), config.WorkerPriority)
	})

	logger.VPrintf("framegraph: new graph configured with %s", prettyString(&g.config))

	return g
}

// Shutdown stops the worker pool, waiting for any in-flight task to
// finish recording and submitting. A Graph is unusable after this
// returns.
func (g *Graph) Shutdown() {
	g.noCopy.Check()
	g.runtime.Shutdown()
	g.noCopy.Close()
}

// PumpUntilEmpty lets the calling thread cooperatively drain the task
// graph's worker queue instead of blocking idle on a frame's
// completion fence.
func (g *Graph) PumpUntilEmpty() {
	g.noCopy.Check()
	g.runtime.PumpUntilEmpty()
}

// TryFlush reports whether every task enqueued by the most recent Build
// has finished running.
func (g *Graph) TryFlush() bool {
	g.noCopy.Check()
	return g.runtime.TryFlush()
}

// BeginFrame opens the pre-register window: resets per-frame producer
// lists and render nodes and makes RegisterResource/RegisterPass legal
// again.
func (g *Graph) BeginFrame() {
	g.noCopy.Check()
	if g.inBeginEndBlock {
		abort("BeginFrame called while already inside a begin/end block")
	}

	logger.IPrintf("framegraph: begin frame %d", g.buildCount+1)

	g.res.beginFrame()
	g.nodes.beginFrame()
	g.aggregates = nil

	g.inBeginEndBlock = true
	g.inPreRegister = true
}

// RegisterResource declares a tracked GPU resource for this frame. A
// nil native handle with an id below the reserved dummy range is a
// pure dependency-graph placeholder carrying no barriers.
func (g *Graph) RegisterResource(native any, id uint64, initial ResourceState, windowSizeDependent bool) {
	g.noCopy.Check()
	if !g.inBeginEndBlock || !g.inPreRegister {
		abort("RegisterResource called outside pre-register")
	}
	g.res.registerResource(native, id, initial, windowSizeDependent)
}

// MoveToPostRegister closes resource declaration for the frame, sorts
// the resource table for binary search, and (in debug builds) checks
// for duplicate resource ids.
func (g *Graph) MoveToPostRegister() {
	g.noCopy.Check()
	if !g.inBeginEndBlock || !g.inPreRegister {
		abort("MoveToPostRegister called outside pre-register")
	}
	g.res.moveToPostRegister()
	debugCheckNoDuplicateResources(g.res)
	g.inPreRegister = false

	logger.IPrintf("framegraph: frame %d moved to post-register", g.buildCount+1)
	byID, byState := g.res.debugStateDump()
	logger.VPrintf("framegraph: frame %d resource states %s, state distribution %s", g.buildCount+1, byID, byState)
}

// RegisterPass declares a render pass, valid only in pre-register.
// Multiple goroutines may call this concurrently; each gets a distinct
// handle.
func (g *Graph) RegisterPass(name string, queue QueueType, record RecordFunc, forceSeparateCmdList bool) NodeHandle {
	g.noCopy.Check()
	if !g.inBeginEndBlock || !g.inPreRegister {
		abort("RegisterPass called outside pre-register")
	}
	return g.nodes.registerPass(name, queue, record, forceSeparateCmdList)
}

// AddInput declares a dependency, valid only in post-register.
func (g *Graph) AddInput(h NodeHandle, resourceID uint64, expected ResourceState) {
	g.noCopy.Check()
	if !g.inBeginEndBlock || g.inPreRegister {
		abort("AddInput called outside post-register")
	}
	g.nodes.addInput(h, resourceID, expected)
}

// AddOutput declares a dependency and registers h as a producer of
// resourceID, valid only in post-register. Safe to call concurrently
// across distinct handles.
func (g *Graph) AddOutput(h NodeHandle, resourceID uint64, expected ResourceState) {
	g.noCopy.Check()
	if !g.inBeginEndBlock || g.inPreRegister {
		abort("AddOutput called outside post-register")
	}
	g.nodes.addOutput(h, resourceID, expected)
}

// RemoveResource drops a tracked resource outside of any begin/end
// block, shifting the table to stay sorted and contiguous.
func (g *Graph) RemoveResource(id uint64) {
	g.noCopy.Check()
	if g.inBeginEndBlock {
		abort("RemoveResource called inside a begin/end block")
	}
	g.res.removeResource(id)
}

// RemoveResources batches RemoveResource.
func (g *Graph) RemoveResources(ids []uint64) {
	g.noCopy.Check()
	if g.inBeginEndBlock {
		abort("RemoveResources called inside a begin/end block")
	}
	g.res.removeResources(ids)
}

// Reset drops every window-size-dependent resource (a caller re-
// registers them at their new size next frame) and clears the render
// node table and aggregate list. Intended for swapchain resize.
func (g *Graph) Reset() {
	g.noCopy.Check()
	if g.inBeginEndBlock {
		abort("Reset called inside a begin/end block")
	}
	g.res.reset(g.config.MaxResources)
	g.nodes.beginFrame()
	g.aggregates = nil
	g.mergedCmdLists = nil
	g.mergeChainCount = 0
}

// Stats is a read-only snapshot of the current frame's table
// occupancy, useful for diagnostics and capacity tuning.
type Stats struct {
	ResourceCount   int
	RenderNodeCount int
	AggregateCount  int
	MergeChainCount int
	BuildCount      uint64
}

func (g *Graph) Stats() Stats {
	g.noCopy.Check()
	return Stats{
		ResourceCount:   int(g.res.lastIdx.Load()),
		RenderNodeCount: g.nodes.count(),
		AggregateCount:  len(g.aggregates),
		MergeChainCount: g.mergeChainCount,
		BuildCount:      g.buildCount,
	}
}
