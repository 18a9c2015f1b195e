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

	"golang.org/x/sync/errgroup"
)

func mustAbort(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected abort, got none", what)
		}
	}()
	fn()
}

func TestNodeTable_AddInput_RejectsIllegalReadState(t *testing.T) {
	res := newResourceTable(2, 0)
	nodes := newNodeTable(2, res)
	nodes.beginFrame()
	h := nodes.registerPass("A", QueueGraphics, nil, false)

	mustAbort(t, "RenderTarget is a write-only state", func() {
		nodes.addInput(h, 16, StateRenderTarget)
	})
	mustAbort(t, "zero state", func() {
		nodes.addInput(h, 16, StateCommon)
	})
}

func TestNodeTable_AddOutput_RejectsIllegalWriteState(t *testing.T) {
	res := newResourceTable(2, 0)
	nodes := newNodeTable(2, res)
	nodes.beginFrame()
	h := nodes.registerPass("A", QueueGraphics, nil, false)

	mustAbort(t, "ShaderResource is a read-only state", func() {
		nodes.addOutput(h, 16, StateShaderResourceNonPixel)
	})
}

func TestNodeTable_AddOutput_RejectsIllegalOnAsyncCompute(t *testing.T) {
	res := newResourceTable(2, 0)
	res.registerResource("native", 16, StateCommon, false)
	res.moveToPostRegister()

	nodes := newNodeTable(2, res)
	nodes.beginFrame()
	h := nodes.registerPass("A", QueueAsyncCompute, nil, false)

	mustAbort(t, "RenderTarget can't be transitioned to on async-compute", func() {
		nodes.addOutput(h, 16, StateRenderTarget)
	})
}

func TestNodeTable_AddOutput_RejectsUnregisteredResource(t *testing.T) {
	res := newResourceTable(2, 0)
	nodes := newNodeTable(2, res)
	nodes.beginFrame()
	h := nodes.registerPass("A", QueueGraphics, nil, false)

	mustAbort(t, "resource 16 was never registered", func() {
		nodes.addOutput(h, 16, StateUnorderedAccess)
	})
}

func TestNodeTable_AddInput_AllowsUnorderedAccessAsARead(t *testing.T) {
	res := newResourceTable(2, 0)
	nodes := newNodeTable(2, res)
	nodes.beginFrame()
	h := nodes.registerPass("A", QueueGraphics, nil, false)

	nodes.addInput(h, 16, StateUnorderedAccess)

	n := nodes.node(h)
	if len(n.inputs) != 1 || n.inputs[0].state != StateUnorderedAccess {
		t.Fatalf("inputs = %+v, want one UnorderedAccess entry", n.inputs)
	}
}

// Concurrent AddOutput calls against distinct resources from a fan-out
// of goroutines must never lose a producer registration: each resource's
// producer count must equal exactly the number of nodes that declared it
// as an output.
func TestNodeTable_AddOutput_ConcurrentProducerRegistrationIsRaceFree(t *testing.T) {
	const numResources = 4
	const producersPerResource = 16

	res := newResourceTable(numResources, 0)
	for i := 0; i < numResources; i++ {
		res.registerResource(i+1, uint64(16+i), StateCommon, false)
	}
	res.moveToPostRegister()

	nodes := newNodeTable(numResources*producersPerResource, res)
	nodes.beginFrame()

	var eg errgroup.Group
	for r := 0; r < numResources; r++ {
		resourceID := uint64(16 + r)
		for p := 0; p < producersPerResource; p++ {
			eg.Go(func() error {
				h := nodes.registerPass("producer", QueueGraphics, nil, false)
				nodes.addOutput(h, resourceID, StateUnorderedAccess)
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("eg.Wait() = %v", err)
	}

	for r := 0; r < numResources; r++ {
		idx := res.find(uint64(16+r), -1)
		if idx == -1 {
			t.Fatalf("resource %d not found", 16+r)
		}
		if got := res.producerCount(idx); got != producersPerResource {
			t.Fatalf("resource %d: producerCount = %d, want %d", 16+r, got, producersPerResource)
		}
	}
}

func TestNodeTable_RegisterPass_AbortsPastCapacity(t *testing.T) {
	res := newResourceTable(1, 0)
	nodes := newNodeTable(1, res)
	nodes.beginFrame()
	nodes.registerPass("A", QueueGraphics, nil, false)

	mustAbort(t, "second pass exceeds MaxRenderNodes of 1", func() {
		nodes.registerPass("B", QueueGraphics, nil, false)
	})
}

func TestNodeTable_BeginFrame_ResetsNodesAndCount(t *testing.T) {
	res := newResourceTable(2, 0)
	res.registerResource("native", 16, StateCommon, false)
	res.moveToPostRegister()

	nodes := newNodeTable(2, res)
	nodes.beginFrame()
	h := nodes.registerPass("A", QueueGraphics, nil, false)
	nodes.addOutput(h, 16, StateUnorderedAccess)

	nodes.beginFrame()

	if nodes.count() != 0 {
		t.Fatalf("count() = %d after beginFrame, want 0", nodes.count())
	}
	if got := nodes.nodes[0].name; got != "" {
		t.Fatalf("nodes[0].name = %q after beginFrame, want empty", got)
	}
	if got := nodes.nodes[0].gpuDepSourceIdx; got != -1 {
		t.Fatalf("nodes[0].gpuDepSourceIdx = %d after beginFrame, want -1", got)
	}
}
