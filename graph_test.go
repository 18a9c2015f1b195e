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
	"time"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	g := New(Config{
		MaxResources:   8,
		MaxRenderNodes: 8,
		WorkerPoolSize: 1,
	}, newFakeFacade(0))
	t.Cleanup(g.Shutdown)
	return g
}

func TestGraph_RegisterResource_AbortsOutsidePreRegister(t *testing.T) {
	g := newTestGraph(t)

	mustAbort(t, "RegisterResource before BeginFrame", func() {
		g.RegisterResource("native", 16, StateCommon, false)
	})

	g.BeginFrame()
	g.MoveToPostRegister()

	mustAbort(t, "RegisterResource after MoveToPostRegister", func() {
		g.RegisterResource("native", 16, StateCommon, false)
	})
}

func TestGraph_MoveToPostRegister_AbortsOutsidePreRegister(t *testing.T) {
	g := newTestGraph(t)

	mustAbort(t, "MoveToPostRegister before BeginFrame", func() {
		g.MoveToPostRegister()
	})
}

func TestGraph_RegisterPass_AbortsOutsidePreRegister(t *testing.T) {
	g := newTestGraph(t)

	mustAbort(t, "RegisterPass before BeginFrame", func() {
		g.RegisterPass("A", QueueGraphics, nil, false)
	})

	g.BeginFrame()
	g.MoveToPostRegister()

	mustAbort(t, "RegisterPass after MoveToPostRegister", func() {
		g.RegisterPass("A", QueueGraphics, nil, false)
	})
}

func TestGraph_AddInputAddOutput_AbortOutsidePostRegister(t *testing.T) {
	g := newTestGraph(t)
	g.BeginFrame()
	g.RegisterResource("native", 16, StateCommon, false)
	h := g.RegisterPass("A", QueueGraphics, nil, false)

	mustAbort(t, "AddInput during pre-register", func() {
		g.AddInput(h, 16, StateShaderResourceNonPixel)
	})
	mustAbort(t, "AddOutput during pre-register", func() {
		g.AddOutput(h, 16, StateUnorderedAccess)
	})
}

func TestGraph_BeginFrame_AbortsWhenAlreadyOpen(t *testing.T) {
	g := newTestGraph(t)
	g.BeginFrame()

	mustAbort(t, "BeginFrame called twice without closing the block", func() {
		g.BeginFrame()
	})
}

func TestGraph_RemoveResource_AbortsInsideBeginEndBlock(t *testing.T) {
	g := newTestGraph(t)
	g.BeginFrame()

	mustAbort(t, "RemoveResource inside a begin/end block", func() {
		g.RemoveResource(16)
	})
	mustAbort(t, "RemoveResources inside a begin/end block", func() {
		g.RemoveResources([]uint64{16})
	})
}

func TestGraph_Reset_AbortsInsideBeginEndBlock(t *testing.T) {
	g := newTestGraph(t)
	g.BeginFrame()

	mustAbort(t, "Reset inside a begin/end block", func() {
		g.Reset()
	})
}

func TestGraph_Stats_ReflectsDeclaredTables(t *testing.T) {
	g := newTestGraph(t)
	g.BeginFrame()
	g.RegisterResource("native-a", 16, StateCommon, false)
	g.RegisterResource("native-b", 17, StateCommon, false)
	g.MoveToPostRegister()

	g.RegisterPass("A", QueueGraphics, nil, false)
	g.RegisterPass("B", QueueGraphics, nil, false)
	g.RegisterPass("C", QueueGraphics, nil, false)

	stats := g.Stats()
	if stats.ResourceCount != 2 {
		t.Fatalf("ResourceCount = %d, want 2", stats.ResourceCount)
	}
	if stats.RenderNodeCount != 3 {
		t.Fatalf("RenderNodeCount = %d, want 3", stats.RenderNodeCount)
	}
	if stats.AggregateCount != 0 {
		t.Fatalf("AggregateCount = %d, want 0 (no Build yet)", stats.AggregateCount)
	}
	if stats.BuildCount != 0 {
		t.Fatalf("BuildCount = %d, want 0", stats.BuildCount)
	}
	if stats.MergeChainCount != 0 {
		t.Fatalf("MergeChainCount = %d, want 0 (no Build yet)", stats.MergeChainCount)
	}
}

func TestGraph_RemoveResource_ShrinksResourceCount(t *testing.T) {
	g := newTestGraph(t)
	g.BeginFrame()
	g.RegisterResource("native-a", 16, StateCommon, false)
	g.RegisterResource("native-b", 17, StateCommon, false)
	g.MoveToPostRegister()
	// close the block the way Build would, so RemoveResource is legal.
	g.inBeginEndBlock = false

	g.RemoveResource(16)

	if got := g.Stats().ResourceCount; got != 1 {
		t.Fatalf("ResourceCount after removal = %d, want 1", got)
	}
}

func TestGraph_New_NamesWorkerThreadsThroughFacade(t *testing.T) {
	fake := newFakeFacade(0)
	g := New(Config{
		MaxResources:     8,
		MaxRenderNodes:   8,
		WorkerPoolSize:   2,
		WorkerNamePrefix: "gpu-worker",
	}, fake)
	t.Cleanup(g.Shutdown)

	deadline := time.Now().Add(time.Second)
	for {
		fake.mu.Lock()
		n := len(fake.namedThreads)
		fake.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("SetThreadMetadata called %d times, want 2", n)
		}
		time.Sleep(time.Millisecond)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	for _, name := range []string{"gpu-worker-0", "gpu-worker-1"} {
		if _, ok := fake.namedThreads[name]; !ok {
			t.Fatalf("namedThreads = %v, missing %q", fake.namedThreads, name)
		}
	}
}
