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

// Package framegraph implements the per-frame GPU render-graph scheduler:
// given a dynamically declared set of render passes and the resources
// they read and write, it derives a legal execution order, the minimal
// set of resource barriers, the cross-queue synchronization points
// between a graphics and an async-compute queue, and a task graph ready
// for submission to the companion internal/task worker pool.
//
// A typical frame:
//
//	g := framegraph.New(framegraph.Config{...}, facade)
//	g.BeginFrame()
//	g.RegisterResource(rtHandle, rtID, framegraph.StateRenderTarget, false)
//	g.MoveToPostRegister()
//	h := g.RegisterPass("gbuffer", framegraph.QueueGraphics, recordGBuffer, false)
//	g.AddOutput(h, rtID, framegraph.StateRenderTarget)
//	g.Build()
package framegraph
