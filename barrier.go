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

// BarrierInfo is one side of a resource state transition.
type BarrierInfo struct {
	State ResourceState
}

// Barrier is a resource state transition emitted between a producer and
// a consumer of a tracked resource to satisfy GPU state-consistency. It
// names the resource by id, not by native handle, so the builder can
// operate on it without touching the Facade.
type Barrier struct {
	ResourceID uint64
	Native     any // the resource's opaque native handle, nil for dummies
	Src        BarrierInfo
	Dst        BarrierInfo
}

func transitionBarrier(resID uint64, native any, before, after ResourceState) Barrier {
	return Barrier{
		ResourceID: resID,
		Native:     native,
		Src:        BarrierInfo{State: before},
		Dst:        BarrierInfo{State: after},
	}
}
