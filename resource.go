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
	"strconv"
	"strings"
	"sync/atomic"
)

// ResourceState is a bit-mask over the union of D3D12-style resource
// state bits a tracked GPU resource may be transitioned between.
type ResourceState uint32

const (
	StateCommon ResourceState = 0
	StatePresent ResourceState = StateCommon

	StateVertexConstant        ResourceState = 1 << 0
	StateIndex                 ResourceState = 1 << 1
	StateRenderTarget          ResourceState = 1 << 2
	StateUnorderedAccess       ResourceState = 1 << 3
	StateDepthWrite            ResourceState = 1 << 4
	StateDepthRead             ResourceState = 1 << 5
	StateShaderResourcePixel   ResourceState = 1 << 6
	StateShaderResourceNonPixel ResourceState = 1 << 7
	StateCopySource            ResourceState = 1 << 8
	StateCopyDest              ResourceState = 1 << 9
	StateRaytracingAS          ResourceState = 1 << 10

	StateShaderResourceAll = StateShaderResourcePixel | StateShaderResourceNonPixel
)

// ReadStates is the union of states a node may legally request on an
// input. WriteStates is the union of states a node may legally request
// on an output. IllegalOnComputeStates is the union of states that
// cannot be transitioned to on the async-compute queue.
const (
	ReadStates = StateShaderResourceAll | StateIndex | StateVertexConstant | StateCopySource | StateUnorderedAccess
	WriteStates = StateRenderTarget | StateUnorderedAccess | StateDepthWrite | StateCopyDest
	IllegalOnComputeStates = StateRenderTarget | StateDepthRead | StateDepthWrite | StateShaderResourcePixel
)

func (s ResourceState) HasBits(want ResourceState) bool {
	return hasBits(uint32(s), uint32(want))
}

func (s ResourceState) String() string {
	if s == StateCommon {
		return "Common|Present"
	}

	names := []struct {
		bit  ResourceState
		name string
	}{
		{StateVertexConstant, "VertexConstant"},
		{StateIndex, "Index"},
		{StateRenderTarget, "RenderTarget"},
		{StateUnorderedAccess, "UnorderedAccess"},
		{StateDepthWrite, "DepthWrite"},
		{StateDepthRead, "DepthRead"},
		{StateShaderResourcePixel, "ShaderResourcePixel"},
		{StateShaderResourceNonPixel, "ShaderResourceNonPixel"},
		{StateCopySource, "CopySource"},
		{StateCopyDest, "CopyDest"},
		{StateRaytracingAS, "RaytracingAS"},
	}

	str := ""
	for _, n := range names {
		if s.HasBits(n.bit) {
			str += n.name + "|"
		}
	}
	return strings.TrimSuffix(str, "|")
}

// dummyResourceCount is the small reserved id range below which resource
// ids participate in dependency edges without carrying a native handle
// or barriers.
const dummyResourceCount = 16

func isDummyResourceID(id uint64) bool {
	return id < dummyResourceCount
}

// maxProducersPerResource is the hard ceiling on
// Config.MaxProducersPerResource (Config.validate aborts above it) and
// the per-resource producer limit used when none is configured.
const maxProducersPerResource = 32

// resourceHandle indexes a render node that writes to a resource.
type resourceHandle int32

const invalidNodeHandle resourceHandle = -1

type resourceMetadata struct {
	id                  uint64
	native              any
	state               ResourceState
	windowSizeDependent bool
	producers           []resourceHandle
	currProducerIdx     atomic.Int32
}

// reset clears the entry back to its zero value and, if producers was
// already sized by a resourceTable, refills it with invalidNodeHandle
// rather than reallocating.
func (r *resourceMetadata) reset() {
	r.id = 0
	r.native = nil
	r.state = StateCommon
	r.windowSizeDependent = false
	r.currProducerIdx.Store(0)
	for i := range r.producers {
		r.producers[i] = invalidNodeHandle
	}
}

// resourceTable is a sorted-by-id array of tracked GPU resources. It
// persists across frames; only the per-frame producer lists are reset at
// BeginFrame. maxProducers is the per-entry producers slice length,
// taken from Config.MaxProducersPerResource at construction.
type resourceTable struct {
	entries        []resourceMetadata
	prevFrameCount int32
	lastIdx        atomic.Int32
	maxProducers   int
}

func newResourceTable(capacity, maxProducers int) *resourceTable {
	if maxProducers <= 0 {
		maxProducers = maxProducersPerResource
	}
	return &resourceTable{entries: make([]resourceMetadata, 0, capacity), maxProducers: maxProducers}
}

// newProducers allocates a producers slice sized for this table and
// pre-filled with invalidNodeHandle.
func (t *resourceTable) newProducers() []resourceHandle {
	p := make([]resourceHandle, t.maxProducers)
	for i := range p {
		p[i] = invalidNodeHandle
	}
	return p
}

// find performs a binary search over entries[0, end) for id, where end
// is prevFrameCount during pre-register lookups and lastIdx after the
// mid-frame sort that ends pre-register. end == -1 means "current count".
func (t *resourceTable) find(id uint64, end int32) int {
	if end < 0 {
		end = t.lastIdx.Load()
	}
	if end == 0 {
		return -1
	}
	slice := t.entries[:end]
	i := sort.Search(len(slice), func(i int) bool { return slice[i].id >= id })
	if i < len(slice) && slice[i].id == id {
		return i
	}
	return -1
}

func (t *resourceTable) beginFrame() {
	t.prevFrameCount = t.lastIdx.Load()
	for i := range t.entries {
		t.entries[i].currProducerIdx.Store(0)
		for j := range t.entries[i].producers {
			t.entries[i].producers[j] = invalidNodeHandle
		}
	}
}

// registerResource is valid only during pre-register. If id is already
// present from a previous frame, the entry is overwritten only if the
// native handle changed; otherwise this is a no-op and the entry (and
// its current state) carries forward unchanged.
func (t *resourceTable) registerResource(native any, id uint64, initial ResourceState, windowSizeDependent bool) {
	if native != nil && isDummyResourceID(id) {
		abort("resource path id %d collides with the reserved dummy range", id)
	}

	if pos := t.find(id, t.prevFrameCount); pos != -1 {
		if t.entries[pos].native != native {
			t.entries[pos].reset()
			t.entries[pos].id = id
			t.entries[pos].native = native
			t.entries[pos].state = initial
			t.entries[pos].windowSizeDependent = windowSizeDependent
		}
		return
	}

	pos := t.lastIdx.Add(1) - 1
	if int(pos) == len(t.entries) {
		t.entries = growSlice(t.entries, len(t.entries)+1)[:len(t.entries)+1]
	}
	t.entries[pos] = resourceMetadata{id: id, native: native, state: initial, windowSizeDependent: windowSizeDependent, producers: t.newProducers()}
}

// moveToPostRegister sorts entries[0, count) by id so lookups can binary
// search. I2 is checked afterwards by the caller, Graph.MoveToPostRegister,
// in debug builds only (see builder_debugcheck.go).
func (t *resourceTable) moveToPostRegister() {
	n := int(t.lastIdx.Load())
	sort.Slice(t.entries[:n], func(i, j int) bool { return t.entries[i].id < t.entries[j].id })
}

// removeResource resets the slot for id and shifts the tail down to keep
// the table sorted and contiguous. Valid only outside the begin/end
// block (enforced by the caller, Graph.RemoveResource).
func (t *resourceTable) removeResource(id uint64) {
	pos := t.find(id, -1)
	if pos == -1 {
		return
	}

	n := int(t.lastIdx.Load())
	copy(t.entries[pos:n-1], t.entries[pos+1:n])
	t.entries[n-1].reset()
	t.entries = t.entries[:n-1]
	t.lastIdx.Add(-1)
	if int(t.prevFrameCount) > pos {
		t.prevFrameCount--
	}
}

func (t *resourceTable) removeResources(ids []uint64) {
	for _, id := range ids {
		t.removeResource(id)
	}
}

// reset partitions window-size-independent entries before
// window-size-dependent ones (invariant I3) and drops the dependent
// tail, so a window resize can cheaply rebuild just that tail.
func (t *resourceTable) reset(capacity int) {
	n := int(t.prevFrameCount)
	independent := t.entries[:0:0]
	for i := 0; i < n; i++ {
		if !t.entries[i].windowSizeDependent {
			independent = append(independent, t.entries[i])
		}
	}

	sort.Slice(independent, func(i, j int) bool { return independent[i].id < independent[j].id })

	t.entries = growSlice(independent, capacity)[:len(independent)]
	t.prevFrameCount = int32(len(independent))
	t.lastIdx.Store(t.prevFrameCount)
}

func (t *resourceTable) addProducer(resIdx int, producer resourceHandle) int {
	prodIdx := t.entries[resIdx].currProducerIdx.Add(1) - 1
	if int(prodIdx) >= len(t.entries[resIdx].producers) {
		abort("resource %d exceeded the maximum of %d producers in one frame", t.entries[resIdx].id, t.maxProducers)
	}
	t.entries[resIdx].producers[prodIdx] = producer
	return int(prodIdx)
}

func (t *resourceTable) producerCount(resIdx int) int {
	return int(t.entries[resIdx].currProducerIdx.Load())
}

// debugStateDump returns two JSON-array strings for a post-register log
// line: every resource's id (hex) and current state sorted by id, and
// the count of resources currently sitting in each distinct state
// sorted by the state's own name.
func (t *resourceTable) debugStateDump() (byID, byState string) {
	n := int(t.lastIdx.Load())
	idStates := make(map[uint64]ResourceState, n)
	stateCounts := make(map[ResourceState]int)

	for i := 0; i < n; i++ {
		e := &t.entries[i]
		idStates[e.id] = e.state
		stateCounts[e.state]++
	}

	var ids []string
	_ = mapRunFuncSorted(idStates, func(id uint64, s ResourceState) error {
		ids = append(ids, toHex(id)+"="+s.String())
		return nil
	})

	var states []string
	_ = mapRunFuncStringSorted(stateCounts, func(s ResourceState, n int) error {
		states = append(states, s.String()+":"+strconv.Itoa(n))
		return nil
	})

	return jsonString(ids), jsonString(states)
}
