//go:build framegraph_debug
// +build framegraph_debug

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

// debugCheckNoDuplicateResources walks the sorted resource table
// checking invariant I2: no two entries share an id. Only built with
// the framegraph_debug tag, since it retraces work moveToPostRegister
// already paid for just to re-verify it.
func debugCheckNoDuplicateResources(t *resourceTable) {
	n := int(t.lastIdx.Load())
	for i := 0; i < n-1; i++ {
		if t.entries[i].id == t.entries[i+1].id {
			abort("duplicate entries for resource id %d", t.entries[i].id)
		}
	}
}

// debugCheckMergeChains walks the built aggregate list verifying that
// every mergeStart/mergeEnd bracket is properly nested and that every
// merged run has at least two members, per §4.4.5.
func debugCheckMergeChains(aggregates []*aggregate) {
	open := false
	runLen := 0

	for i, agg := range aggregates {
		switch {
		case agg.mergeStart && agg.mergeEnd:
			abort("aggregate %d: mergeStart and mergeEnd both set", i)
		case agg.mergeStart:
			if open {
				abort("aggregate %d: mergeStart while a chain is already open", i)
			}
			open = true
			runLen = 1
		case agg.mergeEnd:
			if !open {
				abort("aggregate %d: mergeEnd without a matching mergeStart", i)
			}
			runLen++
			if runLen < 2 {
				abort("aggregate %d: merge chain closed with fewer than 2 members", i)
			}
			open = false
			runLen = 0
		case open:
			runLen++
		}
	}

	if open {
		abort("merge chain left open at end of aggregate list")
	}
}
