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

import "goarrg.com/debug"

// errQueueAcquire wraps a Facade failure to hand back a command list.
// It is returned, not panicked — per spec, downstream GPU errors are the
// façade's call to make, not ours.
func errQueueAcquire(queue string, err error) error {
	return debug.ErrorWrapf(err, "Failed to acquire %s command list", queue)
}

// errSubmit wraps a Facade failure to submit a command list for
// execution.
func errSubmit(err error) error {
	return debug.ErrorWrapf(err, "Failed to submit command list")
}
