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

package task

import "sync/atomic"

// countdown gates a task behind the number of inbound edges it was built
// with. It is created fresh per frame and is cheap enough that workers
// never contend on anything but the done channel's close.
type countdown struct {
	remaining atomic.Int32
	done      chan struct{}
}

func newCountdown(n int32) *countdown {
	c := &countdown{done: make(chan struct{})}
	c.remaining.Store(n)
	if n <= 0 {
		close(c.done)
	}
	return c
}

func (c *countdown) signal() {
	if c.remaining.Add(-1) == 0 {
		close(c.done)
	}
}

func (c *countdown) wait() {
	<-c.done
}
