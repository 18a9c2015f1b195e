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

import "goarrg.com/rhi/framegraph/internal/util"

// TaskSet is a staging container: it records tasks and the edges between
// them before they are handed to Runtime.EnqueueBulk. Finalize validates
// the edges and computes each task's SignalHandle and outbound adjacency.
// TaskSet has no constructor (the zero value is ready to use), so NoCopy
// is armed lazily by the first Add rather than by an Init call.
type TaskSet struct {
	noCopy util.NoCopy

	tasks    []stagingTask
	edges    [][2]int
	final    []Task
	finished bool
}

type stagingTask struct {
	name     string
	priority Priority
	run      func()
}

// Add registers a task and returns its index, used as the node identity
// for AddEdge.
func (ts *TaskSet) Add(name string, priority Priority, run func()) int {
	ts.noCopy.InitLazy()
	if ts.finished {
		abort("Add called on a finalized TaskSet")
	}
	ts.tasks = append(ts.tasks, stagingTask{name: name, priority: priority, run: run})
	return len(ts.tasks) - 1
}

// AddEdge records that the task at index to must not run until the task
// at index from has completed and signalled it.
func (ts *TaskSet) AddEdge(from, to int) {
	ts.noCopy.Check()
	if ts.finished {
		abort("AddEdge called on a finalized TaskSet")
	}
	ts.edges = append(ts.edges, [2]int{from, to})
}

// Finalize validates that every edge connects two registered tasks and
// computes signal handles for bulk enqueue. It is idempotent.
func (ts *TaskSet) Finalize() []Task {
	ts.noCopy.Check()
	if ts.finished {
		return ts.final
	}

	inDegree := make([]int, len(ts.tasks))
	outbound := make([][]SignalHandle, len(ts.tasks))

	for _, e := range ts.edges {
		from, to := e[0], e[1]
		if from < 0 || from >= len(ts.tasks) || to < 0 || to >= len(ts.tasks) {
			abort("TaskSet edge %v references an unregistered task", e)
		}
		inDegree[to]++
		outbound[from] = append(outbound[from], SignalHandle(to))
	}

	final := make([]Task, len(ts.tasks))
	for i, t := range ts.tasks {
		signal := SignalHandle(i)
		if inDegree[i] == 0 {
			signal = SignalNone
		}
		final[i] = Task{
			Name:     t.name,
			Priority: t.priority,
			Signal:   signal,
			Outbound: outbound[i],
			Run:      t.run,
		}
	}

	ts.final = final
	ts.finished = true
	return ts.final
}
