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
	"bytes"
	"fmt"
)

// Config tunes the fixed-capacity tables and worker pool a Graph
// allocates once at construction. None of it can change after New;
// a window resize goes through Graph.Reset, not a new Config.
type Config struct {
	MaxResources            int
	MaxRenderNodes          int
	MaxProducersPerResource int

	WorkerPoolSize   int
	WorkerNamePrefix string
	WorkerPriority   WorkerPriority
}

func (c *Config) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")

	buff.WriteString(fmt.Sprintf("\"MaxResources\": %d,", c.MaxResources))
	buff.WriteString(fmt.Sprintf("\"MaxRenderNodes\": %d,", c.MaxRenderNodes))
	buff.WriteString(fmt.Sprintf("\"MaxProducersPerResource\": %d,", c.MaxProducersPerResource))
	buff.WriteString(fmt.Sprintf("\"WorkerPoolSize\": %d,", c.WorkerPoolSize))
	buff.WriteString(fmt.Sprintf("\"WorkerNamePrefix\": %q,", c.WorkerNamePrefix))
	buff.WriteString(fmt.Sprintf("\"WorkerPriority\": %q,", c.WorkerPriority))

	buff.Truncate(buff.Len() - 1)
	buff.WriteString("}")
	return buff.Bytes(), nil
}

func (c *Config) validate() {
	if c.MaxResources <= 0 {
		abort("Config.MaxResources must be >= 1")
	}
	if c.MaxRenderNodes <= 0 {
		abort("Config.MaxRenderNodes must be >= 1")
	}
	if c.MaxProducersPerResource <= 0 {
		c.MaxProducersPerResource = maxProducersPerResource
	} else if c.MaxProducersPerResource > maxProducersPerResource {
		abort("Config.MaxProducersPerResource must be <= %d", maxProducersPerResource)
	}
	if c.WorkerPoolSize <= 0 {
		abort("Config.WorkerPoolSize must be >= 1")
	}
	if c.WorkerNamePrefix == "" {
		c.WorkerNamePrefix = "framegraph-worker"
	}
}
