// Copyright (c) 2025, Hostwatch Authors.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package platform assembles the per-source samplers into a host monitor.
// Monitor is a capability interface with a closed set of platform variants;
// Linux is currently the only one. New platforms are added as new variants,
// never discovered dynamically.
package platform

import (
	"github.com/hostwatch/hostwatch/pkg/registry"
)

// Monitor is a running collection of samplers publishing into a shared
// registry. A Monitor is single-use: once stopped it cannot be restarted.
type Monitor interface {
	// Verify checks that the monitor can run on this host without
	// starting anything.
	Verify() error
	// Start constructs and starts every sampler. Construction of each
	// sampler performs its verification reading, so a Start that returns
	// nil means every critical source is producing data.
	Start() error
	// Stop shuts all samplers down in parallel with a bounded wait.
	Stop() error
	// Registry returns the registry the samplers publish into.
	Registry() *registry.Registry
}
