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

// Package registry publishes live measurement records under hierarchical
// management names. Samplers publish a record once and mutate it in place;
// consumers look records up by name or glob pattern.
package registry

import (
	"log/slog"
	"path"
	"sort"
	"sync"
	"time"
)

// DefaultRoot is the namespace all records are published under when the
// "root" configuration key is unset.
const DefaultRoot = "hostwatch.linux"

// Key identifies a published record within a root namespace. Type names the
// measurement source; SubKey/SubValue distinguish multiple records from the
// same source, such as one per block device.
type Key struct {
	Type     string
	SubKey   string
	SubValue string
}

// Path renders the key under root, e.g.
// "hostwatch.linux:type=io-device,devicename=sda".
func (k Key) Path(root string) string {
	if root == "" {
		root = DefaultRoot
	}
	s := root + ":type=" + k.Type
	if k.SubKey != "" {
		s += "," + k.SubKey + "=" + k.SubValue
	}
	return s
}

// Record is a live measurement object a sampler keeps current.
type Record interface {
	// Key returns the identity the record is published under.
	Key() Key
	// LastUpdated returns the time of the most recent update.
	LastUpdated() time.Time
	// Values returns a flat snapshot of the record's current state.
	Values() map[string]any
}

// Registry is a concurrency-safe set of published records.
type Registry struct {
	mu      sync.RWMutex
	root    string
	records map[string]Record
}

// New creates a registry rooted at root. An empty root selects DefaultRoot.
func New(root string) *Registry {
	if root == "" {
		root = DefaultRoot
	}
	return &Registry{
		root:    root,
		records: make(map[string]Record),
	}
}

// Root returns the registry's namespace root.
func (r *Registry) Root() string {
	return r.root
}

// Publish registers rec under its key path. Publishing over an existing
// name replaces the old record.
func (r *Registry) Publish(rec Record) {
	name := rec.Key().Path(r.root)
	r.mu.Lock()
	if _, exists := r.records[name]; exists {
		slog.Debug("replacing published record", slog.String("name", name))
	}
	r.records[name] = rec
	r.mu.Unlock()
}

// Unpublish removes the record named by key. Removing an absent record is
// a no-op.
func (r *Registry) Unpublish(key Key) {
	name := key.Path(r.root)
	r.mu.Lock()
	delete(r.records, name)
	r.mu.Unlock()
}

// IsPublished reports whether a record is registered under key.
func (r *Registry) IsPublished(key Key) bool {
	name := key.Path(r.root)
	r.mu.RLock()
	_, ok := r.records[name]
	r.mu.RUnlock()
	return ok
}

// Get returns the record published under key, or nil.
func (r *Registry) Get(key Key) Record {
	name := key.Path(r.root)
	r.mu.RLock()
	rec := r.records[name]
	r.mu.RUnlock()
	return rec
}

// Len returns the number of published records.
func (r *Registry) Len() int {
	r.mu.RLock()
	n := len(r.records)
	r.mu.RUnlock()
	return n
}

// Names returns the sorted paths of all published records.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Query returns the records whose paths match the glob pattern, sorted by
// path. An empty pattern matches everything.
func (r *Registry) Query(pattern string) []Record {
	names := r.Names()
	out := make([]Record, 0, len(names))
	for _, name := range names {
		if pattern != "" {
			ok, err := path.Match(pattern, name)
			if err != nil || !ok {
				continue
			}
		}
		r.mu.RLock()
		rec := r.records[name]
		r.mu.RUnlock()
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// SweepStale removes and unpublishes every record in live whose last update
// is strictly before cutoff. It returns the identities of the removed
// records. The live map is the sampler's own view; the registry only learns
// about removals.
func SweepStale[R Record](reg *Registry, live map[string]R, cutoff time.Time) []string {
	var removed []string
	for id, rec := range live {
		if rec.LastUpdated().Before(cutoff) {
			reg.Unpublish(rec.Key())
			delete(live, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}
