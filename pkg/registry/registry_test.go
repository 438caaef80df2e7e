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

package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecord struct {
	key     Key
	updated time.Time
}

func (f *fakeRecord) Key() Key               { return f.key }
func (f *fakeRecord) LastUpdated() time.Time { return f.updated }
func (f *fakeRecord) Values() map[string]any { return map[string]any{} }

func TestKeyPath(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		root string
		want string
	}{
		{
			name: "type only default root",
			key:  Key{Type: "VMStat"},
			root: "",
			want: "hostwatch.linux:type=VMStat",
		},
		{
			name: "device subkey",
			key:  Key{Type: "io-device", SubKey: "devicename", SubValue: "sda"},
			root: "hostwatch.linux",
			want: "hostwatch.linux:type=io-device,devicename=sda",
		},
		{
			name: "custom root",
			key:  Key{Type: "filesystem", SubKey: "devicename", SubValue: "/var"},
			root: "custom.ns",
			want: "custom.ns:type=filesystem,devicename=/var",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.key.Path(tc.root))
		})
	}
}

func TestPublishLifecycle(t *testing.T) {
	reg := New("")
	assert.Equal(t, DefaultRoot, reg.Root())

	key := Key{Type: "LoadAverage"}
	rec := &fakeRecord{key: key, updated: time.Now()}

	assert.False(t, reg.IsPublished(key))
	reg.Publish(rec)
	assert.True(t, reg.IsPublished(key))
	assert.Equal(t, 1, reg.Len())
	assert.Same(t, Record(rec), reg.Get(key))

	// publishing again under the same key replaces, not duplicates
	reg.Publish(&fakeRecord{key: key, updated: time.Now()})
	assert.Equal(t, 1, reg.Len())

	reg.Unpublish(key)
	assert.False(t, reg.IsPublished(key))
	assert.Nil(t, reg.Get(key))
	reg.Unpublish(key) // absent removal is a no-op
}

func TestQuery(t *testing.T) {
	reg := New("")
	for _, dev := range []string{"sda", "sdb"} {
		reg.Publish(&fakeRecord{key: Key{Type: "io-device", SubKey: "devicename", SubValue: dev}})
	}
	reg.Publish(&fakeRecord{key: Key{Type: "net-device", SubKey: "devicename", SubValue: "eth0"}})

	all := reg.Query("")
	require.Len(t, all, 3)

	ios := reg.Query("*type=io-device*")
	require.Len(t, ios, 2)
	assert.Equal(t, "sda", ios[0].Key().SubValue)
	assert.Equal(t, "sdb", ios[1].Key().SubValue)

	assert.Empty(t, reg.Query("*type=filesystem*"))
}

func TestSweepStale(t *testing.T) {
	reg := New("")
	cutoff := time.Now()

	live := map[string]*fakeRecord{
		"sda": {key: Key{Type: "io-device", SubKey: "devicename", SubValue: "sda"}, updated: cutoff.Add(-time.Minute)},
		"sdb": {key: Key{Type: "io-device", SubKey: "devicename", SubValue: "sdb"}, updated: cutoff.Add(time.Minute)},
		"sdc": {key: Key{Type: "io-device", SubKey: "devicename", SubValue: "sdc"}, updated: cutoff.Add(-time.Second)},
	}
	for _, rec := range live {
		reg.Publish(rec)
	}

	removed := SweepStale(reg, live, cutoff)
	assert.Equal(t, []string{"sda", "sdc"}, removed)
	assert.Len(t, live, 1)
	assert.Contains(t, live, "sdb")
	assert.Equal(t, 1, reg.Len())

	// records exactly at the cutoff survive
	assert.Empty(t, SweepStale(reg, live, live["sdb"].updated))
	assert.Equal(t, 1, reg.Len())
}
