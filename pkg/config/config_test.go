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

package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostwatch/hostwatch/pkg/errors"
)

func TestMapDefaults(t *testing.T) {
	var m Map // nil map is a valid empty configuration

	assert.Equal(t, "fallback", m.String("missing", "fallback"))

	n, err := m.Int("missing", 60)
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	d, err := m.Seconds("missing", 60)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, d)

	d, err = m.Millis("missing", 2000)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
}

func TestMapHas(t *testing.T) {
	var m Map
	assert.False(t, m.Has("missing"))

	m = Map{"present": ""}
	assert.True(t, m.Has("present"))
	assert.False(t, m.Has("missing"))
}

func TestMapValues(t *testing.T) {
	m := Map{
		"iostat.period":       "30",
		"netstat.periodMillis": "500",
		"df.mtab.path":        "/etc/mtab",
	}

	d, err := m.Seconds("iostat.period", 60)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	d, err = m.Millis("netstat.periodMillis", 2000)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)

	assert.Equal(t, "/etc/mtab", m.String("df.mtab.path", "/proc/mounts"))
}

func TestMapInvalidNumeric(t *testing.T) {
	m := Map{
		"iostat.period": "sixty",
		"zero.period":   "0",
		"neg.period":    "-5",
	}

	_, err := m.Int("iostat.period", 60)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))

	_, err = m.Seconds("iostat.period", 60)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))

	_, err = m.Seconds("zero.period", 60)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))

	_, err = m.Millis("neg.period", 2000)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestMapSet(t *testing.T) {
	m := Map{"df.fsTypeFilter": "iso9660, proc ,sysfs,,tmpfs"}

	set := m.Set("df.fsTypeFilter", "")
	assert.Len(t, set, 4)
	assert.True(t, set["proc"])
	assert.True(t, set["tmpfs"])
	assert.False(t, set[""])

	def := Map{}.Set("df.fsTypeFilter", "iso9660,proc,sysfs,tmpfs")
	assert.Len(t, def, 4)
}

func TestMapFields(t *testing.T) {
	m := Map{"vmstat.opts": " -n  -a "}
	assert.Equal(t, []string{"-n", "-a"}, m.Fields("vmstat.opts", "-n"))
	assert.Equal(t, []string{"-n"}, Map{}.Fields("vmstat.opts", "-n"))
}

func TestFromViper(t *testing.T) {
	v := viper.New()
	v.Set("hostwatch.linux.iostat.period", 15)
	v.Set("root", "custom.root")

	m := FromViper(v)
	assert.Equal(t, "15", m.String("hostwatch.linux.iostat.period", ""))
	assert.Equal(t, "custom.root", m.String("root", ""))

	assert.Empty(t, FromViper(nil))
}
