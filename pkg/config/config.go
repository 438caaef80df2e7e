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
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hostwatch/hostwatch/pkg/errors"
)

// Map is a flat, string-keyed configuration map. Every key a sampler reads
// has a documented default, so an empty (or nil) Map is always valid.
type Map map[string]string

// Has reports whether key is set.
func (m Map) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// String returns the value at key, or def when the key is unset.
func (m Map) String(key, def string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

// Int returns the integer value at key, or def when the key is unset.
// A value that does not parse as an integer is a configuration error.
func (m Map) Int(key string, def int) (int, error) {
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeConfiguration,
			"invalid integer value for "+key, err)
	}
	return n, nil
}

// Int64 returns the 64-bit integer value at key, or def when the key is
// unset. A value that does not parse is a configuration error.
func (m Map) Int64(key string, def int64) (int64, error) {
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeConfiguration,
			"invalid integer value for "+key, err)
	}
	return n, nil
}

// Seconds returns the value at key interpreted as a whole number of seconds,
// or def seconds when unset. Zero and negative periods are configuration
// errors.
func (m Map) Seconds(key string, def int) (time.Duration, error) {
	n, err := m.Int(key, def)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.Newf(errors.ErrCodeConfiguration,
			"period %s must be positive, got %d", key, n)
	}
	return time.Duration(n) * time.Second, nil
}

// Millis returns the value at key interpreted as a whole number of
// milliseconds, or def milliseconds when unset. Zero and negative periods
// are configuration errors.
func (m Map) Millis(key string, def int64) (time.Duration, error) {
	n, err := m.Int64(key, def)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.Newf(errors.ErrCodeConfiguration,
			"period %s must be positive, got %d", key, n)
	}
	return time.Duration(n) * time.Millisecond, nil
}

// Set returns the comma-separated value at key as a membership set,
// ignoring empty elements. An unset key yields the set parsed from def.
func (m Map) Set(key, def string) map[string]bool {
	raw := m.String(key, def)
	set := make(map[string]bool)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		set[item] = true
	}
	return set
}

// Fields returns the value at key split on whitespace, for option strings
// that become command arguments. An unset key yields the split of def.
func (m Map) Fields(key, def string) []string {
	return strings.Fields(m.String(key, def))
}

// FromViper flattens a viper instance into a Map. Nested YAML keys become
// dotted keys, matching the flat key names samplers document.
func FromViper(v *viper.Viper) Map {
	m := make(Map)
	if v == nil {
		return m
	}
	for _, key := range v.AllKeys() {
		m[key] = v.GetString(key)
	}
	return m
}
