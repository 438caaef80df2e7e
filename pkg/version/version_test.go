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

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Version
	}{
		{"2.6.32-642.13.1.el6.x86_64", Version{Major: 2, Minor: 6, Patch: 32, Precision: 3, Extras: "-642.13.1.el6.x86_64"}},
		{"6.8.0", Version{Major: 6, Minor: 8, Patch: 0, Precision: 3}},
		{"v5.15", Version{Major: 5, Minor: 15, Precision: 2}},
		{"4", Version{Major: 4, Precision: 1}},
		{"1.2.3+build.7", Version{Major: 1, Minor: 2, Patch: 3, Precision: 3, Extras: "+build.7"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "1.2.3.4", "a.b.c", "1..3"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestString(t *testing.T) {
	v, err := Parse("2.6.32-642.13.1.el6.x86_64")
	require.NoError(t, err)
	assert.Equal(t, "2.6.32", v.String())

	v, err = Parse("5.15")
	require.NoError(t, err)
	assert.Equal(t, "5.15", v.String())
}

func TestCompare(t *testing.T) {
	a, _ := Parse("2.6.32")
	b, _ := Parse("3.10.0")
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))

	// lower precision wins
	c, _ := Parse("2.6")
	assert.Equal(t, 0, a.Compare(c))
}
