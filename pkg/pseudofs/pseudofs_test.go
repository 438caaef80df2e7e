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

package pseudofs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostwatch/hostwatch/pkg/errors"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pseudo")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVerify(t *testing.T) {
	r := NewReader()

	assert.NoError(t, r.Verify(writeTemp(t, "1853\n")))

	err := r.Verify("")
	require.Error(t, err)
	assert.True(t, errors.IsEnvironment(err))

	err = r.Verify(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.IsEnvironment(err))

	err = r.Verify(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsEnvironment(err))
}

func TestFirstLine(t *testing.T) {
	r := NewReader()

	line, err := r.FirstLine(writeTemp(t, "1853\n"))
	require.NoError(t, err)
	assert.Equal(t, "1853", line)

	_, err = r.FirstLine(writeTemp(t, "\n\n"))
	require.Error(t, err)
	assert.True(t, errors.IsEnvironment(err))
}

func TestLines(t *testing.T) {
	r := NewReader()

	lines, err := r.Lines(writeTemp(t, "first\n\n  second  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, lines)
}

func TestLinesErrors(t *testing.T) {
	r := NewReader(WithMaxSize(4))

	_, err := r.Lines(writeTemp(t, "over the limit\n"))
	require.Error(t, err)
	assert.True(t, errors.IsEnvironment(err))

	_, err = NewReader().Lines(writeTemp(t, string([]byte{0xff, 0xfe, 0xfd})))
	require.Error(t, err)
	assert.True(t, errors.IsEnvironment(err))

	_, err = NewReader().Lines("")
	require.Error(t, err)
	assert.True(t, errors.IsEnvironment(err))
}
