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

package sampler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostwatch/hostwatch/pkg/errors"
)

func waitForState(t *testing.T, r *Runner, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("runner never reached state %s, still %s", want, r.State())
}

func TestRunnerLifecycle(t *testing.T) {
	var ticks atomic.Int64
	r := NewRunner("test", 10*time.Millisecond, func() error {
		ticks.Add(1)
		return nil
	})

	assert.Equal(t, StateCreated, r.State())
	assert.Equal(t, "test", r.Name())
	assert.Equal(t, 10*time.Millisecond, r.Period())

	require.NoError(t, r.Start())
	assert.Equal(t, StateRunning, r.State())

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, r.Stop())
	assert.Equal(t, StateStopped, r.State())
	assert.Greater(t, ticks.Load(), int64(0))

	// stopping again is a no-op
	require.NoError(t, r.Stop())

	// a stopped runner cannot be restarted
	err := r.Start()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(err))
}

func TestRunnerDoubleStart(t *testing.T) {
	r := NewRunner("test", time.Hour, func() error { return nil })
	require.NoError(t, r.Start())
	defer func() { _ = r.Stop() }()

	err := r.Start()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(err))
}

func TestRunnerStopBeforeStart(t *testing.T) {
	var hookCalled atomic.Bool
	r := NewRunner("test", time.Hour, func() error { return nil },
		WithOnStopping(func() { hookCalled.Store(true) }))
	require.NoError(t, r.Stop())
	assert.Equal(t, StateStopped, r.State())

	// resources held since construction are still released
	assert.True(t, hookCalled.Load())

	err := r.Start()
	require.Error(t, err)
}

func TestRunnerFatalTick(t *testing.T) {
	r := NewRunner("test", 5*time.Millisecond, func() error {
		return errors.New(errors.ErrCodeProcess, "stream broke")
	})

	require.NoError(t, r.Start())
	waitForState(t, r, StateStopped)

	// Stop after self-shutdown still succeeds
	require.NoError(t, r.Stop())
}

func TestRunnerImmediate(t *testing.T) {
	var ticks atomic.Int64
	blocked := make(chan struct{})
	r := NewRunner("test", time.Hour, func() error {
		if ticks.Add(1) == 3 {
			<-blocked // simulate a blocking stream read
			return errors.New(errors.ErrCodeProcess, "killed")
		}
		return nil
	},
		WithImmediate(),
		WithOnStopping(func() { close(blocked) }),
		WithJoinTimeout(time.Second),
	)

	require.NoError(t, r.Start())
	waitForState(t, r, StateRunning)

	// tick is interrupted by the stopping hook, not a fatal error
	require.NoError(t, r.Stop())
	assert.Equal(t, StateStopped, r.State())
	assert.Equal(t, int64(3), ticks.Load())
}

func TestRunnerJoinTimeout(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r := NewRunner("test", time.Hour, func() error {
		close(started)
		<-release
		return nil
	},
		WithImmediate(),
		WithJoinTimeout(20*time.Millisecond),
	)

	require.NoError(t, r.Start())
	<-started

	err := r.Stop()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(err))
	close(release)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestLineWarner(t *testing.T) {
	w := NewLineWarner("test")
	for i := 0; i < 100; i++ {
		w.Warn("unexpected line", "garbage")
	}
	// rate limiting only suppresses the log lines, never panics or blocks
}
