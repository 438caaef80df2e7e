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

package platform

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostwatch/hostwatch/pkg/config"
	"github.com/hostwatch/hostwatch/pkg/errors"
	"github.com/hostwatch/hostwatch/pkg/registry"
	"github.com/hostwatch/hostwatch/pkg/sampler"
)

type fakeSampler struct {
	name     string
	state    atomic.Int32
	startErr error
	stopErr  error
	stopWait time.Duration
	started  atomic.Bool
	stopped  atomic.Bool
}

func (f *fakeSampler) Name() string { return f.name }

func (f *fakeSampler) State() sampler.State { return sampler.State(f.state.Load()) }

func (f *fakeSampler) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started.Store(true)
	f.state.Store(int32(sampler.StateRunning))
	return nil
}

func (f *fakeSampler) Stop() error {
	if f.stopWait > 0 {
		time.Sleep(f.stopWait)
	}
	f.stopped.Store(true)
	f.state.Store(int32(sampler.StateStopped))
	return f.stopErr
}

func builderFor(f *fakeSampler, critical bool, buildErr error) Builder {
	return Builder{
		Name:     f.name,
		Critical: critical,
		Build: func(config.Map, *registry.Registry) (sampler.Sampler, error) {
			if buildErr != nil {
				return nil, buildErr
			}
			return f, nil
		},
	}
}

func TestLinuxVerify(t *testing.T) {
	l := NewLinux(nil)
	require.NoError(t, l.Verify())
}

func TestKernelRelease(t *testing.T) {
	assert.NotEmpty(t, KernelRelease())
}

func TestLinuxStartStop(t *testing.T) {
	a := &fakeSampler{name: "a"}
	b := &fakeSampler{name: "b"}

	l := NewLinux(nil, WithBuilders([]Builder{
		builderFor(a, true, nil),
		builderFor(b, false, nil),
	}))

	require.NoError(t, l.Start())
	assert.True(t, a.started.Load())
	assert.True(t, b.started.Load())

	require.NoError(t, l.Stop())
	assert.True(t, a.stopped.Load())
	assert.True(t, b.stopped.Load())

	// stopping again is a no-op
	require.NoError(t, l.Stop())
}

func TestLinuxCriticalBuildFailureUnwinds(t *testing.T) {
	a := &fakeSampler{name: "a"}
	b := &fakeSampler{name: "b"}

	l := NewLinux(nil, WithBuilders([]Builder{
		builderFor(a, true, nil),
		builderFor(b, true, errors.New(errors.ErrCodeEnvironment, "no such binary")),
	}))

	err := l.Start()
	require.Error(t, err)
	assert.True(t, errors.IsEnvironment(err))
	assert.True(t, a.started.Load())
	assert.True(t, a.stopped.Load(), "started samplers must be unwound")
}

func TestLinuxCriticalStartFailureUnwinds(t *testing.T) {
	a := &fakeSampler{name: "a"}
	b := &fakeSampler{
		name:     "b",
		startErr: errors.New(errors.ErrCodeInternal, "already started"),
	}

	l := NewLinux(nil, WithBuilders([]Builder{
		builderFor(a, true, nil),
		builderFor(b, true, nil),
	}))

	err := l.Start()
	require.Error(t, err)
	assert.True(t, errors.IsEnvironment(err))
	assert.True(t, a.stopped.Load())
}

func TestLinuxOptionalFailureSkipped(t *testing.T) {
	a := &fakeSampler{name: "a"}
	b := &fakeSampler{name: "c"}

	l := NewLinux(nil, WithBuilders([]Builder{
		builderFor(a, true, nil),
		{Name: "b", Build: func(config.Map, *registry.Registry) (sampler.Sampler, error) {
			return nil, errors.New(errors.ErrCodeEnvironment, "not available here")
		}},
		builderFor(b, false, nil),
	}))

	require.NoError(t, l.Start())
	assert.True(t, a.started.Load())
	assert.True(t, b.started.Load())
	require.NoError(t, l.Stop())
}

func TestLinuxStopTimeout(t *testing.T) {
	a := &fakeSampler{name: "a", stopWait: 500 * time.Millisecond}

	l := NewLinux(nil,
		WithBuilders([]Builder{builderFor(a, true, nil)}),
		WithStopTimeout(20*time.Millisecond))

	require.NoError(t, l.Start())
	err := l.Stop()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(err))
}

func TestLinuxRegistryRoot(t *testing.T) {
	l := NewLinux(nil)
	assert.Equal(t, registry.DefaultRoot, l.Registry().Root())

	l = NewLinux(config.Map{KeyRegistryRoot: "acme.host"})
	assert.Equal(t, "acme.host", l.Registry().Root())
}

type stubRecord struct {
	key registry.Key
	at  time.Time
}

func (s stubRecord) Key() registry.Key      { return s.key }
func (s stubRecord) LastUpdated() time.Time { return s.at }
func (s stubRecord) Values() map[string]any { return map[string]any{"stub": true} }

func TestSnapshotPopulatesRegistry(t *testing.T) {
	f := &fakeSampler{name: "fake-source"}
	publishing := Builder{
		Name:     "fake-source",
		Critical: true,
		Build: func(cfg config.Map, reg *registry.Registry) (sampler.Sampler, error) {
			reg.Publish(stubRecord{
				key: registry.Key{Type: "VMStat"},
				at:  time.Now(),
			})
			return f, nil
		},
	}

	reg, err := Snapshot(nil, WithBuilders([]Builder{publishing}))
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
	assert.True(t, f.stopped.Load(), "snapshot must tear its samplers down")
}

func TestSnapshotSkipsOptionalFailure(t *testing.T) {
	f := &fakeSampler{name: "good"}
	builders := []Builder{
		{Name: "bad", Build: func(config.Map, *registry.Registry) (sampler.Sampler, error) {
			return nil, errors.New(errors.ErrCodeEnvironment, "not available here")
		}},
		builderFor(f, true, nil),
	}

	_, err := Snapshot(nil, WithBuilders(builders))
	require.NoError(t, err)
	assert.True(t, f.stopped.Load())
}

func TestSnapshotCriticalFailure(t *testing.T) {
	failing := Builder{
		Name:     "fake-source",
		Critical: true,
		Build: func(config.Map, *registry.Registry) (sampler.Sampler, error) {
			return nil, errors.New(errors.ErrCodeEnvironment, "no data")
		},
	}

	_, err := Snapshot(nil, WithBuilders([]Builder{failing}))
	require.Error(t, err)
	assert.True(t, errors.IsEnvironment(err))
}
