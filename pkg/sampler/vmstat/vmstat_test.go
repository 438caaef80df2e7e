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

package vmstat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostwatch/hostwatch/pkg/config"
	"github.com/hostwatch/hostwatch/pkg/errors"
	"github.com/hostwatch/hostwatch/pkg/registry"
	"github.com/hostwatch/hostwatch/pkg/sampler"
)

const banner = "procs -----------memory---------- ---swap-- -----io---- --system-- -----cpu------"
const headerSteal = " r  b   swpd   free   buff  cache   si   so    bi    bo   in   cs us sy id wa st"
const headerNoSteal = " r  b   swpd   free   buff  cache   si   so    bi    bo   in   cs us sy id wa"
const dataSteal = " 1  0      0 701400  68228 589436    0    0    23    18  151  273  2  1 96  1  0"
const dataNoSteal = " 1  0      0 701400  68228 589436    0    0    23    18  151  273  2  1 96  1"

// fakeVMStat writes a script that prints the given lines and then sleeps so
// the stream stays open like the real tool.
func fakeVMStat(t *testing.T, lines ...string) string {
	t.Helper()
	script := "#!/bin/sh\n"
	for _, l := range lines {
		script += "echo '" + l + "'\n"
	}
	script += "sleep 60\n"
	path := filepath.Join(t.TempDir(), "vmstat")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))
	return path
}

func TestMatchHeader(t *testing.T) {
	assert.True(t, matchHeader(headerSteal, headerFieldsSteal))
	assert.True(t, matchHeader(headerNoSteal, headerFields))
	assert.False(t, matchHeader(headerSteal, headerFields))
	assert.False(t, matchHeader("completely different", headerFields))
}

func TestVerificationReadingWithSteal(t *testing.T) {
	reg := registry.New("")
	cfg := config.Map{KeyPath: fakeVMStat(t, banner, headerSteal, dataSteal)}

	s, err := New(cfg, reg)
	require.NoError(t, err)
	defer func() { _ = s.Stop() }()

	assert.Equal(t, sampler.StateCreated, s.State())
	assert.True(t, reg.IsPublished(registry.Key{Type: "VMStat"}))

	rec := s.Record()
	assert.Equal(t, int64(1), rec.RunningProcesses())
	assert.Equal(t, int64(701400), rec.FreeMemory())
	assert.Equal(t, int64(68228), rec.BuffersMemory())
	assert.Equal(t, int64(151), rec.Interrupts())
	assert.Equal(t, int64(273), rec.ContextSwitches())
	assert.Equal(t, int64(96), rec.IdlePercentCPU())

	stolen, ok := rec.StolenFromVMCPU()
	require.True(t, ok)
	assert.Equal(t, int64(0), stolen)
}

func TestVerificationReadingWithoutSteal(t *testing.T) {
	cfg := config.Map{KeyPath: fakeVMStat(t, banner, headerNoSteal, dataNoSteal)}

	s, err := New(cfg, registry.New(""))
	require.NoError(t, err)
	defer func() { _ = s.Stop() }()

	_, ok := s.Record().StolenFromVMCPU()
	assert.False(t, ok)
	assert.Equal(t, int64(2), s.Record().UserPercentCPU())
}

func TestUnknownHeader(t *testing.T) {
	cfg := config.Map{KeyPath: fakeVMStat(t, banner, "some unknown header", dataSteal)}

	_, err := New(cfg, registry.New(""))
	require.Error(t, err)
	assert.True(t, errors.IsEnvironment(err))
}

func TestUnexpectedBanner(t *testing.T) {
	cfg := config.Map{KeyPath: fakeVMStat(t, "garbage", headerSteal, dataSteal)}

	_, err := New(cfg, registry.New(""))
	require.Error(t, err)
	assert.True(t, errors.IsEnvironment(err))
}

func TestMissingBinary(t *testing.T) {
	cfg := config.Map{KeyPath: filepath.Join(t.TempDir(), "vmstat")}

	_, err := New(cfg, registry.New(""))
	require.Error(t, err)
	assert.True(t, errors.IsEnvironment(err))
}

func TestPercentClamping(t *testing.T) {
	s := &Sampler{warner: sampler.NewLineWarner(SourceName), hasStolen: true}

	r, err := s.parseReading(" 1  0      0 701400  68228 589436    0    0    23    18  151  273  2  1 120  -3  0")
	require.NoError(t, err)
	assert.Equal(t, int64(100), r.idlePercentCPU)
	assert.Equal(t, int64(0), r.waitPercentCPU)
}

func TestParseRejectsWrongFieldCount(t *testing.T) {
	s := &Sampler{warner: sampler.NewLineWarner(SourceName), hasStolen: true}

	_, err := s.parseReading(dataNoSteal)
	require.Error(t, err)
	assert.True(t, errors.IsParse(err))
}

func TestSteadyStateUpdate(t *testing.T) {
	cfg := config.Map{KeyPath: fakeVMStat(t, banner, headerSteal, dataSteal)}

	s, err := New(cfg, registry.New(""))
	require.NoError(t, err)
	defer func() { _ = s.Stop() }()

	s.processLine(" 3  0      0 700000  68228 589436    0    0    23    18  151  500  2  1 96  1  0")
	assert.Equal(t, int64(3), s.Record().RunningProcesses())
	assert.Equal(t, int64(500), s.Record().ContextSwitches())

	// header reprints and garbage are ignored, record unchanged
	s.processLine(headerSteal)
	s.processLine(banner)
	s.processLine("complete garbage line")
	assert.Equal(t, int64(3), s.Record().RunningProcesses())
}

func TestStartStop(t *testing.T) {
	cfg := config.Map{
		KeyPath:   fakeVMStat(t, banner, headerSteal, dataSteal),
		KeyPeriod: "1",
	}

	s, err := New(cfg, registry.New(""))
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Equal(t, sampler.StateRunning, s.State())

	// Stop kills the stream, unblocking the pending read
	require.NoError(t, s.Stop())
	assert.Equal(t, sampler.StateStopped, s.State())
}
