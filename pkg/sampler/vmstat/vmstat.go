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

// Package vmstat samples virtual-memory statistics by supervising a
// long-running vmstat process that emits one data row per period. The column
// layout is locked in from the header at startup: newer versions report a
// trailing hypervisor steal column, older ones do not.
package vmstat

import (
	"strconv"
	"strings"
	"time"

	"github.com/hostwatch/hostwatch/pkg/config"
	"github.com/hostwatch/hostwatch/pkg/errors"
	"github.com/hostwatch/hostwatch/pkg/registry"
	"github.com/hostwatch/hostwatch/pkg/sampler"
	"github.com/hostwatch/hostwatch/pkg/supervisor"
)

const (
	// SourceName identifies this sampler in logs and metrics.
	SourceName = "vm-stat"

	// KeyPath sets the path to the vmstat binary.
	KeyPath = "hostwatch.linux.vmstat.path"
	// KeyOpts sets extra vmstat options. The default suppresses the
	// periodic header reprint.
	KeyOpts = "hostwatch.linux.vmstat.opts"
	// KeyPeriod sets the seconds between vmstat reports.
	KeyPeriod = "hostwatch.linux.vmstat.period"

	DefaultPath   = "vmstat"
	DefaultOpts   = "-n"
	DefaultPeriod = 60
)

// column headers for the two known vmstat layouts
var (
	headerFields = []string{
		"r", "b", "swpd", "free", "buff", "cache", "si", "so",
		"bi", "bo", "in", "cs", "us", "sy", "id", "wa",
	}
	headerFieldsSteal = append(append([]string{}, headerFields...), "st")
)

// Sampler supervises the vmstat stream.
type Sampler struct {
	*sampler.Runner

	proc   *supervisor.Process
	reg    *registry.Registry
	warner *sampler.LineWarner
	stat   *VMStat

	// hasStolen records which column layout the header locked in
	hasStolen bool
}

// New constructs the vmstat sampler: it starts the vmstat process, locks in
// the column layout from the header, and parses the first report (averages
// since boot) as the verification reading. Startup is bounded by a kill
// watchdog of four periods.
func New(cfg config.Map, reg *registry.Registry) (*Sampler, error) {
	period, err := cfg.Seconds(KeyPeriod, DefaultPeriod)
	if err != nil {
		return nil, err
	}
	path := cfg.String(KeyPath, DefaultPath)
	args := append(cfg.Fields(KeyOpts, DefaultOpts),
		strconv.Itoa(int(period/time.Second)))

	proc, err := supervisor.Start(path, args...)
	if err != nil {
		return nil, err
	}

	s := &Sampler{
		proc:   proc,
		reg:    reg,
		warner: sampler.NewLineWarner(SourceName),
		stat:   &VMStat{},
	}

	w := supervisor.NewWatchdog(proc, 4*period)
	if err := s.startup(); err != nil {
		proc.Kill()
		return nil, err
	}
	w.Disarm()

	s.Runner = sampler.NewRunner(SourceName, period, s.tick,
		sampler.WithImmediate(),
		sampler.WithOnStopping(proc.Kill),
	)
	return s, nil
}

// Record returns the published vmstat record.
func (s *Sampler) Record() *VMStat {
	return s.stat
}

// startup consumes the category banner and column header, locks in the
// layout, and parses the first data row.
func (s *Sampler) startup() error {
	banner, err := s.proc.ReadLine()
	if err != nil {
		return errors.Wrap(errors.ErrCodeEnvironment,
			"unexpected end of input from vmstat: no banner line", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(banner), "procs") {
		return errors.New(errors.ErrCodeEnvironment,
			"vmstat returned unexpected banner line: "+banner)
	}

	header, err := s.proc.ReadLine()
	if err != nil {
		return errors.Wrap(errors.ErrCodeEnvironment,
			"unexpected end of input from vmstat: no header line", err)
	}
	switch {
	case matchHeader(header, headerFieldsSteal):
		s.hasStolen = true
	case matchHeader(header, headerFields):
		s.hasStolen = false
	default:
		return errors.New(errors.ErrCodeEnvironment,
			"vmstat header does not match any known layout: "+header)
	}

	first, err := s.proc.ReadLine()
	if err != nil {
		return errors.Wrap(errors.ErrCodeEnvironment,
			"unexpected end of input from vmstat: no data line", err)
	}
	r, err := s.parseReading(first)
	if err != nil {
		// first data row must parse, or the layout lock-in is wrong
		return errors.Wrap(errors.ErrCodeEnvironment,
			"vmstat verification row failed to parse", err)
	}
	s.publish(r)
	return nil
}

// tick blocks on the next stream line. The process paces the loop.
func (s *Sampler) tick() error {
	line, err := s.proc.ReadLine()
	if err != nil {
		return err
	}
	s.processLine(line)
	return nil
}

func (s *Sampler) processLine(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	// header reprints show up without -n, or after a terminal resize
	if strings.HasPrefix(trimmed, "procs") ||
		matchHeader(line, headerFields) || matchHeader(line, headerFieldsSteal) {
		return
	}

	r, err := s.parseReading(line)
	if err != nil {
		s.warner.Warn("vmstat line did not match locked-in layout", line)
		return
	}
	s.publish(r)
}

func (s *Sampler) publish(r reading) {
	s.stat.applyUpdate(r, time.Now())
	if !s.reg.IsPublished(s.stat.Key()) {
		s.reg.Publish(s.stat)
		sampler.RecordsPublished.WithLabelValues(SourceName).Inc()
	}
}

// parseReading parses one data row against the locked-in layout.
func (s *Sampler) parseReading(line string) (reading, error) {
	want := len(headerFields)
	if s.hasStolen {
		want = len(headerFieldsSteal)
	}

	fields := strings.Fields(line)
	if len(fields) != want {
		return reading{}, errors.Newf(errors.ErrCodeParse,
			"expected %d fields, got %d in: %s", want, len(fields), line)
	}

	values := make([]int64, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return reading{}, errors.Wrap(errors.ErrCodeParse,
				"unparseable vmstat field "+f, err)
		}
		values[i] = n
	}

	r := reading{
		runningProcesses:  values[0],
		sleepingProcesses: values[1],
		swappedMemory:     values[2],
		freeMemory:        values[3],
		buffersMemory:     values[4],
		cacheMemory:       values[5],
		swapIn:            values[6],
		swapOut:           values[7],
		blocksRead:        values[8],
		blocksWritten:     values[9],
		interrupts:        values[10],
		contextSwitches:   values[11],
		userPercentCPU:    s.clampPercent(values[12]),
		sysPercentCPU:     s.clampPercent(values[13]),
		idlePercentCPU:    s.clampPercent(values[14]),
		waitPercentCPU:    s.clampPercent(values[15]),
	}
	if s.hasStolen {
		r.stolenFromVMCPU = s.clampPercent(values[16])
		r.hasStolen = true
	}
	return r, nil
}

func (s *Sampler) clampPercent(n int64) int64 {
	if n < 0 {
		s.warner.Warn("CPU percentage below 0, clamping", strconv.FormatInt(n, 10))
		return 0
	}
	if n > 100 {
		s.warner.Warn("CPU percentage above 100, clamping", strconv.FormatInt(n, 10))
		return 100
	}
	return n
}

// matchHeader reports whether the line's whitespace-separated fields equal
// the expected column names.
func matchHeader(line string, want []string) bool {
	fields := strings.Fields(line)
	if len(fields) != len(want) {
		return false
	}
	for i, f := range fields {
		if f != want[i] {
			return false
		}
	}
	return true
}
