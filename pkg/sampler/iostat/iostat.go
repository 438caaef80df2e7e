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

// Package iostat samples per-device I/O statistics by supervising a
// long-running iostat process. Two output generations are supported and
// locked in from the header at startup: version 5 reports sector columns
// this sampler skips, version 7 does not. iostat occasionally splits a row
// across two lines; those are rejoined before parsing. Each header reprint
// marks a new report cycle and triggers the stale-device sweep.
package iostat

import (
	"log/slog"
	"math"
	"regexp"
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
	SourceName = "io-stat"

	// KeyPath sets the path to the iostat binary.
	KeyPath = "hostwatch.linux.iostat.path"
	// KeyOpts sets the iostat options. The default asks for extended
	// per-device statistics in kilobytes.
	KeyOpts = "hostwatch.linux.iostat.opts"
	// KeyPeriod sets the seconds between iostat reports.
	KeyPeriod = "hostwatch.linux.iostat.period"
	// KeyReadTimeoutMillis bounds each steady-state stream read. Zero,
	// the default, preserves the historical no-timeout behavior.
	KeyReadTimeoutMillis = "hostwatch.linux.iostat.readTimeoutMillis"

	DefaultPath   = "iostat"
	DefaultOpts   = "-d -x -k"
	DefaultPeriod = 60

	// kernelBannerPrefix opens the first iostat output line.
	kernelBannerPrefix = "Linux"

	// sentinelThreshold marks impossibly large values iostat sometimes
	// emits; they are replaced with NaN rather than published.
	sentinelThreshold = 1e12
)

var (
	headerV7Pattern = regexp.MustCompile(
		`^\s*Device:\s+rrqm/s\s+wrqm/s\s+r/s\s+w/s\s+rkB/s\s+wkB/s\s+avgrq-sz\s+` +
			`avgqu-sz\s+await\s+svctm\s+%util\s*$`)
	headerV5Pattern = regexp.MustCompile(
		`^\s*Device:\s+rrqm/s\s+wrqm/s\s+r/s\s+w/s\s+rsec/s\s+wsec/s\s+rkB/s\s+` +
			`wkB/s\s+avgrq-sz\s+avgqu-sz\s+await\s+svctm\s+%util\s*$`)

	dataV7Pattern = buildDataPattern(12)
	// version 5 rows carry two extra sector columns that are skipped, so
	// the match groups line up with the version 7 pattern
	dataV5Pattern = regexp.MustCompile(
		`^\s*(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)` +
			`\s+\S+\s+\S+\s+` +
			`(\S+)\s+(\S+)\s+(\S+)\s+(\S+)` +
			`\s+(\S+)\s+(\S+)\s+(\S+)\s*$`)

	// a lone device name means iostat broke the row across two lines
	deviceOnlyPattern = regexp.MustCompile(`^\s*\S+\s*$`)
)

func buildDataPattern(numFields int) *regexp.Regexp {
	var b strings.Builder
	b.WriteString(`^\s*`)
	for i := 0; i < numFields; i++ {
		b.WriteString(`(\S+)`)
		if i < numFields-1 {
			b.WriteString(`\s+`)
		} else {
			b.WriteString(`\s*`)
		}
	}
	b.WriteString(`$`)
	return regexp.MustCompile(b.String())
}

// Sampler supervises the iostat stream.
type Sampler struct {
	*sampler.Runner

	proc   *supervisor.Process
	reg    *registry.Registry
	warner *sampler.LineWarner

	period      time.Duration
	readTimeout time.Duration

	headerPattern *regexp.Regexp
	dataPattern   *regexp.Regexp

	// live records keyed by device name; only the sampler goroutine
	// mutates the map
	live map[string]*Device

	freshness time.Time
}

// New constructs the iostat sampler: it starts the iostat process and locks
// in the output generation from the header. The header read is bounded by a
// kill watchdog of one period. No data is parsed until Start; records
// appear as the first report arrives.
func New(cfg config.Map, reg *registry.Registry) (*Sampler, error) {
	period, err := cfg.Seconds(KeyPeriod, DefaultPeriod)
	if err != nil {
		return nil, err
	}
	var readTimeout time.Duration
	if cfg.Has(KeyReadTimeoutMillis) {
		readTimeout, err = cfg.Millis(KeyReadTimeoutMillis, 0)
		if err != nil {
			return nil, err
		}
	}

	path := cfg.String(KeyPath, DefaultPath)
	args := append(cfg.Fields(KeyOpts, DefaultOpts),
		strconv.Itoa(int(period/time.Second)))

	proc, err := supervisor.Start(path, args...)
	if err != nil {
		return nil, err
	}

	s := &Sampler{
		proc:        proc,
		reg:         reg,
		warner:      sampler.NewLineWarner(SourceName),
		period:      period,
		readTimeout: readTimeout,
		live:        make(map[string]*Device),
		freshness:   time.Now(),
	}

	w := supervisor.NewWatchdog(proc, period)
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

// Devices returns the live records, keyed by device name.
func (s *Sampler) Devices() map[string]*Device {
	return s.live
}

// startup validates the banner, the blank separator, and the header line,
// locking in the matching output generation.
func (s *Sampler) startup() error {
	banner, err := s.proc.ReadLine()
	if err != nil {
		return errors.Wrap(errors.ErrCodeEnvironment,
			"unexpected end of input from iostat: no banner line", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(banner), kernelBannerPrefix) {
		slog.Warn("iostat returned unexpected banner line",
			slog.String("sampler", SourceName),
			slog.String("line", banner),
		)
	}

	blank, err := s.proc.ReadLine()
	if err != nil {
		return errors.Wrap(errors.ErrCodeEnvironment,
			"unexpected end of input from iostat: no separator line", err)
	}
	if strings.TrimSpace(blank) != "" {
		return errors.New(errors.ErrCodeEnvironment,
			"missing blank separator line, found instead: "+blank)
	}

	header, err := s.proc.ReadLine()
	if err != nil {
		return errors.Wrap(errors.ErrCodeEnvironment,
			"unexpected end of input from iostat: no header line", err)
	}
	switch {
	case headerV5Pattern.MatchString(header):
		slog.Info("detected iostat version 5 output", slog.String("sampler", SourceName))
		s.headerPattern = headerV5Pattern
		s.dataPattern = dataV5Pattern
	case headerV7Pattern.MatchString(header):
		slog.Info("detected iostat version 7 output", slog.String("sampler", SourceName))
		s.headerPattern = headerV7Pattern
		s.dataPattern = dataV7Pattern
	default:
		return errors.New(errors.ErrCodeEnvironment,
			"iostat header does not match any known generation: "+header)
	}
	return nil
}

// tick blocks on the next stream line; the process paces the loop. A row
// split across two lines is rejoined before classification.
func (s *Sampler) tick() error {
	line, err := s.readLine()
	if err != nil {
		return err
	}
	if strings.TrimSpace(line) != "" && deviceOnlyPattern.MatchString(line) {
		remainder, err := s.readLine()
		if err != nil {
			return err
		}
		slog.Debug("rejoining split iostat row",
			slog.String("head", line),
			slog.String("tail", remainder),
		)
		line += remainder
	}
	s.processLine(line)
	return nil
}

// readLine reads the next stream line, bounded by the optional configured
// read timeout. On timeout the process is killed, which surfaces as a
// process error and shuts the sampler down.
func (s *Sampler) readLine() (string, error) {
	if s.readTimeout <= 0 {
		return s.proc.ReadLine()
	}
	w := supervisor.NewWatchdog(s.proc, s.readTimeout)
	defer w.Disarm()
	return s.proc.ReadLine()
}

func (s *Sampler) processLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}

	if s.headerPattern.MatchString(line) {
		// each header starts a new report cycle
		s.sweep()
		return
	}

	m := s.dataPattern.FindStringSubmatch(line)
	if m == nil {
		s.warner.Warn("iostat line did not match locked-in generation", line)
		return
	}
	s.update(m)
}

func (s *Sampler) update(m []string) {
	next := measurements{
		mergedReadRequestsPerSecond:  parseValue(m[2]),
		mergedWriteRequestsPerSecond: parseValue(m[3]),
		readRequestsPerSecond:        parseValue(m[4]),
		writeRequestsPerSecond:       parseValue(m[5]),
		kilobytesReadPerSecond:       parseValue(m[6]),
		kilobytesWrittenPerSecond:    parseValue(m[7]),
		averageRequestSizeInSectors:  parseValue(m[8]),
		averageQueueLength:           parseValue(m[9]),
		averageWaitTimeInMillis:      parseValue(m[10]),
		averageServiceTimeInMillis:   parseValue(m[11]),
		bandwidthUtilizationPercent:  parseValue(m[12]),
	}

	name := m[1]
	dev, ok := s.live[name]
	if !ok {
		dev = &Device{
			device:             name,
			samplePeriodSecond: int(s.period / time.Second),
		}
		dev.applyUpdate(next, time.Now())
		s.live[name] = dev
		s.reg.Publish(dev)
		sampler.RecordsPublished.WithLabelValues(SourceName).Inc()
		return
	}
	dev.applyUpdate(next, time.Now())
}

func (s *Sampler) sweep() {
	removed := registry.SweepStale(s.reg, s.live, s.freshness)
	for _, name := range removed {
		slog.Info("block device is now considered stale (device removed?)",
			slog.String("sampler", SourceName),
			slog.String("device", name),
		)
		sampler.RecordsReaped.WithLabelValues(SourceName).Inc()
	}
	s.freshness = time.Now()
}

// parseValue parses one iostat number, replacing unparseable input and the
// impossibly large sentinel values iostat occasionally emits with NaN.
func parseValue(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return math.NaN()
	}
	if f > sentinelThreshold {
		return math.NaN()
	}
	return f
}
