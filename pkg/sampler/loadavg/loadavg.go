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

// Package loadavg samples the system load average by running the uptime
// utility on a fixed period and parsing the load triplet off the end of its
// single output line. Uptime duration itself is not collected.
package loadavg

import (
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/hostwatch/hostwatch/pkg/config"
	"github.com/hostwatch/hostwatch/pkg/errors"
	"github.com/hostwatch/hostwatch/pkg/registry"
	"github.com/hostwatch/hostwatch/pkg/sampler"
	"github.com/hostwatch/hostwatch/pkg/supervisor"
)

const (
	// SourceName identifies this sampler in logs and metrics.
	SourceName = "load-average"

	// KeyPath sets the path to the uptime binary. The default lets the
	// shell resolve it through $PATH.
	KeyPath = "hostwatch.linux.uptime.path"
	// KeyPeriod sets the seconds between load average checks.
	KeyPeriod = "hostwatch.linux.uptime.period"

	DefaultPath   = "uptime"
	DefaultPeriod = 10
)

// uptime output ends with "load average: 0.09, 0.16, 0.17"
var dataPattern = regexp.MustCompile(`^.*\s+load\s+average:\s+([\d.]+),\s+([\d.]+),\s+([\d.]+)$`)

// LoadAverage is the live singleton load record.
type LoadAverage struct {
	mu            sync.RWMutex
	oneMinute     float64
	fiveMinute    float64
	fifteenMinute float64
	lastUpdated   time.Time
}

// Key returns the registry identity for the singleton load record.
func (l *LoadAverage) Key() registry.Key {
	return registry.Key{Type: "LoadAverage"}
}

// OneMinute returns the one-minute load average.
func (l *LoadAverage) OneMinute() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.oneMinute
}

// FiveMinute returns the five-minute load average.
func (l *LoadAverage) FiveMinute() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fiveMinute
}

// FifteenMinute returns the fifteen-minute load average.
func (l *LoadAverage) FifteenMinute() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fifteenMinute
}

// LastUpdated returns the time of the most recent reading.
func (l *LoadAverage) LastUpdated() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastUpdated
}

// Values returns a flat snapshot of the record.
func (l *LoadAverage) Values() map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return map[string]any{
		"oneMinute":     l.oneMinute,
		"fiveMinute":    l.fiveMinute,
		"fifteenMinute": l.fifteenMinute,
	}
}

func (l *LoadAverage) applyUpdate(one, five, fifteen float64, now time.Time) {
	l.mu.Lock()
	l.oneMinute = one
	l.fiveMinute = five
	l.fifteenMinute = fifteen
	l.lastUpdated = now
	l.mu.Unlock()
}

// Sampler runs uptime on a fixed period and keeps the load record current.
type Sampler struct {
	*sampler.Runner

	path   string
	reg    *registry.Registry
	load   *LoadAverage
	warner *sampler.LineWarner
}

// New constructs the load average sampler and takes one synchronous reading
// to verify uptime runs and produces parseable output. The verification run
// is bounded by a kill watchdog of four periods.
func New(cfg config.Map, reg *registry.Registry) (*Sampler, error) {
	period, err := cfg.Seconds(KeyPeriod, DefaultPeriod)
	if err != nil {
		return nil, err
	}

	s := &Sampler{
		path:   cfg.String(KeyPath, DefaultPath),
		reg:    reg,
		load:   &LoadAverage{},
		warner: sampler.NewLineWarner(SourceName),
	}

	if err := s.sample(4 * period); err != nil {
		if errors.IsParse(err) {
			// unparseable output at verification time means the
			// tool on this host is not the uptime we expect
			return nil, errors.Wrap(errors.ErrCodeEnvironment,
				"uptime verification run failed", err)
		}
		return nil, err
	}

	s.Runner = sampler.NewRunner(SourceName, period, s.tick)
	return s, nil
}

// Record returns the published load average record.
func (s *Sampler) Record() *LoadAverage {
	return s.load
}

func (s *Sampler) tick() error {
	if err := s.sample(0); err != nil {
		if errors.IsParse(err) {
			s.warner.Warn("skipping unparseable uptime output", err.Error())
			return nil
		}
		return err
	}
	return nil
}

// sample runs uptime once and parses the load triplet. A non-zero deadline
// arms a kill watchdog around the run.
func (s *Sampler) sample(deadline time.Duration) error {
	proc, err := supervisor.Start(s.path)
	if err != nil {
		return err
	}
	defer proc.Kill()

	if deadline > 0 {
		w := supervisor.NewWatchdog(proc, deadline)
		defer w.Disarm()
	}

	line, err := proc.ReadLine()
	if err != nil {
		return errors.Wrap(errors.ErrCodeEnvironment,
			"no output from uptime", err)
	}

	m := dataPattern.FindStringSubmatch(line)
	if m == nil {
		return errors.New(errors.ErrCodeParse,
			"uptime output did not match: "+line)
	}

	one, err1 := strconv.ParseFloat(m[1], 64)
	five, err2 := strconv.ParseFloat(m[2], 64)
	fifteen, err3 := strconv.ParseFloat(m[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return errors.New(errors.ErrCodeParse,
			"unparseable load averages in: "+line)
	}

	s.load.applyUpdate(one, five, fifteen, time.Now())
	if !s.reg.IsPublished(s.load.Key()) {
		s.reg.Publish(s.load)
		sampler.RecordsPublished.WithLabelValues(SourceName).Inc()
	}
	return nil
}
