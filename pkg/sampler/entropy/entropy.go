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

// Package entropy samples the kernel entropy pool that feeds secure random
// number generation. The pool size is read from the /proc filesystem on a
// configurable period.
package entropy

import (
	"strconv"
	"sync"
	"time"

	"github.com/hostwatch/hostwatch/pkg/config"
	"github.com/hostwatch/hostwatch/pkg/errors"
	"github.com/hostwatch/hostwatch/pkg/pseudofs"
	"github.com/hostwatch/hostwatch/pkg/registry"
	"github.com/hostwatch/hostwatch/pkg/sampler"
)

const (
	// SourceName identifies this sampler in logs and metrics.
	SourceName = "entropy-level"

	// KeyPeriod sets how often, in seconds, the entropy pool is checked.
	KeyPeriod = "hostwatch.linux.entropyLevel.period"
	// KeyPath overrides the pseudo-file the pool size is read from.
	KeyPath = "hostwatch.linux.entropyLevel.path"

	DefaultPeriod = 10
	DefaultPath   = "/proc/sys/kernel/random/entropy_avail"
)

// Level is the live entropy pool record.
type Level struct {
	mu          sync.RWMutex
	available   int64
	lastUpdated time.Time
}

// Key returns the registry identity for the singleton entropy record.
func (l *Level) Key() registry.Key {
	return registry.Key{Type: "EntropyLevel"}
}

// Available returns the last observed pool size in bits.
func (l *Level) Available() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.available
}

// LastUpdated returns the time of the most recent reading.
func (l *Level) LastUpdated() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastUpdated
}

// Values returns a flat snapshot of the record.
func (l *Level) Values() map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return map[string]any{
		"available": l.available,
	}
}

func (l *Level) applyUpdate(available int64, now time.Time) {
	l.mu.Lock()
	l.available = available
	l.lastUpdated = now
	l.mu.Unlock()
}

// Sampler reads the entropy pool size on a fixed period.
type Sampler struct {
	*sampler.Runner

	reader *pseudofs.Reader
	path   string
	reg    *registry.Registry
	level  *Level
	warner *sampler.LineWarner
}

// New constructs the entropy sampler and takes one synchronous reading to
// verify the pseudo-file is present and parseable. Constructing (without
// starting) is therefore a valid way to take a one-time reading.
func New(cfg config.Map, reg *registry.Registry) (*Sampler, error) {
	period, err := cfg.Seconds(KeyPeriod, DefaultPeriod)
	if err != nil {
		return nil, err
	}

	s := &Sampler{
		reader: pseudofs.NewReader(),
		path:   cfg.String(KeyPath, DefaultPath),
		reg:    reg,
		level:  &Level{},
		warner: sampler.NewLineWarner(SourceName),
	}

	if err := s.reader.Verify(s.path); err != nil {
		return nil, errors.Wrap(errors.ErrCodeEnvironment,
			"can't read entropy level (is /proc mounted?)", err)
	}
	if err := s.sample(); err != nil {
		// a parse failure on the verification reading means the
		// environment is not what we expect
		return nil, errors.Wrap(errors.ErrCodeEnvironment,
			"entropy verification reading failed", err)
	}

	s.Runner = sampler.NewRunner(SourceName, period, s.tick)
	return s, nil
}

// Record returns the published entropy record.
func (s *Sampler) Record() *Level {
	return s.level
}

func (s *Sampler) tick() error {
	if err := s.sample(); err != nil {
		if errors.IsParse(err) {
			// a garbled reading is skipped, the next period retries
			s.warner.Warn("skipping unparseable entropy reading", err.Error())
			return nil
		}
		return err
	}
	return nil
}

func (s *Sampler) sample() error {
	line, err := s.reader.FirstLine(s.path)
	if err != nil {
		return err
	}
	available, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return errors.Wrap(errors.ErrCodeParse,
			"unparseable entropy level: "+line, err)
	}

	s.level.applyUpdate(available, time.Now())
	if !s.reg.IsPublished(s.level.Key()) {
		s.reg.Publish(s.level)
		sampler.RecordsPublished.WithLabelValues(SourceName).Inc()
	}
	return nil
}
