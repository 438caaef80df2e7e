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
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hostwatch/hostwatch/pkg/config"
	"github.com/hostwatch/hostwatch/pkg/defaults"
	"github.com/hostwatch/hostwatch/pkg/errors"
	"github.com/hostwatch/hostwatch/pkg/pseudofs"
	"github.com/hostwatch/hostwatch/pkg/registry"
	"github.com/hostwatch/hostwatch/pkg/sampler"
	"github.com/hostwatch/hostwatch/pkg/sampler/diskspace"
	"github.com/hostwatch/hostwatch/pkg/sampler/entropy"
	"github.com/hostwatch/hostwatch/pkg/sampler/iostat"
	"github.com/hostwatch/hostwatch/pkg/sampler/loadavg"
	"github.com/hostwatch/hostwatch/pkg/sampler/netstat"
	"github.com/hostwatch/hostwatch/pkg/sampler/vmstat"
	"github.com/hostwatch/hostwatch/pkg/version"
)

const (
	// KeyRegistryRoot overrides the registry key root.
	KeyRegistryRoot = "hostwatch.linux.registryRoot"
)

// Builder constructs one sampler. Critical builders gate monitor startup:
// if one fails the whole monitor fails and anything already started is
// unwound. Non-critical builders are best effort and only log on failure.
type Builder struct {
	Name     string
	Critical bool
	Build    func(config.Map, *registry.Registry) (sampler.Sampler, error)
}

func defaultBuilders() []Builder {
	return []Builder{
		{Name: vmstat.SourceName, Critical: true, Build: func(c config.Map, r *registry.Registry) (sampler.Sampler, error) {
			return vmstat.New(c, r)
		}},
		{Name: iostat.SourceName, Critical: true, Build: func(c config.Map, r *registry.Registry) (sampler.Sampler, error) {
			return iostat.New(c, r)
		}},
		{Name: netstat.SourceName, Critical: true, Build: func(c config.Map, r *registry.Registry) (sampler.Sampler, error) {
			return netstat.New(c, r)
		}},
		{Name: diskspace.SourceName, Critical: true, Build: func(c config.Map, r *registry.Registry) (sampler.Sampler, error) {
			return diskspace.New(c, r)
		}},
		{Name: loadavg.SourceName, Build: func(c config.Map, r *registry.Registry) (sampler.Sampler, error) {
			return loadavg.New(c, r)
		}},
		{Name: entropy.SourceName, Build: func(c config.Map, r *registry.Registry) (sampler.Sampler, error) {
			return entropy.New(c, r)
		}},
	}
}

// Option configures a Linux monitor.
type Option func(*Linux)

// WithBuilders replaces the default sampler builders.
func WithBuilders(builders []Builder) Option {
	return func(l *Linux) {
		l.builders = builders
	}
}

// WithStopTimeout overrides the bounded wait for parallel shutdown.
func WithStopTimeout(d time.Duration) Option {
	return func(l *Linux) {
		l.stopTimeout = d
	}
}

// Linux monitors a Linux host by running one sampler per source and
// publishing their records into a shared registry.
type Linux struct {
	cfg         config.Map
	reg         *registry.Registry
	builders    []Builder
	stopTimeout time.Duration

	mu       sync.Mutex
	samplers []sampler.Sampler
}

// NewLinux creates a Linux monitor. Nothing is constructed or started
// until Start is called.
func NewLinux(cfg config.Map, opts ...Option) *Linux {
	l := &Linux{
		cfg:         cfg,
		reg:         registry.New(cfg.String(KeyRegistryRoot, registry.DefaultRoot)),
		builders:    defaultBuilders(),
		stopTimeout: defaults.MonitorStopTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registry returns the registry the samplers publish into.
func (l *Linux) Registry() *registry.Registry {
	return l.reg
}

// Verify checks that the monitor can run on this host.
func (l *Linux) Verify() error {
	if runtime.GOOS != "linux" {
		return errors.Newf(errors.ErrCodeEnvironment,
			"linux monitor cannot run on %s", runtime.GOOS)
	}
	return nil
}

const kernelReleasePath = "/proc/sys/kernel/osrelease"

// KernelRelease reads the running kernel release, e.g. "6.8.0-47-generic".
// Best effort: returns the raw line when it does not parse as a version,
// and empty when /proc is not readable.
func KernelRelease() string {
	line, err := pseudofs.NewReader().FirstLine(kernelReleasePath)
	if err != nil {
		return ""
	}
	if v, err := version.Parse(line); err == nil {
		return v.String() + v.Extras
	}
	return line
}

// Start constructs and starts every sampler in order. Construction of a
// sampler performs its verification reading, so a critical source that
// cannot produce data fails Start: everything already started is stopped
// and the verification error is returned. Non-critical sources that fail
// are logged and skipped.
func (l *Linux) Start() error {
	if err := l.Verify(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	MonitorStarts.Inc()
	slog.Info("starting samplers", "kernel", KernelRelease())

	for _, b := range l.builders {
		s, err := b.Build(l.cfg, l.reg)
		if err == nil {
			err = s.Start()
			if err != nil {
				stopQuietly(s)
			}
		}
		if err != nil {
			BuildFailures.WithLabelValues(b.Name).Inc()
			if !b.Critical {
				slog.Warn("skipping optional sampler",
					"sampler", b.Name,
					"error", err)
				continue
			}
			l.unwindLocked()
			return errors.Wrap(errors.ErrCodeEnvironment,
				"critical sampler "+b.Name+" failed to start", err)
		}
		l.samplers = append(l.samplers, s)
		slog.Info("sampler started", "sampler", b.Name)
	}
	return nil
}

// Stop shuts all samplers down in parallel with a bounded wait. It is
// safe to call more than once.
func (l *Linux) Stop() error {
	l.mu.Lock()
	samplers := l.samplers
	l.samplers = nil
	l.mu.Unlock()

	return l.stopAll(samplers)
}

// unwindLocked stops whatever Start managed to bring up before failing.
func (l *Linux) unwindLocked() {
	samplers := l.samplers
	l.samplers = nil
	if err := l.stopAll(samplers); err != nil {
		slog.Warn("unwind after failed start did not finish cleanly", "error", err)
	}
}

func (l *Linux) stopAll(samplers []sampler.Sampler) error {
	if len(samplers) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, s := range samplers {
		g.Go(s.Stop)
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, "sampler shutdown failed", err)
		}
		return nil
	case <-time.After(l.stopTimeout):
		return errors.Newf(errors.ErrCodeInternal,
			"timed out after %s waiting for samplers to stop", l.stopTimeout)
	}
}

func stopQuietly(s sampler.Sampler) {
	if err := s.Stop(); err != nil {
		slog.Warn("sampler did not stop cleanly", "sampler", s.Name(), "error", err)
	}
}

// Snapshot takes a one-shot reading of every source. Each sampler's
// constructor performs a verification reading that publishes into the
// registry, so constructing and immediately stopping all samplers yields
// a fully populated registry without any background loops. Non-critical
// sources that fail are skipped.
func Snapshot(cfg config.Map, opts ...Option) (*registry.Registry, error) {
	l := NewLinux(cfg, opts...)
	if err := l.Verify(); err != nil {
		return nil, err
	}

	var samplers []sampler.Sampler
	defer func() {
		if err := l.stopAll(samplers); err != nil {
			slog.Warn("snapshot teardown did not finish cleanly", "error", err)
		}
	}()

	for _, b := range l.builders {
		s, err := b.Build(cfg, l.reg)
		if err != nil {
			BuildFailures.WithLabelValues(b.Name).Inc()
			if !b.Critical {
				slog.Warn("skipping optional sampler",
					"sampler", b.Name,
					"error", err)
				continue
			}
			return nil, errors.Wrap(errors.ErrCodeEnvironment,
				"critical sampler "+b.Name+" failed", err)
		}
		samplers = append(samplers, s)
	}
	return l.reg, nil
}
