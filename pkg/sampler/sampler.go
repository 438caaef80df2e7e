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

// Package sampler provides the shared lifecycle machinery for measurement
// sources. Each source wraps a Runner: a single-use background loop that
// moves through Created, Running, Stopping and Stopped, ticks on a fixed
// period (or back to back for blocking stream reads), and shuts itself down
// on fatal errors.
package sampler

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hostwatch/hostwatch/pkg/errors"
)

// State is a sampler lifecycle state. Transitions only move forward:
// Created -> Running -> Stopping -> Stopped, with Running -> Stopped on
// fatal self-shutdown. A stopped sampler cannot be restarted.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Sampler is a background measurement source.
type Sampler interface {
	// Name returns the source name used in logs and metrics.
	Name() string
	// State returns the current lifecycle state.
	State() State
	// Start begins background sampling. It fails unless the sampler is
	// freshly constructed.
	Start() error
	// Stop requests shutdown and waits a bounded time for the loop to
	// exit. Stopping an already stopped sampler is a no-op.
	Stop() error
}

// Tick is one sampling cycle. Returning an error is fatal: the loop logs
// it and shuts the sampler down. Recoverable problems (a malformed line, a
// filtered device) are handled inside the tick and reported as nil.
type Tick func() error

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithImmediate makes the loop call the tick back to back instead of on a
// period ticker. Stream samplers use this: their tick is a blocking read on
// the subprocess, so the external command provides the pacing.
func WithImmediate() RunnerOption {
	return func(r *Runner) {
		r.immediate = true
	}
}

// WithOnStopping registers a hook invoked when Stop begins, before waiting
// for the loop to exit. Stream samplers kill their subprocess here to
// unblock the pending read.
func WithOnStopping(fn func()) RunnerOption {
	return func(r *Runner) {
		r.onStopping = fn
	}
}

// WithJoinTimeout overrides the bounded wait Stop performs for the loop to
// exit. Default is four periods.
func WithJoinTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.joinTimeout = d
	}
}

// Runner drives a sampler's background loop and owns its lifecycle state.
type Runner struct {
	name      string
	period    time.Duration
	tick      Tick
	immediate bool

	onStopping  func()
	joinTimeout time.Duration

	state atomic.Int32
	stop  chan struct{}
	done  chan struct{}
}

// NewRunner creates a runner in the Created state. The tick is not invoked
// until Start; samplers that need a verification pass run it synchronously
// in their own constructors first.
func NewRunner(name string, period time.Duration, tick Tick, opts ...RunnerOption) *Runner {
	r := &Runner{
		name:        name,
		period:      period,
		tick:        tick,
		joinTimeout: 4 * period,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the source name.
func (r *Runner) Name() string {
	return r.name
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Period returns the configured sampling period.
func (r *Runner) Period() time.Duration {
	return r.period
}

// Start begins the background loop. Only a Created runner can be started;
// a second Start, or a Start after Stop, is an internal error.
func (r *Runner) Start() error {
	if !r.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return errors.Newf(errors.ErrCodeInternal,
			"sampler %s cannot start from state %s", r.name, r.State())
	}

	slog.Info("starting sampler",
		slog.String("sampler", r.name),
		slog.Duration("period", r.period),
	)

	go r.loop()
	return nil
}

// Stop requests shutdown and waits up to the join timeout for the loop to
// exit. Calling Stop on a runner that already stopped (including fatal
// self-shutdown) returns nil. Only the first Stop performs the shutdown.
func (r *Runner) Stop() error {
	for {
		switch r.State() {
		case StateStopped:
			return nil
		case StateStopping:
			return r.join()
		case StateCreated:
			if r.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
				// never ran, but constructors may hold resources
				// (a verified subprocess) the hook releases
				if r.onStopping != nil {
					r.onStopping()
				}
				close(r.done)
				return nil
			}
		case StateRunning:
			if !r.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
				continue
			}
			slog.Info("stopping sampler", slog.String("sampler", r.name))
			close(r.stop)
			if r.onStopping != nil {
				r.onStopping()
			}
			return r.join()
		}
	}
}

func (r *Runner) join() error {
	select {
	case <-r.done:
		return nil
	case <-time.After(r.joinTimeout):
		return errors.Newf(errors.ErrCodeInternal,
			"sampler %s did not stop within %s", r.name, r.joinTimeout)
	}
}

func (r *Runner) loop() {
	defer func() {
		r.state.Store(int32(StateStopped))
		close(r.done)
		slog.Info("sampler stopped", slog.String("sampler", r.name))
	}()

	if r.immediate {
		r.loopImmediate()
		return
	}

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if !r.runTick() {
				return
			}
		}
	}
}

func (r *Runner) loopImmediate() {
	for {
		select {
		case <-r.stop:
			return
		default:
		}
		if !r.runTick() {
			return
		}
	}
}

// runTick executes one cycle and reports whether the loop should continue.
func (r *Runner) runTick() bool {
	TicksTotal.WithLabelValues(r.name).Inc()

	if err := r.tick(); err != nil {
		if r.State() == StateStopping {
			// the tick was interrupted by our own shutdown
			return false
		}
		slog.Error("sampler tick failed, shutting down",
			slog.String("sampler", r.name),
			slog.Any("error", err),
		)
		FatalShutdowns.WithLabelValues(r.name).Inc()
		return false
	}
	return true
}
