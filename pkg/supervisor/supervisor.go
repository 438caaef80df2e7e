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

// Package supervisor spawns and supervises external measurement commands.
// A supervised process exposes its stdout as a line stream; stderr is
// drained into the log so a wedged command never blocks on a full pipe.
package supervisor

import (
	"bufio"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hostwatch/hostwatch/pkg/errors"
)

// maxLineSize bounds a single stdout line. Measurement tools emit short
// fixed-width rows; anything larger means the command is not what we think
// it is.
const maxLineSize = 64 * 1024

// Process is a running external command whose stdout is consumed line by
// line. Kill is safe to call from any goroutine and more than once.
type Process struct {
	cmd    *exec.Cmd
	stdout *bufio.Scanner
	killed atomic.Bool

	waitOnce sync.Once
	waitErr  error
}

// Start launches the command at path with args. Stdin is closed immediately,
// stderr is streamed to the log at warn level, and stdout becomes the line
// stream returned by ReadLine. A command that cannot be started is an
// environment error.
func Start(path string, args ...string) (*Process, error) {
	cmd := exec.Command(path, args...)
	cmd.Stdin = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProcess,
			"failed to open stdout pipe for "+path, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProcess,
			"failed to open stderr pipe for "+path, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeEnvironment,
			"failed to start "+path, err)
	}

	go drainStderr(path, stderr)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 4096), maxLineSize)

	p := &Process{
		cmd:    cmd,
		stdout: scanner,
	}

	slog.Debug("started supervised process",
		slog.String("path", path),
		slog.Int("pid", cmd.Process.Pid),
	)

	return p, nil
}

// ReadLine blocks until the process emits the next stdout line, the stream
// ends, or the process is killed. End of stream after Kill reports a process
// error mentioning the kill, so callers can tell a deliberate stop from a
// command that died on its own.
func (p *Process) ReadLine() (string, error) {
	if p.stdout.Scan() {
		return p.stdout.Text(), nil
	}

	// Reap the process exactly once so the exit status is available.
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
	})

	if err := p.stdout.Err(); err != nil {
		return "", errors.Wrap(errors.ErrCodeProcess, "failed reading process output", err)
	}
	if p.killed.Load() {
		return "", errors.New(errors.ErrCodeProcess, "process was killed")
	}
	if p.waitErr != nil {
		return "", errors.Wrap(errors.ErrCodeProcess, "process exited", p.waitErr)
	}
	return "", errors.New(errors.ErrCodeProcess, "process output ended")
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Killed reports whether Kill has been called.
func (p *Process) Killed() bool {
	return p.killed.Load()
}

// Kill terminates the process. The first call sends SIGKILL and unblocks
// any goroutine sitting in ReadLine; later calls are no-ops.
func (p *Process) Kill() {
	if !p.killed.CompareAndSwap(false, true) {
		return
	}
	if err := p.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		slog.Warn("failed to kill supervised process",
			slog.Int("pid", p.cmd.Process.Pid),
			slog.Any("error", err),
		)
	}
}

// ExitedCleanly reports whether the process has been reaped and exited with
// status zero or from our own kill signal.
func (p *Process) ExitedCleanly() bool {
	if p.waitErr == nil {
		return true
	}
	var exitErr *exec.ExitError
	if stderrors.As(p.waitErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.Signaled() && p.killed.Load()
		}
	}
	return false
}

func drainStderr(path string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		slog.Warn("supervised process stderr",
			slog.String("path", path),
			slog.String("line", line),
		)
	}
}

// Watchdog kills a process unless disarmed in time. Samplers arm one around
// startup parsing so a command that produces no recognizable header is
// terminated instead of being read from forever.
type Watchdog struct {
	timer *time.Timer
}

// NewWatchdog arms a watchdog that kills p after d unless Disarm is called
// first.
func NewWatchdog(p *Process, d time.Duration) *Watchdog {
	return &Watchdog{
		timer: time.AfterFunc(d, func() {
			slog.Warn("watchdog expired, killing supervised process",
				slog.Int("pid", p.Pid()),
			)
			p.Kill()
		}),
	}
}

// Disarm cancels the pending kill. Reports false when the kill already fired.
func (w *Watchdog) Disarm() bool {
	return w.timer.Stop()
}
