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

// Package netstat samples per-interface network counters from /proc/net/dev
// and derives per-second rates between successive readings. Interfaces that
// disappear from the file are reaped on the next cycle.
package netstat

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hostwatch/hostwatch/pkg/config"
	"github.com/hostwatch/hostwatch/pkg/errors"
	"github.com/hostwatch/hostwatch/pkg/pseudofs"
	"github.com/hostwatch/hostwatch/pkg/registry"
	"github.com/hostwatch/hostwatch/pkg/sampler"
)

const (
	// SourceName identifies this sampler in logs and metrics.
	SourceName = "net-stat"

	// KeyPeriodMillis sets the milliseconds between reads of the data file.
	KeyPeriodMillis = "hostwatch.linux.netstat.periodMillis"
	// KeyPath overrides the network statistics pseudo-file.
	KeyPath = "hostwatch.linux.netstat.path"

	DefaultPeriodMillis = 2000
	DefaultPath         = "/proc/net/dev"

	counterFields = 16
)

var (
	// first header line: "Inter-|   Receive          |  Transmit"
	firstLinePattern = regexp.MustCompile(`^\s*Inter-\|\s*Receive\s*\|\s*Transmit\s*$`)
	// second header line carries the per-counter column names
	secondLinePattern = regexp.MustCompile(
		`\s*face\s*\|\s*bytes\s*packets\s*errs\s*drop\s*fifo\s*frame\s*compressed\s*` +
			`multicast\s*\|\s*bytes\s*packets\s*errs\s*drop\s*fifo\s*colls\s*carrier\s*` +
			`compressed\s*$`)
	dataPattern = buildDataPattern()
)

// buildDataPattern assembles the 16-counter data line regex: an interface
// name with a trailing colon followed by 16 whitespace-separated integers.
func buildDataPattern() *regexp.Regexp {
	var b strings.Builder
	b.WriteString(`^\s*(\S+):\s*`)
	for i := 0; i < counterFields; i++ {
		b.WriteString(`(\d+)`)
		if i < counterFields-1 {
			b.WriteString(`\s+`)
		} else {
			b.WriteString(`\s*`)
		}
	}
	b.WriteString(`$`)
	return regexp.MustCompile(b.String())
}

// Sampler reads the network statistics file on a fixed period.
type Sampler struct {
	*sampler.Runner

	reader *pseudofs.Reader
	path   string
	reg    *registry.Registry
	warner *sampler.LineWarner

	// live is the sampler's own view of published interfaces, keyed by
	// interface name. Only the sampler goroutine mutates it.
	live map[string]*Interface

	// freshness marks the start of the previous report cycle; records
	// not updated since then are reaped when the next cycle begins.
	freshness time.Time
}

// New constructs the netstat sampler and takes one synchronous reading to
// verify the statistics file is present and parseable.
func New(cfg config.Map, reg *registry.Registry) (*Sampler, error) {
	period, err := cfg.Millis(KeyPeriodMillis, DefaultPeriodMillis)
	if err != nil {
		return nil, err
	}

	s := &Sampler{
		reader:    pseudofs.NewReader(),
		path:      cfg.String(KeyPath, DefaultPath),
		reg:       reg,
		warner:    sampler.NewLineWarner(SourceName),
		live:      make(map[string]*Interface),
		freshness: time.Now(),
	}

	if err := s.reader.Verify(s.path); err != nil {
		return nil, err
	}
	if err := s.tick(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeEnvironment,
			"network statistics verification reading failed", err)
	}

	s.Runner = sampler.NewRunner(SourceName, period, s.tick)
	return s, nil
}

// Interfaces returns the live records, keyed by interface name.
func (s *Sampler) Interfaces() map[string]*Interface {
	return s.live
}

func (s *Sampler) tick() error {
	lines, err := s.reader.Lines(s.path)
	if err != nil {
		return err
	}
	for _, line := range lines {
		s.processLine(line)
	}
	return nil
}

func (s *Sampler) processLine(line string) {
	if firstLinePattern.MatchString(line) {
		// a new report cycle: anything not updated since the previous
		// one belongs to a removed interface
		s.sweep()
		return
	}
	if secondLinePattern.MatchString(line) {
		return
	}

	m := dataPattern.FindStringSubmatch(line)
	if m == nil {
		s.warner.Warn("network statistics line did not match", line)
		return
	}

	// stamped after the sweep so same-cycle updates are always fresher
	// than the freshness mark
	snap, err := parseSnapshot(m, time.Now())
	if err != nil {
		s.warner.Warn("unparseable network counter", line)
		return
	}
	s.update(snap)
}

func (s *Sampler) update(snap snapshot) {
	iface, ok := s.live[snap.name]
	if !ok {
		iface = newInterface(snap)
		s.live[snap.name] = iface
		s.reg.Publish(iface)
		sampler.RecordsPublished.WithLabelValues(SourceName).Inc()
		return
	}
	iface.applyUpdate(snap)
}

func (s *Sampler) sweep() {
	removed := registry.SweepStale(s.reg, s.live, s.freshness)
	for _, name := range removed {
		slog.Info("network interface is now considered stale (device removed?)",
			slog.String("sampler", SourceName),
			slog.String("interface", name),
		)
		sampler.RecordsReaped.WithLabelValues(SourceName).Inc()
	}
	s.freshness = time.Now()
}

// parseSnapshot converts the 17 match groups (name plus 16 counters) into a
// snapshot taken at now.
func parseSnapshot(m []string, now time.Time) (snapshot, error) {
	counters := make([]int64, counterFields)
	for i := 0; i < counterFields; i++ {
		n, err := strconv.ParseInt(m[i+2], 10, 64)
		if err != nil {
			return snapshot{}, err
		}
		counters[i] = n
	}
	return snapshot{
		name: m[1],
		at:   now,

		bytesReceived:             counters[0],
		packetsReceived:           counters[1],
		receiveErrors:             counters[2],
		droppedReceivedPackets:    counters[3],
		receiveFIFOErrors:         counters[4],
		receiveFrameErrors:        counters[5],
		compressedPacketsReceived: counters[6],
		multicastFramesReceived:   counters[7],

		bytesSent:                    counters[8],
		packetsSent:                  counters[9],
		sendErrors:                   counters[10],
		droppedSentPackets:           counters[11],
		sentFIFOErrors:               counters[12],
		collisions:                   counters[13],
		carrierDrops:                 counters[14],
		compressedPacketsTransmitted: counters[15],
	}, nil
}
