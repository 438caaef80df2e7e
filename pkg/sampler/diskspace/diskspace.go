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

// Package diskspace samples filesystem usage by running df twice per cycle,
// once for block usage in megabytes and once for inodes, joining the rows
// with filesystem types read from the mount table. Pseudo and removable
// filesystems are excluded by configurable filters.
package diskspace

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
	"github.com/hostwatch/hostwatch/pkg/supervisor"
)

const (
	// SourceName identifies this sampler in logs and metrics.
	SourceName = "disk-space"

	// KeyPath sets the path to the df binary.
	KeyPath = "hostwatch.linux.df.df.path"
	// KeyBlockOpts sets the options for the block usage run. The default
	// asks for POSIX output in one-megabyte blocks.
	KeyBlockOpts = "hostwatch.linux.df.df.block.opts"
	// KeyInodeOpts sets the options for the inode usage run.
	KeyInodeOpts = "hostwatch.linux.df.df.inode.opts"
	// KeyPeriod sets the seconds between df runs.
	KeyPeriod = "hostwatch.linux.df.df.period"
	// KeyDeviceNameFilter lists device names to exclude, comma separated.
	KeyDeviceNameFilter = "hostwatch.linux.df.df.deviceNameFilter"
	// KeyFsTypeFilter lists filesystem types to exclude, comma separated.
	KeyFsTypeFilter = "hostwatch.linux.df.df.fsTypeFilter"
	// KeyMtabPath sets the mount table read for filesystem types.
	KeyMtabPath = "hostwatch.linux.df.mtab.path"

	DefaultPath             = "df"
	DefaultBlockOpts        = "-P -B M"
	DefaultInodeOpts        = "-P -i"
	DefaultPeriod           = 10
	DefaultDeviceNameFilter = ""
	DefaultFsTypeFilter     = "iso9660,proc,sysfs,tmpfs"
	DefaultMtabPath         = "/etc/mtab"
)

var (
	blockHeaderPattern = regexp.MustCompile(
		`^\s*Filesystem\s+\d+-blocks\s+Used\s+Available\s+Capacity\s+Mounted on\s*$`)
	inodeHeaderPattern = regexp.MustCompile(
		`^\s*Filesystem\s+Inodes\s+IUsed\s+IFree\s+IUse%\s+Mounted on\s*$`)
	// device, total, used, available, percentage, mount point (which may
	// contain inner spaces)
	dataPattern = regexp.MustCompile(
		`^\s*(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S(.*?\S)?)\s*$`)
	// sample mtab line: /dev/sda2 / ext3 rw 0 0
	mtabPattern = regexp.MustCompile(
		`^\s*(\S+)\s+\S(.*?\S)?\s+(\S+)\s+\S+\s+\d+\s+\d+\s*$`)

	alphaRunPattern = regexp.MustCompile(`[A-Za-z]`)
)

// row is one parsed df line keyed by device name.
type row struct {
	deviceName string
	mountPoint string
	usage      usage
}

// Sampler runs the df pair on a fixed period.
type Sampler struct {
	*sampler.Runner

	dfPath    string
	blockArgs []string
	inodeArgs []string
	mtabPath  string

	deviceNameFilter map[string]bool
	fsTypeFilter     map[string]bool

	reader *pseudofs.Reader
	reg    *registry.Registry
	warner *sampler.LineWarner

	// live records keyed by mount point; only the sampler goroutine
	// mutates the map
	live map[string]*FileSystem

	freshness time.Time

	// deadline bounds each df run with a kill watchdog
	deadline time.Duration
}

// New constructs the diskspace sampler and performs one synchronous df
// cycle to surface environment problems on the calling goroutine.
func New(cfg config.Map, reg *registry.Registry) (*Sampler, error) {
	period, err := cfg.Seconds(KeyPeriod, DefaultPeriod)
	if err != nil {
		return nil, err
	}

	s := &Sampler{
		dfPath:           cfg.String(KeyPath, DefaultPath),
		blockArgs:        cfg.Fields(KeyBlockOpts, DefaultBlockOpts),
		inodeArgs:        cfg.Fields(KeyInodeOpts, DefaultInodeOpts),
		mtabPath:         cfg.String(KeyMtabPath, DefaultMtabPath),
		deviceNameFilter: cfg.Set(KeyDeviceNameFilter, DefaultDeviceNameFilter),
		fsTypeFilter:     cfg.Set(KeyFsTypeFilter, DefaultFsTypeFilter),
		reader:           pseudofs.NewReader(),
		reg:              reg,
		warner:           sampler.NewLineWarner(SourceName),
		live:             make(map[string]*FileSystem),
		freshness:        time.Now(),
		deadline:         4 * period,
	}

	if err := s.tick(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeEnvironment,
			"disk space verification cycle failed", err)
	}

	s.Runner = sampler.NewRunner(SourceName, period, s.tick)
	return s, nil
}

// FileSystems returns the live records, keyed by mount point.
func (s *Sampler) FileSystems() map[string]*FileSystem {
	return s.live
}

func (s *Sampler) tick() error {
	// reap before reading: anything not seen since the previous cycle
	// has been unmounted
	s.sweep()

	fsTypes, err := s.readFileSystemTypes()
	if err != nil {
		return err
	}
	blocks, err := s.runDf(s.blockArgs, blockHeaderPattern)
	if err != nil {
		return err
	}
	inodes, err := s.runDf(s.inodeArgs, inodeHeaderPattern)
	if err != nil {
		return err
	}

	s.update(fsTypes, blocks, inodes)
	return nil
}

func (s *Sampler) sweep() {
	removed := registry.SweepStale(s.reg, s.live, s.freshness)
	for _, mount := range removed {
		slog.Info("filesystem is now considered stale (unmounted?)",
			slog.String("sampler", SourceName),
			slog.String("mountPoint", mount),
		)
		sampler.RecordsReaped.WithLabelValues(SourceName).Inc()
	}
	s.freshness = time.Now()
}

// runDf executes one df command and parses its output into rows keyed by
// device name. A header that does not match is an environment error: the df
// on this host does not produce the output this parser was built for.
func (s *Sampler) runDf(args []string, header *regexp.Regexp) (map[string]row, error) {
	proc, err := supervisor.Start(s.dfPath, args...)
	if err != nil {
		return nil, err
	}
	defer proc.Kill()

	w := supervisor.NewWatchdog(proc, s.deadline)
	defer w.Disarm()

	line, err := proc.ReadLine()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEnvironment,
			"no output from df", err)
	}
	if !header.MatchString(line) {
		return nil, errors.New(errors.ErrCodeEnvironment,
			"unexpected df header: "+line)
	}

	rows := make(map[string]row)
	for {
		line, err = proc.ReadLine()
		if err != nil {
			// only a clean df exit marks the end of the report; a kill or
			// a non-zero exit means the row set is truncated and must not
			// be used for the stale sweep
			if proc.Killed() || !proc.ExitedCleanly() {
				return nil, errors.Wrap(errors.ErrCodeProcess,
					"df terminated before completing its report", err)
			}
			break
		}
		m := dataPattern.FindStringSubmatch(line)
		if m == nil {
			s.warner.Warn("df data line did not match", line)
			continue
		}
		r := row{
			deviceName: m[1],
			mountPoint: m[6],
			usage: usage{
				total:          parseSize(m[2]),
				used:           parseSize(m[3]),
				available:      parseSize(m[4]),
				percentageUsed: s.parsePercent(m[5]),
			},
		}
		rows[r.deviceName] = r
	}
	return rows, nil
}

func (s *Sampler) update(fsTypes map[string]string, blocks, inodes map[string]row) {
	for deviceName, block := range blocks {
		if s.deviceNameFilter[deviceName] {
			continue
		}
		fsType, ok := fsTypes[deviceName]
		if !ok {
			slog.Warn("device missing from mount table",
				slog.String("sampler", SourceName),
				slog.String("device", deviceName),
			)
		}
		if s.fsTypeFilter[fsType] {
			continue
		}

		next := &FileSystem{
			deviceName:  deviceName,
			fsType:      fsType,
			mountPoint:  block.mountPoint,
			blocks:      block.usage,
			lastUpdated: time.Now(),
		}
		if inode, ok := inodes[deviceName]; ok {
			next.inodes = inode.usage
		} else {
			slog.Warn("device missing from inode report",
				slog.String("sampler", SourceName),
				slog.String("device", deviceName),
			)
		}

		if rec, ok := s.live[next.mountPoint]; ok {
			rec.applyUpdate(next)
			continue
		}
		s.live[next.mountPoint] = next
		s.reg.Publish(next)
		sampler.RecordsPublished.WithLabelValues(SourceName).Inc()
	}
}

// readFileSystemTypes maps device names to filesystem types by parsing the
// mount table. Lines that do not look like mount entries are skipped.
func (s *Sampler) readFileSystemTypes() (map[string]string, error) {
	lines, err := s.reader.Lines(s.mtabPath)
	if err != nil {
		return nil, err
	}
	fsTypes := make(map[string]string, len(lines))
	for _, line := range lines {
		if m := mtabPattern.FindStringSubmatch(line); m != nil {
			fsTypes[m[1]] = m[3]
		}
	}
	return fsTypes, nil
}

// parseSize parses a df size value, tolerating unit suffixes such as
// "19689M". Returns nil when the value does not parse.
func parseSize(v string) *int64 {
	n, err := strconv.ParseInt(alphaRunPattern.ReplaceAllString(v, ""), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// parsePercent parses a "29%"-style value and clamps it to [0,100],
// warning when df reports something outside that range.
func (s *Sampler) parsePercent(v string) *int64 {
	n, err := strconv.ParseInt(strings.ReplaceAll(v, "%", ""), 10, 64)
	if err != nil {
		return nil
	}
	if n < 0 || n > 100 {
		s.warner.Warn("percentage outside [0,100], clamping", v)
		if n < 0 {
			n = 0
		} else {
			n = 100
		}
	}
	return &n
}
