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

package diskspace

import (
	"sync"
	"time"

	"github.com/hostwatch/hostwatch/pkg/registry"
)

// usage holds one parsed df row. Values are unitless: megabytes for the
// block report, inode counts for the inode report. A nil value means the
// field did not parse.
type usage struct {
	total          *int64
	used           *int64
	available      *int64
	percentageUsed *int64
}

// FileSystem is the live record for one mounted filesystem, combining the
// block and inode df reports. Records are identified by mount point.
type FileSystem struct {
	mu sync.RWMutex

	deviceName string
	fsType     string
	mountPoint string

	blocks usage
	inodes usage

	lastUpdated time.Time
}

// Key returns the registry identity for this filesystem. The identifying
// value is the mount point, which is stable across device renames.
func (f *FileSystem) Key() registry.Key {
	return registry.Key{Type: "filesystem", SubKey: "devicename", SubValue: f.MountPoint()}
}

// DeviceName returns the backing device.
func (f *FileSystem) DeviceName() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.deviceName
}

// FileSystemType returns the filesystem type from the mount table, or an
// empty string when the device was absent from it.
func (f *FileSystem) FileSystemType() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fsType
}

// MountPoint returns where the filesystem is mounted.
func (f *FileSystem) MountPoint() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mountPoint
}

// TotalMegabytes returns the filesystem size, or false when unparsed.
func (f *FileSystem) TotalMegabytes() (int64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return deref(f.blocks.total)
}

// UsedMegabytes returns the used space, or false when unparsed.
func (f *FileSystem) UsedMegabytes() (int64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return deref(f.blocks.used)
}

// AvailableMegabytes returns the available space, or false when unparsed.
func (f *FileSystem) AvailableMegabytes() (int64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return deref(f.blocks.available)
}

// PercentageSpaceUsed returns the space usage percentage in [0,100], or
// false when unparsed.
func (f *FileSystem) PercentageSpaceUsed() (int64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return deref(f.blocks.percentageUsed)
}

// TotalInodes returns the inode capacity, or false when unparsed.
func (f *FileSystem) TotalInodes() (int64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return deref(f.inodes.total)
}

// UsedInodes returns the used inode count, or false when unparsed.
func (f *FileSystem) UsedInodes() (int64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return deref(f.inodes.used)
}

// AvailableInodes returns the free inode count, or false when unparsed.
func (f *FileSystem) AvailableInodes() (int64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return deref(f.inodes.available)
}

// PercentageInodesUsed returns the inode usage percentage in [0,100], or
// false when unparsed.
func (f *FileSystem) PercentageInodesUsed() (int64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return deref(f.inodes.percentageUsed)
}

// LastUpdated returns the time of the most recent df report that included
// this filesystem.
func (f *FileSystem) LastUpdated() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastUpdated
}

// Values returns a flat snapshot of the record. Unparsed fields are nil.
func (f *FileSystem) Values() map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return map[string]any{
		"deviceName":           f.deviceName,
		"filesystemType":       f.fsType,
		"mountPoint":           f.mountPoint,
		"totalMegabytes":       valueOrNil(f.blocks.total),
		"usedMegabytes":        valueOrNil(f.blocks.used),
		"availableMegabytes":   valueOrNil(f.blocks.available),
		"percentageSpaceUsed":  valueOrNil(f.blocks.percentageUsed),
		"totalInodes":          valueOrNil(f.inodes.total),
		"usedInodes":           valueOrNil(f.inodes.used),
		"availableInodes":      valueOrNil(f.inodes.available),
		"percentageInodesUsed": valueOrNil(f.inodes.percentageUsed),
	}
}

// applyUpdate copies the mutable fields from next under the record lock.
// The mount point is the identity and never changes.
func (f *FileSystem) applyUpdate(next *FileSystem) {
	f.mu.Lock()
	f.deviceName = next.deviceName
	f.fsType = next.fsType
	f.blocks = next.blocks
	f.inodes = next.inodes
	f.lastUpdated = next.lastUpdated
	f.mu.Unlock()
}

func deref(v *int64) (int64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func valueOrNil(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
