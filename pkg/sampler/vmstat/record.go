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

package vmstat

import (
	"sync"
	"time"

	"github.com/hostwatch/hostwatch/pkg/registry"
)

// reading is one parsed vmstat data row.
type reading struct {
	runningProcesses  int64
	sleepingProcesses int64

	swappedMemory int64
	freeMemory    int64
	buffersMemory int64
	cacheMemory   int64
	swapIn        int64
	swapOut       int64

	blocksRead    int64
	blocksWritten int64

	interrupts      int64
	contextSwitches int64

	userPercentCPU int64
	sysPercentCPU  int64
	idlePercentCPU int64
	waitPercentCPU int64

	// stolenFromVMCPU is only present on vmstat versions that report the
	// hypervisor steal column.
	stolenFromVMCPU int64
	hasStolen       bool
}

// VMStat is the live singleton virtual-memory statistics record.
type VMStat struct {
	mu          sync.RWMutex
	cur         reading
	lastUpdated time.Time
}

// Key returns the registry identity for the singleton vmstat record.
func (v *VMStat) Key() registry.Key {
	return registry.Key{Type: "VMStat"}
}

// RunningProcesses returns the runnable process count.
func (v *VMStat) RunningProcesses() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.runningProcesses
}

// SleepingProcesses returns the count of processes in uninterruptible sleep.
func (v *VMStat) SleepingProcesses() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.sleepingProcesses
}

// SwappedMemory returns the amount of virtual memory used.
func (v *VMStat) SwappedMemory() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.swappedMemory
}

// FreeMemory returns the amount of idle memory.
func (v *VMStat) FreeMemory() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.freeMemory
}

// BuffersMemory returns the amount of memory used as buffers.
func (v *VMStat) BuffersMemory() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.buffersMemory
}

// CacheMemory returns the amount of memory used as cache.
func (v *VMStat) CacheMemory() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.cacheMemory
}

// SwapIn returns memory swapped in from disk per second.
func (v *VMStat) SwapIn() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.swapIn
}

// SwapOut returns memory swapped out to disk per second.
func (v *VMStat) SwapOut() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.swapOut
}

// BlocksRead returns blocks received from block devices per second.
func (v *VMStat) BlocksRead() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.blocksRead
}

// BlocksWritten returns blocks sent to block devices per second.
func (v *VMStat) BlocksWritten() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.blocksWritten
}

// Interrupts returns interrupts per second.
func (v *VMStat) Interrupts() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.interrupts
}

// ContextSwitches returns context switches per second.
func (v *VMStat) ContextSwitches() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.contextSwitches
}

// UserPercentCPU returns time spent running user code, in [0,100].
func (v *VMStat) UserPercentCPU() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.userPercentCPU
}

// SysPercentCPU returns time spent running kernel code, in [0,100].
func (v *VMStat) SysPercentCPU() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.sysPercentCPU
}

// IdlePercentCPU returns idle time, in [0,100].
func (v *VMStat) IdlePercentCPU() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.idlePercentCPU
}

// WaitPercentCPU returns time spent waiting for I/O, in [0,100].
func (v *VMStat) WaitPercentCPU() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.waitPercentCPU
}

// StolenFromVMCPU returns time stolen by the hypervisor, in [0,100]. The
// second value is false on vmstat versions without the steal column.
func (v *VMStat) StolenFromVMCPU() (int64, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur.stolenFromVMCPU, v.cur.hasStolen
}

// LastUpdated returns the time of the most recent reading.
func (v *VMStat) LastUpdated() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastUpdated
}

// Values returns a flat snapshot of the record.
func (v *VMStat) Values() map[string]any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	values := map[string]any{
		"runningProcesses":  v.cur.runningProcesses,
		"sleepingProcesses": v.cur.sleepingProcesses,
		"swappedMemory":     v.cur.swappedMemory,
		"freeMemory":        v.cur.freeMemory,
		"buffersMemory":     v.cur.buffersMemory,
		"cacheMemory":       v.cur.cacheMemory,
		"swapIn":            v.cur.swapIn,
		"swapOut":           v.cur.swapOut,
		"blocksRead":        v.cur.blocksRead,
		"blocksWritten":     v.cur.blocksWritten,
		"interrupts":        v.cur.interrupts,
		"contextSwitches":   v.cur.contextSwitches,
		"userPercentCPU":    v.cur.userPercentCPU,
		"sysPercentCPU":     v.cur.sysPercentCPU,
		"idlePercentCPU":    v.cur.idlePercentCPU,
		"waitPercentCPU":    v.cur.waitPercentCPU,
	}
	if v.cur.hasStolen {
		values["stolenFromVMCPU"] = v.cur.stolenFromVMCPU
	}
	return values
}

func (v *VMStat) applyUpdate(next reading, now time.Time) {
	v.mu.Lock()
	v.cur = next
	v.lastUpdated = now
	v.mu.Unlock()
}
