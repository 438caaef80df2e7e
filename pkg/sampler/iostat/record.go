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

package iostat

import (
	"math"
	"sync"
	"time"

	"github.com/hostwatch/hostwatch/pkg/registry"
)

// measurements is one parsed iostat data row: per-second averages computed
// by iostat over the sample period. Fields that arrived with an impossibly
// large sentinel value are NaN.
type measurements struct {
	mergedReadRequestsPerSecond  float64
	mergedWriteRequestsPerSecond float64
	readRequestsPerSecond        float64
	writeRequestsPerSecond       float64
	kilobytesReadPerSecond       float64
	kilobytesWrittenPerSecond    float64
	averageRequestSizeInSectors  float64
	averageQueueLength           float64
	averageWaitTimeInMillis      float64
	averageServiceTimeInMillis   float64
	bandwidthUtilizationPercent  float64
}

// Device is the live I/O statistics record for one block device.
type Device struct {
	mu sync.RWMutex

	device             string
	samplePeriodSecond int

	cur         measurements
	lastUpdated time.Time
}

// Key returns the registry identity for this device.
func (d *Device) Key() registry.Key {
	return registry.Key{Type: "io-device", SubKey: "devicename", SubValue: d.Name()}
}

// Name returns the device name.
func (d *Device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.device
}

// SamplePeriodInSeconds returns the period iostat averages over.
func (d *Device) SamplePeriodInSeconds() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.samplePeriodSecond
}

// ReadRequestsPerSecond returns read requests issued to the device per
// second.
func (d *Device) ReadRequestsPerSecond() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cur.readRequestsPerSecond
}

// WriteRequestsPerSecond returns write requests issued to the device per
// second.
func (d *Device) WriteRequestsPerSecond() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cur.writeRequestsPerSecond
}

// MergedReadRequestsPerSecond returns merged read requests queued per
// second.
func (d *Device) MergedReadRequestsPerSecond() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cur.mergedReadRequestsPerSecond
}

// MergedWriteRequestsPerSecond returns merged write requests queued per
// second.
func (d *Device) MergedWriteRequestsPerSecond() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cur.mergedWriteRequestsPerSecond
}

// KilobytesReadPerSecond returns the device read throughput.
func (d *Device) KilobytesReadPerSecond() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cur.kilobytesReadPerSecond
}

// KilobytesWrittenPerSecond returns the device write throughput.
func (d *Device) KilobytesWrittenPerSecond() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cur.kilobytesWrittenPerSecond
}

// AverageRequestSizeInSectors returns the mean request size.
func (d *Device) AverageRequestSizeInSectors() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cur.averageRequestSizeInSectors
}

// AverageQueueLength returns the mean request queue length.
func (d *Device) AverageQueueLength() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cur.averageQueueLength
}

// AverageWaitTimeInMillis returns the mean time requests spend queued and
// being served.
func (d *Device) AverageWaitTimeInMillis() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cur.averageWaitTimeInMillis
}

// AverageServiceTimeInMillis returns the mean service time.
func (d *Device) AverageServiceTimeInMillis() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cur.averageServiceTimeInMillis
}

// BandwidthUtilizationPercent returns how saturated the device is; values
// near 100 mean the device is at capacity.
func (d *Device) BandwidthUtilizationPercent() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cur.bandwidthUtilizationPercent
}

// LastUpdated returns the time of the most recent report that included
// this device.
func (d *Device) LastUpdated() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastUpdated
}

// Values returns a flat snapshot of the record. Sentinel fields, NaN in
// the typed getters, are rendered as nil so the snapshot stays
// JSON-encodable.
func (d *Device) Values() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return map[string]any{
		"device":                       d.device,
		"samplePeriodInSeconds":        d.samplePeriodSecond,
		"mergedReadRequestsPerSecond":  numberOrNil(d.cur.mergedReadRequestsPerSecond),
		"mergedWriteRequestsPerSecond": numberOrNil(d.cur.mergedWriteRequestsPerSecond),
		"readRequestsPerSecond":        numberOrNil(d.cur.readRequestsPerSecond),
		"writeRequestsPerSecond":       numberOrNil(d.cur.writeRequestsPerSecond),
		"kilobytesReadPerSecond":       numberOrNil(d.cur.kilobytesReadPerSecond),
		"kilobytesWrittenPerSecond":    numberOrNil(d.cur.kilobytesWrittenPerSecond),
		"averageRequestSizeInSectors":  numberOrNil(d.cur.averageRequestSizeInSectors),
		"averageQueueLength":           numberOrNil(d.cur.averageQueueLength),
		"averageWaitTimeInMillis":      numberOrNil(d.cur.averageWaitTimeInMillis),
		"averageServiceTimeInMillis":   numberOrNil(d.cur.averageServiceTimeInMillis),
		"bandwidthUtilizationPercent":  numberOrNil(d.cur.bandwidthUtilizationPercent),
	}
}

func numberOrNil(f float64) any {
	if math.IsNaN(f) {
		return nil
	}
	return f
}

func (d *Device) applyUpdate(m measurements, now time.Time) {
	d.mu.Lock()
	d.cur = m
	d.lastUpdated = now
	d.mu.Unlock()
}
