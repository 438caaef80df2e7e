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

package netstat

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hostwatch/hostwatch/pkg/registry"
)

// snapshot holds one parsed /proc/net/dev data line: the interface name and
// its sixteen absolute counters, in file order.
type snapshot struct {
	name string
	at   time.Time

	bytesReceived             int64
	packetsReceived           int64
	receiveErrors             int64
	droppedReceivedPackets    int64
	receiveFIFOErrors         int64
	receiveFrameErrors        int64
	compressedPacketsReceived int64
	multicastFramesReceived   int64

	bytesSent                    int64
	packetsSent                  int64
	sendErrors                   int64
	droppedSentPackets           int64
	sentFIFOErrors               int64
	collisions                   int64
	carrierDrops                 int64
	compressedPacketsTransmitted int64
}

// Interface is the live per-network-interface record: the latest absolute
// counters plus per-second rates computed between successive snapshots.
type Interface struct {
	mu sync.RWMutex

	cur      snapshot
	timespan time.Duration

	bytesPerSecondReceived   int64
	bytesPerSecondSent       int64
	packetsPerSecondReceived int64
	packetsPerSecondSent     int64
}

func newInterface(snap snapshot) *Interface {
	return &Interface{cur: snap}
}

// Key returns the registry identity for this interface.
func (i *Interface) Key() registry.Key {
	return registry.Key{Type: "net-device", SubKey: "devicename", SubValue: i.Name()}
}

// Name returns the interface name.
func (i *Interface) Name() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cur.name
}

// LastUpdated returns the time of the most recent snapshot.
func (i *Interface) LastUpdated() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cur.at
}

// BytesReceived returns the absolute received-byte counter.
func (i *Interface) BytesReceived() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cur.bytesReceived
}

// BytesSent returns the absolute sent-byte counter.
func (i *Interface) BytesSent() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cur.bytesSent
}

// PacketsReceived returns the absolute received-packet counter.
func (i *Interface) PacketsReceived() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cur.packetsReceived
}

// PacketsSent returns the absolute sent-packet counter.
func (i *Interface) PacketsSent() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cur.packetsSent
}

// BytesPerSecondReceived returns the receive rate computed between the two
// most recent snapshots.
func (i *Interface) BytesPerSecondReceived() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.bytesPerSecondReceived
}

// BytesPerSecondSent returns the send rate computed between the two most
// recent snapshots.
func (i *Interface) BytesPerSecondSent() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.bytesPerSecondSent
}

// PacketsPerSecondReceived returns the received-packet rate.
func (i *Interface) PacketsPerSecondReceived() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.packetsPerSecondReceived
}

// PacketsPerSecondSent returns the sent-packet rate.
func (i *Interface) PacketsPerSecondSent() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.packetsPerSecondSent
}

// Timespan returns the interval the current rates were computed over.
func (i *Interface) Timespan() time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.timespan
}

// Values returns a flat snapshot of the record.
func (i *Interface) Values() map[string]any {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return map[string]any{
		"interfaceName":                i.cur.name,
		"bytesReceived":                i.cur.bytesReceived,
		"packetsReceived":              i.cur.packetsReceived,
		"receiveErrors":                i.cur.receiveErrors,
		"droppedReceivedPackets":       i.cur.droppedReceivedPackets,
		"receiveFIFOErrors":            i.cur.receiveFIFOErrors,
		"receiveFrameErrors":           i.cur.receiveFrameErrors,
		"compressedPacketsReceived":    i.cur.compressedPacketsReceived,
		"multicastFramesReceived":      i.cur.multicastFramesReceived,
		"bytesSent":                    i.cur.bytesSent,
		"packetsSent":                  i.cur.packetsSent,
		"sendErrors":                   i.cur.sendErrors,
		"droppedSentPackets":           i.cur.droppedSentPackets,
		"sentFIFOErrors":               i.cur.sentFIFOErrors,
		"collisions":                   i.cur.collisions,
		"carrierDrops":                 i.cur.carrierDrops,
		"compressedPacketsTransmitted": i.cur.compressedPacketsTransmitted,
		"bytesPerSecondReceived":       i.bytesPerSecondReceived,
		"bytesPerSecondSent":           i.bytesPerSecondSent,
		"packetsPerSecondReceived":     i.packetsPerSecondReceived,
		"packetsPerSecondSent":         i.packetsPerSecondSent,
		"timespanMillis":               i.timespan.Milliseconds(),
	}
}

// String renders the interface with human-readable byte rates.
func (i *Interface) String() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.timespan <= 0 {
		return fmt.Sprintf("%s (not computed)", i.cur.name)
	}
	return fmt.Sprintf("%s (rcvd=%s/s sent=%s/s sample=%dms)",
		i.cur.name,
		humanize.Bytes(uint64(i.bytesPerSecondReceived)),
		humanize.Bytes(uint64(i.bytesPerSecondSent)),
		i.timespan.Milliseconds(),
	)
}

// applyUpdate computes the per-second rates between the held snapshot and
// next, then makes next the current snapshot. The timespan is the absolute
// difference between snapshot times; counter differences are taken as
// absolute values so a counter reset produces a spurious rate for one cycle
// rather than a fault. A zero timespan yields zero rates.
func (i *Interface) applyUpdate(next snapshot) {
	i.mu.Lock()
	defer i.mu.Unlock()

	timespan := next.at.Sub(i.cur.at)
	if timespan < 0 {
		timespan = -timespan
	}
	i.timespan = timespan

	i.bytesPerSecondReceived = ratePerSecond(i.cur.bytesReceived, next.bytesReceived, timespan)
	i.bytesPerSecondSent = ratePerSecond(i.cur.bytesSent, next.bytesSent, timespan)
	i.packetsPerSecondReceived = ratePerSecond(i.cur.packetsReceived, next.packetsReceived, timespan)
	i.packetsPerSecondSent = ratePerSecond(i.cur.packetsSent, next.packetsSent, timespan)

	i.cur = next
}

func ratePerSecond(prev, next int64, timespan time.Duration) int64 {
	millis := timespan.Milliseconds()
	if millis == 0 {
		return 0
	}
	delta := next - prev
	if delta < 0 {
		delta = -delta
	}
	return int64(1000 * float64(delta) / float64(millis))
}
