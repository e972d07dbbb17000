// Copyright 2026 The gVisor Authors.
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

// Package ide implements a programmed I/O driver for legacy ATA disks.
//
// The driver turns the controller's interrupt-driven register protocol into a
// blocking call. Each channel keeps a FIFO of pending buffers whose head is
// the request the hardware is working on. Submit appends a buffer and sleeps
// until the completion interrupt for that buffer has been handled. Interrupt
// is called once per hardware interrupt on a channel; it finishes the head
// request, wakes its submitter and starts the next one.
//
// Lock order:
//
//	buf.Buf sleep lock
//	  Driver.mu
//	    waiter.Queue internal lock
package ide

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gvisor.dev/idedisk/pkg/abi/ata"
	"gvisor.dev/idedisk/pkg/buf"
	"gvisor.dev/idedisk/pkg/ilist"
	"gvisor.dev/idedisk/pkg/log"
	"gvisor.dev/idedisk/pkg/waiter"
)

// MaxSectorsPerBlock is the largest number of sectors a single request may
// transfer.
const MaxSectorsPerBlock = 7

// DefaultProbeLimit is the number of status reads spent looking for a unit.
const DefaultProbeLimit = 1000

// DefaultReadyLimit is the number of status reads spent waiting for a channel
// to become ready before the driver gives up.
const DefaultReadyLimit = 100000

// ErrMedia is the completion error of a request the device failed.
var ErrMedia = errors.New("ide: device reported error")

// PortIO is the x86 I/O port space as seen by the driver.
type PortIO interface {
	// Inb reads a byte from port.
	Inb(port uint16) uint8

	// Outb writes a byte to port.
	Outb(port uint16, v uint8)

	// Insl reads len(dst)/4 doublewords from port into dst.
	Insl(port uint16, dst []byte)

	// Outsl writes len(src)/4 doublewords from src to port.
	Outsl(port uint16, src []byte)
}

// DeviceConfig describes one attached disk.
type DeviceConfig struct {
	// ID is the device identifier, 0 through 3. Devices 0 and 1 are the
	// master and slave of the primary channel, 2 and 3 of the secondary.
	ID uint32

	// BlockSize is the size of the device's blocks in bytes. It must be a
	// multiple of the sector size.
	BlockSize int

	// Blocks is the capacity of the device in blocks.
	Blocks uint32
}

// Config configures a Driver.
type Config struct {
	// Devices lists the disks the driver may address.
	Devices []DeviceConfig

	// ReadyLimit bounds status polling while waiting for a channel. Zero
	// selects DefaultReadyLimit.
	ReadyLimit int

	// ProbeLimit bounds status polling while probing a unit. Zero selects
	// DefaultProbeLimit.
	ProbeLimit int

	// Logger receives the driver's diagnostics. Nil selects the global
	// logger.
	Logger log.Logger
}

type device struct {
	DeviceConfig
	sectorsPerBlock int
	present         bool
}

type channelStats struct {
	reads      atomic.Uint64
	writes     atomic.Uint64
	interrupts atomic.Uint64
	spurious   atomic.Uint64
	errors     atomic.Uint64
}

type channel struct {
	index   int
	base    uint16
	control uint16

	// queue holds pending requests. The front is in flight.
	queue ilist.List[*buf.Buf]

	stats channelStats
}

// Driver drives both legacy channels of an ATA controller.
type Driver struct {
	port       PortIO
	readyLimit int
	probeLimit int
	log        log.Logger
	spurious   log.Logger

	// devices is immutable after New, except for present which is
	// protected by mu.
	devices [ata.MaxDevices]*device

	// waiters are the goroutines sleeping in Submit, keyed by buffer.
	waiters waiter.Queue

	// mu protects both channels and all in-flight buffers.
	mu       sync.Mutex
	channels [ata.NumChannels]channel
}

// New returns a driver for the devices in cfg, reached through port.
//
// Devices start out absent: Probe must run before requests are submitted.
func New(port PortIO, cfg Config) (*Driver, error) {
	d := &Driver{
		port:       port,
		readyLimit: cfg.ReadyLimit,
		probeLimit: cfg.ProbeLimit,
		log:        cfg.Logger,
	}
	if d.readyLimit <= 0 {
		d.readyLimit = DefaultReadyLimit
	}
	if d.probeLimit <= 0 {
		d.probeLimit = DefaultProbeLimit
	}
	if d.log == nil {
		d.log = log.Log()
	}
	d.spurious = log.RateLimitedLogger(d.log, time.Second)

	for i := range d.channels {
		c := &d.channels[i]
		c.index = i
		c.base, c.control = ata.Ports(i)
	}

	for _, dc := range cfg.Devices {
		if dc.ID >= ata.MaxDevices {
			return nil, fmt.Errorf("device %d: id out of range [0, %d)", dc.ID, ata.MaxDevices)
		}
		if d.devices[dc.ID] != nil {
			return nil, fmt.Errorf("device %d: configured twice", dc.ID)
		}
		if dc.BlockSize <= 0 || dc.BlockSize%ata.SectorSize != 0 {
			return nil, fmt.Errorf("device %d: block size %d is not a multiple of %d", dc.ID, dc.BlockSize, ata.SectorSize)
		}
		spb := dc.BlockSize / ata.SectorSize
		if spb > MaxSectorsPerBlock {
			return nil, fmt.Errorf("device %d: block size %d needs %d sectors per request, limit is %d", dc.ID, dc.BlockSize, spb, MaxSectorsPerBlock)
		}
		if dc.Blocks == 0 {
			return nil, fmt.Errorf("device %d: zero capacity", dc.ID)
		}
		if uint64(dc.Blocks)*uint64(spb) > ata.MaxLBA {
			return nil, fmt.Errorf("device %d: %d blocks exceed 28-bit LBA", dc.ID, dc.Blocks)
		}
		d.devices[dc.ID] = &device{DeviceConfig: dc, sectorsPerBlock: spb}
	}
	return d, nil
}

// BlockSize returns the block size of dev, or zero if dev is not configured.
func (d *Driver) BlockSize(dev uint32) int {
	if dev >= ata.MaxDevices || d.devices[dev] == nil {
		return 0
	}
	return d.devices[dev].BlockSize
}

// Present returns true if dev was found by Probe.
func (d *Driver) Present(dev uint32) bool {
	if dev >= ata.MaxDevices || d.devices[dev] == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devices[dev].present
}

// ChannelStats counts events on one channel.
type ChannelStats struct {
	Reads      uint64
	Writes     uint64
	Interrupts uint64
	Spurious   uint64
	Errors     uint64
}

// Stats is a snapshot of the driver's counters, indexed by channel.
type Stats [ata.NumChannels]ChannelStats

// Stats returns the current counters.
func (d *Driver) Stats() Stats {
	var s Stats
	for i := range d.channels {
		cs := &d.channels[i].stats
		s[i] = ChannelStats{
			Reads:      cs.reads.Load(),
			Writes:     cs.writes.Load(),
			Interrupts: cs.interrupts.Load(),
			Spurious:   cs.spurious.Load(),
			Errors:     cs.errors.Load(),
		}
	}
	return s
}

// QueueLen returns the number of requests pending on channel ch, including
// the one in flight.
func (d *Driver) QueueLen(ch int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[ch].queue.Len()
}
