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

package ide

import (
	"errors"
	"fmt"

	"github.com/cenkalti/backoff"
	"gvisor.dev/idedisk/pkg/abi/ata"
	"gvisor.dev/idedisk/pkg/buf"
	"gvisor.dev/idedisk/pkg/log"
)

var errNotReady = errors.New("channel busy")

// poll calls cond up to limit times, without sleeping, until it returns true.
func poll(limit int, cond func() bool) bool {
	op := func() error {
		if cond() {
			return nil
		}
		return errNotReady
	}
	b := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(limit-1))
	return backoff.Retry(op, b) == nil
}

// waitReady polls the status register of c until the selected unit is ready
// and returns the last status read. It panics if the channel stays busy.
//
// Preconditions: d.mu must be locked.
func (d *Driver) waitReady(c *channel) uint8 {
	var status uint8
	if !poll(d.readyLimit, func() bool {
		status = d.port.Inb(c.base + ata.RegStatus)
		return ata.Ready(status)
	}) {
		panic(fmt.Sprintf("ide: channel %d not ready after %d polls, status %#x", c.index, d.readyLimit, status))
	}
	return status
}

// issue programs the controller to start the request b. A write request
// transfers its payload before issue returns; a read completes under
// interrupt.
//
// Preconditions: d.mu must be locked, and b must be the front of its channel's
// queue.
func (d *Driver) issue(b *buf.Buf) {
	if b == nil {
		panic("ide: issue of nil buffer")
	}
	dev := d.devices[b.Dev]
	if b.BlockNo >= dev.Blocks {
		panic(fmt.Sprintf("ide: block %d beyond capacity %d of device %d", b.BlockNo, dev.Blocks, b.Dev))
	}
	spb := dev.sectorsPerBlock
	if spb > MaxSectorsPerBlock {
		panic(fmt.Sprintf("ide: %d sectors per block exceeds %d", spb, MaxSectorsPerBlock))
	}
	sector := uint64(b.BlockNo) * uint64(spb)
	if sector+uint64(spb) > ata.MaxLBA {
		panic(fmt.Sprintf("ide: sector %d of device %d overflows 28-bit LBA", sector, b.Dev))
	}

	c := &d.channels[ata.Channel(b.Dev)]
	unit := ata.Unit(b.Dev)
	lba := uint32(sector)

	// Select the unit first so that the ready wait observes its status.
	d.port.Outb(c.base+ata.RegDrive, ata.DriveSelect(unit, lba))
	d.waitReady(c)

	// Enable interrupts.
	d.port.Outb(c.control, 0)

	d.port.Outb(c.base+ata.RegCount, uint8(spb))
	d.port.Outb(c.base+ata.RegLBA0, uint8(lba))
	d.port.Outb(c.base+ata.RegLBA1, uint8(lba>>8))
	d.port.Outb(c.base+ata.RegLBA2, uint8(lba>>16))
	d.port.Outb(c.base+ata.RegDrive, ata.DriveSelect(unit, lba))

	readCmd, writeCmd := uint8(ata.CmdRead), uint8(ata.CmdWrite)
	if spb > 1 {
		readCmd, writeCmd = ata.CmdReadMulti, ata.CmdWriteMulti
	}
	if b.Dirty() {
		c.stats.writes.Add(1)
		d.port.Outb(c.base+ata.RegCommand, writeCmd)
		d.port.Outsl(c.base+ata.RegData, b.Data)
	} else {
		c.stats.reads.Add(1)
		d.port.Outb(c.base+ata.RegCommand, readCmd)
	}
	if d.log.IsLogging(log.Debug) {
		d.log.Debugf("ide: issued %v on channel %d, lba %d x %d", b, c.index, lba, spb)
	}
}
