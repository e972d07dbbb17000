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

// Package atadev emulates a legacy two-channel ATA controller operating in
// programmed I/O mode.
//
// The Controller implements the port space seen by a driver: the command block
// registers and device control register of each channel, with two units per
// channel. Completed commands raise the channel's interrupt line, a buffered
// channel that never blocks the sender. Media errors and wedged units can be
// injected.
package atadev

import (
	"fmt"
	"sync"
	"time"

	"gvisor.dev/idedisk/pkg/abi/ata"
	"gvisor.dev/idedisk/pkg/log"
)

// Options configures a Controller.
type Options struct {
	// Latency delays the completion of every command. While a command is
	// pending the selected unit reports BSY.
	Latency time.Duration
}

type unit struct {
	media Media

	// bad holds sectors that fail with an uncorrectable error.
	bad map[uint32]struct{}

	// wedged units report BSY forever.
	wedged bool

	status uint8
	err    uint8
}

type channel struct {
	index int
	line  chan struct{}

	mu       sync.Mutex
	units    [ata.UnitsPerChannel]unit
	selected int
	count    uint8
	lba      [3]uint8
	drive    uint8
	control  uint8

	// busy is set while a command's completion is pending.
	busy bool

	// data is the pending PIO transfer and pos the next byte of it. For a
	// write, writeLBA is the destination once data is full.
	data     []byte
	pos      int
	writing  bool
	writeLBA uint32
}

// Controller is an emulated ATA controller.
type Controller struct {
	opts     Options
	channels [ata.NumChannels]channel
}

// New returns a controller with no units attached.
func New(opts Options) *Controller {
	c := &Controller{opts: opts}
	for i := range c.channels {
		ch := &c.channels[i]
		ch.index = i
		ch.line = make(chan struct{}, 1)
	}
	return c
}

// Attach connects m as device dev. A nil m detaches the device.
func (c *Controller) Attach(dev uint32, m Media) error {
	if dev >= ata.MaxDevices {
		return fmt.Errorf("device %d out of range [0, %d)", dev, ata.MaxDevices)
	}
	ch := &c.channels[ata.Channel(dev)]
	ch.mu.Lock()
	defer ch.mu.Unlock()
	u := &ch.units[ata.Unit(dev)]
	*u = unit{media: m}
	if m != nil {
		u.status = ata.StatusDRDY
	}
	return nil
}

// Lines returns the interrupt lines of the two channels.
func (c *Controller) Lines() [ata.NumChannels]<-chan struct{} {
	return [ata.NumChannels]<-chan struct{}{c.channels[0].line, c.channels[1].line}
}

// InjectBadSector makes every command touching sector lba of dev fail.
func (c *Controller) InjectBadSector(dev uint32, lba uint32) {
	ch := &c.channels[ata.Channel(dev)]
	ch.mu.Lock()
	defer ch.mu.Unlock()
	u := &ch.units[ata.Unit(dev)]
	if u.bad == nil {
		u.bad = make(map[uint32]struct{})
	}
	u.bad[lba] = struct{}{}
}

// Wedge makes dev report BSY until Unwedge is called.
func (c *Controller) Wedge(dev uint32) {
	c.setWedged(dev, true)
}

// Unwedge undoes Wedge.
func (c *Controller) Unwedge(dev uint32) {
	c.setWedged(dev, false)
}

func (c *Controller) setWedged(dev uint32, wedged bool) {
	ch := &c.channels[ata.Channel(dev)]
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.units[ata.Unit(dev)].wedged = wedged
}

// decode maps port to a channel and a register offset. control is true for
// the device control register.
func (c *Controller) decode(port uint16) (ch *channel, reg uint16, control bool) {
	for i := range c.channels {
		base, ctl := ata.Ports(i)
		switch {
		case port == ctl:
			return &c.channels[i], 0, true
		case port >= base && port <= base+ata.RegStatus:
			return &c.channels[i], port - base, false
		}
	}
	return nil, 0, false
}

// Inb implements ide.PortIO.Inb. Unmapped ports read as 0xff.
func (c *Controller) Inb(port uint16) uint8 {
	ch, reg, control := c.decode(port)
	if ch == nil {
		return 0xff
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if control {
		// Alternate status.
		return ch.status()
	}
	switch reg {
	case ata.RegError:
		return ch.units[ch.selected].err
	case ata.RegCount:
		return ch.count
	case ata.RegLBA0, ata.RegLBA1, ata.RegLBA2:
		return ch.lba[reg-ata.RegLBA0]
	case ata.RegDrive:
		return ch.drive
	case ata.RegStatus:
		return ch.status()
	default:
		return 0xff
	}
}

// Outb implements ide.PortIO.Outb.
func (c *Controller) Outb(port uint16, v uint8) {
	ch, reg, control := c.decode(port)
	if ch == nil {
		return
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if control {
		ch.setControl(v)
		return
	}
	switch reg {
	case ata.RegCount:
		ch.count = v
	case ata.RegLBA0, ata.RegLBA1, ata.RegLBA2:
		ch.lba[reg-ata.RegLBA0] = v
	case ata.RegDrive:
		ch.drive = v
		ch.selected = int(v>>ata.DriveUnitShift) & 1
	case ata.RegCommand:
		c.command(ch, v)
	}
}

// Insl implements ide.PortIO.Insl. Reading past the pending transfer yields
// zeros.
func (c *Controller) Insl(port uint16, dst []byte) {
	ch, reg, control := c.decode(port)
	if ch == nil || control || reg != ata.RegData {
		return
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	n := 0
	if !ch.writing {
		n = copy(dst, ch.data[ch.pos:])
		ch.pos += n
	}
	clear(dst[n:])
	if !ch.writing && ch.pos >= len(ch.data) {
		ch.endTransfer()
	}
}

// Outsl implements ide.PortIO.Outsl. Data written with no write command
// pending is dropped.
func (c *Controller) Outsl(port uint16, src []byte) {
	ch, reg, control := c.decode(port)
	if ch == nil || control || reg != ata.RegData {
		return
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.writing {
		return
	}
	ch.pos += copy(ch.data[ch.pos:], src)
	if ch.pos < len(ch.data) {
		return
	}

	u := &ch.units[ch.selected]
	data, lba := ch.data, ch.writeLBA
	ch.endTransfer()
	if !ch.checkSectors(u, lba, len(data)) {
		c.complete(ch, ata.StatusDRDY|ata.StatusERR, ata.ErrorIDNF)
		return
	}
	if err := u.media.WriteSectors(lba, data); err != nil {
		log.Warningf("atadev: channel %d unit %d: %v", ch.index, ch.selected, err)
		c.complete(ch, ata.StatusDRDY|ata.StatusERR|ata.StatusDF, ata.ErrorUNC)
		return
	}
	c.complete(ch, ata.StatusDRDY, 0)
}

// status returns the status register of the selected unit.
//
// Preconditions: ch.mu must be locked.
func (ch *channel) status() uint8 {
	u := &ch.units[ch.selected]
	switch {
	case u.media == nil:
		return 0
	case u.wedged || ch.busy:
		return ata.StatusBSY
	default:
		return u.status
	}
}

// Preconditions: ch.mu must be locked.
func (ch *channel) setControl(v uint8) {
	if v&ata.ControlSRST != 0 && ch.control&ata.ControlSRST == 0 {
		ch.endTransfer()
		for i := range ch.units {
			u := &ch.units[i]
			u.err = 0
			if u.media != nil {
				u.status = ata.StatusDRDY
			}
		}
	}
	ch.control = v
}

// Preconditions: ch.mu must be locked.
func (ch *channel) endTransfer() {
	ch.data = nil
	ch.pos = 0
	ch.writing = false
	ch.units[ch.selected].status &^= ata.StatusDRQ
}

// checkSectors returns false if the transfer touches a bad sector or leaves
// the media.
//
// Preconditions: ch.mu must be locked.
func (ch *channel) checkSectors(u *unit, lba uint32, n int) bool {
	end := uint64(lba) + uint64(n/ata.SectorSize)
	if end > uint64(u.media.Sectors()) {
		return false
	}
	for s := range u.bad {
		if s >= lba && uint64(s) < end {
			return false
		}
	}
	return true
}

// command starts command cmd on the selected unit.
//
// Preconditions: ch.mu must be locked.
func (c *Controller) command(ch *channel, cmd uint8) {
	u := &ch.units[ch.selected]
	if u.media == nil || u.wedged || ch.busy {
		return
	}
	count := int(ch.count)
	if count == 0 {
		count = 256
	}
	lba := uint32(ch.lba[0]) | uint32(ch.lba[1])<<8 | uint32(ch.lba[2])<<16 | uint32(ch.drive&ata.DriveLBAMask)<<24
	n := count * ata.SectorSize
	u.err = 0
	u.status = ata.StatusDRDY

	switch cmd {
	case ata.CmdRead, ata.CmdReadMulti:
		if !ch.checkSectors(u, lba, n) {
			c.complete(ch, ata.StatusDRDY|ata.StatusERR, ata.ErrorUNC)
			return
		}
		data := make([]byte, n)
		if err := u.media.ReadSectors(lba, data); err != nil {
			log.Warningf("atadev: channel %d unit %d: %v", ch.index, ch.selected, err)
			c.complete(ch, ata.StatusDRDY|ata.StatusERR|ata.StatusDF, ata.ErrorUNC)
			return
		}
		ch.data, ch.pos, ch.writing = data, 0, false
		c.complete(ch, ata.StatusDRDY|ata.StatusDRQ, 0)
	case ata.CmdWrite, ata.CmdWriteMulti:
		ch.data, ch.pos, ch.writing, ch.writeLBA = make([]byte, n), 0, true, lba
		u.status = ata.StatusDRDY | ata.StatusDRQ
	default:
		c.complete(ch, ata.StatusDRDY|ata.StatusERR, ata.ErrorABRT)
	}
}

// complete finishes the current command of the selected unit with the given
// status and error registers, then raises the channel's interrupt. With a
// latency configured the unit is busy until then.
//
// Preconditions: ch.mu must be locked.
func (c *Controller) complete(ch *channel, status, errReg uint8) {
	u := &ch.units[ch.selected]
	finish := func() {
		u.status = status
		u.err = errReg
		ch.busy = false
		ch.raise()
	}
	if c.opts.Latency <= 0 {
		finish()
		return
	}
	ch.busy = true
	time.AfterFunc(c.opts.Latency, func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		finish()
	})
}

// raise signals the interrupt line unless interrupts are masked. A pending
// interrupt absorbs the new one.
//
// Preconditions: ch.mu must be locked.
func (ch *channel) raise() {
	if ch.control&ata.ControlNIEN != 0 {
		return
	}
	select {
	case ch.line <- struct{}{}:
	default:
	}
}
