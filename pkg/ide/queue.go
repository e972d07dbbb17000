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
	"fmt"

	"gvisor.dev/idedisk/pkg/abi/ata"
	"gvisor.dev/idedisk/pkg/buf"
)

// enqueue appends b to its channel's queue and starts it if the channel was
// idle.
//
// Preconditions: d.mu must be locked.
func (d *Driver) enqueue(b *buf.Buf) {
	c := &d.channels[ata.Channel(b.Dev)]
	c.queue.PushBack(b)
	if c.queue.Front() == b {
		d.issue(b)
	}
}

// Interrupt handles a completion interrupt on channel ch. It finishes the
// request at the head of the channel's queue, wakes its submitter and starts
// the next pending request.
//
// An interrupt with nothing in flight is counted, logged and ignored.
func (d *Driver) Interrupt(ch int) {
	if ch < 0 || ch >= ata.NumChannels {
		panic(fmt.Sprintf("ide: interrupt on unknown channel %d", ch))
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	c := &d.channels[ch]
	c.stats.interrupts.Add(1)
	b := c.queue.PopFront()
	if b == nil {
		c.stats.spurious.Add(1)
		d.spurious.Warningf("ide: spurious interrupt on channel %d", ch)
		return
	}

	status := d.waitReady(c)
	switch {
	case ata.Failed(status):
		c.stats.errors.Add(1)
		op := "read"
		if b.Dirty() {
			op = "write"
		}
		b.Err = fmt.Errorf("%w: %s of block %d on device %d, status %#x, error %#x",
			ErrMedia, op, b.BlockNo, b.Dev, status, d.port.Inb(c.base+ata.RegError))
		d.log.Warningf("ide: %v", b.Err)
	case b.Dirty():
		b.Flags = (b.Flags | buf.FlagValid) &^ buf.FlagDirty
	default:
		d.port.Insl(c.base+ata.RegData, b.Data)
		b.Flags |= buf.FlagValid
	}
	d.waiters.Wakeup(b)

	if next := c.queue.Front(); next != nil {
		d.issue(next)
	}
}
