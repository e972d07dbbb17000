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
	"gvisor.dev/idedisk/pkg/abi/ata"
)

// Probe looks for every configured device and returns the ids of those that
// answered. A unit is present if its status register reads non-zero within
// the probe limit. Each channel is left with unit 0 selected.
//
// Probe must not run concurrently with requests.
func (d *Driver) Probe() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	var found []uint32
	for id, dev := range d.devices {
		if dev == nil {
			continue
		}
		c := &d.channels[ata.Channel(uint32(id))]
		d.port.Outb(c.base+ata.RegDrive, ata.DriveSelect(ata.Unit(uint32(id)), 0))
		dev.present = poll(d.probeLimit, func() bool {
			return d.port.Inb(c.base+ata.RegStatus) != 0
		})
		if dev.present {
			found = append(found, uint32(id))
			d.log.Infof("ide: device %d present, %d blocks of %d bytes", id, dev.Blocks, dev.BlockSize)
		} else {
			d.log.Warningf("ide: device %d not present", id)
		}
	}

	for i := range d.channels {
		c := &d.channels[i]
		d.port.Outb(c.base+ata.RegDrive, ata.DriveSelect(0, 0))
	}
	return found
}
