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

// Submit synchronizes b with the disk and blocks until the request completes.
// If b is dirty its payload is written and b becomes valid and clean;
// otherwise the block is read into b and b becomes valid.
//
// Submit returns b.Err, which wraps ErrMedia if the device failed the request.
// A failed read leaves b invalid and a failed write leaves b dirty.
//
// The caller must hold b's sleep lock for the whole call. Submit panics if it
// does not, if b is already valid and clean, if the device is not present, if
// b is the wrong size or past the end of the device, or if b is already
// queued.
func (d *Driver) Submit(b *buf.Buf) error {
	if b == nil {
		panic("ide: submit of nil buffer")
	}
	if !b.Holding() {
		panic(fmt.Sprintf("ide: %v not locked", b))
	}
	if b.Flags&(buf.FlagValid|buf.FlagDirty) == buf.FlagValid {
		panic(fmt.Sprintf("ide: nothing to do for %v", b))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if b.Dev >= ata.MaxDevices || d.devices[b.Dev] == nil || !d.devices[b.Dev].present {
		panic(fmt.Sprintf("ide: device %d not present", b.Dev))
	}
	if bs := d.devices[b.Dev].BlockSize; len(b.Data) != bs {
		panic(fmt.Sprintf("ide: %v holds %d bytes, device block size is %d", b, len(b.Data), bs))
	}
	if n := d.devices[b.Dev].Blocks; b.BlockNo >= n {
		panic(fmt.Sprintf("ide: block %d beyond capacity %d of device %d", b.BlockNo, n, b.Dev))
	}
	if d.channels[ata.Channel(b.Dev)].queue.Contains(b) {
		panic(fmt.Sprintf("ide: %v already queued", b))
	}

	b.Err = nil
	d.enqueue(b)
	for !b.Done() {
		d.waiters.Sleep(b, &d.mu)
	}
	return b.Err
}
