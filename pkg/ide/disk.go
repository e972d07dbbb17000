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

	"gvisor.dev/idedisk/pkg/abi/ata"
	"gvisor.dev/idedisk/pkg/buf"
)

// ErrBadBlock is returned by Disk for block numbers beyond the device.
var ErrBadBlock = errors.New("ide: block out of range")

// Disk is a block device view of one drive. Every call submits a fresh buffer;
// nothing is cached.
type Disk struct {
	d   *Driver
	dev *device
}

// Disk returns the block device for dev. dev must be configured and present.
func (d *Driver) Disk(dev uint32) (*Disk, error) {
	if dev >= ata.MaxDevices || d.devices[dev] == nil {
		return nil, fmt.Errorf("device %d not configured", dev)
	}
	if !d.Present(dev) {
		return nil, fmt.Errorf("device %d not present", dev)
	}
	return &Disk{d: d, dev: d.devices[dev]}, nil
}

// ID returns the device identifier.
func (k *Disk) ID() uint32 { return k.dev.ID }

// BlockSize returns the size of a block in bytes.
func (k *Disk) BlockSize() int { return k.dev.BlockSize }

// Blocks returns the capacity in blocks.
func (k *Disk) Blocks() uint32 { return k.dev.Blocks }

func (k *Disk) check(blkno uint32, p []byte) error {
	if blkno >= k.dev.Blocks {
		return fmt.Errorf("%w: block %d, device %d has %d", ErrBadBlock, blkno, k.dev.ID, k.dev.Blocks)
	}
	if len(p) < k.dev.BlockSize {
		return fmt.Errorf("buffer of %d bytes is smaller than block size %d", len(p), k.dev.BlockSize)
	}
	return nil
}

// ReadBlock reads block blkno into the first BlockSize bytes of dst.
func (k *Disk) ReadBlock(blkno uint32, dst []byte) error {
	if err := k.check(blkno, dst); err != nil {
		return err
	}
	b := buf.New(k.dev.ID, blkno, k.dev.BlockSize)
	b.Lock()
	defer b.Unlock()
	if err := k.d.Submit(b); err != nil {
		return err
	}
	copy(dst, b.Data)
	return nil
}

// WriteBlock writes the first BlockSize bytes of src to block blkno.
func (k *Disk) WriteBlock(blkno uint32, src []byte) error {
	if err := k.check(blkno, src); err != nil {
		return err
	}
	b := buf.New(k.dev.ID, blkno, k.dev.BlockSize)
	copy(b.Data, src)
	b.MarkDirty()
	b.Lock()
	defer b.Unlock()
	return k.d.Submit(b)
}
