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

package ext2

import (
	"fmt"
	"sync/atomic"

	"gvisor.dev/idedisk/pkg/binary"
	"gvisor.dev/idedisk/pkg/disklayout"
)

// Unallocated is the physical block number of a hole.
const Unallocated = 0

// Translator maps logical file blocks to physical blocks by walking an inode's
// block map: 12 direct pointers, then single, double and triple indirect
// blocks read from the device.
type Translator struct {
	dev       BlockDevice
	blockSize uint64

	// ptrs is the number of pointers per indirect block.
	ptrs uint64

	reads atomic.Uint64
}

// NewTranslator returns a translator reading indirect blocks from dev. The
// filesystem block size is the device block size.
func NewTranslator(dev BlockDevice) *Translator {
	bs := uint64(dev.BlockSize())
	return &Translator{
		dev:       dev,
		blockSize: bs,
		ptrs:      disklayout.IndirectCapacity(bs),
	}
}

// Reads returns the number of indirect blocks read so far.
func (t *Translator) Reads() uint64 {
	return t.reads.Load()
}

// MaxFileBlocks returns the number of logical blocks a file can address.
func (t *Translator) MaxFileBlocks() uint64 {
	return disklayout.MaxFileBlocks(t.blockSize)
}

// Resolve returns the physical block holding logical block i of in, or
// Unallocated if i falls in a hole. It returns ErrOutOfRange if i is beyond
// the largest possible file.
//
// A zero pointer at any level ends the walk without reading further.
func (t *Translator) Resolve(in *disklayout.Inode, i uint64) (uint32, error) {
	if i < disklayout.NumDirectBlocks {
		return in.Block[i], nil
	}
	i -= disklayout.NumDirectBlocks

	c := t.ptrs
	if i < c {
		return t.walk(in.Block[disklayout.IndirectBlock], i, 1)
	}
	i -= c
	if i < c*c {
		return t.walk(in.Block[disklayout.DoubleIndirectBlock], i, 2)
	}
	i -= c * c
	if i < c*c*c {
		return t.walk(in.Block[disklayout.TripleIndirectBlock], i, 3)
	}
	return 0, fmt.Errorf("%w: block %d, limit %d", ErrOutOfRange, i+disklayout.NumDirectBlocks+c+c*c, t.MaxFileBlocks())
}

// walk descends levels indirect blocks starting at blk, selecting the slot
// for idx at each level.
func (t *Translator) walk(blk uint32, idx uint64, levels int) (uint32, error) {
	span := uint64(1)
	for l := 1; l < levels; l++ {
		span *= t.ptrs
	}

	var (
		scratch []byte
		ptrs    []uint32
	)
	for ; levels > 0; levels-- {
		if blk == Unallocated {
			return Unallocated, nil
		}
		if scratch == nil {
			scratch = make([]byte, t.blockSize)
			ptrs = make([]uint32, t.ptrs)
		}
		if err := t.dev.ReadBlock(blk, scratch); err != nil {
			return 0, fmt.Errorf("reading indirect block %d: %w", blk, err)
		}
		t.reads.Add(1)
		binary.Uint32s(ptrs, binary.LittleEndian, scratch)

		slot := idx / span
		idx %= span
		span /= t.ptrs
		blk = ptrs[slot]
	}
	return blk, nil
}
