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
	"errors"
	"fmt"

	"gvisor.dev/idedisk/pkg/bitmap"
)

// ErrInconsistent is returned by Check when accounting disagrees with the
// allocation bitmaps.
var ErrInconsistent = errors.New("ext2: inconsistent accounting")

// GroupUsage is the allocation state of one block group as recorded by its
// bitmaps.
type GroupUsage struct {
	FreeBlocks uint32
	FreeInodes uint32
}

// groupBlocks returns the number of blocks in group g.
func (v *Volume) groupBlocks(g uint32) uint32 {
	start := v.sb.FirstDataBlock + g*v.sb.BlocksPerGroup
	return min(v.sb.BlocksPerGroup, v.sb.BlocksCount-start)
}

func (v *Volume) readBitmap(blk, size uint32) (bitmap.Bitmap, error) {
	block := make([]byte, v.blockSize)
	if err := v.dev.ReadBlock(blk, block); err != nil {
		return bitmap.Bitmap{}, fmt.Errorf("reading bitmap block %d: %w", blk, err)
	}
	return bitmap.FromBytes(block, size)
}

// Usage counts the free blocks and inodes of group g from its bitmaps.
func (v *Volume) Usage(g uint32) (GroupUsage, error) {
	if g >= uint32(len(v.groups)) {
		return GroupUsage{}, fmt.Errorf("group %d of %d", g, len(v.groups))
	}
	gd := &v.groups[g]
	bb, err := v.readBitmap(gd.BlockBitmap, v.groupBlocks(g))
	if err != nil {
		return GroupUsage{}, err
	}
	ib, err := v.readBitmap(gd.InodeBitmap, v.sb.InodesPerGroup)
	if err != nil {
		return GroupUsage{}, err
	}
	return GroupUsage{FreeBlocks: bb.GetNumZeros(), FreeInodes: ib.GetNumZeros()}, nil
}

// Check compares the free counts of every group descriptor and of the
// superblock with the allocation bitmaps. Mismatches are reported together.
func (v *Volume) Check() error {
	var errs []error
	var freeBlocks, freeInodes uint32
	for g := range v.groups {
		u, err := v.Usage(uint32(g))
		if err != nil {
			return err
		}
		gd := &v.groups[g]
		if uint32(gd.FreeBlocksCount) != u.FreeBlocks {
			errs = append(errs, fmt.Errorf("%w: group %d records %d free blocks, bitmap has %d", ErrInconsistent, g, gd.FreeBlocksCount, u.FreeBlocks))
		}
		if uint32(gd.FreeInodesCount) != u.FreeInodes {
			errs = append(errs, fmt.Errorf("%w: group %d records %d free inodes, bitmap has %d", ErrInconsistent, g, gd.FreeInodesCount, u.FreeInodes))
		}
		freeBlocks += u.FreeBlocks
		freeInodes += u.FreeInodes
	}
	if v.sb.FreeBlocksCount != freeBlocks {
		errs = append(errs, fmt.Errorf("%w: superblock records %d free blocks, bitmaps have %d", ErrInconsistent, v.sb.FreeBlocksCount, freeBlocks))
	}
	if v.sb.FreeInodesCount != freeInodes {
		errs = append(errs, fmt.Errorf("%w: superblock records %d free inodes, bitmaps have %d", ErrInconsistent, v.sb.FreeInodesCount, freeInodes))
	}
	return errors.Join(errs...)
}
