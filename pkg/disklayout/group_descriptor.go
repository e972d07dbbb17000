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

package disklayout

import "gvisor.dev/idedisk/pkg/binary"

// GroupDescriptor is an ext2 block group descriptor (struct ext2_group_desc).
// The descriptor table starts in the block following the superblock and holds
// one 32 byte entry per block group.
type GroupDescriptor struct {
	// BlockBitmap is the block number of the group's block usage bitmap.
	BlockBitmap uint32

	// InodeBitmap is the block number of the group's inode usage bitmap.
	InodeBitmap uint32

	// InodeTable is the first block of the group's inode table, which holds
	// InodesPerGroup records of InodeRecordSize bytes.
	InodeTable uint32

	FreeBlocksCount uint16
	FreeInodesCount uint16
	UsedDirsCount   uint16
	Pad             uint16
	Reserved        [3]uint32
}

// DescriptorsPerBlock returns how many group descriptors fit in one block.
func DescriptorsPerBlock(blockSize uint64) uint64 {
	return blockSize / GroupDescriptorSize
}

// MarshalBytes encodes gd into dst, which must hold GroupDescriptorSize bytes.
func (gd *GroupDescriptor) MarshalBytes(dst []byte) {
	binary.MarshalInto(dst, binary.LittleEndian, gd)
}

// UnmarshalBytes decodes gd from the first GroupDescriptorSize bytes of src.
func (gd *GroupDescriptor) UnmarshalBytes(src []byte) {
	binary.Unmarshal(src[:GroupDescriptorSize], binary.LittleEndian, gd)
}
