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

// Package disklayout provides the byte-exact on-disk records of the ext2
// filesystem format: the superblock, block group descriptors, inodes and
// directory entries.
//
// Every record is a fixed-layout struct encoded little-endian by
// pkg/binary. Fields appear in on-disk order with explicit widths and there is
// no implicit padding; reserved and OS-dependent areas are kept as opaque,
// named byte arrays so that decoding and re-encoding a record reproduces it
// bit for bit.
//
// See https://www.nongnu.org/ext2-doc/ext2.html for the format.
package disklayout

import (
	"fmt"

	"gvisor.dev/idedisk/pkg/binary"
)

const (
	// SuperBlockOffset is the byte offset of the primary superblock from the
	// start of the volume, independent of the block size.
	SuperBlockOffset = 1024

	// SuperBlockSize is the on-disk size of the superblock.
	SuperBlockSize = 1024

	// GroupDescriptorSize is the on-disk size of a block group descriptor.
	GroupDescriptorSize = 32

	// OldInodeSize is the inode record size of revision 0 volumes, and the
	// size of the Inode struct.
	OldInodeSize = 128

	// DirentHeaderSize is the size of the fixed part of a directory entry.
	DirentHeaderSize = 8

	// MaxNameLen is the longest file name a directory entry can hold.
	MaxNameLen = 255

	// PointerSize is the size of a block pointer.
	PointerSize = 4

	// MinBlockSize and MaxBlockSize bound 1024 << LogBlockSize. A directory
	// record length is 16 bits wide, so a record cannot span a 64 KiB block.
	MinBlockSize = 1024
	MaxBlockSize = 32768

	// MaxLogBlockSize is the LogBlockSize of MaxBlockSize.
	MaxLogBlockSize = 5
)

// Block pointer slots in Inode.Block.
const (
	// NumDirectBlocks is the number of direct block pointers.
	NumDirectBlocks = 12

	IndirectBlock       = NumDirectBlocks
	DoubleIndirectBlock = IndirectBlock + 1
	TripleIndirectBlock = DoubleIndirectBlock + 1

	// NumBlockPointers is the length of Inode.Block.
	NumBlockPointers = TripleIndirectBlock + 1
)

// Reserved inode numbers.
const (
	BadBlocksInode = 1
	RootInode      = 2

	// GoodOldFirstInode is the first non-reserved inode on revision 0 volumes.
	GoodOldFirstInode = 11
)

// IndirectCapacity returns the number of block pointers held by one indirect
// block.
func IndirectCapacity(blockSize uint64) uint64 {
	return blockSize / PointerSize
}

// MaxFileBlocks returns the number of logical blocks addressable through the
// 12 direct pointers and the single, double and triple indirect blocks.
func MaxFileBlocks(blockSize uint64) uint64 {
	c := IndirectCapacity(blockSize)
	return NumDirectBlocks + c + c*c + c*c*c
}

// GroupOf returns the block group holding inode ino.
func GroupOf(ino, inodesPerGroup uint32) uint32 {
	return (ino - 1) / inodesPerGroup
}

// IndexInGroup returns the index of inode ino inside its group's inode table.
func IndexInGroup(ino, inodesPerGroup uint32) uint32 {
	return (ino - 1) % inodesPerGroup
}

func init() {
	for _, r := range []struct {
		name string
		v    any
		want uintptr
	}{
		{"SuperBlock", &SuperBlock{}, SuperBlockSize},
		{"GroupDescriptor", &GroupDescriptor{}, GroupDescriptorSize},
		{"Inode", &Inode{}, OldInodeSize},
		{"DirentHeader", &DirentHeader{}, DirentHeaderSize},
	} {
		if got := binary.Size(r.v); got != r.want {
			panic(fmt.Sprintf("disklayout: %s is %d bytes, want %d", r.name, got, r.want))
		}
	}
}
