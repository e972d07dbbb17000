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

	"gvisor.dev/idedisk/pkg/disklayout"
	"gvisor.dev/idedisk/pkg/log"
)

// Volume is an opened ext2 filesystem.
type Volume struct {
	dev BlockDevice
	sb  disklayout.SuperBlock

	// groups is the block group descriptor table.
	groups []disklayout.GroupDescriptor

	blockSize uint64
	tr        *Translator
}

// Open reads and validates the superblock and group descriptor table of the
// volume on dev. The filesystem block size must equal the device block size.
func Open(dev BlockDevice) (*Volume, error) {
	raw := make([]byte, disklayout.SuperBlockSize)
	if err := readAt(dev, disklayout.SuperBlockOffset, raw); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	v := &Volume{dev: dev}
	v.sb.UnmarshalBytes(raw)
	if err := v.sb.Validate(); err != nil {
		return nil, fmt.Errorf("invalid superblock: %w", err)
	}
	if err := checkFeatures(&v.sb); err != nil {
		return nil, err
	}
	if err := checkGeometry(&v.sb); err != nil {
		return nil, err
	}
	v.blockSize = v.sb.BlockSize()
	if v.blockSize != uint64(dev.BlockSize()) {
		return nil, fmt.Errorf("%w: filesystem block size %d on device with %d byte blocks", ErrUnsupported, v.blockSize, dev.BlockSize())
	}
	if v.sb.BlocksCount > dev.Blocks() {
		return nil, fmt.Errorf("%w: %d blocks on a device of %d", ErrUnsupported, v.sb.BlocksCount, dev.Blocks())
	}

	n := v.sb.BlockGroupCount()
	table := make([]byte, uint64(n)*disklayout.GroupDescriptorSize)
	if err := readAt(dev, uint64(v.sb.GroupDescriptorBlock())*v.blockSize, table); err != nil {
		return nil, fmt.Errorf("reading group descriptors: %w", err)
	}
	v.groups = make([]disklayout.GroupDescriptor, n)
	for i := range v.groups {
		v.groups[i].UnmarshalBytes(table[i*disklayout.GroupDescriptorSize:])
		if it := v.groups[i].InodeTable; it == 0 || it >= v.sb.BlocksCount {
			return nil, fmt.Errorf("group %d: inode table at block %d outside volume", i, it)
		}
	}
	v.tr = NewTranslator(dev)

	log.Infof("ext2: opened %q: %d blocks of %d bytes, %d inodes, %d groups", v.sb.Label(), v.sb.BlocksCount, v.blockSize, v.sb.InodesCount, n)
	return v, nil
}

// SuperBlock returns a copy of the superblock.
func (v *Volume) SuperBlock() disklayout.SuperBlock {
	return v.sb
}

// Groups returns the group descriptor table.
func (v *Volume) Groups() []disklayout.GroupDescriptor {
	return v.groups
}

// BlockSize returns the filesystem block size.
func (v *Volume) BlockSize() uint64 {
	return v.blockSize
}

// Translator returns the volume's block address translator.
func (v *Volume) Translator() *Translator {
	return v.tr
}

// InodeLocation returns the block and byte offset within it of inode ino's
// record.
func (v *Volume) InodeLocation(ino uint32) (blk uint32, off uint64, err error) {
	if ino == 0 || ino > v.sb.InodesCount {
		return 0, 0, fmt.Errorf("%w: %d not in [1, %d]", ErrBadInode, ino, v.sb.InodesCount)
	}
	gd := &v.groups[disklayout.GroupOf(ino, v.sb.InodesPerGroup)]
	pos := uint64(disklayout.IndexInGroup(ino, v.sb.InodesPerGroup)) * uint64(v.sb.InodeRecordSize())
	return gd.InodeTable + uint32(pos/v.blockSize), pos % v.blockSize, nil
}

// ReadInode reads inode ino.
func (v *Volume) ReadInode(ino uint32) (*disklayout.Inode, error) {
	blk, off, err := v.InodeLocation(ino)
	if err != nil {
		return nil, err
	}
	block := make([]byte, v.blockSize)
	if err := v.dev.ReadBlock(blk, block); err != nil {
		return nil, fmt.Errorf("reading inode %d: %w", ino, err)
	}
	in := &disklayout.Inode{}
	in.UnmarshalBytes(block[off:])
	return in, nil
}

// ReadFileBlock reads logical block i of in into dst. Holes read as zeros.
func (v *Volume) ReadFileBlock(in *disklayout.Inode, i uint64, dst []byte) error {
	pb, err := v.tr.Resolve(in, i)
	if err != nil {
		return err
	}
	if pb == Unallocated {
		clear(dst[:v.blockSize])
		return nil
	}
	if pb >= v.sb.BlocksCount {
		return fmt.Errorf("logical block %d maps to block %d outside volume", i, pb)
	}
	if err := v.dev.ReadBlock(pb, dst); err != nil {
		return fmt.Errorf("reading logical block %d at %d: %w", i, pb, err)
	}
	return nil
}

// ReadFile returns the contents of in, Size bytes long.
func (v *Volume) ReadFile(in *disklayout.Inode) ([]byte, error) {
	data := make([]byte, in.DataBlocks(v.blockSize)*v.blockSize)
	for i := uint64(0); i < in.DataBlocks(v.blockSize); i++ {
		if err := v.ReadFileBlock(in, i, data[i*v.blockSize:]); err != nil {
			return nil, err
		}
	}
	return data[:in.Size], nil
}

// ReadDir returns the live entries of directory in, in on-disk order.
func (v *Volume) ReadDir(in *disklayout.Inode) ([]disklayout.Dirent, error) {
	if !in.IsDir() {
		return nil, fmt.Errorf("%w: mode %#o", ErrNotDir, in.Mode)
	}
	var ents []disklayout.Dirent
	block := make([]byte, v.blockSize)
	for i := uint64(0); i < in.DataBlocks(v.blockSize); i++ {
		if err := v.ReadFileBlock(in, i, block); err != nil {
			return nil, err
		}
		be, err := disklayout.ParseDirBlock(block)
		if err != nil {
			return nil, fmt.Errorf("directory block %d: %w", i, err)
		}
		ents = append(ents, be...)
	}
	return ents, nil
}
