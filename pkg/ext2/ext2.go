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

// Package ext2 reads the ext2 filesystem format from a block device.
//
// It resolves file blocks through an inode's block map, reads inodes and
// directory blocks, and can lay out a fresh volume. It does not cache, walk
// paths or modify existing files.
package ext2

import (
	"errors"
	"fmt"
	"strings"

	"gvisor.dev/idedisk/pkg/disklayout"
)

var (
	// ErrOutOfRange is returned for logical blocks no file can address.
	ErrOutOfRange = errors.New("ext2: logical block out of range")

	// ErrBadMagic is returned when the superblock signature is wrong.
	ErrBadMagic = disklayout.ErrBadMagic

	// ErrUnsupported is returned for volumes using features or geometry
	// this package cannot handle.
	ErrUnsupported = errors.New("ext2: unsupported volume")

	// ErrNotDir is returned when a directory operation is applied to an
	// inode of another type.
	ErrNotDir = errors.New("ext2: not a directory")

	// ErrBadInode is returned for inode numbers outside the volume.
	ErrBadInode = errors.New("ext2: inode number out of range")
)

// BlockDevice is the storage a volume lives on. Block numbers and sizes are
// those of the filesystem.
type BlockDevice interface {
	// ReadBlock reads block blkno into the first BlockSize bytes of dst.
	ReadBlock(blkno uint32, dst []byte) error

	// BlockSize returns the size of a block in bytes.
	BlockSize() int

	// Blocks returns the capacity in blocks.
	Blocks() uint32
}

// WritableBlockDevice is a BlockDevice that can be written.
type WritableBlockDevice interface {
	BlockDevice

	// WriteBlock writes the first BlockSize bytes of src to block blkno.
	WriteBlock(blkno uint32, src []byte) error
}

// supportedIncompat are the incompatible features understood here.
const supportedIncompat = disklayout.IncompatFiletype

// readAt reads len(dst) bytes at byte offset off of dev, which need not be
// block aligned.
func readAt(dev BlockDevice, off uint64, dst []byte) error {
	bs := uint64(dev.BlockSize())
	block := make([]byte, bs)
	for done := 0; done < len(dst); {
		pos := off + uint64(done)
		if err := dev.ReadBlock(uint32(pos/bs), block); err != nil {
			return err
		}
		done += copy(dst[done:], block[pos%bs:])
	}
	return nil
}

// checkFeatures returns ErrUnsupported if sb requires a feature not handled
// here.
func checkFeatures(sb *disklayout.SuperBlock) error {
	if extra := sb.FeatureIncompat &^ supportedIncompat; extra != 0 {
		return fmt.Errorf("%w: incompatible features %#x", ErrUnsupported, extra)
	}
	return nil
}

// checkGeometry returns ErrUnsupported if the group layout of sb cannot
// address every inode it claims, or a group outgrows its bitmaps.
func checkGeometry(sb *disklayout.SuperBlock) error {
	groups := sb.BlockGroupCount()
	if groups == 0 {
		return fmt.Errorf("%w: no block groups", ErrUnsupported)
	}
	bits := sb.BlockSize() * 8
	if uint64(sb.BlocksPerGroup) > bits || uint64(sb.InodesPerGroup) > bits {
		return fmt.Errorf("%w: %d blocks and %d inodes per group exceed a %d bit bitmap", ErrUnsupported, sb.BlocksPerGroup, sb.InodesPerGroup, bits)
	}
	if limit := uint64(groups) * uint64(sb.InodesPerGroup); uint64(sb.InodesCount) > limit {
		return fmt.Errorf("%w: %d inodes in %d groups of %d", ErrUnsupported, sb.InodesCount, groups, sb.InodesPerGroup)
	}
	return nil
}

// FormatMode renders mode like ls -l.
func FormatMode(mode uint16) string {
	var sb strings.Builder
	switch mode & disklayout.ModeTypeMask {
	case disklayout.ModeDirectory:
		sb.WriteByte('d')
	case disklayout.ModeSymlink:
		sb.WriteByte('l')
	case disklayout.ModeCharDev:
		sb.WriteByte('c')
	case disklayout.ModeBlockDev:
		sb.WriteByte('b')
	case disklayout.ModeFIFO:
		sb.WriteByte('p')
	case disklayout.ModeSocket:
		sb.WriteByte('s')
	default:
		sb.WriteByte('-')
	}
	const rwx = "rwxrwxrwx"
	for i := 0; i < 9; i++ {
		if mode&(1<<(8-i)) != 0 {
			sb.WriteByte(rwx[i])
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}
