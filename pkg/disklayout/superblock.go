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

import (
	"bytes"
	"errors"
	"fmt"

	"gvisor.dev/idedisk/pkg/binary"
)

// Magic is the ext2 superblock signature.
const Magic = 0xEF53

// Revision levels.
const (
	RevGoodOld = 0
	RevDynamic = 1
)

// Filesystem states.
const (
	StateValid  = 1
	StateErrors = 2
)

// Creator operating systems.
const (
	OSLinux   = 0
	OSHurd    = 1
	OSMasix   = 2
	OSFreeBSD = 3
	OSLites   = 4
)

// Compatible features. A kernel may mount a volume with unknown compatible
// features.
const (
	CompatDirPrealloc  = 0x1
	CompatImagicInodes = 0x2
	CompatHasJournal   = 0x4
	CompatExtAttr      = 0x8
	CompatResizeInode  = 0x10
	CompatDirIndex     = 0x20
)

// Incompatible features. A kernel must refuse to mount a volume with an
// incompatible feature it does not know.
const (
	IncompatCompression = 0x1
	IncompatFiletype    = 0x2
	IncompatRecover     = 0x4
	IncompatJournalDev  = 0x8
	IncompatMetaBG      = 0x10
	IncompatExtents     = 0x40
	Incompat64Bit       = 0x80
	IncompatMMP         = 0x100
	IncompatFlexBG      = 0x200
	IncompatInlineData  = 0x8000
)

// Read-only compatible features. Unknown ones force a read-only mount.
const (
	ROCompatSparseSuper = 0x1
	ROCompatLargeFile   = 0x2
	ROCompatBtreeDir    = 0x4
)

// ErrBadMagic is returned by Validate when the signature does not match.
var ErrBadMagic = errors.New("bad superblock magic")

// SuperBlock is the ext2 superblock (struct ext2_super_block). It is exactly
// 1024 bytes and lives SuperBlockOffset bytes into the volume.
type SuperBlock struct {
	InodesCount         uint32
	BlocksCount         uint32
	ReservedBlocksCount uint32
	FreeBlocksCount     uint32
	FreeInodesCount     uint32
	FirstDataBlock      uint32
	LogBlockSize        uint32
	LogFragSize         uint32
	BlocksPerGroup      uint32
	FragsPerGroup       uint32
	InodesPerGroup      uint32
	MountTime           uint32
	WriteTime           uint32
	MountCount          uint16
	MaxMountCount       uint16
	Magic               uint16
	State               uint16
	Errors              uint16
	MinorRevLevel       uint16
	LastCheck           uint32
	CheckInterval       uint32
	CreatorOS           uint32
	RevLevel            uint32
	DefResUID           uint16
	DefResGID           uint16

	// The following fields are only meaningful for RevDynamic volumes.
	FirstInode           uint32
	InodeSize            uint16
	BlockGroupNr         uint16
	FeatureCompat        uint32
	FeatureIncompat      uint32
	FeatureROCompat      uint32
	UUID                 [16]byte
	VolumeName           [16]byte
	LastMounted          [64]byte
	AlgorithmUsageBitmap uint32

	// Performance hints.
	PreallocBlocks    uint8
	PreallocDirBlocks uint8
	Padding1          uint16

	// Journaling support, valid with CompatHasJournal.
	JournalUUID      [16]byte
	JournalInum      uint32
	JournalDev       uint32
	LastOrphan       uint32
	HashSeed         [4]uint32
	DefHashVersion   uint8
	ReservedCharPad  uint8
	ReservedWordPad  uint16
	DefaultMountOpts uint32
	FirstMetaBG      uint32

	// Reserved pads the record to 1024 bytes.
	Reserved [190]uint32
}

// BlockSize returns the filesystem block size in bytes.
func (sb *SuperBlock) BlockSize() uint64 {
	return MinBlockSize << sb.LogBlockSize
}

// BlockGroupCount returns the number of block groups on the volume, or 0 if
// the superblock describes no data blocks or has no blocks per group.
func (sb *SuperBlock) BlockGroupCount() uint32 {
	if sb.BlocksPerGroup == 0 || sb.BlocksCount <= sb.FirstDataBlock {
		return 0
	}
	data := uint64(sb.BlocksCount - sb.FirstDataBlock)
	bpg := uint64(sb.BlocksPerGroup)
	return uint32((data + bpg - 1) / bpg)
}

// InodeRecordSize returns the size of an inode table entry.
func (sb *SuperBlock) InodeRecordSize() uint16 {
	if sb.RevLevel == RevGoodOld {
		return OldInodeSize
	}
	return sb.InodeSize
}

// FirstNonReservedInode returns the first inode number available to files.
func (sb *SuperBlock) FirstNonReservedInode() uint32 {
	if sb.RevLevel == RevGoodOld {
		return GoodOldFirstInode
	}
	return sb.FirstInode
}

// GroupDescriptorBlock returns the block number holding the first group
// descriptor; the table immediately follows the superblock's block.
func (sb *SuperBlock) GroupDescriptorBlock() uint32 {
	return sb.FirstDataBlock + 1
}

// Label returns the volume name without trailing NULs.
func (sb *SuperBlock) Label() string {
	return string(bytes.TrimRight(sb.VolumeName[:], "\x00"))
}

// Validate checks the fields every reader depends on.
func (sb *SuperBlock) Validate() error {
	if sb.Magic != Magic {
		return fmt.Errorf("%w: %#x", ErrBadMagic, sb.Magic)
	}
	if sb.LogBlockSize > MaxLogBlockSize {
		return fmt.Errorf("log block size %d out of range [0, %d]", sb.LogBlockSize, MaxLogBlockSize)
	}
	if sb.BlocksPerGroup == 0 || sb.InodesPerGroup == 0 {
		return fmt.Errorf("zero blocks (%d) or inodes (%d) per group", sb.BlocksPerGroup, sb.InodesPerGroup)
	}
	if sb.BlocksCount <= sb.FirstDataBlock {
		return fmt.Errorf("blocks count %d does not exceed first data block %d", sb.BlocksCount, sb.FirstDataBlock)
	}
	if sb.RevLevel > RevDynamic {
		return fmt.Errorf("unknown revision %d", sb.RevLevel)
	}
	if sb.RevLevel == RevDynamic {
		if sz := sb.InodeSize; sz < OldInodeSize || uint64(sz) > sb.BlockSize() || sz&(sz-1) != 0 {
			return fmt.Errorf("bad inode size %d", sz)
		}
	}
	return nil
}

// MarshalBytes encodes sb into dst, which must hold SuperBlockSize bytes.
func (sb *SuperBlock) MarshalBytes(dst []byte) {
	binary.MarshalInto(dst, binary.LittleEndian, sb)
}

// UnmarshalBytes decodes sb from the first SuperBlockSize bytes of src.
func (sb *SuperBlock) UnmarshalBytes(src []byte) {
	binary.Unmarshal(src[:SuperBlockSize], binary.LittleEndian, sb)
}
