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
	"encoding/binary"
	"time"

	bin "gvisor.dev/idedisk/pkg/binary"
)

// File mode bits held in Inode.Mode.
const (
	ModeTypeMask   = 0170000
	ModeSocket     = 0140000
	ModeSymlink    = 0120000
	ModeRegular    = 0100000
	ModeBlockDev   = 0060000
	ModeDirectory  = 0040000
	ModeCharDev    = 0020000
	ModeFIFO       = 0010000
	ModeSetUID     = 0004000
	ModeSetGID     = 0002000
	ModeSticky     = 0001000
	ModePermission = 0000777
)

// Inode flags held in Inode.Flags.
const (
	InodeFlagSecureRm    = 0x1
	InodeFlagUnrm        = 0x2
	InodeFlagCompressed  = 0x4
	InodeFlagSync        = 0x8
	InodeFlagImmutable   = 0x10
	InodeFlagAppend      = 0x20
	InodeFlagNoDump      = 0x40
	InodeFlagNoAtime     = 0x80
	InodeFlagIndex       = 0x1000
	InodeFlagJournalData = 0x4000
	InodeFlagExtents     = 0x80000
)

// Inode is the ext2 on-disk inode (struct ext2_inode). Revision 1 volumes may
// use larger inode records; Inode covers their first 128 bytes.
//
// All times are seconds since the epoch.
type Inode struct {
	Mode       uint16
	UID        uint16
	Size       uint32
	AccessTime uint32
	ChangeTime uint32
	ModifyTime uint32
	DeleteTime uint32
	GID        uint16
	LinksCount uint16

	// Blocks counts 512 byte sectors, not filesystem blocks.
	Blocks uint32
	Flags  uint32

	// OSD1 is the first OS-dependent union. It is kept opaque.
	OSD1 [4]byte

	// Block holds NumDirectBlocks direct pointers followed by the single,
	// double and triple indirect pointers. A zero pointer is a hole.
	Block [NumBlockPointers]uint32

	Generation  uint32
	FileACL     uint32
	DirACL      uint32
	FragAddress uint32

	// OSD2 is the second OS-dependent union. It is kept opaque; the Linux
	// variant's high ID halves are exposed by FullUID and FullGID.
	OSD2 [12]byte
}

// Type returns the file type bits of the mode.
func (in *Inode) Type() uint16 { return in.Mode & ModeTypeMask }

// IsDir returns true if the inode is a directory.
func (in *Inode) IsDir() bool { return in.Type() == ModeDirectory }

// IsRegular returns true if the inode is a regular file.
func (in *Inode) IsRegular() bool { return in.Type() == ModeRegular }

// IsSymlink returns true if the inode is a symbolic link.
func (in *Inode) IsSymlink() bool { return in.Type() == ModeSymlink }

// FullUID combines UID with the high 16 bits stored in the Linux OSD2 variant.
func (in *Inode) FullUID() uint32 {
	return uint32(binary.LittleEndian.Uint16(in.OSD2[4:6]))<<16 | uint32(in.UID)
}

// FullGID combines GID with the high 16 bits stored in the Linux OSD2 variant.
func (in *Inode) FullGID() uint32 {
	return uint32(binary.LittleEndian.Uint16(in.OSD2[6:8]))<<16 | uint32(in.GID)
}

// ModTime returns the modification time.
func (in *Inode) ModTime() time.Time {
	return time.Unix(int64(in.ModifyTime), 0)
}

// DataBlocks returns the number of blocks needed to hold Size bytes.
func (in *Inode) DataBlocks(blockSize uint64) uint64 {
	return (uint64(in.Size) + blockSize - 1) / blockSize
}

// MarshalBytes encodes in into dst, which must hold OldInodeSize bytes.
func (in *Inode) MarshalBytes(dst []byte) {
	bin.MarshalInto(dst, bin.LittleEndian, in)
}

// UnmarshalBytes decodes in from the first OldInodeSize bytes of src.
func (in *Inode) UnmarshalBytes(src []byte) {
	bin.Unmarshal(src[:OldInodeSize], bin.LittleEndian, in)
}
