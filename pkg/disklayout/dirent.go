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
	"errors"
	"fmt"

	"gvisor.dev/idedisk/pkg/binary"
)

// File type tags stored in DirentHeader.FileType when IncompatFiletype is set.
const (
	FileTypeUnknown  = 0
	FileTypeRegular  = 1
	FileTypeDir      = 2
	FileTypeCharDev  = 3
	FileTypeBlockDev = 4
	FileTypeFIFO     = 5
	FileTypeSocket   = 6
	FileTypeSymlink  = 7
)

// direntAlign is the alignment of every directory record.
const direntAlign = 4

var (
	// ErrCorruptDirent is returned when a directory block does not tile
	// into well formed records.
	ErrCorruptDirent = errors.New("corrupt directory entry")

	// ErrDirBlockFull is returned when entries do not fit in one block.
	ErrDirBlockFull = errors.New("directory entries exceed block size")
)

// DirentHeader is the fixed part of struct ext2_dir_entry_2. The name
// follows it on disk, is NameLen bytes long and is not NUL terminated.
type DirentHeader struct {
	Inode uint32

	// RecLen is the distance to the next record. It may exceed the space
	// the name needs: deleting an entry merges its record into the previous
	// one, and the last record of a block extends to the block's end.
	RecLen   uint16
	NameLen  uint8
	FileType uint8
}

// Dirent is a decoded directory entry.
type Dirent struct {
	DirentHeader
	Name string
}

// DirentSize returns the smallest record length able to hold a name of
// nameLen bytes.
func DirentSize(nameLen int) int {
	return (DirentHeaderSize + nameLen + direntAlign - 1) &^ (direntAlign - 1)
}

// FileTypeFromMode maps inode mode bits to a directory entry file type tag.
func FileTypeFromMode(mode uint16) uint8 {
	switch mode & ModeTypeMask {
	case ModeRegular:
		return FileTypeRegular
	case ModeDirectory:
		return FileTypeDir
	case ModeCharDev:
		return FileTypeCharDev
	case ModeBlockDev:
		return FileTypeBlockDev
	case ModeFIFO:
		return FileTypeFIFO
	case ModeSocket:
		return FileTypeSocket
	case ModeSymlink:
		return FileTypeSymlink
	default:
		return FileTypeUnknown
	}
}

// ParseDirBlock decodes every live entry of one directory block. Records with
// a zero inode number are deleted entries and are skipped. It fails if the
// records do not tile the block exactly.
func ParseDirBlock(block []byte) ([]Dirent, error) {
	var ents []Dirent
	for off := 0; off < len(block); {
		if len(block)-off < DirentHeaderSize {
			return nil, fmt.Errorf("%w: %d trailing bytes at offset %d", ErrCorruptDirent, len(block)-off, off)
		}
		var hdr DirentHeader
		binary.Unmarshal(block[off:off+DirentHeaderSize], binary.LittleEndian, &hdr)
		recLen := int(hdr.RecLen)
		switch {
		case recLen < DirentHeaderSize || recLen%direntAlign != 0:
			return nil, fmt.Errorf("%w: bad record length %d at offset %d", ErrCorruptDirent, recLen, off)
		case off+recLen > len(block):
			return nil, fmt.Errorf("%w: record at offset %d crosses block end", ErrCorruptDirent, off)
		case hdr.Inode != 0 && DirentSize(int(hdr.NameLen)) > recLen:
			return nil, fmt.Errorf("%w: name length %d overflows record at offset %d", ErrCorruptDirent, hdr.NameLen, off)
		}
		if hdr.Inode != 0 {
			name := block[off+DirentHeaderSize : off+DirentHeaderSize+int(hdr.NameLen)]
			ents = append(ents, Dirent{DirentHeader: hdr, Name: string(name)})
		}
		off += recLen
	}
	return ents, nil
}

// EncodeDirBlock lays ents out in a new block of blockSize bytes. Each record
// gets its minimal length except the last, which extends to the end of the
// block. An empty ents yields a single deleted record spanning the block.
// RecLen and NameLen of ents are ignored.
func EncodeDirBlock(ents []Dirent, blockSize int) ([]byte, error) {
	if blockSize < DirentHeaderSize || blockSize > MaxBlockSize || blockSize%direntAlign != 0 {
		return nil, fmt.Errorf("directory block size %d not a multiple of %d in [%d, %d]", blockSize, direntAlign, DirentHeaderSize, MaxBlockSize)
	}
	block := make([]byte, blockSize)
	if len(ents) == 0 {
		hdr := DirentHeader{RecLen: uint16(blockSize)}
		binary.MarshalInto(block, binary.LittleEndian, &hdr)
		return block, nil
	}
	off := 0
	for i, e := range ents {
		if len(e.Name) == 0 || len(e.Name) > MaxNameLen {
			return nil, fmt.Errorf("bad name length %d for inode %d", len(e.Name), e.Inode)
		}
		size := DirentSize(len(e.Name))
		if off+size > blockSize {
			return nil, ErrDirBlockFull
		}
		recLen := size
		if i == len(ents)-1 {
			recLen = blockSize - off
		}
		hdr := e.DirentHeader
		hdr.RecLen = uint16(recLen)
		hdr.NameLen = uint8(len(e.Name))
		binary.MarshalInto(block[off:], binary.LittleEndian, &hdr)
		copy(block[off+DirentHeaderSize:], e.Name)
		off += recLen
	}
	return block, nil
}
