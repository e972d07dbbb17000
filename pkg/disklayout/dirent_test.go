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
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestDirentSize(t *testing.T) {
	for nameLen, want := range map[int]int{1: 12, 2: 12, 4: 12, 5: 16, 8: 16, 255: 264} {
		if got := DirentSize(nameLen); got != want {
			t.Errorf("DirentSize(%d) = %d, want %d", nameLen, got, want)
		}
	}
}

func TestDirBlockRoundTrip(t *testing.T) {
	ents := []Dirent{
		{DirentHeader: DirentHeader{Inode: 2, FileType: FileTypeDir}, Name: "."},
		{DirentHeader: DirentHeader{Inode: 2, FileType: FileTypeDir}, Name: ".."},
		{DirentHeader: DirentHeader{Inode: 11, FileType: FileTypeDir}, Name: "lost+found"},
		{DirentHeader: DirentHeader{Inode: 12, FileType: FileTypeRegular}, Name: strings.Repeat("n", MaxNameLen)},
	}
	block, err := EncodeDirBlock(ents, 1024)
	if err != nil {
		t.Fatalf("EncodeDirBlock failed: %v", err)
	}

	got, err := ParseDirBlock(block)
	if err != nil {
		t.Fatalf("ParseDirBlock failed: %v", err)
	}
	ignoreLens := cmpopts.IgnoreFields(DirentHeader{}, "RecLen", "NameLen")
	if diff := cmp.Diff(ents, got, ignoreLens); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	// Records tile the block exactly: the last one absorbs the slack.
	total := 0
	for _, e := range got {
		total += int(e.RecLen)
	}
	if total != 1024 {
		t.Errorf("record lengths sum to %d, want 1024", total)
	}
	if got[0].RecLen != 12 || got[2].RecLen != 20 {
		t.Errorf("unexpected minimal record lengths %d, %d", got[0].RecLen, got[2].RecLen)
	}
}

func TestDirBlockTombstone(t *testing.T) {
	ents := []Dirent{
		{DirentHeader: DirentHeader{Inode: 2}, Name: "."},
		{DirentHeader: DirentHeader{Inode: 13}, Name: "gone"},
		{DirentHeader: DirentHeader{Inode: 14}, Name: "kept"},
	}
	block, err := EncodeDirBlock(ents, 512)
	if err != nil {
		t.Fatalf("EncodeDirBlock failed: %v", err)
	}
	// Delete "gone" the way ext2 does: zero its inode in place.
	binary.LittleEndian.PutUint32(block[12:], 0)

	got, err := ParseDirBlock(block)
	if err != nil {
		t.Fatalf("ParseDirBlock failed: %v", err)
	}
	var names []string
	for _, e := range got {
		names = append(names, e.Name)
	}
	if diff := cmp.Diff([]string{".", "kept"}, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyDirBlock(t *testing.T) {
	block, err := EncodeDirBlock(nil, 1024)
	if err != nil {
		t.Fatalf("EncodeDirBlock failed: %v", err)
	}
	if got := binary.LittleEndian.Uint16(block[4:]); got != 1024 {
		t.Errorf("rec_len = %d, want 1024", got)
	}
	ents, err := ParseDirBlock(block)
	if err != nil || len(ents) != 0 {
		t.Errorf("ParseDirBlock = %v, %v; want no entries", ents, err)
	}
}

func TestDirBlockFull(t *testing.T) {
	var ents []Dirent
	for i := 0; i < 10; i++ {
		ents = append(ents, Dirent{DirentHeader: DirentHeader{Inode: uint32(20 + i)}, Name: strings.Repeat("x", 100)})
	}
	if _, err := EncodeDirBlock(ents, 1024); !errors.Is(err, ErrDirBlockFull) {
		t.Errorf("EncodeDirBlock = %v, want ErrDirBlockFull", err)
	}
}

func TestDirBlockSizes(t *testing.T) {
	ents := []Dirent{{DirentHeader: DirentHeader{Inode: 2}, Name: "."}}
	for _, bs := range []int{0, 4, 30, MaxBlockSize * 2} {
		if _, err := EncodeDirBlock(ents, bs); err == nil {
			t.Errorf("EncodeDirBlock(%d byte block) succeeded, want error", bs)
		}
	}

	// The record of the largest block still spans it.
	for _, in := range [][]Dirent{nil, ents} {
		block, err := EncodeDirBlock(in, MaxBlockSize)
		if err != nil {
			t.Fatalf("EncodeDirBlock(%d entries, %d) failed: %v", len(in), MaxBlockSize, err)
		}
		got, err := ParseDirBlock(block)
		if err != nil {
			t.Fatalf("ParseDirBlock failed: %v", err)
		}
		if len(got) != len(in) {
			t.Fatalf("ParseDirBlock = %d entries, want %d", len(got), len(in))
		}
		if len(got) == 1 && int(got[0].RecLen) != MaxBlockSize {
			t.Errorf("RecLen = %d, want %d", got[0].RecLen, MaxBlockSize)
		}
	}
}

func TestParseDirBlockCorrupt(t *testing.T) {
	valid := func() []byte {
		b, err := EncodeDirBlock([]Dirent{
			{DirentHeader: DirentHeader{Inode: 2}, Name: "."},
			{DirentHeader: DirentHeader{Inode: 3}, Name: "file"},
		}, 64)
		if err != nil {
			t.Fatalf("EncodeDirBlock failed: %v", err)
		}
		return b
	}
	le := binary.LittleEndian
	for _, tc := range []struct {
		name   string
		mutate func([]byte)
	}{
		{"rec_len too small", func(b []byte) { le.PutUint16(b[4:], 4) }},
		{"rec_len unaligned", func(b []byte) { le.PutUint16(b[4:], 14) }},
		{"rec_len crosses block", func(b []byte) { le.PutUint16(b[16:], 64) }},
		{"name overflows record", func(b []byte) { b[6] = 9 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := valid()
			tc.mutate(b)
			if _, err := ParseDirBlock(b); !errors.Is(err, ErrCorruptDirent) {
				t.Errorf("ParseDirBlock = %v, want ErrCorruptDirent", err)
			}
		})
	}

	if _, err := ParseDirBlock(valid()[:60]); !errors.Is(err, ErrCorruptDirent) {
		t.Errorf("ParseDirBlock on truncated block = %v, want ErrCorruptDirent", err)
	}
}

func TestFileTypeFromMode(t *testing.T) {
	for mode, want := range map[uint16]uint8{
		ModeRegular | 0644:   FileTypeRegular,
		ModeDirectory | 0755: FileTypeDir,
		ModeSymlink | 0777:   FileTypeSymlink,
		ModeFIFO:             FileTypeFIFO,
		0:                    FileTypeUnknown,
	} {
		if got := FileTypeFromMode(mode); got != want {
			t.Errorf("FileTypeFromMode(%#o) = %d, want %d", mode, got, want)
		}
	}
}
