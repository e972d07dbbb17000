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

package atadev

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"gvisor.dev/idedisk/pkg/abi/ata"
)

// Media is the storage behind an emulated unit. Offsets are in sectors and
// buffers hold a whole number of sectors.
type Media interface {
	// ReadSectors fills dst starting at sector lba.
	ReadSectors(lba uint32, dst []byte) error

	// WriteSectors stores src starting at sector lba.
	WriteSectors(lba uint32, src []byte) error

	// Sectors returns the capacity in sectors.
	Sectors() uint32
}

func checkRange(m Media, lba uint32, n int) error {
	if n%ata.SectorSize != 0 {
		return fmt.Errorf("transfer of %d bytes is not whole sectors", n)
	}
	if end := uint64(lba) + uint64(n/ata.SectorSize); end > uint64(m.Sectors()) {
		return fmt.Errorf("sectors [%d, %d) beyond capacity %d", lba, end, m.Sectors())
	}
	return nil
}

type sector struct {
	lba  uint32
	data [ata.SectorSize]byte
}

func sectorLess(a, b *sector) bool { return a.lba < b.lba }

// MemMedia is sparse in-memory media. Sectors never written, or last written
// with zeros, take no space.
type MemMedia struct {
	sectors uint32

	mu   sync.RWMutex
	tree *btree.BTreeG[*sector]
}

// NewMemMedia returns zeroed media of the given number of sectors.
func NewMemMedia(sectors uint32) *MemMedia {
	return &MemMedia{
		sectors: sectors,
		tree:    btree.NewG(16, sectorLess),
	}
}

// Sectors implements Media.Sectors.
func (m *MemMedia) Sectors() uint32 { return m.sectors }

// ReadSectors implements Media.ReadSectors.
func (m *MemMedia) ReadSectors(lba uint32, dst []byte) error {
	if err := checkRange(m, lba, len(dst)); err != nil {
		return err
	}
	clear(dst)
	m.mu.RLock()
	defer m.mu.RUnlock()
	end := lba + uint32(len(dst)/ata.SectorSize)
	m.tree.AscendRange(&sector{lba: lba}, &sector{lba: end}, func(s *sector) bool {
		copy(dst[(s.lba-lba)*ata.SectorSize:], s.data[:])
		return true
	})
	return nil
}

// WriteSectors implements Media.WriteSectors.
func (m *MemMedia) WriteSectors(lba uint32, src []byte) error {
	if err := checkRange(m, lba, len(src)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for off := 0; off < len(src); off += ata.SectorSize {
		s := &sector{lba: lba + uint32(off/ata.SectorSize)}
		copy(s.data[:], src[off:off+ata.SectorSize])
		if s.data == ([ata.SectorSize]byte{}) {
			m.tree.Delete(s)
			continue
		}
		m.tree.ReplaceOrInsert(s)
	}
	return nil
}

// Allocated returns the number of sectors holding non-zero data.
func (m *MemMedia) Allocated() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}
