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

// Package bitmap provides a fixed-size bitmap with the byte layout of ext2
// allocation bitmaps: bit i is bit i%8 of byte i/8.
package bitmap

import (
	"fmt"
	"math"
	"math/bits"

	"gvisor.dev/idedisk/pkg/binary"
)

// Bitmap implements an efficient bitmap of a fixed number of bits.
type Bitmap struct {
	// size is the number of bits.
	size uint32

	// numOnes is the number of ones in the bitmap.
	numOnes uint32

	// bitBlock holds the bits. The type of bitBlock is uint64 which means
	// each number in bitBlock contains 64 entries.
	bitBlock []uint64
}

// New creates a new empty Bitmap of size bits.
func New(size uint32) Bitmap {
	return Bitmap{
		size:     size,
		bitBlock: make([]uint64, (size+63)/64),
	}
}

// FromBytes decodes the first size bits of src.
func FromBytes(src []byte, size uint32) (Bitmap, error) {
	if uint64(len(src))*8 < uint64(size) {
		return Bitmap{}, fmt.Errorf("%d bytes cannot hold %d bits", len(src), size)
	}
	b := New(size)
	for i := range b.bitBlock {
		var word [8]byte
		copy(word[:], src[i*8:min(len(src), (i+1)*8)])
		b.bitBlock[i] = binary.LittleEndian.Uint64(word[:])
	}
	if rem := size % 64; rem != 0 {
		b.bitBlock[len(b.bitBlock)-1] &= 1<<rem - 1
	}
	b.numOnes = uint32(b.countOnesForAllBlocks())
	return b, nil
}

// MarshalBytes encodes the bitmap into dst, which must hold Size()/8 bytes
// rounded up. Bits of dst past Size() are left alone.
func (b *Bitmap) MarshalBytes(dst []byte) {
	var word [8]byte
	for i, w := range b.bitBlock {
		binary.LittleEndian.PutUint64(word[:], w)
		n := min(8, int(b.size+7)/8-i*8)
		if rem := (b.size - uint32(i)*64); rem < 64 && rem%8 != 0 {
			// Merge the partial last byte.
			last := n - 1
			mask := byte(1)<<(rem%8) - 1
			word[last] = word[last]&mask | dst[i*8+last]&^mask
		}
		copy(dst[i*8:], word[:n])
	}
}

// IsEmpty verifies whether the Bitmap is empty.
func (b *Bitmap) IsEmpty() bool {
	return b.numOnes == 0
}

// Size returns the total number of bits in the bitmap.
func (b *Bitmap) Size() uint32 {
	return b.size
}

// Has returns true if i is set.
func (b *Bitmap) Has(i uint32) bool {
	return i < b.size && b.bitBlock[i/64]&(uint64(1)<<(i%64)) != 0
}

// FirstZero returns the first unset bit from the range [start, Size()).
func (b *Bitmap) FirstZero(start uint32) (bit uint32, err error) {
	if start >= b.size {
		return math.MaxUint32, fmt.Errorf("given start of range exceeds bitmap size")
	}
	i, nbit := int(start/64), start%64
	n := len(b.bitBlock)
	w := b.bitBlock[i] | ((1 << nbit) - 1)
	for {
		if w != ^uint64(0) {
			r := uint32(bits.TrailingZeros64(^w) + i*64)
			if r >= b.size {
				break
			}
			return r, nil
		}
		i++
		if i == n {
			break
		}
		w = b.bitBlock[i]
	}
	return math.MaxUint32, fmt.Errorf("bitmap has no unset bits")
}

// FirstOne returns the first set bit from the range [start, Size()).
func (b *Bitmap) FirstOne(start uint32) (bit uint32, err error) {
	if start >= b.size {
		return math.MaxUint32, fmt.Errorf("given start of range exceeds bitmap size")
	}
	i, nbit := int(start/64), start%64
	n := len(b.bitBlock)
	w := b.bitBlock[i] & (math.MaxUint64 << nbit)
	for {
		if w != uint64(0) {
			r := bits.TrailingZeros64(w)
			return uint32(r + i*64), nil
		}
		i++
		if i == n {
			break
		}
		w = b.bitBlock[i]
	}
	return math.MaxUint32, fmt.Errorf("bitmap has no set bits")
}

// Add adds i to the Bitmap. It panics if i is out of range.
func (b *Bitmap) Add(i uint32) {
	if i >= b.size {
		panic(fmt.Sprintf("bit %d out of range [0, %d)", i, b.size))
	}
	blockNum, mask := i/64, uint64(1)<<(i%64)
	oldBlock := b.bitBlock[blockNum]
	newBlock := oldBlock | mask
	if oldBlock != newBlock {
		b.bitBlock[blockNum] = newBlock
		b.numOnes++
	}
}

// Remove removes i from the Bitmap.
func (b *Bitmap) Remove(i uint32) {
	if i >= b.size {
		return
	}
	blockNum, mask := i/64, uint64(1)<<(i%64)
	oldBlock := b.bitBlock[blockNum]
	newBlock := oldBlock &^ mask
	if oldBlock != newBlock {
		b.bitBlock[blockNum] = newBlock
		b.numOnes--
	}
}

// Clone the Bitmap.
func (b *Bitmap) Clone() Bitmap {
	bitmap := Bitmap{b.size, b.numOnes, make([]uint64, len(b.bitBlock))}
	copy(bitmap.bitBlock, b.bitBlock)
	return bitmap
}

// countOnesForBlocks count all 1 bits within b.bitBlock of begin and that of end.
// The begin block and end block are inclusive.
func (b *Bitmap) countOnesForBlocks(begin, end uint32) uint64 {
	ones := uint64(0)
	beginBlock := begin / 64
	endBlock := end / 64
	for i := beginBlock; i <= endBlock; i++ {
		ones += uint64(bits.OnesCount64(b.bitBlock[i]))
	}
	return ones
}

// countOnesForAllBlocks count all 1 bits in b.bitBlock.
func (b *Bitmap) countOnesForAllBlocks() uint64 {
	ones := uint64(0)
	for i := 0; i < len(b.bitBlock); i++ {
		ones += uint64(bits.OnesCount64(b.bitBlock[i]))
	}
	return ones
}

// rangeMask returns the bits of word w that fall inside [begin, end].
func rangeMask(w, begin, end uint32) uint64 {
	lo, hi := w*64, w*64+63
	m := ^uint64(0)
	if begin > lo {
		m &= ^uint64(0) << (begin - lo)
	}
	if end < hi {
		m &= (uint64(1) << (end - lo + 1)) - 1
	}
	return m
}

// apply sets or clears the bits within range (begin and end), updating the
// count of ones. begin is inclusive and end is exclusive.
func (b *Bitmap) apply(begin, end uint32, set bool) {
	end = min(end, b.size)
	if begin >= end {
		return
	}
	last := end - 1
	oldRangeOnes := b.countOnesForBlocks(begin, last)
	for w := begin / 64; w <= last/64; w++ {
		m := rangeMask(w, begin, last)
		if set {
			b.bitBlock[w] |= m
		} else {
			b.bitBlock[w] &^= m
		}
	}
	newRangeOnes := b.countOnesForBlocks(begin, last)
	b.numOnes = uint32(int64(b.numOnes) + int64(newRangeOnes) - int64(oldRangeOnes))
}

// AddRange sets bits within range (begin and end). begin is inclusive and end
// is exclusive. Bits past Size() are ignored.
func (b *Bitmap) AddRange(begin, end uint32) {
	b.apply(begin, end, true)
}

// ClearRange clears bits within range (begin and end). begin is inclusive and
// end is exclusive.
func (b *Bitmap) ClearRange(begin, end uint32) {
	b.apply(begin, end, false)
}

// ToSlice transform the Bitmap into slice. For example, a bitmap of [0, 1, 0, 1]
// will return the slice [1, 3].
func (b *Bitmap) ToSlice() []uint32 {
	bitmapSlice := make([]uint32, 0, b.numOnes)
	// base is the start number of a bitBlock
	base := 0
	for i := 0; i < len(b.bitBlock); i++ {
		bitBlock := b.bitBlock[i]
		// Iterate through all the numbers held by this bit block.
		for bitBlock != 0 {
			// Extract the lowest set 1 bit.
			j := bitBlock & -bitBlock
			// Interpret the bit as the in32 number it represents and add it to result.
			bitmapSlice = append(bitmapSlice, uint32((base + int(bits.OnesCount64(j-1)))))
			bitBlock ^= j
		}
		base += 64
	}
	return bitmapSlice
}

// GetNumOnes return the the number of ones in the Bitmap.
func (b *Bitmap) GetNumOnes() uint32 {
	return b.numOnes
}

// GetNumZeros returns the number of unset bits in [0, Size()).
func (b *Bitmap) GetNumZeros() uint32 {
	return b.size - b.numOnes
}
