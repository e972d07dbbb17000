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

// Package buf defines the unit of work exchanged with block device drivers.
//
// A Buf names one block of one device and carries that block's payload. The
// caller allocates it, takes its sleep lock and hands it to a driver; the
// driver owns the flags and queue linkage until the request completes.
package buf

import (
	"fmt"
	"sync"
	"sync/atomic"

	"gvisor.dev/idedisk/pkg/ilist"
)

// Flags is the state of a buffer's payload.
type Flags uint32

const (
	// FlagValid is set when Data holds the block's contents as read from the
	// device.
	FlagValid Flags = 1 << iota

	// FlagDirty is set when Data must be written to the device.
	FlagDirty
)

func (f Flags) String() string {
	switch f & (FlagValid | FlagDirty) {
	case 0:
		return "none"
	case FlagValid:
		return "valid"
	case FlagDirty:
		return "dirty"
	default:
		return "valid|dirty"
	}
}

// Buf is one block-sized request.
//
// Dev, BlockNo and Data are set by the caller before submission and are not
// modified by the driver, except that a read fills Data. Flags, Err and the
// queue linkage are guarded by the driver's lock while the buffer is in
// flight.
type Buf struct {
	// Dev is the device identifier.
	Dev uint32

	// BlockNo is the block number in units of the device's block size.
	BlockNo uint32

	// Data holds exactly one block.
	Data []byte

	// Flags is the payload state.
	Flags Flags

	// Err is the completion error of the last request, nil on success.
	Err error

	// Entry links the buffer into a driver's request queue.
	ilist.Entry[*Buf]

	lock sleepLock
}

// New returns an unlocked buffer for block blkno of dev with a zeroed payload
// of blockSize bytes.
func New(dev, blkno uint32, blockSize int) *Buf {
	if blockSize <= 0 {
		panic(fmt.Sprintf("buf.New: invalid block size %d", blockSize))
	}
	return &Buf{
		Dev:     dev,
		BlockNo: blkno,
		Data:    make([]byte, blockSize),
	}
}

// Valid returns true if FlagValid is set.
func (b *Buf) Valid() bool { return b.Flags&FlagValid != 0 }

// Dirty returns true if FlagDirty is set.
func (b *Buf) Dirty() bool { return b.Flags&FlagDirty != 0 }

// MarkDirty requests that Data be written on the next submission.
func (b *Buf) MarkDirty() { b.Flags |= FlagDirty }

// Invalidate forces the next submission to read the block again.
func (b *Buf) Invalidate() { b.Flags &^= FlagValid }

// Done returns true once a request on b has completed, successfully or not.
func (b *Buf) Done() bool {
	return b.Err != nil || (b.Valid() && !b.Dirty())
}

// Lock acquires the buffer's sleep lock, blocking until it is available.
func (b *Buf) Lock() { b.lock.Lock() }

// Unlock releases the buffer's sleep lock.
func (b *Buf) Unlock() { b.lock.Unlock() }

// Holding returns true if the buffer's sleep lock is held.
func (b *Buf) Holding() bool { return b.lock.holding() }

func (b *Buf) String() string {
	return fmt.Sprintf("buf{dev %d, block %d, %v}", b.Dev, b.BlockNo, b.Flags)
}

// sleepLock is a mutex whose state can be inspected. Goroutines have no
// identity, so holding reports whether anyone holds the lock.
type sleepLock struct {
	mu     sync.Mutex
	locked atomic.Bool
}

func (l *sleepLock) Lock() {
	l.mu.Lock()
	l.locked.Store(true)
}

func (l *sleepLock) Unlock() {
	if !l.locked.Swap(false) {
		panic("buf: unlock of unlocked buffer")
	}
	l.mu.Unlock()
}

func (l *sleepLock) holding() bool {
	return l.locked.Load()
}
