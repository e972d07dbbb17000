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
	"errors"
	"fmt"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
	"gvisor.dev/idedisk/pkg/abi/ata"
	"gvisor.dev/idedisk/pkg/cleanup"
)

// ErrImageBusy is returned when another process has the image open.
var ErrImageBusy = errors.New("disk image is locked by another process")

// FileMedia is media backed by a disk image file. The image is locked for the
// lifetime of the FileMedia.
type FileMedia struct {
	path    string
	fd      int
	sectors uint32
	lock    *flock.Flock
}

// OpenFile opens the image at path. If size is non-zero the image is created
// if needed and sized to size bytes; otherwise it must exist and its current
// size is used. The size is truncated to whole sectors.
func OpenFile(path string, size int64) (*FileMedia, error) {
	lock := flock.New(path)
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if size > 0 {
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening image %q: %w", path, err)
	}
	cu := cleanup.MakeErr(func() error { return unix.Close(fd) })
	defer cu.Clean()

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking image %q: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%q: %w", path, ErrImageBusy)
	}
	cu.AddErr(lock.Unlock)

	if size > 0 {
		if err := unix.Ftruncate(fd, size); err != nil {
			return nil, fmt.Errorf("sizing image %q: %w", path, err)
		}
	} else {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return nil, fmt.Errorf("stat image %q: %w", path, err)
		}
		size = st.Size
	}
	sectors := size / ata.SectorSize
	if sectors == 0 || sectors > ata.MaxLBA {
		return nil, fmt.Errorf("image %q: %d sectors is outside [1, %d]", path, sectors, ata.MaxLBA)
	}

	cu.Release()
	return &FileMedia{
		path:    path,
		fd:      fd,
		sectors: uint32(sectors),
		lock:    lock,
	}, nil
}

// Sectors implements Media.Sectors.
func (f *FileMedia) Sectors() uint32 { return f.sectors }

// ReadSectors implements Media.ReadSectors.
func (f *FileMedia) ReadSectors(lba uint32, dst []byte) error {
	if err := checkRange(f, lba, len(dst)); err != nil {
		return err
	}
	off := int64(lba) * ata.SectorSize
	for done := 0; done < len(dst); {
		n, err := unix.Pread(f.fd, dst[done:], off+int64(done))
		if err != nil {
			return fmt.Errorf("reading %q at %d: %w", f.path, off+int64(done), err)
		}
		if n == 0 {
			// Past the end of a sparse image.
			clear(dst[done:])
			break
		}
		done += n
	}
	return nil
}

// WriteSectors implements Media.WriteSectors.
func (f *FileMedia) WriteSectors(lba uint32, src []byte) error {
	if err := checkRange(f, lba, len(src)); err != nil {
		return err
	}
	off := int64(lba) * ata.SectorSize
	for done := 0; done < len(src); {
		n, err := unix.Pwrite(f.fd, src[done:], off+int64(done))
		if err != nil {
			return fmt.Errorf("writing %q at %d: %w", f.path, off+int64(done), err)
		}
		done += n
	}
	return nil
}

// Sync flushes written sectors to stable storage.
func (f *FileMedia) Sync() error {
	if err := unix.Fsync(f.fd); err != nil {
		return fmt.Errorf("syncing %q: %w", f.path, err)
	}
	return nil
}

// Close syncs and closes the image and releases its lock.
func (f *FileMedia) Close() error {
	err := f.Sync()
	if cerr := unix.Close(f.fd); err == nil && cerr != nil {
		err = fmt.Errorf("closing %q: %w", f.path, cerr)
	}
	if uerr := f.lock.Unlock(); err == nil && uerr != nil {
		err = fmt.Errorf("unlocking %q: %w", f.path, uerr)
	}
	return err
}
