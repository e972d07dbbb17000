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

package ide

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/idedisk/pkg/abi/ata"
	"gvisor.dev/idedisk/pkg/atadev"
	"gvisor.dev/idedisk/pkg/buf"
)

type harness struct {
	ctl   *atadev.Controller
	d     *Driver
	media map[uint32]*atadev.MemMedia
}

// newHarness attaches in-memory media for devs to an emulated controller and
// probes them. If serve is set, interrupts are dispatched until the test ends.
func newHarness(t *testing.T, opts atadev.Options, serve bool, devs ...DeviceConfig) *harness {
	t.Helper()
	h := &harness{
		ctl:   atadev.New(opts),
		media: make(map[uint32]*atadev.MemMedia),
	}
	for _, dc := range devs {
		m := atadev.NewMemMedia(dc.Blocks * uint32(dc.BlockSize/ata.SectorSize))
		if err := h.ctl.Attach(dc.ID, m); err != nil {
			t.Fatalf("Attach(%d) failed: %v", dc.ID, err)
		}
		h.media[dc.ID] = m
	}
	d, err := New(h.ctl, Config{Devices: devs, ReadyLimit: 1000, ProbeLimit: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.d = d
	if got := d.Probe(); len(got) != len(devs) {
		t.Fatalf("Probe() = %v, want all of %d devices", got, len(devs))
	}
	if serve {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- d.Serve(ctx, h.ctl.Lines()) }()
		t.Cleanup(func() {
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Serve returned %v", err)
			}
		})
	}
	return h
}

func pattern(seed, n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(seed*31 + i*7 + 1)
	}
	return p
}

func submit(t *testing.T, d *Driver, b *buf.Buf) error {
	t.Helper()
	b.Lock()
	defer b.Unlock()
	return d.Submit(b)
}

func expectPanic(t *testing.T, substr string, f func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q", substr)
		}
		if msg := fmt.Sprint(r); !strings.Contains(msg, substr) {
			t.Fatalf("panic %q does not contain %q", msg, substr)
		}
	}()
	f()
}

func TestNewValidation(t *testing.T) {
	for _, tc := range []struct {
		name string
		devs []DeviceConfig
		want string
	}{
		{"id out of range", []DeviceConfig{{ID: 4, BlockSize: 512, Blocks: 1}}, "out of range"},
		{"duplicate", []DeviceConfig{{ID: 1, BlockSize: 512, Blocks: 1}, {ID: 1, BlockSize: 512, Blocks: 1}}, "twice"},
		{"partial sector", []DeviceConfig{{ID: 0, BlockSize: 1000, Blocks: 1}}, "multiple"},
		{"too many sectors", []DeviceConfig{{ID: 0, BlockSize: 4096, Blocks: 1}}, "limit is 7"},
		{"zero capacity", []DeviceConfig{{ID: 0, BlockSize: 512}}, "zero capacity"},
		{"lba overflow", []DeviceConfig{{ID: 0, BlockSize: 1024, Blocks: 1 << 28}}, "28-bit"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(atadev.New(atadev.Options{}), Config{Devices: tc.devs})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("New() = %v, want error containing %q", err, tc.want)
			}
		})
	}

	d, err := New(atadev.New(atadev.Options{}), Config{Devices: []DeviceConfig{{ID: 3, BlockSize: 3584, Blocks: 8}}})
	if err != nil {
		t.Fatalf("seven sectors per block rejected: %v", err)
	}
	if got := d.BlockSize(3); got != 3584 {
		t.Errorf("BlockSize(3) = %d, want 3584", got)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	devs := []DeviceConfig{
		{ID: 0, BlockSize: 512, Blocks: 64},
		{ID: 1, BlockSize: 1024, Blocks: 64},
		{ID: 2, BlockSize: 1024, Blocks: 64},
		{ID: 3, BlockSize: 2048, Blocks: 64},
	}
	h := newHarness(t, atadev.Options{}, true, devs...)

	for _, dc := range devs {
		t.Run(fmt.Sprintf("dev%d", dc.ID), func(t *testing.T) {
			want := pattern(int(dc.ID), dc.BlockSize)
			w := buf.New(dc.ID, 9, dc.BlockSize)
			copy(w.Data, want)
			w.MarkDirty()
			if err := submit(t, h.d, w); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			if w.Dirty() || !w.Valid() {
				t.Errorf("after write flags = %v, want valid", w.Flags)
			}

			r := buf.New(dc.ID, 9, dc.BlockSize)
			if err := submit(t, h.d, r); err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if !r.Valid() || r.Dirty() {
				t.Errorf("after read flags = %v, want valid", r.Flags)
			}
			if diff := cmp.Diff(want, r.Data); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}

			// The block lands at sector 9 * sectors per block.
			raw := make([]byte, dc.BlockSize)
			spb := uint32(dc.BlockSize / ata.SectorSize)
			if err := h.media[dc.ID].ReadSectors(9*spb, raw); err != nil {
				t.Fatalf("ReadSectors failed: %v", err)
			}
			if !bytes.Equal(raw, want) {
				t.Errorf("media does not hold the written block")
			}
		})
	}

	s := h.d.Stats()
	if s[0].Reads != 2 || s[0].Writes != 2 || s[1].Reads != 2 || s[1].Writes != 2 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestReadUnwrittenBlockIsZero(t *testing.T) {
	h := newHarness(t, atadev.Options{}, true, DeviceConfig{ID: 0, BlockSize: 1024, Blocks: 16})
	b := buf.New(0, 15, 1024)
	for i := range b.Data {
		b.Data[i] = 0xaa
	}
	if err := submit(t, h.d, b); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(b.Data, make([]byte, 1024)) {
		t.Errorf("unwritten block did not read as zeros")
	}
}

// TestFIFO delivers interrupts by hand and checks that requests on a channel
// are started one at a time and completed in submission order.
func TestFIFO(t *testing.T) {
	h := newHarness(t, atadev.Options{}, false,
		DeviceConfig{ID: 0, BlockSize: 512, Blocks: 16},
		DeviceConfig{ID: 1, BlockSize: 512, Blocks: 16},
	)
	const n = 4
	done := make(chan uint32, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		b := buf.New(uint32(i&1), uint32(i), 512)
		copy(b.Data, pattern(i, 512))
		b.MarkDirty()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := submit(t, h.d, b); err != nil {
				t.Errorf("submit %d failed: %v", b.BlockNo, err)
			}
			done <- b.BlockNo
		}()
		// Wait for the request to be queued so submission order is known.
		for h.d.QueueLen(0) != i+1 {
			time.Sleep(100 * time.Microsecond)
		}
	}

	if got := h.d.Stats()[0].Writes; got != 1 {
		t.Fatalf("%d requests started with one in flight, want 1", got)
	}

	var order []uint32
	for i := 0; i < n; i++ {
		h.d.Interrupt(0)
		order = append(order, <-done)
		if got := h.d.Stats()[0].Writes; got != uint64(min(i+2, n)) {
			t.Errorf("after %d completions %d requests started", i+1, got)
		}
	}
	wg.Wait()
	if diff := cmp.Diff([]uint32{0, 1, 2, 3}, order); diff != "" {
		t.Errorf("completion order mismatch (-want +got):\n%s", diff)
	}
	if h.d.QueueLen(0) != 0 {
		t.Errorf("queue not drained")
	}
}

func TestChannelsIndependent(t *testing.T) {
	h := newHarness(t, atadev.Options{}, false,
		DeviceConfig{ID: 0, BlockSize: 512, Blocks: 16},
		DeviceConfig{ID: 2, BlockSize: 512, Blocks: 16},
	)
	primary := buf.New(0, 1, 512)
	secondary := buf.New(2, 1, 512)
	primaryDone := make(chan error, 1)
	go func() { primaryDone <- submit(t, h.d, primary) }()
	for h.d.QueueLen(0) != 1 {
		time.Sleep(100 * time.Microsecond)
	}

	// The secondary channel completes while the primary is still pending.
	secondaryDone := make(chan error, 1)
	go func() { secondaryDone <- submit(t, h.d, secondary) }()
	for h.d.QueueLen(1) != 1 {
		time.Sleep(100 * time.Microsecond)
	}
	h.d.Interrupt(1)
	if err := <-secondaryDone; err != nil {
		t.Fatalf("secondary read failed: %v", err)
	}
	select {
	case <-primaryDone:
		t.Fatalf("primary completed without its interrupt")
	default:
	}
	h.d.Interrupt(0)
	if err := <-primaryDone; err != nil {
		t.Fatalf("primary read failed: %v", err)
	}
}

func TestSpuriousInterrupt(t *testing.T) {
	h := newHarness(t, atadev.Options{}, false, DeviceConfig{ID: 0, BlockSize: 512, Blocks: 4})
	h.d.Interrupt(1)
	h.d.Interrupt(1)
	s := h.d.Stats()
	if s[1].Interrupts != 2 || s[1].Spurious != 2 {
		t.Errorf("stats %+v, want two spurious interrupts on channel 1", s[1])
	}
}

func TestMediaErrors(t *testing.T) {
	h := newHarness(t, atadev.Options{}, true, DeviceConfig{ID: 1, BlockSize: 1024, Blocks: 16})
	// Block 3 covers sectors 6 and 7.
	h.ctl.InjectBadSector(1, 7)

	r := buf.New(1, 3, 1024)
	err := submit(t, h.d, r)
	if !errors.Is(err, ErrMedia) {
		t.Fatalf("read of bad block = %v, want ErrMedia", err)
	}
	if r.Valid() {
		t.Errorf("failed read marked buffer valid")
	}

	w := buf.New(1, 3, 1024)
	w.MarkDirty()
	if err := submit(t, h.d, w); !errors.Is(err, ErrMedia) {
		t.Fatalf("write of bad block = %v, want ErrMedia", err)
	}
	if !w.Dirty() {
		t.Errorf("failed write cleared dirty")
	}

	// The failure does not poison the channel, and the same buffer can be
	// retried elsewhere.
	w.BlockNo = 4
	if err := submit(t, h.d, w); err != nil || w.Dirty() || w.Err != nil {
		t.Errorf("retry on good block = %v, flags %v", err, w.Flags)
	}
	if got := h.d.Stats()[0].Errors; got != 2 {
		t.Errorf("Errors = %d, want 2", got)
	}
}

func TestSubmitPanics(t *testing.T) {
	h := newHarness(t, atadev.Options{}, true, DeviceConfig{ID: 0, BlockSize: 512, Blocks: 4})

	t.Run("not locked", func(t *testing.T) {
		expectPanic(t, "not locked", func() { h.d.Submit(buf.New(0, 0, 512)) })
	})
	t.Run("nothing to do", func(t *testing.T) {
		b := buf.New(0, 0, 512)
		b.Flags = buf.FlagValid
		expectPanic(t, "nothing to do", func() { submit(t, h.d, b) })
	})
	t.Run("absent device", func(t *testing.T) {
		expectPanic(t, "not present", func() { submit(t, h.d, buf.New(2, 0, 512)) })
	})
	t.Run("wrong size", func(t *testing.T) {
		expectPanic(t, "block size", func() { submit(t, h.d, buf.New(0, 0, 1024)) })
	})
	t.Run("beyond capacity", func(t *testing.T) {
		expectPanic(t, "beyond capacity", func() { submit(t, h.d, buf.New(0, 4, 512)) })
	})
	t.Run("beyond capacity while busy", func(t *testing.T) {
		busy := newHarness(t, atadev.Options{}, false, DeviceConfig{ID: 0, BlockSize: 512, Blocks: 4})
		first := buf.New(0, 1, 512)
		firstDone := make(chan error, 1)
		go func() { firstDone <- submit(t, busy.d, first) }()
		for busy.d.QueueLen(0) != 1 {
			time.Sleep(100 * time.Microsecond)
		}

		// The bad request is refused in the caller and never queued.
		expectPanic(t, "beyond capacity", func() { submit(t, busy.d, buf.New(0, 4, 512)) })
		if got := busy.d.QueueLen(0); got != 1 {
			t.Errorf("QueueLen(0) = %d after refused submit, want 1", got)
		}

		busy.d.Interrupt(0)
		if err := <-firstDone; err != nil {
			t.Fatalf("in-flight read failed: %v", err)
		}
		if got := busy.d.QueueLen(0); got != 0 {
			t.Errorf("QueueLen(0) = %d after completion, want 0", got)
		}
	})
}

func TestProbe(t *testing.T) {
	ctl := atadev.New(atadev.Options{})
	ctl.Attach(0, atadev.NewMemMedia(8))
	ctl.Attach(3, atadev.NewMemMedia(8))
	rec := &recorder{PortIO: ctl}
	d, err := New(rec, Config{
		Devices: []DeviceConfig{
			{ID: 0, BlockSize: 512, Blocks: 8},
			{ID: 1, BlockSize: 512, Blocks: 8},
			{ID: 3, BlockSize: 512, Blocks: 8},
		},
		ProbeLimit: 5,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if diff := cmp.Diff([]uint32{0, 3}, d.Probe()); diff != "" {
		t.Errorf("Probe mismatch (-want +got):\n%s", diff)
	}
	if d.Present(1) || !d.Present(3) {
		t.Errorf("Present disagrees with probe")
	}
	// Each channel ends with unit 0 selected.
	last := map[uint16]uint8{}
	for _, w := range rec.writes {
		last[w.port] = w.v
	}
	for _, port := range []uint16{ata.PrimaryBase + ata.RegDrive, ata.SecondaryBase + ata.RegDrive} {
		if last[port] != ata.DriveLBA {
			t.Errorf("drive register %#x left at %#x, want %#x", port, last[port], ata.DriveLBA)
		}
	}
	if _, err := d.Disk(1); err == nil {
		t.Errorf("Disk(1) succeeded for absent device")
	}
}

func TestWedgedDevicePanics(t *testing.T) {
	h := newHarness(t, atadev.Options{}, false, DeviceConfig{ID: 2, BlockSize: 512, Blocks: 4})
	h.ctl.Wedge(2)
	expectPanic(t, "not ready", func() { submit(t, h.d, buf.New(2, 0, 512)) })
}

type portWrite struct {
	port uint16
	v    uint8
}

type recorder struct {
	PortIO

	mu     sync.Mutex
	writes []portWrite
}

func (r *recorder) Outb(port uint16, v uint8) {
	r.mu.Lock()
	r.writes = append(r.writes, portWrite{port, v})
	r.mu.Unlock()
	r.PortIO.Outb(port, v)
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.writes = nil
	r.mu.Unlock()
}

func TestRegisterProgramming(t *testing.T) {
	for _, tc := range []struct {
		name  string
		dev   uint32
		bs    int
		blk   uint32
		dirty bool
		want  []portWrite
	}{
		{
			name: "single sector read on primary master",
			dev:  0, bs: 512, blk: 0x123456,
			want: []portWrite{
				{0x1f6, 0xe0},
				{0x3f6, 0},
				{0x1f2, 1},
				{0x1f3, 0x56},
				{0x1f4, 0x34},
				{0x1f5, 0x12},
				{0x1f6, 0xe0},
				{0x1f7, ata.CmdRead},
			},
		},
		{
			name: "multiple sector write on secondary slave",
			dev:  3, bs: 1024, blk: 0x800001, dirty: true,
			want: []portWrite{
				{0x176, 0xf1},
				{0x376, 0},
				{0x172, 2},
				{0x173, 0x02},
				{0x174, 0x00},
				{0x175, 0x00},
				{0x176, 0xf1},
				{0x177, ata.CmdWriteMulti},
			},
		},
		{
			name: "multiple sector read on primary slave",
			dev:  1, bs: 2048, blk: 3,
			want: []portWrite{
				{0x1f6, 0xf0},
				{0x3f6, 0},
				{0x1f2, 4},
				{0x1f3, 12},
				{0x1f4, 0},
				{0x1f5, 0},
				{0x1f6, 0xf0},
				{0x1f7, ata.CmdReadMulti},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctl := atadev.New(atadev.Options{})
			ctl.Attach(tc.dev, atadev.NewMemMedia(ata.MaxLBA-1))
			rec := &recorder{PortIO: ctl}
			d, err := New(rec, Config{Devices: []DeviceConfig{{ID: tc.dev, BlockSize: tc.bs, Blocks: 0x1000000}}})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			d.Probe()
			rec.reset()

			b := buf.New(tc.dev, tc.blk, tc.bs)
			if tc.dirty {
				b.MarkDirty()
			}
			errc := make(chan error, 1)
			go func() { errc <- submit(t, d, b) }()
			for d.QueueLen(ata.Channel(tc.dev)) == 0 {
				time.Sleep(100 * time.Microsecond)
			}
			d.Interrupt(ata.Channel(tc.dev))
			if err := <-errc; err != nil {
				t.Fatalf("submit failed: %v", err)
			}

			rec.mu.Lock()
			defer rec.mu.Unlock()
			got := rec.writes
			if len(got) > len(tc.want) {
				got = got[:len(tc.want)]
			}
			if diff := cmp.Diff(tc.want, got, cmp.AllowUnexported(portWrite{})); diff != "" {
				t.Errorf("register writes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConcurrentSubmitters(t *testing.T) {
	devs := []DeviceConfig{
		{ID: 0, BlockSize: 1024, Blocks: 256},
		{ID: 1, BlockSize: 512, Blocks: 256},
		{ID: 2, BlockSize: 1024, Blocks: 256},
		{ID: 3, BlockSize: 3584, Blocks: 256},
	}
	h := newHarness(t, atadev.Options{Latency: 20 * time.Microsecond}, true, devs...)

	var g errgroup.Group
	for _, dc := range devs {
		for worker := 0; worker < 4; worker++ {
			dc, worker := dc, worker
			g.Go(func() error {
				for i := 0; i < 8; i++ {
					blk := uint32(worker*8 + i)
					want := pattern(int(dc.ID)*1000+int(blk), dc.BlockSize)
					w := buf.New(dc.ID, blk, dc.BlockSize)
					copy(w.Data, want)
					w.MarkDirty()
					if err := submit(t, h.d, w); err != nil {
						return err
					}
					r := buf.New(dc.ID, blk, dc.BlockSize)
					if err := submit(t, h.d, r); err != nil {
						return err
					}
					if !bytes.Equal(r.Data, want) {
						return fmt.Errorf("device %d block %d: read back different data", dc.ID, blk)
					}
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	var total uint64
	for _, cs := range h.d.Stats() {
		total += cs.Reads + cs.Writes
		if cs.Spurious != 0 || cs.Errors != 0 {
			t.Errorf("unexpected stats %+v", cs)
		}
	}
	if want := uint64(len(devs) * 4 * 8 * 2); total != want {
		t.Errorf("%d requests issued, want %d", total, want)
	}
}

func TestDisk(t *testing.T) {
	h := newHarness(t, atadev.Options{}, true, DeviceConfig{ID: 2, BlockSize: 1024, Blocks: 32})
	k, err := h.d.Disk(2)
	if err != nil {
		t.Fatalf("Disk failed: %v", err)
	}
	if k.ID() != 2 || k.BlockSize() != 1024 || k.Blocks() != 32 {
		t.Errorf("Disk geometry %d/%d/%d", k.ID(), k.BlockSize(), k.Blocks())
	}
	want := pattern(5, 1024)
	if err := k.WriteBlock(31, want); err != nil {
		t.Fatalf("WriteBlock failed: %v", err)
	}
	got := make([]byte, 1024)
	if err := k.ReadBlock(31, got); err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if err := k.ReadBlock(32, got); !errors.Is(err, ErrBadBlock) {
		t.Errorf("ReadBlock(32) = %v, want ErrBadBlock", err)
	}
	if err := k.WriteBlock(0, got[:10]); err == nil {
		t.Errorf("WriteBlock with short buffer succeeded")
	}
	if _, err := h.d.Disk(0); err == nil {
		t.Errorf("Disk(0) succeeded for unconfigured device")
	}
}
