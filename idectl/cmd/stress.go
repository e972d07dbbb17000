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

package cmd

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/idedisk/idectl/cmd/util"
	"gvisor.dev/idedisk/idectl/config"
	"gvisor.dev/idedisk/pkg/ide"
	"gvisor.dev/idedisk/pkg/log"
)

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	workers  int
	requests int
	seed     int64
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "run concurrent writers and readers against every present drive"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [flags] - each worker writes tagged blocks to its own slice of a
drive and reads them back, checking the contents.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.workers, "workers", 4, "workers per drive.")
	f.IntVar(&s.requests, "requests", 256, "blocks written and read by each worker.")
	f.Int64Var(&s.seed, "seed", 0, "random seed. Zero uses the current time.")
}

// errMismatch is returned when a block does not read back as written.
var errMismatch = errors.New("block read back with wrong contents")

// stamp fills p with a pattern derived from dev and blkno.
func stamp(p []byte, dev, blkno uint32) {
	for off := 0; off+8 <= len(p); off += 8 {
		binary.LittleEndian.PutUint32(p[off:], dev)
		binary.LittleEndian.PutUint32(p[off+4:], blkno^uint32(off))
	}
}

// worker owns the blocks of disk congruent to id modulo n.
func (s *Stress) worker(disk *ide.Disk, id, n int, rng *rand.Rand) error {
	var blocks []uint32
	for b := uint32(id); b < disk.Blocks(); b += uint32(n) {
		blocks = append(blocks, b)
	}
	if len(blocks) == 0 {
		return nil
	}
	want := make([]byte, disk.BlockSize())
	got := make([]byte, disk.BlockSize())
	for i := 0; i < s.requests; i++ {
		b := blocks[rng.Intn(len(blocks))]
		stamp(want, disk.ID(), b)
		if err := disk.WriteBlock(b, want); err != nil {
			return fmt.Errorf("device %d block %d: %w", disk.ID(), b, err)
		}
		if err := disk.ReadBlock(b, got); err != nil {
			return fmt.Errorf("device %d block %d: %w", disk.ID(), b, err)
		}
		if !bytes.Equal(got, want) {
			return fmt.Errorf("device %d block %d: %w", disk.ID(), b, errMismatch)
		}
	}
	return nil
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if s.workers <= 0 || s.requests < 0 {
		util.Fatalf("workers must be positive and requests not negative")
	}
	conf := args[0].(*config.Config)
	seed := s.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Infof("Stress seed %d", seed)

	m, err := boot(ctx, conf)
	if err != nil {
		util.Fatalf("booting controller: %v", err)
	}
	start := time.Now()
	var g errgroup.Group
	for _, d := range conf.Devices {
		if !m.drv.Present(d.ID) {
			log.Warningf("Skipping absent device %d", d.ID)
			continue
		}
		disk, err := m.drv.Disk(d.ID)
		if err != nil {
			util.Fatalf("%v", err)
		}
		for id := 0; id < s.workers; id++ {
			id := id
			rng := rand.New(rand.NewSource(seed + int64(d.ID)<<16 + int64(id)))
			g.Go(func() error { return s.worker(disk, id, s.workers, rng) })
		}
	}
	err = g.Wait()
	elapsed := time.Since(start)
	if serr := m.shutdown(); serr != nil {
		err = errors.Join(err, serr)
	}
	if err != nil {
		util.Fatalf("stress failed: %v", err)
	}

	stats := m.drv.Stats()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tREADS\tWRITES\tINTERRUPTS\tSPURIOUS\tERRORS")
	for ch, cs := range stats {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\n", ch, cs.Reads, cs.Writes, cs.Interrupts, cs.Spurious, cs.Errors)
	}
	w.Flush()
	fmt.Printf("elapsed %v\n", elapsed.Round(time.Millisecond))
	return subcommands.ExitSuccess
}
