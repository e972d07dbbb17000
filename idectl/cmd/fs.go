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
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"gvisor.dev/idedisk/idectl/cmd/util"
	"gvisor.dev/idedisk/idectl/config"
	"gvisor.dev/idedisk/pkg/disklayout"
	"gvisor.dev/idedisk/pkg/ext2"
)

// SuperBlock implements subcommands.Command for the "superblock" command.
type SuperBlock struct {
	groups bool
}

// Name implements subcommands.Command.Name.
func (*SuperBlock) Name() string {
	return "superblock"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*SuperBlock) Synopsis() string {
	return "print the superblock of an ext2 volume"
}

// Usage implements subcommands.Command.Usage.
func (*SuperBlock) Usage() string {
	return "superblock [flags] <device> - print the superblock of the volume on a drive.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *SuperBlock) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&s.groups, "groups", false, "also print the block group descriptors.")
}

// Execute implements subcommands.Command.Execute.
func (s *SuperBlock) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	vals, err := parseArgs(f.Args(), "device")
	if err != nil {
		util.Fatalf("%v", err)
	}

	err = withVolume(ctx, conf, vals[0], func(v *ext2.Volume) error {
		sb := v.SuperBlock()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', 0)
		for _, row := range []struct {
			name string
			val  any
		}{
			{"Volume name:", sb.Label()},
			{"UUID:", fmt.Sprintf("%x", sb.UUID)},
			{"Revision:", sb.RevLevel},
			{"State:", sb.State},
			{"Block size:", sb.BlockSize()},
			{"Block count:", sb.BlocksCount},
			{"Free blocks:", sb.FreeBlocksCount},
			{"First data block:", sb.FirstDataBlock},
			{"Blocks per group:", sb.BlocksPerGroup},
			{"Inode count:", sb.InodesCount},
			{"Free inodes:", sb.FreeInodesCount},
			{"Inodes per group:", sb.InodesPerGroup},
			{"Inode size:", sb.InodeRecordSize()},
			{"First inode:", sb.FirstNonReservedInode()},
			{"Incompat features:", fmt.Sprintf("%#x", sb.FeatureIncompat)},
			{"Last write time:", time.Unix(int64(sb.WriteTime), 0).UTC()},
		} {
			fmt.Fprintf(w, "%s\t%v\n", row.name, row.val)
		}
		w.Flush()

		if !s.groups {
			return nil
		}
		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "GROUP\tBLOCK BITMAP\tINODE BITMAP\tINODE TABLE\tFREE BLOCKS\tFREE INODES\tDIRS")
		for i, gd := range v.Groups() {
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%d\n", i, gd.BlockBitmap, gd.InodeBitmap, gd.InodeTable, gd.FreeBlocksCount, gd.FreeInodesCount, gd.UsedDirsCount)
		}
		return w.Flush()
	})
	if err != nil {
		util.Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

// Stat implements subcommands.Command for the "stat" command.
type Stat struct{}

// Name implements subcommands.Command.Name.
func (*Stat) Name() string {
	return "stat"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stat) Synopsis() string {
	return "print an inode of an ext2 volume"
}

// Usage implements subcommands.Command.Usage.
func (*Stat) Usage() string {
	return "stat <device> <inode> - print an inode and its block map.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Stat) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Stat) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	vals, err := parseArgs(f.Args(), "device", "inode")
	if err != nil {
		util.Fatalf("%v", err)
	}

	err = withVolume(ctx, conf, vals[0], func(v *ext2.Volume) error {
		in, err := v.ReadInode(vals[1])
		if err != nil {
			return err
		}
		blk, off, _ := v.InodeLocation(vals[1])
		fmt.Printf("Inode: %d\tLocation: block %d offset %d\n", vals[1], blk, off)
		fmt.Printf("Mode: %s (%#o)\tLinks: %d\n", ext2.FormatMode(in.Mode), in.Mode, in.LinksCount)
		fmt.Printf("Uid: %d\tGid: %d\n", in.FullUID(), in.FullGID())
		fmt.Printf("Size: %d\tSectors: %d\tFlags: %#x\n", in.Size, in.Blocks, in.Flags)
		fmt.Printf("Modify: %s\n", in.ModTime().UTC())
		fmt.Printf("Direct:")
		for _, b := range in.Block[:disklayout.NumDirectBlocks] {
			fmt.Printf(" %d", b)
		}
		fmt.Printf("\nIndirect: %d\tDouble: %d\tTriple: %d\n",
			in.Block[disklayout.IndirectBlock], in.Block[disklayout.DoubleIndirectBlock], in.Block[disklayout.TripleIndirectBlock])
		return nil
	})
	if err != nil {
		util.Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

// Bmap implements subcommands.Command for the "bmap" command.
type Bmap struct{}

// Name implements subcommands.Command.Name.
func (*Bmap) Name() string {
	return "bmap"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Bmap) Synopsis() string {
	return "translate logical file blocks to volume blocks"
}

// Usage implements subcommands.Command.Usage.
func (*Bmap) Usage() string {
	return "bmap <device> <inode> <logical block>... - print the volume block holding each logical block; 0 is a hole.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Bmap) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Bmap) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() < 3 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	vals, err := parseArgs(f.Args(), "device", "inode", "logical block")
	if err != nil {
		util.Fatalf("%v", err)
	}

	err = withVolume(ctx, conf, vals[0], func(v *ext2.Volume) error {
		in, err := v.ReadInode(vals[1])
		if err != nil {
			return err
		}
		tr := v.Translator()
		for _, i := range vals[2:] {
			before := tr.Reads()
			pb, err := tr.Resolve(in, uint64(i))
			if err != nil {
				return err
			}
			fmt.Printf("%d\t%d\t(%d indirect reads)\n", i, pb, tr.Reads()-before)
		}
		return nil
	})
	if err != nil {
		util.Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

// Ls implements subcommands.Command for the "ls" command.
type Ls struct{}

// Name implements subcommands.Command.Name.
func (*Ls) Name() string {
	return "ls"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Ls) Synopsis() string {
	return "list a directory of an ext2 volume"
}

// Usage implements subcommands.Command.Usage.
func (*Ls) Usage() string {
	return "ls <device> [inode] - list the entries of a directory inode, the root by default.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Ls) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Ls) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() < 1 || f.NArg() > 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	vals, err := parseArgs(f.Args(), "device", "inode")
	if err != nil {
		util.Fatalf("%v", err)
	}
	ino := uint32(disklayout.RootInode)
	if len(vals) == 2 {
		ino = vals[1]
	}

	err = withVolume(ctx, conf, vals[0], func(v *ext2.Volume) error {
		dir, err := v.ReadInode(ino)
		if err != nil {
			return err
		}
		ents, err := v.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("inode %d: %w", ino, err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', 0)
		for _, e := range ents {
			in, err := v.ReadInode(e.Inode)
			if err != nil {
				return fmt.Errorf("entry %q: %w", e.Name, err)
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\n", e.Inode, ext2.FormatMode(in.Mode), in.LinksCount, in.Size, in.ModTime().UTC().Format(time.DateTime), e.Name)
		}
		return w.Flush()
	})
	if err != nil {
		util.Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

// Check implements subcommands.Command for the "check" command.
type Check struct{}

// Name implements subcommands.Command.Name.
func (*Check) Name() string {
	return "check"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Check) Synopsis() string {
	return "compare free counts with the allocation bitmaps"
}

// Usage implements subcommands.Command.Usage.
func (*Check) Usage() string {
	return "check <device> - verify the free block and inode counts of every group.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Check) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Check) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	vals, err := parseArgs(f.Args(), "device")
	if err != nil {
		util.Fatalf("%v", err)
	}

	err = withVolume(ctx, conf, vals[0], func(v *ext2.Volume) error {
		if err := v.Check(); err != nil {
			return err
		}
		fmt.Printf("%d groups consistent\n", len(v.Groups()))
		return nil
	})
	if err != nil {
		util.Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}
