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
	"crypto/rand"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"gvisor.dev/idedisk/idectl/cmd/util"
	"gvisor.dev/idedisk/idectl/config"
	"gvisor.dev/idedisk/pkg/ext2"
	"gvisor.dev/idedisk/pkg/ide"
)

// Mkfs implements subcommands.Command for the "mkfs" command.
type Mkfs struct {
	label          string
	blocksPerGroup uint
	inodesPerGroup uint
}

// Name implements subcommands.Command.Name.
func (*Mkfs) Name() string {
	return "mkfs"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Mkfs) Synopsis() string {
	return "write an empty ext2 volume to a drive"
}

// Usage implements subcommands.Command.Usage.
func (*Mkfs) Usage() string {
	return `mkfs [flags] <device> - write an empty ext2 volume spanning the drive.
The filesystem block size is the drive's block size.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *Mkfs) SetFlags(f *flag.FlagSet) {
	f.StringVar(&m.label, "label", "", "volume label, at most 16 bytes.")
	f.UintVar(&m.blocksPerGroup, "blocks-per-group", 0, "blocks per group. Zero uses the most one bitmap block can track.")
	f.UintVar(&m.inodesPerGroup, "inodes-per-group", 0, "inodes per group, rounded up to fill inode table blocks. Zero uses 128.")
}

// Execute implements subcommands.Command.Execute.
func (m *Mkfs) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	vals, err := parseArgs(f.Args(), "device")
	if err != nil {
		util.Fatalf("%v", err)
	}

	opts := ext2.FormatOptions{
		Label:          m.label,
		BlocksPerGroup: uint32(m.blocksPerGroup),
		InodesPerGroup: uint32(m.inodesPerGroup),
	}
	rand.Read(opts.UUID[:])

	err = withDisk(ctx, conf, vals[0], func(_ *ide.Driver, disk *ide.Disk) error {
		sb, err := ext2.Format(disk, opts)
		if err != nil {
			return err
		}
		fmt.Printf("%d blocks of %d bytes, %d block groups, %d inodes, %d free blocks\n",
			sb.BlocksCount, sb.BlockSize(), sb.BlockGroupCount(), sb.InodesCount, sb.FreeBlocksCount)
		return nil
	})
	if err != nil {
		util.Fatalf("formatting device %d: %v", vals[0], err)
	}
	return subcommands.ExitSuccess
}
