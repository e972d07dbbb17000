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
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/idedisk/idectl/cmd/util"
	"gvisor.dev/idedisk/idectl/config"
	"gvisor.dev/idedisk/pkg/ide"
)

// Read implements subcommands.Command for the "read" command.
type Read struct {
	raw bool
}

// Name implements subcommands.Command.Name.
func (*Read) Name() string {
	return "read"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Read) Synopsis() string {
	return "read one block from a drive"
}

// Usage implements subcommands.Command.Usage.
func (*Read) Usage() string {
	return `read [flags] <device> <block> - read one block and dump it in hex.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Read) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.raw, "raw", false, "write the block to stdout unformatted.")
}

// Execute implements subcommands.Command.Execute.
func (r *Read) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	vals, err := parseArgs(f.Args(), "device", "block")
	if err != nil {
		util.Fatalf("%v", err)
	}

	err = withDisk(ctx, conf, vals[0], func(_ *ide.Driver, disk *ide.Disk) error {
		data := make([]byte, disk.BlockSize())
		if err := disk.ReadBlock(vals[1], data); err != nil {
			return err
		}
		if r.raw {
			_, err := os.Stdout.Write(data)
			return err
		}
		d := hex.Dumper(os.Stdout)
		d.Write(data)
		return d.Close()
	})
	if err != nil {
		util.Fatalf("reading block %d of device %d: %v", vals[1], vals[0], err)
	}
	return subcommands.ExitSuccess
}

// Write implements subcommands.Command for the "write" command.
type Write struct {
	fill  uint
	input string
}

// Name implements subcommands.Command.Name.
func (*Write) Name() string {
	return "write"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Write) Synopsis() string {
	return "write one block to a drive"
}

// Usage implements subcommands.Command.Usage.
func (*Write) Usage() string {
	return `write [flags] <device> <block> - write one block, filled with a byte or
read from a file. Short input is padded with zeros.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (w *Write) SetFlags(f *flag.FlagSet) {
	f.UintVar(&w.fill, "fill", 0, "byte value to fill the block with.")
	f.StringVar(&w.input, "input", "", "file to take the block contents from, - for stdin.")
}

func (w *Write) contents(size int) ([]byte, error) {
	if w.input == "" {
		if w.fill > 0xff {
			return nil, fmt.Errorf("fill value %#x does not fit a byte", w.fill)
		}
		return bytes.Repeat([]byte{byte(w.fill)}, size), nil
	}
	var in io.Reader = os.Stdin
	if w.input != "-" {
		f, err := os.Open(w.input)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		in = f
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(in, data); err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return data, nil
}

// Execute implements subcommands.Command.Execute.
func (w *Write) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	vals, err := parseArgs(f.Args(), "device", "block")
	if err != nil {
		util.Fatalf("%v", err)
	}

	err = withDisk(ctx, conf, vals[0], func(_ *ide.Driver, disk *ide.Disk) error {
		data, err := w.contents(disk.BlockSize())
		if err != nil {
			return err
		}
		return disk.WriteBlock(vals[1], data)
	})
	if err != nil {
		util.Fatalf("writing block %d of device %d: %v", vals[1], vals[0], err)
	}
	return subcommands.ExitSuccess
}
