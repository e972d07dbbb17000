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

	"github.com/google/subcommands"
	"gvisor.dev/idedisk/idectl/cmd/util"
	"gvisor.dev/idedisk/idectl/config"
	"gvisor.dev/idedisk/pkg/abi/ata"
)

// Probe implements subcommands.Command for the "probe" command.
type Probe struct{}

// Name implements subcommands.Command.Name.
func (*Probe) Name() string {
	return "probe"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Probe) Synopsis() string {
	return "detect which configured drives respond"
}

// Usage implements subcommands.Command.Usage.
func (*Probe) Usage() string {
	return "probe - detect which configured drives respond\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Probe) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Probe) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	m, err := boot(ctx, conf)
	if err != nil {
		util.Fatalf("booting controller: %v", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tCHANNEL\tUNIT\tPRESENT\tBLOCK SIZE\tBLOCKS")
	for _, d := range conf.Devices {
		fmt.Fprintf(w, "%d\t%d\t%d\t%t\t%d\t%d\n", d.ID, ata.Channel(d.ID), ata.Unit(d.ID), m.drv.Present(d.ID), d.BlockSize, d.Blocks)
	}
	w.Flush()
	if err := m.shutdown(); err != nil {
		util.Fatalf("shutting down: %v", err)
	}
	return subcommands.ExitSuccess
}
