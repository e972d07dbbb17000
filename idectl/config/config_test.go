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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newFlagSet(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	if err := testFlags.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return testFlags
}

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newFlagSet(t))
	if err != nil {
		t.Fatal(err)
	}
	// All defaults doesn't require setting flags.
	if flags := c.ToFlags(); len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
	if diff := cmp.Diff([]Device{{ID: 0, BlockSize: 1024, Blocks: 4096}}, c.Devices); diff != "" {
		t.Errorf("default devices (-want +got):\n%s", diff)
	}
}

func TestFromFlags(t *testing.T) {
	c, err := NewFromFlags(newFlagSet(t, "--debug", "--log-format=json", "--latency=50us", "--ready-limit=123"))
	if err != nil {
		t.Fatal(err)
	}
	if want := true; c.Debug != want {
		t.Errorf("Debug=%v, want: %v", c.Debug, want)
	}
	if want := "json"; c.LogFormat != want {
		t.Errorf("LogFormat=%v, want: %v", c.LogFormat, want)
	}
	if want := 50 * time.Microsecond; c.Latency != want {
		t.Errorf("Latency=%v, want: %v", c.Latency, want)
	}
	if want := 123; c.ReadyLimit != want {
		t.Errorf("ReadyLimit=%v, want: %v", c.ReadyLimit, want)
	}

	want := []string{"--debug=true", "--latency=50µs", "--log-format=json", "--ready-limit=123"}
	got := c.ToFlags()
	if diff := cmp.Diff(want, got, cmpSorted); diff != "" {
		t.Errorf("ToFlags (-want +got):\n%s", diff)
	}
}

var cmpSorted = cmp.Transformer("sorted", func(in []string) []string {
	out := append([]string(nil), in...)
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
})

func TestInvalidFlags(t *testing.T) {
	for _, args := range [][]string{
		{"--log-format=xml"},
		{"--latency=-1s"},
		{"--probe-limit=-1"},
		{"--devices=/nonexistent/devices.toml"},
	} {
		if _, err := NewFromFlags(newFlagSet(t, args...)); err == nil {
			t.Errorf("NewFromFlags(%v) succeeded", args)
		}
	}
}

const tomlTable = `
[defaults]
block_size = 2048
blocks = 100

[[device]]
id = 0

[[device]]
id = 3
block_size = 512
image = "/tmp/disk3.img"
bad_sectors = [7, 9]
`

const yamlTable = `
defaults:
  block_size: 2048
  blocks: 100
device:
  - id: 0
  - id: 3
    block_size: 512
    image: /tmp/disk3.img
    bad_sectors: [7, 9]
`

func TestLoadDevices(t *testing.T) {
	want := []Device{
		{ID: 0, BlockSize: 2048, Blocks: 100},
		{ID: 3, BlockSize: 512, Blocks: 100, Image: "/tmp/disk3.img", BadSectors: []uint32{7, 9}},
	}
	for _, tc := range []struct {
		name     string
		contents string
	}{
		{"devices.toml", tomlTable},
		{"devices.yaml", yamlTable},
		{"devices.yml", yamlTable},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LoadDevices(writeFile(t, tc.name, tc.contents))
			if err != nil {
				t.Fatalf("LoadDevices failed: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("devices (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadDevicesFromFlags(t *testing.T) {
	path := writeFile(t, "devices.toml", tomlTable)
	c, err := NewFromFlags(newFlagSet(t, "--devices="+path))
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Devices) != 2 || c.Devices[1].ID != 3 {
		t.Errorf("Devices = %+v", c.Devices)
	}
}

func TestDefaultsNotShared(t *testing.T) {
	def := Device{BlockSize: 512, Blocks: 8, BadSectors: []uint32{1}}
	a := withDefaults(Device{ID: 1}, def)
	a.BadSectors[0] = 5
	if def.BadSectors[0] != 1 {
		t.Errorf("modifying a device changed the defaults")
	}
}

func TestInvalidDevices(t *testing.T) {
	for _, tc := range []struct {
		name     string
		file     string
		contents string
		want     string
	}{
		{"extension", "devices.json", `{}`, "unknown format"},
		{"empty", "devices.toml", "", "no devices"},
		{"id", "devices.toml", "[[device]]\nid = 4\n", "out of range"},
		{"duplicate", "devices.toml", "[[device]]\nid = 1\n[[device]]\nid = 1\n", "listed twice"},
		{"block size", "devices.toml", "[[device]]\nid = 1\nblock_size = 1000\n", "multiple of 512"},
		{"shared image", "devices.yaml", "device:\n  - {id: 0, image: a.img}\n  - {id: 1, image: a.img}\n", "share image"},
		{"bad sector", "devices.toml", "[[device]]\nid = 2\nblocks = 1\nbad_sectors = [2]\n", "beyond 2 sectors"},
		{"syntax", "devices.toml", "[[device]\n", "parsing"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, tc.file, tc.contents)
			_, err := NewFromFlags(newFlagSet(t, "--devices="+path))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("NewFromFlags = %v, want error containing %q", err, tc.want)
			}
		})
	}
}
