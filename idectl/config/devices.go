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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"gopkg.in/yaml.v3"
	"gvisor.dev/idedisk/pkg/abi/ata"
	"gvisor.dev/idedisk/pkg/ide"
)

// Device describes one drive attached to the emulated controller.
type Device struct {
	// ID selects the channel and unit: 0 and 1 are the primary master and
	// slave, 2 and 3 the secondary ones.
	ID uint32 `toml:"id" yaml:"id"`

	// BlockSize is the driver's block size in bytes.
	BlockSize int `toml:"block_size" yaml:"block_size"`

	// Blocks is the capacity in blocks.
	Blocks uint32 `toml:"blocks" yaml:"blocks"`

	// Image is the backing image file. Empty means in memory.
	Image string `toml:"image" yaml:"image"`

	// BadSectors are sectors whose transfers fail.
	BadSectors []uint32 `toml:"bad_sectors" yaml:"bad_sectors"`
}

// Backing describes where the device's sectors live.
func (d *Device) Backing() string {
	if d.Image == "" {
		return "in memory"
	}
	return "image " + d.Image
}

// Sectors returns the capacity in sectors.
func (d *Device) Sectors() uint32 {
	return d.Blocks * uint32(d.BlockSize/ata.SectorSize)
}

// DriverConfig returns the driver's view of the device.
func (d *Device) DriverConfig() ide.DeviceConfig {
	return ide.DeviceConfig{ID: d.ID, BlockSize: d.BlockSize, Blocks: d.Blocks}
}

// defaultDevice supplies the fields a table entry leaves unset.
var defaultDevice = Device{
	BlockSize: 1024,
	Blocks:    4096,
}

// deviceTable is the layout of a device table file. Defaults apply to every
// entry of Devices.
type deviceTable struct {
	Defaults Device   `toml:"defaults" yaml:"defaults"`
	Devices  []Device `toml:"device" yaml:"device"`
}

// DefaultDevices returns the table used when no file is given.
func DefaultDevices() []Device {
	d := deepcopy.Copy(defaultDevice).(Device)
	return []Device{d}
}

// LoadDevices reads a device table. The format is chosen by extension:
// ".toml", or ".yaml" and ".yml".
func LoadDevices(path string) ([]Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device table: %w", err)
	}
	var table deviceTable
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &table); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("device table %q: unknown format %q, want .toml, .yaml or .yml", path, ext)
	}
	if len(table.Devices) == 0 {
		return nil, fmt.Errorf("device table %q lists no devices", path)
	}

	base := withDefaults(table.Defaults, defaultDevice)
	devs := make([]Device, 0, len(table.Devices))
	for _, d := range table.Devices {
		devs = append(devs, withDefaults(d, base))
	}
	return devs, nil
}

// withDefaults returns a copy of def with the fields set in d applied on top.
// The copy shares no slices with def.
func withDefaults(d, def Device) Device {
	out := deepcopy.Copy(def).(Device)
	out.ID = d.ID
	if d.BlockSize != 0 {
		out.BlockSize = d.BlockSize
	}
	if d.Blocks != 0 {
		out.Blocks = d.Blocks
	}
	if d.Image != "" {
		out.Image = d.Image
	}
	if d.BadSectors != nil {
		out.BadSectors = append([]uint32(nil), d.BadSectors...)
	}
	return out
}

func validateDevices(devs []Device) error {
	seen := make(map[uint32]bool)
	images := make(map[string]uint32)
	for _, d := range devs {
		if d.ID >= ata.MaxDevices {
			return fmt.Errorf("device %d: id out of range [0, %d)", d.ID, ata.MaxDevices)
		}
		if seen[d.ID] {
			return fmt.Errorf("device %d: listed twice", d.ID)
		}
		seen[d.ID] = true
		if d.BlockSize <= 0 || d.BlockSize%ata.SectorSize != 0 {
			return fmt.Errorf("device %d: block size %d is not a multiple of %d", d.ID, d.BlockSize, ata.SectorSize)
		}
		if d.Image != "" {
			if other, ok := images[d.Image]; ok {
				return fmt.Errorf("devices %d and %d share image %q", other, d.ID, d.Image)
			}
			images[d.Image] = d.ID
		}
		for _, s := range d.BadSectors {
			if s >= d.Sectors() {
				return fmt.Errorf("device %d: bad sector %d beyond %d sectors", d.ID, s, d.Sectors())
			}
		}
	}
	return nil
}
