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

// Package ata contains the register-level definitions of the legacy ATA
// (IDE) programmed I/O interface.
package ata

// SectorSize is the size of a disk sector in bytes.
const SectorSize = 512

// NumChannels is the number of legacy channels.
const NumChannels = 2

// UnitsPerChannel is the number of drives (master and slave) on a channel.
const UnitsPerChannel = 2

// MaxDevices is the number of addressable devices.
const MaxDevices = NumChannels * UnitsPerChannel

// Command block base ports and device control ports for each channel.
const (
	PrimaryBase      = 0x1f0
	PrimaryControl   = 0x3f6
	SecondaryBase    = 0x170
	SecondaryControl = 0x376
)

// Register offsets from a channel's command block base.
const (
	RegData     = 0
	RegError    = 1
	RegFeatures = 1
	RegCount    = 2
	RegLBA0     = 3
	RegLBA1     = 4
	RegLBA2     = 5
	RegDrive    = 6
	RegStatus   = 7
	RegCommand  = 7
)

// Status register bits.
const (
	StatusERR  = 0x01
	StatusDRQ  = 0x08
	StatusDF   = 0x20
	StatusDRDY = 0x40
	StatusBSY  = 0x80
)

// Error register bits.
const (
	ErrorAMNF = 0x01
	ErrorABRT = 0x04
	ErrorIDNF = 0x10
	ErrorUNC  = 0x40
)

// Device control register bits.
const (
	// ControlNIEN masks the channel's interrupt.
	ControlNIEN = 0x02

	// ControlSRST resets both units of the channel.
	ControlSRST = 0x04
)

// Drive/head register layout for LBA addressing.
const (
	// DriveLBA selects LBA addressing and sets the obsolete always-one bits.
	DriveLBA = 0xe0

	// DriveUnitShift is the position of the unit select bit.
	DriveUnitShift = 4

	// DriveLBAMask masks LBA bits 24-27 held in the low nibble.
	DriveLBAMask = 0x0f
)

// MaxLBA is one past the last sector addressable with 28-bit LBA.
const MaxLBA = 1 << 28

// Commands.
const (
	CmdRead       = 0x20
	CmdWrite      = 0x30
	CmdReadMulti  = 0xc4
	CmdWriteMulti = 0xc5
)

// Channel returns the channel a device is attached to.
func Channel(dev uint32) int {
	if dev < UnitsPerChannel {
		return 0
	}
	return 1
}

// Unit returns the unit (0 for master, 1 for slave) of a device on its
// channel.
func Unit(dev uint32) int {
	return int(dev & 1)
}

// Ports returns the command block base and device control port of channel ch.
func Ports(ch int) (base, control uint16) {
	if ch == 0 {
		return PrimaryBase, PrimaryControl
	}
	return SecondaryBase, SecondaryControl
}

// DriveSelect returns the drive/head register value selecting unit with the
// given LBA.
func DriveSelect(unit int, lba uint32) uint8 {
	return DriveLBA | uint8(unit&1)<<DriveUnitShift | uint8((lba>>24)&DriveLBAMask)
}

// Ready returns true if status reports a quiescent, ready unit.
func Ready(status uint8) bool {
	return status&(StatusBSY|StatusDRDY) == StatusDRDY
}

// Failed returns true if status reports an error or a device fault.
func Failed(status uint8) bool {
	return status&(StatusERR|StatusDF) != 0
}
