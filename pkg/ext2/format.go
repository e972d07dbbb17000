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

package ext2

import (
	"fmt"
	"math/bits"
	"time"

	"gvisor.dev/idedisk/pkg/bitmap"
	"gvisor.dev/idedisk/pkg/disklayout"
	"gvisor.dev/idedisk/pkg/log"
)

// LostAndFoundInode is the inode number given to lost+found.
const LostAndFoundInode = disklayout.GoodOldFirstInode

// FormatOptions controls the layout written by Format.
type FormatOptions struct {
	// Label is the volume name, at most 16 bytes.
	Label string

	// UUID identifies the volume.
	UUID [16]byte

	// BlocksPerGroup defaults to, and may not exceed, 8 bits per byte of a
	// block: the capacity of one block bitmap.
	BlocksPerGroup uint32

	// InodesPerGroup defaults to 128. It is rounded up to fill whole inode
	// table blocks.
	InodesPerGroup uint32

	// Time stamps the superblock and the initial inodes. Defaults to now.
	Time time.Time
}

// groupLayout is the placement of one block group's metadata.
type groupLayout struct {
	start       uint32
	blocks      uint32
	blockBitmap uint32
	inodeBitmap uint32
	inodeTable  uint32
	firstData   uint32
}

// Format writes an empty revision 1 volume spanning dev: superblock and group
// descriptor copies in every group, bitmaps, zeroed inode tables, and a root
// directory holding lost+found.
func Format(dev WritableBlockDevice, opts FormatOptions) (disklayout.SuperBlock, error) {
	var sb disklayout.SuperBlock
	bs := uint32(dev.BlockSize())
	if bs < disklayout.MinBlockSize || bs > disklayout.MaxBlockSize || bs&(bs-1) != 0 {
		return sb, fmt.Errorf("%w: block size %d", ErrUnsupported, bs)
	}
	if len(opts.Label) > len(sb.VolumeName) {
		return sb, fmt.Errorf("label %q longer than %d bytes", opts.Label, len(sb.VolumeName))
	}
	if opts.Time.IsZero() {
		opts.Time = time.Now()
	}
	now := uint32(opts.Time.Unix())

	bitsPerBlock := bs * 8
	bpg := opts.BlocksPerGroup
	if bpg == 0 || bpg > bitsPerBlock {
		bpg = bitsPerBlock
	}
	inodesPerBlock := bs / disklayout.OldInodeSize
	ipg := opts.InodesPerGroup
	if ipg == 0 {
		ipg = 128
	}
	ipg = (ipg + inodesPerBlock - 1) / inodesPerBlock * inodesPerBlock
	if ipg > bitsPerBlock {
		return sb, fmt.Errorf("%d inodes per group exceed one bitmap block", ipg)
	}
	itb := ipg / inodesPerBlock

	firstData := uint32(0)
	if bs == disklayout.MinBlockSize {
		firstData = 1
	}
	total := dev.Blocks()
	if total <= firstData {
		return sb, fmt.Errorf("device of %d blocks is too small", total)
	}
	ngroups := (total - firstData + bpg - 1) / bpg
	gdtBlocks := (ngroups*disklayout.GroupDescriptorSize + bs - 1) / bs
	overhead := 1 + gdtBlocks + 2 + itb

	// A trailing group too small for its own metadata is dropped.
	if last := total - firstData - (ngroups-1)*bpg; last <= overhead {
		if ngroups == 1 {
			return sb, fmt.Errorf("device of %d blocks is too small for %d metadata blocks", total, overhead+2)
		}
		ngroups--
		total = firstData + ngroups*bpg
	}

	layout := make([]groupLayout, ngroups)
	for g := range layout {
		l := &layout[g]
		l.start = firstData + uint32(g)*bpg
		l.blocks = min(bpg, total-l.start)
		l.blockBitmap = l.start + 1 + gdtBlocks
		l.inodeBitmap = l.blockBitmap + 1
		l.inodeTable = l.inodeBitmap + 1
		l.firstData = l.inodeTable + itb
	}
	if layout[0].blocks < overhead+2 {
		return sb, fmt.Errorf("device of %d blocks is too small for %d metadata blocks", total, overhead+2)
	}
	rootBlock := layout[0].firstData
	lostBlock := rootBlock + 1

	sb = disklayout.SuperBlock{
		InodesCount:     ipg * ngroups,
		BlocksCount:     total,
		FirstDataBlock:  firstData,
		LogBlockSize:    uint32(bits.TrailingZeros32(bs / disklayout.MinBlockSize)),
		BlocksPerGroup:  bpg,
		FragsPerGroup:   bpg,
		InodesPerGroup:  ipg,
		WriteTime:       now,
		MaxMountCount:   0xffff,
		Magic:           disklayout.Magic,
		State:           disklayout.StateValid,
		Errors:          1,
		LastCheck:       now,
		CreatorOS:       disklayout.OSLinux,
		RevLevel:        disklayout.RevDynamic,
		FirstInode:      disklayout.GoodOldFirstInode,
		InodeSize:       disklayout.OldInodeSize,
		FeatureIncompat: disklayout.IncompatFiletype,
		UUID:            opts.UUID,
	}
	sb.LogFragSize = sb.LogBlockSize
	copy(sb.VolumeName[:], opts.Label)

	// Group descriptors and bitmaps.
	gds := make([]disklayout.GroupDescriptor, ngroups)
	usedInodes := uint32(disklayout.GoodOldFirstInode)
	for g, l := range layout {
		used := l.firstData - l.start
		if g == 0 {
			used += 2
		}
		gd := &gds[g]
		gd.BlockBitmap = l.blockBitmap
		gd.InodeBitmap = l.inodeBitmap
		gd.InodeTable = l.inodeTable
		gd.FreeBlocksCount = uint16(l.blocks - used)
		gd.FreeInodesCount = uint16(ipg)
		if g == 0 {
			gd.FreeInodesCount = uint16(ipg - usedInodes)
			gd.UsedDirsCount = 2
		}
		sb.FreeBlocksCount += uint32(gd.FreeBlocksCount)
		sb.FreeInodesCount += uint32(gd.FreeInodesCount)

		// Bits past the end of the group are padding and always set.
		block := make([]byte, bs)
		bm := bitmap.New(bitsPerBlock)
		bm.AddRange(0, used)
		bm.AddRange(l.blocks, bitsPerBlock)
		bm.MarshalBytes(block)
		if err := dev.WriteBlock(l.blockBitmap, block); err != nil {
			return sb, fmt.Errorf("writing block bitmap of group %d: %w", g, err)
		}
		bm.ClearRange(0, bitsPerBlock)
		if g == 0 {
			bm.AddRange(0, usedInodes)
		}
		bm.AddRange(ipg, bitsPerBlock)
		bm.MarshalBytes(block)
		if err := dev.WriteBlock(l.inodeBitmap, block); err != nil {
			return sb, fmt.Errorf("writing inode bitmap of group %d: %w", g, err)
		}

		zero := make([]byte, bs)
		for b := l.inodeTable; b < l.firstData; b++ {
			if err := dev.WriteBlock(b, zero); err != nil {
				return sb, fmt.Errorf("clearing inode table of group %d: %w", g, err)
			}
		}
	}

	// Superblock and descriptor table copies.
	gdt := make([]byte, gdtBlocks*bs)
	for g := range gds {
		gds[g].MarshalBytes(gdt[g*disklayout.GroupDescriptorSize:])
	}
	for g, l := range layout {
		copySB := sb
		copySB.BlockGroupNr = uint16(g)
		block := make([]byte, bs)
		off := uint32(0)
		if bs > disklayout.SuperBlockOffset && g == 0 {
			off = disklayout.SuperBlockOffset
		}
		copySB.MarshalBytes(block[off:])
		if err := dev.WriteBlock(l.start, block); err != nil {
			return sb, fmt.Errorf("writing superblock of group %d: %w", g, err)
		}
		for i := uint32(0); i < gdtBlocks; i++ {
			if err := dev.WriteBlock(l.start+1+i, gdt[i*bs:(i+1)*bs]); err != nil {
				return sb, fmt.Errorf("writing descriptors of group %d: %w", g, err)
			}
		}
	}

	// Root directory and lost+found.
	dirs := []struct {
		ino   uint32
		block uint32
		mode  uint16
		links uint16
		ents  []disklayout.Dirent
	}{
		{
			ino:   disklayout.RootInode,
			block: rootBlock,
			mode:  disklayout.ModeDirectory | 0755,
			links: 3,
			ents: []disklayout.Dirent{
				dirent(disklayout.RootInode, disklayout.FileTypeDir, "."),
				dirent(disklayout.RootInode, disklayout.FileTypeDir, ".."),
				dirent(LostAndFoundInode, disklayout.FileTypeDir, "lost+found"),
			},
		},
		{
			ino:   LostAndFoundInode,
			block: lostBlock,
			mode:  disklayout.ModeDirectory | 0700,
			links: 2,
			ents: []disklayout.Dirent{
				dirent(LostAndFoundInode, disklayout.FileTypeDir, "."),
				dirent(disklayout.RootInode, disklayout.FileTypeDir, ".."),
			},
		},
	}
	for _, d := range dirs {
		block, err := disklayout.EncodeDirBlock(d.ents, int(bs))
		if err != nil {
			return sb, err
		}
		if err := dev.WriteBlock(d.block, block); err != nil {
			return sb, fmt.Errorf("writing directory block of inode %d: %w", d.ino, err)
		}
		in := disklayout.Inode{
			Mode:       d.mode,
			Size:       bs,
			AccessTime: now,
			ChangeTime: now,
			ModifyTime: now,
			LinksCount: d.links,
			Blocks:     bs / 512,
		}
		in.Block[0] = d.block
		if err := writeInode(dev, &sb, gds, d.ino, &in); err != nil {
			return sb, err
		}
	}

	log.Infof("ext2: formatted %d blocks of %d bytes: %d groups, %d inodes", total, bs, ngroups, sb.InodesCount)
	return sb, nil
}

func dirent(ino uint32, fileType uint8, name string) disklayout.Dirent {
	return disklayout.Dirent{
		DirentHeader: disklayout.DirentHeader{Inode: ino, FileType: fileType},
		Name:         name,
	}
}

// writeInode stores in as inode ino with a read-modify-write of its inode
// table block.
func writeInode(dev WritableBlockDevice, sb *disklayout.SuperBlock, gds []disklayout.GroupDescriptor, ino uint32, in *disklayout.Inode) error {
	bs := uint64(dev.BlockSize())
	gd := &gds[disklayout.GroupOf(ino, sb.InodesPerGroup)]
	pos := uint64(disklayout.IndexInGroup(ino, sb.InodesPerGroup)) * uint64(sb.InodeRecordSize())
	blk := gd.InodeTable + uint32(pos/bs)

	block := make([]byte, bs)
	if err := dev.ReadBlock(blk, block); err != nil {
		return fmt.Errorf("reading inode table block %d: %w", blk, err)
	}
	in.MarshalBytes(block[pos%bs:])
	if err := dev.WriteBlock(blk, block); err != nil {
		return fmt.Errorf("writing inode %d: %w", ino, err)
	}
	return nil
}
