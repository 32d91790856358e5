package wfs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Check verifies the on-disk invariants over the whole image and returns
// every violation found:
//
//  1. Every block offset reachable from an inode has its data-bitmap bit
//     set, lies inside the data region, and is claimed by exactly one slot.
//  2. Every directory entry targets a live inode, and every set inode
//     bitmap bit is reachable from the root.
//  3. The root inode is a directory and its bitmap bit is set.
//  4. A regular file's assigned blocks exactly cover its size, with no
//     holes below the end and nothing assigned above it.
//
// A nil result means the image is clean.
func (fs *FileSystem) Check() error {
	var result *multierror.Error

	if !fs.inodeBitmap.IsSet(RootInodeNum) {
		result = multierror.Append(result,
			fmt.Errorf("root inode bitmap bit is clear"))
	}

	root, err := fs.Inode(RootInodeNum)
	if err != nil {
		return multierror.Append(result, err)
	}
	if !root.IsDir() {
		result = multierror.Append(result,
			fmt.Errorf("root inode is not a directory"))
		return result.ErrorOrNil()
	}

	reachableInodes := map[uint32]bool{}
	claimedBlocks := map[int64]string{}

	claim := func(offset int64, owner string) {
		if err := fs.validateBlockOffset(offset); err != nil {
			result = multierror.Append(result, fmt.Errorf(
				"%s: invalid block offset %d", owner, offset))
			return
		}
		if previous, dup := claimedBlocks[offset]; dup {
			result = multierror.Append(result, fmt.Errorf(
				"block offset %d claimed by both %s and %s", offset, previous, owner))
			return
		}
		claimedBlocks[offset] = owner
		index := uint32((offset - int64(fs.sb.DataBlocksPtr)) / BlockSize)
		if !fs.dataBitmap.IsSet(index) {
			result = multierror.Append(result, fmt.Errorf(
				"%s: block offset %d in use but bitmap bit %d is clear",
				owner, offset, index))
		}
	}

	// checkInode claims the inode's blocks and, per invariant 4, matches a
	// regular file's assigned block set against its size.
	checkInode := func(ino *Inode) {
		owner := func(slot string) string {
			return fmt.Sprintf("inode %d %s", ino.Num, slot)
		}

		sizeBlocks := int((ino.Size + BlockSize - 1) / BlockSize)
		for index := 0; index < MaxLogicalBlocks; index++ {
			offset, err := fs.BlockForIndex(ino, index, false)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf(
					"inode %d logical block %d: %w", ino.Num, index, err))
				continue
			}
			if offset == 0 {
				if ino.IsRegular() && index < sizeBlocks {
					result = multierror.Append(result, fmt.Errorf(
						"inode %d: block %d unassigned below size %d",
						ino.Num, index, ino.Size))
				}
				continue
			}
			claim(offset, owner(fmt.Sprintf("logical block %d", index)))
			if ino.IsRegular() && index >= sizeBlocks {
				result = multierror.Append(result, fmt.Errorf(
					"inode %d: block %d assigned beyond size %d",
					ino.Num, index, ino.Size))
			}
		}
		if ino.Blocks[IndirectSlot] != 0 {
			claim(ino.Blocks[IndirectSlot], owner("indirect block"))
		}
	}

	// Walk the tree from the root.
	var walk func(dir *Inode)
	walk = func(dir *Inode) {
		err := fs.forEachDirent(dir, func(_ direntLocation, d Dirent) (bool, error) {
			if d.Num == 0 {
				return false, nil
			}
			if uint64(d.Num) >= fs.sb.NumInodes {
				result = multierror.Append(result, fmt.Errorf(
					"directory %d entry %q targets out-of-range inode %d",
					dir.Num, d.NameString(), d.Num))
				return false, nil
			}
			if !fs.inodeBitmap.IsSet(d.Num) {
				result = multierror.Append(result, fmt.Errorf(
					"directory %d entry %q targets inode %d whose bitmap bit is clear",
					dir.Num, d.NameString(), d.Num))
			}
			if reachableInodes[d.Num] {
				result = multierror.Append(result, fmt.Errorf(
					"inode %d reachable through more than one directory entry", d.Num))
				return false, nil
			}
			reachableInodes[d.Num] = true

			child, err := fs.Inode(d.Num)
			if err != nil {
				return false, err
			}
			checkInode(child)
			if child.IsDir() {
				walk(child)
			}
			return false, nil
		})
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	reachableInodes[RootInodeNum] = true
	checkInode(root)
	walk(root)

	// Every set inode bit must name a reachable inode.
	for num := uint32(0); uint64(num) < fs.sb.NumInodes; num++ {
		if fs.inodeBitmap.IsSet(num) && !reachableInodes[num] {
			result = multierror.Append(result, fmt.Errorf(
				"inode bitmap bit %d set but inode is unreachable", num))
		}
	}

	// Every set data bit must correspond to a claimed block.
	for index := uint32(0); uint64(index) < fs.sb.NumDataBlocks; index++ {
		if !fs.dataBitmap.IsSet(index) {
			continue
		}
		offset := int64(fs.sb.DataBlocksPtr) + int64(index)*BlockSize
		if _, ok := claimedBlocks[offset]; !ok {
			result = multierror.Append(result, fmt.Errorf(
				"data bitmap bit %d set but block %d is unreferenced", index, offset))
		}
	}

	return result.ErrorOrNil()
}
