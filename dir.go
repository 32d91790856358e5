package wfs

// Directory engine. A directory inode's storage is a sequence of fixed-size
// entry slots laid out contiguously across its blocks, direct slots first
// and then the indirect block's entries, in order. Entries with Num == 0
// are free. "." and ".." are never stored; enumeration synthesizes them.

// direntLocation pins one entry slot: the block that holds it and the slot
// index within that block.
type direntLocation struct {
	blockOffset int64
	slot        int
}

func (fs *FileSystem) readDirent(loc direntLocation) (Dirent, error) {
	blk := fs.block(loc.blockOffset)
	return DecodeDirent(blk[loc.slot*DirentSize : (loc.slot+1)*DirentSize])
}

func (fs *FileSystem) writeDirent(loc direntLocation, d *Dirent) error {
	blk := fs.block(loc.blockOffset)
	return EncodeDirent(d, blk[loc.slot*DirentSize:(loc.slot+1)*DirentSize])
}

// forEachDirent visits every slot of the directory's allocated blocks in
// logical order and calls fn; fn returning true stops the walk early.
// Unassigned blocks are skipped, not treated as the end: removals never
// reclaim blocks, so the allocated set stays dense, but a hole must not
// hide entries behind it.
func (fs *FileSystem) forEachDirent(
	dir *Inode,
	fn func(loc direntLocation, d Dirent) (stop bool, err error),
) error {
	for index := 0; index < MaxLogicalBlocks; index++ {
		offset, err := fs.BlockForIndex(dir, index, false)
		if err != nil {
			return err
		}
		if offset == 0 {
			continue
		}
		for slot := 0; slot < DirentsPerBlock; slot++ {
			loc := direntLocation{blockOffset: offset, slot: slot}
			d, err := fs.readDirent(loc)
			if err != nil {
				return err
			}
			stop, err := fn(loc, d)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}

// lookupDirent finds the entry binding `name` and returns its target inode
// number. Names compare byte-exact up to the first NUL.
func (fs *FileSystem) lookupDirent(dir *Inode, name string) (uint32, error) {
	found := uint32(0)
	err := fs.forEachDirent(dir, func(_ direntLocation, d Dirent) (bool, error) {
		if d.Num != 0 && d.NameString() == name {
			found = d.Num
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return 0, err
	}
	if found == 0 {
		return 0, ErrNotFound
	}
	return found, nil
}

// insertDirent writes a (name, target) binding into the lowest-indexed free
// slot. If every allocated slot is occupied, a fresh block is claimed
// through the block engine (lowest unassigned logical index) and the entry
// goes into its first slot. The directory inode is flushed if it changed;
// ErrNoSpaceOnDevice escapes only when the block engine is exhausted.
func (fs *FileSystem) insertDirent(dir *Inode, name string, target uint32) error {
	var free *direntLocation
	err := fs.forEachDirent(dir, func(loc direntLocation, d Dirent) (bool, error) {
		if d.Num == 0 {
			free = &loc
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	entry := Dirent{Num: target}
	entry.SetName(name)

	if free != nil {
		return fs.writeDirent(*free, &entry)
	}

	// All allocated slots occupied; extend the directory by one block.
	for index := 0; index < MaxLogicalBlocks; index++ {
		offset, err := fs.BlockForIndex(dir, index, false)
		if err != nil {
			return err
		}
		if offset != 0 {
			continue
		}
		hadIndirect := dir.Blocks[IndirectSlot] != 0
		offset, err = fs.BlockForIndex(dir, index, true)
		if err != nil {
			// The directory is not flushed on failure, so an indirect block
			// claimed on the way would be referenced by nothing; release it.
			if !hadIndirect && dir.Blocks[IndirectSlot] != 0 {
				fs.freeDataBlock(dir.Blocks[IndirectSlot])
				dir.Blocks[IndirectSlot] = 0
			}
			return err
		}
		dir.Size += BlockSize
		if err := fs.FlushInode(dir); err != nil {
			return err
		}
		return fs.writeDirent(direntLocation{blockOffset: offset, slot: 0}, &entry)
	}
	return ErrNoSpaceOnDevice.WithMessage("directory is full")
}

// removeDirent tombstones the entry whose number and name both match:
// the name buffer is zeroed and Num set to 0. The entry's block is not
// reclaimed.
func (fs *FileSystem) removeDirent(dir *Inode, target uint32, name string) error {
	removed := false
	err := fs.forEachDirent(dir, func(loc direntLocation, d Dirent) (bool, error) {
		if d.Num != target || d.NameString() != name {
			return false, nil
		}
		if err := fs.writeDirent(loc, &Dirent{}); err != nil {
			return false, err
		}
		removed = true
		return true, nil
	})
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

// directoryIsEmpty reports whether the directory holds no live entries.
// "." and ".." are not stored, so empty means every slot is free.
func (fs *FileSystem) directoryIsEmpty(dir *Inode) (bool, error) {
	empty := true
	err := fs.forEachDirent(dir, func(_ direntLocation, d Dirent) (bool, error) {
		if d.Num != 0 {
			empty = false
			return true, nil
		}
		return false, nil
	})
	return empty, err
}

// ListDir calls emit for every live entry in slot order. emit returning
// false stops the enumeration (the host uses this when its reply buffer
// fills up).
func (fs *FileSystem) ListDir(dir *Inode, emit func(name string, num uint32) bool) error {
	if !dir.IsDir() {
		return ErrNotADirectory
	}
	return fs.forEachDirent(dir, func(_ direntLocation, d Dirent) (bool, error) {
		if d.Num == 0 {
			return false, nil
		}
		return !emit(d.NameString(), d.Num), nil
	})
}
