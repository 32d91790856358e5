package wfs

import (
	"fmt"
	"os"
	"time"
)

// inodeOffset returns the absolute image offset of inode slot `num`. Slots
// are InodeStride apart, so the table occupies NumInodes*InodeStride bytes.
func (fs *FileSystem) inodeOffset(num uint32) int64 {
	return int64(fs.sb.InodeTablePtr) + int64(num)*InodeStride
}

// Inode reads inode slot `num` from the table. Callers must have
// established the slot's validity through allocation or path resolution;
// a number past the table is reported as corruption.
func (fs *FileSystem) Inode(num uint32) (*Inode, error) {
	if uint64(num) >= fs.sb.NumInodes {
		return nil, ErrIOFailed.WithMessage(
			fmt.Sprintf("inode %d out of range (table holds %d)", num, fs.sb.NumInodes))
	}
	off := fs.inodeOffset(num)
	ino, err := DecodeInode(fs.image.Bytes(off, InodeSize))
	if err != nil {
		return nil, err
	}
	return &ino, nil
}

// AllocatedInode reads inode slot `num` and additionally requires its
// bitmap bit to be set. The host uses this for inode numbers the kernel may
// be holding past the object's removal.
func (fs *FileSystem) AllocatedInode(num uint32) (*Inode, error) {
	if uint64(num) >= fs.sb.NumInodes || !fs.inodeBitmap.IsSet(num) {
		return nil, ErrNotFound
	}
	return fs.Inode(num)
}

// FlushInode writes the record back to its slot. Mutating operations call
// this once they are done changing the in-memory copy.
func (fs *FileSystem) FlushInode(ino *Inode) error {
	return EncodeInode(ino, fs.image.Bytes(fs.inodeOffset(ino.Num), InodeSize))
}

// NewInode claims a free inode slot and initializes it: self-index, mode,
// owner from the mounting process, link count 2 for directories and 1 for
// regular files, all timestamps now, and no blocks. The root slot is claimed
// at mount time, so allocation always yields a slot >= 1.
func (fs *FileSystem) NewInode(mode uint32) (*Inode, error) {
	num, err := fs.inodeBitmap.Allocate()
	if err != nil {
		return nil, err
	}

	nlinks := uint32(1)
	if mode&S_IFMT == S_IFDIR {
		nlinks = 2
	}

	now := time.Now().Unix()
	ino := &Inode{
		Num:    num,
		Mode:   mode,
		Uid:    uint32(os.Getuid()),
		Gid:    uint32(os.Getgid()),
		Size:   0,
		Nlinks: nlinks,
		Atim:   now,
		Mtim:   now,
		Ctim:   now,
	}
	if err := fs.FlushInode(ino); err != nil {
		fs.inodeBitmap.Free(num)
		return nil, err
	}
	return ino, nil
}

// DeleteInode releases the slot's bitmap bit. The caller must already have
// released every block the inode referenced.
func (fs *FileSystem) DeleteInode(num uint32) {
	fs.inodeBitmap.Free(num)
}
