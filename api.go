package wfs

import (
	"os"
	"time"
)

// FileStat is a platform-independent form of [syscall.Stat_t], populated
// from an on-disk inode.
type FileStat struct {
	InodeNumber  uint64
	Nlinks       uint64
	ModeFlags    os.FileMode
	Uid          uint32
	Gid          uint32
	Size         int64
	BlockSize    int64
	NumBlocks    int64
	LastAccessed time.Time
	LastModified time.Time
	LastChanged  time.Time
}

func (stat *FileStat) IsDir() bool {
	return stat.ModeFlags.IsDir()
}

func (stat *FileStat) IsFile() bool {
	return stat.ModeFlags.IsRegular()
}

// FSStat is a platform-independent form of [syscall.Statfs_t].
type FSStat struct {
	// BlockSize is the size of a logical block on the file system, in bytes.
	BlockSize int64
	// TotalBlocks is the total number of data blocks on the disk image.
	TotalBlocks uint64
	// BlocksFree is the number of unallocated data blocks on the image.
	BlocksFree uint64
	// Files is the number of allocated inodes.
	Files uint64
	// FilesFree is the number of remaining inode slots available for use.
	FilesFree uint64
	// MaxNameLength is the longest possible name for a directory entry, in
	// bytes, not counting the terminating NUL.
	MaxNameLength int64
}

// Truncator is an interface for objects that support a Truncate() method.
// This method must behave just like [os.File.Truncate]. The formatter uses
// it to extend the image to its full size without writing every data block.
type Truncator interface {
	Truncate(size int64) error
}
