package wfs

import (
	"errors"
	"time"
)

// Operation surface. The path-based verbs mirror what the host dispatches;
// each one resolves its path and hands off to a (parent inode, name) core.
// The fuse package drives the same core directly from inode IDs.

// validateName rejects names the directory format cannot store: empty
// names and names with no room left for the terminating NUL.
func validateName(name string) error {
	if name == "" {
		return ErrInvalidArgument.WithMessage("empty file name")
	}
	if len(name) >= MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// StatInode builds a platform-independent attribute record from an inode.
// The block count is reported in 512-byte units, which coincides with the
// filesystem block size.
func (fs *FileSystem) StatInode(ino *Inode) FileStat {
	return FileStat{
		InodeNumber:  uint64(ino.Num),
		Nlinks:       uint64(ino.Nlinks),
		ModeFlags:    ConvertRawModeToOS(ino.Mode),
		Uid:          ino.Uid,
		Gid:          ino.Gid,
		Size:         ino.Size,
		BlockSize:    BlockSize,
		NumBlocks:    (ino.Size + BlockSize - 1) / BlockSize,
		LastAccessed: time.Unix(ino.Atim, 0),
		LastModified: time.Unix(ino.Mtim, 0),
		LastChanged:  time.Unix(ino.Ctim, 0),
	}
}

// touchParent stamps a directory's modification and change times after its
// entry set changed.
func (fs *FileSystem) touchParent(dir *Inode) error {
	now := time.Now().Unix()
	dir.Mtim = now
	dir.Ctim = now
	return fs.FlushInode(dir)
}

// LookupChild finds `name` inside the directory `dir`.
func (fs *FileSystem) LookupChild(dir *Inode, name string) (*Inode, error) {
	if !dir.IsDir() {
		return nil, ErrNotADirectory
	}
	num, err := fs.lookupDirent(dir, name)
	if err != nil {
		return nil, err
	}
	return fs.Inode(num)
}

// CreateChild makes a new inode with `mode` and binds it to `name` inside
// `dir`. If the directory entry cannot be inserted, the freshly allocated
// inode is released again, so a failed create leaves no metadata behind.
func (fs *FileSystem) CreateChild(dir *Inode, name string, mode uint32) (*Inode, error) {
	if !dir.IsDir() {
		return nil, ErrNotADirectory
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if _, err := fs.lookupDirent(dir, name); err == nil {
		return nil, ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	child, err := fs.NewInode(mode)
	if err != nil {
		return nil, err
	}
	if err := fs.insertDirent(dir, name, child.Num); err != nil {
		fs.DeleteInode(child.Num)
		return nil, err
	}
	if err := fs.touchParent(dir); err != nil {
		return nil, err
	}
	return child, nil
}

// RemoveChild unbinds `name` from `dir` and destroys the target inode,
// releasing every block it referenced. With wantDir set the target must be
// an empty, non-root directory (rmdir); without it the target must be a
// regular file (unlink).
func (fs *FileSystem) RemoveChild(dir *Inode, name string, wantDir bool) error {
	if !dir.IsDir() {
		return ErrNotADirectory
	}
	if name == "" {
		// The only nameless path is the root itself.
		return ErrInvalidArgument.WithMessage("cannot remove the root directory")
	}
	num, err := fs.lookupDirent(dir, name)
	if err != nil {
		return err
	}
	child, err := fs.Inode(num)
	if err != nil {
		return err
	}

	if wantDir {
		if !child.IsDir() {
			return ErrNotADirectory
		}
		if child.Num == RootInodeNum {
			return ErrInvalidArgument.WithMessage("cannot remove the root directory")
		}
		empty, err := fs.directoryIsEmpty(child)
		if err != nil {
			return err
		}
		if !empty {
			return ErrDirectoryNotEmpty
		}
	} else if child.IsDir() {
		return ErrIsADirectory
	}

	if err := fs.removeDirent(dir, child.Num, name); err != nil {
		return err
	}
	fs.freeInodeBlocks(child)
	fs.DeleteInode(child.Num)
	return fs.touchParent(dir)
}

// ReadInodeAt copies file contents from `ino` starting at `offset` into
// `buf` and returns the byte count, stopping at end of file.
func (fs *FileSystem) ReadInodeAt(ino *Inode, buf []byte, offset int64) (int, error) {
	if !ino.IsRegular() {
		return 0, ErrIsADirectory
	}
	if offset < 0 {
		return 0, ErrInvalidArgument
	}
	if offset >= ino.Size {
		return 0, nil
	}

	toRead := int64(len(buf))
	if remaining := ino.Size - offset; toRead > remaining {
		toRead = remaining
	}

	read := int64(0)
	for read < toRead {
		position := offset + read
		blockOffset, err := fs.BlockForIndex(ino, int(position/BlockSize), false)
		if err != nil {
			return int(read), err
		}
		if blockOffset == 0 {
			// A block below the file's size must be assigned.
			return int(read), ErrIOFailed.WithMessage(
				"corruption detected: unassigned block below end of file")
		}

		within := position % BlockSize
		chunk := BlockSize - within
		if chunk > toRead-read {
			chunk = toRead - read
		}
		copy(buf[read:read+chunk], fs.block(blockOffset)[within:within+chunk])
		read += chunk
	}
	return int(read), nil
}

// WriteInodeAt copies `data` into `ino` starting at `offset`, allocating
// blocks as needed. On success the size is extended to cover the write and
// the modification time is stamped. If allocation fails midway the bytes
// already copied stay in place and the error is returned; metadata (size,
// times) is not updated for a failed write, but blocks allocated before the
// failure remain attached to the inode.
func (fs *FileSystem) WriteInodeAt(ino *Inode, data []byte, offset int64) (int, error) {
	if !ino.IsRegular() {
		return 0, ErrIsADirectory
	}
	if offset < 0 {
		return 0, ErrInvalidArgument
	}
	if len(data) == 0 {
		return 0, nil
	}

	end := offset + int64(len(data))
	if end > MaxFileSize {
		return 0, ErrNoSpaceOnDevice.WithMessage("write extends past maximum file size")
	}

	written := int64(0)
	var failure error

	// Backfill anything between the current end of file and the write start
	// so the file never has holes; the gap reads back as zeros.
	if offset > ino.Size {
		for index := int(ino.Size / BlockSize); index < int(offset/BlockSize); index++ {
			if _, err := fs.BlockForIndex(ino, index, true); err != nil {
				failure = err
				break
			}
		}
	}

	for failure == nil && written < int64(len(data)) {
		position := offset + written
		blockOffset, err := fs.BlockForIndex(ino, int(position/BlockSize), true)
		if err != nil {
			failure = err
			break
		}

		within := position % BlockSize
		chunk := BlockSize - within
		if chunk > int64(len(data))-written {
			chunk = int64(len(data)) - written
		}
		copy(fs.block(blockOffset)[within:within+chunk], data[written:written+chunk])
		written += chunk
	}

	if failure != nil {
		// Keep any block-slot assignments made before the failure visible.
		if err := fs.FlushInode(ino); err != nil {
			return int(written), err
		}
		return int(written), failure
	}

	if end > ino.Size {
		ino.Size = end
	}
	ino.Mtim = time.Now().Unix()
	if err := fs.FlushInode(ino); err != nil {
		return int(written), err
	}
	return int(written), nil
}

// Truncate discards a file's contents. Only truncation to zero is
// supported; the on-disk format has no representation for partial blocks
// being cut loose, and nothing in the host surface needs it beyond O_TRUNC.
func (fs *FileSystem) Truncate(ino *Inode, size int64) error {
	if !ino.IsRegular() {
		return ErrIsADirectory
	}
	if size != 0 {
		return ErrInvalidArgument.WithMessage("only truncation to zero is supported")
	}
	fs.freeInodeBlocks(ino)
	ino.Size = 0
	ino.Mtim = time.Now().Unix()
	return fs.FlushInode(ino)
}

// Chmod replaces the permission bits, keeping the file type.
func (fs *FileSystem) Chmod(ino *Inode, mode uint32) error {
	ino.Mode = (ino.Mode & S_IFMT) | (mode &^ S_IFMT)
	ino.Ctim = time.Now().Unix()
	return fs.FlushInode(ino)
}

// Chtimes updates the access and/or modification timestamps. Nil leaves a
// timestamp unchanged.
func (fs *FileSystem) Chtimes(ino *Inode, atime, mtime *time.Time) error {
	if atime != nil {
		ino.Atim = atime.Unix()
	}
	if mtime != nil {
		ino.Mtim = mtime.Unix()
	}
	ino.Ctim = time.Now().Unix()
	return fs.FlushInode(ino)
}

////////////////////////////////////////////////////////////////////////////////
// Path-based verbs

// GetAttr resolves `path` and returns its attributes.
func (fs *FileSystem) GetAttr(path string) (FileStat, error) {
	ino, err := fs.Resolve(path)
	if err != nil {
		return FileStat{}, err
	}
	return fs.StatInode(ino), nil
}

// Open resolves `path` and verifies it names an existing object.
func (fs *FileSystem) Open(path string) error {
	_, err := fs.Resolve(path)
	return err
}

// ReadDir enumerates the directory at `path`. "." and ".." are emitted
// first; they are synthesized, not stored. emit returning false stops the
// enumeration early.
func (fs *FileSystem) ReadDir(path string, emit func(name string) bool) error {
	dir, err := fs.Resolve(path)
	if err != nil {
		return err
	}
	if !dir.IsDir() {
		return ErrNotADirectory
	}
	if !emit(".") || !emit("..") {
		return nil
	}
	return fs.ListDir(dir, func(name string, _ uint32) bool {
		return emit(name)
	})
}

// Read copies up to len(buf) bytes from the file at `path` starting at
// `offset` and returns the count actually copied.
func (fs *FileSystem) Read(path string, buf []byte, offset int64) (int, error) {
	ino, err := fs.Resolve(path)
	if err != nil {
		return 0, err
	}
	return fs.ReadInodeAt(ino, buf, offset)
}

// Write copies `data` into the file at `path` starting at `offset` and
// returns the count written.
func (fs *FileSystem) Write(path string, data []byte, offset int64) (int, error) {
	ino, err := fs.Resolve(path)
	if err != nil {
		return 0, err
	}
	return fs.WriteInodeAt(ino, data, offset)
}

// Mknod creates a regular file at `path`. The mode's permission bits are
// kept; the type is forced to regular.
func (fs *FileSystem) Mknod(path string, mode uint32) error {
	parentPath, name := SplitParent(path)
	parent, err := fs.Resolve(parentPath)
	if err != nil {
		return err
	}
	_, err = fs.CreateChild(parent, name, (mode&^S_IFMT)|S_IFREG)
	return err
}

// Mkdir creates a directory at `path`. The new directory starts with no
// blocks; "." and ".." are implicit.
func (fs *FileSystem) Mkdir(path string, mode uint32) error {
	parentPath, name := SplitParent(path)
	parent, err := fs.Resolve(parentPath)
	if err != nil {
		return err
	}
	if mode&S_IPERM == 0 {
		mode = DefaultDirectoryMode
	}
	_, err = fs.CreateChild(parent, name, (mode&^S_IFMT)|S_IFDIR)
	return err
}

// Unlink removes the regular file at `path` and releases its storage.
func (fs *FileSystem) Unlink(path string) error {
	parentPath, name := SplitParent(path)
	parent, err := fs.Resolve(parentPath)
	if err != nil {
		return err
	}
	return fs.RemoveChild(parent, name, false)
}

// Rmdir removes the empty directory at `path`.
func (fs *FileSystem) Rmdir(path string) error {
	parentPath, name := SplitParent(path)
	parent, err := fs.Resolve(parentPath)
	if err != nil {
		return err
	}
	return fs.RemoveChild(parent, name, true)
}
