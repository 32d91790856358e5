package wfs

// FileSystem is the mount context: the mapped image plus the allocator
// handles derived from its superblock. One instance serves one image for
// the lifetime of a mount. The engine performs no locking of its own; the
// host is responsible for serializing operations (see the fuse package).
type FileSystem struct {
	image       *Image
	sb          Superblock
	inodeBitmap Allocator
	dataBitmap  Allocator
}

// Mount builds a mount context over an opened image. Per the format
// contract the formatter leaves both bitmaps zeroed, so the first mount
// claims the root inode's bitmap bit here.
func Mount(img *Image) (*FileSystem, error) {
	sb := img.Superblock()
	fs := &FileSystem{
		image:       img,
		sb:          sb,
		inodeBitmap: NewAllocator(img.inodeBitmapRegion(), uint32(sb.NumInodes)),
		dataBitmap:  NewAllocator(img.dataBitmapRegion(), uint32(sb.NumDataBlocks)),
	}

	if !fs.inodeBitmap.IsSet(RootInodeNum) {
		// Freshly formatted image; claim the root slot.
		if _, err := fs.inodeBitmap.Allocate(); err != nil {
			return nil, err
		}
	}

	root, err := fs.Inode(RootInodeNum)
	if err != nil {
		return nil, err
	}
	if !root.IsDir() {
		return nil, ErrIOFailed.WithMessage("corruption detected: root inode is not a directory")
	}
	return fs, nil
}

// MountPath maps the image at `path` and mounts it.
func MountPath(path string) (*FileSystem, error) {
	img, err := OpenImage(path)
	if err != nil {
		return nil, err
	}
	fs, err := Mount(img)
	if err != nil {
		img.Close()
		return nil, err
	}
	return fs, nil
}

// Unmount flushes and releases the image. The FileSystem must not be used
// afterwards.
func (fs *FileSystem) Unmount() error {
	return fs.image.Close()
}

// Sync flushes outstanding stores to the backing file.
func (fs *FileSystem) Sync() error {
	return fs.image.Sync()
}

// StatFS summarizes allocator state for statfs(2)-style reporting.
func (fs *FileSystem) StatFS() FSStat {
	usedBlocks := fs.dataBitmap.CountSet()
	usedInodes := fs.inodeBitmap.CountSet()
	return FSStat{
		BlockSize:     BlockSize,
		TotalBlocks:   fs.sb.NumDataBlocks,
		BlocksFree:    fs.sb.NumDataBlocks - usedBlocks,
		Files:         usedInodes,
		FilesFree:     fs.sb.NumInodes - usedInodes,
		MaxNameLength: MaxNameLength - 1,
	}
}

// Superblock returns the superblock this mount was built from.
func (fs *FileSystem) Superblock() Superblock {
	return fs.sb
}
