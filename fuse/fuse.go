// Package fuse adapts the WFS engine to the kernel's FUSE protocol using
// jacobsa/fuse. The engine assumes serialized requests, so every operation
// here runs under one mutex; the kernel's concurrency stops at this layer.
package fuse

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"sync"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	wfs "github.com/Azen233/Simple-Fuse-FS"
)

// MountOptions carries the host options the wfs command exposes.
type MountOptions struct {
	// Debug enables kernel-protocol debug logging to stderr.
	Debug bool
	// AllowOther passes allow_other so users besides the mounter can access
	// the filesystem.
	AllowOther bool
	// ExtraOptions are forwarded verbatim as mount options.
	ExtraOptions map[string]string
}

// Mount exposes the engine at `mountpoint`. The returned handle's Join
// blocks until the filesystem is unmounted.
func Mount(mountpoint string, fsys *wfs.FileSystem, opts MountOptions) (*fuse.MountedFileSystem, error) {
	cfg := &fuse.MountConfig{
		FSName:  "wfs",
		Options: map[string]string{},
		// The engine applies writes to the mapped image immediately; letting
		// the kernel buffer them would just delay NOSPC reporting.
		DisableWritebackCaching: true,
	}
	if opts.Debug {
		cfg.DebugLogger = log.New(os.Stderr, "fuse: ", 0)
	}
	if opts.AllowOther {
		cfg.Options["allow_other"] = ""
	}
	for key, value := range opts.ExtraOptions {
		cfg.Options[key] = value
	}
	return fuse.Mount(mountpoint, NewServer(fsys), cfg)
}

// Unmount asks the kernel to release the mount at `mountpoint`.
func Unmount(mountpoint string) error {
	return fuse.Unmount(mountpoint)
}

// NewServer wraps the engine in a fuse.Server.
func NewServer(fsys *wfs.FileSystem) fuse.Server {
	return fuseutil.NewFileSystemServer(&wfsFS{fs: fsys})
}

type wfsFS struct {
	fuseutil.NotImplementedFileSystem

	// Serializes every operation; the engine takes no locks of its own.
	mu sync.Mutex
	fs *wfs.FileSystem
}

// FUSE inode IDs are engine inode numbers shifted by one: the kernel
// reserves ID 0 and calls the root 1, while WFS numbers its root 0.
func fuseID(num uint32) fuseops.InodeID {
	return fuseops.InodeID(num) + 1
}

func engineNum(id fuseops.InodeID) uint32 {
	return uint32(id - 1)
}

func attributes(stat wfs.FileStat) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  uint64(stat.Size),
		Nlink: uint32(stat.Nlinks),
		Mode:  stat.ModeFlags,
		Atime: stat.LastAccessed,
		Mtime: stat.LastModified,
		Ctime: stat.LastChanged,
		Uid:   stat.Uid,
		Gid:   stat.Gid,
	}
}

// errno maps an engine error onto the errno the kernel should see.
func errno(err error) error {
	if err == nil {
		return nil
	}
	var fserr wfs.FSError
	if errors.As(err, &fserr) {
		return fserr.ErrnoCode
	}
	return fuse.EIO
}

func (host *wfsFS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()

	stat := host.fs.StatFS()
	op.BlockSize = uint32(stat.BlockSize)
	op.Blocks = stat.TotalBlocks
	op.BlocksFree = stat.BlocksFree
	op.BlocksAvailable = stat.BlocksFree
	op.IoSize = uint32(stat.BlockSize)
	op.Inodes = stat.Files + stat.FilesFree
	op.InodesFree = stat.FilesFree
	return nil
}

func (host *wfsFS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()

	parent, err := host.fs.AllocatedInode(engineNum(op.Parent))
	if err != nil {
		return errno(err)
	}
	child, err := host.fs.LookupChild(parent, op.Name)
	if err != nil {
		return errno(err)
	}

	op.Entry.Child = fuseID(child.Num)
	op.Entry.Attributes = attributes(host.fs.StatInode(child))
	return nil
}

func (host *wfsFS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()

	ino, err := host.fs.AllocatedInode(engineNum(op.Inode))
	if err != nil {
		return errno(err)
	}
	op.Attributes = attributes(host.fs.StatInode(ino))
	return nil
}

func (host *wfsFS) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()

	ino, err := host.fs.AllocatedInode(engineNum(op.Inode))
	if err != nil {
		return errno(err)
	}

	if op.Size != nil {
		if err := host.fs.Truncate(ino, int64(*op.Size)); err != nil {
			return errno(err)
		}
	}
	if op.Mode != nil {
		if err := host.fs.Chmod(ino, wfs.ConvertOSModeToRaw(*op.Mode)); err != nil {
			return errno(err)
		}
	}
	if op.Atime != nil || op.Mtime != nil {
		if err := host.fs.Chtimes(ino, op.Atime, op.Mtime); err != nil {
			return errno(err)
		}
	}

	op.Attributes = attributes(host.fs.StatInode(ino))
	return nil
}

func (host *wfsFS) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	// On-disk inodes have no in-memory lifetime to release.
	return nil
}

func (host *wfsFS) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()

	parent, err := host.fs.AllocatedInode(engineNum(op.Parent))
	if err != nil {
		return errno(err)
	}
	mode := (wfs.ConvertOSModeToRaw(op.Mode) &^ wfs.S_IFMT) | wfs.S_IFDIR
	child, err := host.fs.CreateChild(parent, op.Name, mode)
	if err != nil {
		return errno(err)
	}

	op.Entry.Child = fuseID(child.Num)
	op.Entry.Attributes = attributes(host.fs.StatInode(child))
	return nil
}

func (host *wfsFS) createFile(parentID fuseops.InodeID, name string, mode os.FileMode) (*wfs.Inode, error) {
	parent, err := host.fs.AllocatedInode(engineNum(parentID))
	if err != nil {
		return nil, err
	}
	raw := (wfs.ConvertOSModeToRaw(mode) &^ wfs.S_IFMT) | wfs.S_IFREG
	return host.fs.CreateChild(parent, name, raw)
}

func (host *wfsFS) MkNode(ctx context.Context, op *fuseops.MkNodeOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()

	if !op.Mode.IsRegular() {
		// Devices, pipes and sockets have no on-disk representation.
		return syscall.EINVAL
	}
	child, err := host.createFile(op.Parent, op.Name, op.Mode)
	if err != nil {
		return errno(err)
	}

	op.Entry.Child = fuseID(child.Num)
	op.Entry.Attributes = attributes(host.fs.StatInode(child))
	return nil
}

func (host *wfsFS) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()

	child, err := host.createFile(op.Parent, op.Name, op.Mode)
	if err != nil {
		return errno(err)
	}

	op.Entry.Child = fuseID(child.Num)
	op.Entry.Attributes = attributes(host.fs.StatInode(child))
	return nil
}

func (host *wfsFS) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()

	parent, err := host.fs.AllocatedInode(engineNum(op.Parent))
	if err != nil {
		return errno(err)
	}
	return errno(host.fs.RemoveChild(parent, op.Name, true))
}

func (host *wfsFS) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()

	parent, err := host.fs.AllocatedInode(engineNum(op.Parent))
	if err != nil {
		return errno(err)
	}
	return errno(host.fs.RemoveChild(parent, op.Name, false))
}

func (host *wfsFS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()

	dir, err := host.fs.AllocatedInode(engineNum(op.Inode))
	if err != nil {
		return errno(err)
	}
	if !dir.IsDir() {
		return syscall.ENOTDIR
	}
	return nil
}

func (host *wfsFS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()

	dir, err := host.fs.AllocatedInode(engineNum(op.Inode))
	if err != nil {
		return errno(err)
	}
	if !dir.IsDir() {
		return syscall.ENOTDIR
	}

	// "." and ".." are not stored on disk; synthesize them ahead of the
	// stored entries. The directory's own ID stands in for the parent,
	// which the kernel accepts for dirents.
	entries := []fuseutil.Dirent{
		{
			Offset: 1,
			Inode:  op.Inode,
			Name:   ".",
			Type:   fuseutil.DT_Directory,
		},
		{
			Offset: 2,
			Inode:  op.Inode,
			Name:   "..",
			Type:   fuseutil.DT_Directory,
		},
	}

	err = host.fs.ListDir(dir, func(name string, num uint32) bool {
		direntType := fuseutil.DT_File
		if child, err := host.fs.Inode(num); err == nil && child.IsDir() {
			direntType = fuseutil.DT_Directory
		}
		entries = append(entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(len(entries) + 1), // (opaque) offset of the next entry
			Inode:  fuseID(num),
			Name:   name,
			Type:   direntType,
		})
		return true
	})
	if err != nil {
		return errno(err)
	}

	if op.Offset > fuseops.DirOffset(len(entries)) {
		return fuse.EIO
	}

	for _, entry := range entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], entry)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (host *wfsFS) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	return nil
}

func (host *wfsFS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()

	ino, err := host.fs.AllocatedInode(engineNum(op.Inode))
	if err != nil {
		return errno(err)
	}
	if ino.IsDir() {
		return syscall.EISDIR
	}
	return nil
}

func (host *wfsFS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()

	ino, err := host.fs.AllocatedInode(engineNum(op.Inode))
	if err != nil {
		return errno(err)
	}
	op.BytesRead, err = host.fs.ReadInodeAt(ino, op.Dst, op.Offset)
	if err == io.EOF {
		err = nil // FUSE does not want io.EOF
	}
	return errno(err)
}

func (host *wfsFS) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()

	ino, err := host.fs.AllocatedInode(engineNum(op.Inode))
	if err != nil {
		return errno(err)
	}
	_, err = host.fs.WriteInodeAt(ino, op.Data, op.Offset)
	return errno(err)
}

func (host *wfsFS) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return nil
}

func (host *wfsFS) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	host.mu.Lock()
	defer host.mu.Unlock()
	return errno(host.fs.Sync())
}

func (host *wfsFS) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	return nil
}

func (host *wfsFS) Destroy() {
	// The wfs command owns the engine's lifetime; nothing to tear down here.
}
