package wfs

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreshMountRootAttributes(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	stat, err := fs.GetAttr("/")
	require.NoError(t, err)
	assert.Equal(t, os.ModeDir|0o755, stat.ModeFlags)
	assert.EqualValues(t, 2, stat.Nlinks)
	assert.EqualValues(t, 0, stat.Size)

	assert.Equal(t, []string{".", ".."}, readDirNames(t, fs, "/"))
	assert.NoError(t, fs.Check())
}

func TestCreateWriteRead(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	require.NoError(t, fs.Mknod("/a", 0o644))
	n, err := fs.Write("/a", []byte("hello world"), 0)
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	buf := make([]byte, 11)
	n, err = fs.Read("/a", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, "hello world", string(buf))

	stat, err := fs.GetAttr("/a")
	require.NoError(t, err)
	assert.EqualValues(t, 11, stat.Size)
	assert.EqualValues(t, 1, stat.Nlinks)
	assert.True(t, stat.IsFile())
	assert.NoError(t, fs.Check())
}

func TestReadPastEndOfFile(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	require.NoError(t, fs.Mknod("/a", 0o644))
	_, err := fs.Write("/a", []byte("abc"), 0)
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := fs.Read("/a", buf, 3)
	require.NoError(t, err)
	assert.Zero(t, n, "read at EOF should return 0 bytes")

	n, err = fs.Read("/a", buf, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "bc", string(buf[:n]))
}

func TestWriteAtIntraBlockOffset(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	require.NoError(t, fs.Mknod("/a", 0o644))
	_, err := fs.Write("/a", bytes.Repeat([]byte{'x'}, 600), 0)
	require.NoError(t, err)

	// Overwrite a range straddling the first block boundary.
	_, err = fs.Write("/a", []byte("0123456789"), 507)
	require.NoError(t, err)

	buf := make([]byte, 600)
	n, err := fs.Read("/a", buf, 0)
	require.NoError(t, err)
	require.Equal(t, 600, n)
	assert.Equal(t, "0123456789", string(buf[507:517]))
	assert.Equal(t, byte('x'), buf[506])
	assert.Equal(t, byte('x'), buf[517])
	assert.NoError(t, fs.Check())
}

func TestIndirectBlockCrossover(t *testing.T) {
	fs := newTestFS(t, 32, 64)

	require.NoError(t, fs.Mknod("/big", 0o644))
	bitsBefore := fs.dataBitmap.CountSet()

	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 251)
	}
	n, err := fs.Write("/big", data, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	// 8 data blocks plus the indirect block itself.
	assert.EqualValues(t, 9, fs.dataBitmap.CountSet()-bitsBefore,
		"indirect write claimed the wrong number of blocks")

	readBack := make([]byte, 4096)
	n, err = fs.Read("/big", readBack, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	assert.True(t, bytes.Equal(data, readBack), "data read back differs")

	ino, err := fs.Resolve("/big")
	require.NoError(t, err)
	assert.NotZero(t, ino.Blocks[IndirectSlot], "indirect slot not populated")
	assert.NoError(t, fs.Check())
}

func TestRmdirRejectsNonEmpty(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	require.NoError(t, fs.Mkdir("/d", 0o755))
	require.NoError(t, fs.Mknod("/d/x", 0o644))

	assert.ErrorIs(t, fs.Rmdir("/d"), ErrDirectoryNotEmpty)

	require.NoError(t, fs.Unlink("/d/x"))
	require.NoError(t, fs.Rmdir("/d"))

	_, err := fs.GetAttr("/d")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, fs.Check())
}

func TestInodeExhaustion(t *testing.T) {
	fs := newTestFS(t, 2, 32)

	require.NoError(t, fs.Mknod("/a", 0o644))

	inodeBits := fs.inodeBitmap.Snapshot()
	dataBits := fs.dataBitmap.Snapshot()
	assert.ErrorIs(t, fs.Mknod("/b", 0o644), ErrNoSpaceOnDevice)
	assert.Equal(t, inodeBits, fs.inodeBitmap.Snapshot(), "failed mknod changed the inode bitmap")
	assert.Equal(t, dataBits, fs.dataBitmap.Snapshot(), "failed mknod changed the data bitmap")
}

func TestDuplicateCreate(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	require.NoError(t, fs.Mknod("/a", 0o644))
	inodeBits := fs.inodeBitmap.Snapshot()
	dataBits := fs.dataBitmap.Snapshot()

	assert.ErrorIs(t, fs.Mknod("/a", 0o644), ErrExists)
	assert.ErrorIs(t, fs.Mkdir("/a", 0o755), ErrExists)
	assert.Equal(t, inodeBits, fs.inodeBitmap.Snapshot())
	assert.Equal(t, dataBits, fs.dataBitmap.Snapshot())
}

func TestUnlinkReclaimsBlocks(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	// Prime the root directory so its entry block is already allocated and
	// the snapshot below isn't disturbed by directory growth.
	require.NoError(t, fs.Mknod("/prime", 0o644))
	require.NoError(t, fs.Unlink("/prime"))

	inodeBits := fs.inodeBitmap.Snapshot()
	dataBits := fs.dataBitmap.Snapshot()

	require.NoError(t, fs.Mknod("/f", 0o644))
	_, err := fs.Write("/f", make([]byte, 3*BlockSize), 0)
	require.NoError(t, err)

	ino, err := fs.Resolve("/f")
	require.NoError(t, err)
	firstBlocks := [3]int64{ino.Blocks[0], ino.Blocks[1], ino.Blocks[2]}

	require.NoError(t, fs.Unlink("/f"))
	assert.Equal(t, inodeBits, fs.inodeBitmap.Snapshot(), "inode bitmap not restored")
	assert.Equal(t, dataBits, fs.dataBitmap.Snapshot(), "data bitmap not restored")

	// Lowest-free-first allocation reuses the exact same offsets.
	require.NoError(t, fs.Mknod("/g", 0o644))
	_, err = fs.Write("/g", make([]byte, 3*BlockSize), 0)
	require.NoError(t, err)
	again, err := fs.Resolve("/g")
	require.NoError(t, err)
	assert.Equal(t, firstBlocks, [3]int64{again.Blocks[0], again.Blocks[1], again.Blocks[2]})
	assert.NoError(t, fs.Check())
}

func TestReaddirTracksCreateAndUnlink(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	require.NoError(t, fs.Mkdir("/parent", 0o755))
	require.NoError(t, fs.Mknod("/parent/x", 0o644))
	assert.Contains(t, readDirNames(t, fs, "/parent"), "x")

	require.NoError(t, fs.Unlink("/parent/x"))
	assert.NotContains(t, readDirNames(t, fs, "/parent"), "x")
}

func TestReaddirStopsWhenEmitIsFull(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	require.NoError(t, fs.Mknod("/a", 0o644))
	require.NoError(t, fs.Mknod("/b", 0o644))

	var names []string
	require.NoError(t, fs.ReadDir("/", func(name string) bool {
		names = append(names, name)
		return len(names) < 3
	}))
	assert.Equal(t, []string{".", "..", "a"}, names)
}

func TestUnlinkRefusesDirectory(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	require.NoError(t, fs.Mkdir("/d", 0o755))
	assert.ErrorIs(t, fs.Unlink("/d"), ErrIsADirectory)
}

func TestRmdirRefusesFileAndRoot(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	require.NoError(t, fs.Mknod("/f", 0o644))
	assert.ErrorIs(t, fs.Rmdir("/f"), ErrNotADirectory)
	assert.ErrorIs(t, fs.Rmdir("/"), ErrInvalidArgument)
}

func TestWriteBeyondCapacityIsPartial(t *testing.T) {
	// 8 data blocks total: the root directory block takes one, so a write
	// of 8 blocks must run out partway through.
	fs := newTestFS(t, 32, 8)

	require.NoError(t, fs.Mknod("/f", 0o644))
	n, err := fs.Write("/f", make([]byte, 8*BlockSize), 0)
	assert.ErrorIs(t, err, ErrNoSpaceOnDevice)
	// Six direct blocks fit; the indirect block itself consumes the last
	// free block, so the seventh data block is never allocated.
	assert.Equal(t, 6*BlockSize, n, "partial write copied the wrong byte count")

	// The failed write must not extend the recorded size.
	stat, err := fs.GetAttr("/f")
	require.NoError(t, err)
	assert.EqualValues(t, 0, stat.Size)
}

func TestWriteAppendExtendsSize(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	require.NoError(t, fs.Mknod("/f", 0o644))
	_, err := fs.Write("/f", []byte("aaaa"), 0)
	require.NoError(t, err)
	_, err = fs.Write("/f", []byte("bbbb"), 4)
	require.NoError(t, err)

	stat, err := fs.GetAttr("/f")
	require.NoError(t, err)
	assert.EqualValues(t, 8, stat.Size)

	// Overwrites inside the file do not shrink or grow it.
	_, err = fs.Write("/f", []byte("cc"), 2)
	require.NoError(t, err)
	stat, err = fs.GetAttr("/f")
	require.NoError(t, err)
	assert.EqualValues(t, 8, stat.Size)
}

func TestWriteUpdatesMtime(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	require.NoError(t, fs.Mknod("/f", 0o644))
	ino, err := fs.Resolve("/f")
	require.NoError(t, err)
	ino.Mtim = 0
	require.NoError(t, fs.FlushInode(ino))

	_, err = fs.Write("/f", []byte("x"), 0)
	require.NoError(t, err)

	stat, err := fs.GetAttr("/f")
	require.NoError(t, err)
	assert.NotZero(t, stat.LastModified.Unix(), "write did not stamp mtime")
}

func TestTruncateToZeroReleasesBlocks(t *testing.T) {
	fs := newTestFS(t, 32, 64)

	require.NoError(t, fs.Mknod("/f", 0o644))
	_, err := fs.Write("/f", make([]byte, 10*BlockSize), 0)
	require.NoError(t, err)

	ino, err := fs.Resolve("/f")
	require.NoError(t, err)
	require.NoError(t, fs.Truncate(ino, 0))

	stat, err := fs.GetAttr("/f")
	require.NoError(t, err)
	assert.EqualValues(t, 0, stat.Size)
	assert.NoError(t, fs.Check())

	assert.ErrorIs(t, fs.Truncate(ino, 100), ErrInvalidArgument)
}

func TestStatFS(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	stat := fs.StatFS()
	assert.EqualValues(t, BlockSize, stat.BlockSize)
	assert.EqualValues(t, 32, stat.TotalBlocks)
	assert.EqualValues(t, 32, stat.BlocksFree)
	assert.EqualValues(t, 1, stat.Files, "only the root should be allocated")
	assert.EqualValues(t, 31, stat.FilesFree)
	assert.EqualValues(t, MaxNameLength-1, stat.MaxNameLength)

	require.NoError(t, fs.Mknod("/f", 0o644))
	_, err := fs.Write("/f", make([]byte, BlockSize), 0)
	require.NoError(t, err)

	stat = fs.StatFS()
	assert.EqualValues(t, 2, stat.Files)
	// One block for the root directory's entries, one for the file.
	assert.EqualValues(t, 30, stat.BlocksFree)
}

func TestOpenChecksExistence(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	assert.ErrorIs(t, fs.Open("/missing"), ErrNotFound)
	require.NoError(t, fs.Mknod("/f", 0o644))
	assert.NoError(t, fs.Open("/f"))
	assert.NoError(t, fs.Open("/"))
}

func TestMknodUnlinkRestoresState(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	require.NoError(t, fs.Mkdir("/d", 0o755))
	// Prime the directory's entry block.
	require.NoError(t, fs.Mknod("/d/prime", 0o644))
	require.NoError(t, fs.Unlink("/d/prime"))

	inodeBits := fs.inodeBitmap.Snapshot()
	dataBits := fs.dataBitmap.Snapshot()
	namesBefore := readDirNames(t, fs, "/d")

	require.NoError(t, fs.Mknod("/d/p", 0o644))
	require.NoError(t, fs.Unlink("/d/p"))

	assert.Equal(t, inodeBits, fs.inodeBitmap.Snapshot())
	assert.Equal(t, dataBits, fs.dataBitmap.Snapshot())
	assert.Equal(t, namesBefore, readDirNames(t, fs, "/d"))
	assert.NoError(t, fs.Check())
}
