package wfs

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirentNameRoundTrip(t *testing.T) {
	var d Dirent
	d.SetName("hello.txt")
	d.Num = 7

	encoded := make([]byte, DirentSize)
	require.NoError(t, EncodeDirent(&d, encoded))

	decoded, err := DecodeDirent(encoded)
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", decoded.NameString())
	assert.EqualValues(t, 7, decoded.Num)
}

func TestDirectoryInsertAndLookup(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	require.NoError(t, fs.Mknod("/a", 0o644))
	require.NoError(t, fs.Mknod("/b", 0o644))

	root, err := fs.Inode(RootInodeNum)
	require.NoError(t, err)

	num, err := fs.lookupDirent(root, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, num, "first created file should get inode 1")

	num, err = fs.lookupDirent(root, "b")
	require.NoError(t, err)
	assert.EqualValues(t, 2, num)

	_, err = fs.lookupDirent(root, "c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectoryRemoveTombstonesSlot(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	require.NoError(t, fs.Mknod("/a", 0o644))
	require.NoError(t, fs.Mknod("/b", 0o644))
	require.NoError(t, fs.Unlink("/a"))

	assert.NotContains(t, readDirNames(t, fs, "/"), "a")
	assert.Contains(t, readDirNames(t, fs, "/"), "b")

	// The tombstoned slot is the lowest free one, so the next insert
	// lands there.
	require.NoError(t, fs.Mknod("/c", 0o644))
	names := readDirNames(t, fs, "/")
	assert.Equal(t, []string{".", "..", "c", "b"}, names, "slot reuse order is wrong")
}

func TestDirectoryGrowsPastOneBlock(t *testing.T) {
	fs := newTestFS(t, 64, 64)

	// One block holds DirentsPerBlock entries; one more forces a second
	// block.
	for i := 0; i < DirentsPerBlock+1; i++ {
		require.NoError(t, fs.Mknod(fmt.Sprintf("/f%02d", i), 0o644))
	}

	root, err := fs.Inode(RootInodeNum)
	require.NoError(t, err)
	assert.NotZero(t, root.Blocks[0])
	assert.NotZero(t, root.Blocks[1], "second directory block was not allocated")
	assert.EqualValues(t, 2*BlockSize, root.Size)

	for i := 0; i < DirentsPerBlock+1; i++ {
		name := fmt.Sprintf("f%02d", i)
		_, err := fs.lookupDirent(root, name)
		require.NoErrorf(t, err, "entry %q lost after directory grew", name)
	}
}

func TestDirectoryIsEmpty(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	// The directory inode is re-read each time: insert and remove both
	// flush it, so a stale copy would miss the new entry block.
	isEmpty := func() bool {
		root, err := fs.Inode(RootInodeNum)
		require.NoError(t, err)
		empty, err := fs.directoryIsEmpty(root)
		require.NoError(t, err)
		return empty
	}

	assert.True(t, isEmpty())

	require.NoError(t, fs.Mknod("/a", 0o644))
	assert.False(t, isEmpty())

	require.NoError(t, fs.Unlink("/a"))
	assert.True(t, isEmpty(), "directory with only tombstones should be empty")
}

func TestCreateRejectsOverlongName(t *testing.T) {
	fs := newTestFS(t, 32, 32)

	longName := "/" + strings.Repeat("x", MaxNameLength)
	assert.ErrorIs(t, fs.Mknod(longName, 0o644), ErrNameTooLong)

	// A name that just fits (MaxNameLength-1 bytes plus the NUL) works.
	okName := "/" + strings.Repeat("x", MaxNameLength-1)
	assert.NoError(t, fs.Mknod(okName, 0o644))
}
