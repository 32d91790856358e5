package wfs

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// newTestImage formats a fresh in-memory image with the given geometry.
func newTestImage(t *testing.T, numInodes, numDataBlocks uint32) []byte {
	t.Helper()

	opts := FormatOptions{NumInodes: numInodes, NumDataBlocks: numDataBlocks}
	size, err := ImageSize(opts)
	require.NoError(t, err, "computing image size failed")

	imageBytes := make([]byte, size)
	require.NoError(
		t, Format(bytesextra.NewReadWriteSeeker(imageBytes), opts),
		"formatting image failed")
	return imageBytes
}

// newTestFS formats and mounts a fresh in-memory filesystem.
func newTestFS(t *testing.T, numInodes, numDataBlocks uint32) *FileSystem {
	t.Helper()

	img, err := ImageFromBytes(newTestImage(t, numInodes, numDataBlocks))
	require.NoError(t, err, "wrapping image failed")

	fs, err := Mount(img)
	require.NoError(t, err, "mounting image failed")
	return fs
}

// readDirNames collects the names ReadDir emits.
func readDirNames(t *testing.T, fs *FileSystem, path string) []string {
	t.Helper()

	var names []string
	require.NoError(t, fs.ReadDir(path, func(name string) bool {
		names = append(names, name)
		return true
	}))
	return names
}
