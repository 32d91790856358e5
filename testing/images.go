package testing

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	wfs "github.com/Azen233/Simple-Fuse-FS"
)

// FormatImageBytes formats a fresh in-memory image with the given geometry
// and returns its raw bytes, failing the test on any formatter error.
func FormatImageBytes(t *testing.T, numInodes, numDataBlocks uint32) []byte {
	opts := wfs.FormatOptions{NumInodes: numInodes, NumDataBlocks: numDataBlocks}

	size, err := wfs.ImageSize(opts)
	require.NoError(t, err, "computing image size failed")

	imageBytes := make([]byte, size)
	stream := bytesextra.NewReadWriteSeeker(imageBytes)
	require.NoError(t, wfs.Format(stream, opts), "formatting image failed")
	return imageBytes
}

// MountImageBytes formats an in-memory image and mounts it, returning the
// ready-to-use filesystem.
func MountImageBytes(t *testing.T, numInodes, numDataBlocks uint32) *wfs.FileSystem {
	img, err := wfs.ImageFromBytes(FormatImageBytes(t, numInodes, numDataBlocks))
	require.NoError(t, err, "wrapping image failed")

	fs, err := wfs.Mount(img)
	require.NoError(t, err, "mounting image failed")
	return fs
}
