package wfs

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/noxer/bytewriter"
)

// Formatter. Lays an empty filesystem onto a stream: superblock, zeroed
// bitmaps, inode table with the root inode in slot 0, and the data region.
// The engine consumes exactly this layout, so the two must only ever change
// together.

type FormatOptions struct {
	NumInodes     uint32
	NumDataBlocks uint32
}

// maxFormatUnits caps inode and block counts to keep image sizes sane and
// arithmetic far away from overflow.
const maxFormatUnits = 1 << 24

// ComputeSuperblock derives the region offsets for the given geometry. The
// superblock gets a whole block to itself and each bitmap's length is
// rounded up to a whole block, so every region is block-aligned.
func ComputeSuperblock(opts FormatOptions) (Superblock, error) {
	if opts.NumInodes == 0 || opts.NumDataBlocks == 0 {
		return Superblock{}, ErrInvalidArgument.WithMessage(
			"inode and data block counts must both be positive")
	}
	if opts.NumInodes > maxFormatUnits || opts.NumDataBlocks > maxFormatUnits {
		return Superblock{}, ErrInvalidArgument.WithMessage(fmt.Sprintf(
			"inode and data block counts may not exceed %d", maxFormatUnits))
	}

	numInodes := uint64(opts.NumInodes)
	numBlocks := uint64(opts.NumDataBlocks)

	iBitmapPtr := uint64(BlockSize)
	dBitmapPtr := iBitmapPtr + alignToBlock((numInodes+7)/8)
	iBlocksPtr := dBitmapPtr + alignToBlock((numBlocks+7)/8)
	dBlocksPtr := iBlocksPtr + numInodes*InodeStride

	return Superblock{
		NumInodes:      numInodes,
		NumDataBlocks:  numBlocks,
		InodeBitmapPtr: iBitmapPtr,
		DataBitmapPtr:  dBitmapPtr,
		InodeTablePtr:  iBlocksPtr,
		DataBlocksPtr:  dBlocksPtr,
	}, nil
}

// ImageSize returns the total image size, in bytes, that Format will
// produce for the given geometry.
func ImageSize(opts FormatOptions) (int64, error) {
	sb, err := ComputeSuperblock(opts)
	if err != nil {
		return 0, err
	}
	total := sb.DataBlocksPtr + sb.NumDataBlocks*BlockSize
	if total > math.MaxInt64 {
		return 0, ErrInvalidArgument.WithMessage("image size overflows")
	}
	return int64(total), nil
}

// Format writes a fresh filesystem to the stream. Both bitmaps are left
// fully zeroed; the engine claims the root inode's bitmap bit on first
// mount. If the stream supports truncation the data region is materialized
// that way, otherwise it is written out as zero blocks.
func Format(stream io.ReadWriteSeeker, opts FormatOptions) error {
	sb, err := ComputeSuperblock(opts)
	if err != nil {
		return err
	}
	totalSize, err := ImageSize(opts)
	if err != nil {
		return err
	}

	// Serialize everything up to the data region into one buffer. The
	// buffer starts zeroed, which takes care of both bitmaps, the unused
	// tail of the superblock's own block, and the empty inode slots.
	metadata := make([]byte, sb.DataBlocksPtr)

	writer := bytewriter.New(metadata)
	if err := sb.Encode(writer); err != nil {
		return ErrIOFailed.Wrap(err)
	}

	now := time.Now().Unix()
	rootInode := Inode{
		Num:    RootInodeNum,
		Mode:   DefaultDirectoryMode,
		Uid:    uint32(os.Getuid()),
		Gid:    uint32(os.Getgid()),
		Size:   0,
		Nlinks: 2,
		Atim:   now,
		Mtim:   now,
		Ctim:   now,
	}
	rootSlot := metadata[sb.InodeTablePtr : sb.InodeTablePtr+InodeSize]
	if err := EncodeInode(&rootInode, rootSlot); err != nil {
		return err
	}

	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	if _, err := stream.Write(metadata); err != nil {
		return ErrIOFailed.Wrap(err)
	}

	if truncator, ok := stream.(Truncator); ok {
		return castToFSError(truncator.Truncate(totalSize))
	}

	zeros := make([]byte, BlockSize)
	for i := uint64(0); i < sb.NumDataBlocks; i++ {
		if _, err := stream.Write(zeros); err != nil {
			return ErrIOFailed.Wrap(err)
		}
	}
	return nil
}

// castToFSError turns an arbitrary error into an FSError, passing existing
// ones through untouched.
func castToFSError(err error) error {
	if err == nil {
		return nil
	}
	if fserr, ok := err.(FSError); ok {
		return fserr
	}
	return ErrIOFailed.Wrap(err)
}
