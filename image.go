package wfs

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

// Image is the backing disk image, held as one contiguous mutable byte
// region. Every other component reads and writes the filesystem exclusively
// through slices of this region; no other I/O path exists.
type Image struct {
	data   []byte
	sb     Superblock
	file   *os.File
	mapped bool
}

// OpenImage opens the image file read-write and maps its full length as a
// shared mapping, so stores become visible in the file without explicit
// write-back.
func OpenImage(path string) (*Image, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, ErrIOFailed.Wrap(err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ErrIOFailed.Wrap(err)
	}

	data, err := unix.Mmap(
		int(file.Fd()),
		0,
		int(info.Size()),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		file.Close()
		return nil, ErrIOFailed.WithMessage(
			fmt.Sprintf("mapping %q failed: %s", path, err.Error()))
	}

	img := &Image{data: data, file: file, mapped: true}
	if err := img.loadSuperblock(); err != nil {
		img.Close()
		return nil, err
	}
	return img, nil
}

// ImageFromBytes wraps an in-memory image, e.g. one produced by Format into
// a byte buffer. Mutations go directly into `data`.
func ImageFromBytes(data []byte) (*Image, error) {
	img := &Image{data: data}
	if err := img.loadSuperblock(); err != nil {
		return nil, err
	}
	return img, nil
}

// loadSuperblock decodes the superblock and validates that every region it
// describes lies inside the mapped range. The engine trusts these offsets
// afterwards, so a corrupt superblock must be rejected here.
func (img *Image) loadSuperblock() error {
	if len(img.data) < SuperblockSize {
		return ErrIOFailed.WithMessage(
			fmt.Sprintf("image is %d bytes, too small for a superblock", len(img.data)))
	}

	sb, err := DecodeSuperblock(img.data[:SuperblockSize])
	if err != nil {
		return err
	}

	if sb.NumInodes == 0 || sb.NumDataBlocks == 0 {
		return ErrIOFailed.WithMessage("corruption detected: zero inode or block count")
	}

	size := uint64(len(img.data))
	iBitmapLen := alignToBlock((sb.NumInodes + 7) / 8)
	dBitmapLen := alignToBlock((sb.NumDataBlocks + 7) / 8)

	regions := [...]struct {
		name  string
		start uint64
		end   uint64
	}{
		{"inode bitmap", sb.InodeBitmapPtr, sb.InodeBitmapPtr + iBitmapLen},
		{"data bitmap", sb.DataBitmapPtr, sb.DataBitmapPtr + dBitmapLen},
		{"inode table", sb.InodeTablePtr, sb.InodeTablePtr + sb.NumInodes*InodeStride},
		{"data region", sb.DataBlocksPtr, sb.DataBlocksPtr + sb.NumDataBlocks*BlockSize},
	}
	for _, region := range regions {
		if region.start < SuperblockSize || region.end > size || region.start > region.end {
			return ErrIOFailed.WithMessage(fmt.Sprintf(
				"corruption detected: %s [%d, %d) outside image of %d bytes",
				region.name, region.start, region.end, size))
		}
	}

	img.sb = sb
	return nil
}

func (img *Image) Superblock() Superblock {
	return img.sb
}

// Bytes returns the mutable byte range [offset, offset+length) of the image.
func (img *Image) Bytes(offset, length int64) []byte {
	return img.data[offset : offset+length]
}

func (img *Image) Len() int64 {
	return int64(len(img.data))
}

func (img *Image) inodeBitmapRegion() []byte {
	start := int64(img.sb.InodeBitmapPtr)
	return img.data[start : start+int64(alignToBlock((img.sb.NumInodes+7)/8))]
}

func (img *Image) dataBitmapRegion() []byte {
	start := int64(img.sb.DataBitmapPtr)
	return img.data[start : start+int64(alignToBlock((img.sb.NumDataBlocks+7)/8))]
}

// Sync flushes outstanding stores to the backing file. In-memory images have
// nothing to flush.
func (img *Image) Sync() error {
	if !img.mapped {
		return nil
	}
	if err := unix.Msync(img.data, unix.MS_SYNC); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	return nil
}

// Close flushes, unmaps, and releases the image. Every failure along the way
// is reported; a failed sync does not stop the unmap.
func (img *Image) Close() error {
	var result *multierror.Error

	if img.mapped {
		if err := unix.Msync(img.data, unix.MS_SYNC); err != nil {
			result = multierror.Append(result, ErrIOFailed.Wrap(err))
		}
		if err := unix.Munmap(img.data); err != nil {
			result = multierror.Append(result, ErrIOFailed.Wrap(err))
		}
		img.mapped = false
	}
	img.data = nil

	if img.file != nil {
		if err := img.file.Close(); err != nil {
			result = multierror.Append(result, ErrIOFailed.Wrap(err))
		}
		img.file = nil
	}
	return result.ErrorOrNil()
}

// alignToBlock rounds `size` up to the next multiple of BlockSize.
func alignToBlock(size uint64) uint64 {
	if size%BlockSize == 0 {
		return size
	}
	return (size/BlockSize + 1) * BlockSize
}
