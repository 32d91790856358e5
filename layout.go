package wfs

import (
	"bytes"
	"encoding/binary"
	"io"
)

// On-disk geometry. The formatter and the engine must agree on every one of
// these; changing any of them is a disk format change.
const (
	// BlockSize is the size of one data block, in bytes.
	BlockSize = 512

	// NumDirectBlocks is the number of direct block slots in an inode. The
	// slot after the last direct one holds the indirect block pointer.
	NumDirectBlocks = 6
	IndirectSlot    = NumDirectBlocks
	NumBlockSlots   = NumDirectBlocks + 1

	// PointersPerBlock is how many 64-bit block offsets fit in the indirect
	// block.
	PointersPerBlock = BlockSize / 8

	// MaxLogicalBlocks is the highest addressable logical block count per
	// file: the direct slots plus one fully populated indirect block.
	MaxLogicalBlocks = NumDirectBlocks + PointersPerBlock
	MaxFileSize      = MaxLogicalBlocks * BlockSize

	// MaxNameLength is the capacity of a directory entry's name buffer,
	// including the terminating NUL.
	MaxNameLength = 28

	// InodeStride is the distance between consecutive inode slots in the
	// inode table. Inodes are block-aligned; the unused tail of each slot is
	// zero.
	InodeStride = BlockSize

	// RootInodeNum is the inode number of the root directory.
	RootInodeNum = 0
)

// Superblock is the fixed-size record at offset 0 of the image. All pointer
// fields are absolute byte offsets from the start of the image.
type Superblock struct {
	NumInodes      uint64
	NumDataBlocks  uint64
	InodeBitmapPtr uint64
	DataBitmapPtr  uint64
	InodeTablePtr  uint64
	DataBlocksPtr  uint64
}

// SuperblockSize is the encoded size of the superblock record.
const SuperblockSize = 6 * 8

// Inode is the on-disk inode record. Block slots hold absolute byte offsets
// into the image; 0 means unassigned. Timestamps are seconds since the Unix
// epoch.
type Inode struct {
	Num    uint32
	Mode   uint32
	Uid    uint32
	Gid    uint32
	Size   int64
	Nlinks uint32
	Atim   int64
	Mtim   int64
	Ctim   int64
	Blocks [NumBlockSlots]int64
}

// InodeSize is the encoded size of an inode record: five uint32 fields,
// four int64 fields, and the block slots. It must never exceed InodeStride.
const InodeSize = 5*4 + 4*8 + NumBlockSlots*8

func (ino *Inode) IsDir() bool {
	return ino.Mode&S_IFMT == S_IFDIR
}

func (ino *Inode) IsRegular() bool {
	return ino.Mode&S_IFMT == S_IFREG
}

// Dirent is a directory entry record: a NUL-terminated name plus the inode
// number it binds to. Num == 0 marks a free slot, since inode 0 (the root)
// can never be a directory entry's target.
type Dirent struct {
	Name [MaxNameLength]byte
	Num  uint32
}

// DirentSize is the encoded size of a directory entry.
const DirentSize = MaxNameLength + 4

// DirentsPerBlock is how many entries fit in one directory data block.
const DirentsPerBlock = BlockSize / DirentSize

// NameString returns the entry's name up to the first NUL.
func (d *Dirent) NameString() string {
	for i, b := range d.Name {
		if b == 0 {
			return string(d.Name[:i])
		}
	}
	return string(d.Name[:])
}

// SetName fills the name buffer with `name` and zero-pads the rest. The
// caller must have validated the length.
func (d *Dirent) SetName(name string) {
	d.Name = [MaxNameLength]byte{}
	copy(d.Name[:], name)
}

////////////////////////////////////////////////////////////////////////////////
// Serialization
//
// Every record is encoded little-endian with no padding, which is what
// encoding/binary does for structs of fixed-width fields.

func DecodeSuperblock(data []byte) (Superblock, error) {
	var sb Superblock
	err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &sb)
	if err != nil {
		return Superblock{}, ErrIOFailed.Wrap(err)
	}
	return sb, nil
}

func (sb *Superblock) Encode(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, sb)
}

func DecodeInode(data []byte) (Inode, error) {
	var ino Inode
	err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &ino)
	if err != nil {
		return Inode{}, ErrIOFailed.Wrap(err)
	}
	return ino, nil
}

// EncodeInode serializes `ino` into `data`, which must be at least InodeSize
// bytes long.
func EncodeInode(ino *Inode, data []byte) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, ino); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	copy(data, buf.Bytes())
	return nil
}

func DecodeDirent(data []byte) (Dirent, error) {
	var d Dirent
	err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &d)
	if err != nil {
		return Dirent{}, ErrIOFailed.Wrap(err)
	}
	return d, nil
}

func EncodeDirent(d *Dirent, data []byte) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, d); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	copy(data, buf.Bytes())
	return nil
}
