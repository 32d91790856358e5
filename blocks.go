package wfs

import (
	"encoding/binary"
	"fmt"
)

// Block-pointer engine: resolves a file's logical block index to an absolute
// byte offset in the image, allocating direct and indirect blocks on demand.
//
// Inode block slots and indirect entries store absolute offsets rather than
// block indices, so a dereference is a single addition to the image base.
// The price is that a corrupt pointer can aim anywhere, so every stored
// offset is validated against the data region before use.

// validateBlockOffset checks that `offset` names a block inside the data
// region and is block-aligned.
func (fs *FileSystem) validateBlockOffset(offset int64) error {
	start := int64(fs.sb.DataBlocksPtr)
	end := start + int64(fs.sb.NumDataBlocks)*BlockSize
	if offset < start || offset >= end || (offset-start)%BlockSize != 0 {
		return ErrIOFailed.WithMessage(fmt.Sprintf(
			"corruption detected: block offset %d outside data region [%d, %d)",
			offset, start, end))
	}
	return nil
}

// block returns the BlockSize byte range at `offset`. The offset must have
// been validated.
func (fs *FileSystem) block(offset int64) []byte {
	return fs.image.Bytes(offset, BlockSize)
}

// allocDataBlock claims a free data block, zero-fills it, and returns its
// absolute offset.
func (fs *FileSystem) allocDataBlock() (int64, error) {
	index, err := fs.dataBitmap.Allocate()
	if err != nil {
		return 0, err
	}
	offset := int64(fs.sb.DataBlocksPtr) + int64(index)*BlockSize
	blk := fs.block(offset)
	for i := range blk {
		blk[i] = 0
	}
	return offset, nil
}

// freeDataBlock releases the block at `offset`. Invalid offsets are ignored;
// this runs during teardown of an inode, where an unmappable pointer means
// there is nothing sensible left to free.
func (fs *FileSystem) freeDataBlock(offset int64) {
	if fs.validateBlockOffset(offset) != nil {
		return
	}
	fs.dataBitmap.Free(uint32((offset - int64(fs.sb.DataBlocksPtr)) / BlockSize))
}

// indirectEntry reads entry `j` of the indirect block at `offset`.
func (fs *FileSystem) indirectEntry(offset int64, j int) int64 {
	blk := fs.block(offset)
	return int64(binary.LittleEndian.Uint64(blk[j*8:]))
}

// setIndirectEntry writes entry `j` of the indirect block at `offset`.
func (fs *FileSystem) setIndirectEntry(offset int64, j int, value int64) {
	blk := fs.block(offset)
	binary.LittleEndian.PutUint64(blk[j*8:], uint64(value))
}

// BlockForIndex resolves logical block `index` of `ino` to an absolute byte
// offset. With allocate set, missing blocks (and the indirect block itself)
// are claimed and zero-filled on the way; the caller must flush the inode
// afterwards, since direct slots and the indirect slot live in the inode
// record. Without allocate, an unassigned block resolves to offset 0.
func (fs *FileSystem) BlockForIndex(ino *Inode, index int, allocate bool) (int64, error) {
	if index < 0 || index >= MaxLogicalBlocks {
		return 0, ErrInvalidArgument.WithMessage(
			fmt.Sprintf("logical block %d out of range (max %d)", index, MaxLogicalBlocks-1))
	}

	if index < NumDirectBlocks {
		offset := ino.Blocks[index]
		if offset == 0 {
			if !allocate {
				return 0, nil
			}
			newOffset, err := fs.allocDataBlock()
			if err != nil {
				return 0, err
			}
			ino.Blocks[index] = newOffset
			return newOffset, nil
		}
		if err := fs.validateBlockOffset(offset); err != nil {
			return 0, err
		}
		return offset, nil
	}

	// Indirect range: the slot after the direct ones points at a block whose
	// contents are an array of further block offsets.
	j := index - NumDirectBlocks

	indirect := ino.Blocks[IndirectSlot]
	if indirect == 0 {
		if !allocate {
			return 0, nil
		}
		newIndirect, err := fs.allocDataBlock()
		if err != nil {
			return 0, err
		}
		ino.Blocks[IndirectSlot] = newIndirect
		indirect = newIndirect
	} else if err := fs.validateBlockOffset(indirect); err != nil {
		return 0, err
	}

	offset := fs.indirectEntry(indirect, j)
	if offset == 0 {
		if !allocate {
			return 0, nil
		}
		newOffset, err := fs.allocDataBlock()
		if err != nil {
			return 0, err
		}
		fs.setIndirectEntry(indirect, j, newOffset)
		return newOffset, nil
	}
	if err := fs.validateBlockOffset(offset); err != nil {
		return 0, err
	}
	return offset, nil
}

// freeInodeBlocks releases every data block `ino` references: direct blocks,
// blocks reached through the indirect block, and the indirect block itself.
// The inode's block slots are cleared so a flush leaves no dangling offsets.
func (fs *FileSystem) freeInodeBlocks(ino *Inode) {
	for i := 0; i < NumDirectBlocks; i++ {
		if ino.Blocks[i] != 0 {
			fs.freeDataBlock(ino.Blocks[i])
			ino.Blocks[i] = 0
		}
	}

	indirect := ino.Blocks[IndirectSlot]
	if indirect == 0 {
		return
	}
	if fs.validateBlockOffset(indirect) == nil {
		for j := 0; j < PointersPerBlock; j++ {
			if entry := fs.indirectEntry(indirect, j); entry != 0 {
				fs.freeDataBlock(entry)
			}
		}
	}
	fs.freeDataBlock(indirect)
	ino.Blocks[IndirectSlot] = 0
}
