// Bitmap allocator

package wfs

import (
	"github.com/boljen/go-bitmap"
)

// Allocator hands out inode slots or data blocks from a packed bit array.
// The bit array aliases a region of the mapped image, so Set/Clear mutate
// the on-disk bitmap directly.
type Allocator struct {
	bits       bitmap.Bitmap
	TotalUnits uint32
}

// NewAllocator wraps the given bitmap region. `region` must hold at least
// (totalUnits+7)/8 bytes.
func NewAllocator(region []byte, totalUnits uint32) Allocator {
	return Allocator{
		bits:       bitmap.Bitmap(region),
		TotalUnits: totalUnits,
	}
}

// Allocate claims the lowest-indexed free unit and returns its index. The
// lowest-first order is part of the contract: callers and tests rely on
// predictable placement. If no units are available, nothing is modified and
// ErrNoSpaceOnDevice is returned.
func (alloc *Allocator) Allocate() (uint32, error) {
	for i := uint32(0); i < alloc.TotalUnits; i++ {
		if !alloc.bits.Get(int(i)) {
			alloc.bits.Set(int(i), true)
			return i, nil
		}
	}
	return 0, ErrNoSpaceOnDevice
}

// Free clears the bit for `index`. Out-of-range indexes are ignored.
func (alloc *Allocator) Free(index uint32) {
	if index >= alloc.TotalUnits {
		return
	}
	alloc.bits.Set(int(index), false)
}

// IsSet reports whether unit `index` is allocated.
func (alloc *Allocator) IsSet(index uint32) bool {
	if index >= alloc.TotalUnits {
		return false
	}
	return alloc.bits.Get(int(index))
}

// CountSet returns the number of allocated units.
func (alloc *Allocator) CountSet() uint64 {
	total := uint64(0)
	for i := uint32(0); i < alloc.TotalUnits; i++ {
		if alloc.bits.Get(int(i)) {
			total++
		}
	}
	return total
}

// Snapshot copies the raw bitmap bytes covering all units. Tests use it to
// compare allocator state before and after an operation sequence.
func (alloc *Allocator) Snapshot() []byte {
	length := (alloc.TotalUnits + 7) / 8
	out := make([]byte, length)
	copy(out, alloc.bits)
	return out
}
