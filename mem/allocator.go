package mem

import (
	"errors"
	"fmt"
	"log"
)

// ErrOutOfMemory is returned when an allocation does not fit.
var ErrOutOfMemory = errors.New("out of memory")

// An Allocator hands out aligned blocks from a fixed range. Blocks are never
// freed; everything the simulated firmware allocates lives for the whole run.
type Allocator struct {
	base  uint32
	limit uint32
	next  uint32
}

// NewAllocator creates an allocator over [base, base+size).
func NewAllocator(base, size uint32) *Allocator {
	return &Allocator{
		base:  base,
		limit: base + size,
		next:  base,
	}
}

// Alloc returns the address of a new block of size bytes aligned to align,
// which must be a power of two.
func (a *Allocator) Alloc(size, align uint32) (uint32, error) {
	if align == 0 || align&(align-1) != 0 {
		log.Panicf("alignment %d is not a power of two", align)
	}

	addr := (a.next + align - 1) &^ (align - 1)
	if addr < a.next || uint64(addr)+uint64(size) > uint64(a.limit) {
		return 0, fmt.Errorf("%w: %d bytes aligned to %d", ErrOutOfMemory,
			size, align)
	}

	a.next = addr + size

	return addr, nil
}

// Used returns the number of bytes consumed, including alignment padding.
func (a *Allocator) Used() uint32 {
	return a.next - a.base
}
