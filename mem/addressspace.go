package mem

import (
	"errors"
	"fmt"
	"log"
	"sort"
)

// AccessSize is the width of a single bus access in bytes.
type AccessSize uint32

// Supported access sizes.
const (
	Size8  AccessSize = 1
	Size16 AccessSize = 2
	Size32 AccessSize = 4
)

// Mask returns the bit mask that keeps the bits a value of this size can
// carry.
func (s AccessSize) Mask() uint32 {
	switch s {
	case Size8:
		return 0xff
	case Size16:
		return 0xffff
	case Size32:
		return 0xffffffff
	default:
		log.Panicf("unsupported access size %d", s)
	}

	return 0
}

// ErrUnmapped is returned when no target is mapped at an address.
var ErrUnmapped = errors.New("address not mapped")

// A Target is anything that can be placed in the address space. Offsets are
// relative to the base address the target is mapped at.
type Target interface {
	ReadWord(offset uint32, size AccessSize) (uint32, error)
	WriteWord(offset uint32, size AccessSize, value uint32) error
}

type region struct {
	name   string
	base   uint32
	size   uint32
	target Target
}

func (r region) contains(addr uint32, size AccessSize) bool {
	return addr >= r.base && uint64(addr)+uint64(size) <= uint64(r.base)+uint64(r.size)
}

// An AddressSpace is the system bus of the simulated chip. It routes word
// accesses to the target mapped at the address.
type AddressSpace struct {
	regions []region
}

// NewAddressSpace creates an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{}
}

// Map places a target at [base, base+size). Overlapping regions are a wiring
// error and cause a panic.
func (s *AddressSpace) Map(name string, base, size uint32, target Target) {
	newRegion := region{name: name, base: base, size: size, target: target}

	for _, r := range s.regions {
		if base < r.base+r.size && r.base < base+size {
			log.Panicf("region %s [0x%08x, +0x%x) overlaps %s",
				name, base, size, r.name)
		}
	}

	s.regions = append(s.regions, newRegion)
	sort.Slice(s.regions, func(i, j int) bool {
		return s.regions[i].base < s.regions[j].base
	})
}

func (s *AddressSpace) find(addr uint32, size AccessSize) (region, error) {
	i := sort.Search(len(s.regions), func(i int) bool {
		r := s.regions[i]
		return r.base+r.size > addr
	})

	if i < len(s.regions) && s.regions[i].contains(addr, size) {
		return s.regions[i], nil
	}

	return region{}, fmt.Errorf("%w: 0x%08x", ErrUnmapped, addr)
}

// Read performs a read access of the given size.
func (s *AddressSpace) Read(addr uint32, size AccessSize) (uint32, error) {
	r, err := s.find(addr, size)
	if err != nil {
		return 0, err
	}

	return r.target.ReadWord(addr-r.base, size)
}

// Write performs a write access of the given size. Only the low bits that
// fit in the size are written.
func (s *AddressSpace) Write(addr uint32, size AccessSize, value uint32) error {
	r, err := s.find(addr, size)
	if err != nil {
		return err
	}

	return r.target.WriteWord(addr-r.base, size, value&size.Mask())
}

// RegionName returns the name of the region that contains addr, or an empty
// string.
func (s *AddressSpace) RegionName(addr uint32) string {
	r, err := s.find(addr, Size8)
	if err != nil {
		return ""
	}

	return r.name
}
