package pl8

import (
	"log"

	"github.com/sarchlab/pl8sim/mem"
)

// A RegisterFile is the 16-byte window the 6502 sees, living in SRAM.
type RegisterFile struct {
	storage *mem.Storage
	base    uint32
	offset  uint64
}

// NewRegisterFile places a register file at bus address base, which is
// storageOffset bytes into storage.
func NewRegisterFile(
	storage *mem.Storage,
	base uint32,
	storageOffset uint64,
) *RegisterFile {
	if base%RegisterFileAlign != 0 {
		log.Panicf("register file at 0x%08x is not %d-byte aligned",
			base, RegisterFileAlign)
	}

	return &RegisterFile{storage: storage, base: base, offset: storageOffset}
}

// Base returns the bus address of register 0.
func (r *RegisterFile) Base() uint32 {
	return r.base
}

// Address returns the bus address of a register.
func (r *RegisterFile) Address(reg uint8) uint32 {
	return r.base | uint32(reg)&ActRegMask
}

// Contains tells if a bus address falls inside the register file.
func (r *RegisterFile) Contains(addr uint32) bool {
	return addr >= r.base && addr < r.base+NumRegisters
}

// Get returns the value of one register.
func (r *RegisterFile) Get(reg uint8) uint8 {
	b, err := r.storage.Read(r.offset+uint64(reg&0x0f), 1)
	if err != nil {
		log.Panic(err)
	}

	return b[0]
}

// Set changes one register from the processor side.
func (r *RegisterFile) Set(reg, value uint8) {
	err := r.storage.Write(r.offset+uint64(reg&0x0f), []byte{value})
	if err != nil {
		log.Panic(err)
	}
}

// Snapshot copies all the registers.
func (r *RegisterFile) Snapshot() [NumRegisters]byte {
	var out [NumRegisters]byte

	b, err := r.storage.Read(r.offset, NumRegisters)
	if err != nil {
		log.Panic(err)
	}

	copy(out[:], b)

	return out
}
