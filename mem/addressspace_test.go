package mem_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pl8sim/mem"
)

var _ = Describe("AddressSpace", func() {
	var (
		space *mem.AddressSpace
		sram  *mem.Storage
		regs  *mem.Storage
	)

	BeforeEach(func() {
		space = mem.NewAddressSpace()
		sram = mem.NewStorage(0x1000)
		regs = mem.NewStorage(0x100)
		space.Map("SRAM", 0x20000000, 0x1000, sram)
		space.Map("Regs", 0x50000000, 0x100, regs)
	})

	It("should route accesses to the mapped target", func() {
		Expect(space.Write(0x20000010, mem.Size8, 0xab)).To(Succeed())
		Expect(space.Write(0x50000004, mem.Size32, 0xdeadbeef)).To(Succeed())

		b, _ := sram.ReadWord(0x10, mem.Size8)
		Expect(b).To(Equal(uint32(0xab)))

		w, err := space.Read(0x50000004, mem.Size32)
		Expect(err).NotTo(HaveOccurred())
		Expect(w).To(Equal(uint32(0xdeadbeef)))

		Expect(space.RegionName(0x20000fff)).To(Equal("SRAM"))
	})

	It("should truncate values to the access size", func() {
		Expect(space.Write(0x20000000, mem.Size8, 0x1234)).To(Succeed())

		w, _ := space.Read(0x20000000, mem.Size32)
		Expect(w).To(Equal(uint32(0x34)))
	})

	It("should reject unmapped accesses", func() {
		_, err := space.Read(0x10000000, mem.Size8)
		Expect(err).To(MatchError(mem.ErrUnmapped))

		err = space.Write(0x20000ffe, mem.Size32, 0)
		Expect(err).To(MatchError(mem.ErrUnmapped))
	})

	It("should panic on overlapping regions", func() {
		Expect(func() {
			space.Map("Bad", 0x20000800, 0x1000, mem.NewStorage(0x1000))
		}).To(Panic())
	})
})

var _ = Describe("Allocator", func() {
	It("should align blocks", func() {
		a := mem.NewAllocator(0x20000004, 0x100)

		addr, err := a.Alloc(16, 16)
		Expect(err).NotTo(HaveOccurred())
		Expect(addr).To(Equal(uint32(0x20000010)))

		addr, _ = a.Alloc(4, 4)
		Expect(addr).To(Equal(uint32(0x20000020)))
		Expect(a.Used()).To(Equal(uint32(0x20)))
	})

	It("should report exhaustion", func() {
		a := mem.NewAllocator(0x20000000, 32)

		_, err := a.Alloc(16, 16)
		Expect(err).NotTo(HaveOccurred())

		_, err = a.Alloc(32, 16)
		Expect(err).To(MatchError(mem.ErrOutOfMemory))
	})

	It("should panic on bad alignment", func() {
		a := mem.NewAllocator(0, 32)
		Expect(func() { _, _ = a.Alloc(1, 3) }).To(Panic())
	})
})
