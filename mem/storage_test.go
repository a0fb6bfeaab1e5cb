package mem_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pl8sim/mem"
)

var _ = Describe("Storage", func() {
	It("should read and write in a single unit", func() {
		storage := mem.NewStorage(4096)
		Expect(storage.Write(0, []byte{1, 2, 3, 4})).To(Succeed())

		res, err := storage.Read(0, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal([]byte{1, 2}))

		res, _ = storage.Read(1, 2)
		Expect(res).To(Equal([]byte{2, 3}))
	})

	It("should read and write across units", func() {
		storage := mem.NewStorage(8192)
		Expect(storage.Write(4094, []byte{1, 2, 3, 4})).To(Succeed())

		res, _ := storage.Read(4094, 4)
		Expect(res).To(Equal([]byte{1, 2, 3, 4}))
	})

	It("should read zeros from untouched units", func() {
		storage := mem.NewStorage(8192)

		res, err := storage.Read(5000, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal([]byte{0, 0, 0}))
	})

	It("should return an error when accessing beyond the capacity", func() {
		storage := mem.NewStorage(4096)

		Expect(storage.Write(4096, []byte{1})).
			To(MatchError(mem.ErrBeyondCapacity))

		_, err := storage.Read(4095, 2)
		Expect(err).To(MatchError(mem.ErrBeyondCapacity))
	})

	It("should access little-endian words", func() {
		storage := mem.NewStorage(64)

		Expect(storage.WriteWord(8, mem.Size32, 0x11223344)).To(Succeed())

		b, _ := storage.ReadWord(8, mem.Size8)
		Expect(b).To(Equal(uint32(0x44)))

		h, _ := storage.ReadWord(10, mem.Size16)
		Expect(h).To(Equal(uint32(0x1122)))
	})
})
