package pl8_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pl8sim/pl8"
)

var _ = Describe("Activity words", func() {
	DescribeTable("should decode the register and direction",
		func(word uint32, want pl8.AccessEvent) {
			Expect(pl8.DecodeEvent(word)).To(Equal(want))
		},
		Entry("read of register 4", uint32(0x34),
			pl8.AccessEvent{Register: 4, Direction: pl8.DirRead}),
		Entry("write of register 4", uint32(0x14),
			pl8.AccessEvent{Register: 4, Direction: pl8.DirWrite}),
		Entry("write of register 15", uint32(0x1f),
			pl8.AccessEvent{Register: 15, Direction: pl8.DirWrite}),
		Entry("reserved bits set", uint32(0xffffffc2),
			pl8.AccessEvent{Register: 2, Direction: pl8.DirWrite}),
	)

	It("should encode what the sequencer pushes", func() {
		w := pl8.EncodeEvent(pl8.AccessEvent{Register: 9, Direction: pl8.DirRead})

		Expect(w).To(Equal(uint32(0x39)))
		Expect(pl8.DecodeEvent(w).Register).To(Equal(uint8(9)))
	})
})
