package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Freq", func() {
	It("should get period", func() {
		f := 250 * MHz
		Expect(f.Period()).To(BeNumerically("~", 4e-9, 1e-15))
	})

	It("should panic on zero frequency", func() {
		Expect(func() { Freq(0).Period() }).To(Panic())
	})

	It("should count cycles", func() {
		f := 1 * MHz
		Expect(f.Cycle(0.000123)).To(Equal(uint64(123)))
	})

	It("should get this tick on a tick", func() {
		f := 1 * Hz
		Expect(f.ThisTick(1)).To(BeNumerically("~", 1, 1e-12))
	})

	It("should get this tick off a tick", func() {
		f := 1 * GHz
		Expect(f.ThisTick(0.0000000105)).
			To(BeNumerically("~", 0.000000011, 1e-15))
	})

	It("should get the next tick", func() {
		f := 1 * GHz
		Expect(f.NextTick(0.000000031)).
			To(BeNumerically("~", 0.000000032, 1e-15))
	})

	It("should get the next tick if the time is not on a tick", func() {
		f := 1 * GHz
		Expect(f.NextTick(102.0000000011)).
			To(BeNumerically("~", 102.000000002, 1e-12))
	})

	It("should get n cycles later", func() {
		f := 2 * MHz
		Expect(f.NCyclesLater(3, 0.000001)).
			To(BeNumerically("~", 0.0000025, 1e-15))
	})

	It("should get the half tick", func() {
		f := 1 * MHz
		Expect(f.HalfTick(0.000002)).To(BeNumerically("~", 0.0000025, 1e-15))
	})
})
