package report_test

import (
	"bytes"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pl8sim/pl8"
	"github.com/sarchlab/pl8sim/report"
)

type fakeSource struct {
	rbits, wbits uint32
	status       pl8.Status
	takes        int
}

func (s *fakeSource) TakeReadBits() uint32 {
	s.takes++
	b := s.rbits
	s.rbits = 0

	return b
}

func (s *fakeSource) TakeWrittenBits() uint32 {
	s.takes++
	b := s.wbits
	s.wbits = 0

	return b
}

func (s *fakeSource) Status() pl8.Status {
	return s.status
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

var _ = Describe("Reporter", func() {
	var (
		buf bytes.Buffer
		src *fakeSource
		r   *report.Reporter
	)

	BeforeEach(func() {
		buf.Reset()
		src = &fakeSource{}
		src.status.Registers[2] = 0x24
		src.status.Registers[15] = 0xab
		src.status.Counters = pl8.Counters{
			ReadCount: 1, WriteCount: 1, MaxQ: 1,
		}
		r = report.NewReporter(&buf)
	})

	It("should print nothing when nothing was touched", func() {
		printed, err := r.Report(src)

		Expect(err).NotTo(HaveOccurred())
		Expect(printed).To(BeFalse())
		Expect(buf.Len()).To(BeZero())
		Expect(src.takes).To(Equal(2))
	})

	It("should print the status block", func() {
		src.rbits = 1 << 2
		src.wbits = 1 << 2

		printed, err := r.Report(src)

		Expect(err).NotTo(HaveOccurred())
		Expect(printed).To(BeTrue())
		Expect(buf.String()).To(Equal(
			"PL8 Status\n" +
				"Data ab  0  0  0  0  0  0  0  0  0  0  0  0 24  0  0 \n" +
				"Read  0  0  0  0  0  0  0  0  0  0  0  0  0  1  0  0 \n" +
				"Writ  0  0  0  0  0  0  0  0  0  0  0  0  0  1  0  0 \n" +
				"Read: 1 Written: 1 Max queue: 1\n"))
	})

	It("should clear the masks by reporting", func() {
		src.wbits = 0x8001

		printed, _ := r.Report(src)
		Expect(printed).To(BeTrue())

		printed, _ = r.Report(src)
		Expect(printed).To(BeFalse())
	})

	It("should mention overflows only when there were some", func() {
		src.wbits = 1
		src.status.Overflows = 3

		_, err := r.Report(src)

		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(HaveSuffix("Overflows: 3\n"))
	})

	It("should not highlight when writing to a buffer", func() {
		src.wbits = 1

		_, _ = r.Report(src)

		Expect(buf.String()).NotTo(ContainSubstring("\x1b["))
	})

	It("should highlight touched registers when asked", func() {
		src.wbits = 1 << 2

		_, _ = r.WithColor(true).Report(src)

		lines := strings.Split(buf.String(), "\n")
		Expect(lines[1]).To(ContainSubstring("\x1b[7m24 \x1b[0m"))
		Expect(lines[3]).To(ContainSubstring("\x1b[7m 1 \x1b[0m"))
		Expect(lines[2]).NotTo(ContainSubstring("\x1b["))
	})

	It("should return write errors", func() {
		src.wbits = 1

		printed, err := report.NewReporter(failingWriter{}).Report(src)

		Expect(err).To(MatchError("disk full"))
		Expect(printed).To(BeFalse())
	})
})
