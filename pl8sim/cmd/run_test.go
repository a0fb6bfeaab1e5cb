package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pl8sim/bus"
	"github.com/sarchlab/pl8sim/config"
)

func writeFile(name, content string) string {
	path := filepath.Join(GinkgoT().TempDir(), name)
	Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())

	return path
}

var _ = Describe("run", func() {
	It("should run a script and report the access", func() {
		script := writeFile("demo.txt", "W 2 0x24\nR 2\n")

		var out bytes.Buffer
		c := newRunCmd()
		c.SetOut(&out)
		c.SetArgs([]string{"--script", script})

		Expect(c.Execute()).To(Succeed())

		Expect(out.String()).To(ContainSubstring("6502 clock = "))
		Expect(out.String()).To(ContainSubstring("PL8 Status\n"))
		Expect(out.String()).To(ContainSubstring(
			"Read: 1 Written: 1 Max queue: 1\n"))
		Expect(out.String()).To(ContainSubstring("Completed: 2 Overflows: 0"))
	})

	It("should run a random workload without read-back errors", func() {
		var out bytes.Buffer
		c := newRunCmd()
		c.SetOut(&out)
		c.SetArgs([]string{"--count", "200", "--seed", "3"})

		Expect(c.Execute()).To(Succeed())
		Expect(out.String()).NotTo(ContainSubstring("want 0x"))
	})

	It("should print event statistics when asked", func() {
		script := writeFile("demo.txt", "W 0 1\n")

		var out bytes.Buffer
		c := newRunCmd()
		c.SetOut(&out)
		c.SetArgs([]string{"--script", script, "--event-stats"})

		Expect(c.Execute()).To(Succeed())
		Expect(out.String()).To(MatchRegexp(`(?m)^Atom +\d+ events$`))
		Expect(out.String()).To(MatchRegexp(`(?m)^Pico\.IRQ +\d+ events$`))
	})

	It("should retire the workload progress bar when the workload is done",
		func() {
			s := &simulation{cfg: config.Default(), out: &bytes.Buffer{}}
			s.workload = []bus.Transaction{
				bus.WriteReg(1, 0x11), bus.Idle(3), bus.ReadReg(1),
			}
			Expect(s.build()).To(Succeed())
			Expect(s.serve(false)).To(Succeed())

			progress := func() []map[string]interface{} {
				rec := httptest.NewRecorder()
				s.monitor.Handler().ServeHTTP(rec,
					httptest.NewRequest(http.MethodGet, "/api/progress", nil))

				var bars []map[string]interface{}
				Expect(json.Unmarshal(rec.Body.Bytes(), &bars)).To(Succeed())

				return bars
			}

			Expect(progress()).To(HaveLen(1))
			Expect(progress()[0]["total"]).To(BeNumerically("==", 2))

			Expect(s.run()).To(Succeed())
			Expect(progress()).To(BeEmpty())
		})

	It("should fail on a broken script", func() {
		script := writeFile("bad.txt", "X 1\n")

		c := newRunCmd()
		c.SetOut(&bytes.Buffer{})
		c.SetErr(&bytes.Buffer{})
		c.SetArgs([]string{"--script", script})

		Expect(c.Execute()).To(MatchError(bus.ErrBadScript))
	})
})

var _ = Describe("loadConfig", func() {
	It("should let flags override the environment", func() {
		env := writeFile("test.env", "PL8_SEED=9\nPL8_RANDOM_COUNT=5\n")

		c := newRunCmd()
		Expect(c.ParseFlags([]string{
			"--env", env,
			"--count", "7",
			"--report-interval", "2ms",
			"--record-path", "run1",
		})).To(Succeed())

		cfg, err := loadConfig(c)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Seed).To(Equal(int64(9)))
		Expect(cfg.RandomCount).To(Equal(7))
		Expect(cfg.ReportInterval).To(Equal(2 * time.Millisecond))
		Expect(cfg.Record).To(BeTrue())
		Expect(cfg.RecordPath).To(Equal("run1"))
	})

	It("should turn the monitor on when asked to open it", func() {
		c := newRunCmd()
		Expect(c.ParseFlags([]string{"--open-monitor"})).To(Succeed())

		cfg, err := loadConfig(c)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Monitor).To(BeTrue())
	})

	It("should validate the result", func() {
		c := newRunCmd()
		Expect(c.ParseFlags([]string{"--bus-khz", "0"})).To(Succeed())

		_, err := loadConfig(c)

		Expect(err).To(MatchError(config.ErrBadValue))
	})
})

var _ = Describe("loadWorkload", func() {
	It("should run Lua scripts", func() {
		script := writeFile("demo.lua",
			"for i = 0, 3 do write(i, i * 2) end\nread(1)\n")

		cfg := config.Default()
		cfg.Script = script

		txns, err := loadWorkload(cfg)

		Expect(err).NotTo(HaveOccurred())
		Expect(txns).To(HaveLen(5))
		Expect(txns[4]).To(Equal(bus.ReadReg(1)))
		Expect(countBusCycles(txns)).To(Equal(uint64(5)))
	})

	It("should generate the same random workload for a seed", func() {
		cfg := config.Default()
		cfg.RandomCount = 50

		a, err := loadWorkload(cfg)
		Expect(err).NotTo(HaveOccurred())
		b, err := loadWorkload(cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(a).To(Equal(b))
		Expect(countBusCycles(a)).To(Equal(uint64(50)))
	})

	It("should report a missing file", func() {
		cfg := config.Default()
		cfg.Script = filepath.Join(GinkgoT().TempDir(), "nope.txt")

		_, err := loadWorkload(cfg)

		Expect(err).To(MatchError(os.ErrNotExist))
	})
})

var _ = Describe("version", func() {
	It("should print the version", func() {
		var out bytes.Buffer
		versionCmd.SetOut(&out)
		versionCmd.Run(versionCmd, nil)

		Expect(out.String()).To(Equal("pl8sim dev\n"))
	})
})
