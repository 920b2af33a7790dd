//go:build integration && linux

package integration

import (
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/ficha/internal/infra"
)

// Shorter than the 15-byte comm limit, so gopsutil reports it unexpanded.
const itestOriginalName = "ficha-itest"

var _ = Describe("Stealth", func() {
	readComm := func() string {
		data, err := os.ReadFile("/proc/self/comm")
		Expect(err).NotTo(HaveOccurred())
		return strings.TrimSpace(string(data))
	}

	BeforeEach(func() {
		before := readComm()
		DeferCleanup(func() {
			Expect(os.WriteFile("/proc/self/comm", []byte(before), 0)).To(Succeed())
		})
	})

	ownName := func() string {
		pm := infra.NewProcessManager()
		procs, err := pm.Snapshot()
		Expect(err).NotTo(HaveOccurred())
		for _, p := range procs {
			if p.PID == pm.GetCurrentPID() {
				return p.Name
			}
		}
		return ""
	}

	It("shows the decoy name in the process table and restores the original", func() {
		stealth := infra.NewStealthController("kworker-itest", itestOriginalName, zap.NewNop())

		Expect(stealth.Enable()).To(Succeed())
		Expect(stealth.Name()).To(Equal("kworker-itest"))
		Expect(ownName()).To(Equal("kworker-itest"))

		Expect(stealth.Disable()).To(Succeed())
		Expect(stealth.Name()).To(Equal(itestOriginalName))
		Expect(ownName()).To(Equal(itestOriginalName))
	})

	It("truncates long decoy names to the kernel limit", func() {
		stealth := infra.NewStealthController("a-very-long-decoy-name", itestOriginalName, zap.NewNop())

		Expect(stealth.Enable()).To(Succeed())
		Expect(stealth.Name()).To(Equal("a-very-long-dec"))
		Expect(readComm()).To(Equal("a-very-long-dec"))
	})
})
