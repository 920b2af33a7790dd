//go:build integration

package integration

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/ficha/internal/daemon"
	"github.com/eliteGoblin/focusd/ficha/internal/domain"
	"github.com/eliteGoblin/focusd/ficha/internal/events"
	"github.com/eliteGoblin/focusd/ficha/internal/infra"
	"github.com/eliteGoblin/focusd/ficha/internal/usecase"
	"github.com/eliteGoblin/focusd/ficha/test/fixtures"
)

// Unlikely to collide with anything else running on the host.
const fakeAppName = "zz-ficha-itest"

// openIsolatedVault opens a fresh vault whose only protected app is fakeAppName.
func openIsolatedVault(dir string) *infra.VaultImpl {
	key, err := infra.GenerateKey()
	Expect(err).NotTo(HaveOccurred())
	vault, err := infra.NewVault(dir, key, nil)
	Expect(err).NotTo(HaveOccurred())

	apps, err := vault.ListProtectedApps()
	Expect(err).NotTo(HaveOccurred())
	for _, app := range apps {
		Expect(vault.RemoveProtectedApp(app.ID)).To(Succeed())
	}
	return vault
}

var _ = Describe("Enforcement", func() {
	var (
		tmpDir string
		app    *fixtures.FakeApp
		logger *zap.Logger
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		logger = zap.NewNop()

		var err error
		app, err = fixtures.NewFakeApp(tmpDir, fakeAppName)
		Expect(err).NotTo(HaveOccurred())
		Expect(app.Start(30 * time.Second)).To(Succeed())
	})

	AfterEach(func() {
		app.Stop()
	})

	Describe("ProcessManager", func() {
		It("sees the fake app by name and executable path", func() {
			pm := infra.NewProcessManager()

			Eventually(func() bool {
				procs, err := pm.Snapshot()
				if err != nil {
					return false
				}
				for _, p := range procs {
					if p.PID == app.PID() {
						_, ok := usecase.MatchAny([]string{fakeAppName}, p)
						return ok
					}
				}
				return false
			}, 2*time.Second, 20*time.Millisecond).Should(BeTrue())

			Expect(pm.IsRunning(app.PID())).To(BeTrue())
		})
	})

	Describe("Enforcer", func() {
		It("kills the protected process while the shield is locked", func() {
			pm := infra.NewProcessManager()
			shield := usecase.NewShield(logger)
			enforcer := usecase.NewEnforcer(pm, usecase.NewProtectedSet(fakeAppName), shield, usecase.EnforcerConfig{}, logger)

			result := enforcer.ScanOnce(context.Background())

			Expect(result.KilledPIDs).To(ContainElement(app.PID()))
			Expect(result.Events).NotTo(BeEmpty())
			Expect(result.Events[0].Protected).To(Equal(fakeAppName))
			Eventually(app.Exited, 2*time.Second, 20*time.Millisecond).Should(BeTrue())
			Expect(shield.Status()).To(Equal(domain.ShieldThreatDetected))
		})

		It("leaves the process alone while the shield is active", func() {
			pm := infra.NewProcessManager()
			shield := usecase.NewShield(logger)
			shield.Activate()
			enforcer := usecase.NewEnforcer(pm, usecase.NewProtectedSet(fakeAppName), shield, usecase.EnforcerConfig{}, logger)

			result := enforcer.ScanOnce(context.Background())

			Expect(result.KilledPIDs).To(BeEmpty())
			Consistently(app.Exited, 300*time.Millisecond, 50*time.Millisecond).Should(BeFalse())
		})
	})

	Describe("Agent", func() {
		var (
			vault  *infra.VaultImpl
			broker *events.Broker
			cancel context.CancelFunc
			done   chan error
		)

		startAgent := func() *daemon.Agent {
			config := daemon.DefaultAgentConfig()
			config.ScanInterval = 50 * time.Millisecond
			config.ThreatGrace = 200 * time.Millisecond
			config.AppVersion = "itest"

			watcher := infra.NewVaultWatcher(vault.Path(), 20*time.Millisecond, logger)
			agent := daemon.NewAgent(config, infra.NewProcessManager(), vault, nil, broker, watcher, logger)

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done = make(chan error, 1)
			go func() { done <- agent.Run(ctx) }()
			return agent
		}

		BeforeEach(func() {
			vault = openIsolatedVault(GinkgoT().TempDir())
			broker = events.NewBroker(nil, logger)
		})

		AfterEach(func() {
			if cancel != nil {
				cancel()
				var err error
				Eventually(done, 2*time.Second).Should(Receive(&err))
				Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			}
			Expect(vault.Close()).To(Succeed())
		})

		It("kills an app added to the vault while running and records it", func() {
			kills := broker.Subscribe(10)
			defer broker.Unsubscribe(kills)

			agent := startAgent()
			Eventually(func() (*domain.AgentInfo, error) {
				return vault.GetAgent()
			}, 2*time.Second, 20*time.Millisecond).ShouldNot(BeNil())
			Consistently(app.Exited, 200*time.Millisecond, 50*time.Millisecond).Should(BeFalse())

			_, err := vault.AddProtectedApp("Fake App", fakeAppName, "", "")
			Expect(err).NotTo(HaveOccurred())

			Eventually(app.Exited, 3*time.Second, 20*time.Millisecond).Should(BeTrue())
			Eventually(kills, 2*time.Second).Should(Receive(HaveField("Type", events.TypeProcessKilled)))

			Eventually(func() string {
				logs, err := vault.Logs(1)
				if err != nil || len(logs) == 0 {
					return ""
				}
				return logs[0].Event
			}, 2*time.Second, 20*time.Millisecond).Should(ContainSubstring("killed by Ficha Kernel"))

			apps, err := vault.ListProtectedApps()
			Expect(err).NotTo(HaveOccurred())
			Expect(apps).To(HaveLen(1))
			Expect(apps[0].LastAttempt).NotTo(BeEmpty())

			Eventually(agent.Shield().Status, 2*time.Second, 20*time.Millisecond).Should(Equal(domain.ShieldLocked))
		})

		It("spares the app while unlocked and kills it after lock", func() {
			_, err := vault.AddProtectedApp("Fake App", fakeAppName, "", "")
			Expect(err).NotTo(HaveOccurred())

			config := daemon.DefaultAgentConfig()
			config.ScanInterval = 50 * time.Millisecond
			agent := daemon.NewAgent(config, infra.NewProcessManager(), vault, nil, nil, nil, logger)
			agent.Activate()

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done = make(chan error, 1)
			go func() { done <- agent.Run(ctx) }()

			Consistently(app.Exited, 300*time.Millisecond, 50*time.Millisecond).Should(BeFalse())

			agent.Lock()
			Eventually(app.Exited, 2*time.Second, 20*time.Millisecond).Should(BeTrue())
		})
	})
})
