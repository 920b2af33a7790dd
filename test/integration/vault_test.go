//go:build integration

package integration

import (
	"bytes"
	"context"
	"os"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
	"github.com/eliteGoblin/focusd/ficha/internal/infra"
)

var _ = Describe("Vault", func() {
	var dataDir string

	BeforeEach(func() {
		dataDir = GinkgoT().TempDir()
	})

	openWithStoredKey := func() *infra.VaultImpl {
		key, err := infra.EnsureKey(infra.NewFileKeyProvider(dataDir))
		Expect(err).NotTo(HaveOccurred())
		vault, err := infra.NewVault(dataDir, key, nil)
		Expect(err).NotTo(HaveOccurred())
		return vault
	}

	It("persists state across restarts with the stored key", func() {
		vault := openWithStoredKey()
		_, err := vault.AddProtectedApp("Telegram", "telegram-desktop", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(vault.SetShieldStatus(domain.ShieldActive)).To(Succeed())
		Expect(vault.Close()).To(Succeed())

		vault = openWithStoredKey()
		defer vault.Close()

		names, err := vault.GetProtectedNames()
		Expect(err).NotTo(HaveOccurred())
		Expect(names).To(ContainElement("telegram-desktop"))
		Expect(names).To(HaveLen(7), "seeded apps are not duplicated")
		Expect(vault.GetShieldStatus()).To(Equal(domain.ShieldActive))
	})

	It("keeps the database unreadable as plain SQLite", func() {
		vault := openWithStoredKey()
		path := vault.Path()
		Expect(vault.Close()).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(bytes.HasPrefix(data, []byte("SQLite format 3"))).To(BeFalse())
		Expect(bytes.Contains(data, []byte("Brave Browser"))).To(BeFalse())
	})

	It("notifies the watcher when another connection writes", func() {
		vault := openWithStoredKey()
		defer vault.Close()

		var calls atomic.Int32
		watcher := infra.NewVaultWatcher(vault.Path(), 50*time.Millisecond, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = watcher.Run(ctx, func() { calls.Add(1) }) }()

		// Give the watcher time to register the directory.
		time.Sleep(100 * time.Millisecond)

		other := openWithStoredKey()
		_, err := other.TogglePolicy(domain.PolicyStealth)
		Expect(err).NotTo(HaveOccurred())
		Expect(other.Close()).To(Succeed())

		Eventually(calls.Load, 2*time.Second, 20*time.Millisecond).Should(BeNumerically(">=", 1))
		Expect(vault.IsPolicyEnabled(domain.PolicyStealth)).To(BeTrue())
	})
})
