package daemon

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
	"github.com/eliteGoblin/focusd/ficha/internal/infra"
)

// mockProcessManager is a test double for domain.ProcessManager
type mockProcessManager struct {
	mu      sync.Mutex
	procs   []domain.ProcessSnapshot
	killed  []int
	selfPID int

	startTimes map[int]time.Time
}

func (m *mockProcessManager) Snapshot() ([]domain.ProcessSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ProcessSnapshot(nil), m.procs...), nil
}

func (m *mockProcessManager) Kill(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killed = append(m.killed, pid)
	for i, p := range m.procs {
		if p.PID == pid {
			m.procs = append(m.procs[:i], m.procs[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pid == m.selfPID {
		return true
	}
	for _, p := range m.procs {
		if p.PID == pid {
			return true
		}
	}
	return false
}

func (m *mockProcessManager) GetCurrentPID() int { return m.selfPID }

// StartTime reports startTimes[pid], or the zero time.
func (m *mockProcessManager) StartTime(pid int) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startTimes[pid], nil
}

func (m *mockProcessManager) killedPIDs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.killed...)
}

// fakeStealth records Enable/Disable calls
type fakeStealth struct {
	mu       sync.Mutex
	name     string
	enables  int
	disables int
	err      error
}

func (f *fakeStealth) Enable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.enables++
	f.name = domain.DefaultDecoyName
	return nil
}

func (f *fakeStealth) Disable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.disables++
	f.name = domain.DefaultOriginalName
	return nil
}

func (f *fakeStealth) Name() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name, nil
}

func (f *fakeStealth) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enables, f.disables
}

// recordingSink is a test double for domain.EventSink
type recordingSink struct {
	mu       sync.Mutex
	kills    []int
	statuses []domain.ShieldStatus
	autoLock []bool
}

func (s *recordingSink) ProcessKilled(pid int, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kills = append(s.kills, pid)
}

func (s *recordingSink) ShieldChanged(status domain.ShieldStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *recordingSink) AutoLocked(locked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoLock = append(s.autoLock, locked)
}

func (s *recordingSink) snapshot() ([]int, []domain.ShieldStatus, []bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.kills...),
		append([]domain.ShieldStatus(nil), s.statuses...),
		append([]bool(nil), s.autoLock...)
}

// failingVault makes selected vault calls fail.
type failingVault struct {
	domain.Vault
	failNames bool
	failKill  bool
}

var errVault = errors.New("vault unavailable")

func (f *failingVault) GetProtectedNames() ([]string, error) {
	if f.failNames {
		return nil, errVault
	}
	return f.Vault.GetProtectedNames()
}

func (f *failingVault) RecordKill(ev domain.KillEvent) error {
	if f.failKill {
		return errVault
	}
	return f.Vault.RecordKill(ev)
}

type agentFixture struct {
	agent   *Agent
	vault   *infra.VaultImpl
	pm      *mockProcessManager
	stealth *fakeStealth
	sink    *recordingSink
	clock   *clockwork.FakeClock
}

func newTestVault(t *testing.T, clock clockwork.Clock) *infra.VaultImpl {
	t.Helper()
	key, err := infra.GenerateKey()
	require.NoError(t, err)
	v, err := infra.NewVault(t.TempDir(), key, clock)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func newAgentFixture(t *testing.T, wrap func(domain.Vault) domain.Vault) *agentFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	f := &agentFixture{
		vault:   newTestVault(t, clock),
		pm:      &mockProcessManager{selfPID: 4000},
		stealth: &fakeStealth{name: domain.DefaultOriginalName},
		sink:    &recordingSink{},
		clock:   clock,
	}

	var vault domain.Vault = f.vault
	if wrap != nil {
		vault = wrap(vault)
	}

	config := DefaultAgentConfig()
	config.Clock = clock
	config.AppVersion = "test"
	f.agent = NewAgent(config, f.pm, vault, f.stealth, f.sink, nil, zap.NewNop())
	return f
}

func (f *agentFixture) lastLog(t *testing.T) domain.SecurityLog {
	t.Helper()
	logs, err := f.vault.Logs(1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	return logs[0]
}
