package usecase

import (
	"errors"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
)

// mockProcessManager implements domain.ProcessManager for testing
type mockProcessManager struct {
	mu          sync.Mutex
	procs       []domain.ProcessSnapshot
	snapshotErr error
	killErr     map[int]error
	killedPIDs  []int
	selfPID     int
}

func (m *mockProcessManager) Snapshot() ([]domain.ProcessSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	out := make([]domain.ProcessSnapshot, len(m.procs))
	copy(out, m.procs)
	return out, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.killErr[pid]; err != nil {
		return err
	}
	m.killedPIDs = append(m.killedPIDs, pid)
	// Killed processes disappear from the table
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
	for _, p := range m.procs {
		if p.PID == pid {
			return true
		}
	}
	return false
}

func (m *mockProcessManager) StartTime(int) (time.Time, error) {
	return time.Time{}, nil
}

func (m *mockProcessManager) GetCurrentPID() int {
	return m.selfPID
}

func (m *mockProcessManager) killed() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.killedPIDs))
	copy(out, m.killedPIDs)
	return out
}

// mockSink implements domain.EventSink for testing
type mockSink struct {
	mu       sync.Mutex
	statuses []domain.ShieldStatus
	kills    []domain.KillEvent
	autoLock int
}

func (s *mockSink) ProcessKilled(pid int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kills = append(s.kills, domain.KillEvent{PID: pid, ProcessName: name})
}

func (s *mockSink) ShieldChanged(status domain.ShieldStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *mockSink) AutoLocked(bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoLock++
}

func (s *mockSink) seen() []domain.ShieldStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ShieldStatus, len(s.statuses))
	copy(out, s.statuses)
	return out
}

// mockNameSource implements domain.NameSource for testing
type mockNameSource struct {
	names []string
	err   error
	calls int
}

func (m *mockNameSource) GetProtectedNames() ([]string, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.names, nil
}

var errStore = errors.New("vault unavailable")
