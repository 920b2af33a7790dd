// Package infra implements infrastructure concerns (process table, stealth, vault).
package infra

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// Snapshot lists live processes with their short name and executable path.
// Only a failure to read the process table is an error.
func (pm *ProcessManagerImpl) Snapshot() ([]domain.ProcessSnapshot, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	snaps := make([]domain.ProcessSnapshot, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name == "" {
			continue // exited between listing and reading
		}

		// Exe fails for kernel threads and other users' processes; matching
		// then relies on the name.
		exe, _ := p.Exe()

		snaps = append(snaps, domain.ProcessSnapshot{
			PID:     int(p.Pid),
			Name:    name,
			ExePath: exe,
		})
	}
	return snaps, nil
}

// Kill sends SIGKILL to pid.
func (pm *ProcessManagerImpl) Kill(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("process %d: %w", pid, err)
	}
	if err := p.Kill(); err != nil {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	return nil
}

// IsRunning reports whether pid is present in the process table.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}

// StartTime returns the process creation time. gopsutil derives it from
// boot time in whole seconds, so it can be off by up to a second.
func (pm *ProcessManagerImpl) StartTime(pid int) (time.Time, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return time.Time{}, fmt.Errorf("process %d: %w", pid, err)
	}
	ms, err := p.CreateTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("create time of %d: %w", pid, err)
	}
	return time.UnixMilli(ms), nil
}

// GetCurrentPID returns the agent's own PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
