//go:build unix

package daemon

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
)

// Control signals understood by a running agent.
const (
	SignalActivate = syscall.SIGUSR1
	SignalLock     = syscall.SIGUSR2
	SignalActivity = syscall.SIGHUP
)

// ErrAgentNotRunning is returned when no live agent is registered.
var ErrAgentNotRunning = errors.New("agent is not running")

// ControlSignals lists the signals to pass to signal.Notify for HandleSignal.
func ControlSignals() []os.Signal {
	return []os.Signal{SignalActivate, SignalLock, SignalActivity}
}

// HandleSignal dispatches a control signal. Returns false for signals it
// does not own.
func (a *Agent) HandleSignal(sig os.Signal) bool {
	switch sig {
	case SignalActivate:
		a.Activate()
	case SignalLock:
		a.Lock()
	case SignalActivity:
		a.RecordActivity()
	default:
		return false
	}
	return true
}

// startTimeSlack absorbs the coarse creation time the process table reports.
const startTimeSlack = 2 * time.Second

// isRegisteredProcess reports whether the live process at agent.PID is the
// one that registered: the agent records StartedAt after it was created, so
// a process created later is a reused PID.
func isRegisteredProcess(pm domain.ProcessManager, agent *domain.AgentInfo) bool {
	started, err := pm.StartTime(agent.PID)
	if err != nil {
		return false
	}
	return !started.After(agent.StartedAt.Add(startTimeSlack))
}

// SignalAgent sends sig to the agent registered in the vault.
func SignalAgent(vault domain.Vault, pm domain.ProcessManager, sig syscall.Signal) (*domain.AgentInfo, error) {
	agent, err := vault.GetAgent()
	if err != nil {
		return nil, fmt.Errorf("failed to read agent registration: %w", err)
	}
	if agent == nil || agent.PID <= 0 || !pm.IsRunning(agent.PID) {
		return agent, ErrAgentNotRunning
	}
	if !isRegisteredProcess(pm, agent) {
		return agent, fmt.Errorf("%w: pid %d was reused by another process", ErrAgentNotRunning, agent.PID)
	}
	if agent.PID == pm.GetCurrentPID() {
		return agent, fmt.Errorf("refusing to signal self (pid %d)", agent.PID)
	}
	if err := syscall.Kill(agent.PID, sig); err != nil {
		return agent, fmt.Errorf("failed to signal agent (pid %d): %w", agent.PID, err)
	}
	return agent, nil
}
