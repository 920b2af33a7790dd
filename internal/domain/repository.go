package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStealthUnsupported is returned when the platform cannot rename the process.
	ErrStealthUnsupported = errors.New("stealth mode is not supported on this platform")

	// ErrAppNotFound is returned when a protected app ID does not exist.
	ErrAppNotFound = errors.New("protected app not found")

	// ErrPolicyNotFound is returned when a policy ID does not exist.
	ErrPolicyNotFound = errors.New("policy not found")
)

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// Snapshot enumerates all live processes. Processes that cannot be
	// read (exited mid-scan, permission denied) are omitted.
	Snapshot() ([]ProcessSnapshot, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int

	// StartTime returns when a process was created.
	StartTime(pid int) (time.Time, error)
}

// NameSource supplies the authoritative protected-name set.
type NameSource interface {
	GetProtectedNames() ([]string, error)
}

// Vault is the persistence collaborator: protected apps, logs, policies, settings.
// Implementation: SQLCipher encrypted database.
type Vault interface {
	NameSource

	// ListProtectedApps returns all protected apps, newest first.
	ListProtectedApps() ([]ProtectedApp, error)

	// AddProtectedApp stores a new protected app.
	AddProtectedApp(name, processName, icon, category string) (*ProtectedApp, error)

	// RemoveProtectedApp deletes a protected app by ID.
	RemoveProtectedApp(id string) error

	// RecordKill stamps the app's last attempt and appends the kill logs.
	RecordKill(ev KillEvent) error

	// AddLog appends a security log entry.
	AddLog(event string, logType LogType, app string) (*SecurityLog, error)

	// Logs returns the most recent security log entries.
	Logs(limit int) ([]SecurityLog, error)

	// Policies returns all security policies.
	Policies() ([]SecurityPolicy, error)

	// TogglePolicy flips a policy and returns its new state.
	TogglePolicy(id string) (bool, error)

	// IsPolicyEnabled reports whether a policy is enabled.
	IsPolicyEnabled(id string) (bool, error)

	// GetIdleTimeout returns the stored idle timeout in minutes.
	GetIdleTimeout() (int, error)

	// SetIdleTimeout stores the idle timeout in minutes.
	SetIdleTimeout(minutes int) error

	// SetShieldStatus persists the last reported shield status.
	SetShieldStatus(status ShieldStatus) error

	// GetShieldStatus returns the last persisted shield status, or empty.
	GetShieldStatus() (ShieldStatus, error)

	// RegisterAgent records the running agent so CLI commands can find it.
	RegisterAgent(agent AgentInfo) error

	// GetAgent returns the registered agent, or nil if none.
	GetAgent() (*AgentInfo, error)

	// Path returns the database file path.
	Path() string

	// Close releases resources (e.g., database connection).
	Close() error
}

// EventSink receives core events for the front end. Delivery is
// fire-and-forget; implementations must not block.
type EventSink interface {
	ProcessKilled(pid int, processName string)
	ShieldChanged(status ShieldStatus)
	AutoLocked(locked bool)
}

// StealthController disguises the agent's own OS-visible process name.
type StealthController interface {
	// Enable switches to the decoy name. Idempotent.
	Enable() error

	// Disable restores the original name. Idempotent.
	Disable() error

	// Name returns the currently visible process name.
	Name() (string, error)
}

// ScanLoop is the recurring enforcement task.
type ScanLoop interface {
	// ScanOnce runs a single tick.
	ScanOnce(ctx context.Context) *ScanResult

	// Run ticks until ctx is canceled.
	Run(ctx context.Context, sink func(KillEvent)) error
}

// KeyProvider abstracts the source of encryption keys.
// The vault key lives outside the database it unlocks.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
