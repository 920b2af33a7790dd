// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// ShieldStatus is the enforcement mode of the shield.
type ShieldStatus string

const (
	// ShieldLocked means enforcement is on.
	ShieldLocked ShieldStatus = "LOCKED"
	// ShieldActive means the user unlocked the shield; enforcement is off.
	ShieldActive ShieldStatus = "ACTIVE"
	// ShieldThreatDetected is the transient state right after a kill.
	ShieldThreatDetected ShieldStatus = "THREAT_DETECTED"
)

// ProcessSnapshot is one live process as seen during a scan tick.
// Recreated every tick, never persisted.
type ProcessSnapshot struct {
	PID     int
	Name    string
	ExePath string // Empty when the executable could not be resolved
}

// KillEvent is produced once per terminated process.
type KillEvent struct {
	PID         int
	ProcessName string
	Protected   string // Protected name that matched
	Timestamp   time.Time
}

// ScanResult captures what happened during a single scan tick.
type ScanResult struct {
	KilledPIDs []int
	Events     []KillEvent
	Errors     []error
	Scanned    int  // Processes eligible for matching after filtering
	Skipped    bool // True when the shield was not enforcing
	ExecutedAt time.Time
	DurationMs int64
}

// ProtectedApp is an application the user has chosen to block.
type ProtectedApp struct {
	ID          string
	Name        string
	ProcessName string
	Icon        string
	Category    string
	LastAttempt string // HH:MM:SS of the last blocked launch, empty if never
	CreatedAt   time.Time
}

// LogType classifies a security log entry.
type LogType string

const (
	LogInfo    LogType = "info"
	LogWarning LogType = "warning"
	LogError   LogType = "error"
	LogSuccess LogType = "success"
)

// SecurityLog is one entry of the security audit trail.
type SecurityLog struct {
	ID        string
	Timestamp time.Time
	Event     string
	Type      LogType
	App       string
}

// Well-known policy IDs.
const (
	PolicyAutoKill     = "policy_1"
	PolicyStealth      = "policy_2"
	PolicyRootPrevent  = "policy_3"
	PolicyIdleAutoLock = "policy_4"
)

// Process names used by stealth mode.
const (
	DefaultDecoyName    = "systemd-resolve"
	DefaultOriginalName = "ficha-app"
)

// SecurityPolicy is a named, independently toggleable enforcement behavior.
type SecurityPolicy struct {
	ID          string
	Title       string
	Description string
	Enabled     bool
	Severity    string
}

// AgentInfo identifies the running enforcement agent.
// Persisted in the vault so CLI commands can signal it.
type AgentInfo struct {
	PID        int
	Name       string
	StartedAt  time.Time
	AppVersion string
}
