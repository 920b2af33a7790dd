package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the agent.
type ExecMode string

const (
	// ExecModeUser runs as the logged-in user; only that user's processes can be killed.
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root and can kill any user's processes.
	ExecModeSystem ExecMode = "system"
)

const (
	systemDataDir = "/var/lib/ficha"
	userDataDir   = ".ficha"
	logFileName   = "ficha.log"
)

// ExecModeConfig holds paths that depend on the execution mode.
type ExecModeConfig struct {
	Mode    ExecMode
	DataDir string // Vault, key and log live here
	LogFile string
	IsRoot  bool
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return newExecModeConfig(ExecModeSystem, systemDataDir, true)
	}
	return GetUserModeConfig()
}

// GetUserModeConfig returns user mode paths regardless of current euid.
// Under sudo the invoking user's home is used.
func GetUserModeConfig() *ExecModeConfig {
	dataDir := filepath.Join(GetRealUserHome(), userDataDir)
	return newExecModeConfig(ExecModeUser, dataDir, os.Geteuid() == 0)
}

func newExecModeConfig(mode ExecMode, dataDir string, isRoot bool) *ExecModeConfig {
	return &ExecModeConfig{
		Mode:    mode,
		DataDir: dataDir,
		LogFile: filepath.Join(dataDir, logFileName),
		IsRoot:  isRoot,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root, all users)"
	case ExecModeUser:
		return "user (current user only)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
