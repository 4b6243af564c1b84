// Package infra implements infrastructure concerns.
package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents where the application keeps its data.
type ExecMode string

const (
	// ExecModeUser keeps data under the invoking user's home directory
	ExecModeUser ExecMode = "user"
	// ExecModeSystem keeps data under /var/lib (running as root)
	ExecModeSystem ExecMode = "system"
)

// DataDirEnvVar overrides the data directory in either mode.
const DataDirEnvVar = "DABES_HOME"

// ExecModeConfig holds paths based on execution mode.
type ExecModeConfig struct {
	Mode        ExecMode
	DataDir     string // Where the journal, its key and the logs live
	LevelDir    string // Default directory searched by `levels`
	ConfigPath  string // Engine config overrides
	JournalPath string
	LogPath     string
	IsRoot      bool
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return modeConfig(ExecModeSystem, "/var/lib/dabes", true)
	}
	return GetUserModeConfig()
}

// GetUserModeConfig returns user mode config regardless of current euid.
// When running under sudo, uses SUDO_USER to get the invoking user's home directory.
func GetUserModeConfig() *ExecModeConfig {
	return modeConfig(ExecModeUser, filepath.Join(GetRealUserHome(), ".dabes"), os.Geteuid() == 0)
}

func modeConfig(mode ExecMode, dataDir string, root bool) *ExecModeConfig {
	if dir := os.Getenv(DataDirEnvVar); dir != "" {
		dataDir = dir
	}
	return &ExecModeConfig{
		Mode:        mode,
		DataDir:     dataDir,
		LevelDir:    filepath.Join(dataDir, "levels"),
		ConfigPath:  filepath.Join(dataDir, "engine.yaml"),
		JournalPath: filepath.Join(dataDir, journalDBName),
		LogPath:     filepath.Join(dataDir, "dabes.log"),
		IsRoot:      root,
	}
}

// EnsureDataDir creates the data directory with owner-only permissions.
func (c *ExecModeConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0700)
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root, /var/lib)"
	case ExecModeUser:
		return "user (home directory)"
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
