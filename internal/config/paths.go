package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DataDir returns the path to the chatgate data directory.
// - Windows: %APPDATA%\chatgate
// - Other OS: ~/.chatgate
func DataDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "chatgate")
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatgate"
	}
	return filepath.Join(home, ".chatgate")
}

// DBPath returns the path to the SQLite database file.
func DBPath() string {
	return filepath.Join(DataDir(), "chatgate.db")
}

// BlobDir returns the default root for local attachment files.
func BlobDir() string {
	return filepath.Join(DataDir(), "blobs")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0700)
}
