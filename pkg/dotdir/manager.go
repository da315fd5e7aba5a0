// Package dotdir manages the .chatstream/ and ~/.chatstream directories that
// hold config.toml, credentials.toml, and the chat session log.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the chatstream directory.
	dirName = ".chatstream"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .chatstream/ directory.
// Order of precedence is as follows:
//  1. Provided override (created if missing)
//  2. Local ./.chatstream/ dir
//  3. Home ~/.chatstream/ dir
//  4. If none found, returns an empty string
func (m *Manager) Target(overrideDir string) (string, error) {
	switch {
	case overrideDir != "":
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating chatstream directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		return filepath.Join(cwd, dirName), nil
	}

	home, err := m.homeDir()
	if err != nil {
		return "", err
	}

	info, err := os.Stat(home)
	if err != nil || !info.IsDir() {
		return "", nil
	}

	return home, nil
}

// EnsureTarget resolves the target like Target and, when nothing was found,
// creates ~/.chatstream/ and returns it.
func (m *Manager) EnsureTarget(overrideDir string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	if target != "" {
		return target, nil
	}

	home, err := m.homeDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(home, 0o755); err != nil {
		return "", fmt.Errorf("creating chatstream directory %s: %w", home, err)
	}

	return home, nil
}

func (m *Manager) homeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// localDirExists checks whether a .chatstream/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
