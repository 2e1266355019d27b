// Package dotdir resolves the .chatwire/ directory that holds config.toml.
//
// A project-local ./.chatwire/ wins over the user's ~/.chatwire/, so a
// repository can pin its own upstream and family.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DirName is the name of the chatwire directory.
	DirName = ".chatwire"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path of the .chatwire/ directory to use.
// Order of precedence is as follows:
//  1. Provided override, created if missing
//  2. Local ./.chatwire/ dir
//  3. Home ~/.chatwire/ dir
//
// It returns "" when no override is given and neither directory exists.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating chatwire directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if local := filepath.Join(cwd, DirName); isDir(local) {
		return local, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	if dir := filepath.Join(home, DirName); isDir(dir) {
		return dir, nil
	}

	return "", nil
}

// Ensure is Target, but creates ~/.chatwire/ when nothing else resolves.
// Use it before writing.
func (m *Manager) Ensure(overrideDir string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil || target != "" {
		return target, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	dir := filepath.Join(home, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating chatwire directory %s: %w", dir, err)
	}
	return dir, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
