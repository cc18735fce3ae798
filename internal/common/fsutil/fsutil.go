package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IncompleteSuffix marks a file that is still being written.
const IncompleteSuffix = ".incomplete"

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	// handle cases like ~/models/squeezenet
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// PathExists checks if the given path exists.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// IncompletePath returns the staging path used while path is being produced.
func IncompletePath(path string) string {
	return path + IncompleteSuffix
}

// Promote renames a finished staging file onto its final path. The staging
// file is removed if the rename fails so no partial output is left behind.
func Promote(staging, final string) error {
	fi, err := os.Stat(staging)
	if err != nil {
		return fmt.Errorf("stat staged output: %w", err)
	}
	if fi.IsDir() {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("staged output %s is a directory", staging)
	}
	if err := os.Rename(staging, final); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("rename staged output: %w", err)
	}
	return nil
}
