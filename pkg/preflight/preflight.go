// Package preflight provides checks that run before a backup begins. The checks
// are stateless and never change the file system.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckBackupTargetAccessible reports whether targetPath can hold a backup.
// An existing target must be a directory. A missing target is acceptable when
// its deepest existing ancestor is a directory, since it will be created.
func CheckBackupTargetAccessible(targetPath string) error {
	info, err := os.Stat(targetPath)
	if os.IsNotExist(err) {
		ancestor, err := deepestExistingAncestor(targetPath)
		if err != nil {
			return err
		}
		ancestorInfo, err := os.Stat(ancestor)
		if err != nil {
			return fmt.Errorf("cannot access ancestor directory %s: %w", ancestor, err)
		}
		if !ancestorInfo.IsDir() {
			return fmt.Errorf("ancestor of target path is not a directory: %s", ancestor)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("cannot access target path: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("target path exists but is not a directory: %s", targetPath)
	}
	return nil
}

// CheckBackupSourceAccessible validates that the source path exists and is a directory.
func CheckBackupSourceAccessible(srcPath string) error {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}

	if !srcInfo.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}
	return nil
}

// FreeSpace returns the number of bytes available to the current user on the
// volume that holds path, or would hold it once created.
func FreeSpace(path string) (uint64, error) {
	ancestor, err := deepestExistingAncestor(path)
	if err != nil {
		return 0, err
	}
	free, err := platformFreeSpace(ancestor)
	if err != nil {
		return 0, fmt.Errorf("cannot determine free space for %s: %w", ancestor, err)
	}
	return free, nil
}

// deepestExistingAncestor walks up from path and returns the first entry that exists.
func deepestExistingAncestor(path string) (string, error) {
	current := filepath.Clean(path)
	for {
		_, err := os.Stat(current)
		if err == nil {
			return current, nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("cannot access ancestor directory %s: %w", current, err)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		current = parent
	}
}
