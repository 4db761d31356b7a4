// Package blobstore owns the on-disk layout: application directories,
// backup archives, standalone files and the staging area used for atomic
// restores. All paths live under a single data root so renames stay on one
// filesystem.
package blobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	appsDir    = "apps"
	backupsDir = "backups"
	filesDir   = "files"
	stagingDir = "staging"
)

// Store resolves and manages paths under the data root.
type Store struct {
	root string
}

// New creates the data root layout and returns a Store.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve data root: %w", err)
	}
	for _, sub := range []string{appsDir, backupsDir, filesDir, stagingDir} {
		if err := os.MkdirAll(filepath.Join(abs, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", sub, err)
		}
	}
	return &Store{root: abs}, nil
}

// Root returns the data root path.
func (s *Store) Root() string {
	return s.root
}

// AppDir returns the directory for an application's extracted content.
func (s *Store) AppDir(id string) string {
	return filepath.Join(s.root, appsDir, id)
}

// CreateAppDir makes a fresh application directory and returns its path.
func (s *Store) CreateAppDir(id string) (string, error) {
	dir := s.AppDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create app directory: %w", err)
	}
	return dir, nil
}

// AppDirExists reports whether an application directory is present.
func (s *Store) AppDirExists(id string) (bool, error) {
	info, err := os.Stat(s.AppDir(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat app directory: %w", err)
	}
	return info.IsDir(), nil
}

// RemoveAppDir deletes an application directory and everything in it.
func (s *Store) RemoveAppDir(id string) error {
	if err := os.RemoveAll(s.AppDir(id)); err != nil {
		return fmt.Errorf("remove app directory: %w", err)
	}
	return nil
}

// BackupPath returns the archive path for a backup, creating the
// application's backup directory if needed.
func (s *Store) BackupPath(appID, backupID string) (string, error) {
	dir := filepath.Join(s.root, backupsDir, appID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	return filepath.Join(dir, backupID+".zip"), nil
}

// NewStagingDir creates a scratch directory for a staged restore. The caller
// removes it unless SwapAppDir consumes it.
func (s *Store) NewStagingDir() (string, error) {
	dir, err := os.MkdirTemp(filepath.Join(s.root, stagingDir), "restore-")
	if err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	return dir, nil
}

// SwapAppDir atomically replaces an application directory with stagedDir.
// The current directory is moved aside first and restored if the swap
// fails, so readers never observe a partially written tree.
func (s *Store) SwapAppDir(id, stagedDir string) error {
	target := s.AppDir(id)
	old := target + ".old"

	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("clear previous swap residue: %w", err)
	}

	moved := false
	if _, err := os.Stat(target); err == nil {
		if err := os.Rename(target, old); err != nil {
			return fmt.Errorf("move current directory aside: %w", err)
		}
		moved = true
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat app directory: %w", err)
	}

	if err := os.Rename(stagedDir, target); err != nil {
		if moved {
			if rollbackErr := os.Rename(old, target); rollbackErr != nil {
				return fmt.Errorf("swap failed (%v) and rollback failed: %w", err, rollbackErr)
			}
		}
		return fmt.Errorf("swap in staged directory: %w", err)
	}

	if moved {
		if err := os.RemoveAll(old); err != nil {
			return fmt.Errorf("remove replaced directory: %w", err)
		}
	}
	return nil
}

// FilePath returns the storage path for a standalone uploaded file.
func (s *Store) FilePath(fileID, name string) string {
	return filepath.Join(s.root, filesDir, fileID+"-"+SanitizeFilename(name))
}

// SaveFile writes a standalone file and returns its path.
func (s *Store) SaveFile(fileID, name string, content []byte) (string, error) {
	path := s.FilePath(fileID, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// RemoveFile deletes a standalone file. Paths outside the files area are
// refused.
func (s *Store) RemoveFile(path string) error {
	prefix := filepath.Join(s.root, filesDir) + string(os.PathSeparator)
	if !strings.HasPrefix(filepath.Clean(path), prefix) {
		return fmt.Errorf("path %s is outside the files area", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// DirSize walks a directory and sums regular file sizes.
func DirSize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measure %s: %w", path, err)
	}
	return total, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeFilename strips any path components and unsafe characters from an
// uploaded filename. Empty or fully-stripped names become "file".
func SanitizeFilename(name string) string {
	base := filepath.Base(filepath.FromSlash(strings.ReplaceAll(name, "\\", "/")))
	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "file"
	}
	return base
}
