package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// remoteFilesystems are mount types where SQLite file locking cannot be
// trusted. 9p covers WSL drvfs mounts of Windows drives.
var remoteFilesystems = []string{"9p", "afpfs", "cifs", "nfs", "smb2", "smbfs", "webdav"}

// fsDetector names the filesystem holding an existing path. An empty name
// means the platform cannot tell.
type fsDetector func(path string) (string, error)

// requireLocalDisk refuses database paths on network mounts.
func requireLocalDisk(dbPath string) error {
	return requireLocalDiskWith(dbPath, detectFilesystemType)
}

func requireLocalDiskWith(dbPath string, detect fsDetector) error {
	if dbPath == "" {
		return errors.New("sqlite path is empty")
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", dbPath, err)
	}
	// The database and its directory may not exist yet.
	probe, err := existingAncestor(abs)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", dbPath, err)
	}
	name, err := detect(probe)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", probe, err)
	}
	if remote(name) {
		return fmt.Errorf("history database %q is on network filesystem %q; SQLite requires a local filesystem. Set history.path to a local file or disable history", dbPath, name)
	}
	return nil
}

func existingAncestor(abs string) (string, error) {
	for p := abs; ; p = filepath.Dir(p) {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		case filepath.Dir(p) == p:
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
	}
}

func remote(fsName string) bool {
	return slices.Contains(remoteFilesystems, strings.ToLower(strings.TrimSpace(fsName)))
}
