//go:build !darwin && !linux

package storage

// detectFilesystemType reports an unknown type; the check is skipped on
// platforms without statfs (notably Windows, where Studio runs).
func detectFilesystemType(path string) (string, error) {
	return "", nil
}
