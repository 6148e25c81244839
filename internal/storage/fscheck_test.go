package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestRequireLocalDisk(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		fs      string
		detErr  error
		wantErr string
	}{
		{name: "local apfs", fs: "apfs"},
		{name: "unknown platform", fs: ""},
		{name: "smb mount", fs: "smbfs", wantErr: "SQLite requires a local filesystem"},
		{name: "nfs uppercase", fs: "NFS", wantErr: "network filesystem"},
		{name: "detector failure", detErr: errors.New("statfs boom"), wantErr: "statfs boom"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dbPath := filepath.Join(t.TempDir(), "history.db")
			err := requireLocalDiskWith(dbPath, func(string) (string, error) {
				return tc.fs, tc.detErr
			})
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRequireLocalDiskProbesExistingAncestor(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "nested", "dir", "history.db")

	var inspectedPath string
	err := requireLocalDiskWith(dbPath, func(path string) (string, error) {
		inspectedPath = path
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
	if inspectedPath != root {
		t.Fatalf("expected detector to inspect %q, got %q", root, inspectedPath)
	}
}

func TestRemoteFilesystemNames(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"nfs", " CIFS ", "9p", "smb2"} {
		if !remote(name) {
			t.Errorf("remote(%q) = false", name)
		}
	}
	for _, name := range []string{"", "ext4", "apfs", "tmpfs", "overlay"} {
		if remote(name) {
			t.Errorf("remote(%q) = true", name)
		}
	}
}
