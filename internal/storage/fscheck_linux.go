//go:build linux

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Magic numbers from statfs(2) for mounts SQLite cannot lock reliably. 9p
// is WSL's drvfs, where Windows drives appear under /mnt.
var remoteMagic = map[uint32]string{
	0x6969:     "nfs",
	0x517B:     "smbfs",
	0x01021997: "9p",
	0xFF534D42: "cifs",
	0xFE534D42: "smb2",
}

func detectFilesystemType(path string) (string, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return "", fmt.Errorf("statfs %q: %w", path, err)
	}
	magic := uint32(st.Type)
	if name, ok := remoteMagic[magic]; ok {
		return name, nil
	}
	return fmt.Sprintf("0x%x", magic), nil
}
