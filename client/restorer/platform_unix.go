//go:build !windows

package restorer

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/obnam-mirror/obnam2/client/genstore"
)

// applyOwnership restores uid/gid only when running with sufficient
// privilege. Unprivileged chown attempts are ignored rather than
// treated as fatal, since restoring as a non-root user is a normal,
// supported mode.
func applyOwnership(path string, rec genstore.FileRecord) {
	if os.Geteuid() != 0 {
		return
	}
	_ = unix.Chown(path, int(rec.UID), int(rec.GID))
}

// applyLchmod sets a symlink's own mode when the platform supports it;
// Linux does not expose lchmod, so symlink permissions are left at their
// creation-time default.
func applyLchmod(path string, mode os.FileMode) {
	_ = path
	_ = mode
}

// mkspecial creates a FIFO or Unix domain socket node with the given mode.
func mkspecial(path, kind string, mode os.FileMode) error {
	var fileType uint32
	switch kind {
	case "fifo":
		fileType = unix.S_IFIFO
	case "socket":
		fileType = unix.S_IFSOCK
	default:
		fileType = unix.S_IFIFO
	}
	return unix.Mknod(path, fileType|uint32(mode.Perm()), 0)
}
