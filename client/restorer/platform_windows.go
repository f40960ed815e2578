//go:build windows

package restorer

import (
	"os"

	"github.com/obnam-mirror/obnam2/client/genstore"
)

// applyOwnership is a no-op on Windows, which has no uid/gid concept.
func applyOwnership(path string, rec genstore.FileRecord) {
	_ = path
	_ = rec
}

func applyLchmod(path string, mode os.FileMode) {
	_ = path
	_ = mode
}

// mkspecial is unsupported on Windows; FIFOs and sockets are not restored.
func mkspecial(path, kind string, mode os.FileMode) error {
	return errUnsupportedSpecialFile
}

var errUnsupportedSpecialFile = os.ErrInvalid
