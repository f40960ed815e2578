// Package walker traverses backup roots and captures the inode metadata the
// generation builder needs. It isolates per-file errors so that one
// unreadable file or subdirectory does not abort a backup.
package walker

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/uplo-tech/errors"

	"github.com/obnam-mirror/obnam2/persist"
)

// Kind classifies a directory entry the way the index schema does.
type Kind string

const (
	KindRegular   Kind = "regular"
	KindDirectory Kind = "directory"
	KindSymlink   Kind = "symlink"
	KindFIFO      Kind = "fifo"
	KindSocket    Kind = "socket"
)

// cacheDirTagSignature is the canonical 43-byte Cache Directory Tagging
// signature.
const cacheDirTagSignature = "Signature: 8a477f597d28d172789f06886806bc55"

const cacheDirTagName = "CACHEDIR.TAG"

// Entry is one walked path with the raw stat fields the index schema stores.
type Entry struct {
	Path          string // root-relative, raw bytes preserved
	Kind          Kind
	Mode          uint32
	UID, GID      uint32
	Dev, Ino      uint64
	Nlink         uint64
	Size          int64
	MtimeNs       int64
	SymlinkTarget string

	// IsCacheTagFile marks the CACHEDIR.TAG file itself, which is always
	// backed up even when the directory it lives in is excluded.
	IsCacheTagFile bool
}

// Warning records a per-path failure that did not abort the walk.
type Warning struct {
	Path string
	Err  error
}

// CacheTagDir records a directory where a cache tag was honoured, for the
// caller (the backup command) to compare against the previous
// generation and decide whether it is newly discovered.
type CacheTagDir struct {
	Path string
}

// ErrRootUnreadable is wrapped into the error returned by Walk when a root
// does not exist or cannot be read; this must fail the backup before any
// upload happens.
var ErrRootUnreadable = errors.New("backup root does not exist or is not readable")

// Walker traverses a configured list of roots.
type Walker struct {
	Roots              []string
	ExcludeCacheTagDirs bool
	Log                *persist.Logger
}

// New builds a Walker over roots.
func New(roots []string, excludeCacheTagDirs bool, log *persist.Logger) *Walker {
	return &Walker{Roots: roots, ExcludeCacheTagDirs: excludeCacheTagDirs, Log: log}
}

// Result is everything one call to Walk produced.
type Result struct {
	Entries    []Entry
	Warnings   []Warning
	CacheTags  []CacheTagDir
}

// Walk traverses every root in order, each subtree in sorted-name order, and
// returns every entry found. Roots must exist and be readable; individual
// files or subdirectories encountered afterwards are best-effort, their
// failures recorded as Warnings rather than aborting the walk.
func (w *Walker) Walk(ctx context.Context) (Result, error) {
	var result Result

	for _, root := range w.Roots {
		info, err := os.Lstat(root)
		if err != nil {
			return Result{}, errors.AddContext(ErrRootUnreadable, root)
		}
		if !info.IsDir() {
			return Result{}, errors.AddContext(ErrRootUnreadable, root+" is not a directory")
		}
		if err := w.walkDir(ctx, root, "", &result); err != nil {
			return Result{}, err
		}
	}
	return result, nil
}

// walkDir walks one directory. relPath is the path relative to root, ""
// at the root itself.
func (w *Walker) walkDir(ctx context.Context, root, relPath string, result *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	absDir := filepath.Join(root, relPath)
	names, err := readSortedNames(absDir)
	if err != nil {
		if relPath == "" {
			return errors.AddContext(ErrRootUnreadable, root)
		}
		w.warn(result, relPath, err)
		return nil
	}

	excludeRest := false
	if w.ExcludeCacheTagDirs && relPath != "" {
		tagged, tagErr := isCacheTagDir(absDir, names)
		if tagErr == nil && tagged {
			excludeRest = true
			result.CacheTags = append(result.CacheTags, CacheTagDir{Path: relPath})
		}
	}

	for _, name := range names {
		childRel := filepath.Join(relPath, name)
		childAbs := filepath.Join(root, childRel)

		isTagFile := excludeRest && name == cacheDirTagName
		if excludeRest && !isTagFile {
			continue
		}

		lst, err := os.Lstat(childAbs)
		if err != nil {
			w.warn(result, childRel, err)
			continue
		}

		entry, err := entryFromLstat(childRel, childAbs, lst)
		if err != nil {
			w.warn(result, childRel, err)
			continue
		}
		entry.IsCacheTagFile = isTagFile
		result.Entries = append(result.Entries, entry)

		if lst.IsDir() {
			if err := w.walkDir(ctx, root, childRel, result); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Walker) warn(result *Result, path string, err error) {
	result.Warnings = append(result.Warnings, Warning{Path: path, Err: err})
	if w.Log != nil {
		w.Log.Warn("skipping unreadable path:", path, err)
	}
}

func readSortedNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	return names, nil
}

// isCacheTagDir reports whether dir contains a CACHEDIR.TAG file carrying
// the canonical signature in its first 43 bytes.
func isCacheTagDir(dir string, names []string) (bool, error) {
	found := false
	for _, n := range names {
		if n == cacheDirTagName {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	f, err := os.Open(filepath.Join(dir, cacheDirTagName))
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, len(cacheDirTagSignature))
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return false, nil
	}
	return bytes.Equal(buf[:n], []byte(cacheDirTagSignature)), nil
}

func entryFromLstat(relPath, absPath string, info os.FileInfo) (Entry, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return Entry{}, errors.New("stat_t unavailable on this platform")
	}

	entry := Entry{
		Path:    relPath,
		Mode:    uint32(stat.Mode),
		UID:     stat.Uid,
		GID:     stat.Gid,
		Dev:     uint64(stat.Dev),
		Ino:     stat.Ino,
		Nlink:   uint64(stat.Nlink),
		Size:    stat.Size,
		MtimeNs: stat.Mtim.Sec*1e9 + stat.Mtim.Nsec,
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		entry.Kind = KindSymlink
		target, err := os.Readlink(absPath)
		if err != nil {
			return Entry{}, err
		}
		entry.SymlinkTarget = target
	case info.Mode()&os.ModeNamedPipe != 0:
		entry.Kind = KindFIFO
	case info.Mode()&os.ModeSocket != 0:
		entry.Kind = KindSocket
	case info.IsDir():
		entry.Kind = KindDirectory
	default:
		entry.Kind = KindRegular
	}

	return entry, nil
}
