package genstore

import (
	"context"
	"os"
	"path/filepath"
	"syscall"

	"github.com/uplo-tech/errors"

	"github.com/obnam-mirror/obnam2/client/chunker"
	"github.com/obnam-mirror/obnam2/client/walker"
	"github.com/obnam-mirror/obnam2/persist"
)

// FileUploader is the subset of *uploader.Uploader the builder needs, kept
// as an interface so tests can substitute an in-memory fake.
type FileUploader interface {
	UploadFile(ctx context.Context, kind string, chunks []chunker.Chunk) ([]string, error)
}

// Builder walks a root, compares each entry against the previous
// generation's index, and populates a new index with either a verbatim
// copy of the previous chunk-id list or a freshly chunked-and-uploaded one.
type Builder struct {
	Store    *Store
	Previous *Store // nil for the first generation
	Chunker  chunker.Chunker
	Uploader FileUploader
	Log      *persist.Logger
}

// Stats counts how many files were reused verbatim versus re-chunked, and
// collects per-file failures that were skipped rather than aborting the
// whole backup.
type Stats struct {
	FilesReused    int
	FilesRechunked int
	Warnings       []walker.Warning
}

// BuildRoot walks root and writes every entry under relPrefix into Store.
// rootDir is the real filesystem root the entries' Path fields are
// relative to. relPrefix lets several configured roots share one index
// without colliding; since the walker never emits an entry for a root
// directory itself, BuildRoot synthesizes one so relPrefix reappears as a
// real directory at restore time.
func (b *Builder) BuildRoot(ctx context.Context, rootDir, relPrefix string, entries []walker.Entry) (Stats, error) {
	var stats Stats
	if relPrefix != "" {
		record, err := rootDirRecord(rootDir, relPrefix)
		if err != nil {
			return stats, errors.AddContext(err, "could not stat backup root "+rootDir)
		}
		if err := b.Store.Put(record); err != nil {
			return stats, err
		}
	}
	for _, e := range entries {
		indexPath := filepath.Join(relPrefix, e.Path)
		record, reused, warnErr, err := b.buildOne(ctx, rootDir, indexPath, e)
		if err != nil {
			return stats, errors.AddContext(err, "could not process "+indexPath)
		}
		if warnErr != nil {
			stats.Warnings = append(stats.Warnings, walker.Warning{Path: indexPath, Err: warnErr})
			if b.Log != nil {
				b.Log.Warn("skipping file after per-file failure:", indexPath, warnErr)
			}
			continue
		}
		if reused {
			stats.FilesReused++
		} else if e.Kind == walker.KindRegular {
			stats.FilesRechunked++
		}
		if err := b.Store.Put(record); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// buildOne builds the index record for one entry. A non-nil warnErr marks a
// per-file failure (the file could not be opened, chunked, or uploaded)
// that the caller should record and skip rather than treat as fatal; a
// non-nil err is a local or database failure that aborts the whole backup.
func (b *Builder) buildOne(ctx context.Context, rootDir, indexPath string, e walker.Entry) (record FileRecord, reused bool, warnErr, err error) {
	record = FileRecord{
		Path:          indexPath,
		Kind:          string(e.Kind),
		Mode:          e.Mode,
		UID:           e.UID,
		GID:           e.GID,
		Dev:           e.Dev,
		Ino:           e.Ino,
		Nlink:         e.Nlink,
		Size:          e.Size,
		MtimeNs:       e.MtimeNs,
		SymlinkTarget: e.SymlinkTarget,
	}

	if e.Kind != walker.KindRegular {
		return record, false, nil, nil
	}

	prev, ok, err := b.previousMatch(indexPath, record)
	if err != nil {
		return FileRecord{}, false, nil, err
	}
	if ok {
		record.ChunkIDs = prev.ChunkIDs
		return record, true, nil, nil
	}

	chunkIDs, err := b.chunkAndUpload(ctx, rootDir, e)
	if err != nil {
		return FileRecord{}, false, err, nil
	}
	record.ChunkIDs = chunkIDs
	return record, false, nil, nil
}

// previousMatch reports whether the previous generation has an identical
// row at the same path, identity meaning byte-identical path, st_dev+
// st_ino, st_mtime in nanoseconds, st_size, and st_mode.
func (b *Builder) previousMatch(path string, current FileRecord) (FileRecord, bool, error) {
	if b.Previous == nil {
		return FileRecord{}, false, nil
	}
	prev, ok, err := b.Previous.Get(path)
	if err != nil {
		return FileRecord{}, false, err
	}
	if !ok {
		return FileRecord{}, false, nil
	}
	if prev.identity() != current.identity() {
		return FileRecord{}, false, nil
	}
	return prev, true, nil
}

// rootDirRecord captures rootDir's own inode metadata under path, the way
// walker.entryFromLstat does for ordinary entries.
func rootDirRecord(rootDir, path string) (FileRecord, error) {
	info, err := os.Lstat(rootDir)
	if err != nil {
		return FileRecord{}, err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return FileRecord{}, errors.New("stat_t unavailable on this platform")
	}
	return FileRecord{
		Path:    path,
		Kind:    string(walker.KindDirectory),
		Mode:    uint32(stat.Mode),
		UID:     stat.Uid,
		GID:     stat.Gid,
		Dev:     uint64(stat.Dev),
		Ino:     stat.Ino,
		Nlink:   uint64(stat.Nlink),
		MtimeNs: stat.Mtim.Sec*1e9 + stat.Mtim.Nsec,
	}, nil
}

func (b *Builder) chunkAndUpload(ctx context.Context, rootDir string, e walker.Entry) ([]string, error) {
	f, err := os.Open(filepath.Join(rootDir, e.Path))
	if err != nil {
		return nil, errors.AddContext(err, "could not open file for chunking")
	}
	defer f.Close()

	chunks, err := b.Chunker.Split(f)
	if err != nil {
		return nil, errors.AddContext(err, "could not chunk file")
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	ids, err := b.Uploader.UploadFile(ctx, "Data", chunks)
	if err != nil {
		return nil, errors.AddContext(err, "could not upload file chunks")
	}
	return ids, nil
}
