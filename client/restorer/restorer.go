// Package restorer recreates a backed-up file tree from a generation: it
// resolves a generation label, downloads and reassembles its index
// database, then recreates every entry in destination order (directories,
// then files, then symlinks and special files), applying metadata last so
// later creations can't disturb it.
package restorer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/obnam-mirror/obnam2/client/chunkcodec"
	"github.com/obnam-mirror/obnam2/client/genstore"
	"github.com/obnam-mirror/obnam2/client/trustroot"
	"github.com/obnam-mirror/obnam2/client/walker"
	"github.com/obnam-mirror/obnam2/persist"
)

// ChunkClient is the subset of the chunk server's HTTP API the restorer
// needs to download structural and Data chunks.
type ChunkClient interface {
	Get(ctx context.Context, id string) (body []byte, label string, err error)
}

// ErrSchemaUnsupported is returned when a Generation names a schema
// version this restorer does not understand.
var ErrSchemaUnsupported = errors.New("generation schema version is not supported")

// ErrIntegrityFailure is wrapped with the offending chunk id when a
// downloaded Data chunk's recomputed hash does not match its label.
var ErrIntegrityFailure = errors.New("chunk content does not match its label")

// SupportedSchemaMajor is the Generation schema major version this
// restorer understands; `obnam list-backup-versions` reports it.
const SupportedSchemaMajor = 1

const supportedSchemaMajor = SupportedSchemaMajor

// Restorer recreates a generation's file tree at a destination path.
type Restorer struct {
	Client ChunkClient
	Codec  *chunkcodec.Codec
	Log    *persist.Logger
}

// Stats summarizes what one Restore call did.
type Stats struct {
	FilesRestored    int
	HardLinksCreated int
	FallbackCopies   int
	Warnings         []string
}

// Resolve downloads root and maps alias ("latest", a stored alias, or an
// explicit generation id) to a generation id.
func Resolve(ctx context.Context, client trustroot.ChunkClient, codec *chunkcodec.Codec, trustRootID, alias string) (string, error) {
	root, err := trustroot.LoadTrustRoot(ctx, client, codec, trustRootID)
	if err != nil {
		return "", err
	}
	return root.Resolve(alias)
}

// Restore downloads the generation named by generationID, reassembles its
// index database, and recreates every entry under destDir.
func (r *Restorer) Restore(ctx context.Context, generationID, destDir string) (Stats, error) {
	var stats Stats

	gen, err := trustroot.LoadGeneration(ctx, r.Client, r.Codec, generationID)
	if err != nil {
		return stats, err
	}
	if gen.SchemaVersionMajor != supportedSchemaMajor {
		return stats, errors.AddContext(ErrSchemaUnsupported, generationID)
	}

	indexPath, cleanup, err := r.downloadIndexFile(ctx, gen)
	if err != nil {
		return stats, err
	}
	defer cleanup()

	store, err := genstore.Open(indexPath)
	if err != nil {
		return stats, errors.AddContext(err, "could not open reassembled index database")
	}
	defer store.Close()

	records, err := store.All()
	if err != nil {
		return stats, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })

	if err := r.restoreAll(ctx, destDir, records, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (r *Restorer) restoreAll(ctx context.Context, destDir string, records []genstore.FileRecord, stats *Stats) error {
	type inodeKey struct{ dev, ino uint64 }
	firstPathForInode := map[inodeKey]string{}

	// Pass 1: directories, parent before child (guaranteed by path sort).
	for _, rec := range records {
		if rec.Kind != string(walker.KindDirectory) {
			continue
		}
		if err := os.MkdirAll(filepath.Join(destDir, rec.Path), 0700); err != nil {
			return errors.AddContext(err, "could not create directory "+rec.Path)
		}
	}

	// Pass 2: regular files, including hard-link reconstruction.
	for _, rec := range records {
		if rec.Kind != string(walker.KindRegular) {
			continue
		}
		dest := filepath.Join(destDir, rec.Path)

		if rec.Nlink > 1 {
			key := inodeKey{rec.Dev, rec.Ino}
			if first, ok := firstPathForInode[key]; ok {
				if err := os.Link(filepath.Join(destDir, first), dest); err == nil {
					stats.HardLinksCreated++
					continue
				}
				stats.Warnings = append(stats.Warnings, "hard link failed, falling back to copy: "+rec.Path)
				stats.FallbackCopies++
			} else {
				firstPathForInode[key] = rec.Path
			}
		}

		if err := r.restoreRegularFile(ctx, dest, rec); err != nil {
			return err
		}
		stats.FilesRestored++
	}

	// Pass 3: symlinks.
	for _, rec := range records {
		if rec.Kind != string(walker.KindSymlink) {
			continue
		}
		dest := filepath.Join(destDir, rec.Path)
		if err := os.Symlink(rec.SymlinkTarget, dest); err != nil {
			return errors.AddContext(err, "could not create symlink "+rec.Path)
		}
		applyLchmod(dest, os.FileMode(rec.Mode))
	}

	// Pass 4: FIFOs and sockets, mode only.
	for _, rec := range records {
		if rec.Kind != string(walker.KindFIFO) && rec.Kind != string(walker.KindSocket) {
			continue
		}
		if err := mkspecial(filepath.Join(destDir, rec.Path), rec.Kind, os.FileMode(rec.Mode)); err != nil {
			return errors.AddContext(err, "could not create special file "+rec.Path)
		}
	}

	// Pass 5: directory metadata, children before parents so later writes
	// inside a directory don't disturb its recorded mtime.
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Kind != string(walker.KindDirectory) {
			continue
		}
		applyMetadata(filepath.Join(destDir, rec.Path), rec)
	}

	return nil
}

func (r *Restorer) restoreRegularFile(ctx context.Context, dest string, rec genstore.FileRecord) error {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.AddContext(err, "could not create file "+rec.Path)
	}

	for _, chunkID := range rec.ChunkIDs {
		plaintext, err := r.downloadDataChunk(ctx, chunkID)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := f.Write(plaintext); err != nil {
			f.Close()
			return errors.AddContext(err, "could not write chunk into "+rec.Path)
		}
	}

	if err := f.Close(); err != nil {
		return errors.AddContext(err, "could not finish writing "+rec.Path)
	}

	applyMetadata(dest, rec)
	return nil
}

func (r *Restorer) downloadDataChunk(ctx context.Context, chunkID string) ([]byte, error) {
	body, label, err := r.Client.Get(ctx, chunkID)
	if err != nil {
		return nil, errors.AddContext(err, "could not download chunk "+chunkID)
	}
	plaintext, err := r.Codec.Decrypt(body, []byte("Data"))
	if err != nil {
		return nil, errors.AddContext(err, "could not decrypt chunk "+chunkID)
	}
	if recomputeLabel(plaintext) != label {
		return nil, errors.AddContext(ErrIntegrityFailure, chunkID)
	}
	return plaintext, nil
}

func applyMetadata(path string, rec genstore.FileRecord) {
	mode := os.FileMode(rec.Mode & 0777)
	_ = os.Chmod(path, mode)
	mtime := time.Unix(0, rec.MtimeNs)
	_ = os.Chtimes(path, mtime, mtime)
	applyOwnership(path, rec)
}
