// Package genstore implements the per-generation index database: a
// sqlite3-backed table of file metadata plus a small key/value metadata
// table, and the incremental Generation Builder that populates it
// against the previous generation's index.
package genstore

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uplo-tech/errors"
)

const schemaVersionMajor = "1"
const schemaVersionMinor = "0"

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	mode INTEGER NOT NULL,
	uid INTEGER NOT NULL,
	gid INTEGER NOT NULL,
	dev INTEGER NOT NULL,
	ino INTEGER NOT NULL,
	nlink INTEGER NOT NULL,
	size INTEGER NOT NULL,
	mtime_ns INTEGER NOT NULL,
	symlink_target TEXT NOT NULL DEFAULT '',
	chunk_ids TEXT NOT NULL DEFAULT ''
);
`

// FileRecord is one row of the files table: a path's captured metadata plus
// the ordered list of Data chunk ids making up its content, if any.
type FileRecord struct {
	Path          string
	Kind          string
	Mode          uint32
	UID, GID      uint32
	Dev, Ino      uint64
	Nlink         uint64
	Size          int64
	MtimeNs       int64
	SymlinkTarget string
	ChunkIDs      []string
}

// identity is the subset of FileRecord compared byte-for-byte to decide
// whether a file's chunks can be copied verbatim from the previous
// generation.
type identity struct {
	Dev, Ino, MtimeNs, Size int64
	Mode                    uint32
}

func (r FileRecord) identity() identity {
	return identity{Dev: int64(r.Dev), Ino: int64(r.Ino), MtimeNs: r.MtimeNs, Size: r.Size, Mode: r.Mode}
}

// Store wraps the generation index database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the index database at path and ensures its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.AddContext(err, "could not open index database")
	}
	// WAL mode would leave committed data in a separate -wal file until a
	// checkpoint runs; this index is later read back as a single byte blob
	// (it gets chunked whole into IndexPart chunks), so the default
	// rollback journal, which keeps every committed byte in the main file,
	// is required here rather than just idiomatic.
	if _, err := db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
		db.Close()
		return nil, errors.AddContext(err, "could not set journal mode")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.AddContext(err, "could not create schema")
	}
	s := &Store{db: db}
	if err := s.setMeta("schema_version_major", schemaVersionMajor); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.setMeta("schema_version_minor", schemaVersionMinor); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.setMeta("checksum_kind", "sha256"); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetMeta sets an arbitrary key/value pair in the metadata table.
func (s *Store) SetMeta(key, value string) error {
	return s.setMeta(key, value)
}

func (s *Store) setMeta(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO meta(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	if err != nil {
		return errors.AddContext(err, "could not set metadata key "+key)
	}
	return nil
}

// Meta returns the value stored for key, and whether it was present.
func (s *Store) Meta(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Contains(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.AddContext(err, "could not read metadata key "+key)
	}
	return value, true, nil
}

// Put inserts or replaces one file's record.
func (s *Store) Put(r FileRecord) error {
	_, err := s.db.Exec(`INSERT INTO files
		(path, kind, mode, uid, gid, dev, ino, nlink, size, mtime_ns, symlink_target, chunk_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			kind=excluded.kind, mode=excluded.mode, uid=excluded.uid, gid=excluded.gid,
			dev=excluded.dev, ino=excluded.ino, nlink=excluded.nlink, size=excluded.size,
			mtime_ns=excluded.mtime_ns, symlink_target=excluded.symlink_target,
			chunk_ids=excluded.chunk_ids`,
		r.Path, r.Kind, r.Mode, r.UID, r.GID, r.Dev, r.Ino, r.Nlink, r.Size, r.MtimeNs,
		r.SymlinkTarget, strings.Join(r.ChunkIDs, ","))
	if err != nil {
		return errors.AddContext(err, "could not store file record for "+r.Path)
	}
	return nil
}

// Get returns the record stored at path, if any.
func (s *Store) Get(path string) (FileRecord, bool, error) {
	row := s.db.QueryRow(`SELECT path, kind, mode, uid, gid, dev, ino, nlink, size, mtime_ns,
		symlink_target, chunk_ids FROM files WHERE path = ?`, path)
	r, err := scanFileRecord(row)
	if errors.Contains(err, sql.ErrNoRows) {
		return FileRecord{}, false, nil
	}
	if err != nil {
		return FileRecord{}, false, errors.AddContext(err, "could not read file record for "+path)
	}
	return r, true, nil
}

// All returns every record in the store, ordered by path.
func (s *Store) All() ([]FileRecord, error) {
	rows, err := s.db.Query(`SELECT path, kind, mode, uid, gid, dev, ino, nlink, size, mtime_ns,
		symlink_target, chunk_ids FROM files ORDER BY path`)
	if err != nil {
		return nil, errors.AddContext(err, "could not list file records")
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		r, err := scanFileRecord(rows)
		if err != nil {
			return nil, errors.AddContext(err, "could not scan file record")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFileRecord(row scanner) (FileRecord, error) {
	var r FileRecord
	var chunkIDs string
	err := row.Scan(&r.Path, &r.Kind, &r.Mode, &r.UID, &r.GID, &r.Dev, &r.Ino, &r.Nlink,
		&r.Size, &r.MtimeNs, &r.SymlinkTarget, &chunkIDs)
	if err != nil {
		return FileRecord{}, err
	}
	if chunkIDs != "" {
		r.ChunkIDs = strings.Split(chunkIDs, ",")
	}
	return r, nil
}
