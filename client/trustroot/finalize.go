package trustroot

import (
	"bytes"
	"context"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/obnam-mirror/obnam2/client/chunkcodec"
	"github.com/obnam-mirror/obnam2/client/chunker"
	"github.com/obnam-mirror/obnam2/persist"
)

const (
	schemaVersionMajor = 1
	schemaVersionMinor = 0
)

// Finalizer chains the index database, IndexPart chunks, the Generation
// chunk, and the TrustRoot chunk together at the end of a backup: close
// the index DB, chunk/encrypt/upload its bytes as IndexParts, build and
// upload a Generation chunk referencing them, then read, append to, and
// upload a fresh TrustRoot, adopting it locally only once that last
// upload has succeeded.
type Finalizer struct {
	Client  ChunkClient
	Codec   *chunkcodec.Codec
	Chunker chunker.Chunker
	Log     *persist.Logger
}

// UploadIndexFile chunks and uploads the index database's bytes as an
// ordered list of IndexPart chunks.
func (f *Finalizer) UploadIndexFile(ctx context.Context, data []byte) ([]string, error) {
	chunks, err := f.Chunker.Split(bytes.NewReader(data))
	if err != nil {
		return nil, errors.AddContext(err, "could not chunk index database")
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		envelope := f.Codec.Encrypt(c.Data, []byte(IndexPartAssociatedData))
		id, err := f.Client.Upload(ctx, c.Label, envelope)
		if err != nil {
			return nil, errors.AddContext(err, "could not upload index part")
		}
		ids[i] = id
	}
	return ids, nil
}

// DownloadIndexFile downloads and decrypts every IndexPart referenced by
// gen, in order, and concatenates them back into the index database's
// original bytes.
func (f *Finalizer) DownloadIndexFile(ctx context.Context, gen Generation) ([]byte, error) {
	var buf bytes.Buffer
	for _, id := range gen.IndexPartIDs {
		body, _, err := f.Client.Get(ctx, id)
		if err != nil {
			return nil, errors.AddContext(err, "could not download index part "+id)
		}
		plaintext, err := f.Codec.Decrypt(body, []byte(IndexPartAssociatedData))
		if err != nil {
			return nil, errors.AddContext(err, "could not decrypt index part "+id)
		}
		buf.Write(plaintext)
	}
	return buf.Bytes(), nil
}

// Result carries everything FinalizeGeneration produced.
type Result struct {
	TrustRoot    TrustRoot
	TrustRootID  string
	GenerationID string
}

// FinalizeGeneration uploads indexFileData as a fresh Generation, then
// appends it to current and uploads the resulting TrustRoot. previousID, if
// non-empty, is the TrustRoot chunk current was loaded from; once the new
// TrustRoot has been uploaded successfully, FinalizeGeneration deletes it
// server-side so that Locate's "obnam:trust-root" search stays unambiguous.
// That delete is best-effort: a failure is logged, not returned, since the
// new TrustRoot is already authoritative and nothing guarantees the old
// one's cleanup always runs, only that it stays authoritative until the
// new one's upload succeeds.
func (f *Finalizer) FinalizeGeneration(ctx context.Context, current TrustRoot, previousID string, indexFileData []byte) (Result, error) {
	partIDs, err := f.UploadIndexFile(ctx, indexFileData)
	if err != nil {
		return Result{}, err
	}

	gen := Generation{
		SchemaVersionMajor: schemaVersionMajor,
		SchemaVersionMinor: schemaVersionMinor,
		IndexPartIDs:       partIDs,
		EndedUnixNano:      time.Now().UnixNano(),
	}
	genID, err := saveJSON(ctx, f.Client, f.Codec, labelGeneration, labelGeneration, gen)
	if err != nil {
		return Result{}, errors.AddContext(err, "could not upload generation chunk")
	}

	newRoot := current.withGeneration(genID)
	rootID, err := saveJSON(ctx, f.Client, f.Codec, labelTrustRoot, labelTrustRoot, newRoot)
	if err != nil {
		return Result{}, errors.AddContext(err, "could not upload trust root chunk")
	}

	if previousID != "" && previousID != rootID {
		if err := f.Client.Delete(ctx, previousID); err != nil && f.Log != nil {
			f.Log.Warn("could not delete superseded trust root chunk:", previousID, err)
		}
	}

	return Result{TrustRoot: newRoot, TrustRootID: rootID, GenerationID: genID}, nil
}
