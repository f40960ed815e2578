package restorer

import (
	"bytes"
	"context"
	"os"

	"github.com/uplo-tech/errors"

	"github.com/obnam-mirror/obnam2/client/chunker"
	"github.com/obnam-mirror/obnam2/client/trustroot"
)

// downloadIndexFile reassembles a Generation's IndexPart chunks into a
// private temporary file and returns its path plus a cleanup func that
// removes it; the file must not outlive the Restore call that created it,
// on every exit path including error returns.
func (r *Restorer) downloadIndexFile(ctx context.Context, gen trustroot.Generation) (string, func(), error) {
	var buf bytes.Buffer
	for _, id := range gen.IndexPartIDs {
		body, _, err := r.Client.Get(ctx, id)
		if err != nil {
			return "", func() {}, errors.AddContext(err, "could not download index part "+id)
		}
		plaintext, err := r.Codec.Decrypt(body, []byte(trustroot.IndexPartAssociatedData))
		if err != nil {
			return "", func() {}, errors.AddContext(err, "could not decrypt index part "+id)
		}
		buf.Write(plaintext)
	}

	f, err := os.CreateTemp("", "obnam-restore-index-*.db")
	if err != nil {
		return "", func() {}, errors.AddContext(err, "could not create temporary index file")
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, errors.AddContext(err, "could not write temporary index file")
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, errors.AddContext(err, "could not finish temporary index file")
	}
	return path, cleanup, nil
}

func recomputeLabel(plaintext []byte) string {
	return chunker.Label(plaintext)
}
