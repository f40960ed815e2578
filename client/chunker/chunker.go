// Package chunker splits a byte stream into a finite, ordered sequence of
// chunks. It is the sole source of content-hash labels for Data chunks.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/uplo-tech/errors"
)

// Chunk describes one piece of the input stream: its byte range and the
// content hash of its bytes under the configured algorithm.
type Chunk struct {
	Offset int64
	Length int64
	Data   []byte
	Label  string // "sha256:<hex>"
}

// Chunker produces an ordered sequence of Chunks covering an input stream
// exactly, with no gaps or overlaps.
type Chunker interface {
	// Split reads r to completion and returns its chunks in stream order.
	Split(r io.Reader) ([]Chunk, error)
}

// Label returns the "sha256:<hex>" label for data, this build's default
// checksum_kind.
func Label(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// FixedSize splits a stream into chunks of exactly size bytes, the final
// chunk possibly shorter. size must be positive.
type FixedSize struct {
	Size int64
}

// ErrInvalidChunkSize is returned by Split when Size is not positive.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Split implements Chunker.
func (f FixedSize) Split(r io.Reader) ([]Chunk, error) {
	if f.Size <= 0 {
		return nil, ErrInvalidChunkSize
	}

	var chunks []Chunk
	var offset int64
	buf := make([]byte, f.Size)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			chunks = append(chunks, Chunk{
				Offset: offset,
				Length: int64(n),
				Data:   data,
				Label:  Label(data),
			})
			offset += int64(n)
		}
		if errors.Contains(err, io.EOF) || errors.Contains(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, errors.AddContext(err, "could not read input stream")
		}
	}
	return chunks, nil
}
