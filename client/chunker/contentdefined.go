package chunker

import (
	"bufio"
	"io"

	"github.com/uplo-tech/errors"
)

// gearTable is a fixed, arbitrary 256-entry table used by the rolling gear
// hash below. Any table with good bit dispersion works; this one is a
// deterministic constant so that two builds of obnam chunk the same input
// identically.
var gearTable = buildGearTable()

func buildGearTable() [256]uint64 {
	var t [256]uint64
	// A small xorshift-based generator is enough to populate the table
	// with well-distributed values without pulling in a PRNG dependency
	// for what is, in the end, a fixed constant.
	x := uint64(0x9E3779B97F4A7C15)
	for i := range t {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		t[i] = x
	}
	return t
}

// ContentDefined splits a stream at content-defined boundaries using a
// rolling gear hash, so that inserting or deleting bytes near the start of
// a file only perturbs the chunks touching the edit. Boundaries are
// declared wherever the low maskBits bits of the rolling hash are zero,
// subject to Min/Max bounds.
type ContentDefined struct {
	Min, Max int64

	// maskBits controls the expected average chunk size: roughly
	// 2^maskBits bytes between boundaries.
	maskBits uint
}

// NewContentDefined builds a ContentDefined chunker whose average chunk
// size is approximately avg bytes, bounded to [min, max].
func NewContentDefined(min, avg, max int64) (ContentDefined, error) {
	if min <= 0 || avg <= min || max < avg {
		return ContentDefined{}, errors.New("content-defined chunker requires 0 < min < avg <= max")
	}
	bits := uint(0)
	for (int64(1) << bits) < avg {
		bits++
	}
	return ContentDefined{Min: min, Max: max, maskBits: bits}, nil
}

// Split implements Chunker.
func (c ContentDefined) Split(r io.Reader) ([]Chunk, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	mask := uint64(1)<<c.maskBits - 1

	var chunks []Chunk
	var offset int64
	buf := make([]byte, 0, c.Max)
	var hash uint64

	flush := func() {
		if len(buf) == 0 {
			return
		}
		data := make([]byte, len(buf))
		copy(data, buf)
		chunks = append(chunks, Chunk{
			Offset: offset,
			Length: int64(len(data)),
			Data:   data,
			Label:  Label(data),
		})
		offset += int64(len(data))
		buf = buf[:0]
		hash = 0
	}

	for {
		b, err := br.ReadByte()
		if errors.Contains(err, io.EOF) {
			flush()
			return chunks, nil
		}
		if err != nil {
			return nil, errors.AddContext(err, "could not read input stream")
		}

		buf = append(buf, b)
		hash = (hash << 1) + gearTable[b]

		atBoundary := int64(len(buf)) >= c.Min && hash&mask == 0
		if atBoundary || int64(len(buf)) >= c.Max {
			flush()
		}
	}
}
