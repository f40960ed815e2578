package chunker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func concat(chunks []Chunk) []byte {
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c.Data)
	}
	return buf.Bytes()
}

func TestFixedSizeChunksCoverInputExactly(t *testing.T) {
	input := []byte("abcdefg") // 7 bytes, chunk size 3 -> 3,3,1
	chunks, err := FixedSize{Size: 3}.Split(bytes.NewReader(input))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Equal(t, int64(3), chunks[0].Length)
	require.Equal(t, int64(3), chunks[1].Length)
	require.Equal(t, int64(1), chunks[2].Length)
	require.Equal(t, input, concat(chunks))
}

func TestFixedSizeChunkOffsetsAreSequential(t *testing.T) {
	input := bytes.Repeat([]byte{'x'}, 10)
	chunks, err := FixedSize{Size: 4}.Split(bytes.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []int64{0, 4, 8}, []int64{chunks[0].Offset, chunks[1].Offset, chunks[2].Offset})
}

func TestFixedSizeOneByteProducesOneChunkPerByte(t *testing.T) {
	input := []byte("abc")
	chunks, err := FixedSize{Size: 1}.Split(bytes.NewReader(input))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		require.Equal(t, int64(1), c.Length)
		require.Equal(t, int64(i), c.Offset)
	}
	require.Equal(t, input, concat(chunks))
}

func TestFixedSizeRejectsNonPositiveSize(t *testing.T) {
	_, err := FixedSize{Size: 0}.Split(bytes.NewReader([]byte("x")))
	require.ErrorIs(t, err, ErrInvalidChunkSize)
}

func TestFixedSizeEmptyInputProducesNoChunks(t *testing.T) {
	chunks, err := FixedSize{Size: 4}.Split(bytes.NewReader(nil))
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestLabelIsStableForSameBytes(t *testing.T) {
	require.Equal(t, Label([]byte("abc")), Label([]byte("abc")))
	require.NotEqual(t, Label([]byte("abc")), Label([]byte("abd")))
}

func TestContentDefinedCoversInputExactlyAndRespectsBounds(t *testing.T) {
	c, err := NewContentDefined(16, 64, 256)
	require.NoError(t, err)

	input := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog, "), 200)
	chunks, err := c.Split(bytes.NewReader(input))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	require.Equal(t, input, concat(chunks))

	for i, ch := range chunks {
		if i != len(chunks)-1 {
			require.GreaterOrEqual(t, ch.Length, c.Min)
		}
		require.LessOrEqual(t, ch.Length, c.Max)
	}
}

func TestContentDefinedIsStableAcrossIdenticalInput(t *testing.T) {
	c, err := NewContentDefined(16, 64, 256)
	require.NoError(t, err)

	input := bytes.Repeat([]byte("some reasonably compressible content here. "), 100)
	a, err := c.Split(bytes.NewReader(input))
	require.NoError(t, err)
	b, err := c.Split(bytes.NewReader(input))
	require.NoError(t, err)

	require.Equal(t, len(a), len(b))
	for i := range a {
		require.Equal(t, a[i].Label, b[i].Label)
	}
}

func TestNewContentDefinedRejectsInvalidBounds(t *testing.T) {
	_, err := NewContentDefined(0, 64, 256)
	require.Error(t, err)
	_, err = NewContentDefined(16, 16, 256)
	require.Error(t, err)
	_, err = NewContentDefined(16, 300, 256)
	require.Error(t, err)
}
