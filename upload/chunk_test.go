package upload

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		name         string
		fileSize     int64
		maxChunkSize int64
		wantLengths  []int64
	}{
		{
			name:         "empty file",
			fileSize:     0,
			maxChunkSize: 512,
			wantLengths:  []int64{},
		},
		{
			name:         "smaller than one chunk",
			fileSize:     100,
			maxChunkSize: 512,
			wantLengths:  []int64{100},
		},
		{
			name:         "exact multiple",
			fileSize:     1536,
			maxChunkSize: 512,
			wantLengths:  []int64{512, 512, 512},
		},
		{
			name:         "short trailing chunk",
			fileSize:     5 * 1024 * 1024,
			maxChunkSize: 2 * 1024 * 1024,
			wantLengths:  []int64{2 * 1024 * 1024, 2 * 1024 * 1024, 1024 * 1024},
		},
		{
			name:         "one byte chunks",
			fileSize:     3,
			maxChunkSize: 1,
			wantLengths:  []int64{1, 1, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Partition(tt.fileSize, tt.maxChunkSize)
			require.NoError(t, err)

			lengths := make([]int64, 0, len(chunks))
			for _, c := range chunks {
				lengths = append(lengths, c.Length)
			}
			assert.Equal(t, tt.wantLengths, lengths)
		})
	}
}

func TestPartition_CoversFileContiguously(t *testing.T) {
	for _, maxChunkSize := range []int64{1, 7, 512, 4096} {
		for _, fileSize := range []int64{0, 1, 6, 7, 8, 511, 512, 513, 10000, 65536} {
			chunks, err := Partition(fileSize, maxChunkSize)
			require.NoError(t, err)

			wantCount := (fileSize + maxChunkSize - 1) / maxChunkSize
			require.Equal(t, int(wantCount), len(chunks), "size=%d chunk=%d", fileSize, maxChunkSize)

			var next int64
			for i, c := range chunks {
				assert.Equal(t, i+1, c.SequenceID)
				assert.Equal(t, next, c.Offset)
				assert.Greater(t, c.Length, int64(0))
				assert.LessOrEqual(t, c.Length, maxChunkSize)
				if i < len(chunks)-1 {
					assert.Equal(t, maxChunkSize, c.Length)
				}
				next = c.EndRange() + 1
			}
			assert.Equal(t, fileSize, next)
		}
	}
}

func TestPartition_Deterministic(t *testing.T) {
	first, err := Partition(10000, 512)
	require.NoError(t, err)
	second, err := Partition(10000, 512)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPartition_InvalidInput(t *testing.T) {
	_, err := Partition(100, 0)
	assert.Error(t, err)

	_, err = Partition(100, -1)
	assert.Error(t, err)

	_, err = Partition(-1, 512)
	assert.Error(t, err)
}

func TestChunk_Ranges(t *testing.T) {
	c := Chunk{SequenceID: 2, Offset: 2048, Length: 1024}

	assert.Equal(t, int64(2048), c.StartRange())
	assert.Equal(t, int64(3071), c.EndRange())
	assert.Equal(t, "chunk 2 [2048-3071]", c.String())
}

func TestChunk_Read(t *testing.T) {
	data := []byte("0123456789")
	r := bytes.NewReader(data)

	got, err := Chunk{SequenceID: 1, Offset: 3, Length: 4}.Read(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("3456"), got)

	got, err = Chunk{SequenceID: 2, Offset: 7, Length: 3}.Read(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("789"), got)

	_, err = Chunk{SequenceID: 3, Offset: 8, Length: 4}.Read(r)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
