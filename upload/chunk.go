package upload

import (
	"fmt"
	"io"
)

// Chunk describes one contiguous byte range of the source file.
type Chunk struct {
	// SequenceID is 1-based and follows the emission order of Partition.
	SequenceID int
	Offset     int64
	Length     int64
}

// StartRange is the first byte of the chunk on the wire.
func (c Chunk) StartRange() int64 {
	return c.Offset
}

// EndRange is the last byte of the chunk on the wire (inclusive).
func (c Chunk) EndRange() int64 {
	return c.Offset + c.Length - 1
}

func (c Chunk) String() string {
	return fmt.Sprintf("chunk %d [%d-%d]", c.SequenceID, c.StartRange(), c.EndRange())
}

// Read returns exactly Length bytes read at Offset.
func (c Chunk) Read(r io.ReaderAt) ([]byte, error) {
	data := make([]byte, c.Length)
	n, err := r.ReadAt(data, c.Offset)
	if int64(n) == c.Length {
		return data, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("read %s: got %d of %d bytes: %w", c, n, c.Length, err)
}

// Partition splits a file of fileSize bytes into chunks of at most maxChunkSize bytes.
// An empty file yields no chunks.
func Partition(fileSize, maxChunkSize int64) ([]Chunk, error) {
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("max chunk size must be positive, got %d", maxChunkSize)
	}
	if fileSize < 0 {
		return nil, fmt.Errorf("file size must not be negative, got %d", fileSize)
	}

	count := (fileSize + maxChunkSize - 1) / maxChunkSize
	chunks := make([]Chunk, 0, count)
	for offset := int64(0); offset < fileSize; offset += maxChunkSize {
		length := maxChunkSize
		if remaining := fileSize - offset; remaining < length {
			length = remaining
		}
		chunks = append(chunks, Chunk{
			SequenceID: len(chunks) + 1,
			Offset:     offset,
			Length:     length,
		})
	}

	return chunks, nil
}
