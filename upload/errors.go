package upload

import "fmt"

// AllocationError is returned when the remote blob could not be created.
// Nothing exists remotely in that case, so no cleanup is attempted.
type AllocationError struct {
	Destination Destination
	Size        int64
	Err         error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("create page blob %s (%d bytes): %s", e.Destination, e.Size, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// ChunkWriteError is returned when a chunk could not be written within its retry budget.
// It is the first terminal error of the operation; the blob has been deleted by the time it is returned.
type ChunkWriteError struct {
	Chunk    Chunk
	Attempts int
	Err      error
}

func (e *ChunkWriteError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("%s: %s", e.Chunk, e.Err)
	}
	return fmt.Sprintf("%s failed after %d attempts: %s", e.Chunk, e.Attempts, e.Err)
}

func (e *ChunkWriteError) Unwrap() error {
	return e.Err
}
