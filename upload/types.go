// Package upload uploads a local disk image into a page blob by writing fixed-size chunks in parallel.
// Writes of a chunk are retried with a constant delay; a chunk that runs out of retries aborts the
// whole upload and the partially written blob is deleted.
package upload

import (
	"context"
	"time"
)

// Destination identifies the remote blob an image is uploaded to.
type Destination struct {
	Container string
	Blob      string
}

func (d Destination) String() string {
	return d.Container + "/" + d.Blob
}

// RemoteBlobClient performs the remote calls of an upload.
// Implementations must be safe for concurrent use.
type RemoteBlobClient interface {
	// CreatePageBlob allocates a zero-filled blob of size bytes.
	CreatePageBlob(ctx context.Context, dst Destination, size int64, timeout time.Duration) error

	// WriteRange writes data to the inclusive byte range [start, end].
	WriteRange(ctx context.Context, dst Destination, start, end int64, data []byte, timeout time.Duration) error

	// DeleteBlob removes the blob. Deleting a missing blob is not an error.
	DeleteBlob(ctx context.Context, dst Destination) error
}

// State is the lifecycle state of an upload operation.
type State int

// Upload states.
const (
	StateNotStarted State = iota
	StateBlobAllocated
	StateUploading
	StateCompleted
	StateAborting
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateBlobAllocated:
		return "blob allocated"
	case StateUploading:
		return "uploading"
	case StateCompleted:
		return "completed"
	case StateAborting:
		return "aborting"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Result summarises a completed upload.
type Result struct {
	Chunks   int
	Uploaded int
	Skipped  int
	Bytes    int64
	Duration time.Duration
}
