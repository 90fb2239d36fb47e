package upload

import (
	"sync"
	"time"
)

// Stats tracks per-chunk outcomes of an upload.
type Stats struct {
	sum      time.Duration
	uploaded int
	skipped  int
	bytes    int64
	mu       sync.Mutex
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Uploaded records a successful chunk write.
func (s *Stats) Uploaded(length int64, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += d
	s.uploaded++
	s.bytes += length
}

// Skipped records a chunk that did not need to be written.
func (s *Stats) Skipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
}

// Average returns the average write duration of uploaded chunks.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uploaded == 0 {
		return 0
	}
	return s.sum / time.Duration(s.uploaded)
}

// UploadedCount returns the number of written chunks.
func (s *Stats) UploadedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploaded
}

// SkippedCount returns the number of skipped chunks.
func (s *Stats) SkippedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Bytes returns the number of bytes written.
func (s *Stats) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}
