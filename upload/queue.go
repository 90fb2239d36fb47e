package upload

import "sync"

// ChunkQueue is a FIFO of pending chunks shared by the workers.
// Every operation holds the same lock, so the queue is linearizable.
type ChunkQueue struct {
	chunks []Chunk
	mu     sync.Mutex
}

// NewChunkQueue creates a queue holding the given chunks in order.
func NewChunkQueue(chunks ...Chunk) *ChunkQueue {
	q := &ChunkQueue{chunks: make([]Chunk, 0, len(chunks))}
	q.chunks = append(q.chunks, chunks...)
	return q
}

// Push appends a chunk.
func (q *ChunkQueue) Push(c Chunk) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chunks = append(q.chunks, c)
}

// Pop removes and returns the earliest pushed chunk.
// The second return value is false when the queue is empty.
func (q *ChunkQueue) Pop() (Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.chunks) == 0 {
		return Chunk{}, false
	}
	c := q.chunks[0]
	q.chunks[0] = Chunk{}
	q.chunks = q.chunks[1:]
	return c, true
}

// Clear drops every pending chunk and returns how many were dropped.
func (q *ChunkQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.chunks)
	q.chunks = nil
	return n
}

// Len returns the number of pending chunks. Only meant for reporting:
// the result may be stale by the time a Pop happens.
func (q *ChunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}
