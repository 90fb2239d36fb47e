package upload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitrise-io/go-diskupload/internal"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// Engine uploads files into page blobs with a fixed pool of workers.
// An Engine runs one upload at a time; concurrent Upload calls are serialized.
type Engine struct {
	client RemoteBlobClient
	config Config
	logger log.Logger
	os     internal.OsProxy
	zero   zeroDetector

	running sync.Mutex
	stateMu sync.Mutex
	state   State
}

// New creates a new Engine with the given configuration.
func New(client RemoteBlobClient, config Config, logger log.Logger) *Engine {
	return &Engine{
		client: client,
		config: config,
		logger: logger,
		os:     internal.RealOS{},
	}
}

// State returns the state of the current or last upload.
func (e *Engine) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.state = s
}

// operation is the shared state of one upload, seen by all of its workers.
type operation struct {
	dst        Destination
	sourcePath string
	queue      *ChunkQueue
	stats      *Stats

	once     sync.Once
	firstErr error
}

// fail records err if it is the first terminal error and reports whether it was.
func (op *operation) fail(err error) bool {
	first := false
	op.once.Do(func() {
		op.firstErr = err
		first = true
	})
	return first
}

// Upload uploads sourcePath into dst using Config.Concurrency workers.
func (e *Engine) Upload(ctx context.Context, sourcePath string, dst Destination) (*Result, error) {
	return e.UploadWithWorkers(ctx, sourcePath, dst, e.config.Concurrency)
}

// UploadWithWorkers uploads sourcePath into dst using the given number of workers.
// On a terminal chunk failure the blob is deleted and a *ChunkWriteError is returned.
// If the blob cannot be created an *AllocationError is returned.
func (e *Engine) UploadWithWorkers(ctx context.Context, sourcePath string, dst Destination, workers int) (*Result, error) {
	e.running.Lock()
	defer e.running.Unlock()

	e.setState(StateNotStarted)

	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if workers < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", workers)
	}

	if e.zero.chunkSize != e.config.MaxChunkSize {
		e.zero = newZeroDetector(e.config.MaxChunkSize)
	}

	info, err := e.os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source %s is a directory", sourcePath)
	}
	size := info.Size()

	chunks, err := Partition(size, e.config.MaxChunkSize)
	if err != nil {
		return nil, fmt.Errorf("partition source: %w", err)
	}

	startTime := time.Now()

	e.logger.Debugf("Creating page blob %s (%s)", dst, units.HumanSizeWithPrecision(float64(size), 3))
	if err := e.client.CreatePageBlob(ctx, dst, size, e.config.RemoteTimeout); err != nil {
		return nil, &AllocationError{Destination: dst, Size: size, Err: err}
	}
	e.setState(StateBlobAllocated)

	op := &operation{
		dst:        dst,
		sourcePath: sourcePath,
		queue:      NewChunkQueue(chunks...),
		stats:      NewStats(),
	}

	e.logger.Infof("Uploading %d chunks of up to %s with %d workers",
		len(chunks), units.HumanSizeWithPrecision(float64(e.config.MaxChunkSize), 3), workers)
	e.setState(StateUploading)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			e.work(ctx, worker, len(chunks), op)
		}(i + 1)
	}
	wg.Wait()

	if op.firstErr != nil {
		e.deleteBlob(ctx, dst)
		e.setState(StateAborted)
		return nil, op.firstErr
	}

	e.setState(StateCompleted)

	result := &Result{
		Chunks:   len(chunks),
		Uploaded: op.stats.UploadedCount(),
		Skipped:  op.stats.SkippedCount(),
		Bytes:    op.stats.Bytes(),
		Duration: time.Since(startTime),
	}
	e.logger.Donef("Uploaded %s to %s in %s (%d chunks written, %d zero chunks skipped)",
		units.HumanSizeWithPrecision(float64(result.Bytes), 3), dst, result.Duration.Round(time.Second),
		result.Uploaded, result.Skipped)

	return result, nil
}

func (e *Engine) work(ctx context.Context, worker, totalChunks int, op *operation) {
	var file internal.File
	defer func() {
		if file != nil {
			file.Close() //nolint:errcheck
		}
	}()

	for {
		chunk, ok := op.queue.Pop()
		if !ok {
			return
		}

		if file == nil {
			f, err := e.os.Open(op.sourcePath)
			if err != nil {
				e.abort(op, &ChunkWriteError{Chunk: chunk, Err: fmt.Errorf("open source: %w", err)})
				return
			}
			file = f
		}

		if err := e.process(ctx, worker, totalChunks, file, chunk, op); err != nil {
			e.abort(op, err)
			return
		}
	}
}

func (e *Engine) process(ctx context.Context, worker, totalChunks int, file internal.File, chunk Chunk, op *operation) error {
	data, err := chunk.Read(file)
	if err != nil {
		return &ChunkWriteError{Chunk: chunk, Err: err}
	}

	if e.config.SkipZeroChunks && e.zero.skippable(data) {
		op.stats.Skipped()
		e.logger.Debugf("[worker %d] Skipping zero %s/%d", worker, chunk, totalChunks)
		return nil
	}

	return e.writeWithRetry(ctx, worker, totalChunks, chunk, data, op)
}

func (e *Engine) writeWithRetry(ctx context.Context, worker, totalChunks int, chunk Chunk, data []byte, op *operation) error {
	maxAttempts := e.config.MaxRetryPerChunk + 1
	attempts := 0

	err := retry.Times(uint(e.config.MaxRetryPerChunk)).Wait(e.config.RetryWait).TryWithAbort(func(attempt uint) (error, bool) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("upload cancelled: %w", err), true
		}

		attempts++
		e.logger.Debugf("[worker %d] Writing %s/%d (attempt %d/%d) [written=%d] [avg=%v]",
			worker, chunk, totalChunks, attempts, maxAttempts,
			op.stats.UploadedCount(), op.stats.Average().Round(time.Millisecond))

		// Cancellation only stops further attempts, a started write runs to its own timeout.
		start := time.Now()
		if err := e.client.WriteRange(context.WithoutCancel(ctx), op.dst, chunk.StartRange(), chunk.EndRange(), data, e.config.RemoteTimeout); err != nil {
			if willRetry(ctx, attempts, maxAttempts) {
				e.logger.Warnf("Writing %s failed (attempt %d/%d), retrying after %s: %s",
					chunk, attempts, maxAttempts, e.config.RetryWait, err)
			}
			return err, false
		}

		op.stats.Uploaded(chunk.Length, time.Since(start))
		return nil, true
	})
	if err != nil {
		return &ChunkWriteError{Chunk: chunk, Attempts: attempts, Err: err}
	}

	return nil
}

// willRetry reports whether a failed attempt is followed by another one.
func willRetry(ctx context.Context, attempts, maxAttempts int) bool {
	return attempts < maxAttempts && ctx.Err() == nil
}

// abort stops new work from being picked up and records err if it is the first failure.
// Writes already in flight on other workers are left to finish.
func (e *Engine) abort(op *operation, err error) {
	dropped := op.queue.Clear()
	if op.fail(err) {
		e.setState(StateAborting)
		e.logger.Warnf("Aborting upload to %s, %d pending chunks dropped: %s", op.dst, dropped, err)
	}
}

// deleteBlob removes the partially written blob. Its failure is only logged so the
// original error reaches the caller.
func (e *Engine) deleteBlob(ctx context.Context, dst Destination) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.RemoteTimeout)
	defer cancel()

	e.logger.Debugf("Deleting partially uploaded blob %s", dst)
	if err := e.client.DeleteBlob(ctx, dst); err != nil {
		e.logger.Warnf("Failed to delete blob %s: %s", dst, err)
	}
}
