package upload

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/bitrise-io/go-diskupload/internal"
)

type writeCall struct {
	start, end int64
	size       int
}

// fakeClient records every remote call. writeErr decides the outcome of a write
// from its start offset and the number of earlier writes at that offset.
type fakeClient struct {
	mu sync.Mutex

	createErr error
	deleteErr error
	writeErr  func(start int64, previousCalls int) error
	writeHook func(start int64)
	// inFlight runs inside WriteRange with the context the write was given.
	inFlight func(ctx context.Context) error

	creates []int64
	writes  []writeCall
	deletes int
}

func (c *fakeClient) CreatePageBlob(_ context.Context, _ Destination, size int64, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creates = append(c.creates, size)
	return c.createErr
}

func (c *fakeClient) WriteRange(ctx context.Context, _ Destination, start, end int64, data []byte, _ time.Duration) error {
	if c.writeHook != nil {
		c.writeHook(start)
	}
	if c.inFlight != nil {
		if err := c.inFlight(ctx); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	previous := 0
	for _, w := range c.writes {
		if w.start == start {
			previous++
		}
	}
	c.writes = append(c.writes, writeCall{start: start, end: end, size: len(data)})

	if c.writeErr != nil {
		return c.writeErr(start, previous)
	}
	return nil
}

func (c *fakeClient) DeleteBlob(context.Context, Destination) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	return c.deleteErr
}

func (c *fakeClient) writesAt(start int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, w := range c.writes {
		if w.start == start {
			n++
		}
	}
	return n
}

func (c *fakeClient) writtenStarts() map[int64]bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	starts := map[int64]bool{}
	for _, w := range c.writes {
		starts[w.start] = true
	}
	return starts
}

// fakeOS serves the real file but fails reads at readErrAt.
type fakeOS struct {
	internal.RealOS
	readErrAt int64
	readErr   error
}

func (o fakeOS) Open(name string) (internal.File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return failingFile{File: f, errAt: o.readErrAt, err: o.readErr}, nil
}

type failingFile struct {
	*os.File
	errAt int64
	err   error
}

func (f failingFile) ReadAt(p []byte, off int64) (int, error) {
	if off == f.errAt {
		return 0, f.err
	}
	return f.File.ReadAt(p, off)
}
