package upload

import (
	"fmt"
	"net/http"
	"time"
)

const (
	// PageSize is the write granularity of a page blob.
	PageSize = 512
	// MaxWriteSize is the largest range a single page write accepts.
	MaxWriteSize = 4 * 1024 * 1024
)

// Config holds configuration for the upload engine.
type Config struct {
	// Concurrency is the number of workers draining the chunk queue.
	// Default: 12
	Concurrency int

	// MaxChunkSize is the size of every chunk except the last one.
	// Must be a multiple of PageSize.
	// Default: 2 MiB
	MaxChunkSize int64

	// MaxRetryPerChunk is the number of retries after the first failed write of a chunk.
	// Default: 5
	MaxRetryPerChunk int

	// RetryWait is the constant delay between two write attempts of the same chunk.
	// Default: 10 seconds
	RetryWait time.Duration

	// RemoteTimeout bounds every single remote call.
	// Default: 120 seconds
	RemoteTimeout time.Duration

	// SkipZeroChunks enables skipping full-size chunks that contain only zero bytes.
	// Default: true
	SkipZeroChunks bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:      12,
		MaxChunkSize:     2 * 1024 * 1024,
		MaxRetryPerChunk: 5,
		RetryWait:        10 * time.Second,
		RemoteTimeout:    120 * time.Second,
		SkipZeroChunks:   true,
	}
}

// Validate reports the first invalid field of the config.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("max chunk size must be positive, got %d", c.MaxChunkSize)
	}
	if c.MaxChunkSize > MaxWriteSize {
		return fmt.Errorf("max chunk size %d exceeds the %d byte limit of a single page write", c.MaxChunkSize, MaxWriteSize)
	}
	if c.MaxChunkSize%PageSize != 0 {
		return fmt.Errorf("max chunk size %d is not a multiple of the %d byte page size", c.MaxChunkSize, PageSize)
	}
	if c.MaxRetryPerChunk < 0 {
		return fmt.Errorf("max retry per chunk must not be negative, got %d", c.MaxRetryPerChunk)
	}
	if c.RetryWait < 0 {
		return fmt.Errorf("retry wait must not be negative, got %s", c.RetryWait)
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("remote timeout must be positive, got %s", c.RemoteTimeout)
	}
	return nil
}

// DefaultHTTPClient creates an HTTP client tuned for many parallel page writes against one host.
func DefaultHTTPClient(concurrency int) *http.Client {
	if concurrency < 2 {
		concurrency = 2
	}

	return &http.Client{
		// No timeout - per call timeouts are handled via context
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        2 * concurrency,
			MaxConnsPerHost:     concurrency,
			MaxIdleConnsPerHost: concurrency,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}
