package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/klauspost/compress/zstd"
)

// decompress writes the decompressed image of archivePath into dir.
// The returned Staged removes dir on cleanup.
func (s *Stager) decompress(archivePath, dir string) (*Staged, error) {
	startTime := time.Now()
	name := strings.TrimSuffix(filepath.Base(archivePath), zstdSuffix)
	dest := filepath.Join(dir, name)

	s.logger.Infof("Decompressing %s", filepath.Base(archivePath))

	in, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open compressed image: %w", err)
	}
	defer in.Close() //nolint:errcheck

	decoder, err := zstd.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer decoder.Close()

	out, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("create decompressed image: %w", err)
	}

	size, err := io.Copy(out, decoder)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("decompress image: %w", err)
	}

	s.logger.Donef("Decompressed %s in %s", units.HumanSizeWithPrecision(float64(size), 3), time.Since(startTime).Round(time.Second))

	return &Staged{Path: dest, Size: size, cleanup: removeDir(dir)}, nil
}
