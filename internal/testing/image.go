package testing

import (
	"os"
	"path/filepath"
	"testing"
)

// Pattern returns size non-zero bytes. seed changes the pattern so that
// different regions of an image can be told apart.
func Pattern(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i%251) + seed | 1
	}
	return data
}

// WriteImage writes the concatenation of parts into a new file under a
// fresh temp dir and returns its path.
func WriteImage(t testing.TB, name string, parts ...[]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create image: %s", err)
	}
	defer file.Close() //nolint:errcheck

	for _, part := range parts {
		if _, err := file.Write(part); err != nil {
			t.Fatalf("write image: %s", err)
		}
	}

	return path
}
