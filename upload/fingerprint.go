package upload

import (
	"bytes"
	"crypto/sha256"
)

type fingerprint [sha256.Size]byte

func fingerprintOf(data []byte) fingerprint {
	return sha256.Sum256(data)
}

// zeroFingerprint is the fingerprint of size zero bytes.
func zeroFingerprint(size int64) fingerprint {
	return fingerprintOf(make([]byte, size))
}

// zeroDetector recognises full-size chunks made of zero bytes only.
type zeroDetector struct {
	chunkSize int64
	zero      fingerprint
}

func newZeroDetector(chunkSize int64) zeroDetector {
	return zeroDetector{
		chunkSize: chunkSize,
		zero:      zeroFingerprint(chunkSize),
	}
}

// skippable is true for chunks of exactly chunkSize bytes whose content is all zero.
// A shorter trailing chunk never qualifies.
func (d zeroDetector) skippable(data []byte) bool {
	if int64(len(data)) != d.chunkSize {
		return false
	}
	sum := fingerprintOf(data)
	return bytes.Equal(sum[:], d.zero[:])
}
