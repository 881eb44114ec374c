package common

import (
	sha256 "github.com/minio/sha256-simd"
)

// KeyPath is the position of a key among the leaves of the sparse Merkle tree of a map:
// the SHA-256 of the key, read as 256 bits, most significant first.
type KeyPath [sha256.Size]byte

func NewKeyPath(key []byte) KeyPath {
	return KeyPath(sha256.Sum256(key))
}

// Bit is true if the path goes right at depth i.
func (p KeyPath) Bit(i int) bool {
	return p[i/8]&(1<<uint(7-i%8)) != 0
}

// SHA256Hash hashes the concatenation of data.
func SHA256Hash(data ...[]byte) []byte {
	hash := sha256.New()
	for _, d := range data {
		hash.Write(d)
	}
	return hash.Sum(nil)
}
