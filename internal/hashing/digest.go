// Package hashing computes the content fingerprints that key the task cache.
package hashing

import (
	"encoding/binary"
	"encoding/hex"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// FormatVersion is hashed first into every fingerprint. Changing the set or
// order of hashed fields requires bumping it.
const FormatVersion = "turbo-fingerprint-v1"

// digest writes length-prefixed fields into a blake3 hasher so that the
// concatenation of fields is unambiguous.
type digest struct {
	h hash.Hash
}

func newDigest() *digest {
	return &digest{h: blake3.New()}
}

func (d *digest) field(data []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(data)))
	d.h.Write(length[:])
	d.h.Write(data)
}

func (d *digest) str(s string) {
	d.field([]byte(s))
}

func (d *digest) count(n int) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	d.field(b[:])
}

func (d *digest) sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// HashFile returns the hex blake3 digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
