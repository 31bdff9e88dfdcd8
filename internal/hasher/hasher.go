// Package hasher derives content-addressed names for encoded outputs.
package hasher

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"path"

	"github.com/cespare/xxhash/v2"
)

// HexLen is the digest length recorded in manifests (64 bits).
const HexLen = 16

// NameLen is the digest prefix embedded in file names.
const NameLen = 8

// ContentHash returns the hex xxHash64 of data, truncated to hexLen when
// 0 < hexLen < 16.
func ContentHash(data []byte, hexLen int) string {
	return truncate(xxhash.Sum64(data), hexLen)
}

// ContentHashReader is ContentHash over a stream.
func ContentHashReader(r io.Reader, hexLen int) (string, error) {
	h := xxhash.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return truncate(h.Sum64(), hexLen), nil
}

// FileName builds <base>.<w>.<h>.<hash>.<ext> for an asset key.
func FileName(key string, width, height uint32, hash, ext string) string {
	if len(hash) > NameLen {
		hash = hash[:NameLen]
	}
	return fmt.Sprintf("%s.%d.%d.%s.%s", path.Base(key), width, height, hash, ext)
}

func truncate(sum uint64, hexLen int) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], sum)
	full := hex.EncodeToString(b[:])
	if hexLen > 0 && hexLen < len(full) {
		return full[:hexLen]
	}
	return full
}
