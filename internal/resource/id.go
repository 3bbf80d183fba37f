package resource

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// NewID generates a 24-character hexadecimal record identifier. The first
// four bytes are the Unix timestamp so identifiers sort roughly by creation
// time; the remaining eight bytes come from crypto/rand.
func NewID() string {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[:4], uint32(time.Now().Unix()))
	if _, err := rand.Read(b[4:]); err != nil {
		// Fallback: timestamp-only ID. Should never happen with crypto/rand.
		binary.BigEndian.PutUint64(b[4:], uint64(time.Now().UnixNano()))
	}
	return hex.EncodeToString(b)
}

// ValidID reports whether id is a well-formed record identifier: exactly 24
// hexadecimal characters, case-insensitive. The check is O(1) and performs
// no storage access; callers reject malformed identifiers before any lookup.
func ValidID(id string) bool {
	if len(id) != 24 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
