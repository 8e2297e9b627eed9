package domain

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// ContentIDLength is the length in bytes of a content hash.
const ContentIDLength = 32

// ContentID is the content hash of an immutable blob. It identifies both
// package meta objects and ordinary content blobs, and is used as the map
// key everywhere in the fetch engine.
type ContentID [ContentIDLength]byte

// ParseContentID parses a content id from its canonical hex form.
func ParseContentID(s string) (ContentID, error) {
	var id ContentID
	if len(s) != hex.EncodedLen(ContentIDLength) {
		return id, fmt.Errorf("%w: got %d characters, want %d", ErrInvalidContentID, len(s), hex.EncodedLen(ContentIDLength))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidContentID, err)
	}
	return id, nil
}

// String returns the canonical lowercase hex form of the id.
func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// Compare returns -1, 0 or 1 comparing ids bytewise.
func (id ContentID) Compare(other ContentID) int {
	return bytes.Compare(id[:], other[:])
}
