// Package ids defines the concrete identifier types shared by every
// repository backend: ChunkID, ArchiveID, FossilID, and ClientID. All four
// are UUIDv7-backed [16]byte values, lexicographically sortable by creation
// time and cheap to use as Go map keys.
package ids

import (
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// idEncoding is base32hex (RFC 4648) lowercase without padding. The alphabet
// 0-9a-v preserves lexicographic sort order, so string-sorted IDs sort by
// creation time.
var idEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

func newV7() [16]byte {
	return [16]byte(uuid.Must(uuid.NewV7()))
}

func parse(value string) ([16]byte, error) {
	var id [16]byte
	if len(value) != 26 {
		return id, fmt.Errorf("invalid id length: %d (want 26)", len(value))
	}
	decoded, err := idEncoding.DecodeString(strings.ToUpper(value))
	if err != nil {
		return id, fmt.Errorf("invalid id: %w", err)
	}
	copy(id[:], decoded)
	return id, nil
}

func encode(id [16]byte) string {
	return strings.ToLower(idEncoding.EncodeToString(id[:]))
}

func timeOf(id [16]byte) time.Time {
	ms := int64(id[0])<<40 | int64(id[1])<<32 | int64(id[2])<<24 |
		int64(id[3])<<16 | int64(id[4])<<8 | int64(id[5])
	return time.UnixMilli(ms)
}

// ChunkID identifies a content-addressed chunk.
type ChunkID [16]byte

// NewChunkID returns a fresh, time-ordered ChunkID.
func NewChunkID() ChunkID { return ChunkID(newV7()) }

// ParseChunkID parses a 26-character base32hex string into a ChunkID.
func ParseChunkID(value string) (ChunkID, error) {
	raw, err := parse(value)
	return ChunkID(raw), err
}

func (id ChunkID) String() string   { return encode([16]byte(id)) }
func (id ChunkID) Time() time.Time  { return timeOf([16]byte(id)) }
func (id ChunkID) IsZero() bool     { return id == ChunkID{} }

// ArchiveID identifies one archive manifest inside a repository.
type ArchiveID [16]byte

// NewArchiveID returns a fresh, time-ordered ArchiveID.
func NewArchiveID() ArchiveID { return ArchiveID(newV7()) }

// ParseArchiveID parses a 26-character base32hex string into an ArchiveID.
func ParseArchiveID(value string) (ArchiveID, error) {
	raw, err := parse(value)
	return ArchiveID(raw), err
}

func (id ArchiveID) String() string  { return encode([16]byte(id)) }
func (id ArchiveID) Time() time.Time { return timeOf([16]byte(id)) }

// FossilID identifies a fossilised chunk. It is derived deterministically
// from the ChunkID it fossilises (same byte identity, different namespace),
// so re-fossilising an already-fossilised chunk always yields the same
// FossilID, satisfying MakeFossil's idempotence contract.
type FossilID [16]byte

// NewFossilID derives the FossilID a given chunk always fossilises to.
func NewFossilID(chunk ChunkID) FossilID { return FossilID(chunk) }

func (id FossilID) String() string  { return encode([16]byte(id)) }
func (id FossilID) Time() time.Time { return timeOf([16]byte(id)) }

// OriginalChunk recovers the ChunkID this fossil was derived from.
func (id FossilID) OriginalChunk() ChunkID { return ChunkID(id) }

// ClientID identifies a repository user permitted to create archives.
type ClientID [16]byte

// NewClientID returns a fresh, time-ordered ClientID.
func NewClientID() ClientID { return ClientID(newV7()) }

// ParseClientID parses a 26-character base32hex string into a ClientID.
func ParseClientID(value string) (ClientID, error) {
	raw, err := parse(value)
	return ClientID(raw), err
}

func (id ClientID) String() string { return encode([16]byte(id)) }
