package memory

import (
	"iter"
	"time"

	"vaultgc/internal/repository/ids"
)

// Archive is the in-memory Archive capability implementation: an immutable
// snapshot of a creator, creation instant, and ordered chunk list.
type Archive struct {
	creator ids.ClientID
	created time.Time
	chunks  []ids.ChunkID
}

// NewArchive builds an Archive. chunks is copied; the returned value is
// independent of the backing slice.
func NewArchive(creator ids.ClientID, created time.Time, chunks []ids.ChunkID) Archive {
	cp := make([]ids.ChunkID, len(chunks))
	copy(cp, chunks)
	return Archive{creator: creator, created: created, chunks: cp}
}

func (a Archive) Creator() ids.ClientID        { return a.creator }
func (a Archive) IntoCreator() ids.ClientID    { return a.creator }
func (a Archive) CreationInstant() time.Time   { return a.created }

// Chunks returns a finite, non-restartable enumeration of the archive's
// chunks. The in-memory backend never fails mid-enumeration.
func (a Archive) Chunks() iter.Seq2[ids.ChunkID, error] {
	return func(yield func(ids.ChunkID, error) bool) {
		for _, c := range a.chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}
