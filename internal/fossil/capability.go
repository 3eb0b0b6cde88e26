// Package fossil implements the lock-free two-phase fossil collection
// protocol used by content-addressed backup repositories to reclaim
// deduplicated storage without a global lock or leader.
//
// The package is I/O-free: it never stores a chunk, hashes a byte, or opens
// a connection. It consumes storage and archive enumeration through the
// Archive, Repository, and Fossil capability interfaces below, and exposes
// the protocol as two free-standing procedures, CollectFossils and
// DeleteFossils. See the repository, config, schedule, audit, and CLI
// packages for a complete embedding application built on top of it.
package fossil

import (
	"context"
	"iter"
	"time"
)

// Archive describes one archive's provenance and chunk sequence.
//
// ChunkID is generic over the embedding application's concrete chunk
// identifier type; it need only be comparable.
type Archive[ChunkID comparable, ClientID comparable] interface {
	// Creator returns the archive's creator without consuming the archive.
	Creator() ClientID

	// CreationInstant returns the archive's creation instant, drawn from a
	// clock that is monotonic within a single repository.
	CreationInstant() time.Time

	// IntoCreator consumes the archive and returns its creator.
	IntoCreator() ClientID

	// Chunks returns a finite, non-restartable enumeration of the archive's
	// chunks. Iteration stops at the first error yielded.
	Chunks() iter.Seq2[ChunkID, error]
}

// Fossil exposes the original chunk a fossilised chunk was derived from.
type Fossil[ChunkID comparable] interface {
	OriginalChunk() ChunkID
}

// Repository is the storage capability the protocol consumes. Every method
// is idempotent with respect to a missing target: MakeFossil on an already
// fossilised (or already-deleted) chunk, RecoverFossil and DeleteFossil on
// an already-absent fossil, all succeed as no-ops. This is what allows
// either phase of the protocol to be re-run after a crash.
//
// F doubles as the FossilID: it is the value returned by MakeFossil and
// exposes the original chunk it was derived from via Fossil.OriginalChunk.
type Repository[ChunkID comparable, ClientID comparable, ArchiveID comparable, A Archive[ChunkID, ClientID], F Fossil[ChunkID]] interface {
	// Clients enumerates every ClientID permitted to write to the repository.
	Clients(ctx context.Context) iter.Seq2[ClientID, error]

	// Archives enumerates every existing ArchiveID.
	Archives(ctx context.Context) iter.Seq2[ArchiveID, error]

	// FetchArchive fetches one archive's metadata and chunk sequence.
	FetchArchive(ctx context.Context, id ArchiveID) (A, error)

	// MakeFossil renames a chunk to a fossil. A missing chunk is not an
	// error: the repository must behave as though the fossil had already
	// been created and return its FossilID.
	MakeFossil(ctx context.Context, chunk ChunkID) (F, error)

	// RecoverFossil restores a fossil to a chunk. A missing fossil is not
	// an error.
	RecoverFossil(ctx context.Context, id F) error

	// DeleteFossil permanently removes a fossil. A missing fossil is not
	// an error.
	DeleteFossil(ctx context.Context, id F) error
}
