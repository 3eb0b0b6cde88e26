package fossil

import "time"

// Collection is the immutable manifest produced by one collection pass: the
// chunks that were fossilised, the archives that were treated as "kept"
// while deciding which chunks to fossilise (the seen set), and the instant
// at which collection completed.
//
// A Collection must be persisted externally (see internal/manifeststore)
// between the collection pass that produces it and the deletion pass that
// consumes it; internal/fossil holds no durable state of its own.
type Collection[ChunkID comparable, ArchiveID comparable, F Fossil[ChunkID]] struct {
	timestamp time.Time
	fossils   []F
	seen      []ArchiveID
}

// NewCollectionWithTimestamp builds a Collection using a caller-supplied
// timestamp. The caller must ensure timestamp is not earlier than the
// instant at which fossilisation of every entry in fossils completed.
func NewCollectionWithTimestamp[ChunkID comparable, ArchiveID comparable, F Fossil[ChunkID]](timestamp time.Time, fossils []F, seen []ArchiveID) Collection[ChunkID, ArchiveID, F] {
	return Collection[ChunkID, ArchiveID, F]{timestamp: timestamp, fossils: fossils, seen: seen}
}

// NewCollection builds a Collection stamped with the current time. The
// caller must ensure every fossilisation side effect has already completed,
// since time.Now is read at call time.
func NewCollection[ChunkID comparable, ArchiveID comparable, F Fossil[ChunkID]](fossils []F, seen []ArchiveID) Collection[ChunkID, ArchiveID, F] {
	return NewCollectionWithTimestamp[ChunkID, ArchiveID](time.Now(), fossils, seen)
}

// Timestamp returns the collection instant.
func (c Collection[ChunkID, ArchiveID, F]) Timestamp() time.Time {
	return c.timestamp
}

// Fossils returns the fossilised chunks. The returned slice must not be
// mutated by callers.
func (c Collection[ChunkID, ArchiveID, F]) Fossils() []F {
	return c.fossils
}

// Seen returns the ArchiveIDs treated as "kept" during collection. The
// returned slice must not be mutated by callers.
func (c Collection[ChunkID, ArchiveID, F]) Seen() []ArchiveID {
	return c.seen
}

// Deconstruct returns the collection's fossils and seen set.
func (c Collection[ChunkID, ArchiveID, F]) Deconstruct() ([]F, []ArchiveID) {
	return c.fossils, c.seen
}
