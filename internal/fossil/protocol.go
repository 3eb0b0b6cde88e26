package fossil

import (
	"context"
	"errors"
	"iter"
)

// KeptArchive pairs an ArchiveID with the Archive it names. CollectFossils
// records the ArchiveID in the resulting Collection's seen set.
type KeptArchive[ArchiveID comparable, A any] struct {
	ID      ArchiveID
	Archive A
}

// CollectFossils runs phase one of the protocol: it classifies chunks
// reachable from kept archives as referenced, chunks reachable only from
// pruned archives as fossil candidates, fossilises every candidate through
// repo, and returns a Collection recording the result.
//
// kept and pruned are caller-classified, lazy, non-restartable sequences.
// Processing kept before pruned is a caller convenience only: because the
// referenced set is absorbing, any interleaving of the two produces the
// same result.
func CollectFossils[ChunkID comparable, ClientID comparable, ArchiveID comparable, A Archive[ChunkID, ClientID], F Fossil[ChunkID], R Repository[ChunkID, ClientID, ArchiveID, A, F]](
	ctx context.Context,
	kept iter.Seq2[KeptArchive[ArchiveID, A], error],
	pruned iter.Seq2[A, error],
	repo R,
) (Collection[ChunkID, ArchiveID, F], error) {
	collector := NewCollector[ChunkID]()
	var seen []ArchiveID

	for entry, err := range kept {
		if err != nil {
			return Collection[ChunkID, ArchiveID, F]{}, &CollectionError{Op: "enumerate kept archives", Err: err}
		}
		seen = append(seen, entry.ID)
		if err := collector.RetainArchive(entry.Archive.Chunks()); err != nil {
			return Collection[ChunkID, ArchiveID, F]{}, &CollectionError{Op: "retain archive chunks", Err: err}
		}
	}

	for archive, err := range pruned {
		if err != nil {
			return Collection[ChunkID, ArchiveID, F]{}, &CollectionError{Op: "enumerate pruned archives", Err: err}
		}
		if err := collector.PruneArchive(archive.Chunks()); err != nil {
			return Collection[ChunkID, ArchiveID, F]{}, &CollectionError{Op: "prune archive chunks", Err: err}
		}
	}

	var fossils []F
	for candidate := range collector.FossilCandidates() {
		fossil, err := repo.MakeFossil(ctx, candidate)
		if err != nil {
			return Collection[ChunkID, ArchiveID, F]{}, &CollectionError{Op: "fossilise chunk", Err: err}
		}
		fossils = append(fossils, fossil)
	}

	return NewCollection[ChunkID, ArchiveID](fossils, seen), nil
}

// DeleteFossils runs phase two of the protocol: it determines which
// registered clients have been quiescent with respect to collection's
// timestamp, refuses to proceed (ErrUncollectible) unless all of them have,
// and then resolves every fossil in the collection to either recovery (its
// original chunk is still referenced by some archive outside the seen set)
// or permanent deletion.
//
// DeleteFossils must be called strictly later than the CollectFossils call
// that produced collection, after enough real time has passed for clients
// to either back up again or remain silent.
func DeleteFossils[ChunkID comparable, ClientID comparable, ArchiveID comparable, A Archive[ChunkID, ClientID], F Fossil[ChunkID], R Repository[ChunkID, ClientID, ArchiveID, A, F]](
	ctx context.Context,
	collection Collection[ChunkID, ArchiveID, F],
	repo R,
) error {
	seenArchives := make(map[ArchiveID]struct{}, len(collection.Seen()))
	for _, id := range collection.Seen() {
		seenArchives[id] = struct{}{}
	}

	newReferenced := make(map[ChunkID]struct{})
	witness := NewValidClients[ChunkID, ClientID](collection.Timestamp())

	for archiveID, err := range repo.Archives(ctx) {
		if err != nil {
			return &DeletionError{Op: "enumerate archives", Err: err}
		}
		if _, ok := seenArchives[archiveID]; ok {
			continue
		}

		archive, err := repo.FetchArchive(ctx, archiveID)
		if err != nil {
			return &DeletionError{Op: "fetch archive", Err: err}
		}

		for chunk, err := range archive.Chunks() {
			if err != nil {
				return &DeletionError{Op: "enumerate archive chunks", Err: err}
			}
			newReferenced[chunk] = struct{}{}
		}

		witness.AddOwnedArchive(archive)
	}

	for client, err := range repo.Clients(ctx) {
		if err != nil {
			return &DeletionError{Op: "enumerate clients", Err: err}
		}
		if !witness.Contains(client) {
			return &DeletionError{Op: "quiescence check", Err: ErrUncollectible}
		}
	}

	for _, fossil := range collection.Fossils() {
		if _, ok := newReferenced[fossil.OriginalChunk()]; ok {
			if err := repo.RecoverFossil(ctx, fossil); err != nil {
				return &DeletionError{Op: "recover fossil", Err: err}
			}
			continue
		}
		if err := repo.DeleteFossil(ctx, fossil); err != nil {
			return &DeletionError{Op: "delete fossil", Err: err}
		}
	}

	return nil
}

// IsUncollectible reports whether err is (or wraps) ErrUncollectible.
func IsUncollectible(err error) bool {
	return errors.Is(err, ErrUncollectible)
}
