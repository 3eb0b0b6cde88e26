package fossil

import (
	"context"
	"errors"
	"iter"
	"slices"
	"testing"
	"time"
)

// memoryRepo is a minimal, deterministic Repository[string, string, string,
// testArchive, testFossil] fixture for exercising CollectFossils and
// DeleteFossils end to end. It is not safe for concurrent use.
type memoryRepo struct {
	clients      []string
	archiveOrder []string
	archives     map[string]testArchive
	fossils      map[string]struct{} // chunk -> currently fossilised
	recovered    []string            // chunks passed to RecoverFossil, in call order
	deleted      []string            // chunks passed to DeleteFossil, in call order
}

func newMemoryRepo(clients ...string) *memoryRepo {
	return &memoryRepo{
		clients:  clients,
		archives: make(map[string]testArchive),
		fossils:  make(map[string]struct{}),
	}
}

func (r *memoryRepo) putArchive(a testArchive) {
	if _, exists := r.archives[a.id]; !exists {
		r.archiveOrder = append(r.archiveOrder, a.id)
	}
	r.archives[a.id] = a
}

// dropArchive removes an archive from the repository, as the prune step that
// follows a collection pass would.
func (r *memoryRepo) dropArchive(id string) {
	delete(r.archives, id)
	r.archiveOrder = slices.DeleteFunc(r.archiveOrder, func(a string) bool { return a == id })
}

func (r *memoryRepo) Clients(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, c := range r.clients {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (r *memoryRepo) Archives(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, id := range r.archiveOrder {
			if !yield(id, nil) {
				return
			}
		}
	}
}

func (r *memoryRepo) FetchArchive(ctx context.Context, id string) (testArchive, error) {
	a, ok := r.archives[id]
	if !ok {
		return testArchive{}, errors.New("memoryRepo: no such archive")
	}
	return a, nil
}

func (r *memoryRepo) MakeFossil(ctx context.Context, chunk string) (testFossil, error) {
	r.fossils[chunk] = struct{}{}
	return testFossil{original: chunk}, nil
}

func (r *memoryRepo) RecoverFossil(ctx context.Context, id testFossil) error {
	delete(r.fossils, id.original)
	r.recovered = append(r.recovered, id.original)
	return nil
}

func (r *memoryRepo) DeleteFossil(ctx context.Context, id testFossil) error {
	delete(r.fossils, id.original)
	r.deleted = append(r.deleted, id.original)
	return nil
}

func (r *memoryRepo) isFossil(chunk string) bool {
	_, ok := r.fossils[chunk]
	return ok
}

func keptSeq(archives ...testArchive) iter.Seq2[KeptArchive[string, testArchive], error] {
	return func(yield func(KeptArchive[string, testArchive], error) bool) {
		for _, a := range archives {
			if !yield(KeptArchive[string, testArchive]{ID: a.id, Archive: a}, nil) {
				return
			}
		}
	}
}

func prunedSeq(archives ...testArchive) iter.Seq2[testArchive, error] {
	return func(yield func(testArchive, error) bool) {
		for _, a := range archives {
			if !yield(a, nil) {
				return
			}
		}
	}
}

func collect(t *testing.T, repo *memoryRepo, kept, pruned []testArchive) Collection[string, string, testFossil] {
	t.Helper()
	col, err := CollectFossils[string, string, string, testArchive, testFossil, *memoryRepo](context.Background(), keptSeq(kept...), prunedSeq(pruned...), repo)
	if err != nil {
		t.Fatalf("CollectFossils: %v", err)
	}
	return col
}

// Scenario 1 — simple reclamation: a pruned archive's unique chunks are
// fossilised, then permanently deleted once the repository is quiescent.
func TestProtocolSimpleReclamation(t *testing.T) {
	repo := newMemoryRepo("alice")
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := newArchive("old", "alice", t0, "a", "b")
	repo.putArchive(old)

	col := collect(t, repo, nil, []testArchive{old})

	if !repo.isFossil("a") || !repo.isFossil("b") {
		t.Fatal("expected both chunks fossilised")
	}

	// The pruned archive is removed before the deletion pass; while it is
	// still stored its chunks count as referenced and would be recovered.
	repo.dropArchive("old")

	// alice is quiescent: her next archive is created strictly after col.Timestamp().
	repo.putArchive(newArchive("new", "alice", col.Timestamp().Add(time.Second), "c"))

	if err := DeleteFossils[string, string, string, testArchive, testFossil, *memoryRepo](context.Background(), col, repo); err != nil {
		t.Fatalf("DeleteFossils: %v", err)
	}
	if repo.isFossil("a") || repo.isFossil("b") {
		t.Fatal("expected fossils permanently deleted")
	}
	if !slices.Contains(repo.deleted, "a") || !slices.Contains(repo.deleted, "b") || len(repo.recovered) != 0 {
		t.Fatalf("expected a and b deleted, got deleted=%v recovered=%v", repo.deleted, repo.recovered)
	}
}

// Scenario: a chunk retained by a kept archive is never fossilised even
// though some other pruned archive also references it.
func TestProtocolRetainWins(t *testing.T) {
	repo := newMemoryRepo("alice")
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	kept := newArchive("kept", "alice", t0, "x", "y")
	pruned := newArchive("pruned", "alice", t0, "y", "z")
	repo.putArchive(kept)
	repo.putArchive(pruned)

	col := collect(t, repo, []testArchive{kept}, []testArchive{pruned})

	if repo.isFossil("y") {
		t.Fatal("chunk retained by a kept archive must never be fossilised")
	}
	if !repo.isFossil("z") {
		t.Fatal("chunk referenced only by the pruned archive must be fossilised")
	}

	if got := col.Seen(); !slices.Contains(got, "kept") {
		t.Fatalf("Seen() = %v, want to contain kept", got)
	}
}

// Scenario: the quiescence gate blocks deletion until every registered
// client has produced an archive strictly after the collection timestamp.
func TestProtocolQuiescenceGateBlocks(t *testing.T) {
	repo := newMemoryRepo("alice", "bob")
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.putArchive(newArchive("old", "alice", t0, "a"))

	col := collect(t, repo, nil, []testArchive{repo.archives["old"]})

	// Only alice becomes quiescent; bob never writes again.
	repo.putArchive(newArchive("new", "alice", col.Timestamp().Add(time.Second), "c"))

	err := DeleteFossils[string, string, string, testArchive, testFossil, *memoryRepo](context.Background(), col, repo)
	if err == nil {
		t.Fatal("expected ErrUncollectible")
	}
	if !IsUncollectible(err) {
		t.Fatalf("expected IsUncollectible(err), got %v", err)
	}
	if !repo.isFossil("a") {
		t.Fatal("fossil must remain pending while uncollectible")
	}
}

// Scenario: a client that stops writing only stops gating deletion once it
// is removed from the registry. While registered, a silent client blocks
// deletion (see TestProtocolQuiescenceGateBlocks); after removal, the
// remaining clients' fresh archives are enough.
func TestProtocolDeregisteredClientNoLongerGatesDeletion(t *testing.T) {
	repo := newMemoryRepo("alice", "retired-bob")
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.putArchive(newArchive("old", "alice", t0, "a"))

	col := collect(t, repo, nil, []testArchive{repo.archives["old"]})
	repo.dropArchive("old")
	repo.putArchive(newArchive("new", "alice", col.Timestamp().Add(time.Second), "c"))

	// retired-bob writes nothing further and is dropped from the registry.
	repo.clients = []string{"alice"}

	if err := DeleteFossils[string, string, string, testArchive, testFossil, *memoryRepo](context.Background(), col, repo); err != nil {
		t.Fatalf("DeleteFossils: %v", err)
	}
	if repo.isFossil("a") {
		t.Fatal("expected fossil deleted")
	}
	if !slices.Contains(repo.deleted, "a") {
		t.Fatalf("expected a deleted, got deleted=%v recovered=%v", repo.deleted, repo.recovered)
	}
}

// Scenario: a fossil is recovered, not deleted, if a fresh archive created
// after collection references its original chunk again.
func TestProtocolRecoversReReferencedFossil(t *testing.T) {
	repo := newMemoryRepo("alice")
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.putArchive(newArchive("old", "alice", t0, "a"))

	col := collect(t, repo, nil, []testArchive{repo.archives["old"]})
	if !repo.isFossil("a") {
		t.Fatal("expected a fossilised")
	}

	// alice re-uploads a referencing the same chunk before deletion runs.
	repo.putArchive(newArchive("new", "alice", col.Timestamp().Add(time.Second), "a"))

	if err := DeleteFossils[string, string, string, testArchive, testFossil, *memoryRepo](context.Background(), col, repo); err != nil {
		t.Fatalf("DeleteFossils: %v", err)
	}
	if repo.isFossil("a") {
		t.Fatal("expected fossil recovered back to a live chunk, not left as a fossil")
	}
	if !slices.Contains(repo.recovered, "a") || slices.Contains(repo.deleted, "a") {
		t.Fatalf("expected a recovered, not deleted: recovered=%v deleted=%v", repo.recovered, repo.deleted)
	}
}

// Scenario: an empty repository with no clients, archives, or chunks
// collects and deletes cleanly as a no-op.
func TestProtocolEmptyRepository(t *testing.T) {
	repo := newMemoryRepo()

	col := collect(t, repo, nil, nil)
	if len(col.Fossils()) != 0 {
		t.Fatalf("expected no fossils, got %v", col.Fossils())
	}

	if err := DeleteFossils[string, string, string, testArchive, testFossil, *memoryRepo](context.Background(), col, repo); err != nil {
		t.Fatalf("DeleteFossils on empty repository: %v", err)
	}
}

func TestProtocolCollectFossilsPropagatesEnumerationError(t *testing.T) {
	repo := newMemoryRepo("alice")
	failing := func(yield func(KeptArchive[string, testArchive], error) bool) {
		yield(KeptArchive[string, testArchive]{}, errors.New("boom"))
	}

	_, err := CollectFossils[string, string, string, testArchive, testFossil, *memoryRepo](context.Background(), failing, prunedSeq(), repo)
	if err == nil {
		t.Fatal("expected error")
	}
	var collErr *CollectionError
	if !errors.As(err, &collErr) {
		t.Fatalf("expected *CollectionError, got %T", err)
	}
}
