package fossil

import (
	"iter"
	"time"
)

// chunkSeq returns an iter.Seq2 yielding each of chunks in order. If failAt
// is >= 0, iteration stops after yielding chunks[:failAt] and reports a
// sentinel error instead of yielding chunks[failAt].
func chunkSeq(chunks []string, failAt int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i, chunk := range chunks {
			if failAt >= 0 && i == failAt {
				yield("", errChunkEnumeration)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

var errChunkEnumeration = errTest("fixture: chunk enumeration failed")

type errTest string

func (e errTest) Error() string { return string(e) }

// testArchive is a minimal Archive[string, string] fixture: a fixed creator,
// creation instant, and chunk list.
type testArchive struct {
	id       string
	creator  string
	created  time.Time
	chunks   []string
}

func newArchive(id, creator string, created time.Time, chunks ...string) testArchive {
	return testArchive{id: id, creator: creator, created: created, chunks: chunks}
}

func (a testArchive) Creator() string         { return a.creator }
func (a testArchive) IntoCreator() string     { return a.creator }
func (a testArchive) CreationInstant() time.Time { return a.created }
func (a testArchive) Chunks() iter.Seq2[string, error] {
	return chunkSeq(a.chunks, -1)
}
