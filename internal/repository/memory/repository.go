// Package memory provides a deterministic, mutex-protected Repository
// capability implementation for internal/fossil. It holds every chunk,
// fossil, archive, and client in plain Go maps and draws timestamps from an
// injectable clock, making it suitable both as the package's own test
// fixture and as a reference backend for operators experimenting with the
// protocol without real storage.
package memory

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"vaultgc/internal/logging"
	"vaultgc/internal/repository/ids"
)

// Config configures a Repository.
type Config struct {
	// Now supplies the clock used to stamp archive creation instants. If
	// nil, defaults to time.Now.
	Now func() time.Time

	// Logger for structured logging. If nil, logging is disabled. The
	// repository scopes this logger with component="repository",
	// backend="memory".
	Logger *slog.Logger
}

// Repository is the in-memory reference backend. The zero value is not
// usable; construct with NewRepository.
type Repository struct {
	mu  sync.Mutex
	cfg Config

	clients  map[ids.ClientID]struct{}
	archives map[ids.ArchiveID]Archive
	order    []ids.ArchiveID
	chunks   map[ids.ChunkID]struct{}
	fossils  map[ids.FossilID]struct{}

	logger *slog.Logger
}

// NewRepository returns an empty Repository.
func NewRepository(cfg Config) *Repository {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := logging.Default(cfg.Logger).With("component", "repository", "backend", "memory")
	return &Repository{
		cfg:      cfg,
		clients:  make(map[ids.ClientID]struct{}),
		archives: make(map[ids.ArchiveID]Archive),
		chunks:   make(map[ids.ChunkID]struct{}),
		fossils:  make(map[ids.FossilID]struct{}),
		logger:   logger,
	}
}

// AddClient registers a client as permitted to write to the repository.
func (r *Repository) AddClient(client ids.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client] = struct{}{}
}

// PutChunk inserts a live chunk directly, bypassing archive creation. Useful
// for test setup.
func (r *Repository) PutChunk(chunk ids.ChunkID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks[chunk] = struct{}{}
}

// CreateArchive stores a new archive by creator over the given chunks,
// creating any chunk that does not already exist (live or fossilised) as a
// live chunk. Creation instant is read from the repository clock.
//
// This method implements the client-side "probe, then recover-or-re-upload"
// contract assumed by internal/fossil §4.4: a chunk that currently exists
// only as a fossil is recovered in place before being referenced.
func (r *Repository) CreateArchive(client ids.ClientID, chunks ...ids.ChunkID) ids.ArchiveID {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, chunk := range chunks {
		if _, live := r.chunks[chunk]; live {
			continue
		}
		fossilID := ids.NewFossilID(chunk)
		if _, fossilised := r.fossils[fossilID]; fossilised {
			delete(r.fossils, fossilID)
			r.logger.Debug("recovered fossil on archive reference", "chunk", chunk.String())
		}
		r.chunks[chunk] = struct{}{}
	}

	id := ids.NewArchiveID()
	r.archives[id] = NewArchive(client, r.cfg.Now(), chunks)
	r.order = append(r.order, id)
	r.logger.Info("created archive", "archive", id.String(), "client", client.String(), "chunks", len(chunks))
	return id
}

func (r *Repository) Clients(ctx context.Context) iter.Seq2[ids.ClientID, error] {
	r.mu.Lock()
	snapshot := make([]ids.ClientID, 0, len(r.clients))
	for c := range r.clients {
		snapshot = append(snapshot, c)
	}
	r.mu.Unlock()

	return func(yield func(ids.ClientID, error) bool) {
		for _, c := range snapshot {
			if ctx.Err() != nil {
				yield(ids.ClientID{}, ctx.Err())
				return
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (r *Repository) Archives(ctx context.Context) iter.Seq2[ids.ArchiveID, error] {
	r.mu.Lock()
	snapshot := make([]ids.ArchiveID, len(r.order))
	copy(snapshot, r.order)
	r.mu.Unlock()

	return func(yield func(ids.ArchiveID, error) bool) {
		for _, id := range snapshot {
			if ctx.Err() != nil {
				yield(ids.ArchiveID{}, ctx.Err())
				return
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}

func (r *Repository) FetchArchive(ctx context.Context, id ids.ArchiveID) (Archive, error) {
	if err := ctx.Err(); err != nil {
		return Archive{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.archives[id]
	if !ok {
		return Archive{}, fmt.Errorf("memory: no such archive %s", id)
	}
	return a, nil
}

// MakeFossil renames chunk to a fossil. A missing chunk is not an error: the
// fossil is created (or already exists) regardless.
func (r *Repository) MakeFossil(ctx context.Context, chunk ids.ChunkID) (ids.FossilID, error) {
	if err := ctx.Err(); err != nil {
		return ids.FossilID{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	fossilID := ids.NewFossilID(chunk)
	delete(r.chunks, chunk)
	r.fossils[fossilID] = struct{}{}
	r.logger.Debug("fossilised chunk", "chunk", chunk.String())
	return fossilID, nil
}

// RecoverFossil restores a fossil to a live chunk. A missing fossil is not
// an error and leaves the repository unchanged.
func (r *Repository) RecoverFossil(ctx context.Context, id ids.FossilID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fossils[id]; !ok {
		return nil
	}
	delete(r.fossils, id)
	r.chunks[id.OriginalChunk()] = struct{}{}
	r.logger.Debug("recovered fossil", "fossil", id.String())
	return nil
}

// DeleteFossil permanently removes a fossil. A missing fossil is not an
// error.
func (r *Repository) DeleteFossil(ctx context.Context, id ids.FossilID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.fossils, id)
	r.logger.Info("deleted fossil", "fossil", id.String())
	return nil
}

// HasChunk reports whether chunk currently exists as a live chunk. Intended
// for tests and operator inspection, not consumed by internal/fossil.
func (r *Repository) HasChunk(chunk ids.ChunkID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.chunks[chunk]
	return ok
}

// HasFossil reports whether chunk currently exists as a fossil.
func (r *Repository) HasFossil(chunk ids.ChunkID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.fossils[ids.NewFossilID(chunk)]
	return ok
}
