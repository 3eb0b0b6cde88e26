package blob

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"vaultgc/internal/logging"
	"vaultgc/internal/repository/ids"
)

const (
	chunksPrefix   = "chunks/"
	fossilsPrefix  = "fossils/"
	archivesPrefix = "archives/"
	clientsPrefix  = "clients/"
)

// shardAlphabet is base32hex's alphabet — the same alphabet ids.ChunkID and
// friends encode to — used to fan listing out across key shards so no
// single prefix becomes a hot partition under a storage backend's
// per-prefix request-rate limits.
const shardAlphabet = "0123456789abcdefghijklmnopqrstuv"

// Archive is the blob-backend Archive capability implementation: a
// read-only view over a decoded manifest.
type Archive struct {
	creator ids.ClientID
	created time.Time
	chunks  []ids.ChunkID
}

func (a Archive) Creator() ids.ClientID      { return a.creator }
func (a Archive) IntoCreator() ids.ClientID  { return a.creator }
func (a Archive) CreationInstant() time.Time { return a.created }

func (a Archive) Chunks() iter.Seq2[ids.ChunkID, error] {
	return func(yield func(ids.ChunkID, error) bool) {
		for _, c := range a.chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// Config configures a Repository.
type Config struct {
	Backend StorageBackend

	// IgnoreGlobs excludes matching object keys from Archives/Clients
	// enumeration, letting operators keep scratch or experimental prefixes
	// out of the protocol's view.
	IgnoreGlobs []string

	// ListRate bounds the rate of shard-listing requests issued against
	// Backend during Archives/Clients enumeration. A nil value disables
	// rate limiting.
	ListRate *rate.Limiter

	Logger *slog.Logger
}

// Repository is the object-storage-backed Repository capability
// implementation. The zero value is not usable; construct with
// NewRepository.
type Repository struct {
	backend     StorageBackend
	ignoreGlobs []string
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewRepository wraps backend in the Repository capability. No I/O happens
// during construction.
func NewRepository(cfg Config) *Repository {
	limiter := cfg.ListRate
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Repository{
		backend:     cfg.Backend,
		ignoreGlobs: cfg.IgnoreGlobs,
		limiter:     limiter,
		logger:      logging.Default(cfg.Logger).With("component", "repository", "backend", "blob"),
	}
}

func chunkKey(id ids.ChunkID) string     { return chunksPrefix + id.String() }
func fossilKey(id ids.FossilID) string   { return fossilsPrefix + id.String() }
func clientKey(id ids.ClientID) string   { return clientsPrefix + id.String() }

func archiveShard(id ids.ArchiveID) string { return id.String()[:1] }
func archiveKey(id ids.ArchiveID) string {
	return archivesPrefix + archiveShard(id) + "/" + id.String() + ".manifest"
}

func (r *Repository) ignored(key string) bool {
	for _, pattern := range r.ignoreGlobs {
		if ok, _ := doublestar.Match(pattern, key); ok {
			return true
		}
	}
	return false
}

// listSharded fans the enumeration of prefix out across every shard,
// bounded by r.limiter, collecting results with errgroup before streaming
// them back lazily. Object storage backends rate-limit per key prefix, so
// spreading a full scan across shard prefixes avoids throttling a single
// hot one.
func (r *Repository) listSharded(ctx context.Context, prefix string) iter.Seq2[string, error] {
	type result struct {
		keys []string
	}

	group, gctx := errgroup.WithContext(ctx)
	results := make([]result, len(shardAlphabet))

	for i, shard := range shardAlphabet {
		i, shard := i, shard
		group.Go(func() error {
			if err := r.limiter.Wait(gctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
			var keys []string
			for key, err := range r.backend.List(gctx, prefix+string(shard)) {
				if err != nil {
					return err
				}
				keys = append(keys, key)
			}
			results[i] = result{keys: keys}
			return nil
		})
	}

	err := group.Wait()

	return func(yield func(string, error) bool) {
		if err != nil {
			yield("", err)
			return
		}
		for _, res := range results {
			for _, key := range res.keys {
				if r.ignored(key) {
					continue
				}
				if !yield(key, nil) {
					return
				}
			}
		}
	}
}

// Clients enumerates every registered client id.
func (r *Repository) Clients(ctx context.Context) iter.Seq2[ids.ClientID, error] {
	keys := r.listSharded(ctx, clientsPrefix)
	return func(yield func(ids.ClientID, error) bool) {
		for key, err := range keys {
			if err != nil {
				yield(ids.ClientID{}, err)
				return
			}
			id, perr := ids.ParseClientID(strings.TrimPrefix(key, clientsPrefix))
			if perr != nil {
				yield(ids.ClientID{}, fmt.Errorf("parse client key %s: %w", key, perr))
				return
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}

// Archives enumerates every ArchiveID in the repository.
func (r *Repository) Archives(ctx context.Context) iter.Seq2[ids.ArchiveID, error] {
	keys := r.listSharded(ctx, archivesPrefix)
	return func(yield func(ids.ArchiveID, error) bool) {
		for key, err := range keys {
			if err != nil {
				yield(ids.ArchiveID{}, err)
				return
			}
			name := strings.TrimSuffix(key[strings.LastIndex(key, "/")+1:], ".manifest")
			id, perr := ids.ParseArchiveID(name)
			if perr != nil {
				yield(ids.ArchiveID{}, fmt.Errorf("parse archive key %s: %w", key, perr))
				return
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}

// FetchArchive downloads and decodes the manifest for id.
func (r *Repository) FetchArchive(ctx context.Context, id ids.ArchiveID) (Archive, error) {
	data, err := r.backend.Get(ctx, archiveKey(id))
	if err != nil {
		return Archive{}, fmt.Errorf("fetch archive %s: %w", id, err)
	}
	m, err := decodeManifest(data)
	if err != nil {
		return Archive{}, fmt.Errorf("decode archive %s: %w", id, err)
	}
	return Archive{creator: m.Creator, created: m.Created, chunks: m.Chunks}, nil
}

// MakeFossil fossilises chunk via a server-side copy to the fossils
// namespace followed by deletion of the live chunk. The copy lands before
// the delete runs, so a concurrent probe always observes the chunk or the
// fossil, never neither. A missing chunk is not an error: an empty fossil
// object is written in its place and the FossilID returned.
func (r *Repository) MakeFossil(ctx context.Context, chunk ids.ChunkID) (ids.FossilID, error) {
	fossilID := ids.NewFossilID(chunk)
	src, dst := chunkKey(chunk), fossilKey(fossilID)

	if exists, err := r.backend.Exists(ctx, dst); err != nil {
		return ids.FossilID{}, fmt.Errorf("probe fossil %s: %w", fossilID, err)
	} else if !exists {
		live, err := r.backend.Exists(ctx, src)
		if err != nil {
			return ids.FossilID{}, fmt.Errorf("probe chunk %s: %w", chunk, err)
		}
		if live {
			if err := r.backend.Copy(ctx, src, dst); err != nil {
				return ids.FossilID{}, fmt.Errorf("copy chunk %s to fossil: %w", chunk, err)
			}
		} else if err := r.backend.Put(ctx, dst, nil); err != nil {
			return ids.FossilID{}, fmt.Errorf("put fossil marker %s: %w", fossilID, err)
		}
	}

	if err := r.backend.Delete(ctx, src); err != nil {
		return ids.FossilID{}, fmt.Errorf("delete fossilised chunk %s: %w", chunk, err)
	}
	r.logger.Debug("fossilised chunk", "chunk", chunk.String())
	return fossilID, nil
}

// RecoverFossil restores id to a live chunk via server-side copy back to
// the chunks namespace, then removes the fossil object. A missing fossil is
// not an error.
func (r *Repository) RecoverFossil(ctx context.Context, id ids.FossilID) error {
	src, dst := fossilKey(id), chunkKey(id.OriginalChunk())

	if exists, err := r.backend.Exists(ctx, src); err != nil {
		return fmt.Errorf("probe fossil %s: %w", id, err)
	} else if !exists {
		return nil
	}

	if err := r.backend.Copy(ctx, src, dst); err != nil {
		return fmt.Errorf("copy fossil %s to chunk: %w", id, err)
	}
	if err := r.backend.Delete(ctx, src); err != nil {
		return fmt.Errorf("delete recovered fossil %s: %w", id, err)
	}
	r.logger.Debug("recovered fossil", "fossil", id.String())
	return nil
}

// DeleteFossil permanently removes a fossil object. A missing fossil is not
// an error.
func (r *Repository) DeleteFossil(ctx context.Context, id ids.FossilID) error {
	if err := r.backend.Delete(ctx, fossilKey(id)); err != nil {
		return fmt.Errorf("delete fossil %s: %w", id, err)
	}
	r.logger.Info("deleted fossil", "fossil", id.String())
	return nil
}

// AddClient registers client as permitted to write archives.
func (r *Repository) AddClient(ctx context.Context, client ids.ClientID) error {
	if err := r.backend.Put(ctx, clientKey(client), nil); err != nil {
		return fmt.Errorf("register client %s: %w", client, err)
	}
	return nil
}

// PutArchive creates a new archive. It implements the client-side "probe,
// then recover-or-re-upload" contract: for each chunk,
// it heads the live-chunk key first; if only the fossil exists, it recovers
// the fossil before referencing the chunk in the new manifest; if neither
// exists, it uploads a fresh chunk marker (content upload is assumed to
// have already landed through the data plane — this call only establishes
// the key the protocol reasons about).
func (r *Repository) PutArchive(ctx context.Context, client ids.ClientID, created time.Time, chunks []ids.ChunkID) (ids.ArchiveID, error) {
	for _, chunk := range chunks {
		live, err := r.backend.Exists(ctx, chunkKey(chunk))
		if err != nil {
			return ids.ArchiveID{}, fmt.Errorf("probe chunk %s: %w", chunk, err)
		}
		if live {
			continue
		}

		fossilID := ids.NewFossilID(chunk)
		fossilised, err := r.backend.Exists(ctx, fossilKey(fossilID))
		if err != nil {
			return ids.ArchiveID{}, fmt.Errorf("probe fossil %s: %w", fossilID, err)
		}
		if fossilised {
			if err := r.RecoverFossil(ctx, fossilID); err != nil {
				return ids.ArchiveID{}, fmt.Errorf("recover fossil for archive reference: %w", err)
			}
			continue
		}

		if err := r.backend.Put(ctx, chunkKey(chunk), nil); err != nil {
			return ids.ArchiveID{}, fmt.Errorf("put chunk marker %s: %w", chunk, err)
		}
	}

	id := ids.NewArchiveID()
	data, err := encodeManifest(manifest{Creator: client, Created: created, Chunks: chunks})
	if err != nil {
		return ids.ArchiveID{}, fmt.Errorf("encode manifest for archive %s: %w", id, err)
	}
	if err := r.backend.Put(ctx, archiveKey(id), data); err != nil {
		return ids.ArchiveID{}, fmt.Errorf("put archive %s: %w", id, err)
	}

	r.logger.Info("created archive", "archive", id.String(), "client", client.String(), "chunks", len(chunks))
	return id, nil
}
