// Package manifeststore persists pending fossil.Collection manifests
// between a collection pass and the deletion pass that later consumes them.
// internal/fossil holds no durable state of its own (see its package
// non-goals); this is the external durability that assumption requires.
//
// Manifests are msgpack-encoded, one file per pending manifest, named by
// repository id and collection timestamp so a directory listing alone
// reveals what's pending and in what order.
package manifeststore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"vaultgc/internal/fossil"
	"vaultgc/internal/logging"
	"vaultgc/internal/repository/ids"
)

// Manifest is the on-disk shape of one pending fossil.Collection: the
// repository it belongs to, the collection timestamp, the fossilised chunk
// IDs, and the archive IDs treated as "kept" while producing them.
type Manifest struct {
	RepositoryID string         `msgpack:"repository_id"`
	Timestamp    time.Time      `msgpack:"timestamp"`
	Fossils      []ids.FossilID `msgpack:"fossils"`
	Seen         []ids.ArchiveID `msgpack:"seen"`
}

// Collection converts the on-disk Manifest back into a fossil.Collection
// ready to hand to fossil.DeleteFossils.
func (m Manifest) Collection() fossil.Collection[ids.ChunkID, ids.ArchiveID, ids.FossilID] {
	return fossil.NewCollectionWithTimestamp[ids.ChunkID, ids.ArchiveID](m.Timestamp, m.Fossils, m.Seen)
}

// FromCollection builds a Manifest from a completed collection pass.
func FromCollection(repositoryID string, c fossil.Collection[ids.ChunkID, ids.ArchiveID, ids.FossilID]) Manifest {
	fossils, seen := c.Deconstruct()
	return Manifest{
		RepositoryID: repositoryID,
		Timestamp:    c.Timestamp(),
		Fossils:      fossils,
		Seen:         seen,
	}
}

// Store persists Manifests as files under a directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a Store rooted at dir. dir is created on first Save if
// it does not already exist.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logging.Default(logger).With("component", "manifeststore"),
	}
}

// fileName derives a sortable, collision-resistant file name from a
// manifest's repository id and timestamp.
func fileName(repositoryID string, timestamp time.Time) string {
	safe := strings.ReplaceAll(repositoryID, string(filepath.Separator), "_")
	return fmt.Sprintf("%s.%d.manifest", safe, timestamp.UnixNano())
}

// Save writes m to disk and returns the path it was written to.
func (s *Store) Save(ctx context.Context, m Manifest) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create manifest directory: %w", err)
	}

	data, err := msgpack.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}

	path := filepath.Join(s.dir, fileName(m.RepositoryID, m.Timestamp))
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename manifest: %w", err)
	}

	s.logger.Info("manifest saved",
		"repository", m.RepositoryID, "path", path,
		"fossils", len(m.Fossils), "seen", len(m.Seen))
	return path, nil
}

// Load reads a single manifest by path.
func (s *Store) Load(ctx context.Context, path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return m, nil
}

// Pending lists every manifest file currently under the store directory for
// the given repository, oldest first by collection timestamp.
func (s *Store) Pending(ctx context.Context, repositoryID string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest directory: %w", err)
	}

	prefix := strings.ReplaceAll(repositoryID, string(filepath.Separator), "_") + "."
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) || !strings.HasSuffix(e.Name(), ".manifest") {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(paths) // nanosecond timestamp prefix sorts chronologically
	return paths, nil
}

// Delete removes a manifest file once its deletion pass has fully
// completed.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete manifest %s: %w", path, err)
	}
	s.logger.Debug("manifest removed", "path", path)
	return nil
}
