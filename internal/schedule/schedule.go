// Package schedule runs collection and deletion passes on a cron schedule,
// one job per repository per phase, each named and logged independently so
// a failing collect job never masks its sibling delete job's status.
package schedule

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"vaultgc/internal/audit"
	"vaultgc/internal/fossil"
	"vaultgc/internal/logging"
	"vaultgc/internal/manifeststore"
	"vaultgc/internal/repository/ids"
)

// Repository is the capability a repository backend must provide for
// scheduling. It is exactly internal/fossil's Repository capability
// instantiated over this module's concrete identifier types; FossilID is
// pinned to ids.FossilID because every backend derives fossil identity
// deterministically from the chunk it fossilises (see ids.NewFossilID).
type Repository[A fossil.Archive[ids.ChunkID, ids.ClientID]] interface {
	fossil.Repository[ids.ChunkID, ids.ClientID, ids.ArchiveID, A, ids.FossilID]
}

// RepositoryPolicy binds a repository to its backend, schedule, and the set
// of archives an operator has marked superseded (pruned) as of the most
// recent configuration reload.
type RepositoryPolicy[A fossil.Archive[ids.ChunkID, ids.ClientID]] struct {
	RepositoryID string
	Repo         Repository[A]

	CollectCron string
	DeleteCron  string

	// DeleteGracePeriod is the minimum age a pending manifest must reach
	// (by its collection timestamp) before a deletion pass will attempt
	// it.
	DeleteGracePeriod time.Duration

	// PrunedArchives marks archives to treat as "pruned" in the next
	// collection pass; every other archive is treated as "kept".
	PrunedArchives map[ids.ArchiveID]struct{}
}

// Manager runs collection and deletion jobs for a set of repositories on a
// shared gocron scheduler.
type Manager[A fossil.Archive[ids.ChunkID, ids.ClientID]] struct {
	scheduler gocron.Scheduler
	manifests *manifeststore.Store
	publisher audit.Publisher
	logger    *slog.Logger

	policies map[string]RepositoryPolicy[A]
	jobs     map[string][2]gocron.Job // repositoryID -> [collectJob, deleteJob]
}

// NewManager creates a Manager. publisher may be audit.NewNoop() if audit
// publication is disabled.
func NewManager[A fossil.Archive[ids.ChunkID, ids.ClientID]](manifests *manifeststore.Store, publisher audit.Publisher, logger *slog.Logger) (*Manager[A], error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create cron scheduler: %w", err)
	}
	return &Manager[A]{
		scheduler: s,
		manifests: manifests,
		publisher: publisher,
		logger:    logging.Default(logger).With("component", "schedule"),
		policies:  make(map[string]RepositoryPolicy[A]),
		jobs:      make(map[string][2]gocron.Job),
	}, nil
}

// AddRepository registers collect and delete jobs for one repository. It is
// an error to add the same repository id twice; call RemoveRepository and
// re-add to change a schedule.
func (m *Manager[A]) AddRepository(policy RepositoryPolicy[A]) error {
	if _, exists := m.jobs[policy.RepositoryID]; exists {
		return fmt.Errorf("schedule already exists for repository %s", policy.RepositoryID)
	}

	collectJob, err := m.scheduler.NewJob(
		gocron.CronJob(policy.CollectCron, false),
		gocron.NewTask(m.runCollect, policy.RepositoryID),
		gocron.WithName(collectJobName(policy.RepositoryID)),
	)
	if err != nil {
		return fmt.Errorf("create collect job for repository %s: %w", policy.RepositoryID, err)
	}

	deleteJob, err := m.scheduler.NewJob(
		gocron.CronJob(policy.DeleteCron, false),
		gocron.NewTask(m.runDelete, policy.RepositoryID),
		gocron.WithName(deleteJobName(policy.RepositoryID)),
	)
	if err != nil {
		_ = m.scheduler.RemoveJob(collectJob.ID())
		return fmt.Errorf("create delete job for repository %s: %w", policy.RepositoryID, err)
	}

	m.policies[policy.RepositoryID] = policy
	m.jobs[policy.RepositoryID] = [2]gocron.Job{collectJob, deleteJob}
	m.logger.Info("schedule added", "repository", policy.RepositoryID,
		"collect_cron", policy.CollectCron, "delete_cron", policy.DeleteCron)
	return nil
}

// RemoveRepository stops and removes both jobs for a repository.
func (m *Manager[A]) RemoveRepository(repositoryID string) {
	jobs, ok := m.jobs[repositoryID]
	if !ok {
		return
	}
	for _, j := range jobs {
		if err := m.scheduler.RemoveJob(j.ID()); err != nil {
			m.logger.Warn("failed to remove schedule job", "repository", repositoryID, "error", err)
		}
	}
	delete(m.jobs, repositoryID)
	delete(m.policies, repositoryID)
	m.logger.Info("schedule removed", "repository", repositoryID)
}

// HasRepository reports whether a schedule is currently registered for
// repositoryID.
func (m *Manager[A]) HasRepository(repositoryID string) bool {
	_, ok := m.jobs[repositoryID]
	return ok
}

// Start begins executing all registered jobs.
func (m *Manager[A]) Start() {
	m.scheduler.Start()
	m.logger.Info("scheduler started", "repositories", len(m.jobs))
}

// Stop shuts down the scheduler and waits for running jobs to finish.
func (m *Manager[A]) Stop() error {
	return m.scheduler.Shutdown()
}

func collectJobName(repositoryID string) string { return "fossil-collect-" + repositoryID }
func deleteJobName(repositoryID string) string  { return "fossil-delete-" + repositoryID }

// CollectOnce runs a single collection pass against repo, classifying its
// current archive set per prunedArchives. It is the entry point used both by
// Manager's scheduled collect job and by the CLI's one-shot `collect`
// command.
func CollectOnce[A fossil.Archive[ids.ChunkID, ids.ClientID]](
	ctx context.Context,
	repo Repository[A],
	prunedArchives map[ids.ArchiveID]struct{},
) (fossil.Collection[ids.ChunkID, ids.ArchiveID, ids.FossilID], error) {
	kept, pruned := classify[A](ctx, repo, prunedArchives)
	return fossil.CollectFossils[ids.ChunkID, ids.ClientID, ids.ArchiveID, A, ids.FossilID, Repository[A]](
		ctx, kept, pruned, repo)
}

// DeleteOnce runs a single deletion pass for collection against repo. It is
// the entry point used both by Manager's scheduled delete job and by the
// CLI's one-shot `delete` command.
func DeleteOnce[A fossil.Archive[ids.ChunkID, ids.ClientID]](
	ctx context.Context,
	collection fossil.Collection[ids.ChunkID, ids.ArchiveID, ids.FossilID],
	repo Repository[A],
) error {
	return fossil.DeleteFossils[ids.ChunkID, ids.ClientID, ids.ArchiveID, A, ids.FossilID, Repository[A]](ctx, collection, repo)
}

// runCollect runs one collection pass for repositoryID, classifying
// archives per the registered policy's PrunedArchives set, and persists the
// resulting manifest.
func (m *Manager[A]) runCollect(repositoryID string) {
	policy, ok := m.policies[repositoryID]
	if !ok {
		return
	}
	ctx := context.Background()
	logger := m.logger.With("repository", repositoryID)

	collection, err := CollectOnce[A](ctx, policy.Repo, policy.PrunedArchives)
	if err != nil {
		logger.Error("collection pass failed", "error", err)
		return
	}

	fossils, seen := collection.Deconstruct()
	path, err := m.manifests.Save(ctx, manifeststore.FromCollection(repositoryID, collection))
	if err != nil {
		logger.Error("failed to persist manifest", "error", err)
		return
	}

	logger.Info("collection pass completed", "fossils", len(fossils), "seen", len(seen), "manifest", path)
	audit.PublishBestEffort(ctx, m.publisher, m.logger, audit.EventCollectionCompleted, map[string]string{
		"repository": repositoryID,
		"fossils":    fmt.Sprintf("%d", len(fossils)),
		"manifest":   path,
	})
}

// runDelete attempts a deletion pass for every pending manifest of
// repositoryID old enough to have cleared its configured grace period.
func (m *Manager[A]) runDelete(repositoryID string) {
	policy, ok := m.policies[repositoryID]
	if !ok {
		return
	}
	ctx := context.Background()
	logger := m.logger.With("repository", repositoryID)

	paths, err := m.manifests.Pending(ctx, repositoryID)
	if err != nil {
		logger.Error("failed to list pending manifests", "error", err)
		return
	}

	now := time.Now()
	for _, path := range paths {
		manifest, err := m.manifests.Load(ctx, path)
		if err != nil {
			logger.Error("failed to load manifest", "path", path, "error", err)
			continue
		}
		if now.Sub(manifest.Timestamp) < policy.DeleteGracePeriod {
			continue
		}

		collection := manifest.Collection()
		err = DeleteOnce[A](ctx, collection, policy.Repo)
		if err != nil {
			if fossil.IsUncollectible(err) {
				logger.Info("deletion pass deferred: clients not yet quiescent", "manifest", path)
				audit.PublishBestEffort(ctx, m.publisher, m.logger, audit.EventDeletionUncollectible, map[string]string{
					"repository": repositoryID,
					"manifest":   path,
				})
				continue
			}
			logger.Error("deletion pass failed", "manifest", path, "error", err)
			continue
		}

		if err := m.manifests.Delete(ctx, path); err != nil {
			logger.Error("failed to remove completed manifest", "path", path, "error", err)
		}
		logger.Info("deletion pass completed", "manifest", path, "fossils", len(manifest.Fossils))
		audit.PublishBestEffort(ctx, m.publisher, m.logger, audit.EventDeletionCompleted, map[string]string{
			"repository": repositoryID,
			"manifest":   path,
			"fossils":    fmt.Sprintf("%d", len(manifest.Fossils)),
		})
	}
}

// classify enumerates repo's current archives and splits them into "kept"
// and "pruned" sequences per the prunedArchives set.
func classify[A fossil.Archive[ids.ChunkID, ids.ClientID]](
	ctx context.Context,
	repo Repository[A],
	prunedArchives map[ids.ArchiveID]struct{},
) (iter.Seq2[fossil.KeptArchive[ids.ArchiveID, A], error], iter.Seq2[A, error]) {
	type entry struct {
		id      ids.ArchiveID
		archive A
		err     error
	}

	var entries []entry
	for id, err := range repo.Archives(ctx) {
		if err != nil {
			entries = append(entries, entry{err: err})
			break
		}
		archive, ferr := repo.FetchArchive(ctx, id)
		if ferr != nil {
			entries = append(entries, entry{err: ferr})
			break
		}
		entries = append(entries, entry{id: id, archive: archive})
	}

	kept := func(yield func(fossil.KeptArchive[ids.ArchiveID, A], error) bool) {
		for _, e := range entries {
			if e.err != nil {
				yield(fossil.KeptArchive[ids.ArchiveID, A]{}, e.err)
				return
			}
			if _, pruned := prunedArchives[e.id]; pruned {
				continue
			}
			if !yield(fossil.KeptArchive[ids.ArchiveID, A]{ID: e.id, Archive: e.archive}, nil) {
				return
			}
		}
	}

	isPruned := func(yield func(A, error) bool) {
		for _, e := range entries {
			if e.err != nil {
				var zero A
				yield(zero, e.err)
				return
			}
			if _, pruned := prunedArchives[e.id]; !pruned {
				continue
			}
			if !yield(e.archive, nil) {
				return
			}
		}
	}

	return kept, isPruned
}
