// Command vaultgc runs the fossil-collection garbage-collection protocol
// against configured repositories.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"vaultgc/internal/audit"
	"vaultgc/internal/config"
	configfile "vaultgc/internal/config/file"
	"vaultgc/internal/fossil"
	"vaultgc/internal/logging"
	"vaultgc/internal/manifeststore"
	"vaultgc/internal/repository/blob"
	"vaultgc/internal/repository/ids"
	"vaultgc/internal/repository/memory"
	"vaultgc/internal/schedule"
)

var version = "dev"

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	rootCmd := &cobra.Command{
		Use:   "vaultgc",
		Short: "Fossil-collection garbage collector for content-addressed repositories",
	}
	rootCmd.PersistentFlags().String("config", "", "path to the config file (default: platform config dir)")

	rootCmd.AddCommand(
		newCollectCmd(logger),
		newDeleteCmd(logger),
		newServeCmd(logger),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func newCollectCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one collection pass immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, _ := cmd.Flags().GetString("repo")
			configPath, _ := cmd.Flags().GetString("config")
			return runCollectOnce(cmd.Context(), logger, resolveConfigPath(configPath), repoID)
		},
	}
	cmd.Flags().String("repo", "", "repository id to collect (required)")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

func newDeleteCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Run one deletion pass against a persisted manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, _ := cmd.Flags().GetString("repo")
			manifestPath, _ := cmd.Flags().GetString("manifest")
			configPath, _ := cmd.Flags().GetString("config")
			return runDeleteOnce(cmd.Context(), logger, resolveConfigPath(configPath), repoID, manifestPath)
		},
	}
	cmd.Flags().String("repo", "", "repository id to delete against (required)")
	cmd.Flags().String("manifest", "", "path to a manifest produced by collect (required)")
	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

func newServeCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load configuration, start the scheduler, and run until signaled",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			return runServe(ctx, logger, resolveConfigPath(configPath))
		},
	}
}

// resolveConfigPath returns flagValue if set, or the platform default
// location for vaultgc's config file.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "vaultgc", "config.json")
}

func manifestDir(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "manifests")
}

func loadConfig(ctx context.Context, logger *slog.Logger, store config.Store) (*config.Config, error) {
	cfg, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg != nil {
		return cfg, nil
	}
	logger.Info("no config found, bootstrapping default configuration")
	if err := config.Bootstrap(ctx, store); err != nil {
		return nil, fmt.Errorf("bootstrap config: %w", err)
	}
	cfg, err = store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bootstrapped config: %w", err)
	}
	return cfg, nil
}

// findRepository locates repoID's configuration, or returns an error if no
// configured repository has that id.
func findRepository(cfg *config.Config, repoID string) (config.RepositoryConfig, error) {
	for _, r := range cfg.Repositories {
		if r.ID == repoID {
			return r, nil
		}
	}
	return config.RepositoryConfig{}, fmt.Errorf("repository %q not found in config", repoID)
}

func findSchedule(cfg *config.Config, repoID string) (config.ScheduleConfig, bool) {
	for _, s := range cfg.Schedules {
		if s.RepositoryID == repoID {
			return s, true
		}
	}
	return config.ScheduleConfig{}, false
}

// buildMemoryRepository constructs an in-memory repository and seeds it
// with the configured client roster.
func buildMemoryRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*memory.Repository, error) {
	repo := memory.NewRepository(memory.Config{Logger: logger})
	for _, c := range cfg.Clients {
		id, err := ids.ParseClientID(c.ID)
		if err != nil {
			return nil, fmt.Errorf("parse client id %q: %w", c.ID, err)
		}
		repo.AddClient(id)
	}
	return repo, nil
}

// buildBlobRepository constructs an object-storage repository from the
// repository config's params, selecting the driver from the "driver" param
// (s3, azure, or gcs), and seeds it with the configured client roster.
func buildBlobRepository(ctx context.Context, repoCfg config.RepositoryConfig, cfg *config.Config, logger *slog.Logger) (*blob.Repository, error) {
	driver := repoCfg.Params["driver"]
	repo, err := blob.NewFromParams(ctx, driver, repoCfg.Params, logger)
	if err != nil {
		return nil, err
	}
	for _, c := range cfg.Clients {
		id, err := ids.ParseClientID(c.ID)
		if err != nil {
			return nil, fmt.Errorf("parse client id %q: %w", c.ID, err)
		}
		if err := repo.AddClient(ctx, id); err != nil {
			return nil, fmt.Errorf("register client %s: %w", id, err)
		}
	}
	return repo, nil
}

func runCollectOnce(ctx context.Context, logger *slog.Logger, configPath, repoID string) error {
	store := configfile.NewStore(configPath)
	cfg, err := loadConfig(ctx, logger, store)
	if err != nil {
		return err
	}
	repoCfg, err := findRepository(cfg, repoID)
	if err != nil {
		return err
	}
	manifests := manifeststore.NewStore(manifestDir(configPath), logger)

	switch repoCfg.Backend {
	case "memory":
		repo, err := buildMemoryRepository(ctx, cfg, logger)
		if err != nil {
			return err
		}
		collection, err := schedule.CollectOnce[memory.Archive](ctx, repo, nil)
		if err != nil {
			return fmt.Errorf("collection pass: %w", err)
		}
		return saveAndPrintManifest(ctx, manifests, repoID, collection)
	case "blob":
		repo, err := buildBlobRepository(ctx, repoCfg, cfg, logger)
		if err != nil {
			return err
		}
		collection, err := schedule.CollectOnce[blob.Archive](ctx, repo, nil)
		if err != nil {
			return fmt.Errorf("collection pass: %w", err)
		}
		return saveAndPrintManifest(ctx, manifests, repoID, collection)
	default:
		return fmt.Errorf("unknown repository backend: %q", repoCfg.Backend)
	}
}

func saveAndPrintManifest(ctx context.Context, manifests *manifeststore.Store, repoID string, collection fossil.Collection[ids.ChunkID, ids.ArchiveID, ids.FossilID]) error {
	fossils, seen := collection.Deconstruct()
	path, err := manifests.Save(ctx, manifeststore.FromCollection(repoID, collection))
	if err != nil {
		return fmt.Errorf("persist manifest: %w", err)
	}
	fmt.Printf("collected %d fossils, saw %d archives\nmanifest: %s\n", len(fossils), len(seen), path)
	return nil
}

func runDeleteOnce(ctx context.Context, logger *slog.Logger, configPath, repoID, manifestPath string) error {
	store := configfile.NewStore(configPath)
	cfg, err := loadConfig(ctx, logger, store)
	if err != nil {
		return err
	}
	repoCfg, err := findRepository(cfg, repoID)
	if err != nil {
		return err
	}
	manifests := manifeststore.NewStore(manifestDir(configPath), logger)
	m, err := manifests.Load(ctx, manifestPath)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	switch repoCfg.Backend {
	case "memory":
		repo, err := buildMemoryRepository(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if err := schedule.DeleteOnce[memory.Archive](ctx, m.Collection(), repo); err != nil {
			return reportDeleteResult(err)
		}
	case "blob":
		repo, err := buildBlobRepository(ctx, repoCfg, cfg, logger)
		if err != nil {
			return err
		}
		if err := schedule.DeleteOnce[blob.Archive](ctx, m.Collection(), repo); err != nil {
			return reportDeleteResult(err)
		}
	default:
		return fmt.Errorf("unknown repository backend: %q", repoCfg.Backend)
	}

	if err := manifests.Delete(ctx, manifestPath); err != nil {
		return fmt.Errorf("remove completed manifest: %w", err)
	}
	fmt.Printf("deleted %d fossils\n", len(m.Fossils))
	return nil
}

func reportDeleteResult(err error) error {
	if fossil.IsUncollectible(err) {
		fmt.Println("deletion deferred: not every registered client is quiescent yet")
		return nil
	}
	return fmt.Errorf("deletion pass: %w", err)
}

// runServe loads configuration, builds a scheduler per configured
// repository backend, starts both, watches the config file for changes with
// fsnotify, and blocks until ctx is canceled.
func runServe(ctx context.Context, logger *slog.Logger, configPath string) error {
	store := configfile.NewStore(configPath)
	cfg, err := loadConfig(ctx, logger, store)
	if err != nil {
		return err
	}

	publisher, err := buildPublisher(cfg.Audit, logger)
	if err != nil {
		return fmt.Errorf("build audit publisher: %w", err)
	}
	defer publisher.Close()

	manifests := manifeststore.NewStore(manifestDir(configPath), logger)

	memoryManager, err := schedule.NewManager[memory.Archive](manifests, publisher, logger)
	if err != nil {
		return fmt.Errorf("create memory-backend scheduler: %w", err)
	}
	blobManager, err := schedule.NewManager[blob.Archive](manifests, publisher, logger)
	if err != nil {
		return fmt.Errorf("create blob-backend scheduler: %w", err)
	}

	if err := applyConfig(ctx, cfg, logger, memoryManager, blobManager); err != nil {
		return fmt.Errorf("apply config: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		logger.Warn("failed to watch config directory", "error", err)
	}

	memoryManager.Start()
	blobManager.Start()
	logger.Info("vaultgc started", "config", configPath)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			if err := memoryManager.Stop(); err != nil {
				logger.Error("memory scheduler shutdown error", "error", err)
			}
			if err := blobManager.Stop(); err != nil {
				logger.Error("blob scheduler shutdown error", "error", err)
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(configPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logger.Info("config file changed, reloading", "path", event.Name)
			newCfg, err := store.Load(ctx)
			if err != nil || newCfg == nil {
				logger.Error("failed to reload config, keeping previous schedule", "error", err)
				continue
			}
			reloadSchedules(memoryManager, blobManager, cfg, newCfg, logger)
			cfg = newCfg
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}

func buildPublisher(cfg config.AuditConfig, logger *slog.Logger) (audit.Publisher, error) {
	if !cfg.Enabled {
		return audit.NewNoop(), nil
	}
	var sasl *audit.SASLConfig
	if cfg.SASLUser != "" {
		sasl = &audit.SASLConfig{Mechanism: "plain", User: cfg.SASLUser, Password: cfg.SASLPass}
	}
	return audit.New(audit.Config{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		TLS:     cfg.TLSEnabled,
		SASL:    sasl,
		Logger:  logger,
	})
}

// applyConfig registers every configured repository with the scheduler
// matching its backend type.
func applyConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger, memoryManager *schedule.Manager[memory.Archive], blobManager *schedule.Manager[blob.Archive]) error {
	for _, repoCfg := range cfg.Repositories {
		sched, ok := findSchedule(cfg, repoCfg.ID)
		if !ok {
			logger.Warn("repository has no schedule configured, skipping", "repository", repoCfg.ID)
			continue
		}
		grace, err := time.ParseDuration(sched.DeleteGracePeriod)
		if err != nil {
			return fmt.Errorf("parse delete grace period for repository %s: %w", repoCfg.ID, err)
		}

		switch repoCfg.Backend {
		case "memory":
			repo, err := buildMemoryRepository(ctx, cfg, logger)
			if err != nil {
				return err
			}
			err = memoryManager.AddRepository(schedule.RepositoryPolicy[memory.Archive]{
				RepositoryID:      repoCfg.ID,
				Repo:              repo,
				CollectCron:       sched.CollectCron,
				DeleteCron:        sched.DeleteCron,
				DeleteGracePeriod: grace,
			})
			if err != nil {
				return fmt.Errorf("register repository %s: %w", repoCfg.ID, err)
			}
		case "blob":
			repo, err := buildBlobRepository(ctx, repoCfg, cfg, logger)
			if err != nil {
				return err
			}
			err = blobManager.AddRepository(schedule.RepositoryPolicy[blob.Archive]{
				RepositoryID:      repoCfg.ID,
				Repo:              repo,
				CollectCron:       sched.CollectCron,
				DeleteCron:        sched.DeleteCron,
				DeleteGracePeriod: grace,
			})
			if err != nil {
				return fmt.Errorf("register repository %s: %w", repoCfg.ID, err)
			}
		default:
			return fmt.Errorf("unknown repository backend: %q", repoCfg.Backend)
		}
	}
	return nil
}

// reloadSchedules removes every previously-registered repository and
// re-applies the new configuration. This is coarser than a diff-based
// reload but keeps the scheduler's state trivially consistent with
// whatever is on disk.
func reloadSchedules(memoryManager *schedule.Manager[memory.Archive], blobManager *schedule.Manager[blob.Archive], oldCfg, newCfg *config.Config, logger *slog.Logger) {
	for _, r := range oldCfg.Repositories {
		memoryManager.RemoveRepository(r.ID)
		blobManager.RemoveRepository(r.ID)
	}
	if err := applyConfig(context.Background(), newCfg, logger, memoryManager, blobManager); err != nil {
		logger.Error("failed to apply reloaded config", "error", err)
	}
}
