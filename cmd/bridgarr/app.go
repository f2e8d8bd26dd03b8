package main

import (
	"fmt"
	"path/filepath"

	"github.com/amaumene/bridgarr/internal/config"
	"github.com/amaumene/bridgarr/internal/controllers"
	"github.com/amaumene/bridgarr/internal/models"
	"github.com/amaumene/bridgarr/internal/queue"
	"github.com/amaumene/bridgarr/internal/services/debrid"
	"github.com/amaumene/bridgarr/internal/services/tmdb"
	"github.com/amaumene/bridgarr/internal/services/torrentio"
	"github.com/amaumene/bridgarr/internal/utils"
	"github.com/google/wire"
	"github.com/sirupsen/logrus"
)

// app holds the wired components shared by the subcommands
type app struct {
	store       models.Store
	providers   *debrid.Registry
	queue       queue.Queue
	acquisition *controllers.AcquisitionController
	refresh     *controllers.RefreshController
	cleanup     *controllers.CleanupController
}

var appSet = wire.NewSet(
	provideStore,
	provideProviders,
	provideMetadata,
	provideResolver,
	provideQueue,
	provideSearch,
	provideDownload,
	provideAcquisitionConfig,
	provideRefreshConfig,
	provideCleanup,
	controllers.NewAcquisitionController,
	controllers.NewRefreshController,
	wire.Bind(new(controllers.MetadataProvider), new(*tmdb.Client)),
	wire.Bind(new(controllers.ProviderSelector), new(*debrid.Registry)),
	wire.Bind(new(controllers.ProviderLookup), new(*debrid.Registry)),
	wire.Struct(new(app), "*"),
)

func provideStore(cfg *config.Config, logger *logrus.Logger) (models.Store, func(), error) {
	store, err := models.NewDatabase(cfg.StoreDriver, cfg.DatabaseFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"driver":     cfg.StoreDriver,
		"config_dir": filepath.Dir(cfg.DatabaseFile),
	}).Info("Database initialized")

	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	}
	return store, cleanup, nil
}

func provideProviders(cfg *config.Config, logger *logrus.Logger) (*debrid.Registry, error) {
	providers, err := debrid.NewRegistryFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize debrid providers: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"providers": providers.Names(),
		"default":   cfg.DebridProvider,
	}).Info("Debrid providers initialized")
	return providers, nil
}

func provideMetadata(cfg *config.Config) *tmdb.Client {
	return tmdb.NewClient(cfg.TMDbAPIKey,
		tmdb.WithBaseURL(cfg.TMDbBaseURL),
		tmdb.WithCacheTTL(cfg.TMDbCacheTTL),
	)
}

// provideResolver returns nil without a Torrentio URL; every acquisition then
// fails with source not found
func provideResolver(cfg *config.Config, logger *logrus.Logger) controllers.SourceResolver {
	if cfg.TorrentioURL == "" {
		logger.Warn("TORRENTIO_URL is empty, every acquisition will fail with source not found")
		return nil
	}

	blacklist, err := utils.LoadBlacklist(cfg.BlacklistFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load blacklist, continuing without it")
		blacklist = utils.NewBlacklist()
	} else {
		logger.WithField("terms", blacklist.Len()).Info("Blacklist loaded")
	}
	return torrentio.NewClient(cfg.TorrentioURL, cfg.TorrentioOptions, logger, torrentio.WithBlacklist(blacklist))
}

func provideQueue(cfg *config.Config, logger *logrus.Logger) queue.Queue {
	if cfg.RedisAddr != "" {
		logger.WithField("redis", cfg.RedisAddr).Info("Using Redis job queue")
		return queue.NewAsynqQueue(cfg.RedisAddr, cfg.WorkerConcurrency, logger)
	}
	logger.Info("Using in-process job queue")
	return queue.NewLocalQueue(cfg.QueueSize, cfg.WorkerConcurrency, logger)
}

func provideSearch(cfg *config.Config, resolver controllers.SourceResolver, logger *logrus.Logger) *controllers.SearchController {
	return controllers.NewSearchController(resolver, cfg.SourceTimeout, logger)
}

func provideDownload(cfg *config.Config, store models.Store, logger *logrus.Logger) *controllers.DownloadController {
	return controllers.NewDownloadController(store, cfg.ProviderTimeout, cfg.CacheMaxRetries, cfg.CacheRetryInitial, logger)
}

func provideAcquisitionConfig(cfg *config.Config) controllers.AcquisitionConfig {
	return controllers.AcquisitionConfig{
		JobLease:          cfg.JobLease,
		MetadataTimeout:   cfg.MetadataTimeout,
		MaxEpisodesPerJob: cfg.MaxEpisodesPerJob,
	}
}

func provideRefreshConfig(cfg *config.Config) controllers.RefreshConfig {
	return controllers.RefreshConfig{
		Window:      cfg.LinkRefreshWindow,
		LazyWindow:  cfg.LazyRefreshWindow,
		Timeout:     cfg.LinkRefreshTimeout,
		Concurrency: cfg.LinkRefreshConcurrency,
		MaxFailures: cfg.LinkMaxFailures,
	}
}

func provideCleanup(cfg *config.Config, store models.Store, logger *logrus.Logger) *controllers.CleanupController {
	return controllers.NewCleanupController(store, cfg.DeadLinkRetention, logger)
}
