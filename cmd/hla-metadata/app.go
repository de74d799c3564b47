package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hla-metadata-dictionary/internal/cache"
	"github.com/hla-metadata-dictionary/internal/config"
	"github.com/hla-metadata-dictionary/internal/database"
	"github.com/hla-metadata-dictionary/internal/domain"
	"github.com/hla-metadata-dictionary/internal/repository"
	"github.com/hla-metadata-dictionary/internal/service"
	"github.com/hla-metadata-dictionary/pkg/external"
)

type store interface {
	domain.FactRepository
	domain.DatasetImporter
}

// app holds the wired dependencies of one command invocation.
type app struct {
	config   *domain.Config
	logger   *logrus.Logger
	store    store
	services *service.Services
	closers  []func()
}

func loadConfig() (*domain.Config, *logrus.Logger, error) {
	manager, err := config.NewManager(configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg := manager.GetConfig()
	logger := config.NewLogger(cfg.Logging)
	if used := manager.ConfigFileUsed(); used != "" {
		logger.WithField("file", used).Debug("Loaded configuration")
	}
	return cfg, logger, nil
}

// newStoreApp wires configuration, logging and the fact store.
func newStoreApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{config: cfg, logger: logger}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// newApp wires everything the lookup commands need.
func newApp(ctx context.Context) (*app, error) {
	a, err := newStoreApp(ctx)
	if err != nil {
		return nil, err
	}

	codes, err := a.ambiguityCodes()
	if err != nil {
		a.Close()
		return nil, err
	}
	layer, err := a.cacheLayer(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	services, err := service.NewServices(service.Dependencies{
		Repository:     a.store,
		AmbiguityCodes: codes,
		Cache:          layer,
		Logger:         a.logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build services: %w", err)
	}
	a.services = services
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	storage := a.config.Storage
	switch storage.Driver {
	case config.DriverSQLite:
		s, err := repository.OpenSQLite(storage.SQLitePath, a.logger)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, func() { _ = s.Close() })
	case config.DriverPostgres:
		db, err := database.NewConnection(ctx, storage.Postgres, a.logger)
		if err != nil {
			return err
		}
		a.store = repository.NewPostgresStore(db.Pool, a.logger)
		a.closers = append(a.closers, db.Close)
	default:
		return fmt.Errorf("unknown storage driver: %q", storage.Driver)
	}
	return nil
}

func (a *app) ambiguityCodes() (domain.AmbiguityCodeExpander, error) {
	codes := a.config.AmbiguityCodes
	if codes.FilePath != "" {
		dictionary, err := external.LoadMACDictionaryFile(codes.FilePath)
		if err != nil {
			return nil, err
		}
		a.logger.WithFields(logrus.Fields{
			"file":  codes.FilePath,
			"codes": dictionary.Len(),
		}).Debug("Loaded ambiguity code dictionary")
		return dictionary, nil
	}
	return external.NewMACServiceClient(codes, a.logger), nil
}

// cacheLayer builds the cache. An unreachable Redis only disables the shared tier.
func (a *app) cacheLayer(ctx context.Context) (*cache.Layer, error) {
	cacheConfig := cache.Config{MemorySize: a.config.Cache.MemorySize}
	if a.config.Cache.RedisURL != "" {
		tier, err := cache.DialRedis(ctx, a.config.Cache)
		if err != nil {
			a.logger.WithError(err).Warn("Redis cache unavailable, continuing with the in-memory tier only")
		} else {
			cacheConfig.Redis = tier
			a.closers = append(a.closers, func() { _ = tier.Close() })
		}
	}
	return cache.NewLayer(cacheConfig, a.logger)
}

// dictionary returns the dictionary for --nomenclature-version or the configured default.
func (a *app) dictionary() (*service.Dictionary, error) {
	version := nomenclatureVersion
	if version == "" {
		version = a.config.Nomenclature.DefaultVersion
	}
	if version == "" {
		return nil, errors.New("nomenclature version is required: set --nomenclature-version or nomenclature.default_version")
	}
	return a.services.ForVersion(version), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
