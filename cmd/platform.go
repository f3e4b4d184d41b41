package main

import (
	"context"
	"fmt"
	"time"

	"github.com/forest-guardian/index-composite/internal/engine"
	"github.com/forest-guardian/index-composite/internal/export"
	"github.com/forest-guardian/index-composite/internal/notification"
	"github.com/forest-guardian/index-composite/internal/pipeline"
	"github.com/forest-guardian/index-composite/internal/remote"
	"github.com/forest-guardian/index-composite/internal/sentinel"
)

type platform interface {
	pipeline.Platform
	Status(ctx context.Context, id string) (export.Job, error)
	Wait(ctx context.Context, id string, interval time.Duration) (export.Job, error)
}

// localPlatform wires the Copernicus catalog into an engine backed by the
// job database.
type localPlatform struct {
	*engine.Engine
	evaluator *engine.Evaluator
	store     *export.Store
}

func newLocalPlatform(progress bool) (*localPlatform, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	client, err := sentinel.NewClient(sentinel.ConfigFromEnv())
	if err != nil {
		return nil, err
	}
	catalog := sentinel.NewCatalog(client, sentinel.CatalogConfig{
		ImageDir:     cfg.Sentinel.ImageDir,
		IntervalDays: cfg.Sentinel.IntervalDays,
		Workers:      cfg.Sentinel.Workers,
		Progress:     progress,
	})
	store, err := export.NewStore(cfg.Engine.JobDB)
	if err != nil {
		return nil, err
	}

	evaluator := engine.NewEvaluator(catalog, engine.WithCache(cfg.Engine.CacheSize))
	eng := engine.New(engine.Config{
		OutputDir: cfg.Engine.OutputDir,
		Workers:   cfg.Engine.Workers,
	}, evaluator, store, engine.NewGDALWriter(), notification.DiscordFromEnv())

	return &localPlatform{Engine: eng, evaluator: evaluator, store: store}, nil
}

func (p *localPlatform) Close() error {
	p.Engine.Close()
	return p.store.Close()
}

type remotePlatform struct {
	*remote.Client
}

func openPlatform(progress bool) (platform, func() error, error) {
	if remoteAddr != "" {
		client, err := remote.NewClient(remoteAddr)
		if err != nil {
			return nil, nil, err
		}
		return remotePlatform{client}, client.Close, nil
	}
	local, err := newLocalPlatform(progress)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start local platform: %w", err)
	}
	return local, local.Close, nil
}
