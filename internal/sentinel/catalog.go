// Package sentinel fetches Sentinel-2 L2A scenes from the Copernicus Data
// Space process API.
package sentinel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/forest-guardian/index-composite/internal/cache"
	"github.com/forest-guardian/index-composite/internal/engine"
	"github.com/forest-guardian/index-composite/internal/utils"
)

const Dataset = "COPERNICUS/S2_SR_HARMONIZED"

type Requester interface {
	RequestImage(ctx context.Context, startDate, endDate time.Time, bound orb.Bound) ([]byte, error)
}

type CatalogConfig struct {
	ImageDir     string
	IntervalDays int
	Workers      int
	Progress     bool
}

// Catalog serves scenes requested per interval over the query bounds.
// Intervals without a usable scene are remembered in the availability
// cache and not requested again.
type Catalog struct {
	requester    Requester
	available    cache.CacheService[bool]
	downloads    singleflight.Group
	imageDir     string
	intervalDays int
	workers      int
	progress     bool
}

func NewCatalog(requester Requester, cfg CatalogConfig) *Catalog {
	if cfg.IntervalDays <= 0 {
		cfg.IntervalDays = 5
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Catalog{
		requester:    requester,
		available:    cache.NewFileCache[bool](filepath.Join(cfg.ImageDir, "availability")),
		imageDir:     cfg.ImageDir,
		intervalDays: cfg.IntervalDays,
		workers:      cfg.Workers,
		progress:     cfg.Progress,
	}
}

func (c *Catalog) Scenes(ctx context.Context, q engine.Query) ([]*engine.Scene, error) {
	if q.Dataset != Dataset {
		return nil, fmt.Errorf("unknown dataset %q", q.Dataset)
	}
	if q.Region.IsZero() || q.Start.IsZero() || q.End.IsZero() {
		return nil, fmt.Errorf("scene queries need a region and a date range")
	}

	bound := q.Region.Bound()
	dates := utils.DateRange(q.Start, q.End, c.intervalDays)

	var bar *progressbar.ProgressBar
	if c.progress {
		bar = progressbar.Default(int64(len(dates)), "Fetching scenes")
	} else {
		bar = progressbar.DefaultSilent(int64(len(dates)), "Fetching scenes")
	}

	var (
		mu     sync.Mutex
		scenes = make(map[time.Time]*engine.Scene)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, date := range dates {
		g.Go(func() error {
			defer bar.Add(1)
			end := date.AddDate(0, 0, c.intervalDays)
			if end.After(q.End) {
				end = q.End
			}
			scene, err := c.scene(gctx, date, end, bound)
			if err != nil {
				return err
			}
			if scene != nil {
				mu.Lock()
				scenes[date] = scene
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]*engine.Scene, 0, len(scenes))
	for _, date := range utils.GetSortedKeys(scenes, true) {
		result = append(result, scenes[date])
	}
	return result, nil
}

// scene fetches one interval. Concurrent queries for the same interval
// share a single download.
func (c *Catalog) scene(ctx context.Context, start, end time.Time, bound orb.Bound) (*engine.Scene, error) {
	key := c.available.GenerateKey(bound.Min, bound.Max, start.Format(time.RFC3339), end.Format(time.RFC3339))
	v, err, _ := c.downloads.Do(key, func() (any, error) {
		return c.fetch(ctx, key, start, end, bound)
	})
	if err != nil {
		return nil, err
	}
	return v.(*engine.Scene), nil
}

func (c *Catalog) fetch(ctx context.Context, key string, start, end time.Time, bound orb.Bound) (*engine.Scene, error) {
	if found, ok := c.available.Get(key); ok && !found {
		return nil, nil
	}

	path := filepath.Join(c.imageDir, key[:2], key+".tif")
	if _, err := os.Stat(path); err != nil {
		content, err := c.requester.RequestImage(ctx, start, end, bound)
		if err != nil {
			return nil, fmt.Errorf("error requesting image for %s: %w", start.Format(time.DateOnly), err)
		}
		if err := writeFile(path, content); err != nil {
			return nil, err
		}
	}

	img, err := decodeScene(path)
	if err != nil {
		return nil, err
	}
	if img.Bands[0].Grid.ValidCount() == 0 {
		slog.Debug("no clear pixels", "date", start.Format(time.DateOnly))
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to delete image file", "path", path, "error", err)
		}
		return nil, c.available.Set(key, false)
	}
	if err := c.available.Set(key, true); err != nil {
		return nil, err
	}
	return &engine.Scene{ID: key, Date: start, Image: img}, nil
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp image file: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write image file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write image file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write image file: %w", err)
	}
	return nil
}
