package colour

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"runtime"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/feedhue/internal/seed"
)

// Stage names reported to an Observer.
const (
	StageExtract   = "extract"
	StageAggregate = "aggregate"
)

// Observer receives timings from an aggregation run.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	ObserveImages(n int)
}

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// Workers bounds the number of images extracted concurrently.
	// Zero uses runtime.GOMAXPROCS.
	Workers int

	// Seed controls reproducibility of both clustering stages.
	Seed seed.Config

	// Extractor performs per-image extraction. Nil uses NewExtractor().
	Extractor *Extractor

	// Logger receives debug timings. Nil discards.
	Logger hclog.Logger

	// Observer receives stage timings. Optional.
	Observer Observer
}

// Aggregator reduces a collection of images to a single palette.
type Aggregator struct {
	extractor *Extractor
	kmeans    *KMeans
	workers   int
	seed      seed.Config
	logger    hclog.Logger
	observer  Observer
}

// NewAggregator creates an Aggregator from cfg.
func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if cfg.Seed.Mode == "" {
		cfg.Seed = seed.DefaultConfig()
	}
	if err := cfg.Seed.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Extractor == nil {
		cfg.Extractor = NewExtractor()
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Aggregator{
		extractor: cfg.Extractor,
		kmeans:    cfg.Extractor.kmeans,
		workers:   cfg.Workers,
		seed:      cfg.Seed,
		logger:    cfg.Logger,
		observer:  cfg.Observer,
	}, nil
}

// Aggregate extracts k dominant colours from every image, pools them, and
// clusters the pool into exactly finalK colours.
//
// The context is checked before each image and before the final clustering
// stage. Any per-image failure aborts the run; no partial palette is returned.
func (a *Aggregator) Aggregate(ctx context.Context, images []image.Image, k, finalK int) (*Palette, error) {
	if len(images) == 0 {
		return nil, ErrEmptyImageSet
	}
	if err := validateColourCount(k); err != nil {
		return nil, fmt.Errorf("per-image colours: %w", err)
	}
	if err := validateColourCount(finalK); err != nil {
		return nil, fmt.Errorf("final colours: %w", err)
	}
	if pooled := len(images) * k; pooled < finalK {
		return nil, fmt.Errorf("%w: %d images x %d colours = %d pooled, %d requested",
			ErrInsufficientPooledSamples, len(images), k, pooled, finalK)
	}

	start := time.Now()
	perImage := make([][]RGB, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, img := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := seed.Calculate(img, a.seed)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			palette, err := a.extractor.ExtractDominantColours(img, k, s)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			perImage[i] = palette.ToRGBSlice()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	a.observe(StageExtract, time.Since(start))
	if a.observer != nil {
		a.observer.ObserveImages(len(images))
	}
	a.logger.Debug("extracted per-image colours", "images", len(images), "k", k, "duration", time.Since(start))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Pool in input order so the second stage is independent of scheduling.
	pooled := make([]RGB, 0, len(images)*k)
	for _, colours := range perImage {
		pooled = append(pooled, colours...)
	}
	if len(pooled) < finalK {
		return nil, fmt.Errorf("%w: %d pooled, %d requested", ErrInsufficientPooledSamples, len(pooled), finalK)
	}

	aggStart := time.Now()
	s, err := seed.FromBytes(rgbBytes(pooled), a.seed)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(s)) // #nosec G404 -- clustering, not security
	centroids, weights, err := a.kmeans.Cluster(pooled, finalK, rng)
	if err != nil {
		return nil, err
	}
	a.observe(StageAggregate, time.Since(aggStart))
	a.logger.Debug("aggregated palette", "pooled", len(pooled), "final_k", finalK, "duration", time.Since(aggStart))

	return newPaletteFromRGB(centroids, weights), nil
}

func (a *Aggregator) observe(stage string, d time.Duration) {
	if a.observer != nil {
		a.observer.ObserveStage(stage, d)
	}
}

func rgbBytes(colours []RGB) []byte {
	b := make([]byte, 0, len(colours)*3)
	for _, c := range colours {
		b = append(b, c.R, c.G, c.B)
	}
	return b
}
