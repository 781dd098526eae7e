package cli

import (
	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/feedhue/internal/colour"
	"github.com/jmylchreest/feedhue/internal/config"
	"github.com/jmylchreest/feedhue/internal/download"
	imgpkg "github.com/jmylchreest/feedhue/internal/image"
	"github.com/jmylchreest/feedhue/internal/metrics"
	"github.com/jmylchreest/feedhue/internal/pipeline"
	"github.com/jmylchreest/feedhue/internal/session"
	"github.com/jmylchreest/feedhue/internal/source"
)

// buildAggregator creates the two-stage aggregator. m may be nil.
func buildAggregator(cfg *config.Config, m *metrics.Metrics, logger hclog.Logger) (*colour.Aggregator, error) {
	seedCfg, err := cfg.SeedConfig()
	if err != nil {
		return nil, err
	}

	ac := colour.AggregatorConfig{
		Workers:   cfg.Workers,
		Seed:      seedCfg,
		Extractor: colour.NewExtractor(colour.WithMaxSamples(cfg.MaxSamples)),
		Logger:    logger.Named("aggregate"),
	}
	if m != nil {
		ac.Observer = m
	}
	return colour.NewAggregator(ac)
}

func buildProvider(cfg *config.Config, logger hclog.Logger) *imgpkg.DirectoryProvider {
	return imgpkg.NewDirectoryProvider(
		imgpkg.WithMaxDimension(cfg.MaxDimension),
		imgpkg.WithLogger(logger.Named("images")),
	)
}

func buildDownloader(cfg *config.Config, logger hclog.Logger) (*download.Downloader, error) {
	src, err := source.NewFeedSource(source.FeedConfig{
		BaseURL: cfg.FeedURL,
		Token:   cfg.FeedToken,
		Timeout: cfg.FetchTimeout,
		Retries: cfg.Retries,
		Logger:  logger.Named("feed"),
	})
	if err != nil {
		return nil, err
	}

	return download.New(src, download.Config{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Retries:           cfg.Retries,
		Timeout:           cfg.FetchTimeout,
		AllowPrivateHosts: cfg.AllowPrivateHosts,
		Logger:            logger.Named("download"),
	}), nil
}

// buildPipeline wires the feed, downloader, image provider and aggregator
// into a pipeline that stores its work under sessions. m may be nil.
func buildPipeline(cfg *config.Config, sessions *session.Manager, m *metrics.Metrics, logger hclog.Logger) (*pipeline.Pipeline, error) {
	downloader, err := buildDownloader(cfg, logger)
	if err != nil {
		return nil, err
	}
	aggregator, err := buildAggregator(cfg, m, logger)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Sessions:   sessions,
		Downloader: downloader,
		Provider:   buildProvider(cfg, logger),
		Aggregator: aggregator,
		Logger:     logger.Named("pipeline"),
	}
	if m != nil {
		deps.Observer = m
	}

	return pipeline.New(pipeline.Config{K: cfg.K, FinalK: cfg.FinalK}, deps)
}
