// Package pipeline turns an account name and date range into a palette.
//
// A run creates a scratch session, downloads the account's images into it,
// decodes them and aggregates their colours. Failed runs remove their session;
// successful runs leave it in place so the caller can serve the stored profile
// picture, and the caller removes it afterwards.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/feedhue/internal/colour"
	"github.com/jmylchreest/feedhue/internal/download"
	imgpkg "github.com/jmylchreest/feedhue/internal/image"
	"github.com/jmylchreest/feedhue/internal/session"
)

// Default palette sizes.
const (
	DefaultK      = 5
	DefaultFinalK = 5
)

// Stage names reported to an Observer, alongside the colour package's.
const (
	StageDownload = "download"
	StageDecode   = "decode"
)

// ErrNoImages is returned when the range contains no decodable images.
var ErrNoImages = errors.New("no images found in range")

// Config holds the palette sizes used for every run.
type Config struct {
	// K is the number of colours extracted per image.
	K int

	// FinalK is the size of the returned palette.
	FinalK int
}

// DefaultConfig returns the default palette sizes.
func DefaultConfig() Config {
	return Config{K: DefaultK, FinalK: DefaultFinalK}
}

// Validate checks the palette sizes.
func (c Config) Validate() error {
	if c.K < 1 || c.K > colour.MaxColourCount {
		return fmt.Errorf("%w: per-image colours %d", colour.ErrInvalidColourCount, c.K)
	}
	if c.FinalK < 1 || c.FinalK > colour.MaxColourCount {
		return fmt.Errorf("%w: final colours %d", colour.ErrInvalidColourCount, c.FinalK)
	}
	return nil
}

// Observer receives timings and counts for the stages before aggregation.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	ObserveFailedImages(n int)
}

// Request is one palette request.
type Request struct {
	Username string
	Since    time.Time
	Until    time.Time
}

// Result is a finished palette run.
type Result struct {
	Username   string
	SessionID  string
	Palette    *colour.Palette
	ImageCount int

	// AvatarPath is the stored profile picture, empty if none was saved.
	AvatarPath string

	ImagesFailed int
}

// AvatarAvailable reports whether a profile picture was stored.
func (r *Result) AvatarAvailable() bool {
	return r.AvatarPath != ""
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Sessions   *session.Manager
	Downloader *download.Downloader
	Provider   imgpkg.Provider
	Aggregator *colour.Aggregator
	Observer   Observer
	Logger     hclog.Logger
}

// Pipeline runs palette requests.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New creates a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Sessions == nil || deps.Downloader == nil || deps.Aggregator == nil {
		return nil, errors.New("pipeline requires sessions, downloader and aggregator")
	}
	if deps.Provider == nil {
		deps.Provider = imgpkg.NewDirectoryProvider()
	}
	if deps.Logger == nil {
		deps.Logger = hclog.NewNullLogger()
	}
	return &Pipeline{cfg: cfg, deps: deps}, nil
}

// Config returns the palette sizes in use.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run executes req end to end. On error the session is removed and no
// partial result is returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (result *Result, err error) {
	sess, err := p.deps.Sessions.Create()
	if err != nil {
		return nil, err
	}
	logger := p.deps.Logger.With("session", sess.ID, "username", req.Username)

	defer func() {
		if err != nil {
			if rmErr := p.deps.Sessions.Remove(sess.ID); rmErr != nil {
				logger.Warn("failed to remove session", "error", rmErr)
			}
		}
	}()

	dr := download.DateRange{Since: req.Since, Until: req.Until}
	start := time.Now()
	dl, err := p.deps.Downloader.Download(ctx, req.Username, dr, sess.Dir)
	if err != nil {
		return nil, err
	}
	p.observe(func(o Observer) {
		o.ObserveStage(StageDownload, time.Since(start))
		o.ObserveFailedImages(dl.ImagesFailed)
	})

	start = time.Now()
	images, err := p.deps.Provider.Images(ctx, filepath.Join(sess.Dir, download.PostsDir))
	if err != nil {
		return nil, err
	}
	p.observe(func(o Observer) { o.ObserveStage(StageDecode, time.Since(start)) })
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoImages, req.Username, dr)
	}
	logger.Debug("decoded images", "count", len(images), "downloaded", dl.ImagesSaved)

	palette, err := p.deps.Aggregator.Aggregate(ctx, images, p.cfg.K, p.cfg.FinalK)
	if err != nil {
		return nil, err
	}

	logger.Info("palette computed", "images", len(images), "colours", palette.Len())
	return &Result{
		Username:     dl.Username,
		SessionID:    sess.ID,
		Palette:      palette,
		ImageCount:   len(images),
		AvatarPath:   dl.AvatarPath,
		ImagesFailed: dl.ImagesFailed,
	}, nil
}

func (p *Pipeline) observe(fn func(Observer)) {
	if p.deps.Observer != nil {
		fn(p.deps.Observer)
	}
}
