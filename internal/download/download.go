// Package download fetches an account's images for a date range into local
// scratch storage.
package download

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/jmylchreest/feedhue/internal/security"
	"github.com/jmylchreest/feedhue/internal/source"
	httputil "github.com/jmylchreest/feedhue/internal/util/http"
)

const (
	// PostsDir is the subdirectory that receives post images.
	PostsDir = "posts"

	// AvatarName is the base name of the stored profile picture.
	AvatarName = "avatar"

	// maxStalePosts is how many consecutive posts older than the range are
	// read before paging stops. Pinned posts can appear out of date order.
	maxStalePosts = 5

	// MaxImageBytes caps a single downloaded image.
	MaxImageBytes = 20 << 20
)

// Result summarises a download.
type Result struct {
	Username     string
	PostsMatched int
	ImagesSaved  int
	ImagesFailed int
	AvatarPath   string
}

// Config configures a Downloader.
type Config struct {
	// RequestsPerSecond limits image downloads. Zero disables limiting.
	RequestsPerSecond float64

	// Burst is the limiter burst size. Zero means 1.
	Burst int

	// Retries on temporary failures, per image.
	Retries uint64

	// Timeout per image request.
	Timeout time.Duration

	// AllowPrivateHosts permits plain HTTP and private addresses in media URLs.
	AllowPrivateHosts bool

	Logger hclog.Logger
}

// Downloader stores the images an account posted within a date range.
type Downloader struct {
	source  source.Source
	limiter *rate.Limiter
	cfg     Config
	logger  hclog.Logger
}

// New creates a Downloader reading from src.
func New(src source.Source, cfg Config) *Downloader {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Downloader{
		source:  src,
		limiter: rate.NewLimiter(limit, burst),
		cfg:     cfg,
		logger:  logger,
	}
}

// Download writes the profile picture to dir/avatar<ext> and every image of
// every non-video post taken within r to dir/posts/.
// Individual image failures are logged and counted, not returned.
func (d *Downloader) Download(ctx context.Context, username string, r DateRange, dir string) (*Result, error) {
	if err := security.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	postsDir := filepath.Join(dir, PostsDir)
	if err := os.MkdirAll(postsDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create posts directory: %w", err)
	}

	profile, err := d.source.Profile(ctx, username)
	if err != nil {
		return nil, err
	}

	result := &Result{Username: profile.Username}
	if profile.PictureURL != "" {
		avatar := filepath.Join(dir, AvatarName+extension(profile.PictureURL))
		if err := d.save(ctx, profile.PictureURL, avatar); err != nil {
			d.logger.Warn("failed to download profile picture", "username", username, "error", err)
		} else {
			result.AvatarPath = avatar
		}
	}

	stale := 0
	var fetchErr error
	err = d.source.Posts(ctx, username, func(post source.Post) bool {
		if ctx.Err() != nil {
			return false
		}
		if post.TakenAt.Before(r.Since) {
			stale++
			return stale < maxStalePosts
		}
		if !r.Contains(post.TakenAt) {
			return true
		}
		stale = 0
		if post.IsVideo {
			return true
		}

		result.PostsMatched++
		for _, u := range post.ImageURLs {
			dest := filepath.Join(postsDir, Filename(u))
			if err := d.save(ctx, u, dest); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					fetchErr = ctxErr
					return false
				}
				result.ImagesFailed++
				d.logger.Debug("failed to download image", "post", post.ID, "url", u, "error", err)
				continue
			}
			result.ImagesSaved++
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.logger.Info("download complete", "username", username, "range", r.String(),
		"posts", result.PostsMatched, "saved", result.ImagesSaved, "failed", result.ImagesFailed)
	return result, nil
}

// save downloads u into dest, waiting on the rate limiter first.
// Existing files are reused.
func (d *Downloader) save(ctx context.Context, u, dest string) error {
	if err := security.ValidateHTTPURL(u, d.cfg.AllowPrivateHosts); err != nil {
		return err
	}
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	data, err := httputil.Fetch(ctx, u, httputil.FetchOptions{
		Timeout:  d.cfg.Timeout,
		Retries:  d.cfg.Retries,
		MaxBytes: MaxImageBytes,
	})
	if err != nil {
		return err
	}

	tmp := dest + ".part"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to store image: %w", err)
	}
	return nil
}

// Filename creates a deterministic filename from a URL:
// the first 16 bytes of its SHA256 hash plus the URL path's extension.
func Filename(u string) string {
	hash := sha256.Sum256([]byte(u))
	return fmt.Sprintf("%x", hash[:16]) + extension(u)
}

// extension returns the URL path's extension, defaulting to .jpg.
func extension(u string) string {
	p := u
	if parsed, err := url.Parse(u); err == nil {
		p = parsed.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" || len(ext) > 5 {
		return ".jpg"
	}
	return ext
}
