package image

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/hashicorp/go-hclog"
)

// DefaultMaxDimension is the longest side an image keeps before it is downscaled.
const DefaultMaxDimension = 512

// Provider supplies the decoded images stored under a directory.
type Provider interface {
	Images(ctx context.Context, dir string) ([]image.Image, error)
}

// DirectoryProvider decodes every readable image in a directory.
// Files that cannot be decoded are skipped, never reported as errors.
type DirectoryProvider struct {
	loader       Loader
	maxDimension int
	logger       hclog.Logger
}

// ProviderOption configures a DirectoryProvider.
type ProviderOption func(*DirectoryProvider)

// WithMaxDimension sets the downscale threshold. Values below 1 disable downscaling.
func WithMaxDimension(n int) ProviderOption {
	return func(p *DirectoryProvider) {
		p.maxDimension = n
	}
}

// WithLogger sets the provider's logger.
func WithLogger(logger hclog.Logger) ProviderOption {
	return func(p *DirectoryProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLoader replaces the file loader.
func WithLoader(l Loader) ProviderOption {
	return func(p *DirectoryProvider) {
		if l != nil {
			p.loader = l
		}
	}
}

// NewDirectoryProvider creates a DirectoryProvider.
func NewDirectoryProvider(opts ...ProviderOption) *DirectoryProvider {
	p := &DirectoryProvider{
		loader:       NewFileLoader(),
		maxDimension: DefaultMaxDimension,
		logger:       hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Images loads all supported images in dir, in name order.
// An empty directory yields an empty slice; a missing directory is an error.
func (p *DirectoryProvider) Images(ctx context.Context, dir string) ([]image.Image, error) {
	paths, err := ScanDirectoryForImages(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	images := make([]image.Image, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := p.loader.Load(path)
		if err != nil {
			p.logger.Debug("skipping unreadable image", "path", path, "error", err)
			continue
		}
		images = append(images, p.fit(img))
	}

	p.logger.Debug("loaded images", "dir", dir, "found", len(paths), "decoded", len(images))
	return images, nil
}

// Load decodes a single image file and downscales it like Images does.
// Unlike Images, decode failures are returned.
func (p *DirectoryProvider) Load(path string) (image.Image, error) {
	img, err := p.loader.Load(path)
	if err != nil {
		return nil, err
	}
	return p.fit(img), nil
}

// fit downscales img so neither side exceeds maxDimension, preserving aspect ratio.
func (p *DirectoryProvider) fit(img image.Image) image.Image {
	if p.maxDimension < 1 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= p.maxDimension && b.Dy() <= p.maxDimension {
		return img
	}
	return imaging.Fit(img, p.maxDimension, p.maxDimension, imaging.Box)
}
