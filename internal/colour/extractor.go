package colour

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
)

// DefaultMaxSamples caps the number of pixels clustered per image.
const DefaultMaxSamples = 2000

// Extractor finds the dominant colours of a single image.
type Extractor struct {
	kmeans     *KMeans
	maxSamples int
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithKMeans sets the clustering implementation.
func WithKMeans(km *KMeans) ExtractorOption {
	return func(e *Extractor) {
		if km != nil {
			e.kmeans = km
		}
	}
}

// WithMaxSamples sets the per-image pixel sample cap. Values below 1 disable sampling.
func WithMaxSamples(n int) ExtractorOption {
	return func(e *Extractor) {
		e.maxSamples = n
	}
}

// NewExtractor creates an Extractor with default settings.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		kmeans:     NewKMeans(),
		maxSamples: DefaultMaxSamples,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractDominantColours returns exactly k colours summarising img.
// Clustering is seeded with seed, so identical inputs give identical output.
// Fails with ErrInsufficientSamples when the image has fewer usable
// (non-transparent) pixels than k.
func (e *Extractor) ExtractDominantColours(img image.Image, k int, seed int64) (*Palette, error) {
	if img == nil {
		return nil, fmt.Errorf("image cannot be nil")
	}
	if err := validateColourCount(k); err != nil {
		return nil, err
	}

	samples := SamplePixels(img, e.maxSamples)
	if len(samples) < k {
		return nil, fmt.Errorf("%w: image has %d usable pixels, %d colours requested",
			ErrInsufficientSamples, len(samples), k)
	}

	rng := rand.New(rand.NewSource(seed)) // #nosec G404 -- clustering, not security
	centroids, weights, err := e.kmeans.Cluster(samples, k, rng)
	if err != nil {
		return nil, err
	}

	return newPaletteFromRGB(centroids, weights), nil
}

// SamplePixels flattens img into un-premultiplied colour samples, skipping fully
// transparent pixels.
// Images with more than maxSamples pixels are sampled on a regular grid that
// spans the whole image and yields at most maxSamples points;
// maxSamples below 1 keeps every pixel.
func SamplePixels(img image.Image, maxSamples int) []RGB {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}

	step := 1
	if maxSamples > 0 && w*h > maxSamples {
		step = max(int(math.Ceil(math.Sqrt(float64(w*h)/float64(maxSamples)))), 1)
		for ceilDiv(w, step)*ceilDiv(h, step) > maxSamples {
			step++
		}
	}

	samples := make([]RGB, 0, ceilDiv(w, step)*ceilDiv(h, step))
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A == 0 {
				continue
			}
			samples = append(samples, RGB{R: c.R, G: c.G, B: c.B})
		}
	}

	return samples
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
