package colour

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidColourCount is returned when a requested cluster count is outside 1-256.
	ErrInvalidColourCount = errors.New("invalid colour count")

	// ErrInsufficientSamples is returned when an image has fewer usable pixels than requested colours.
	ErrInsufficientSamples = errors.New("insufficient colour samples")

	// ErrEmptyImageSet is returned when aggregation is asked to summarise zero images.
	ErrEmptyImageSet = errors.New("empty image set")

	// ErrInsufficientPooledSamples is returned when the pooled per-image colours
	// are fewer than the requested final palette size.
	ErrInsufficientPooledSamples = errors.New("insufficient pooled colour samples")
)

// MaxColourCount is the largest cluster count accepted by the extractor and aggregator.
const MaxColourCount = 256

func validateColourCount(k int) error {
	if k < 1 {
		return fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidColourCount, k)
	}
	if k > MaxColourCount {
		return fmt.Errorf("%w: %d exceeds maximum of %d", ErrInvalidColourCount, k, MaxColourCount)
	}
	return nil
}
