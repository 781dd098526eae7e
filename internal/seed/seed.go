// Package seed provides deterministic seed generation for k-means clustering.
// Seeds make palette extraction reproducible: the same images with the same
// configuration always produce the same palette.
package seed

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"image"
	"math/rand"
	"slices"
	"time"
)

// Mode determines how the random seed for k-means clustering is generated.
type Mode string

const (
	// ModeContent generates seed from image content hash (default, deterministic by content).
	ModeContent Mode = "content"
	// ModeManual mixes a user-provided value with the content hash.
	ModeManual Mode = "manual"
	// ModeRandom uses non-deterministic random seed (varies each run).
	ModeRandom Mode = "random"
)

// Config holds configuration for seed generation.
type Config struct {
	Mode  Mode  // Seed mode
	Value int64 // Seed value (only used when Mode is ModeManual)
}

// DefaultConfig returns the content-based seed configuration.
func DefaultConfig() Config {
	return Config{Mode: ModeContent}
}

// Validate checks the seed mode is known.
func (c Config) Validate() error {
	if !slices.Contains(ValidModes(), c.Mode) {
		return fmt.Errorf("invalid seed mode: %s (valid: content, manual, random)", c.Mode)
	}
	return nil
}

// Calculate determines the seed for clustering a single image.
func Calculate(img image.Image, config Config) (int64, error) {
	switch config.Mode {
	case ModeContent:
		return CalculateContentSeed(img)
	case ModeManual:
		contentSeed, err := CalculateContentSeed(img)
		if err != nil {
			return 0, err
		}
		return mix(config.Value, contentSeed), nil
	case ModeRandom:
		return GenerateRandomSeed(), nil
	default:
		return 0, fmt.Errorf("unknown seed mode: %s", config.Mode)
	}
}

// FromBytes determines a seed from arbitrary data, such as pooled colours.
func FromBytes(data []byte, config Config) (int64, error) {
	switch config.Mode {
	case ModeContent:
		return hashSeed(data), nil
	case ModeManual:
		return mix(config.Value, hashSeed(data)), nil
	case ModeRandom:
		return GenerateRandomSeed(), nil
	default:
		return 0, fmt.Errorf("unknown seed mode: %s", config.Mode)
	}
}

// CalculateContentSeed generates a deterministic seed from image content.
// This hashes the pixel data to create a seed that's consistent for the same image content,
// regardless of filename or location.
func CalculateContentSeed(img image.Image) (int64, error) {
	if img == nil {
		return 0, fmt.Errorf("image cannot be nil")
	}

	bounds := img.Bounds()
	hasher := sha256.New()

	dimBytes := make([]byte, 8)
	binary.LittleEndian.PutUint32(dimBytes[0:4], uint32(bounds.Dx())) // #nosec G115 -- image dimensions are safe to convert
	binary.LittleEndian.PutUint32(dimBytes[4:8], uint32(bounds.Dy())) // #nosec G115 -- image dimensions are safe to convert
	hasher.Write(dimBytes)

	// A grid of samples is enough to tell images apart.
	step := max(bounds.Dx()/100, bounds.Dy()/100, 1)
	pixelBytes := make([]byte, 4)

	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, a := img.At(x, y).RGBA()
			pixelBytes[0] = byte(r >> 8)
			pixelBytes[1] = byte(g >> 8)
			pixelBytes[2] = byte(b >> 8)
			pixelBytes[3] = byte(a >> 8)
			hasher.Write(pixelBytes)
		}
	}

	return int64(binary.LittleEndian.Uint64(hasher.Sum(nil)[:8])), nil // #nosec G115 -- hash conversion is safe
}

// GenerateRandomSeed generates a non-deterministic random seed.
func GenerateRandomSeed() int64 {
	// #nosec G404 -- Random seed generation is intentionally non-deterministic
	return time.Now().UnixNano() + int64(rand.Intn(1000000))
}

func hashSeed(data []byte) int64 {
	hash := sha256.Sum256(data)
	return int64(binary.LittleEndian.Uint64(hash[:8])) // #nosec G115 -- hash conversion is safe
}

// mix combines a manual seed with a content seed so distinct images still
// get distinct seeds under a single manual value.
func mix(value, content int64) int64 {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(value))   // #nosec G115
	binary.LittleEndian.PutUint64(buf[8:16], uint64(content)) // #nosec G115
	return hashSeed(buf)
}

// ValidModes returns a list of valid seed modes.
func ValidModes() []Mode {
	return []Mode{ModeContent, ModeManual, ModeRandom}
}

// ParseMode converts a string to a Mode.
// Returns an error if the string is not a valid mode.
func ParseMode(s string) (Mode, error) {
	mode := Mode(s)
	if slices.Contains(ValidModes(), mode) {
		return mode, nil
	}
	return "", fmt.Errorf("invalid seed mode: %s (valid: content, manual, random)", s)
}
