// Package config holds feedhue's runtime settings.
//
// Settings come from defaults, then FEEDHUE_* environment variables, then
// command-line flags, each overriding the last.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/jmylchreest/feedhue/internal/colour"
	"github.com/jmylchreest/feedhue/internal/seed"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "FEEDHUE_"

// Config is the full set of runtime settings.
type Config struct {
	// Server
	Addr            string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	DefaultRange    time.Duration

	// Scratch storage
	ScratchDir    string
	SessionTTL    time.Duration
	SweepInterval time.Duration

	// Upstream feed
	FeedURL   string
	FeedToken string

	// Downloads
	RequestsPerSecond float64
	Burst             int
	Retries           uint64
	FetchTimeout      time.Duration
	AllowPrivateHosts bool

	// Palette
	K            int
	FinalK       int
	Workers      int
	MaxSamples   int
	MaxDimension int
	SeedMode     string
	Seed         int64
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ShutdownTimeout:   15 * time.Second,
		RequestTimeout:    2 * time.Minute,
		DefaultRange:      30 * 24 * time.Hour,
		SessionTTL:        15 * time.Minute,
		SweepInterval:     time.Minute,
		RequestsPerSecond: 2,
		Burst:             4,
		Retries:           3,
		FetchTimeout:      10 * time.Second,
		K:                 5,
		FinalK:            5,
		MaxSamples:        colour.DefaultMaxSamples,
		MaxDimension:      512,
		SeedMode:          string(seed.ModeContent),
	}
}

// ApplyEnv overrides c with any FEEDHUE_* variables present in the
// environment. lookup is normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("ADDR", &c.Addr)
	duration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
	duration("REQUEST_TIMEOUT", &c.RequestTimeout)
	duration("DEFAULT_RANGE", &c.DefaultRange)
	str("SCRATCH_DIR", &c.ScratchDir)
	duration("SESSION_TTL", &c.SessionTTL)
	duration("SWEEP_INTERVAL", &c.SweepInterval)
	str("FEED_URL", &c.FeedURL)
	str("FEED_TOKEN", &c.FeedToken)
	duration("FETCH_TIMEOUT", &c.FetchTimeout)
	integer("BURST", &c.Burst)
	integer("K", &c.K)
	integer("FINAL_K", &c.FinalK)
	integer("WORKERS", &c.Workers)
	integer("MAX_SAMPLES", &c.MaxSamples)
	integer("MAX_DIMENSION", &c.MaxDimension)
	str("SEED_MODE", &c.SeedMode)

	if v, ok := lookup(EnvPrefix + "RPS"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRPS: %w", EnvPrefix, err))
		} else {
			c.RequestsPerSecond = f
		}
	}
	if v, ok := lookup(EnvPrefix + "RETRIES"); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRETRIES: %w", EnvPrefix, err))
		} else {
			c.Retries = n
		}
	}
	if v, ok := lookup(EnvPrefix + "SEED"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSEED: %w", EnvPrefix, err))
		} else {
			c.Seed = n
		}
	}
	if v, ok := lookup(EnvPrefix + "ALLOW_PRIVATE_HOSTS"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%sALLOW_PRIVATE_HOSTS: %w", EnvPrefix, err))
		} else {
			c.AllowPrivateHosts = b
		}
	}

	return errors.Join(errs...)
}

// RegisterPaletteFlags binds the palette settings to fs.
func (c *Config) RegisterPaletteFlags(fs *pflag.FlagSet) {
	fs.IntVarP(&c.K, "colours", "c", c.K, "colours extracted per image (1-256)")
	fs.IntVarP(&c.FinalK, "final-colours", "n", c.FinalK, "colours in the final palette (1-256)")
	fs.IntVar(&c.Workers, "workers", c.Workers, "images processed concurrently (0 = GOMAXPROCS)")
	fs.IntVar(&c.MaxSamples, "max-samples", c.MaxSamples, "maximum pixels sampled per image")
	fs.IntVar(&c.MaxDimension, "max-dimension", c.MaxDimension, "downscale images larger than this on either side (0 = never)")
	fs.StringVar(&c.SeedMode, "seed-mode", c.SeedMode, "seed mode (content, manual, random)")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "seed value for manual seed mode")
}

// RegisterFetchFlags binds the upstream feed and download settings to fs.
func (c *Config) RegisterFetchFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.FeedURL, "feed-url", c.FeedURL, "base URL of the upstream feed service")
	fs.StringVar(&c.FeedToken, "feed-token", c.FeedToken, "bearer token for the upstream feed service")
	fs.Float64Var(&c.RequestsPerSecond, "rps", c.RequestsPerSecond, "image downloads per second (0 = unlimited)")
	fs.IntVar(&c.Burst, "burst", c.Burst, "download rate limiter burst")
	fs.Uint64Var(&c.Retries, "retries", c.Retries, "retries on temporary upstream failures")
	fs.DurationVar(&c.FetchTimeout, "fetch-timeout", c.FetchTimeout, "timeout per upstream request")
	fs.BoolVar(&c.AllowPrivateHosts, "allow-private-hosts", c.AllowPrivateHosts, "allow plain HTTP and private addresses in media URLs")
}

// RegisterServerFlags binds the web server settings to fs.
func (c *Config) RegisterServerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "listen address")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "graceful shutdown timeout")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "timeout for a single palette request")
	fs.DurationVar(&c.DefaultRange, "default-range", c.DefaultRange, "date range used when a request gives none")
	fs.StringVar(&c.ScratchDir, "scratch-dir", c.ScratchDir, "directory for downloaded images (default: a temp dir)")
	fs.DurationVar(&c.SessionTTL, "session-ttl", c.SessionTTL, "how long downloaded images are kept")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "how often expired sessions are removed")
}

// RegisterFlags binds every setting to fs.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	c.RegisterPaletteFlags(fs)
	c.RegisterFetchFlags(fs)
	c.RegisterServerFlags(fs)
}

// SeedConfig returns the seed settings.
func (c *Config) SeedConfig() (seed.Config, error) {
	mode, err := seed.ParseMode(c.SeedMode)
	if err != nil {
		return seed.Config{}, err
	}
	return seed.Config{Mode: mode, Value: c.Seed}, nil
}

// ValidatePalette checks the palette settings only.
func (c *Config) ValidatePalette() error {
	var errs []error
	if c.K < 1 || c.K > colour.MaxColourCount {
		errs = append(errs, fmt.Errorf("colours must be between 1 and %d, got %d", colour.MaxColourCount, c.K))
	}
	if c.FinalK < 1 || c.FinalK > colour.MaxColourCount {
		errs = append(errs, fmt.Errorf("final colours must be between 1 and %d, got %d", colour.MaxColourCount, c.FinalK))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.MaxSamples < 1 {
		errs = append(errs, fmt.Errorf("max samples must be positive, got %d", c.MaxSamples))
	}
	if c.MaxDimension < 0 {
		errs = append(errs, fmt.Errorf("max dimension must not be negative, got %d", c.MaxDimension))
	}
	if _, err := c.SeedConfig(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks every setting.
func (c *Config) Validate() error {
	errs := []error{c.ValidatePalette()}
	if c.FeedURL == "" {
		errs = append(errs, errors.New("feed URL is required (--feed-url or FEEDHUE_FEED_URL)"))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("rps must not be negative, got %v", c.RequestsPerSecond))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("session TTL must be positive, got %s", c.SessionTTL))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval))
	}
	if c.DefaultRange <= 0 {
		errs = append(errs, fmt.Errorf("default range must be positive, got %s", c.DefaultRange))
	}
	return errors.Join(errs...)
}
