package cli

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/feedhue/internal/colour"
	imgpkg "github.com/jmylchreest/feedhue/internal/image"
)

const (
	sortNone = "none"
	sortHue  = "hue"
)

// outputOptions are the flags shared by commands that print a palette.
type outputOptions struct {
	format  string
	output  string
	preview string
	sort    string
}

func (oo *outputOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&oo.format, "format", "f", formatHex, "output format (hex, rgb, json, table)")
	cmd.Flags().StringVarP(&oo.output, "output", "o", "", "write the palette to a file instead of stdout")
	cmd.Flags().StringVar(&oo.preview, "preview", previewAuto, "draw colour swatches (auto, always, never)")
	cmd.Flags().StringVar(&oo.sort, "sort", sortNone, "colour order (none, hue)")
}

func (oo *outputOptions) validate() error {
	if err := validateFormat(oo.format); err != nil {
		return err
	}
	switch oo.preview {
	case previewAuto, previewAlways, previewNever:
	default:
		return fmt.Errorf("invalid preview mode: %s (valid: auto, always, never)", oo.preview)
	}
	if oo.sort != sortNone && oo.sort != sortHue {
		return fmt.Errorf("invalid sort: %s (valid: none, hue)", oo.sort)
	}
	return nil
}

func (oo *outputOptions) write(cmd *cobra.Command, p *colour.Palette) error {
	if oo.sort == sortHue {
		p = p.SortedByHue()
	}
	return writeOutput(cmd.OutOrStdout(), oo.output, p, oo.format, oo.preview)
}

func newPaletteCmd(o *options) *cobra.Command {
	var out outputOptions

	cmd := &cobra.Command{
		Use:   "palette <dir|file>...",
		Short: "Build a palette from local images",
		Long: `Build a palette from local image files and directories.

Directories are scanned (not recursively) for JPEG, PNG, GIF and WebP files;
files that cannot be decoded are skipped. Files named explicitly must decode.`,
		Example: `  feedhue palette ~/Pictures/holiday
  feedhue palette a.jpg b.png -c 4 -n 6 --format table
  feedhue palette ./shots --seed-mode manual --seed 42 --format json -o palette.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.cfg.ValidatePalette(); err != nil {
				return err
			}
			if err := out.validate(); err != nil {
				return err
			}

			images, err := loadImages(cmd.Context(), o, args)
			if err != nil {
				return err
			}
			if len(images) == 0 {
				return fmt.Errorf("%w: no images found in %s", colour.ErrEmptyImageSet, strings.Join(args, ", "))
			}

			aggregator, err := buildAggregator(&o.cfg, nil, o.logger)
			if err != nil {
				return err
			}
			p, err := aggregator.Aggregate(contextOrBackground(cmd.Context()), images, o.cfg.K, o.cfg.FinalK)
			if err != nil {
				return err
			}

			o.logger.Debug("palette computed", "images", len(images), "colours", p.Len())
			return out.write(cmd, p)
		},
	}

	o.cfg.RegisterPaletteFlags(cmd.Flags())
	out.register(cmd)
	return cmd
}

// loadImages decodes every image named by paths, in argument order.
func loadImages(ctx context.Context, o *options, paths []string) ([]image.Image, error) {
	ctx = contextOrBackground(ctx)
	provider := buildProvider(&o.cfg, o.logger)

	var images []image.Image
	for _, path := range paths {
		if err := imgpkg.ValidateImagePath(path); err != nil {
			return nil, err
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			found, err := provider.Images(ctx, path)
			if err != nil {
				return nil, err
			}
			o.logger.Debug("scanned directory", "path", path, "images", len(found))
			images = append(images, found...)
			continue
		}

		if w, h, err := imgpkg.GetImageDimensions(path); err == nil {
			o.logger.Debug("loading image", "path", path, "width", w, "height", h)
		}
		img, err := provider.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		images = append(images, img)
	}
	return images, nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
