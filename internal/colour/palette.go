package colour

import (
	"cmp"
	"fmt"
	"image/color"
	"slices"

	"github.com/goccy/go-json"
	"github.com/lucasb-eyer/go-colorful"
)

// Palette represents an ordered set of colours with optional weights.
// Order is not semantically significant; weights, when present, are the
// share of samples each colour's cluster absorbed.
type Palette struct {
	Colors  []color.Color
	Weights []float64
}

// NewPalette creates a new Palette with the given colors.
func NewPalette(colors []color.Color) *Palette {
	return &Palette{
		Colors: colors,
	}
}

// NewPaletteWithWeights creates a new Palette with colours and their weights.
func NewPaletteWithWeights(colors []color.Color, weights []float64) *Palette {
	return &Palette{
		Colors:  colors,
		Weights: weights,
	}
}

// newPaletteFromRGB builds a palette from clustering output.
func newPaletteFromRGB(centroids []RGB, weights []float64) *Palette {
	colors := make([]color.Color, len(centroids))
	for i, c := range centroids {
		colors[i] = color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
	}
	return NewPaletteWithWeights(colors, weights)
}

// Len returns the number of colors in the palette.
func (p *Palette) Len() int {
	return len(p.Colors)
}

// Weight returns the weight of the colour at index i, or 0 when the palette is unweighted.
func (p *Palette) Weight(i int) float64 {
	if i < 0 || i >= len(p.Weights) {
		return 0
	}
	return p.Weights[i]
}

// RGB represents a color in RGB format.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// String returns the RGB color as a string in the format "rgb(r, g, b)".
func (rgb RGB) String() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", rgb.R, rgb.G, rgb.B)
}

// Hex returns the RGB color as a hex string (e.g., "#1a2b3c").
func (rgb RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", rgb.R, rgb.G, rgb.B)
}

// Triple returns the colour as a [3]int, the form handed to presentation layers.
func (rgb RGB) Triple() [3]int {
	return [3]int{int(rgb.R), int(rgb.G), int(rgb.B)}
}

// ToRGB converts a color.Color to RGB.
func ToRGB(c color.Color) RGB {
	r, g, b, _ := c.RGBA()
	// RGBA returns values in the range [0, 65535], convert to [0, 255]
	return RGB{
		R: uint8(r >> 8),
		G: uint8(g >> 8),
		B: uint8(b >> 8),
	}
}

// ToHex converts the palette colors to hex strings.
// Returns a slice of hex color codes (e.g., ["#1a2b3c", "#4d5e6f"]).
func (p *Palette) ToHex() []string {
	hexColors := make([]string, len(p.Colors))
	for i, c := range p.Colors {
		hexColors[i] = ToRGB(c).Hex()
	}
	return hexColors
}

// ToRGBSlice converts the palette colors to RGB structs.
func (p *Palette) ToRGBSlice() []RGB {
	rgbColors := make([]RGB, len(p.Colors))
	for i, c := range p.Colors {
		rgbColors[i] = ToRGB(c)
	}
	return rgbColors
}

// ColorJSON represents a color in JSON output format.
type ColorJSON struct {
	Hex    string  `json:"hex"`
	RGB    RGB     `json:"rgb"`
	Weight float64 `json:"weight,omitempty"`
}

// PaletteJSON represents the palette in JSON format.
type PaletteJSON struct {
	Count  int         `json:"count"`
	Colors []ColorJSON `json:"colors"`
}

// JSONColours returns the JSON representation of each colour.
func (p *Palette) JSONColours() []ColorJSON {
	colors := make([]ColorJSON, len(p.Colors))
	for i, c := range p.Colors {
		rgb := ToRGB(c)
		colors[i] = ColorJSON{
			Hex:    rgb.Hex(),
			RGB:    rgb,
			Weight: p.Weight(i),
		}
	}
	return colors
}

// ToJSON converts the palette to JSON format.
func (p *Palette) ToJSON() ([]byte, error) {
	paletteJSON := PaletteJSON{
		Count:  len(p.Colors),
		Colors: p.JSONColours(),
	}

	return json.MarshalIndent(paletteJSON, "", "  ")
}

// String returns a human-readable string representation of the palette.
func (p *Palette) String() string {
	if len(p.Colors) == 0 {
		return "Empty palette"
	}

	result := fmt.Sprintf("Palette with %d colors:\n", len(p.Colors))
	for i, c := range p.Colors {
		rgb := ToRGB(c)
		result += fmt.Sprintf("  %2d: %s (%s)\n", i+1, rgb.Hex(), rgb.String())
	}
	return result
}

// Get returns the color at the specified index.
// Returns an error if the index is out of bounds.
func (p *Palette) Get(index int) (color.Color, error) {
	if index < 0 || index >= len(p.Colors) {
		return nil, fmt.Errorf("index out of bounds: %d (palette has %d colors)", index, len(p.Colors))
	}
	return p.Colors[index], nil
}

// All returns an iterator over all colors in the palette.
func (p *Palette) All() func(func(int, color.Color) bool) {
	return func(yield func(int, color.Color) bool) {
		for i, c := range p.Colors {
			if !yield(i, c) {
				return
			}
		}
	}
}

// SortedByHue returns a copy of the palette ordered for display: chromatic
// colours by HCL hue, followed by near-greys from dark to light.
// Weights travel with their colours.
func (p *Palette) SortedByHue() *Palette {
	type entry struct {
		c      color.Color
		w      float64
		hue    float64
		chroma float64
		light  float64
	}

	entries := make([]entry, len(p.Colors))
	for i, c := range p.Colors {
		rgb := ToRGB(c)
		cf := colorful.Color{R: float64(rgb.R) / 255, G: float64(rgb.G) / 255, B: float64(rgb.B) / 255}
		h, ch, l := cf.Hcl()
		entries[i] = entry{c: c, w: p.Weight(i), hue: h, chroma: ch, light: l}
	}

	const greyChroma = 0.05
	slices.SortStableFunc(entries, func(a, b entry) int {
		aGrey, bGrey := a.chroma < greyChroma, b.chroma < greyChroma
		switch {
		case aGrey != bGrey:
			if aGrey {
				return 1
			}
			return -1
		case aGrey:
			return cmp.Compare(a.light, b.light)
		default:
			return cmp.Compare(a.hue, b.hue)
		}
	})

	sorted := &Palette{Colors: make([]color.Color, len(entries))}
	if len(p.Weights) > 0 {
		sorted.Weights = make([]float64, len(entries))
	}
	for i, e := range entries {
		sorted.Colors[i] = e.c
		if sorted.Weights != nil {
			sorted.Weights[i] = e.w
		}
	}
	return sorted
}
