package colour

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

// solidImage returns a w×h image filled with c.
func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

// stripedImage returns an image with one vertical stripe per colour.
func stripedImage(stripeWidth, h int, colours ...color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, stripeWidth*len(colours), h))
	for i, c := range colours {
		for y := range h {
			for x := i * stripeWidth; x < (i+1)*stripeWidth; x++ {
				img.Set(x, y, c)
			}
		}
	}
	return img
}

// gradientImage returns an image with many distinct colours.
func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

func TestExtractDominantColoursReturnsExactlyK(t *testing.T) {
	img := gradientImage(64, 64)
	e := NewExtractor()

	for _, k := range []int{1, 2, 5, 16} {
		palette, err := e.ExtractDominantColours(img, k, 99)
		if err != nil {
			t.Fatalf("k=%d: ExtractDominantColours() error = %v", k, err)
		}
		if palette.Len() != k {
			t.Errorf("k=%d: got %d colours", k, palette.Len())
		}
		if len(palette.Weights) != k {
			t.Errorf("k=%d: got %d weights", k, len(palette.Weights))
		}
	}
}

func TestExtractDominantColoursFindsStripes(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	green := color.RGBA{G: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	img := stripedImage(10, 10, red, green, blue)

	palette, err := NewExtractor().ExtractDominantColours(img, 3, 1)
	if err != nil {
		t.Fatalf("ExtractDominantColours() error = %v", err)
	}

	found := map[RGB]bool{}
	for _, c := range palette.ToRGBSlice() {
		found[c] = true
	}
	for _, want := range []color.Color{red, green, blue} {
		if !found[ToRGB(want)] {
			t.Errorf("palette %v missing %v", palette.ToHex(), ToRGB(want))
		}
	}
}

func TestExtractDominantColoursSinglePixel(t *testing.T) {
	img := solidImage(1, 1, color.RGBA{R: 12, G: 200, B: 99, A: 255})

	palette, err := NewExtractor().ExtractDominantColours(img, 1, 0)
	if err != nil {
		t.Fatalf("ExtractDominantColours() error = %v", err)
	}
	if palette.Len() != 1 {
		t.Fatalf("got %d colours, want 1", palette.Len())
	}
	if got := ToRGB(palette.Colors[0]); got != (RGB{R: 12, G: 200, B: 99}) {
		t.Errorf("got %v, want rgb(12, 200, 99)", got)
	}
}

func TestExtractDominantColoursSolidRed(t *testing.T) {
	img := solidImage(20, 20, color.RGBA{R: 255, A: 255})

	palette, err := NewExtractor().ExtractDominantColours(img, 3, 5)
	if err != nil {
		t.Fatalf("ExtractDominantColours() error = %v", err)
	}
	if palette.Len() != 3 {
		t.Fatalf("got %d colours, want 3", palette.Len())
	}
	for i, c := range palette.ToRGBSlice() {
		if c != (RGB{R: 255}) {
			t.Errorf("colour %d = %v, want rgb(255, 0, 0)", i, c)
		}
	}
}

func TestExtractDominantColoursErrors(t *testing.T) {
	transparent := solidImage(4, 4, color.RGBA{})

	tests := []struct {
		name string
		img  image.Image
		k    int
		want error
	}{
		{name: "fewer pixels than k", img: solidImage(2, 1, color.White), k: 3, want: ErrInsufficientSamples},
		{name: "fully transparent", img: transparent, k: 1, want: ErrInsufficientSamples},
		{name: "empty bounds", img: image.NewRGBA(image.Rect(0, 0, 0, 0)), k: 1, want: ErrInsufficientSamples},
		{name: "zero k", img: solidImage(2, 2, color.White), k: 0, want: ErrInvalidColourCount},
		{name: "k too large", img: solidImage(2, 2, color.White), k: 257, want: ErrInvalidColourCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExtractor().ExtractDominantColours(tt.img, tt.k, 1)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := NewExtractor().ExtractDominantColours(nil, 1, 1); err == nil {
		t.Error("expected error for nil image")
	}
}

func TestExtractDominantColoursDeterministic(t *testing.T) {
	img := gradientImage(80, 60)
	e := NewExtractor()

	a, err := e.ExtractDominantColours(img, 5, 1234)
	if err != nil {
		t.Fatalf("ExtractDominantColours() error = %v", err)
	}
	b, err := e.ExtractDominantColours(img, 5, 1234)
	if err != nil {
		t.Fatalf("ExtractDominantColours() error = %v", err)
	}

	ah, bh := a.ToHex(), b.ToHex()
	for i := range ah {
		if ah[i] != bh[i] {
			t.Fatalf("same seed gave different palettes: %v vs %v", ah, bh)
		}
	}
}

func TestSamplePixels(t *testing.T) {
	t.Run("small image keeps every pixel", func(t *testing.T) {
		samples := SamplePixels(solidImage(10, 10, color.Black), DefaultMaxSamples)
		if len(samples) != 100 {
			t.Errorf("got %d samples, want 100", len(samples))
		}
	})

	t.Run("large image is capped", func(t *testing.T) {
		samples := SamplePixels(solidImage(200, 200, color.Black), 500)
		if len(samples) == 0 || len(samples) > 500 {
			t.Errorf("got %d samples, want 1..500", len(samples))
		}
	})

	t.Run("grid covers the whole image", func(t *testing.T) {
		// Top 34 rows red, bottom 16 rows blue.
		img := solidImage(60, 50, color.RGBA{R: 255, A: 255})
		for y := 34; y < 50; y++ {
			for x := range 60 {
				img.Set(x, y, color.RGBA{B: 255, A: 255})
			}
		}

		samples := SamplePixels(img, DefaultMaxSamples)
		if len(samples) == 0 || len(samples) > DefaultMaxSamples {
			t.Fatalf("got %d samples, want 1..%d", len(samples), DefaultMaxSamples)
		}
		blue := 0
		for _, s := range samples {
			if s == (RGB{B: 255}) {
				blue++
			}
		}
		if share := float64(blue) / float64(len(samples)); share < 0.25 || share > 0.40 {
			t.Errorf("blue share = %.2f (%d of %d), want about 0.32", share, blue, len(samples))
		}

		p, err := NewExtractor().ExtractDominantColours(img, 2, 1)
		if err != nil {
			t.Fatalf("ExtractDominantColours() error = %v", err)
		}
		got := map[string]bool{}
		for _, c := range p.ToHex() {
			got[c] = true
		}
		if !got["#ff0000"] || !got["#0000ff"] {
			t.Errorf("ExtractDominantColours() = %v, want red and blue", p.ToHex())
		}
	})

	t.Run("cap holds for awkward sizes", func(t *testing.T) {
		for _, size := range [][2]int{{200, 200}, {513, 7}, {1, 5000}, {97, 89}} {
			img := solidImage(size[0], size[1], color.Black)
			if n := len(SamplePixels(img, 500)); n == 0 || n > 500 {
				t.Errorf("%dx%d: got %d samples, want 1..500", size[0], size[1], n)
			}
		}
	})

	t.Run("no cap", func(t *testing.T) {
		samples := SamplePixels(solidImage(100, 100, color.Black), 0)
		if len(samples) != 10000 {
			t.Errorf("got %d samples, want 10000", len(samples))
		}
	})

	t.Run("transparent pixels skipped", func(t *testing.T) {
		img := solidImage(4, 1, color.RGBA{})
		img.Set(0, 0, color.RGBA{R: 255, A: 255})
		samples := SamplePixels(img, 0)
		if len(samples) != 1 || samples[0] != (RGB{R: 255}) {
			t.Errorf("got %v, want one red sample", samples)
		}
	})

	t.Run("semi-transparent pixels are un-premultiplied", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
		img.Set(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 128})
		samples := SamplePixels(img, 0)
		if len(samples) != 1 || samples[0] != (RGB{R: 200, G: 100, B: 50}) {
			t.Errorf("got %v, want rgb(200, 100, 50)", samples)
		}
	})
}
