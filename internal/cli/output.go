package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jmylchreest/feedhue/internal/colour"
)

// Output formats for palettes.
const (
	formatHex   = "hex"
	formatRGB   = "rgb"
	formatJSON  = "json"
	formatTable = "table"
)

// Preview modes.
const (
	previewAuto   = "auto"
	previewAlways = "always"
	previewNever  = "never"
)

const swatchWidth = 10

func validateFormat(format string) error {
	switch format {
	case formatHex, formatRGB, formatJSON, formatTable:
		return nil
	}
	return fmt.Errorf("invalid format: %s (valid: hex, rgb, json, table)", format)
}

// usePreview reports whether colour swatches should be drawn on w.
func usePreview(mode string, w io.Writer) (bool, error) {
	switch mode {
	case previewAlways:
		return true, nil
	case previewNever:
		return false, nil
	case previewAuto, "":
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil // #nosec G115 - file descriptors fit in int
	}
	return false, fmt.Errorf("invalid preview mode: %s (valid: auto, always, never)", mode)
}

// writePalette writes p to w in the given format. JSON output never
// carries terminal escapes.
func writePalette(w io.Writer, p *colour.Palette, format string, preview bool) error {
	switch format {
	case formatJSON:
		data, err := p.ToJSON()
		if err != nil {
			return fmt.Errorf("failed to encode palette: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err

	case formatTable:
		headers := []string{"#", "Hex", "RGB", "Share"}
		if preview {
			headers = append([]string{"Swatch"}, headers...)
		}
		table := NewTable(headers)
		for i, c := range p.ToRGBSlice() {
			row := []string{
				fmt.Sprint(i + 1),
				c.Hex(),
				fmt.Sprintf("%d, %d, %d", c.R, c.G, c.B),
				fmt.Sprintf("%.1f%%", p.Weight(i)*100),
			}
			if preview {
				row = append([]string{colour.ColourPreview(c, swatchWidth)}, row...)
			}
			table.AddRow(row)
		}
		_, err := io.WriteString(w, table.Render())
		return err

	default:
		var b strings.Builder
		for _, c := range p.ToRGBSlice() {
			text := c.Hex()
			if format == formatRGB {
				text = c.String()
			}
			if preview {
				b.WriteString(colour.ColourPreviewWithText(c, text, max(swatchWidth, len(text)+2)))
			} else {
				b.WriteString(text)
			}
			b.WriteString("\n")
		}
		_, err := io.WriteString(w, b.String())
		return err
	}
}

// writeOutput writes p to path, or to w when path is empty or "-".
func writeOutput(w io.Writer, path string, p *colour.Palette, format, previewMode string) error {
	if path == "" || path == "-" {
		preview, err := usePreview(previewMode, w)
		if err != nil {
			return err
		}
		return writePalette(w, p, format, preview)
	}

	f, err := os.Create(path) // #nosec G304 - Output path supplied by the user
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := writePalette(f, p, format, previewMode == previewAlways); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
