package server

import (
	"embed"
	"fmt"
	"html/template"
	"image/color"
	"net/http"

	"github.com/jmylchreest/feedhue/internal/colour"
	"github.com/jmylchreest/feedhue/internal/pipeline"
	"github.com/jmylchreest/feedhue/internal/version"
)

//go:embed templates/*.html
var templateFS embed.FS

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return tmpl, nil
}

type indexView struct {
	Error   string
	Profile string
	Since   string
	Until   string
	Version string
}

type swatch struct {
	Hex     string
	RGB     [3]int
	Percent string
	Style   template.CSS
}

type resultView struct {
	Username   string
	ImageCount int
	Since      string
	Until      string
	AvatarURL  string
	Swatches   []swatch
	Colours    [][3]int
	Version    string
}

var (
	black = color.NRGBA{A: 255}
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// labelColour picks black or white text, whichever contrasts more with bg.
func labelColour(bg color.Color) string {
	if colour.ContrastRatio(bg, black) >= colour.ContrastRatio(bg, white) {
		return "#000000"
	}
	return "#ffffff"
}

func newResultView(res *pipeline.Result, since, until string, avatarURL string) resultView {
	view := resultView{
		Username:   res.Username,
		ImageCount: res.ImageCount,
		Since:      since,
		Until:      until,
		AvatarURL:  avatarURL,
		Version:    version.Short(),
	}

	for _, rgb := range res.Palette.ToRGBSlice() {
		view.Colours = append(view.Colours, rgb.Triple())
	}

	sorted := res.Palette.SortedByHue()
	for i, c := range sorted.Colors {
		rgb := colour.ToRGB(c)
		view.Swatches = append(view.Swatches, swatch{
			Hex:     rgb.Hex(),
			RGB:     rgb.Triple(),
			Percent: fmt.Sprintf("%.0f%%", sorted.Weight(i)*100),
			// Both values come from our own formatting, never from user input.
			Style: template.CSS(fmt.Sprintf("background-color: %s; color: %s;", rgb.Hex(), labelColour(c))), // #nosec G203
		})
	}
	return view
}

func (s *Server) render(w http.ResponseWriter, name string, status int, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("failed to render template", "template", name, "error", err)
	}
}
