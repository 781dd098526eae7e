package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/feedhue/internal/colour"
	"github.com/jmylchreest/feedhue/internal/download"
	"github.com/jmylchreest/feedhue/internal/session"
	"github.com/jmylchreest/feedhue/internal/source"
)

type fakeSource struct {
	profile *source.Profile
	posts   []source.Post
}

func (f *fakeSource) Profile(_ context.Context, username string) (*source.Profile, error) {
	if f.profile == nil {
		return nil, source.ErrProfileNotFound
	}
	return f.profile, nil
}

func (f *fakeSource) Posts(_ context.Context, _ string, fn func(source.Post) bool) error {
	for _, p := range f.posts {
		if !fn(p) {
			break
		}
	}
	return nil
}

type recordingObserver struct {
	stages []string
	failed int
}

func (r *recordingObserver) ObserveStage(stage string, _ time.Duration) {
	r.stages = append(r.stages, stage)
}

func (r *recordingObserver) ObserveFailedImages(n int) {
	r.failed += n
}

// newImageServer serves solid PNGs coloured by path: /red.png, /green.png, /blue.png.
// Anything else returns bytes that do not decode.
func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	colours := map[string]color.NRGBA{
		"/red.png":   {R: 255, A: 255},
		"/green.png": {G: 255, A: 255},
		"/blue.png":  {B: 255, A: 255},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := colours[r.URL.Path]
		if !ok {
			_, _ = w.Write([]byte("not an image"))
			return
		}
		img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
		for y := range 8 {
			for x := range 8 {
				img.SetNRGBA(x, y, c)
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Errorf("png.Encode() error = %v", err)
		}
		_, _ = w.Write(buf.Bytes())
	}))
}

func newTestPipeline(t *testing.T, src source.Source, cfg Config, obs Observer) (*Pipeline, *session.Manager) {
	t.Helper()
	sessions, err := session.NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	agg, err := colour.NewAggregator(colour.AggregatorConfig{Workers: 2})
	if err != nil {
		t.Fatalf("NewAggregator() error = %v", err)
	}
	p, err := New(cfg, Deps{
		Sessions:   sessions,
		Downloader: download.New(src, download.Config{AllowPrivateHosts: true}),
		Aggregator: agg,
		Observer:   obs,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p, sessions
}

func request(username string) Request {
	return Request{
		Username: username,
		Since:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Until:    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRun(t *testing.T) {
	server := newImageServer(t)
	defer server.Close()

	src := &fakeSource{
		profile: &source.Profile{Username: "alice", PictureURL: server.URL + "/red.png"},
		posts: []source.Post{
			{ID: "3", TakenAt: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), ImageURLs: []string{server.URL + "/red.png"}},
			{ID: "2", TakenAt: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), ImageURLs: []string{server.URL + "/green.png", server.URL + "/corrupt.png"}},
			{ID: "1", TakenAt: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), ImageURLs: []string{server.URL + "/blue.png"}},
		},
	}
	obs := &recordingObserver{}
	p, sessions := newTestPipeline(t, src, Config{K: 2, FinalK: 3}, obs)

	result, err := p.Run(context.Background(), request("alice"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.ImageCount != 3 {
		t.Errorf("ImageCount = %d, want 3 (corrupt file skipped)", result.ImageCount)
	}
	if result.Palette.Len() != 3 {
		t.Errorf("palette has %d colours, want 3", result.Palette.Len())
	}
	if !result.AvatarAvailable() {
		t.Error("expected avatar to be available")
	}
	if _, err := os.Stat(result.AvatarPath); err != nil {
		t.Errorf("avatar not stored: %v", err)
	}
	if _, err := sessions.Get(result.SessionID); err != nil {
		t.Errorf("session should outlive a successful run: %v", err)
	}

	hexes := strings.Join(result.Palette.ToHex(), " ")
	for _, want := range []string{"#ff0000", "#00ff00", "#0000ff"} {
		if !strings.Contains(hexes, want) {
			t.Errorf("palette %s missing %s", hexes, want)
		}
	}
	if len(obs.stages) != 2 || obs.stages[0] != StageDownload || obs.stages[1] != StageDecode {
		t.Errorf("observed stages = %v", obs.stages)
	}
}

func TestRunRemovesSessionOnError(t *testing.T) {
	server := newImageServer(t)
	defer server.Close()

	tests := []struct {
		name string
		src  *fakeSource
		want error
	}{
		{
			name: "missing profile",
			src:  &fakeSource{},
			want: source.ErrProfileNotFound,
		},
		{
			name: "no posts in range",
			src: &fakeSource{
				profile: &source.Profile{Username: "bob"},
				posts: []source.Post{
					{ID: "1", TakenAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), ImageURLs: []string{server.URL + "/red.png"}},
				},
			},
			want: ErrNoImages,
		},
		{
			name: "too few pooled colours",
			src: &fakeSource{
				profile: &source.Profile{Username: "bob"},
				posts: []source.Post{
					{ID: "1", TakenAt: time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC), ImageURLs: []string{server.URL + "/red.png"}},
				},
			},
			want: colour.ErrInsufficientPooledSamples,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, sessions := newTestPipeline(t, tt.src, Config{K: 2, FinalK: 5}, nil)
			_, err := p.Run(context.Background(), request("bob"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Run() error = %v, want %v", err, tt.want)
			}
			if sessions.Len() != 0 {
				t.Errorf("%d sessions left after failed run", sessions.Len())
			}
			entries, _ := os.ReadDir(sessions.Root())
			if len(entries) != 0 {
				t.Errorf("%d session directories left after failed run", len(entries))
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "zero k", cfg: Config{K: 0, FinalK: 5}, wantErr: true},
		{name: "zero final", cfg: Config{K: 5, FinalK: 0}, wantErr: true},
		{name: "too large", cfg: Config{K: 5, FinalK: colour.MaxColourCount + 1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(DefaultConfig(), Deps{}); err == nil {
		t.Error("New() with no deps expected error")
	}
}
