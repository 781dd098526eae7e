package cli

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func solidPNG(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := range 16 {
		for x := range 16 {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func writePNG(t *testing.T, path string, c color.NRGBA) {
	t.Helper()
	if err := os.WriteFile(path, solidPNG(t, c), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}
)

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "feedhue version ") {
		t.Errorf("version output = %q", out)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	_, _, err := execute(t, "--log-level", "loud", "version")
	if err == nil || !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("expected invalid log level error, got %v", err)
	}
}

func TestInvalidEnvironment(t *testing.T) {
	t.Setenv("FEEDHUE_K", "many")
	_, _, err := execute(t, "version")
	if err == nil || !strings.Contains(err.Error(), "invalid environment") {
		t.Errorf("expected environment error, got %v", err)
	}
}

func TestPaletteCommand(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), red)
	writePNG(t, filepath.Join(dir, "b.png"), blue)
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("nope"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, _, err := execute(t, "palette", dir, "-c", "1", "-n", "2", "--sort", "hue", "--preview", "never")
	if err != nil {
		t.Fatalf("palette error = %v", err)
	}
	if out != "#ff0000\n#0000ff\n" {
		t.Errorf("palette output = %q", out)
	}
}

func TestPaletteCommandFilesAndJSON(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	writePNG(t, a, red)
	writePNG(t, b, red)

	out, _, err := execute(t, "palette", a, b, "-c", "1", "-n", "2", "--format", "json")
	if err != nil {
		t.Fatalf("palette error = %v", err)
	}

	var got struct {
		Count  int `json:"count"`
		Colors []struct {
			Hex string `json:"hex"`
		} `json:"colors"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Count != 2 {
		t.Errorf("count = %d, want 2", got.Count)
	}
	for _, c := range got.Colors {
		if c.Hex != "#ff0000" {
			t.Errorf("colour = %s, want #ff0000", c.Hex)
		}
	}
}

func TestPaletteCommandOutputFile(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.png")
	writePNG(t, img, blue)
	dest := filepath.Join(dir, "palette.txt")

	out, _, err := execute(t, "palette", img, "-c", "1", "-n", "1", "--format", "table", "-o", dest)
	if err != nil {
		t.Fatalf("palette error = %v", err)
	}
	if out != "" {
		t.Errorf("expected nothing on stdout, got %q", out)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "#0000ff") || strings.Contains(string(data), "\033[") {
		t.Errorf("unexpected table file:\n%s", data)
	}
}

func TestPaletteCommandErrors(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.png")
	writePNG(t, img, red)
	corrupt := filepath.Join(dir, "corrupt.png")
	if err := os.WriteFile(corrupt, []byte("nope"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no args", []string{"palette"}, "requires at least 1 arg"},
		{"missing path", []string{"palette", filepath.Join(dir, "missing.png")}, "not found"},
		{"corrupt file", []string{"palette", corrupt}, "invalid image format"},
		{"bad format", []string{"palette", img, "--format", "xml"}, "invalid format"},
		{"bad preview", []string{"palette", img, "--preview", "sometimes"}, "invalid preview mode"},
		{"bad sort", []string{"palette", img, "--sort", "size"}, "invalid sort"},
		{"bad colours", []string{"palette", img, "-c", "0"}, "colours must be between"},
		{"bad seed mode", []string{"palette", img, "--seed-mode", "lucky"}, "invalid seed mode"},
		{"too few samples", []string{"palette", img, "-c", "2", "--max-samples", "1"}, "insufficient"},
		{"empty dir", []string{"palette", t.TempDir()}, "no images"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(strings.ToLower(err.Error()), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/alice", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"username":"alice","profile_pic_url":"` + server.URL + `/img/avatar.png"}`))
	})
	mux.HandleFunc("/api/users/alice/posts", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"posts":[
			{"id":"3","taken_at":"2024-06-20T10:00:00Z","images":["` + server.URL + `/img/blue.png"]},
			{"id":"2","taken_at":"2024-05-20T10:00:00Z","images":["` + server.URL + `/img/red.png"]},
			{"id":"1","taken_at":"2024-05-10T10:00:00Z","images":["` + server.URL + `/img/blue.png"]}
		]}`))
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		c := red
		if strings.HasSuffix(r.URL.Path, "blue.png") {
			c = blue
		}
		_, _ = w.Write(solidPNG(t, c))
	})
	server = httptest.NewServer(mux)
	return server
}

func TestFetchCommand(t *testing.T) {
	server := newFeedServer(t)
	defer server.Close()
	scratch := filepath.Join(t.TempDir(), "scratch")

	out, _, err := execute(t, "fetch", "@alice",
		"--feed-url", server.URL+"/api",
		"--allow-private-hosts",
		"--scratch-dir", scratch,
		"--since", "2024-05-01", "--until", "2024-05-31",
		"-c", "1", "-n", "2", "--sort", "hue", "--preview", "never")
	if err != nil {
		t.Fatalf("fetch error = %v", err)
	}
	if out != "#ff0000\n#0000ff\n" {
		t.Errorf("fetch output = %q", out)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Errorf("scratch dir should be removed, stat err = %v", err)
	}
}

func TestFetchCommandKeep(t *testing.T) {
	server := newFeedServer(t)
	defer server.Close()
	scratch := filepath.Join(t.TempDir(), "scratch")

	_, _, err := execute(t, "fetch", "alice",
		"--feed-url", server.URL+"/api",
		"--allow-private-hosts",
		"--scratch-dir", scratch,
		"--since", "2024-05-01", "--until", "2024-05-31",
		"-c", "1", "-n", "1", "--keep")
	if err != nil {
		t.Fatalf("fetch error = %v", err)
	}

	posts, err := filepath.Glob(filepath.Join(scratch, "*", "posts", "*.png"))
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 2 {
		t.Errorf("kept %d images, want 2", len(posts))
	}
}

func TestFetchCommandErrors(t *testing.T) {
	server := newFeedServer(t)
	defer server.Close()

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no feed url", []string{"fetch", "alice", "--feed-url", ""}, "feed url is required"},
		{"bad since", []string{"fetch", "alice", "--feed-url", server.URL, "--since", "May"}, "invalid date range"},
		{"inverted", []string{"fetch", "alice", "--feed-url", server.URL, "--since", "2024-06-01", "--until", "2024-05-01"}, "invalid date range"},
		{"bad username", []string{"fetch", "no/slash", "--feed-url", server.URL}, "invalid username"},
		{"no images", []string{"fetch", "alice", "--feed-url", server.URL + "/api", "--allow-private-hosts",
			"--scratch-dir", t.TempDir(), "--since", "2023-01-01", "--until", "2023-01-31"}, "no images"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(strings.ToLower(err.Error()), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestFetchCommandLeavesExistingScratchDir(t *testing.T) {
	server := newFeedServer(t)
	defer server.Close()
	scratch := t.TempDir()
	notes := filepath.Join(scratch, "notes.txt")
	if err := os.WriteFile(notes, []byte("keep me"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, err := execute(t, "fetch", "alice",
		"--feed-url", server.URL+"/api",
		"--allow-private-hosts",
		"--scratch-dir", scratch,
		"--since", "2024-05-01", "--until", "2024-05-31",
		"-c", "1", "-n", "1")
	if err != nil {
		t.Fatalf("fetch error = %v", err)
	}

	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "notes.txt" {
		t.Errorf("scratch dir after fetch = %v, want only notes.txt", entries)
	}
}

func TestServeCommandSetupFailureRemovesScratch(t *testing.T) {
	scratch := filepath.Join(t.TempDir(), "scratch")

	_, _, err := execute(t, "serve", "--feed-url", "ftp://feed.example.com", "--scratch-dir", scratch)
	if err == nil || !strings.Contains(err.Error(), "http://") {
		t.Fatalf("expected feed URL error, got %v", err)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Errorf("scratch dir not removed after failed startup: %v", err)
	}
}
