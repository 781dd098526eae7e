package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/jmylchreest/feedhue/internal/colour"
	"github.com/jmylchreest/feedhue/internal/download"
	"github.com/jmylchreest/feedhue/internal/metrics"
	"github.com/jmylchreest/feedhue/internal/pipeline"
	"github.com/jmylchreest/feedhue/internal/security"
	"github.com/jmylchreest/feedhue/internal/version"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

type paletteRequest struct {
	Username string `json:"username"`
	Since    string `json:"since,omitempty"`
	Until    string `json:"until,omitempty"`
}

type paletteResponse struct {
	Username   string             `json:"username"`
	SessionID  string             `json:"session_id,omitempty"`
	Since      string             `json:"since"`
	Until      string             `json:"until"`
	ImageCount int                `json:"image_count"`
	AvatarURL  string             `json:"avatar_url,omitempty"`
	Colours    []colour.ColorJSON `json:"colours"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newRequest(username string, r download.DateRange) pipeline.Request {
	return pipeline.Request{Username: username, Since: r.Since, Until: r.Until}
}

func (s *Server) parseRange(since, until string) (download.DateRange, error) {
	return download.ParseDateRange(since, until, s.now(), s.cfg.DefaultRange)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	now := s.now().UTC()
	s.render(w, "index.html", http.StatusOK, indexView{
		Error:   popFlash(w, r),
		Since:   now.Add(-s.cfg.DefaultRange).Format(time.DateOnly),
		Until:   now.Format(time.DateOnly),
		Version: version.Short(),
	})
}

func (s *Server) handlePaletteForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, err)
		return
	}

	username := security.NormalizeUsername(r.PostForm.Get("profile"))
	if username == "" {
		s.recordOutcome(metrics.OutcomeInvalid)
		setFlash(w, msgUsernameRequired)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	dr, err := s.parseRange(r.PostForm.Get("since"), r.PostForm.Get("until"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.run(r.Context(), newRequest(username, dr))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.render(w, "result.html", http.StatusOK,
		newResultView(res, dr.Since.Format(time.DateOnly), dr.Until.Format(time.DateOnly), s.avatarURL(res)))
}

// fail redirects back to the form with a user-facing message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	f := classify(err)
	s.recordOutcome(f.outcome)
	if f.status >= http.StatusInternalServerError {
		s.logger.Error("palette request failed", "error", err)
	} else {
		s.logger.Debug("palette request rejected", "error", err)
	}
	setFlash(w, f.message)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handlePaletteAPI(w http.ResponseWriter, r *http.Request) {
	var req paletteRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		s.recordOutcome(metrics.OutcomeInvalid)
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	username := security.NormalizeUsername(req.Username)
	if username == "" {
		s.recordOutcome(metrics.OutcomeInvalid)
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgUsernameRequired})
		return
	}

	dr, err := s.parseRange(req.Since, req.Until)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	res, err := s.run(r.Context(), newRequest(username, dr))
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	resp := paletteResponse{
		Username:   res.Username,
		Since:      dr.Since.Format(time.DateOnly),
		Until:      dr.Until.Format(time.DateOnly),
		ImageCount: res.ImageCount,
		AvatarURL:  s.avatarURL(res),
		Colours:    res.Palette.JSONColours(),
	}
	if resp.AvatarURL != "" {
		resp.SessionID = res.SessionID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	f := classify(err)
	s.recordOutcome(f.outcome)
	if f.status >= http.StatusInternalServerError {
		s.logger.Error("palette request failed", "error", err)
	}
	s.writeJSON(w, f.status, errorResponse{Error: f.message})
}

// run executes a pipeline request under the configured timeout.
func (s *Server) run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	res, err := s.runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	for i, rgb := range res.Palette.ToRGBSlice() {
		s.logger.Info("palette colour", "username", res.Username, "index", i+1, "rgb", rgb.Triple())
	}
	s.recordOutcome(metrics.OutcomeSuccess)
	s.reportSessions()
	return res, nil
}

// avatarURL returns where the stored profile picture is served. Sessions
// without one have nothing left to serve and are removed straight away.
func (s *Server) avatarURL(res *pipeline.Result) string {
	if res.AvatarAvailable() {
		return "/sessions/" + res.SessionID + "/avatar"
	}
	if err := s.sessions.Remove(res.SessionID); err != nil {
		s.logger.Warn("failed to remove session", "session", res.SessionID, "error", err)
	}
	s.reportSessions()
	return ""
}

// handleAvatar serves a session's profile picture once, then removes the
// session.
func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	path := findAvatar(sess.Dir)
	if path == "" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeFile(w, r, path)

	if err := s.sessions.Remove(id); err != nil {
		s.logger.Warn("failed to remove session", "session", id, "error", err)
	}
	s.reportSessions()
}

// findAvatar returns the stored profile picture in dir, or "" if there is none.
func findAvatar(dir string) string {
	matches, _ := filepath.Glob(filepath.Join(dir, download.AvatarName+".*"))
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") {
			continue
		}
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			return m
		}
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		version.Info
	}{Status: "ok", Info: version.GetInfo()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordRequest(outcome)
	}
}
