package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"replay/crumbs/internal/domain"
	"replay/crumbs/internal/render"
	"replay/crumbs/internal/summarizer"

	"github.com/go-chi/chi/v5"
)

const maxRequestBytes = 5 << 20

type summarizeRequest struct {
	Breadcrumbs       []domain.Breadcrumb `json:"breadcrumbs"`
	AnchorTimestampMs int64               `json:"anchor_timestamp_ms"`
	Clickable         bool                `json:"clickable"`
}

type segmentsResponse struct {
	Segments []summarizer.Segment `json:"segments"`
	Lines    []string             `json:"lines"`
}

// handleSummarize summarizes breadcrumbs posted by the caller. Clickable
// segments have no server-side effect here; the caller wires the clicks.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var onClick summarizer.ClickHandler
	if req.Clickable {
		onClick = func(domain.Breadcrumb) {}
	}

	segments := summarizer.Summarize(req.Breadcrumbs, onClick, req.AnchorTimestampMs)
	writeJSON(w, http.StatusOK, segmentsResponse{Segments: segments, Lines: render.Text(segments)})
}

func (s *Server) handleReplaySegments(w http.ResponseWriter, r *http.Request) {
	replayID := chi.URLParam(r, "replayID")
	clickable, _ := strconv.ParseBool(r.URL.Query().Get("clickable"))

	segments, err := s.service.Segments(r.Context(), replayID, clickable)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, segmentsResponse{Segments: segments, Lines: render.Text(segments)})
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(strings.Join(render.Text(segments), "\n") + "\n"))
	case "html":
		var buf bytes.Buffer
		err := render.HTML(&buf, segments, render.HTMLOptions{
			ClickURL: func(crumbID string) string {
				return "/api/replays/" + url.PathEscape(replayID) + "/breadcrumbs/" + url.PathEscape(crumbID) + "/click"
			},
		})
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	default:
		writeError(w, http.StatusBadRequest, "unknown format: "+format)
	}
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	replayID := chi.URLParam(r, "replayID")
	crumbID := chi.URLParam(r, "crumbID")

	if err := s.service.Click(r.Context(), replayID, crumbID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleClickRedirect serves the links of the HTML trail: it records the
// click and sends the browser back to the trail.
func (s *Server) handleClickRedirect(w http.ResponseWriter, r *http.Request) {
	replayID := chi.URLParam(r, "replayID")
	crumbID := chi.URLParam(r, "crumbID")

	if err := s.service.Click(r.Context(), replayID, crumbID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	http.Redirect(w, r, htmlTrailURL(replayID), http.StatusSeeOther)
}

func htmlTrailURL(replayID string) string {
	return "/api/replays/" + url.PathEscape(replayID) + "/segments?format=html&clickable=true"
}

func (s *Server) handleClicks(w http.ResponseWriter, r *http.Request) {
	replayID := chi.URLParam(r, "replayID")

	clicks, err := s.service.Clicks(r.Context(), replayID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"replay_id": replayID, "clicks": clicks})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	replayID := chi.URLParam(r, "replayID")

	if err := s.service.Enqueue(r.Context(), replayID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"replay_id": replayID, "status": "queued"})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrReplayNotFound), errors.Is(err, domain.ErrCrumbNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Errorf("❌ Request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
