package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	httpx "ytproxy/http"
	"ytproxy/quota"
	"ytproxy/youtube"
)

// Query parameter limits matching the Data API's own bounds.
const (
	defaultMaxResults = 5
	maxMaxResults     = 50
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.writeError(w, r, "search", http.StatusBadRequest, errors.New("missing required parameter: q"))
		return
	}
	maxResults, err := maxResultsParam(r)
	if err != nil {
		s.writeError(w, r, "search", http.StatusBadRequest, err)
		return
	}

	s.serve(w, r, "search", func(ctx context.Context) (any, error) {
		return s.api.Search(ctx, q, maxResults)
	})
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel_id")
	if channelID == "" {
		s.writeError(w, r, "channel", http.StatusBadRequest, errors.New("missing required parameter: channel_id"))
		return
	}

	s.serve(w, r, "channel", func(ctx context.Context) (any, error) {
		return s.api.Channel(ctx, channelID)
	})
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	playlistID := r.URL.Query().Get("playlist_id")
	if playlistID == "" {
		s.writeError(w, r, "playlist", http.StatusBadRequest, errors.New("missing required parameter: playlist_id"))
		return
	}
	maxResults, err := maxResultsParam(r)
	if err != nil {
		s.writeError(w, r, "playlist", http.StatusBadRequest, err)
		return
	}
	idsOnly := r.URL.Query().Get("ids_only") == "true"

	s.serve(w, r, "playlist", func(ctx context.Context) (any, error) {
		return s.api.PlaylistItems(ctx, playlistID, maxResults, idsOnly)
	})
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	videoID := r.URL.Query().Get("video_id")
	if videoID == "" {
		s.writeError(w, r, "video", http.StatusBadRequest, errors.New("missing required parameter: video_id"))
		return
	}

	s.serve(w, r, "video", func(ctx context.Context) (any, error) {
		return s.api.Videos(ctx, videoID)
	})
}

// serve runs one upstream lookup and writes the result or the mapped
// error.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, endpoint string, fn func(ctx context.Context) (any, error)) {
	start := time.Now()
	data, err := fn(r.Context())
	if err != nil {
		status := errorStatus(err)
		if status >= 500 && status != http.StatusServiceUnavailable {
			s.metrics.ObserveUpstreamError()
		}
		if status == http.StatusServiceUnavailable {
			// Exhaustion clears at the next provider-day rollover; quota
			// rejections clear as soon as the rotator advances.
			w.Header().Set("Retry-After", retryAfter(err))
		}
		s.writeError(w, r, endpoint, status, err)
		return
	}

	s.writeJSON(w, http.StatusOK, data)
	s.metrics.ObserveRequest(endpoint, http.StatusOK, time.Since(start))
}

// errorStatus maps core errors onto HTTP statuses so callers can tell
// "come back later" (503) apart from upstream trouble (502/504).
func errorStatus(err error) int {
	switch {
	case errors.Is(err, quota.ErrAllKeysExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, httpx.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	var quotaErr *youtube.QuotaExceededError
	if errors.As(err, &quotaErr) {
		return http.StatusServiceUnavailable
	}
	var upstreamErr *youtube.UpstreamError
	if errors.As(err, &upstreamErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// retryAfter picks the Retry-After value for a 503. A single rejected
// key resolves on the next request; a fully exhausted pool needs the
// day to roll over.
func retryAfter(err error) string {
	if errors.Is(err, quota.ErrAllKeysExhausted) {
		return "3600"
	}
	return "1"
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, endpoint string, status int, err error) {
	slog.Warn("server: request failed",
		slog.String("endpoint", endpoint),
		slog.Int("status", status),
		slog.String("request_id", requestIDFrom(r.Context())),
		slog.Any("error", err))
	s.writeJSON(w, status, errorBody{Error: err.Error()})
	s.metrics.ObserveRequest(endpoint, status, 0)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: response encode failed", slog.Any("error", err))
	}
}

// maxResultsParam parses the optional max_results query parameter.
func maxResultsParam(r *http.Request) (int64, error) {
	v := r.URL.Query().Get("max_results")
	if v == "" {
		return defaultMaxResults, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 1 || n > maxMaxResults {
		return 0, errors.New("max_results must be an integer between 1 and 50")
	}
	return n, nil
}
