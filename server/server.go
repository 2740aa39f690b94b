// Package server exposes the proxy's inbound HTTP surface: the lookup
// endpoints, the quota status endpoint, health, and metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ytapi "google.golang.org/api/youtube/v3"

	"ytproxy/config"
	"ytproxy/metrics"
	"ytproxy/quota"
)

// API is the upstream lookup surface the handlers forward to.
// *youtube.Client satisfies it; tests substitute fakes.
type API interface {
	Search(ctx context.Context, query string, maxResults int64) (*ytapi.SearchListResponse, error)
	Channel(ctx context.Context, channelID string) (*ytapi.ChannelListResponse, error)
	PlaylistItems(ctx context.Context, playlistID string, maxResults int64, idsOnly bool) (*ytapi.PlaylistItemListResponse, error)
	Videos(ctx context.Context, videoID string) (*ytapi.VideoListResponse, error)
}

// Server is the proxy's HTTP server.
type Server struct {
	cfg     *config.Config
	api     API
	ledger  *quota.Ledger
	rotator *quota.Rotator
	metrics *metrics.Metrics

	// degraded is set at startup when the persistence backend was
	// unreachable and the ledger runs in-memory only.
	degraded bool

	httpServer *http.Server
}

// New creates a server wired to the given collaborators. metrics may be
// nil; degraded marks that usage state will not survive a restart.
func New(cfg *config.Config, api API, ledger *quota.Ledger, rotator *quota.Rotator, m *metrics.Metrics, degraded bool) *Server {
	return &Server{
		cfg:      cfg,
		api:      api,
		ledger:   ledger,
		rotator:  rotator,
		metrics:  m,
		degraded: degraded,
	}
}

// Handler builds the full route table with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /youtube/search", s.handleSearch)
	mux.HandleFunc("GET /youtube/channel", s.handleChannel)
	mux.HandleFunc("GET /youtube/playlist", s.handlePlaylist)
	mux.HandleFunc("GET /youtube/video", s.handleVideo)

	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return s.withRecovery(s.withRequestID(s.withAccessLog(mux)))
}

// Start runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("server: listening",
			slog.String("addr", s.cfg.ListenAddr),
			slog.Bool("degraded", s.degraded))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		slog.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
