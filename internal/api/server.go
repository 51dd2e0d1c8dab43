// Package api serves the cached collections over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"farmScope/internal/cache"
	"farmScope/internal/model"
	"farmScope/internal/refresh"
)

// DefaultRefreshTimeout bounds a refresh started by POST /refresh.
const DefaultRefreshTimeout = 5 * time.Minute

// Refresher runs a refresh cycle on demand and reports the last one.
type Refresher interface {
	RefreshAll(ctx context.Context) (*model.RefreshReport, error)
	LastReport(ctx context.Context) (*model.RefreshReport, bool, error)
}

type Server struct {
	cols           *cache.Collections
	refresher      Refresher
	metrics        http.Handler
	logger         *zap.Logger
	refreshTimeout time.Duration
}

type Option func(*Server)

// WithRefreshTimeout bounds refreshes started over HTTP. The refresh is
// detached from the request, so a client disconnect does not abort it.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.refreshTimeout = d
		}
	}
}

// NewServer builds the read API. refresher and metrics may be nil, in which
// case their routes are not registered.
func NewServer(cols *cache.Collections, refresher Refresher, metrics http.Handler, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cols:           cols,
		refresher:      refresher,
		metrics:        metrics,
		logger:         logger,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /list-farms", s.handleFarms)
	mux.HandleFunc("GET /list-pools", s.handlePools)
	mux.HandleFunc("GET /whitelisted-tokens", s.handleTokens)
	mux.HandleFunc("GET /last-refresh", s.handleLastRefresh)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.refresher != nil {
		mux.HandleFunc("POST /refresh", s.handleRefresh)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleFarms(w http.ResponseWriter, r *http.Request) {
	farms, err := s.cols.Farms(r.Context())
	if err != nil {
		s.storeError(w, "farms", err)
		return
	}
	writeJSON(w, http.StatusOK, farms)
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.cols.Pools(r.Context())
	if err != nil {
		s.storeError(w, "pools", err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.cols.Tokens(r.Context())
	if err != nil {
		s.storeError(w, "token metadata", err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) handleLastRefresh(w http.ResponseWriter, r *http.Request) {
	var (
		report *model.RefreshReport
		ok     bool
		err    error
	)
	if s.refresher != nil {
		report, ok, err = s.refresher.LastReport(r.Context())
	} else {
		report, ok, err = s.cols.Report(r.Context())
	}
	if err != nil {
		s.storeError(w, "refresh report", err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.refreshTimeout)
	defer cancel()

	report, err := s.refresher.RefreshAll(ctx)
	switch {
	case errors.Is(err, refresh.ErrRefreshInProgress):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case err != nil:
		s.logger.Warn("refresh request", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) storeError(w http.ResponseWriter, what string, err error) {
	s.logger.Warn("read cached collection", zap.String("collection", what), zap.Error(err))
	writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "cache unavailable"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
