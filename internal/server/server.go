// Package server is the serve-mode static file server over the rendered
// output tree.
//
// Requests resolve against the destination root with an index.html
// fallback for directories; unresolved paths get the site's own 404.html
// when it exists. A metrics handler can be mounted at /metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const notFoundPage = "404.html"

// Server serves a rendered site from disk.
type Server struct {
	root    string
	metrics http.Handler
	logger  *slog.Logger
}

// New creates a server over the output root. A nil metrics handler leaves
// /metrics unmounted.
func New(root string, metrics http.Handler) *Server {
	return &Server{root: root, metrics: metrics, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Handler returns the full request handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	mux.HandleFunc("/", s.serveFile)
	return mux
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving site", "addr", addr, "root", s.root)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	rel := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(r.URL.Path, "/")))
	if strings.HasPrefix(rel, "..") {
		http.NotFound(w, r)
		return
	}

	full := filepath.Join(s.root, rel)
	if st, err := os.Stat(full); err == nil {
		if !st.IsDir() {
			http.ServeFile(w, r, full)
			return
		}
		index := filepath.Join(full, "index.html")
		if _, err := os.Stat(index); err == nil {
			http.ServeFile(w, r, index)
			return
		}
	}
	s.notFound(w)
}

func (s *Server) notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)

	if body, err := os.ReadFile(filepath.Join(s.root, notFoundPage)); err == nil {
		_, _ = w.Write(body)
		return
	}
	_, _ = w.Write([]byte("<h1>404</h1><p>Not found!</p>"))
}
