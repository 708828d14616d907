package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dshills/quorum/internal/diff"
	"github.com/dshills/quorum/internal/logging"
	"github.com/dshills/quorum/internal/metrics"
	"github.com/dshills/quorum/internal/review"
	"github.com/dshills/quorum/internal/store"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 10 << 20

const shutdownTimeout = 15 * time.Second

// Reviewer runs a review over parsed files. *review.Orchestrator implements it.
type Reviewer interface {
	Run(ctx context.Context, files []diff.FileChange) (*review.Report, error)
}

// Fetcher retrieves a pull request diff. *github.Client implements it.
type Fetcher interface {
	FetchDiff(ctx context.Context, owner, repo string, number int) (string, error)
}

// History persists reports. *store.Store implements it.
type History interface {
	Save(ctx context.Context, report *review.Report) error
	Get(ctx context.Context, id string) (*review.Report, error)
	List(ctx context.Context, limit int) ([]store.Entry, error)
}

// Options configures a Server. Reviewer is required; a nil Fetcher disables
// /review/github and a nil History disables /reviews.
type Options struct {
	Addr          string
	Version       string
	MinConfidence float64

	Reviewer Reviewer
	Fetcher  Fetcher
	History  History

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Server is the quorum HTTP service.
type Server struct {
	opts    Options
	log     *slog.Logger
	handler http.Handler
}

// New builds the server and its routes.
func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	s := &Server{opts: opts, log: logging.OrNop(opts.Logger)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /review/manual", s.handleManual)
	mux.HandleFunc("POST /review/github", s.handleGitHub)
	mux.HandleFunc("GET /reviews", s.handleList)
	mux.HandleFunc("GET /reviews/{id}", s.handleGet)
	mux.Handle("GET /metrics", opts.Metrics.Handler())

	s.handler = otelhttp.NewHandler(s.accessLog(mux), "quorum.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return s
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		level := slog.LevelInfo
		if rec.status >= 500 {
			level = slog.LevelWarn
		}
		s.log.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
		)
	})
}
