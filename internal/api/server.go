package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/nao1215/gridwatch/internal/findings"
	"github.com/nao1215/gridwatch/internal/model"
	"github.com/nao1215/gridwatch/internal/pipeline"
)

// Target is one monitored table served by the API.
type Target struct {
	Store *findings.Store

	// Checker runs checks for POST /checks. Nil disables the route.
	Checker *pipeline.Checker
}

// Server is the HTTP API.
type Server struct {
	targets       map[string]Target
	defaultTarget string
	origins       []string
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins. Default allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithClock sets the clock used for export timestamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Server) {
		s.now = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a server for targets. The first target is the default
// served at the root routes.
func NewServer(targets []Target, opts ...Option) *Server {
	s := &Server{
		targets: make(map[string]Target, len(targets)),
		origins: []string{"*"},
		now:     time.Now,
		logger:  slog.Default(),
	}
	for i, t := range targets {
		name := t.Store.Target()
		if i == 0 {
			s.defaultTarget = name
		}
		s.targets[name] = t
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ctxKey struct{}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/targets", s.handleTargets)

	r.Group(func(r chi.Router) {
		r.Use(s.resolveTarget)
		s.targetRoutes(r)
	})
	r.Route("/targets/{target}", func(r chi.Router) {
		r.Use(s.resolveTarget)
		s.targetRoutes(r)
	})
	return r
}

func (s *Server) targetRoutes(r chi.Router) {
	r.Get("/findings", s.handleFindings)
	r.Get("/findings/{id}", s.handleFinding)
	r.Post("/findings/{id}/comments", s.handleAddComment)
	r.Get("/comments", s.handleComments)
	r.Get("/columns", s.handleColumns)
	r.Get("/stats", s.handleStats)
	r.Get("/export", s.handleExport)
	r.Post("/checks", s.handleCheck)
}

// resolveTarget puts the target named in the path, or the default target,
// into the request context.
func (s *Server) resolveTarget(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "target")
		if name == "" {
			name = s.defaultTarget
		}
		t, ok := s.targets[name]
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown target %q", name))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, t)))
	})
}

func targetFrom(r *http.Request) Target {
	t, _ := r.Context().Value(ctxKey{}).(Target) //nolint:errcheck // set by resolveTarget
	return t
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTargets(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.targets))
	for name := range s.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]any{"default": s.defaultTarget, "targets": names})
}

// handleFindings lists findings. status is open (default), all, or a
// comma-separated list of new, persisting and resolved.
func (s *Server) handleFindings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fs := targetFrom(r).Store.All(filter)
	if fs == nil {
		fs = []model.Finding{}
	}
	writeJSON(w, http.StatusOK, fs)
}

func parseFilter(r *http.Request) (findings.Filter, error) {
	q := r.URL.Query()
	var f findings.Filter
	switch status := strings.TrimSpace(q.Get("status")); status {
	case "", "open":
		f.Statuses = []model.Status{model.StatusNew, model.StatusPersisting}
	case "all":
	default:
		for _, part := range strings.Split(status, ",") {
			st, err := model.ParseStatus(part)
			if err != nil {
				return f, err
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	for _, c := range q["column"] {
		if c = strings.TrimSpace(c); c != "" {
			f.Columns = append(f.Columns, c)
		}
	}
	f.Table = q.Get("table")
	return f, nil
}

func (s *Server) handleFinding(w http.ResponseWriter, r *http.Request) {
	f, err := targetFrom(r).Store.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type commentRequest struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid comment: "+err.Error())
		return
	}
	c, err := targetFrom(r).Store.AttachComment(r.Context(), chi.URLParam(r, "id"), req.Author, req.Body)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, targetFrom(r).Store.Comments(""))
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	cols := targetFrom(r).Store.Columns()
	if cols == nil {
		cols = []model.ColumnInfo{}
	}
	writeJSON(w, http.StatusOK, cols)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, targetFrom(r).Store.Current().Stats)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, targetFrom(r).Store.Current().Export(s.now().UTC()))
}

// checkResponse is the body of POST /checks.
type checkResponse struct {
	Run   *model.CheckRun `json:"run"`
	Error string          `json:"error,omitempty"`
}

// handleCheck runs a check and answers with its result. The check is not
// tied to the request: a client that disconnects does not abort it.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	t := targetFrom(r)
	if t.Checker == nil {
		writeError(w, http.StatusNotImplemented, "checks are not enabled for this target")
		return
	}
	run, err := t.Checker.Check(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, findings.ErrCheckInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case run == nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case err != nil:
		writeJSON(w, http.StatusAccepted, checkResponse{Run: run, Error: err.Error()})
	default:
		writeJSON(w, http.StatusAccepted, checkResponse{Run: run})
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, findings.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, findings.ErrEmptyComment):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("store request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
