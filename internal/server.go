package internal

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/studyguild/internal/assistant"
	"github.com/kazz187/studyguild/internal/config"
	"github.com/kazz187/studyguild/internal/tool"
	"github.com/kazz187/studyguild/pkg/cerr"
	"github.com/kazz187/studyguild/pkg/clog"
	"github.com/kazz187/studyguild/pkg/docpath"
)

type Server struct {
	mu        sync.Mutex
	server    *http.Server
	env       *config.BaseEnv
	assistant *assistant.Assistant
	validate  *validator.Validate
}

func NewServer(env *config.BaseEnv, a *assistant.Assistant) *Server {
	return &Server{
		env:       env,
		assistant: a,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Handler returns the complete HTTP handler without the h2c wrapper.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			middleware.RequestID,
			middleware.Recoverer,
			clog.SlogChiMiddleware(),
			cerr.NewConvertErrorChiMiddleware(),
		)
		r.Post("/ask", s.ask)
		r.Get("/tasks", s.listTasks)
		r.Get("/tasks/{id}", s.getTask)
		r.Post("/tasks/{id}/complete", s.completeTask)
		r.Get("/tasks/{id}/schedule", s.getSchedule)
		r.Get("/tasks/{id}/schedules", s.listSchedules)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)

	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}).Handler(s.apiKeyMiddleware(mux))
}

// ListenAndServe serves until Shutdown. ctx becomes the base context of
// every request.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	srv := &http.Server{
		Addr:        addr,
		Handler:     h2c.NewHandler(s.Handler(), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return nil
	}
	s.server = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.env.APIKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.Header.Get("Authorization")
			if len(apiKey) > 7 && apiKey[:7] == "Bearer " {
				apiKey = apiKey[7:]
			}
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.APIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type askRequest struct {
	Prompt   string `json:"prompt" validate:"required"`
	FilePath string `json:"file_path"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "prompt is required", err)
		return
	}
	if req.FilePath != "" {
		path, ok := docpath.InDir(s.assistant.Env.UploadsDir, req.FilePath)
		if !ok {
			cerr.SetNewJSONError(ctx, cerr.PermissionDenied, "file_path must name a file inside the uploads directory", nil)
			return
		}
		req.FilePath = path
	}
	ans, err := s.assistant.Ask(ctx, req.Prompt, req.FilePath)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, ans)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tasks, err := s.assistant.Tasks.ListActive(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"tasks": tasks})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := taskID(r)
	if !ok {
		return
	}
	t, err := s.assistant.Tasks.Get(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, t)
}

type completeResponse struct {
	Message string `json:"message"`
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := taskID(r)
	if !ok {
		return
	}
	if _, err := s.assistant.Tasks.Get(ctx, id); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	msg, err := tool.Complete(ctx, s.assistant.Tasks, s.assistant.Bus, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, completeResponse{Message: msg})
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := taskID(r)
	if !ok {
		return
	}
	sch, err := s.assistant.Schedules.Latest(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, sch)
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := taskID(r)
	if !ok {
		return
	}
	if _, err := s.assistant.Tasks.Get(ctx, id); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	schedules, err := s.assistant.Schedules.ListByTask(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"schedules": schedules})
}

func taskID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		cerr.SetNewJSONError(r.Context(), cerr.InvalidArgument, "invalid task id", err)
		return 0, false
	}
	return id, true
}
