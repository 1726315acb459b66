package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vidcast/internal/accounts"
	"vidcast/internal/api"
	"vidcast/internal/config"
	"vidcast/internal/logging"
	"vidcast/internal/queue"
	"vidcast/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(srv.requestContext)
	router.Use(authMiddleware(cfg.Paths.APIToken))
	router.Route("/api", func(r chi.Router) {
		r.Get("/status", srv.handleStatus)
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", srv.handleSubmitTask)
			r.Get("/{id}", srv.handleGetTask)
			r.Delete("/{id}", srv.handleCancelTask)
		})
		r.Route("/queue", func(r chi.Router) {
			r.Get("/", srv.handleListQueue)
			r.Post("/clear", srv.handleClearQueue)
			r.Post("/retry", srv.handleRetryFailed)
		})
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", srv.handleListAccounts)
			r.Post("/", srv.handleAddAccount)
			r.Delete("/{id}", srv.handleRemoveAccount)
			r.Post("/check", srv.handleCheckAllAccounts)
			r.Post("/{id}/check", srv.handleCheckAccount)
		})
	})

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr exposes the bound address, which matters when binding port 0 in tests.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// requestContext carries chi's request id into the service context so every
// log line downstream of a handler correlates back to the API call.
func (s *apiServer) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := services.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.daemon.scheduler.QueueStatus(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.Status{
		Running:       s.daemon.Running(),
		ActiveUploads: s.daemon.scheduler.ActiveCount(),
		MaxConcurrent: s.daemon.cfg.Scheduler.MaxConcurrent,
		Queue:         summary,
	})
}

func (s *apiServer) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	priority := queue.PriorityNormal
	if req.Priority != "" {
		parsed, ok := queue.ParsePriority(req.Priority)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown priority %q", req.Priority))
			return
		}
		priority = parsed
	}

	task, err := s.daemon.scheduler.Submit(r.Context(), queue.NewTaskParams{
		ResourceID:  req.ResourceID,
		SourcePath:  req.SourcePath,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		CategoryID:  req.CategoryID,
		AccountID:   req.AccountID,
		Priority:    priority,
		MaxRetries:  req.MaxRetries,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, api.NewTask(task))
}

func (s *apiServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.daemon.scheduler.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.NewTask(task))
}

func (s *apiServer) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	err := s.daemon.scheduler.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "task not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleListQueue(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, value := range strings.Split(raw, ",") {
			status, ok := queue.ParseStatus(value)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
				return
			}
			statuses = append(statuses, status)
		}
	}

	tasks, err := s.daemon.store.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]api.Task, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, api.NewTask(task))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *apiServer) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	removed, err := s.daemon.store.ClearTerminal(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.ClearResult{Removed: removed})
}

func (s *apiServer) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	var req api.RetryRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}
	retried, err := s.daemon.store.RetryFailed(r.Context(), req.IDs...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.RetryResult{Retried: retried})
}

func (s *apiServer) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	pool, err := s.daemon.accounts.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]api.Account, 0, len(pool))
	for _, account := range pool {
		views = append(views, api.NewAccount(account))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *apiServer) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	var req api.AddAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	cred := accounts.Credential{Session: req.Session, CSRF: req.CSRF, UserID: req.UserID}
	if !cred.Complete() {
		s.writeError(w, http.StatusBadRequest, "session, csrf, and user_id are required")
		return
	}
	sealed, err := s.daemon.vault.Seal(cred)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "credential_expires_at must be RFC3339")
			return
		}
		expiresAt = &parsed
	}

	account, err := s.daemon.accounts.Add(r.Context(), req.Label, sealed, req.Level, req.VIP, expiresAt)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, api.NewAccount(account))
}

func (s *apiServer) handleRemoveAccount(w http.ResponseWriter, r *http.Request) {
	removed, err := s.daemon.accounts.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "account not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleCheckAccount(w http.ResponseWriter, r *http.Request) {
	if s.daemon.monitor == nil {
		s.writeError(w, http.StatusServiceUnavailable, "health monitor unavailable")
		return
	}
	account, err := s.daemon.accounts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if account == nil {
		s.writeError(w, http.StatusNotFound, "account not found")
		return
	}

	report, err := s.daemon.monitor.Check(r.Context(), account)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.NewHealthReport(report))
}

func (s *apiServer) handleCheckAllAccounts(w http.ResponseWriter, r *http.Request) {
	if s.daemon.monitor == nil {
		s.writeError(w, http.StatusServiceUnavailable, "health monitor unavailable")
		return
	}
	reports, err := s.daemon.monitor.CheckAll(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]api.HealthReport, 0, len(reports))
	for _, report := range reports {
		views = append(views, api.NewHealthReport(report))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode api response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
