// Package server exposes the synchronization service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/edubridge/portalsync/pkg/academic"
	"github.com/edubridge/portalsync/pkg/health"
	"github.com/edubridge/portalsync/pkg/portal"
	"github.com/edubridge/portalsync/pkg/session"
)

// AcademicService is the application surface the HTTP layer exposes.
type AcademicService interface {
	Health(ctx context.Context, requestID string) (*portal.HealthResult, error)
	Login(ctx context.Context, username, password, requestID string) (*session.Session, error)
	Logout(ctx context.Context, sessionID string) error
	Me(ctx context.Context, sessionID, requestID string, refresh bool) (*academic.Result, error)
	Semesters(ctx context.Context, sessionID, requestID string, refresh bool) (*academic.Result, error)
	Grades(ctx context.Context, sessionID, semester, requestID string, refresh bool) (*academic.Result, error)
	Schedule(ctx context.Context, sessionID, term, requestID string, refresh bool) (*academic.Result, error)
}

// envelope is the uniform response body.
type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	Source    string          `json:"source,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Cached    bool            `json:"cached"`
	Fallback  bool            `json:"fallback"`
	FetchedAt *time.Time      `json:"fetchedAt,omitempty"`
	Warning   string          `json:"warning,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler provides the academic REST API.
type Handler struct {
	mux     *http.ServeMux
	svc     AcademicService
	checker *health.Checker
	log     *slog.Logger
	now     func() time.Time
}

// NewHandler creates the API handler.
func NewHandler(svc AcademicService, checker *health.Checker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		mux:     http.NewServeMux(),
		svc:     svc,
		checker: checker,
		log:     logger,
		now:     time.Now,
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all API routes.
func (h *Handler) registerRoutes() {
	if h.checker != nil {
		h.mux.HandleFunc("GET /healthz", h.checker.LivenessHandler())
		h.mux.HandleFunc("GET /readyz", h.checker.ReadinessHandler())
	}

	h.mux.HandleFunc("GET /api/academic/health", h.handleHealth)
	h.mux.HandleFunc("POST /api/academic/login", h.handleLogin)
	h.mux.HandleFunc("POST /api/academic/logout", h.handleLogout)
	h.mux.HandleFunc("GET /api/academic/me", h.handleMe)
	h.mux.HandleFunc("GET /api/academic/semesters", h.handleSemesters)
	h.mux.HandleFunc("GET /api/academic/grades", h.handleGrades)
	h.mux.HandleFunc("GET /api/academic/schedule", h.handleSchedule)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFrom(r.Context())

	result, err := h.svc.Health(r.Context(), requestID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeEnvelope(w, http.StatusOK, envelope{
		Success:   true,
		Message:   "portal probe complete",
		Data:      data,
		RequestID: requestID,
	})
}

// loginRequest is the login body.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the successful login payload.
type loginResponse struct {
	SessionID string    `json:"sessionId"`
	Account   string    `json:"account"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFrom(r.Context())

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeEnvelope(w, http.StatusBadRequest, envelope{
			Message: "invalid request body", RequestID: requestID,
		})
		return
	}
	if req.Username == "" || req.Password == "" {
		h.writeEnvelope(w, http.StatusBadRequest, envelope{
			Message: "username and password are required", RequestID: requestID,
		})
		return
	}

	sess, err := h.svc.Login(r.Context(), req.Username, req.Password, requestID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	data, err := json.Marshal(loginResponse{
		SessionID: sess.ID,
		Account:   sess.Account,
		ExpiresAt: sess.AbsoluteExpiresAt,
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeEnvelope(w, http.StatusOK, envelope{
		Success:   true,
		Message:   "authenticated",
		Data:      data,
		RequestID: requestID,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFrom(r.Context())

	if err := h.svc.Logout(r.Context(), sessionID(r)); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeEnvelope(w, http.StatusOK, envelope{
		Success:   true,
		Message:   "session discarded",
		RequestID: requestID,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Me(r.Context(), sessionID(r), RequestIDFrom(r.Context()), wantRefresh(r))
	h.writeResult(w, r, result, err)
}

func (h *Handler) handleSemesters(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Semesters(r.Context(), sessionID(r), RequestIDFrom(r.Context()), wantRefresh(r))
	h.writeResult(w, r, result, err)
}

func (h *Handler) handleGrades(w http.ResponseWriter, r *http.Request) {
	semester := r.URL.Query().Get("semester")
	result, err := h.svc.Grades(r.Context(), sessionID(r), semester, RequestIDFrom(r.Context()), wantRefresh(r))
	h.writeResult(w, r, result, err)
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	result, err := h.svc.Schedule(r.Context(), sessionID(r), term, RequestIDFrom(r.Context()), wantRefresh(r))
	h.writeResult(w, r, result, err)
}

// sessionID pulls the session token from Authorization: Bearer or the
// X-Session-ID header.
func sessionID(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}
	return r.Header.Get("X-Session-ID")
}

func wantRefresh(r *http.Request) bool {
	v := r.URL.Query().Get("refresh")
	return v == "1" || strings.EqualFold(v, "true")
}

func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, result *academic.Result, err error) {
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	env := envelope{
		Success:   true,
		Source:    result.Source,
		Data:      result.Payload,
		Cached:    result.Cached,
		Fallback:  result.Fallback,
		Warning:   result.Warning,
		RequestID: RequestIDFrom(r.Context()),
	}
	if result.Fallback {
		env.Message = "upstream unavailable, serving stored data"
	}
	if !result.FetchedAt.IsZero() {
		at := result.FetchedAt
		env.FetchedAt = &at
	}
	h.writeEnvelope(w, http.StatusOK, env)
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	requestID := RequestIDFrom(r.Context())
	status := http.StatusInternalServerError
	message := "internal error"

	if reason, ok := academic.ReasonOf(err); ok {
		status = statusFor(reason)
		message = string(reason)
	}
	h.log.Error("request failed",
		"path", r.URL.Path, "status", status, "requestId", requestID, "error", err)

	h.writeEnvelope(w, status, envelope{Message: message, RequestID: requestID})
}

// statusFor maps failure classifications to HTTP status codes.
func statusFor(reason academic.Reason) int {
	switch reason {
	case academic.ReasonCredentialsRejected, academic.ReasonSessionInvalid:
		return http.StatusUnauthorized
	case academic.ReasonUpstreamUnreachable:
		return http.StatusServiceUnavailable
	case academic.ReasonExtractionDegraded:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	env.Timestamp = h.now().UTC()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
