package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/minhnhutttt/la/internal/auth"
	"github.com/minhnhutttt/la/internal/qa"
	"github.com/minhnhutttt/la/internal/session"
)

type requestMetrics interface {
	Request(method, route string, status int, seconds float64)
	Handler() http.Handler
}

type ServerOption func(*HTTPServer)

func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *HTTPServer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m requestMetrics) ServerOption {
	return func(s *HTTPServer) {
		s.metrics = m
	}
}

// WithRateLimit caps requests per client IP. Zero disables limiting.
func WithRateLimit(perMinute int) ServerOption {
	return func(s *HTTPServer) {
		if perMinute > 0 {
			s.limiter = newIPLimiter(perMinute)
		}
	}
}

// WithTrustedProxies lets peers in prefixes name the client through
// X-Forwarded-For. Without it the header is ignored.
func WithTrustedProxies(prefixes []netip.Prefix) ServerOption {
	return func(s *HTTPServer) {
		s.trustedProxies = prefixes
	}
}

type HTTPServer struct {
	service        *Service
	corsOrigin     string
	logger         *zap.Logger
	metrics        requestMetrics
	limiter        *ipLimiter
	trustedProxies []netip.Prefix
}

func NewHTTPServer(service *Service, corsOrigin string, opts ...ServerOption) *HTTPServer {
	s := &HTTPServer{service: service, corsOrigin: corsOrigin, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" && s.metrics != nil {
		s.metrics.Handler().ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		sess, err := s.service.SessionFromToken(bearerToken(r))
		if err != nil {
			sess = session.Anonymous()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": sess.Authenticated,
			"role":          sess.Role,
			"user":          sess.User,
			"fullName":      sess.FullName(),
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}

	// /api/questions/{id}/views
	if parts[1] == "questions" && len(parts) == 4 && parts[3] == "views" && r.Method == http.MethodPost {
		questionID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			// Rejected by the engine as an invalid id without a fetch.
			questionID = 0
		}
		result, err := s.service.OpenView(r.Context(), sess, questionID)
		s.respond(w, http.StatusCreated, result, err)
		return
	}

	if parts[1] == "views" && len(parts) >= 3 {
		s.handleView(w, r, sess, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleView(w http.ResponseWriter, r *http.Request, sess session.Session, viewID string, rest []string) {
	ctx := r.Context()
	route := strings.Join(rest, "/")

	switch {
	case route == "" && r.Method == http.MethodGet:
		result, err := s.service.GetView(sess, viewID)
		s.respond(w, http.StatusOK, result, err)

	case route == "" && r.Method == http.MethodDelete:
		if err := s.service.CloseView(sess, viewID); err != nil {
			s.respond(w, http.StatusOK, ViewResult{}, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case route == "question/edit" && r.Method == http.MethodPost:
		result, err := s.service.EnterQuestionEdit(sess, viewID)
		s.respond(w, http.StatusOK, result, err)

	case route == "question/draft" && r.Method == http.MethodPut:
		var body qa.QuestionDraft
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.SetQuestionDraft(sess, viewID, body)
		s.respond(w, http.StatusOK, result, err)

	case route == "question/submit" && r.Method == http.MethodPost:
		result, err := s.service.SubmitQuestionEdit(ctx, sess, viewID)
		s.respond(w, http.StatusOK, result, err)

	case route == "question/cancel" && r.Method == http.MethodPost:
		result, err := s.service.CancelQuestionEdit(sess, viewID)
		s.respond(w, http.StatusOK, result, err)

	case route == "answers/compose" && r.Method == http.MethodPut:
		content, ok := decodeContent(w, r)
		if !ok {
			return
		}
		result, err := s.service.SetCompose(sess, viewID, content)
		s.respond(w, http.StatusOK, result, err)

	case route == "answers" && r.Method == http.MethodPost:
		content, ok := decodeContent(w, r)
		if !ok {
			return
		}
		result, err := s.service.CreateAnswer(ctx, sess, viewID, content)
		s.respond(w, http.StatusOK, result, err)

	case route == "answers/edit/draft" && r.Method == http.MethodPut:
		content, ok := decodeContent(w, r)
		if !ok {
			return
		}
		result, err := s.service.SetAnswerDraft(sess, viewID, content)
		s.respond(w, http.StatusOK, result, err)

	case route == "answers/edit/submit" && r.Method == http.MethodPost:
		result, err := s.service.SubmitAnswerEdit(ctx, sess, viewID)
		s.respond(w, http.StatusOK, result, err)

	case route == "answers/edit/cancel" && r.Method == http.MethodPost:
		result, err := s.service.CancelAnswerEdit(sess, viewID)
		s.respond(w, http.StatusOK, result, err)

	case len(rest) == 3 && rest[0] == "answers" && rest[2] == "edit" && r.Method == http.MethodPost:
		answerID, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil || answerID <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_ANSWER_ID", "Invalid answer id", nil)
			return
		}
		result, err := s.service.EnterAnswerEdit(sess, viewID, answerID)
		s.respond(w, http.StatusOK, result, err)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Ready(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// resolveSession returns the anonymous session when no token is sent. A
// token that fails verification is rejected rather than downgraded.
func (s *HTTPServer) resolveSession(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	sess, err := s.service.SessionFromToken(bearerToken(r))
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return session.Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return session.Session{}, false
	}
	return sess, true
}

func (s *HTTPServer) respond(w http.ResponseWriter, status int, result ViewResult, err error) {
	if err != nil {
		code, errCode, message, details := mapError(err)
		if code >= http.StatusInternalServerError {
			s.logger.Error("view action failed", zap.Error(err))
		}
		writeError(w, code, errCode, message, details)
		return
	}
	writeJSON(w, status, result)
}

func decodeContent(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return "", false
	}
	return body.Content, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
