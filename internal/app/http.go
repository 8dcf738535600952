package app

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"galley/api/internal/config"
	"galley/api/internal/ratelimit"
)

const sessionCookieName = "galley_session"

type HTTPServer struct {
	service      *Service
	log          *zap.Logger
	corsOrigin   string
	maxBodyBytes int64
	sessionTTL   time.Duration
	secureCookie bool
	loginLimiter *ratelimit.Limiter
	apiLimiter   *ratelimit.Limiter
}

func NewHTTPServer(service *Service, cfg config.Config, log *zap.Logger) *HTTPServer {
	return &HTTPServer{
		service:      service,
		log:          log,
		corsOrigin:   cfg.CORSOrigin,
		maxBodyBytes: cfg.MaxBodyBytes,
		sessionTTL:   cfg.SessionTTL,
		secureCookie: cfg.Production(),
		loginLimiter: ratelimit.New(cfg.LoginAttempts, cfg.LoginWindow),
		apiLimiter:   ratelimit.New(cfg.APIRequestsPerMin, time.Minute),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"persistence": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(r.Context()); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["persistence"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{"ok": status == "ready", "status": status, "checks": checks})
		return
	}

	if !strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	// The login endpoint carries its own, much tighter limiter; the check
	// runs before the body is even read so throttled attempts never reach
	// password comparison.
	if r.URL.Path == "/api/login" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if !s.loginLimiter.Allow(sourceAddr(r)) {
			s.service.RecordRateLimited(sourceAddr(r), r.UserAgent())
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many login attempts, try again later", nil)
			return
		}
		s.handleLogin(w, r)
		return
	}

	if !s.apiLimiter.Allow(sourceAddr(r)) {
		s.service.RecordRateLimited(sourceAddr(r), r.UserAgent())
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, try again later", nil)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/verify" {
		writeJSON(w, http.StatusOK, map[string]any{"valid": s.service.Verify(r.Context(), sessionToken(r))})
		return
	}

	if !s.requireSession(w, r) {
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/logout" {
		s.service.Logout(r.Context(), sessionToken(r), sourceAddr(r), r.UserAgent())
		s.clearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/sections" {
		writeJSON(w, http.StatusOK, s.service.Sections(r.Context()))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/discussions" {
		writeJSON(w, http.StatusOK, s.service.Discussions(r.Context()))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/discussions" {
		s.handleCreateDiscussion(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/stats" {
		writeJSON(w, http.StatusOK, s.service.Stats(r.Context()))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/users" {
		writeJSON(w, http.StatusOK, map[string]any{"users": s.service.Users()})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/security-events" {
		limit := 100
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": s.service.SecurityEvents(limit)})
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "sections" {
		sectionID, err := strconv.Atoi(parts[2])
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.handleSection(w, r, sectionID)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "discussions" {
		discussionID, err := strconv.Atoi(parts[2])
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.handleDiscussion(w, r, discussionID, parts)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "notifications" {
		s.handleNotifications(w, r, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if derr := decodeBody(r, &body); derr != nil {
		writeError(w, derr.Status, derr.Code, derr.Message, nil)
		return
	}
	token, err := s.service.Login(r.Context(), body.Password, sourceAddr(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid password", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Login failed", nil)
		return
	}
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token})
}

func (s *HTTPServer) handleSection(w http.ResponseWriter, r *http.Request, sectionID int) {
	if r.Method == http.MethodGet {
		section, err := s.service.Section(r.Context(), sectionID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, section)
		return
	}

	if r.Method == http.MethodPut {
		var body struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		}
		if derr := decodeBody(r, &body); derr != nil {
			writeError(w, derr.Status, derr.Code, derr.Message, nil)
			return
		}
		if err := s.service.UpdateSection(r.Context(), sectionID, body.Title, body.Content); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleCreateDiscussion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SectionID *int   `json:"section_id"`
		Type      string `json:"type"`
		Text      string `json:"text"`
		Author    string `json:"author"`
	}
	if derr := decodeBody(r, &body); derr != nil {
		writeError(w, derr.Status, derr.Code, derr.Message, nil)
		return
	}
	discussion, err := s.service.CreateDiscussion(r.Context(), body.SectionID, body.Type, body.Text, body.Author)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": discussion.ID, "success": true})
}

func (s *HTTPServer) handleDiscussion(w http.ResponseWriter, r *http.Request, discussionID int, parts []string) {
	if len(parts) == 3 && r.Method == http.MethodDelete {
		s.service.DeleteDiscussion(r.Context(), discussionID)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if len(parts) == 4 && parts[3] == "replies" && r.Method == http.MethodPost {
		var body struct {
			Text   string `json:"text"`
			Author string `json:"author"`
		}
		if derr := decodeBody(r, &body); derr != nil {
			writeError(w, derr.Status, derr.Code, derr.Message, nil)
			return
		}
		reply, err := s.service.AddReply(r.Context(), discussionID, body.Text, body.Author)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": reply.ID, "success": true})
		return
	}

	if len(parts) == 4 && parts[3] == "resolve" && r.Method == http.MethodPatch {
		var body struct {
			Resolved   bool   `json:"resolved"`
			ResolvedBy string `json:"resolved_by"`
		}
		if derr := decodeBody(r, &body); derr != nil {
			writeError(w, derr.Status, derr.Code, derr.Message, nil)
			return
		}
		if err := s.service.SetResolved(r.Context(), discussionID, body.Resolved, body.ResolvedBy); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 3 && r.Method == http.MethodGet {
		notifications, err := s.service.NotificationsFor(r.Context(), parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, notifications)
		return
	}

	if len(parts) == 4 && parts[3] == "read" && r.Method == http.MethodPatch {
		notificationID, err := strconv.Atoi(parts[2])
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.service.MarkNotificationRead(r.Context(), notificationID)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if len(parts) == 4 && parts[3] == "read-all" && r.Method == http.MethodPatch {
		if err := s.service.MarkAllNotificationsRead(r.Context(), parts[2]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) bool {
	if !s.service.Verify(r.Context(), sessionToken(r)) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return false
	}
	return true
}

func (s *HTTPServer) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *HTTPServer) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)
		if r.Body != nil {
			r.Body = http.MaxBytesReader(writer, r.Body, s.maxBodyBytes)
		}

		next.ServeHTTP(writer, r)

		s.log.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
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

func decodeBody(r *http.Request, target any) *DomainError {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domainError(http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), nil)
		}
		return domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	return nil
}

// sessionToken reads the auth cookie first, then falls back to a bearer
// header for non-browser clients.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func sourceAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
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
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
