package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AniketChoudhary834/LMS/internal/apperr"
	"github.com/AniketChoudhary834/LMS/internal/ratelimit"
	"github.com/AniketChoudhary834/LMS/internal/util"
	"github.com/AniketChoudhary834/LMS/internal/validate"
	"github.com/AniketChoudhary834/LMS/pkg/auth"
	"github.com/AniketChoudhary834/LMS/pkg/domain"
	"github.com/AniketChoudhary834/LMS/services/auth/internal/app"
	"github.com/AniketChoudhary834/LMS/services/auth/internal/security"
)

const maxJSONBody = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                        *app.App
	Redis                      *redis.Client
	Alerter                    *security.AuditAlerter
	TrustedProxies             *util.TrustedProxies
	RegisterRateLimitPerMinute int
	VerifyRateLimitPerMinute   int
	LoginRateLimitPerMinute    int
	PasswordRateLimitPerMinute int
}

// Server exposes HTTP endpoints for the auth service.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	alerter         *security.AuditAlerter
	trusted         *util.TrustedProxies
	registerLimiter *ratelimit.FixedWindowLimiter
	verifyLimiter   *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
	passwordLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	newLimiter := func(name string, limit, fallback int) (*ratelimit.FixedWindowLimiter, error) {
		if limit <= 0 {
			limit = fallback
		}
		limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "lms:auth:ratelimit:"+name, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	registerLimiter, err := newLimiter("register", cfg.RegisterRateLimitPerMinute, 5)
	if err != nil {
		return nil, err
	}
	verifyLimiter, err := newLimiter("verify", cfg.VerifyRateLimitPerMinute, 10)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", cfg.LoginRateLimitPerMinute, 10)
	if err != nil {
		return nil, err
	}
	passwordLimiter, err := newLimiter("password", cfg.PasswordRateLimitPerMinute, 5)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		alerter:         cfg.Alerter,
		trusted:         cfg.TrustedProxies,
		registerLimiter: registerLimiter,
		verifyLimiter:   verifyLimiter,
		loginLimiter:    loginLimiter,
		passwordLimiter: passwordLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the shared middleware chain.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithCORS(h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRecover(h)
	h = util.WithRequestLog("auth", h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/verify-otp", s.handleVerifyOTP)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.Handle("/api/auth/check-auth", s.authenticated(s.handleCheckAuth))
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/api/auth/forgot-password", s.handleForgotPassword)
	s.mux.HandleFunc("/api/auth/reset-password", s.handleResetPassword)

	s.mux.HandleFunc("/auth/jwks", s.handleJWKS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "auth.authorize", "fail", "reason", "missing_token")
			writeAppError(w, r, app.ErrUnauthorizedToken)
			return
		}
		user, err := s.app.UserFromToken(r.Context(), token)
		if err != nil {
			s.audit(r, "auth.authorize", "fail", "reason", string(apperr.KindOf(err)))
			writeAppError(w, r, err)
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "auth.register", s.registerLimiter) {
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	err := s.app.Register(r.Context(), app.RegisterInput{
		Name:     req.UserName,
		Email:    req.UserEmail,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		s.auditError(r, "auth.register", err, "email", auth.MaskEmail(req.UserEmail))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.register", "success", "email", auth.MaskEmail(req.UserEmail))
	writeJSON(w, http.StatusCreated, messageResponse{Success: true, Message: "OTP sent to email"})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "auth.verify_otp", s.verifyLimiter) {
		return
	}
	var req verifyOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	user, err := s.app.VerifyOTP(r.Context(), req.UserEmail, req.OTP)
	if err != nil {
		s.auditError(r, "auth.verify_otp", err, "email", auth.MaskEmail(req.UserEmail))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.verify_otp", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, verifyOTPResponse{Success: true, Message: "Registration complete", User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "auth.login", s.loginLimiter) {
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	user, token, err := s.app.Login(r.Context(), req.UserEmail, req.Password)
	if err != nil {
		s.auditError(r, "auth.login", err, "email", auth.MaskEmail(req.UserEmail))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.app.SessionTTL().Seconds()),
		User:        user,
	})
}

func (s *Server) handleCheckAuth(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "auth.logout", "fail", "reason", "missing_token")
		writeAppError(w, r, app.ErrUnauthorizedToken)
		return
	}
	if err := s.app.Logout(token); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "auth.forgot_password", s.passwordLimiter) {
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.app.ForgotPassword(r.Context(), req.UserEmail); err != nil {
		s.auditError(r, "auth.forgot_password", err, "email", auth.MaskEmail(req.UserEmail))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.forgot_password", "success", "email", auth.MaskEmail(req.UserEmail))
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "OTP sent to email"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "auth.reset_password", s.passwordLimiter) {
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.app.ResetPassword(r.Context(), req.UserEmail, req.OTP, req.NewPassword); err != nil {
		s.auditError(r, "auth.reset_password", err, "email", auth.MaskEmail(req.UserEmail))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.reset_password", "success", "email", auth.MaskEmail(req.UserEmail))
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Password reset successful"})
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, map[string]any{"keys": s.app.JWKS()})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: "method_not_allowed"})
}

type registerRequest struct {
	UserName  string `json:"userName" validate:"required"`
	UserEmail string `json:"userEmail" validate:"required"`
	Password  string `json:"password" validate:"required"`
	Role      string `json:"role" validate:"omitempty,oneof=student instructor user"`
}

type verifyOTPRequest struct {
	UserEmail string `json:"userEmail" validate:"required"`
	OTP       string `json:"otp" validate:"required"`
}

type loginRequest struct {
	UserEmail string `json:"userEmail" validate:"required"`
	Password  string `json:"password" validate:"required"`
}

type forgotPasswordRequest struct {
	UserEmail string `json:"userEmail" validate:"required"`
}

type resetPasswordRequest struct {
	UserEmail   string `json:"userEmail" validate:"required"`
	OTP         string `json:"otp" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type verifyOTPResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	User    domain.User `json:"user"`
}

type loginResponse struct {
	AccessToken string      `json:"accessToken"`
	TokenType   string      `json:"tokenType"`
	ExpiresIn   int64       `json:"expiresIn"`
	User        domain.User `json:"user"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// decodeJSON reads a bounded JSON body into dst and validates its tags.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
		return apperr.Wrap(apperr.Validation, "invalid JSON body", err)
	}
	return validate.Struct(dst)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, event string, limiter *ratelimit.FixedWindowLimiter) bool {
	ok, retryAfter := limiter.Allow(r.Context(), r.URL.Path+"|"+s.clientIP(r))
	if ok {
		return true
	}
	s.audit(r, event, "rate_limited")
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeAppError(w, r, apperr.New(apperr.RateLimited, "too many requests, try again later"))
	return false
}

func (s *Server) auditError(r *http.Request, event string, err error, attrs ...any) {
	attrs = append(attrs, "reason", string(apperr.KindOf(err)))
	s.audit(r, event, "fail", attrs...)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := s.clientIP(r)
	logger := util.LoggerFromContext(r.Context())
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
	} else {
		logger.Warn("security_event", logAttrs...)
	}

	result, err := s.alerter.Observe(context.WithoutCancel(r.Context()), event, outcome, ip)
	if err != nil {
		logger.Warn("security alert counter failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trusted)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeAppError maps err to its HTTP status. Unclassified errors are logged
// and answered with a generic 500.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, apperr.Status(kind), errorResponse{Error: apperr.MessageOf(err), Code: string(kind)})
}
