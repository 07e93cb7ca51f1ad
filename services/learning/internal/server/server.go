package server

import (
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
	"github.com/AniketChoudhary834/LMS/pkg/domain"
	"github.com/AniketChoudhary834/LMS/services/learning/internal/app"
)

const (
	maxJSONBody          = 1 << 20
	defaultMaxUpload     = int64(1 << 30)
	defaultQuizPerMinute = 5
)

var errUnauthorized = apperr.New(apperr.Unauthorized, "unauthorized")

// TokenVerifier resolves a bearer token to the caller's identity.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                    *app.App
	Verifier               TokenVerifier
	Redis                  *redis.Client
	TrustedProxies         *util.TrustedProxies
	MaxUploadBytes         int64
	QuizRateLimitPerMinute int
}

// Server exposes HTTP endpoints for the learning service.
type Server struct {
	app         *app.App
	verifier    TokenVerifier
	mux         *http.ServeMux
	trusted     *util.TrustedProxies
	maxUpload   int64
	quizLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("server: token verifier is required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.QuizRateLimitPerMinute <= 0 {
		cfg.QuizRateLimitPerMinute = defaultQuizPerMinute
	}
	quizLimiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "lms:learning:ratelimit:quiz", cfg.QuizRateLimitPerMinute, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init quiz limiter: %w", err)
	}
	s := &Server{
		app:         cfg.App,
		verifier:    cfg.Verifier,
		mux:         http.NewServeMux(),
		trusted:     cfg.TrustedProxies,
		maxUpload:   cfg.MaxUploadBytes,
		quizLimiter: quizLimiter,
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
	h = util.WithRequestLog("learning", h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/api/courses", s.publicReads(s.handleCourses))
	s.mux.Handle("/api/courses/instructor", s.authenticated(s.handleInstructorCourses))
	s.mux.Handle("/api/courses/enrolled", s.authenticated(s.handleEnrolledCourses))
	s.mux.Handle("/api/courses/{id}", s.publicReads(s.handleCourse))
	s.mux.Handle("/api/courses/{id}/publish", s.authenticated(s.handlePublish))
	s.mux.Handle("/api/courses/{id}/enroll", s.authenticated(s.handleEnroll))
	s.mux.Handle("/api/courses/{id}/enrollment", s.authenticated(s.handleEnrollment))

	s.mux.Handle("/api/progress/mark-viewed", s.authenticated(s.handleMarkViewed))
	s.mux.Handle("/api/progress/reset", s.authenticated(s.handleResetProgress))
	s.mux.Handle("/api/progress/{userId}/{courseId}", s.authenticated(s.handleGetProgress))

	s.mux.Handle("/api/quiz/generate", s.authenticated(s.handleGenerateQuiz))
	s.mux.Handle("/api/quiz/results", s.authenticated(s.handleQuizResults))

	s.mux.Handle("/api/media/upload", s.authenticated(s.handleUpload))
	s.mux.Handle("/api/media/{publicId}", s.authenticated(s.handleDeleteMedia))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.Identity)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "learning.authorize", "fail", "reason", "missing_token")
			writeAppError(w, r, errUnauthorized)
			return
		}
		caller, err := s.verifier.Verify(token)
		if err != nil {
			s.audit(r, "learning.authorize", "fail", "reason", "invalid_token")
			writeAppError(w, r, apperr.Wrap(errUnauthorized.Kind, errUnauthorized.Message, err))
			return
		}
		next(w, r, caller)
	})
}

// publicReads serves GET requests without credentials as an anonymous
// caller (zero Identity). A request carrying a token, or using any other
// method, goes through authenticated.
func (s *Server) publicReads(next authHandler) http.Handler {
	auth := s.authenticated(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.Header.Get("Authorization") == "" {
			next(w, r, domain.Identity{})
			return
		}
		auth.ServeHTTP(w, r)
	})
}

// courses

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		filter := app.ParseCourseFilter(q.Get("category"), q.Get("level"), q.Get("primaryLanguage"), q.Get("sortBy"))
		list := s.app.ListPublished
		if caller.ID == "" {
			list = s.app.PublicCatalog
		}
		courses, err := list(r.Context(), filter)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, coursesResponse{Courses: courses})
	case http.MethodPost:
		var req courseRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAppError(w, r, err)
			return
		}
		course, err := s.app.CreateCourse(r.Context(), caller, req.input())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, course)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleInstructorCourses(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	courses, err := s.app.ListByInstructor(r.Context(), caller)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, coursesResponse{Courses: courses})
}

func (s *Server) handleEnrolledCourses(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	entries, err := s.app.EnrolledCourses(r.Context(), caller.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": entries})
}

func (s *Server) handleCourse(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		get := s.app.GetCourse
		if caller.ID == "" {
			get = s.app.PublicCourse
		}
		course, err := get(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, course)
	case http.MethodPut:
		var req courseRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAppError(w, r, err)
			return
		}
		course, err := s.app.UpdateCourse(r.Context(), caller, id, req.input())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, course)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var req publishRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	course, err := s.app.SetPublished(r.Context(), caller, r.PathValue("id"), *req.IsPublished)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	res, err := s.app.Enroll(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyEnrolled {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (s *Server) handleEnrollment(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	enrolled, err := s.app.IsEnrolled(r.Context(), caller.ID, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enrolled": enrolled})
}

// progress

func (s *Server) handleMarkViewed(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req markViewedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	record, err := s.app.MarkLectureViewed(r.Context(), caller, req.CourseID, req.LectureID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleResetProgress(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req resetProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	record, err := s.app.ResetProgress(r.Context(), caller, req.CourseID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	view, err := s.app.GetProgress(r.Context(), caller, r.PathValue("userId"), r.PathValue("courseId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// quiz

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req generateQuizRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if ok, retryAfter := s.quizLimiter.Allow(r.Context(), "user|"+caller.ID); !ok {
		s.audit(r, "learning.quiz_generate", "rate_limited", "user_id", caller.ID)
		w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(retryAfter)))
		writeAppError(w, r, apperr.New(apperr.RateLimited, "too many quiz requests, try again later"))
		return
	}
	quiz, err := s.app.GenerateQuiz(r.Context(), req.Topic)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (s *Server) handleQuizResults(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		results, err := s.app.ListResults(r.Context(), caller)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	case http.MethodPost:
		var req submitResultRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAppError(w, r, err)
			return
		}
		result, err := s.app.SubmitResult(r.Context(), caller, app.SubmitInput{
			Topic:     req.Topic,
			Questions: req.Questions,
			Answers:   req.Answers,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	default:
		methodNotAllowed(w)
	}
}

// media

// handleUpload streams the "file" part of a multipart body into storage.
// Bodies declared larger than the ceiling are refused before any read.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !caller.IsInstructor() {
		writeAppError(w, r, app.ErrInstructorOnly)
		return
	}
	if r.ContentLength > s.maxUpload {
		s.audit(r, "learning.media_upload", "fail", "reason", "too_large", "content_length", r.ContentLength)
		writeAppError(w, r, app.ErrFileTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	mr, err := r.MultipartReader()
	if err != nil {
		writeAppError(w, r, apperr.Wrap(apperr.Validation, "multipart form body required", err))
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeAppError(w, r, app.ErrFileRequired)
			return
		}
		if err != nil {
			writeAppError(w, r, multipartError(err))
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		res, err := s.app.UploadMedia(r.Context(), caller, app.Upload{
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Size:        -1,
			Body:        part,
		})
		_ = part.Close()
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		util.LoggerFromContext(r.Context()).Info("media uploaded", "public_id", res.PublicID, "user_id", caller.ID)
		writeJSON(w, http.StatusCreated, res)
		return
	}
}

func (s *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.DeleteMedia(r.Context(), caller, r.PathValue("publicId")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func multipartError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Wrap(app.ErrFileTooLarge.Kind, app.ErrFileTooLarge.Message, err)
	}
	return apperr.Wrap(apperr.Validation, "malformed multipart body", err)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: "method_not_allowed"})
}

type courseRequest struct {
	Title          string           `json:"title" validate:"required"`
	Category       string           `json:"category"`
	Level          string           `json:"level"`
	Language       string           `json:"primaryLanguage"`
	Subtitle       string           `json:"subtitle"`
	Description    string           `json:"description"`
	Image          string           `json:"image"`
	WelcomeMessage string           `json:"welcomeMessage"`
	Pricing        float64          `json:"pricing" validate:"gte=0"`
	Objectives     string           `json:"objectives"`
	Curriculum     []domain.Lecture `json:"curriculum"`
	IsPublished    bool             `json:"isPublished"`
}

func (req courseRequest) input() app.CourseInput {
	return app.CourseInput{
		Title:          req.Title,
		Category:       req.Category,
		Level:          req.Level,
		Language:       req.Language,
		Subtitle:       req.Subtitle,
		Description:    req.Description,
		Image:          req.Image,
		WelcomeMessage: req.WelcomeMessage,
		Pricing:        req.Pricing,
		Objectives:     req.Objectives,
		Curriculum:     req.Curriculum,
		IsPublished:    req.IsPublished,
	}
}

type publishRequest struct {
	IsPublished *bool `json:"isPublished" validate:"required"`
}

type markViewedRequest struct {
	CourseID  string `json:"courseId" validate:"required"`
	LectureID string `json:"lectureId" validate:"required"`
}

type resetProgressRequest struct {
	CourseID string `json:"courseId" validate:"required"`
}

type generateQuizRequest struct {
	Topic string `json:"topic" validate:"required"`
}

type submitResultRequest struct {
	Topic     string                `json:"topic" validate:"required"`
	Questions []domain.QuizQuestion `json:"questions" validate:"required,min=1"`
	Answers   map[string]string     `json:"answers"`
}

type coursesResponse struct {
	Courses []domain.Course `json:"courses"`
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

func retrySeconds(d time.Duration) int {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	util.LoggerFromContext(r.Context()).Warn("security_event", append(logAttrs, attrs...)...)
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
