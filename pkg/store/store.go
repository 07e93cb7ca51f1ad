package store

import (
	"context"
	"errors"
	"time"

	"github.com/AniketChoudhary834/LMS/pkg/domain"
)

var (
	// ErrNotFound is returned by Update* when the target document is missing.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique column already holds the value.
	ErrDuplicate = errors.New("duplicate record")
)

// UserStore persists identities.
type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) error
	SaveUser(ctx context.Context, u domain.User) error
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	HasUserEmailOrName(ctx context.Context, email, name string) (bool, error)
}

// CourseFilter narrows ListPublishedCourses. Empty slices match everything.
type CourseFilter struct {
	Categories []string
	Levels     []string
	Languages  []string
	Sort       CourseSort
}

type CourseSort string

const (
	SortTitleAsc  CourseSort = "title-atoz"
	SortTitleDesc CourseSort = "title-ztoa"
	SortNewest    CourseSort = "newest"
	SortOldest    CourseSort = "oldest"
)

// CourseStore persists the catalog. UpdateCourse runs fn against the
// locked current document and saves the result unless fn returns an error.
type CourseStore interface {
	CreateCourse(ctx context.Context, c domain.Course) error
	GetCourse(ctx context.Context, id string) (domain.Course, bool, error)
	UpdateCourse(ctx context.Context, id string, fn func(*domain.Course) error) (domain.Course, error)
	ListPublishedCourses(ctx context.Context, filter CourseFilter) ([]domain.Course, error)
	ListCoursesByInstructor(ctx context.Context, instructorID string) ([]domain.Course, error)
}

// LedgerStore persists per-student enrollment ledgers. UpdateLedger starts
// from an empty ledger when the student has none.
type LedgerStore interface {
	GetLedger(ctx context.Context, studentID string) (domain.EnrollmentLedger, bool, error)
	UpdateLedger(ctx context.Context, studentID string, fn func(*domain.EnrollmentLedger) error) (domain.EnrollmentLedger, error)
}

// ProgressStore persists progress records. UpdateProgress passes exists=false
// with a fresh record when none is stored yet.
type ProgressStore interface {
	GetProgress(ctx context.Context, studentID, courseID string) (domain.ProgressRecord, bool, error)
	UpdateProgress(ctx context.Context, studentID, courseID string, fn func(p *domain.ProgressRecord, exists bool) error) (domain.ProgressRecord, error)
}

// QuizStore is the append-only quiz result log.
type QuizStore interface {
	AppendQuizResult(ctx context.Context, r domain.QuizResult) error
	ListQuizResults(ctx context.Context, userID string) ([]domain.QuizResult, error)
}

// Store is the full persistence surface shared by the services.
type Store interface {
	UserStore
	CourseStore
	LedgerStore
	ProgressStore
	QuizStore
}

// SessionStore issues and resolves bearer tokens.
type SessionStore interface {
	NewSession(u domain.User) (string, error)
	IdentityFromToken(token string) (domain.Identity, error)
	DeleteSession(token string) error
}

// UserSessionRevoker is an optional capability that revokes all sessions
// issued for a user up to a cutoff time.
type UserSessionRevoker interface {
	RevokeUserSessions(userID string, since time.Time) error
}

// JWK represents a JSON Web Key entry used by JWKS endpoints.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKSProvider is an optional capability exposed by session stores that can
// publish JSON Web Keys.
type JWKSProvider interface {
	JWKS() []JWK
}
