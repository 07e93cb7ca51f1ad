// Package otp holds pending registrations and password resets until their
// emailed one-time code is confirmed.
package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/AniketChoudhary834/LMS/internal/util"
	"github.com/AniketChoudhary834/LMS/pkg/domain"
)

// Purpose namespaces pending entries so a reset never consumes a registration.
type Purpose string

const (
	PurposeRegister Purpose = "register"
	PurposeReset    Purpose = "reset"
)

const (
	CodeLength = 6
	DefaultTTL = 10 * time.Minute
)

var (
	ErrNotFound    = errors.New("no pending verification")
	ErrInvalidCode = errors.New("invalid otp")
	ErrExpired     = errors.New("otp expired")
)

// Pending is an entry awaiting code confirmation. Name, PasswordHash and
// Role are only set for registrations.
type Pending struct {
	Email        string          `json:"email"`
	Name         string          `json:"name,omitempty"`
	PasswordHash string          `json:"passwordHash,omitempty"`
	Role         domain.UserRole `json:"role,omitempty"`
	CodeHash     string          `json:"codeHash"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

// Store keeps at most one pending entry per (purpose, email). Put replaces
// any earlier entry. Get still returns entries past ExpiresAt so callers can
// report expiry.
type Store interface {
	Put(ctx context.Context, purpose Purpose, p Pending) error
	Get(ctx context.Context, purpose Purpose, email string) (Pending, bool, error)
	Delete(ctx context.Context, purpose Purpose, email string) error
}

// NewCode returns a fresh numeric code and its bcrypt hash.
func NewCode() (code, hash string, err error) {
	code, err = util.NewNumericCode(CodeLength)
	if err != nil {
		return "", "", fmt.Errorf("generate otp code: %w", err)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash otp code: %w", err)
	}
	return code, string(h), nil
}

// Consume checks code against the pending entry for email.
//
// A missing entry gives ErrNotFound. A wrong code gives ErrInvalidCode and
// leaves the entry in place, whether or not it has expired. A correct code
// on an expired entry gives ErrExpired and discards the entry. On success the
// entry is returned and the caller deletes it once its side effects are done.
func Consume(ctx context.Context, s Store, purpose Purpose, email, code string, now time.Time) (Pending, error) {
	p, ok, err := s.Get(ctx, purpose, email)
	if err != nil {
		return Pending{}, err
	}
	if !ok {
		return Pending{}, ErrNotFound
	}
	code = strings.TrimSpace(code)
	if code == "" || bcrypt.CompareHashAndPassword([]byte(p.CodeHash), []byte(code)) != nil {
		return Pending{}, ErrInvalidCode
	}
	if now.After(p.ExpiresAt) {
		if err := s.Delete(ctx, purpose, email); err != nil {
			return Pending{}, err
		}
		return Pending{}, ErrExpired
	}
	return p, nil
}
