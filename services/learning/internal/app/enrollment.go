package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/AniketChoudhary834/LMS/pkg/domain"
	"github.com/AniketChoudhary834/LMS/pkg/store"
)

// EnrollResult reports whether the student's ledger already listed the course.
type EnrollResult struct {
	AlreadyEnrolled bool `json:"alreadyEnrolled"`
}

// Enroll records the course in the student's ledger and the student in the
// course roster. Both writes are ensure-present, and the roster is checked
// on every call so a retry repairs a half-finished earlier attempt.
func (a *App) Enroll(ctx context.Context, student domain.Identity, courseID string) (EnrollResult, error) {
	course, err := a.GetCourse(ctx, courseID)
	if err != nil {
		return EnrollResult{}, err
	}

	already := false
	_, err = a.store.UpdateLedger(ctx, student.ID, func(l *domain.EnrollmentLedger) error {
		if !l.Ensure(course.LedgerEntry(a.now())) {
			already = true
			return errUnchanged
		}
		return nil
	})
	if err = ignoreUnchanged(err); err != nil {
		return EnrollResult{}, fmt.Errorf("update ledger: %w", err)
	}

	err = a.ensureRoster(ctx, courseID, func(c *domain.Course) bool {
		return c.EnsureRosterEntry(student)
	})
	if err != nil {
		return EnrollResult{}, err
	}
	return EnrollResult{AlreadyEnrolled: already}, nil
}

// ensureRoster applies change to the course roster, skipping the write
// when change reports nothing to do.
func (a *App) ensureRoster(ctx context.Context, courseID string, change func(*domain.Course) bool) error {
	_, err := a.store.UpdateCourse(ctx, courseID, func(c *domain.Course) error {
		if !change(c) {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrCourseNotFound
	}
	if err = ignoreUnchanged(err); err != nil {
		return fmt.Errorf("update roster: %w", err)
	}
	return nil
}

// IsEnrolled reports whether the student's ledger lists the course.
func (a *App) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	ledger, _, err := a.store.GetLedger(ctx, studentID)
	if err != nil {
		return false, fmt.Errorf("get ledger: %w", err)
	}
	return ledger.Has(courseID), nil
}

// EnrolledCourses returns the student's ledger entries.
func (a *App) EnrolledCourses(ctx context.Context, studentID string) ([]domain.LedgerEntry, error) {
	ledger, _, err := a.store.GetLedger(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get ledger: %w", err)
	}
	if ledger.Courses == nil {
		return []domain.LedgerEntry{}, nil
	}
	return ledger.Courses, nil
}
