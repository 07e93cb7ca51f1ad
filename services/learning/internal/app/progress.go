package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AniketChoudhary834/LMS/pkg/domain"
)

// ProgressView is a student's progress in one course. Only IsEnrolled is
// set when the student has not enrolled.
type ProgressView struct {
	IsEnrolled     bool                     `json:"isEnrolled"`
	CourseDetails  *domain.Course           `json:"courseDetails,omitempty"`
	Progress       []domain.LectureProgress `json:"progress"`
	Completed      bool                     `json:"completed"`
	CompletionDate *time.Time               `json:"completionDate,omitempty"`
}

// MarkLectureViewed records a view and recomputes completion against the
// course's current curriculum. The student's roster entry follows the
// record: it is marked completed on completion and cleared again when a
// grown curriculum reopens the course.
func (a *App) MarkLectureViewed(ctx context.Context, student domain.Identity, courseID, lectureID string) (domain.ProgressRecord, error) {
	enrolled, err := a.IsEnrolled(ctx, student.ID, courseID)
	if err != nil {
		return domain.ProgressRecord{}, err
	}
	if !enrolled {
		return domain.ProgressRecord{}, ErrNotEnrolled
	}
	course, err := a.GetCourse(ctx, courseID)
	if err != nil {
		return domain.ProgressRecord{}, err
	}
	if !course.HasLecture(lectureID) {
		return domain.ProgressRecord{}, ErrLectureNotFound
	}

	record, err := a.store.UpdateProgress(ctx, student.ID, courseID, func(p *domain.ProgressRecord, _ bool) error {
		now := a.now()
		p.MarkViewed(lectureID, now)
		p.RecomputeCompletion(course.Curriculum, now)
		return nil
	})
	if err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("update progress: %w", err)
	}

	entry, onRoster := course.RosterEntryFor(student.ID)
	if record.Completed || (onRoster && entry.Completed) {
		err := a.ensureRoster(ctx, courseID, func(c *domain.Course) bool {
			return c.SetRosterCompleted(student, record.Completed)
		})
		if err != nil {
			return domain.ProgressRecord{}, err
		}
	}
	return record, nil
}

// GetProgress returns the caller's progress in a course. userID must be
// the caller.
func (a *App) GetProgress(ctx context.Context, caller domain.Identity, userID, courseID string) (ProgressView, error) {
	if userID != caller.ID {
		return ProgressView{}, ErrForeignProgress
	}
	enrolled, err := a.IsEnrolled(ctx, caller.ID, courseID)
	if err != nil {
		return ProgressView{}, err
	}
	if !enrolled {
		return ProgressView{IsEnrolled: false}, nil
	}
	course, err := a.GetCourse(ctx, courseID)
	if err != nil {
		return ProgressView{}, err
	}
	record, _, err := a.store.GetProgress(ctx, caller.ID, courseID)
	if err != nil {
		return ProgressView{}, fmt.Errorf("get progress: %w", err)
	}
	lectures := record.LectureProgress
	if lectures == nil {
		lectures = []domain.LectureProgress{}
	}
	return ProgressView{
		IsEnrolled:     true,
		CourseDetails:  &course,
		Progress:       lectures,
		Completed:      record.Completed,
		CompletionDate: record.CompletionDate,
	}, nil
}

// ResetProgress clears the student's lecture progress and completion.
// Enrollment and the roster are untouched.
func (a *App) ResetProgress(ctx context.Context, student domain.Identity, courseID string) (domain.ProgressRecord, error) {
	record, err := a.store.UpdateProgress(ctx, student.ID, courseID, func(p *domain.ProgressRecord, exists bool) error {
		if !exists {
			return ErrProgressNotFound
		}
		p.Reset()
		return nil
	})
	if errors.Is(err, ErrProgressNotFound) {
		return domain.ProgressRecord{}, ErrProgressNotFound
	}
	if err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("reset progress: %w", err)
	}
	return record, nil
}
