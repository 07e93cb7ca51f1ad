package app

import (
	"context"
	"testing"
	"time"

	"github.com/AniketChoudhary834/LMS/internal/apperr"
	"github.com/AniketChoudhary834/LMS/pkg/domain"
)

func enrolledCourse(t *testing.T, env testEnv, lectures ...string) domain.Course {
	t.Helper()
	course := createCourse(t, env, lectures...)
	if _, err := env.app.Enroll(context.Background(), student, course.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	return course
}

func rosterCompleted(t *testing.T, env testEnv, courseID string) bool {
	t.Helper()
	stored, _, err := env.data.GetCourse(context.Background(), courseID)
	if err != nil {
		t.Fatalf("get course: %v", err)
	}
	entry, ok := stored.RosterEntryFor(student.ID)
	if !ok {
		t.Fatalf("student missing from roster")
	}
	return entry.Completed
}

func TestMarkViewedCompletesCourse(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	course := enrolledCourse(t, env, "L1", "L2")
	l1, l2 := course.Curriculum[0].ID, course.Curriculum[1].ID

	record, err := env.app.MarkLectureViewed(ctx, student, course.ID, l1)
	if err != nil {
		t.Fatalf("mark l1: %v", err)
	}
	if record.Completed || record.CompletionDate != nil {
		t.Fatalf("course completed after one of two lectures: %+v", record)
	}
	if len(record.LectureProgress) != 1 || !record.LectureProgress[0].Viewed {
		t.Fatalf("unexpected lecture progress: %+v", record.LectureProgress)
	}
	if rosterCompleted(t, env, course.ID) {
		t.Fatalf("roster marked completed too early")
	}

	record, err = env.app.MarkLectureViewed(ctx, student, course.ID, l2)
	if err != nil {
		t.Fatalf("mark l2: %v", err)
	}
	if !record.Completed || record.CompletionDate == nil {
		t.Fatalf("expected completion, got %+v", record)
	}
	if !rosterCompleted(t, env, course.ID) {
		t.Fatalf("roster not marked completed")
	}
}

func TestMarkViewedAgainRefreshesDate(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	course := enrolledCourse(t, env, "L1", "L2")
	l1 := course.Curriculum[0].ID

	first, err := env.app.MarkLectureViewed(ctx, student, course.ID, l1)
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	later := first.LectureProgress[0].DateViewed.Add(time.Minute)
	env.app.now = func() time.Time { return later }
	second, err := env.app.MarkLectureViewed(ctx, student, course.ID, l1)
	if err != nil {
		t.Fatalf("mark again: %v", err)
	}
	if len(second.LectureProgress) != 1 || !second.LectureProgress[0].DateViewed.Equal(later) {
		t.Fatalf("expected refreshed single entry, got %+v", second.LectureProgress)
	}
	if second.Completed {
		t.Fatalf("repeat view must not complete the course")
	}
}

func TestMarkViewedUsesCurrentCurriculum(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	course := enrolledCourse(t, env, "L1")

	updated, err := env.app.UpdateCourse(ctx, instructor, course.ID, CourseInput{
		Title:      course.Title,
		Curriculum: append(course.Curriculum, domain.Lecture{Title: "L2"}),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	record, err := env.app.MarkLectureViewed(ctx, student, course.ID, course.Curriculum[0].ID)
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if record.Completed {
		t.Fatalf("completed against a stale curriculum of %d lectures", len(updated.Curriculum))
	}
}

func TestMarkViewedReopensRosterWhenCurriculumGrows(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	course := enrolledCourse(t, env, "L1")
	l1 := course.Curriculum[0].ID

	if _, err := env.app.MarkLectureViewed(ctx, student, course.ID, l1); err != nil {
		t.Fatalf("mark l1: %v", err)
	}
	if !rosterCompleted(t, env, course.ID) {
		t.Fatalf("roster not marked completed")
	}

	updated, err := env.app.UpdateCourse(ctx, instructor, course.ID, CourseInput{
		Title:      course.Title,
		Curriculum: append(course.Curriculum, domain.Lecture{Title: "L2"}),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	record, err := env.app.MarkLectureViewed(ctx, student, course.ID, l1)
	if err != nil {
		t.Fatalf("mark l1 again: %v", err)
	}
	if record.Completed || record.CompletionDate != nil {
		t.Fatalf("record should reopen after the curriculum grew: %+v", record)
	}
	if rosterCompleted(t, env, course.ID) {
		t.Fatalf("roster still completed while progress is open")
	}

	record, err = env.app.MarkLectureViewed(ctx, student, course.ID, updated.Curriculum[1].ID)
	if err != nil {
		t.Fatalf("mark l2: %v", err)
	}
	if !record.Completed || !rosterCompleted(t, env, course.ID) {
		t.Fatalf("expected completion on both sides, record %+v", record)
	}
}

func TestMarkViewedRequiresEnrollmentAndLecture(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	course := createCourse(t, env, "L1")

	_, err := env.app.MarkLectureViewed(ctx, student, course.ID, course.Curriculum[0].ID)
	assertKind(t, err, apperr.Forbidden)
	if _, ok, _ := env.data.GetProgress(ctx, student.ID, course.ID); ok {
		t.Fatalf("progress created for a non-enrolled student")
	}

	if _, err := env.app.Enroll(ctx, student, course.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	_, err = env.app.MarkLectureViewed(ctx, student, course.ID, "no-such-lecture")
	assertKind(t, err, apperr.NotFound)
}

func TestMarkViewedHealsMissingRosterOnCompletion(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	course := enrolledCourse(t, env, "L1")
	_, err := env.data.UpdateCourse(ctx, course.ID, func(c *domain.Course) error {
		c.Students = nil
		return nil
	})
	if err != nil {
		t.Fatalf("drop roster: %v", err)
	}
	if _, err := env.app.MarkLectureViewed(ctx, student, course.ID, course.Curriculum[0].ID); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !rosterCompleted(t, env, course.ID) {
		t.Fatalf("roster entry not restored as completed")
	}
}

func TestGetProgress(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	course := createCourse(t, env, "L1", "L2")

	view, err := env.app.GetProgress(ctx, student, student.ID, course.ID)
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if view.IsEnrolled || view.CourseDetails != nil {
		t.Fatalf("expected not enrolled view, got %+v", view)
	}

	if _, err := env.app.Enroll(ctx, student, course.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	view, err = env.app.GetProgress(ctx, student, student.ID, course.ID)
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if !view.IsEnrolled || view.CourseDetails == nil || view.CourseDetails.ID != course.ID {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Progress == nil || len(view.Progress) != 0 {
		t.Fatalf("expected empty progress, got %#v", view.Progress)
	}

	_, err = env.app.GetProgress(ctx, student, "someone-else", course.ID)
	assertKind(t, err, apperr.Forbidden)
}

func TestResetProgressKeepsEnrollment(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	course := enrolledCourse(t, env, "L1", "L2")

	_, err := env.app.ResetProgress(ctx, student, course.ID)
	assertKind(t, err, apperr.NotFound)
	if _, ok, _ := env.data.GetProgress(ctx, student.ID, course.ID); ok {
		t.Fatalf("reset of a missing record created one")
	}

	for _, l := range course.Curriculum {
		if _, err := env.app.MarkLectureViewed(ctx, student, course.ID, l.ID); err != nil {
			t.Fatalf("mark: %v", err)
		}
	}
	record, err := env.app.ResetProgress(ctx, student, course.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if record.Completed || record.CompletionDate != nil || len(record.LectureProgress) != 0 {
		t.Fatalf("reset left progress behind: %+v", record)
	}

	enrolled, err := env.app.IsEnrolled(ctx, student.ID, course.ID)
	if err != nil || !enrolled {
		t.Fatalf("reset dropped enrollment: %v %v", enrolled, err)
	}
	stored, _, _ := env.data.GetCourse(ctx, course.ID)
	if _, ok := stored.RosterEntryFor(student.ID); !ok {
		t.Fatalf("reset dropped roster entry")
	}
}
