package app

import (
	"context"
	"reflect"
	"testing"

	"github.com/AniketChoudhary834/LMS/internal/apperr"
	"github.com/AniketChoudhary834/LMS/pkg/domain"
	"github.com/AniketChoudhary834/LMS/pkg/store"
)

func TestCreateCourseAssignsOwnerAndLectureIDs(t *testing.T) {
	env := newTestApp(t)
	course := createCourse(t, env, "Intro", "Slices")

	if course.InstructorID != instructor.ID || course.InstructorName != instructor.Name {
		t.Fatalf("unexpected owner: %+v", course)
	}
	if len(course.Curriculum) != 2 {
		t.Fatalf("expected 2 lectures, got %d", len(course.Curriculum))
	}
	for _, l := range course.Curriculum {
		if l.ID == "" {
			t.Fatalf("lecture without id: %+v", l)
		}
	}
	if course.Curriculum[0].ID == course.Curriculum[1].ID {
		t.Fatalf("lecture ids must differ")
	}
	if course.Students == nil || len(course.Students) != 0 {
		t.Fatalf("expected empty roster, got %#v", course.Students)
	}
}

func TestCreateCourseRejectsStudentsAndMissingTitle(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()

	_, err := env.app.CreateCourse(ctx, student, CourseInput{Title: "Mine"})
	assertKind(t, err, apperr.Forbidden)

	_, err = env.app.CreateCourse(ctx, instructor, CourseInput{Title: "   "})
	assertKind(t, err, apperr.Validation)

	_, err = env.app.CreateCourse(ctx, instructor, CourseInput{Title: "Paid", Pricing: -1})
	assertKind(t, err, apperr.Validation)
}

func TestUpdateCoursePreservesRosterAndPublication(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	course := createCourse(t, env, "Intro")
	if _, err := env.app.SetPublished(ctx, instructor, course.ID, true); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := env.app.Enroll(ctx, student, course.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	updated, err := env.app.UpdateCourse(ctx, instructor, course.ID, CourseInput{
		Title:      "Go in Depth",
		Curriculum: append(course.Curriculum, domain.Lecture{Title: "Maps"}),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Go in Depth" || !updated.IsPublished {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if len(updated.Students) != 1 || updated.Students[0].StudentID != student.ID {
		t.Fatalf("roster lost on update: %+v", updated.Students)
	}
	if updated.Curriculum[0].ID != course.Curriculum[0].ID || updated.Curriculum[1].ID == "" {
		t.Fatalf("lecture ids not preserved/assigned: %+v", updated.Curriculum)
	}
}

func TestUpdateCourseOwnership(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	course := createCourse(t, env, "Intro")
	other := domain.Identity{ID: "inst-2", Role: domain.RoleInstructor}

	_, err := env.app.UpdateCourse(ctx, other, course.ID, CourseInput{Title: "Stolen"})
	assertKind(t, err, apperr.Forbidden)

	_, err = env.app.SetPublished(ctx, other, course.ID, true)
	assertKind(t, err, apperr.Forbidden)

	_, err = env.app.UpdateCourse(ctx, instructor, "missing", CourseInput{Title: "Ghost"})
	assertKind(t, err, apperr.NotFound)

	_, err = env.app.GetCourse(ctx, "missing")
	assertKind(t, err, apperr.NotFound)
}

func TestListPublishedFiltersAndSorts(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	inputs := []CourseInput{
		{Title: "Beta", Category: "programming", Level: "beginner", Language: "english", IsPublished: true},
		{Title: "Alpha", Category: "design", Level: "advanced", Language: "english", IsPublished: true},
		{Title: "Gamma", Category: "programming", Level: "advanced", Language: "french", IsPublished: true},
		{Title: "Draft", Category: "programming", Level: "beginner", Language: "english"},
	}
	for _, in := range inputs {
		if _, err := env.app.CreateCourse(ctx, instructor, in); err != nil {
			t.Fatalf("create %s: %v", in.Title, err)
		}
	}

	all, err := env.app.ListPublished(ctx, ParseCourseFilter("", "", "", ""))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := titles(all); !reflect.DeepEqual(got, []string{"Alpha", "Beta", "Gamma"}) {
		t.Fatalf("unexpected default listing: %v", got)
	}

	filtered, err := env.app.ListPublished(ctx, ParseCourseFilter("programming", "beginner, advanced", "", "title-ztoa"))
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if got := titles(filtered); !reflect.DeepEqual(got, []string{"Gamma", "Beta"}) {
		t.Fatalf("unexpected filtered listing: %v", got)
	}

	mine, err := env.app.ListByInstructor(ctx, instructor)
	if err != nil {
		t.Fatalf("list by instructor: %v", err)
	}
	if len(mine) != 4 {
		t.Fatalf("expected 4 instructor courses, got %d", len(mine))
	}
	_, err = env.app.ListByInstructor(ctx, student)
	assertKind(t, err, apperr.Forbidden)
}

func TestParseCourseFilter(t *testing.T) {
	f := ParseCourseFilter(" a ,b,,", "", "english", "bogus")
	if !reflect.DeepEqual(f.Categories, []string{"a", "b"}) {
		t.Fatalf("unexpected categories: %#v", f.Categories)
	}
	if f.Levels != nil {
		t.Fatalf("expected no level filter, got %#v", f.Levels)
	}
	if f.Sort != store.SortTitleAsc {
		t.Fatalf("expected default sort, got %q", f.Sort)
	}
	if got := ParseCourseFilter("", "", "", "newest").Sort; got != store.SortNewest {
		t.Fatalf("expected newest, got %q", got)
	}
}

func titles(courses []domain.Course) []string {
	out := make([]string, 0, len(courses))
	for _, c := range courses {
		out = append(out, c.Title)
	}
	return out
}
