package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/AniketChoudhary834/LMS/internal/apperr"
	"github.com/AniketChoudhary834/LMS/pkg/domain"
	"github.com/AniketChoudhary834/LMS/pkg/store"
)

// CourseInput carries the editable content of a course.
type CourseInput struct {
	Title          string
	Category       string
	Level          string
	Language       string
	Subtitle       string
	Description    string
	Image          string
	WelcomeMessage string
	Pricing        float64
	Objectives     string
	Curriculum     []domain.Lecture
	IsPublished    bool
}

func (in CourseInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrTitleRequired
	}
	if in.Pricing < 0 {
		return ErrInvalidPricing
	}
	return nil
}

func (in CourseInput) applyTo(c *domain.Course) {
	c.Title = strings.TrimSpace(in.Title)
	c.Category = in.Category
	c.Level = in.Level
	c.Language = in.Language
	c.Subtitle = in.Subtitle
	c.Description = in.Description
	c.Image = in.Image
	c.WelcomeMessage = in.WelcomeMessage
	c.Pricing = in.Pricing
	c.Objectives = in.Objectives
	c.Curriculum = append([]domain.Lecture(nil), in.Curriculum...)
	c.AssignLectureIDs()
}

// CreateCourse stores a new course owned by the calling instructor.
func (a *App) CreateCourse(ctx context.Context, caller domain.Identity, in CourseInput) (domain.Course, error) {
	if !caller.IsInstructor() {
		return domain.Course{}, ErrInstructorOnly
	}
	if err := in.validate(); err != nil {
		return domain.Course{}, err
	}
	now := a.now()
	course := domain.Course{
		ID:             uuid.NewString(),
		InstructorID:   caller.ID,
		InstructorName: caller.Name,
		Students:       []domain.RosterEntry{},
		IsPublished:    in.IsPublished,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	in.applyTo(&course)
	if err := a.store.CreateCourse(ctx, course); err != nil {
		return domain.Course{}, fmt.Errorf("create course: %w", err)
	}
	return course, nil
}

// UpdateCourse replaces the content of a course. The roster, owner and
// publication state are left as stored.
func (a *App) UpdateCourse(ctx context.Context, caller domain.Identity, id string, in CourseInput) (domain.Course, error) {
	if err := in.validate(); err != nil {
		return domain.Course{}, err
	}
	course, err := a.store.UpdateCourse(ctx, id, func(c *domain.Course) error {
		if c.InstructorID != caller.ID {
			return ErrNotCourseOwner
		}
		in.applyTo(c)
		return nil
	})
	if err != nil {
		return domain.Course{}, courseError("update course", err)
	}
	return course, nil
}

// SetPublished toggles publication of an owned course.
func (a *App) SetPublished(ctx context.Context, caller domain.Identity, id string, published bool) (domain.Course, error) {
	course, err := a.store.UpdateCourse(ctx, id, func(c *domain.Course) error {
		if c.InstructorID != caller.ID {
			return ErrNotCourseOwner
		}
		c.IsPublished = published
		return nil
	})
	if err != nil {
		return domain.Course{}, courseError("publish course", err)
	}
	return course, nil
}

// GetCourse returns any course by id.
func (a *App) GetCourse(ctx context.Context, id string) (domain.Course, error) {
	course, ok, err := a.store.GetCourse(ctx, id)
	if err != nil {
		return domain.Course{}, fmt.Errorf("get course: %w", err)
	}
	if !ok {
		return domain.Course{}, ErrCourseNotFound
	}
	return course, nil
}

// PublicCourse is the anonymous view of a course: published only, with the
// roster removed.
func (a *App) PublicCourse(ctx context.Context, id string) (domain.Course, error) {
	course, err := a.GetCourse(ctx, id)
	if err != nil {
		return domain.Course{}, err
	}
	if !course.IsPublished {
		return domain.Course{}, ErrCourseNotFound
	}
	return withoutRoster(course), nil
}

// PublicCatalog is ListPublished with rosters removed.
func (a *App) PublicCatalog(ctx context.Context, filter store.CourseFilter) ([]domain.Course, error) {
	courses, err := a.ListPublished(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range courses {
		courses[i] = withoutRoster(courses[i])
	}
	return courses, nil
}

func withoutRoster(c domain.Course) domain.Course {
	c.Students = []domain.RosterEntry{}
	return c
}

// ListPublished returns the published catalog narrowed by filter.
func (a *App) ListPublished(ctx context.Context, filter store.CourseFilter) ([]domain.Course, error) {
	courses, err := a.store.ListPublishedCourses(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// ListByInstructor returns the caller's own courses, newest first.
func (a *App) ListByInstructor(ctx context.Context, caller domain.Identity) ([]domain.Course, error) {
	if !caller.IsInstructor() {
		return nil, ErrInstructorOnly
	}
	courses, err := a.store.ListCoursesByInstructor(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("list instructor courses: %w", err)
	}
	return courses, nil
}

// ParseCourseFilter builds a filter from comma separated query values.
// Unknown sort keys fall back to title-atoz.
func ParseCourseFilter(categories, levels, languages, sortBy string) store.CourseFilter {
	filter := store.CourseFilter{
		Categories: splitList(categories),
		Levels:     splitList(levels),
		Languages:  splitList(languages),
		Sort:       store.SortTitleAsc,
	}
	switch s := store.CourseSort(strings.TrimSpace(sortBy)); s {
	case store.SortTitleDesc, store.SortNewest, store.SortOldest:
		filter.Sort = s
	}
	return filter
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// courseError maps store failures of a course update to app errors.
func courseError(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrCourseNotFound
	}
	if apperr.KindOf(err) != apperr.Internal {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
