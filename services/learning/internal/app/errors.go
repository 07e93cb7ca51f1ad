package app

import "github.com/AniketChoudhary834/LMS/internal/apperr"

var (
	ErrCourseNotFound   = apperr.New(apperr.NotFound, "course not found")
	ErrLectureNotFound  = apperr.New(apperr.NotFound, "lecture not found in course curriculum")
	ErrProgressNotFound = apperr.New(apperr.NotFound, "progress not found")
	ErrNotEnrolled      = apperr.New(apperr.Forbidden, "you are not enrolled in this course")
	ErrNotCourseOwner   = apperr.New(apperr.Forbidden, "only the course instructor can change this course")
	ErrInstructorOnly   = apperr.New(apperr.Forbidden, "instructor role required")
	ErrForeignProgress  = apperr.New(apperr.Forbidden, "progress belongs to another user")
	ErrTitleRequired    = apperr.New(apperr.Validation, "title is required")
	ErrInvalidPricing   = apperr.New(apperr.Validation, "pricing must not be negative")
	ErrTopicRequired    = apperr.New(apperr.Validation, "topic is required")
	ErrNoQuestions      = apperr.New(apperr.Validation, "questions are required")
	ErrInvalidPublicID  = apperr.New(apperr.Validation, "invalid media id")
	ErrFileRequired     = apperr.New(apperr.Validation, "file is required")
	ErrMediaNotFound    = apperr.New(apperr.NotFound, "media not found")
	ErrFileTooLarge     = apperr.New(apperr.PayloadTooLarge, "file exceeds the upload limit")
	ErrGenerationFailed = apperr.New(apperr.GenerationFailed, "failed to generate quiz")
	ErrGenerator        = apperr.New(apperr.Upstream, "quiz generator unavailable")
	ErrStorage          = apperr.New(apperr.Upstream, "media storage unavailable")
)
