package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Embedded collections are jsonb so each
// course, ledger and progress record is a single row.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Name         string    `gorm:"uniqueIndex;not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type CourseModel struct {
	ID             string `gorm:"primaryKey"`
	InstructorID   string `gorm:"not null;index"`
	InstructorName string `gorm:"not null"`
	Title          string `gorm:"not null"`
	Category       string `gorm:"index"`
	Level          string `gorm:"index"`
	Language       string `gorm:"index"`
	Subtitle       string
	Description    string `gorm:"type:text"`
	Image          string
	WelcomeMessage string `gorm:"type:text"`
	Pricing        float64
	Objectives     string         `gorm:"type:text"`
	Curriculum     datatypes.JSON `gorm:"type:jsonb"`
	Students       datatypes.JSON `gorm:"type:jsonb"`
	IsPublished    bool           `gorm:"not null;index"`
	CreatedAt      time.Time      `gorm:"not null;index"`
	UpdatedAt      time.Time      `gorm:"not null"`
}

type LedgerModel struct {
	StudentID string         `gorm:"primaryKey"`
	Courses   datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt time.Time      `gorm:"not null"`
}

type ProgressModel struct {
	ID             string `gorm:"primaryKey"`
	StudentID      string `gorm:"not null;index:idx_progress_student_course,unique"`
	CourseID       string `gorm:"not null;index:idx_progress_student_course,unique"`
	Completed      bool   `gorm:"not null"`
	CompletionDate *time.Time
	Lectures       datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt      time.Time      `gorm:"not null"`
}

type QuizResultModel struct {
	ID             string         `gorm:"primaryKey"`
	UserID         string         `gorm:"not null;index"`
	Topic          string         `gorm:"not null"`
	Score          int            `gorm:"not null"`
	TotalQuestions int            `gorm:"not null"`
	Answers        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null;index"`
}
