package domain

import (
	"time"

	"github.com/google/uuid"
)

type Lecture struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	VideoURL    string `json:"videoUrl"`
	PublicID    string `json:"public_id,omitempty"`
	FreePreview bool   `json:"freePreview"`
}

type RosterEntry struct {
	StudentID    string `json:"studentId"`
	StudentName  string `json:"studentName"`
	StudentEmail string `json:"studentEmail"`
	Completed    bool   `json:"completed"`
}

type Course struct {
	ID             string        `json:"id"`
	InstructorID   string        `json:"instructorId"`
	InstructorName string        `json:"instructorName"`
	Title          string        `json:"title"`
	Category       string        `json:"category"`
	Level          string        `json:"level"`
	Language       string        `json:"primaryLanguage"`
	Subtitle       string        `json:"subtitle,omitempty"`
	Description    string        `json:"description"`
	Image          string        `json:"image"`
	WelcomeMessage string        `json:"welcomeMessage,omitempty"`
	Pricing        float64       `json:"pricing"`
	Objectives     string        `json:"objectives,omitempty"`
	Curriculum     []Lecture     `json:"curriculum"`
	Students       []RosterEntry `json:"students"`
	IsPublished    bool          `json:"isPublished"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// AssignLectureIDs gives every lecture without an id a fresh one.
func (c *Course) AssignLectureIDs() {
	for i := range c.Curriculum {
		if c.Curriculum[i].ID == "" {
			c.Curriculum[i].ID = uuid.NewString()
		}
	}
}

// HasLecture reports whether lectureID is part of the current curriculum.
func (c Course) HasLecture(lectureID string) bool {
	for _, l := range c.Curriculum {
		if l.ID == lectureID {
			return true
		}
	}
	return false
}

// RosterEntryFor returns the roster entry of a student.
func (c Course) RosterEntryFor(studentID string) (RosterEntry, bool) {
	for _, s := range c.Students {
		if s.StudentID == studentID {
			return s, true
		}
	}
	return RosterEntry{}, false
}

// EnsureRosterEntry appends the student if absent and reports whether it did.
func (c *Course) EnsureRosterEntry(student Identity) bool {
	if _, ok := c.RosterEntryFor(student.ID); ok {
		return false
	}
	c.Students = append(c.Students, RosterEntry{
		StudentID:    student.ID,
		StudentName:  student.Name,
		StudentEmail: student.Email,
	})
	return true
}

// SetRosterCompleted sets the student's completed flag, adding the entry
// when it is missing. It reports whether the course changed.
func (c *Course) SetRosterCompleted(student Identity, completed bool) bool {
	changed := c.EnsureRosterEntry(student)
	for i := range c.Students {
		if c.Students[i].StudentID == student.ID && c.Students[i].Completed != completed {
			c.Students[i].Completed = completed
			return true
		}
	}
	return changed
}

// LedgerEntry builds the denormalized ledger summary of this course.
func (c Course) LedgerEntry(enrolledAt time.Time) LedgerEntry {
	return LedgerEntry{
		CourseID:       c.ID,
		Title:          c.Title,
		InstructorID:   c.InstructorID,
		InstructorName: c.InstructorName,
		EnrollmentDate: enrolledAt,
		CourseImage:    c.Image,
	}
}
