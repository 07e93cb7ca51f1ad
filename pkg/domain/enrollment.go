package domain

import "time"

type LedgerEntry struct {
	CourseID       string    `json:"courseId"`
	Title          string    `json:"title"`
	InstructorID   string    `json:"instructorId"`
	InstructorName string    `json:"instructorName"`
	EnrollmentDate time.Time `json:"dateOfPurchase"`
	CourseImage    string    `json:"courseImage"`
}

// EnrollmentLedger lists the courses a student is enrolled in.
type EnrollmentLedger struct {
	StudentID string        `json:"userId"`
	Courses   []LedgerEntry `json:"courses"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func (l EnrollmentLedger) Has(courseID string) bool {
	for _, c := range l.Courses {
		if c.CourseID == courseID {
			return true
		}
	}
	return false
}

// Ensure appends entry unless its course is already listed.
func (l *EnrollmentLedger) Ensure(entry LedgerEntry) bool {
	if l.Has(entry.CourseID) {
		return false
	}
	l.Courses = append(l.Courses, entry)
	return true
}
