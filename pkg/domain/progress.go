package domain

import "time"

type LectureProgress struct {
	LectureID  string    `json:"lectureId"`
	Viewed     bool      `json:"viewed"`
	DateViewed time.Time `json:"dateViewed"`
}

// ProgressRecord tracks one student's viewing progress in one course.
type ProgressRecord struct {
	ID              string            `json:"id"`
	StudentID       string            `json:"userId"`
	CourseID        string            `json:"courseId"`
	Completed       bool              `json:"completed"`
	CompletionDate  *time.Time        `json:"completionDate"`
	LectureProgress []LectureProgress `json:"lecturesProgress"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// MarkViewed sets the lecture entry viewed at now, appending it if absent.
// A repeat mark refreshes DateViewed.
func (p *ProgressRecord) MarkViewed(lectureID string, now time.Time) {
	for i := range p.LectureProgress {
		if p.LectureProgress[i].LectureID == lectureID {
			p.LectureProgress[i].Viewed = true
			p.LectureProgress[i].DateViewed = now
			return
		}
	}
	p.LectureProgress = append(p.LectureProgress, LectureProgress{
		LectureID:  lectureID,
		Viewed:     true,
		DateViewed: now,
	})
}

// RecomputeCompletion compares viewed entries with curriculum and updates
// Completed. It returns true when the record moved from incomplete to
// complete. An empty curriculum is never complete.
func (p *ProgressRecord) RecomputeCompletion(curriculum []Lecture, now time.Time) bool {
	viewed := make(map[string]bool, len(p.LectureProgress))
	for _, lp := range p.LectureProgress {
		if lp.Viewed {
			viewed[lp.LectureID] = true
		}
	}
	complete := len(curriculum) > 0
	for _, l := range curriculum {
		if !viewed[l.ID] {
			complete = false
			break
		}
	}

	was := p.Completed
	p.Completed = complete
	switch {
	case complete && !was:
		ts := now
		p.CompletionDate = &ts
		return true
	case !complete:
		p.CompletionDate = nil
	}
	return false
}

// Reset clears lecture progress and completion.
func (p *ProgressRecord) Reset() {
	p.LectureProgress = []LectureProgress{}
	p.Completed = false
	p.CompletionDate = nil
}
